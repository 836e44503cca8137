package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"gamediary/internal/storage"
)

const registryKey = "users.json"

var ErrUserNotFound = errors.New("user not found")

// UserService keeps the user registry in a single JSON document in the
// bucket, mirroring the session registry layout.
type UserService struct {
	docs storage.DocumentStore

	mu sync.Mutex
}

func NewUserService(docs storage.DocumentStore) *UserService {
	return &UserService{docs: docs}
}

func (s *UserService) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	registry, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	for _, existing := range registry {
		if existing.Username == req.Username {
			return nil, errors.New("user already exists")
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := User{
		UserID:    uuid.NewString(),
		Username:  req.Username,
		Password:  string(hashedPassword),
		CreatedAt: time.Now(),
	}

	registry = append(registry, user)
	if err := s.save(ctx, registry); err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *UserService) AuthenticateUser(ctx context.Context, username, password string) (*User, error) {
	user, err := s.GetUserByName(ctx, username)
	if err != nil {
		// Don't specify whether username or password is wrong
		return nil, errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	return user, nil
}

func (s *UserService) GetUserByName(ctx context.Context, username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	registry, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	for i := range registry {
		if registry[i].Username == username {
			return &registry[i], nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *UserService) load(ctx context.Context) ([]User, error) {
	body, err := s.docs.GetDocument(ctx, registryKey)
	if errors.Is(err, storage.ErrNoDocument) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var registry []User
	if err := json.Unmarshal(body, &registry); err != nil {
		return nil, fmt.Errorf("malformed users document %s: %w", registryKey, err)
	}
	return registry, nil
}

func (s *UserService) save(ctx context.Context, registry []User) error {
	body, err := json.Marshal(registry)
	if err != nil {
		return err
	}
	return s.docs.PutDocument(ctx, registryKey, body)
}
