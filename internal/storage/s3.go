package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNoDocument is returned when a requested document does not exist yet.
// First runs have no session or user registry, callers treat this as empty.
var ErrNoDocument = errors.New("storage: document does not exist")

type S3Config struct {
	Region string
	Bucket string
	Prefix string // optional; prepended to every object key

	// Endpoint overrides the AWS endpoint, e.g. a localstack instance
	// at http://localhost:4566. Path-style addressing is forced when set.
	Endpoint string

	// PresignTTL bounds the lifetime of issued signed URLs.
	PresignTTL time.Duration
}

type S3Store struct {
	cfg      S3Config
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
}

func NewS3Store(ctx context.Context, cfgIn S3Config) (*S3Store, error) {
	if cfgIn.Bucket == "" {
		return nil, errors.New("S3 bucket is required")
	}
	if cfgIn.Region == "" {
		cfgIn.Region = os.Getenv("AWS_REGION")
	}
	if cfgIn.Region == "" {
		return nil, errors.New("S3 region is required (set AWS_REGION)")
	}
	if cfgIn.PresignTTL == 0 {
		cfgIn.PresignTTL = time.Hour
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfgIn.Region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfgIn.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfgIn.Endpoint)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.Concurrency = 4
	})
	return &S3Store{
		cfg:      cfgIn,
		client:   client,
		uploader: uploader,
		presign:  s3.NewPresignClient(client),
	}, nil
}

func (s *S3Store) Bucket() string { return s.cfg.Bucket }

func (s *S3Store) joinPrefix(parts ...string) string {
	p := strings.Trim(s.cfg.Prefix, "/")
	all := make([]string, 0, 1+len(parts))
	if p != "" {
		all = append(all, p)
	}
	for _, x := range parts {
		x = strings.Trim(x, "/")
		if x != "" {
			all = append(all, x)
		}
	}
	return strings.Join(all, "/")
}

// PresignPut issues a time-boxed URL granting one HTTP PUT to key.
func (s *S3Store) PresignPut(ctx context.Context, key string) (string, error) {
	res, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.joinPrefix(key)),
	}, s3.WithPresignExpires(s.cfg.PresignTTL))
	if err != nil {
		return "", err
	}
	return res.URL, nil
}

// PresignGet issues a time-boxed URL granting one HTTP GET to key.
func (s *S3Store) PresignGet(ctx context.Context, key string) (string, error) {
	res, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.joinPrefix(key)),
	}, s3.WithPresignExpires(s.cfg.PresignTTL))
	if err != nil {
		return "", err
	}
	return res.URL, nil
}

// GetDocument fetches a small JSON document into memory.
func (s *S3Store) GetDocument(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.joinPrefix(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNoDocument
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// PutDocument writes a small JSON document, replacing any previous version.
// Last writer wins: there is no versioning on the registry documents.
func (s *S3Store) PutDocument(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(s.joinPrefix(key)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	return err
}

// UploadFile uploads a single local file to a specific object key.
func (s *S3Store) UploadFile(ctx context.Context, localPath string, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	ct := mime.TypeByExtension(filepath.Ext(localPath))
	if ct == "" {
		ct = "application/octet-stream"
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(s.joinPrefix(key)),
		Body:        f,
		ContentType: aws.String(ct),
	})
	return err
}

// ListKeys returns all object keys under prefix, with the configured
// global prefix stripped so callers see the same keys they wrote.
func (s *S3Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	full := s.joinPrefix(prefix)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(full),
	})

	strip := strings.Trim(s.cfg.Prefix, "/")
	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strip != "" {
				key = strings.TrimPrefix(strings.TrimPrefix(key, strip), "/")
			}
			keys = append(keys, key)
		}
	}
	return keys, nil
}
