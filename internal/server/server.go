package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"gamediary/internal/capture"
	"gamediary/internal/config"
	"gamediary/internal/media"
	"gamediary/internal/notify"
	"gamediary/internal/session"
	"gamediary/internal/storage"
	"gamediary/internal/users"
)

// Deps carries the constructed services the routes are built on. The
// capture handler is assembled in main because the video backend is a
// configuration choice.
type Deps struct {
	Store    storage.URLIssuer
	Sessions *session.Registry
	Users    *users.UserService
	Catalog  *media.Catalog
	Capture  *capture.CaptureHandler
	Hub      *notify.Hub
}

type FiberServer struct {
	*fiber.App
	cfg  *config.Config
	deps Deps
}

func New(cfg *config.Config, deps Deps) *FiberServer {
	app := fiber.New(fiber.Config{
		ServerHeader: "gamediary",
		AppName:      "gamediary",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	})

	server := &FiberServer{
		App:  app,
		cfg:  cfg,
		deps: deps,
	}
	server.applyMiddleware()

	return server
}

func (s *FiberServer) applyMiddleware() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(s.cfg.Security.CORSOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.App.Use(limiter.New(limiter.Config{
		Max:        s.cfg.Security.RateLimit,
		Expiration: s.cfg.Security.RateWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() // limit by IP address
		},
	}))
}
