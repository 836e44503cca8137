package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"gamediary/internal/media"
	"gamediary/internal/session"
	"gamediary/internal/storage"
	"gamediary/internal/users"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Get("/", s.HelloHandler)
	s.App.Get("/health", s.healthHandler)

	// Capture routes
	s.App.Post("/screenshot", s.deps.Capture.TakeScreenshot)
	s.App.Post("/recording/start", s.deps.Capture.StartRecording)
	s.App.Post("/recording/stop", s.deps.Capture.StopRecording)
	s.App.Get("/recording/status", s.deps.Capture.RecordingStatus)
	s.App.Post("/audio/start", s.deps.Capture.StartAudio)
	s.App.Post("/audio/stop", s.deps.Capture.StopAudio)

	// Session routes
	sessionHandler := session.NewSessionHandler(s.deps.Sessions)
	s.App.Post("/session/update", sessionHandler.UpdateSession)
	s.App.Post("/session/end", sessionHandler.EndSession)
	s.App.Get("/session/latest", sessionHandler.GetLatestSession)
	s.App.Get("/session/active", sessionHandler.GetActiveSession)
	s.App.Get("/session/durations", sessionHandler.GetDurations)

	// Media catalog routes
	mediaHandler := media.NewMediaHandler(s.deps.Catalog)
	s.App.Get("/media", mediaHandler.GetMedia)
	s.App.Get("/media/storage", mediaHandler.GetStorageMedia)

	// Presigned upload URLs for external clients
	presignHandler := storage.NewPresignHandler(s.deps.Store)
	s.App.Post("/generate-presigned-url", presignHandler.GeneratePresignedURL)

	// User routes
	userHandler := users.NewUserHandler(s.deps.Users)
	s.App.Post("/user/register", userHandler.CreateUser)
	s.App.Post("/user/login", userHandler.LoginUser)

	// WebSocket route for media notifications
	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws", websocket.New(s.deps.Hub.ServeWS))
}

func (s *FiberServer) HelloHandler(c *fiber.Ctx) error {
	resp := fiber.Map{
		"message": "gamediary capture service",
	}

	return c.JSON(resp)
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"backend": string(s.cfg.Capture.Backend),
	})
}
