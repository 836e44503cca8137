package session

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type SessionHandler struct {
	registry *Registry
}

func NewSessionHandler(registry *Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

func (h *SessionHandler) UpdateSession(c *fiber.Ctx) error {
	var req UpdateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.GameID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing game_id",
		})
	}

	if err := h.registry.RecordStart(c.Context(), req.GameID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update session",
		})
	}
	return c.JSON(fiber.Map{"status": "success"})
}

func (h *SessionHandler) EndSession(c *fiber.Ctx) error {
	var req EndSessionRequest
	// Body is optional; an empty body ends the most recent open session.
	_ = c.BodyParser(&req)

	err := h.registry.RecordEnd(c.Context(), req.GameID)
	if errors.Is(err, ErrNoActiveSession) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No active session found to end",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to end session",
		})
	}
	return c.JSON(fiber.Map{"status": "ended"})
}

func (h *SessionHandler) GetLatestSession(c *fiber.Ctx) error {
	latest, err := h.registry.GetLatestSession(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read session log",
		})
	}
	if latest == nil {
		return c.JSON(fiber.Map{"game_id": nil, "timestamp": nil})
	}
	return c.JSON(latest)
}

func (h *SessionHandler) GetActiveSession(c *fiber.Ctx) error {
	active, err := h.registry.GetActiveSession(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read session log",
		})
	}
	if active == nil {
		return c.JSON(fiber.Map{"game_id": nil, "timestamp": nil})
	}
	return c.JSON(active)
}

func (h *SessionHandler) GetDurations(c *fiber.Ctx) error {
	durations, err := h.registry.Durations(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute session durations",
		})
	}
	return c.JSON(durations)
}
