package storage

import (
	"github.com/gofiber/fiber/v2"
)

type PresignHandler struct {
	issuer URLIssuer
}

func NewPresignHandler(issuer URLIssuer) *PresignHandler {
	return &PresignHandler{issuer: issuer}
}

type PresignRequest struct {
	FileName string `json:"file_name"`
	Username string `json:"username"`
	GameID   string `json:"game_id"`
}

// GeneratePresignedURL is the network-facing signed-URL contract. The overlay
// process consumes it as well as external callers.
func (h *PresignHandler) GeneratePresignedURL(c *fiber.Ctx) error {
	var req PresignRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.FileName == "" || req.Username == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing file_name or username",
		})
	}

	key := ObjectKey(req.Username, req.GameID, req.FileName)
	url, err := h.issuer.PresignPut(c.Context(), key)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate presigned URL",
		})
	}

	return c.JSON(fiber.Map{"url": url})
}
