package media

import (
	"github.com/gofiber/fiber/v2"
)

type MediaHandler struct {
	catalog *Catalog
}

func NewMediaHandler(catalog *Catalog) *MediaHandler {
	return &MediaHandler{catalog: catalog}
}

// GetMedia serves the static registry listing, filtered by media_type
// and/or user_id.
func (h *MediaHandler) GetMedia(c *fiber.Ctx) error {
	records, err := h.catalog.ListStatic(c.Context(), c.Query("media_type"), c.Query("user_id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read media registry",
		})
	}
	return c.JSON(records)
}

// GetStorageMedia serves the storage-backed listing with the same filters.
func (h *MediaHandler) GetStorageMedia(c *fiber.Ctx) error {
	records, err := h.catalog.ListStorage(c.Context(), c.Query("media_type"), c.Query("user_id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list stored media",
		})
	}
	return c.JSON(records)
}
