package capture

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"gamediary/internal/media"
	"gamediary/internal/upload"
)

// Notifier pushes media events to connected companion UIs.
type Notifier interface {
	BroadcastMediaEvent(mediaType, filename, owner string)
}

type CaptureHandler struct {
	video    Recorder
	audio    *AudioRecorder
	shots    *Screenshotter
	thumbs   *Thumbnailer
	uploads  *upload.Pipeline
	notifier Notifier

	username      string
	thumbnailsDir string
}

func NewCaptureHandler(
	video Recorder,
	audio *AudioRecorder,
	shots *Screenshotter,
	thumbs *Thumbnailer,
	uploads *upload.Pipeline,
	notifier Notifier,
	username, thumbnailsDir string,
) *CaptureHandler {
	return &CaptureHandler{
		video:         video,
		audio:         audio,
		shots:         shots,
		thumbs:        thumbs,
		uploads:       uploads,
		notifier:      notifier,
		username:      username,
		thumbnailsDir: thumbnailsDir,
	}
}

// TakeScreenshot grabs the display once and ships the file immediately.
func (h *CaptureHandler) TakeScreenshot(c *fiber.Ctx) error {
	path, err := h.shots.Take()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Screenshot failed: %v", err),
		})
	}

	outcome := h.uploads.Upload(c.Context(), path, h.username, "")
	if !outcome.OK {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Screenshot upload failed: %s", outcome.Reason),
			"path":  path,
		})
	}

	h.notify(media.TypeScreenshot, path)
	url, err := h.uploads.SignedGetURL(c.Context(), outcome.Key)
	if err != nil {
		log.Printf("Failed to sign screenshot URL: %v", err)
	}

	return c.JSON(fiber.Map{
		"status": "success",
		"path":   path,
		"url":    url,
	})
}

func (h *CaptureHandler) StartRecording(c *fiber.Ctx) error {
	if err := h.video.Start(); err != nil {
		if errors.Is(err, ErrAlreadyCapturing) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Already recording",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to start recording: %v", err),
		})
	}

	return c.JSON(fiber.Map{
		"status": "started",
		"path":   h.video.OutputPath(),
	})
}

// StopRecording finalizes the video, derives its thumbnail and uploads
// both independently: a failed thumbnail never blocks the video.
func (h *CaptureHandler) StopRecording(c *fiber.Ctx) error {
	path, err := h.video.Stop()
	if err != nil {
		if errors.Is(err, ErrNotCapturing) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "No active recording",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to stop recording: %v", err),
		})
	}

	resp := fiber.Map{
		"status": "stopped",
		"path":   path,
	}

	artifacts := []string{path}
	thumbPath := h.thumbnailPath(path)
	if err := h.thumbs.Generate(path, thumbPath); err != nil {
		log.Printf("Failed to generate thumbnail: %v", err)
		resp["thumbnail_error"] = err.Error()
	} else {
		resp["thumbnail_path"] = thumbPath
		artifacts = append(artifacts, thumbPath)
	}

	outcomes := h.uploads.UploadAll(c.Context(), h.username, "", artifacts...)
	resp["uploads"] = outcomes
	if !outcomes[0].OK {
		resp["error"] = fmt.Sprintf("Video upload failed: %s", outcomes[0].Reason)
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	}

	h.notify(media.TypeVideo, path)
	return c.JSON(resp)
}

func (h *CaptureHandler) RecordingStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"recording": h.video.Recording()})
}

func (h *CaptureHandler) StartAudio(c *fiber.Ctx) error {
	if err := h.audio.Start(); err != nil {
		if errors.Is(err, ErrAlreadyCapturing) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Already recording",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to start audio recording: %v", err),
		})
	}
	return c.JSON(fiber.Map{"status": "started"})
}

func (h *CaptureHandler) StopAudio(c *fiber.Ctx) error {
	path, err := h.audio.Stop()
	if err != nil {
		if errors.Is(err, ErrNotCapturing) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "No active recording",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to finalize audio recording: %v", err),
		})
	}

	outcome := h.uploads.Upload(c.Context(), path, h.username, "")
	if !outcome.OK {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Audio upload failed: %s", outcome.Reason),
			"path":  path,
		})
	}

	h.notify(media.TypeAudio, path)
	return c.JSON(fiber.Map{
		"status": "stopped",
		"path":   path,
	})
}

func (h *CaptureHandler) thumbnailPath(videoPath string) string {
	base := filepath.Base(videoPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(h.thumbnailsDir, stem+".png")
}

func (h *CaptureHandler) notify(mediaType, path string) {
	if h.notifier == nil {
		return
	}
	h.notifier.BroadcastMediaEvent(mediaType, filepath.Base(path), h.username)
}
