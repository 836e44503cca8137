package capture

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"
)

// Screenshotter performs one-shot display grabs.
type Screenshotter struct {
	grabber ScreenGrabber
	dir     string
}

func NewScreenshotter(grabber ScreenGrabber, dir string) *Screenshotter {
	return &Screenshotter{grabber: grabber, dir: dir}
}

// Take grabs the primary display and writes it as a PNG, returning the path.
func (s *Screenshotter) Take() (string, error) {
	img, err := s.grabber.Grab()
	if err != nil {
		return "", fmt.Errorf("failed to capture screen: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshots directory: %w", err)
	}
	path := filepath.Join(s.dir, fmt.Sprintf("screenshot_%s.png", timestamp(time.Now())))

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create screenshot file: %w", err)
	}
	defer out.Close()

	if err := png.Encode(out, img); err != nil {
		return "", fmt.Errorf("failed to encode screenshot: %w", err)
	}
	return path, nil
}
