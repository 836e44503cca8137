package capture

import (
	"errors"
	"image"

	"github.com/kbinani/screenshot"
)

// DisplayGrabber samples the primary display.
type DisplayGrabber struct{}

func NewDisplayGrabber() *DisplayGrabber {
	return &DisplayGrabber{}
}

func (g *DisplayGrabber) Bounds() (int, int, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return 0, 0, errors.New("no active displays")
	}
	bounds := screenshot.GetDisplayBounds(0)
	return bounds.Dx(), bounds.Dy(), nil
}

func (g *DisplayGrabber) Grab() (image.Image, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, errors.New("no active displays")
	}
	return screenshot.CaptureRect(screenshot.GetDisplayBounds(0))
}
