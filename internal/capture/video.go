package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/icza/mjpeg"
)

// Recorder is the contract shared by the in-process sampler and the ffmpeg
// subprocess backend. Start returns immediately once the stream transitions
// to Capturing; Stop signals termination and blocks briefly for the flush.
type Recorder interface {
	Start() error
	Stop() (string, error)
	Recording() bool
	OutputPath() string
}

// ScreenGrabber produces display frames for the sampling loop.
type ScreenGrabber interface {
	// Bounds reports the primary display resolution.
	Bounds() (width, height int, err error)
	// Grab samples the display once.
	Grab() (image.Image, error)
}

// Remux repackages a finished recording from src into the container dst's
// extension implies, without touching the encoded frames.
type Remux func(src, dst string) error

// ScreenRecorder drives a ScreenGrabber into a local MJPEG sink at a fixed
// frame rate, one frame per tick on its own goroutine. The sink is an AVI
// while capturing; Stop repackages it into an mp4 so downstream consumers
// see the same container the ffmpeg backend produces.
type ScreenRecorder struct {
	grabber   ScreenGrabber
	dir       string
	frameRate int
	remux     Remux
	graceWait time.Duration

	mu        sync.Mutex
	state     State
	videoPath string

	sink      mjpeg.AviWriter
	width     int
	height    int
	stop      chan struct{}
	done      chan struct{}
	closeOnce *sync.Once
}

func NewScreenRecorder(grabber ScreenGrabber, dir string, frameRate int, remux Remux) *ScreenRecorder {
	return &ScreenRecorder{
		grabber:   grabber,
		dir:       dir,
		frameRate: frameRate,
		remux:     remux,
		graceWait: time.Second,
	}
}

// Start transitions Idle→Capturing and launches the sampling loop.
func (r *ScreenRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return ErrAlreadyCapturing
	}

	width, height, err := r.grabber.Bounds()
	if err != nil {
		return fmt.Errorf("failed to detect display bounds: %w", err)
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("failed to create recordings directory: %w", err)
	}
	path := filepath.Join(r.dir, fmt.Sprintf("recording_%s.avi", timestamp(time.Now())))

	sink, err := mjpeg.New(path, int32(width), int32(height), int32(r.frameRate))
	if err != nil {
		return fmt.Errorf("failed to open video sink: %w", err)
	}

	r.sink = sink
	r.width = width
	r.height = height
	r.videoPath = path
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.closeOnce = &sync.Once{}
	r.state = StateCapturing

	go r.loop(r.sink, r.stop, r.done, r.closeOnce)
	return nil
}

// loop samples the display once per frame interval until stopped. Errors
// inside the loop never propagate as panics: they are logged and routed to
// the same finalize path a normal stop uses, so partial data survives.
func (r *ScreenRecorder) loop(sink mjpeg.AviWriter, stop, done chan struct{}, once *sync.Once) {
	defer close(done)

	interval := time.Second / time.Duration(r.frameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var buf bytes.Buffer
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			img, err := r.grabber.Grab()
			if err != nil {
				log.Printf("Screen capture failed, finalizing early: %v", err)
				r.finalize(sink, once)
				return
			}

			b := img.Bounds()
			if b.Dx() != r.width || b.Dy() != r.height {
				// Display resolution changed mid-capture. Writing the frame
				// would corrupt the container, so terminate instead.
				log.Printf("Frame size mismatch (%dx%d, sink %dx%d), finalizing early",
					b.Dx(), b.Dy(), r.width, r.height)
				r.finalize(sink, once)
				return
			}

			buf.Reset()
			if err := jpeg.Encode(&buf, img, nil); err != nil {
				log.Printf("Frame encode failed, finalizing early: %v", err)
				r.finalize(sink, once)
				return
			}
			if err := sink.AddFrame(buf.Bytes()); err != nil {
				log.Printf("Frame write failed, finalizing early: %v", err)
				r.finalize(sink, once)
				return
			}
		}
	}
}

func (r *ScreenRecorder) finalize(sink mjpeg.AviWriter, once *sync.Once) {
	once.Do(func() {
		if err := sink.Close(); err != nil {
			log.Printf("Failed to flush video sink: %v", err)
		}
	})
	r.mu.Lock()
	r.state = StateIdle
	r.mu.Unlock()
}

// Stop signals the loop, waits a bounded grace interval for in-flight
// writes, then flushes the sink and returns the finished artifact path.
func (r *ScreenRecorder) Stop() (string, error) {
	r.mu.Lock()
	if r.state != StateCapturing {
		r.mu.Unlock()
		return "", ErrNotCapturing
	}
	r.state = StateFinalizing
	sink, stop, done, once := r.sink, r.stop, r.done, r.closeOnce
	path := r.videoPath
	r.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(r.graceWait):
		log.Printf("Capture loop did not stop within %s, flushing anyway", r.graceWait)
	}

	r.finalize(sink, once)
	return r.repackage(path), nil
}

// repackage converts the flushed AVI into an mp4. A failed conversion keeps
// the AVI; a partial recording beats no recording.
func (r *ScreenRecorder) repackage(aviPath string) string {
	if r.remux == nil {
		return aviPath
	}

	mp4Path := strings.TrimSuffix(aviPath, filepath.Ext(aviPath)) + ".mp4"
	if err := r.remux(aviPath, mp4Path); err != nil {
		log.Printf("Remux to mp4 failed, keeping %s: %v", aviPath, err)
		return aviPath
	}
	if err := os.Remove(aviPath); err != nil {
		log.Printf("Failed to remove intermediate recording %s: %v", aviPath, err)
	}

	r.mu.Lock()
	r.videoPath = mp4Path
	r.mu.Unlock()
	return mp4Path
}

func (r *ScreenRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateCapturing
}

func (r *ScreenRecorder) OutputPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.videoPath
}
