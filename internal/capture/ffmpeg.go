package capture

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	// How long to watch a freshly launched subprocess for an immediate
	// exit, which signals a bad binary path or an unbindable port.
	launchProbe = time.Second
	// How long a graceful quit may take before the process is killed.
	quitTimeout = 5 * time.Second
)

// FFmpegRecorder is the low-overhead capture backend: an ffmpeg subprocess
// listens on a local UDP socket for an incoming low-latency stream and
// muxes it straight to an mp4, copying both codecs without re-encoding.
// Frame timing is whatever the sender produces; in exchange the capture
// overhead is near zero.
type FFmpegRecorder struct {
	ffmpegPath string
	dir        string
	port       int

	mu        sync.Mutex
	state     State
	videoPath string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	waitCh    chan error
}

// FFmpegRemux returns a Remux that moves the encoded stream into the
// container dst implies, copying the codec without re-encoding.
func FFmpegRemux(ffmpegPath string) Remux {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return func(src, dst string) error {
		cmd := exec.Command(ffmpegPath,
			"-y",
			"-i", src,
			"-c:v", "copy",
			dst)
		if err := cmd.Run(); err != nil {
			return errors.Wrapf(err, "remux of %s failed", src)
		}
		if fi, err := os.Stat(dst); err != nil || fi.Size() == 0 {
			return errors.Errorf("remux of %s produced no output", src)
		}
		return nil
	}
}

func NewFFmpegRecorder(ffmpegPath, dir string, port int) *FFmpegRecorder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegRecorder{
		ffmpegPath: ffmpegPath,
		dir:        dir,
		port:       port,
	}
}

func (r *FFmpegRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return ErrAlreadyCapturing
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create recordings directory")
	}
	path := filepath.Join(r.dir, fmt.Sprintf("recording_%s.mp4", timestamp(time.Now())))

	cmd := exec.Command(r.ffmpegPath,
		"-y",
		"-i", fmt.Sprintf("udp://127.0.0.1:%d", r.port),
		"-c:v", "copy",
		"-c:a", "copy",
		path)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(err, "failed to open ffmpeg stdin")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to start ffmpeg")
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	// An immediate exit means the subprocess never came up.
	select {
	case err := <-waitCh:
		return errors.Wrapf(err, "ffmpeg exited immediately on udp port %d", r.port)
	case <-time.After(launchProbe):
	}

	r.cmd = cmd
	r.stdin = stdin
	r.waitCh = waitCh
	r.videoPath = path
	r.state = StateCapturing
	return nil
}

// Stop signals a graceful quit by writing a quit byte to the subprocess,
// falling back to a hard kill if it does not shut down in time. A killed
// mux can leave a corrupt file, which downstream finalize reports.
func (r *FFmpegRecorder) Stop() (string, error) {
	r.mu.Lock()
	if r.state != StateCapturing {
		r.mu.Unlock()
		return "", ErrNotCapturing
	}
	r.state = StateFinalizing
	cmd, stdin, waitCh := r.cmd, r.stdin, r.waitCh
	path := r.videoPath
	r.mu.Unlock()

	if _, err := io.WriteString(stdin, "q\n"); err != nil {
		_ = cmd.Process.Kill()
	}

	select {
	case <-waitCh:
	case <-time.After(quitTimeout):
		_ = cmd.Process.Kill()
		<-waitCh
	}

	r.mu.Lock()
	r.cmd = nil
	r.stdin = nil
	r.waitCh = nil
	r.state = StateIdle
	r.mu.Unlock()

	return path, nil
}

func (r *FFmpegRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateCapturing
}

func (r *FFmpegRecorder) OutputPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.videoPath
}
