package capture

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const audioSampleRate = 44100

// AudioInput is an OS audio capture device. Blocks arrive on the device's
// callback thread; a block delivered with a non-nil error carries no usable
// samples.
type AudioInput interface {
	Channels() int
	SampleRate() int
	Start(onBlock func(samples []int16, err error)) error
	Stop() error
}

// AudioRecorder accumulates interleaved sample blocks from an AudioInput
// and writes them as one WAV file on stop. Blocks are append-only; a single
// failing device callback is logged and skipped, never aborting the take.
type AudioRecorder struct {
	input AudioInput
	dir   string

	mu        sync.Mutex
	state     State
	frames    [][]int16
	audioPath string
}

func NewAudioRecorder(input AudioInput, dir string) *AudioRecorder {
	return &AudioRecorder{input: input, dir: dir}
}

func (r *AudioRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return ErrAlreadyCapturing
	}

	r.frames = nil
	err := r.input.Start(func(samples []int16, err error) {
		if err != nil {
			log.Printf("Audio callback error, skipping block: %v", err)
			return
		}
		block := make([]int16, len(samples))
		copy(block, samples)

		r.mu.Lock()
		r.frames = append(r.frames, block)
		r.mu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("failed to open audio input: %w", err)
	}

	r.state = StateCapturing
	return nil
}

// Stop closes the input, concatenates all captured blocks and writes a
// single interleaved WAV file.
func (r *AudioRecorder) Stop() (string, error) {
	r.mu.Lock()
	if r.state != StateCapturing {
		r.mu.Unlock()
		return "", ErrNotCapturing
	}
	r.state = StateFinalizing
	r.mu.Unlock()

	if err := r.input.Stop(); err != nil {
		log.Printf("Audio input close error: %v", err)
	}

	r.mu.Lock()
	frames := r.frames
	r.frames = nil
	r.mu.Unlock()

	path, err := r.writeWAV(frames)

	r.mu.Lock()
	r.audioPath = path
	r.state = StateIdle
	r.mu.Unlock()

	if err != nil {
		return "", err
	}
	return path, nil
}

func (r *AudioRecorder) writeWAV(frames [][]int16) (string, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create audio directory: %w", err)
	}
	path := filepath.Join(r.dir, fmt.Sprintf("audio_recording_%s.wav", timestamp(time.Now())))

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create audio file: %w", err)
	}
	defer out.Close()

	total := 0
	for _, block := range frames {
		total += len(block)
	}
	data := make([]int, 0, total)
	for _, block := range frames {
		for _, s := range block {
			data = append(data, int(s))
		}
	}

	enc := wav.NewEncoder(out, r.input.SampleRate(), 16, r.input.Channels(), 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: r.input.Channels(),
			SampleRate:  r.input.SampleRate(),
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return "", fmt.Errorf("failed to write audio samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize audio file: %w", err)
	}
	return path, nil
}

func (r *AudioRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateCapturing
}

func (r *AudioRecorder) OutputPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.audioPath
}
