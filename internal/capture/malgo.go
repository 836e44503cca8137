package capture

import (
	"errors"
	"fmt"

	"github.com/gen2brain/malgo"
)

// MalgoInput captures from the default input device via miniaudio.
type MalgoInput struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	channels   int
	sampleRate int
}

// NewMalgoInput detects the default capture device. The channel count is
// min(device max input channels, 2); a device reporting zero usable
// channels is a configuration error.
func NewMalgoInput() (*MalgoInput, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		ctx.Uninit()
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}
	if len(infos) == 0 {
		ctx.Uninit()
		return nil, errors.New("no capture devices available")
	}

	full, err := ctx.DeviceInfo(malgo.Capture, infos[0].ID, malgo.Shared)
	if err != nil {
		ctx.Uninit()
		return nil, fmt.Errorf("failed to query capture device: %w", err)
	}

	channels := usableChannels(full.Formats)
	if channels < 1 {
		ctx.Uninit()
		return nil, errors.New("no valid input channels on the default recording device")
	}

	return &MalgoInput{
		ctx:        ctx,
		channels:   channels,
		sampleRate: audioSampleRate,
	}, nil
}

// usableChannels picks the recording channel count: the widest channel
// layout any native format offers, capped at stereo. Zero means the device
// advertises no usable input format.
func usableChannels(formats []malgo.DataFormat) int {
	channels := 0
	for _, f := range formats {
		if int(f.Channels) > channels {
			channels = int(f.Channels)
		}
	}
	if channels > 2 {
		channels = 2
	}
	return channels
}

func (m *MalgoInput) Channels() int   { return m.channels }
func (m *MalgoInput) SampleRate() int { return m.sampleRate }

func (m *MalgoInput) Start(onBlock func(samples []int16, err error)) error {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(m.channels)
	cfg.SampleRate = uint32(m.sampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			samples := make([]int16, 0, len(input)/2)
			for i := 0; i+1 < len(input); i += 2 {
				samples = append(samples, int16(uint16(input[i])|uint16(input[i+1])<<8))
			}
			onBlock(samples, nil)
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("failed to init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	m.device = device
	return nil
}

func (m *MalgoInput) Stop() error {
	if m.device == nil {
		return nil
	}
	err := m.device.Stop()
	m.device.Uninit()
	m.device = nil
	return err
}

// Close releases the audio context. Call once on process shutdown.
func (m *MalgoInput) Close() {
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}
}
