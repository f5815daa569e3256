package audio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice records from the system default input.
type PortAudioDevice struct{}

func NewPortAudioDevice() *PortAudioDevice { return &PortAudioDevice{} }

func (d *PortAudioDevice) Init() error {
	return portaudio.Initialize()
}

func (d *PortAudioDevice) Close() {
	portaudio.Terminate()
}

func (d *PortAudioDevice) Open(sampleRate, frameSize int) (Stream, error) {
	in, err := portaudio.DefaultInputDevice()
	if err != nil || in == nil || in.MaxInputChannels < 1 {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDevice, err)
	}

	buf := make([]float32, frameSize)

	stream, err := portaudio.OpenDefaultStream(
		1, // in
		0, // no out
		float64(sampleRate),
		len(buf),
		buf,
	)
	if err != nil {
		return nil, classify(err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, classify(err)
	}

	return &paStream{stream: stream, buf: buf}, nil
}

// classify maps portaudio host errors onto the capture error taxonomy. Hosts
// that refuse microphone access report the device as unavailable.
func classify(err error) error {
	switch {
	case errors.Is(err, portaudio.DeviceUnavailable):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case errors.Is(err, portaudio.InvalidDevice),
		errors.Is(err, portaudio.InvalidChannelCount),
		errors.Is(err, portaudio.InvalidSampleRate):
		return fmt.Errorf("%w: %v", ErrUnsupportedDevice, err)
	default:
		return err
	}
}

type paStream struct {
	stream *portaudio.Stream
	buf    []float32
}

func (s *paStream) Read() ([]float32, error) {
	if err := s.stream.Read(); err != nil {
		// overflow just means we were slow; the frame is still usable
		if errors.Is(err, portaudio.InputOverflowed) {
			return s.buf, nil
		}
		return nil, err
	}
	return s.buf, nil
}

func (s *paStream) Close() error {
	return errors.Join(s.stream.Stop(), s.stream.Close())
}
