package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"medivox/pkg/audioconv"
)

// FileDevice replays an audio file (wav, mp3, ogg) as if it came from a
// microphone. Each Open decodes the file again.
type FileDevice struct {
	Path string
}

func NewFileDevice(path string) *FileDevice { return &FileDevice{Path: path} }

func (d *FileDevice) Open(sampleRate, frameSize int) (Stream, error) {
	pcm, err := audioconv.DecodeFile(context.Background(), d.Path, audioconv.Options{})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDevice, err)
	}
	if errors.Is(err, fs.ErrPermission) {
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", d.Path, err)
	}

	return &pcmStream{
		pcm:   audioconv.Resample(pcm, audioconv.SampleRate, sampleRate),
		frame: frameSize,
	}, nil
}

type pcmStream struct {
	pcm    []float32
	frame  int
	off    int
	closed bool
}

func (s *pcmStream) Read() ([]float32, error) {
	if s.closed {
		return nil, errors.New("stream closed")
	}
	if s.off >= len(s.pcm) {
		return nil, io.EOF
	}
	end := min(s.off+s.frame, len(s.pcm))
	out := s.pcm[s.off:end]
	s.off = end
	return out, nil
}

func (s *pcmStream) Close() error {
	s.closed = true
	return nil
}
