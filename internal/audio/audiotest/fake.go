// Package audiotest provides in-memory capture devices for tests.
package audiotest

import (
	"errors"
	"sync"
	"time"

	"medivox/internal/audio"
)

// Device is a fake audio.Device. Streams return Frames in order, then
// ReadErr if set, otherwise silent frames paced at FramePace.
type Device struct {
	OpenErr   error
	Frames    [][]float32
	ReadErr   error
	FramePace time.Duration

	mu     sync.Mutex
	opens  int
	closes int
}

func (d *Device) Open(sampleRate, frameSize int) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.opens++
	pace := d.FramePace
	if pace <= 0 {
		pace = time.Millisecond
	}
	return &stream{dev: d, frames: d.Frames, size: frameSize, pace: pace}, nil
}

// Opens reports how many streams were opened.
func (d *Device) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Closes reports how many times any stream was closed, counting repeats.
func (d *Device) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// Live is the number of opened streams not yet closed.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens - d.closes
}

type stream struct {
	dev    *Device
	frames [][]float32
	size   int
	pace   time.Duration
	next   int
	closed bool
}

func (s *stream) Read() ([]float32, error) {
	if s.closed {
		return nil, errors.New("read on closed stream")
	}
	if s.next < len(s.frames) {
		f := s.frames[s.next]
		s.next++
		return f, nil
	}
	if s.dev.ReadErr != nil {
		return nil, s.dev.ReadErr
	}
	time.Sleep(s.pace)
	return make([]float32, s.size), nil
}

func (s *stream) Close() error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.dev.closes++
	s.closed = true
	return nil
}
