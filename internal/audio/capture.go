package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"medivox/pkg/audioconv"
)

var (
	ErrPermissionDenied  = errors.New("microphone access denied")
	ErrUnsupportedDevice = errors.New("no audio capture device")
	ErrInvalidState      = errors.New("invalid recording state")
)

// State is the lifecycle of a single recording session.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stream is an open input stream delivering mono float32 frames.
// Read may return io.EOF once the source is exhausted.
type Stream interface {
	Read() ([]float32, error)
	Close() error
}

// Device opens input streams. Open reports ErrPermissionDenied or
// ErrUnsupportedDevice (possibly wrapped) when capture is not possible.
type Device interface {
	Open(sampleRate, frameSize int) (Stream, error)
}

type Options struct {
	SampleRate  int
	FrameSize   int
	MaxDuration time.Duration
}

// Capture hands out recording sessions, one at a time.
type Capture struct {
	dev Device
	opt Options

	mu     sync.Mutex
	active *Session
}

func NewCapture(dev Device, opt Options) *Capture {
	if opt.SampleRate <= 0 {
		opt.SampleRate = audioconv.SampleRate
	}
	if opt.FrameSize <= 0 {
		opt.FrameSize = 320 // 20ms
	}
	if opt.MaxDuration <= 0 {
		opt.MaxDuration = 15 * time.Second
	}
	return &Capture{dev: dev, opt: opt}
}

// Start opens the device and begins buffering. It fails with ErrInvalidState
// while another session is still recording.
func (c *Capture) Start(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, fmt.Errorf("%w: session %s is still recording", ErrInvalidState, c.active.ID)
	}
	if c.dev == nil {
		return nil, ErrUnsupportedDevice
	}

	stream, err := c.dev.Open(c.opt.SampleRate, c.opt.FrameSize)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	s := &Session{
		ID:         uuid.NewString(),
		capture:    c,
		stream:     stream,
		sampleRate: c.opt.SampleRate,
		maxSamples: int(float64(c.opt.SampleRate) * c.opt.MaxDuration.Seconds()),
		state:      StateRecording,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	c.active = s

	log.Debug("Recording started", "session", s.ID)
	go s.run(ctx)

	return s, nil
}

// Active returns the session currently holding the device, if any.
func (c *Capture) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Capture) detach(s *Session) {
	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.mu.Unlock()
}

// Session owns the device stream from Start until the reader exits.
type Session struct {
	ID string

	capture    *Capture
	stream     Stream
	sampleRate int
	maxSamples int

	mu       sync.Mutex
	state    State
	err      error
	stopping bool
	pcm      []float32

	stop        chan struct{}
	stopOnce    sync.Once
	done        chan struct{}
	releaseOnce sync.Once
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the reason a failed session failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the device has been released, whether because of Stop,
// Cancel, a read error, the source running dry or the length cap.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stop finalizes the buffered audio. Only the first call succeeds.
func (s *Session) Stop() (Recording, error) {
	s.mu.Lock()
	if s.state != StateRecording || s.stopping {
		state, err := s.state, s.err
		s.mu.Unlock()
		if state == StateFailed && err != nil {
			return Recording{}, err
		}
		return Recording{}, fmt.Errorf("%w: stop called in state %s", ErrInvalidState, state)
	}
	s.stopping = true
	s.mu.Unlock()

	s.signalStop()
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFailed {
		return Recording{}, s.err
	}
	s.state = StateStopped
	s.capture.detach(s)

	rec := Recording{
		SessionID:  s.ID,
		SampleRate: s.sampleRate,
		PCM:        s.pcm,
	}
	s.pcm = nil

	log.Debug("Recording stopped", "session", s.ID, "samples", len(rec.PCM))
	return rec, nil
}

// Cancel tears the session down from any state, discarding the buffer.
// It is safe to call repeatedly and after Stop.
func (s *Session) Cancel() {
	s.signalStop()
	<-s.done

	s.mu.Lock()
	if s.state == StateRecording && !s.stopping {
		s.state = StateFailed
		s.err = context.Canceled
		s.pcm = nil
	}
	s.mu.Unlock()

	if s.State() != StateRecording {
		s.capture.detach(s)
	}
}

func (s *Session) signalStop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.release()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			s.fail(ctx.Err())
			return
		default:
		}

		frame, err := s.stream.Read()
		if errors.Is(err, io.EOF) {
			s.append(frame)
			return
		}
		if err != nil {
			s.fail(fmt.Errorf("read audio: %w", err))
			return
		}

		if full := s.append(frame); full {
			log.Info("Recording reached length limit", "session", s.ID)
			return
		}
	}
}

func (s *Session) append(frame []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pcm = append(s.pcm, frame...)
	if s.maxSamples > 0 && len(s.pcm) >= s.maxSamples {
		s.pcm = s.pcm[:s.maxSamples]
		return true
	}
	return false
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state == StateRecording {
		s.state = StateFailed
		s.err = err
		s.pcm = nil
	}
	s.mu.Unlock()

	log.Warn("Recording failed", "session", s.ID, "err", err)
	s.capture.detach(s)
}

func (s *Session) release() {
	s.releaseOnce.Do(func() {
		if err := s.stream.Close(); err != nil {
			log.Warn("Failed to close input stream", "session", s.ID, "err", err)
		}
	})
}

// Recording is the finalized waveform of a stopped session.
type Recording struct {
	SessionID  string
	SampleRate int
	PCM        []float32
}

func (r Recording) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(r.PCM)) * time.Second / time.Duration(r.SampleRate)
}

// WAV encodes the recording as a 16-bit mono RIFF/WAV file.
func (r Recording) WAV() ([]byte, error) {
	return audioconv.EncodeWAV(r.PCM, r.SampleRate)
}
