package flow

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync"

	"medivox/internal/audio"
	"medivox/internal/nlu"
	"medivox/internal/stt"
)

// ErrDiscarded is returned by Stop when the attempt was cancelled while the
// transcription was in flight; its result was dropped.
var ErrDiscarded = errors.New("attempt cancelled, result discarded")

type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateClassifying  State = "classifying"
	StateRouted       State = "routed"
	StateFailed       State = "failed"
)

func (s State) busy() bool {
	return s == StateRecording || s == StateTranscribing || s == StateClassifying
}

// Event describes a state change. Message is user facing; Target is set once
// routed.
type Event struct {
	State      State
	SessionID  string
	Message    string
	Transcript string
	Intent     *nlu.Intent
	Target     *nlu.NavigationTarget
	Err        error
}

// Observer receives every state change in order. Implementations must not
// block or call back into the Flow.
type Observer interface {
	StateChanged(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) StateChanged(ev Event) { f(ev) }

// Outcome is the result of a completed attempt.
type Outcome struct {
	Transcript stt.Transcript
	Intent     nlu.Intent
	Target     nlu.NavigationTarget
}

// Flow drives one voice attempt at a time through capture, transcription,
// classification and routing.
type Flow struct {
	capture     *audio.Capture
	transcriber stt.Transcriber

	mu        sync.Mutex
	observers []Observer
	last      Event
	session   *audio.Session
	gen       uint64
}

func New(capture *audio.Capture, transcriber stt.Transcriber) *Flow {
	return &Flow{
		capture:     capture,
		transcriber: transcriber,
		last:        Event{State: StateIdle},
	}
}

func (f *Flow) Subscribe(o Observer) {
	f.mu.Lock()
	f.observers = append(f.observers, o)
	f.mu.Unlock()
}

// Status returns the latest event.
func (f *Flow) Status() Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Start opens a recording session. Routed and Failed attempts may be
// restarted; an attempt still in progress may not.
func (f *Flow) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.last.State.busy() {
		return fmt.Errorf("%w: flow is %s", audio.ErrInvalidState, f.last.State)
	}

	s, err := f.capture.Start(ctx)
	if err != nil {
		// never entered Recording
		f.emit(Event{State: StateIdle, Message: localizeStart(err), Err: err})
		return err
	}

	f.gen++
	f.session = s
	f.emit(Event{State: StateRecording, SessionID: s.ID, Message: MsgListening})
	go f.watch(s, f.gen)
	return nil
}

// watch fails the attempt when the device gives out while recording.
// Sessions that end by Stop, Cancel or running dry are left to Stop.
func (f *Flow) watch(s *audio.Session, gen uint64) {
	<-s.Done()
	if s.State() != audio.StateFailed {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen != gen || f.session != s {
		return
	}
	f.session = nil

	err := s.Err()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// the caller's context ended the recording
		f.emit(Event{State: StateIdle, SessionID: s.ID, Message: MsgCancelled, Err: err})
		return
	}
	f.emit(Event{State: StateFailed, SessionID: s.ID, Message: localizeRecording(err), Err: err})
}

// Stop ends recording and runs the rest of the pipeline. The transcription
// request is the only step performed without holding the lock.
func (f *Flow) Stop(ctx context.Context) (Outcome, error) {
	f.mu.Lock()
	if f.last.State != StateRecording || f.session == nil {
		state := f.last.State
		f.mu.Unlock()
		return Outcome{}, fmt.Errorf("%w: stop called while %s", audio.ErrInvalidState, state)
	}
	s := f.session
	f.session = nil
	gen := f.gen

	rec, err := s.Stop()
	if err != nil {
		s.Cancel()
		msg := Localize(err)
		if errors.Is(err, audio.ErrInvalidState) {
			msg = MsgStopFailed
		}
		f.emit(Event{State: StateFailed, SessionID: s.ID, Message: msg, Err: err})
		f.mu.Unlock()
		return Outcome{}, err
	}

	f.emit(Event{State: StateTranscribing, SessionID: s.ID, Message: MsgTranscribing})
	f.mu.Unlock()

	log.Info("Transcribing", "session", s.ID, "duration", rec.Duration(), "backend", f.transcriber.Name())
	tr, err := f.transcriber.Transcribe(ctx, rec)

	f.mu.Lock()
	defer f.mu.Unlock()

	if gen != f.gen {
		log.Info("Dropping stale transcription", "session", s.ID)
		return Outcome{}, ErrDiscarded
	}

	if err != nil {
		f.emit(Event{State: StateFailed, SessionID: s.ID, Message: Localize(err), Err: err})
		return Outcome{}, err
	}

	f.emit(Event{State: StateClassifying, SessionID: s.ID, Transcript: tr.Text})
	intent := nlu.Extract(tr.Text)
	target := nlu.Dispatch(intent)

	f.emit(Event{
		State:      StateRouted,
		SessionID:  s.ID,
		Message:    RoutedMessage(intent),
		Transcript: tr.Text,
		Intent:     &intent,
		Target:     &target,
	})

	return Outcome{Transcript: tr, Intent: intent, Target: target}, nil
}

// Cancel abandons the current attempt. The device is released. An in-flight
// transcription is left to finish on its own and its result is ignored.
func (f *Flow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.last.State.busy() {
		return
	}

	f.gen++
	if f.session != nil {
		f.session.Cancel()
		f.session = nil
	}
	f.emit(Event{State: StateIdle, SessionID: f.last.SessionID, Message: MsgCancelled})
}

// Toggle starts when idle and stops when recording, like the single mic
// button of the web client. When it starts, ctx bounds the whole recording.
func (f *Flow) Toggle(ctx context.Context) (Outcome, error) {
	if f.Status().State == StateRecording {
		return f.Stop(ctx)
	}
	return Outcome{}, f.Start(ctx)
}

// emit must be called with f.mu held.
func (f *Flow) emit(ev Event) {
	f.last = ev
	log.Debug("Flow state", "state", ev.State, "session", ev.SessionID, "err", ev.Err)
	for _, o := range f.observers {
		o.StateChanged(ev)
	}
}
