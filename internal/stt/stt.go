package stt

import (
	"context"
	"errors"
	"fmt"

	"medivox/internal/audio"
)

// ErrEmptyTranscript means the backend answered but recognized no text.
var ErrEmptyTranscript = errors.New("no transcribed text in response")

// Transcript is the text recognized from one recording.
type Transcript struct {
	Text      string
	SessionID string
	Backend   string
}

// Transcriber turns a finished recording into text. Implementations issue at
// most one request per call and never retry.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, rec audio.Recording) (Transcript, error)
}

// NetworkError means the request never produced a response.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError means the backend was reached and reported a failure.
type ServerError struct {
	Status int
	Detail string
}

func (e *ServerError) Error() string {
	if e.Status == 0 {
		return "server error: " + e.Detail
	}
	return fmt.Sprintf("server error %d: %s", e.Status, e.Detail)
}

// transportError classifies a failed round trip. A caller cancelling is
// returned as is; an expired deadline is reported as a network problem.
func transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return &NetworkError{Err: err}
}
