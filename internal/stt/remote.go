package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"medivox/internal/audio"
)

const (
	DefaultPath = "/stt/voice-to-keywords?method=gpt"
	uploadName  = "recording.wav"
)

type Config struct {
	BaseURL string
	Path    string        // default DefaultPath
	Timeout time.Duration // default 60s, ignored when HTTPClient is set

	// AllowEmpty returns a blank successful transcript instead of
	// ErrEmptyTranscript, so it routes as an empty symptom search.
	AllowEmpty bool

	HTTPClient *http.Client
}

// Remote uploads recordings to the project speech-to-text backend.
type Remote struct {
	cfg    Config
	client *http.Client
}

func NewRemote(cfg Config) *Remote {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Remote{cfg: cfg, client: client}
}

func (r *Remote) Name() string { return "remote" }

// sttResponse mirrors the backend JSON. Detail is left raw because error
// handlers may send a list of validation issues instead of a string.
type sttResponse struct {
	Result       bool            `json:"result"`
	OriginalText string          `json:"original_text"`
	Detail       json.RawMessage `json:"detail"`
}

func (r *Remote) Transcribe(ctx context.Context, rec audio.Recording) (Transcript, error) {
	wav, err := rec.WAV()
	if err != nil {
		return Transcript{}, fmt.Errorf("encode recording: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", uploadName)
	if err != nil {
		return Transcript{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return Transcript{}, fmt.Errorf("write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Transcript{}, fmt.Errorf("close multipart: %w", err)
	}

	url := strings.TrimRight(r.cfg.BaseURL, "/") + r.cfg.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return Transcript{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	log.Debug("Uploading recording", "session", rec.SessionID, "bytes", len(wav), "url", url)

	resp, err := r.client.Do(req)
	if err != nil {
		return Transcript{}, transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcript{}, transportError(ctx, fmt.Errorf("read response body: %w", err))
	}

	var parsed sttResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := detailText(parsed.Detail)
		if decodeErr != nil || detail == "" {
			detail = fmt.Sprintf("HTTP 오류! 상태 코드: %d", resp.StatusCode)
		}
		return Transcript{}, &ServerError{Status: resp.StatusCode, Detail: detail}
	}
	if decodeErr != nil {
		return Transcript{}, &ServerError{Status: resp.StatusCode, Detail: "decode response: " + decodeErr.Error()}
	}

	if !parsed.Result {
		if detail := detailText(parsed.Detail); detail != "" {
			return Transcript{}, &ServerError{Status: resp.StatusCode, Detail: detail}
		}
		return Transcript{}, ErrEmptyTranscript
	}
	if strings.TrimSpace(parsed.OriginalText) == "" && !r.cfg.AllowEmpty {
		return Transcript{}, ErrEmptyTranscript
	}

	return Transcript{
		Text:      parsed.OriginalText,
		SessionID: rec.SessionID,
		Backend:   r.Name(),
	}, nil
}

func detailText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return truncate(raw, 200)
}

// truncate shortens b to at most n bytes without splitting a rune.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return string(b[:n]) + "..."
}

var _ Transcriber = (*Remote)(nil)

// IsNetwork reports whether err came from the transport rather than the
// backend, which changes what the user should try next.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
