package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"medivox/internal/audio"
)

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // optional, for compatible gateways
	Model      string // default whisper-1
	Language   string // default ko
	AllowEmpty bool
	HTTPClient *http.Client
}

// OpenAI transcribes through the OpenAI audio API.
type OpenAI struct {
	client     openai.Client
	model      openai.AudioModel
	language   string
	allowEmpty bool
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = string(openai.AudioModelWhisper1)
	}
	if cfg.Language == "" {
		cfg.Language = "ko"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAI{
		client:     openai.NewClient(opts...),
		model:      openai.AudioModel(cfg.Model),
		language:   cfg.Language,
		allowEmpty: cfg.AllowEmpty,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Transcribe(ctx context.Context, rec audio.Recording) (Transcript, error) {
	wav, err := rec.WAV()
	if err != nil {
		return Transcript{}, fmt.Errorf("encode recording: %w", err)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:     openai.File(bytes.NewReader(wav), uploadName, "audio/wav"),
		Model:    o.model,
		Language: openai.String(o.language),
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return Transcript{}, ctx.Err()
		}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			detail := apiErr.Message
			if detail == "" {
				detail = http.StatusText(apiErr.StatusCode)
			}
			return Transcript{}, &ServerError{Status: apiErr.StatusCode, Detail: detail}
		}
		return Transcript{}, &NetworkError{Err: err}
	}

	log.Debug("OpenAI transcription ready", "session", rec.SessionID, "model", o.model)

	if strings.TrimSpace(resp.Text) == "" && !o.allowEmpty {
		return Transcript{}, ErrEmptyTranscript
	}
	return Transcript{
		Text:      resp.Text,
		SessionID: rec.SessionID,
		Backend:   o.Name(),
	}, nil
}

var _ Transcriber = (*OpenAI)(nil)
