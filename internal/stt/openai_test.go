package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAI_Transcribe(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("expected model whisper-1, got %q", got)
		}
		if got := r.FormValue("language"); got != "ko" {
			t.Errorf("expected language ko, got %q", got)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("expected file part: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text": "서울대학교병원 가는 길 알려주세요"}`)
	}))
	defer ts.Close()

	o := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: ts.URL + "/"})
	tr, err := o.Transcribe(context.Background(), testRecording())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "서울대학교병원 가는 길 알려주세요" {
		t.Errorf("unexpected text %q", tr.Text)
	}
	if tr.Backend != "openai" {
		t.Errorf("expected backend openai, got %q", tr.Backend)
	}
}

func TestOpenAI_APIErrorIsServerError(t *testing.T) {
	ts := jsonServer(t, http.StatusUnauthorized, `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`)

	o := NewOpenAI(OpenAIConfig{APIKey: "bad", BaseURL: ts.URL + "/"})
	_, err := o.Transcribe(context.Background(), testRecording())

	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected *ServerError, got %T: %v", err, err)
	}
	if se.Status != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", se.Status)
	}
}

func TestOpenAI_EmptyText(t *testing.T) {
	ts := jsonServer(t, http.StatusOK, `{"text": ""}`)

	o := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: ts.URL + "/"})
	if _, err := o.Transcribe(context.Background(), testRecording()); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
}
