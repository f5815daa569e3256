package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MEDIVOX_API_BASE_URL", "MEDIVOX_SOCKS_PROXY", "MEDIVOX_API_TIMEOUT",
		"MEDIVOX_STT_BACKEND", "OPENAI_API_KEY", "MEDIVOX_OPENAI_MODEL",
		"MEDIVOX_ALLOW_EMPTY_TRANSCRIPT", "MEDIVOX_PROCESS_TIMEOUT",
		"MEDIVOX_SAMPLE_RATE", "MEDIVOX_MAX_RECORDING", "MEDIVOX_BUS_URL",
		"MEDIVOX_BEEP_FILE", "MEDIVOX_SPEAK", "MEDIVOX_LAT", "MEDIVOX_LON", "MEDIVOX_DUCK",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEDIVOX_API_BASE_URL", "https://api.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.API.BaseURL != "https://api.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.API.BaseURL)
	}
	if cfg.STT.Backend != BackendRemote || cfg.STT.AllowEmpty {
		t.Fatalf("unexpected stt defaults: %+v", cfg.STT)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.MaxRecording != 15*time.Second {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.HasLocation() {
		t.Fatal("location must be unset by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEDIVOX_API_BASE_URL", "http://localhost:8000")
	t.Setenv("MEDIVOX_STT_BACKEND", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MEDIVOX_ALLOW_EMPTY_TRANSCRIPT", "yes")
	t.Setenv("MEDIVOX_MAX_RECORDING", "30")
	t.Setenv("MEDIVOX_PROCESS_TIMEOUT", "90s")
	t.Setenv("MEDIVOX_BUS_URL", "ws://localhost:8092/ws")
	t.Setenv("MEDIVOX_SPEAK", "on")
	t.Setenv("MEDIVOX_DUCK", "1")
	t.Setenv("MEDIVOX_LAT", "37.5665")
	t.Setenv("MEDIVOX_LON", "126.978")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.STT.Backend != BackendOpenAI || cfg.STT.OpenAIKey != "sk-test" || !cfg.STT.AllowEmpty {
		t.Fatalf("unexpected stt config: %+v", cfg.STT)
	}
	if cfg.Audio.MaxRecording != 30*time.Second || cfg.STT.ProcessLimit != 90*time.Second {
		t.Fatalf("unexpected durations: %v %v", cfg.Audio.MaxRecording, cfg.STT.ProcessLimit)
	}
	if !cfg.Audio.DuckOthers {
		t.Fatal("expected ducking enabled")
	}
	if !cfg.Cue.Speak || cfg.Bus.URL != "ws://localhost:8092/ws" {
		t.Fatalf("unexpected cue/bus config: %+v %+v", cfg.Cue, cfg.Bus)
	}
	if !cfg.HasLocation() || *cfg.Location.Lat != 37.5665 || *cfg.Location.Lon != 126.978 {
		t.Fatalf("unexpected location: %+v", cfg.Location)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing base url", nil, "MEDIVOX_API_BASE_URL is not set"},
		{"bad scheme", map[string]string{"MEDIVOX_API_BASE_URL": "ftp://x"}, "not an http(s) url"},
		{"openai without key", map[string]string{"MEDIVOX_STT_BACKEND": "openai"}, "OPENAI_API_KEY"},
		{"unknown backend", map[string]string{"MEDIVOX_STT_BACKEND": "whisper"}, "unknown MEDIVOX_STT_BACKEND"},
		{"bad bus url", map[string]string{"MEDIVOX_BUS_URL": "http://hub"}, "not a ws(s) url"},
		{"lat only", map[string]string{"MEDIVOX_LAT": "37.5"}, "set together"},
		{"lat out of range", map[string]string{"MEDIVOX_LAT": "91", "MEDIVOX_LON": "0"}, "out of range"},
		{"lon not a number", map[string]string{"MEDIVOX_LAT": "0", "MEDIVOX_LON": "east"}, "MEDIVOX_LON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if _, ok := tt.env["MEDIVOX_API_BASE_URL"]; !ok && tt.name != "missing base url" {
				t.Setenv("MEDIVOX_API_BASE_URL", "https://api.example.com")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadInvalidNumericValuesFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEDIVOX_API_BASE_URL", "https://api.example.com")
	t.Setenv("MEDIVOX_SAMPLE_RATE", "-5")
	t.Setenv("MEDIVOX_MAX_RECORDING", "forever")
	t.Setenv("MEDIVOX_ALLOW_EMPTY_TRANSCRIPT", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.MaxRecording != 15*time.Second {
		t.Fatalf("expected fallbacks, got %+v", cfg.Audio)
	}
	if cfg.STT.AllowEmpty {
		t.Fatal("unparseable bool must fall back to false")
	}
}
