package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendRemote = "remote"
	BackendOpenAI = "openai"
)

// Config is the daemon's runtime configuration.
type Config struct {
	API      APIConfig
	STT      STTConfig
	Audio    AudioConfig
	Bus      BusConfig
	Location LocationConfig
	Cue      CueConfig
}

type APIConfig struct {
	BaseURL    string
	SocksProxy string
	Timeout    time.Duration
}

type STTConfig struct {
	Backend      string
	OpenAIKey    string
	OpenAIModel  string
	AllowEmpty   bool
	ProcessLimit time.Duration
}

type AudioConfig struct {
	SampleRate   int
	MaxRecording time.Duration
	DuckOthers   bool
}

type BusConfig struct {
	URL string
}

// LocationConfig holds the fixed position reported to the backend. Both
// fields are nil unless set.
type LocationConfig struct {
	Lat *float64
	Lon *float64
}

type CueConfig struct {
	BeepFile string
	Speak    bool
}

// Load resolves configuration from environment variables and defaults.
func Load() (Config, error) {
	cfg := Config{
		API: APIConfig{
			BaseURL:    strings.TrimRight(strings.TrimSpace(os.Getenv("MEDIVOX_API_BASE_URL")), "/"),
			SocksProxy: strings.TrimSpace(os.Getenv("MEDIVOX_SOCKS_PROXY")),
			Timeout:    envOrDefaultDuration("MEDIVOX_API_TIMEOUT", 60*time.Second),
		},
		STT: STTConfig{
			Backend:      strings.ToLower(envOrDefault("MEDIVOX_STT_BACKEND", BackendRemote)),
			OpenAIKey:    strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			OpenAIModel:  envOrDefault("MEDIVOX_OPENAI_MODEL", "whisper-1"),
			AllowEmpty:   envOrDefaultBool("MEDIVOX_ALLOW_EMPTY_TRANSCRIPT", false),
			ProcessLimit: envOrDefaultDuration("MEDIVOX_PROCESS_TIMEOUT", 60*time.Second),
		},
		Audio: AudioConfig{
			SampleRate:   envOrDefaultInt("MEDIVOX_SAMPLE_RATE", 16000),
			MaxRecording: envOrDefaultDuration("MEDIVOX_MAX_RECORDING", 15*time.Second),
			DuckOthers:   envOrDefaultBool("MEDIVOX_DUCK", false),
		},
		Bus: BusConfig{
			URL: strings.TrimSpace(os.Getenv("MEDIVOX_BUS_URL")),
		},
		Cue: CueConfig{
			BeepFile: strings.TrimSpace(os.Getenv("MEDIVOX_BEEP_FILE")),
			Speak:    envOrDefaultBool("MEDIVOX_SPEAK", false),
		},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.MaxRecording <= 0 {
		cfg.Audio.MaxRecording = 15 * time.Second
	}

	lat, err := envFloat("MEDIVOX_LAT", -90, 90)
	if err != nil {
		return Config{}, err
	}
	lon, err := envFloat("MEDIVOX_LON", -180, 180)
	if err != nil {
		return Config{}, err
	}
	if (lat == nil) != (lon == nil) {
		return Config{}, errors.New("MEDIVOX_LAT and MEDIVOX_LON must be set together")
	}
	cfg.Location = LocationConfig{Lat: lat, Lon: lon}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("MEDIVOX_API_BASE_URL is not set")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("MEDIVOX_API_BASE_URL %q is not an http(s) url", c.API.BaseURL)
	}

	switch c.STT.Backend {
	case BackendRemote:
	case BackendOpenAI:
		if c.STT.OpenAIKey == "" {
			return errors.New("OPENAI_API_KEY not set")
		}
	default:
		return fmt.Errorf("unknown MEDIVOX_STT_BACKEND %q", c.STT.Backend)
	}

	if c.Bus.URL != "" {
		u, err := url.Parse(c.Bus.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("MEDIVOX_BUS_URL %q is not a ws(s) url", c.Bus.URL)
		}
	}
	return nil
}

// HasLocation reports whether a fixed position is configured.
func (c Config) HasLocation() bool {
	return c.Location.Lat != nil && c.Location.Lon != nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// envOrDefaultDuration accepts Go durations ("15s") or plain seconds.
func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envFloat(key string, min, max float64) (*float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if f < min || f > max {
		return nil, fmt.Errorf("%s %v out of range [%v, %v]", key, f, min, max)
	}
	return &f, nil
}
