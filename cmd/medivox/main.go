package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"medivox/internal/audio"
	"medivox/internal/backend"
	"medivox/internal/config"
	"medivox/internal/flow"
	"medivox/internal/inbox"
	"medivox/internal/nlu"
	"medivox/internal/proxy"
	"medivox/internal/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

type result struct {
	File       string               `json:"file,omitempty"`
	Transcript string               `json:"transcript"`
	Intent     string               `json:"intent"`
	Target     nlu.NavigationTarget `json:"target"`
	URL        string               `json:"url"`
	Hospitals  []backend.Hospital   `json:"hospitals,omitempty"`
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	file := cli.StringP("file", "f", "", "Audio file to transcribe (wav, mp3, ogg)")
	text := cli.StringP("text", "t", "", "Classify this text instead of audio")
	watch := cli.StringP("watch", "w", "", "Classify every recording dropped into this directory")
	severity := cli.String("severity", "", "Severity for symptom searches")
	search := cli.Bool("search", false, "Query the backend for hospitals on symptom targets")
	logLevel := cli.StringP("log", "l", "warn", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	modes := 0
	for _, v := range []string{*file, *text, *watch} {
		if v != "" {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintln(os.Stderr, "exactly one of --file, --text or --watch is required")
		os.Exit(2)
	}
	if *severity != "" && !validSeverity(*severity) {
		fmt.Fprintf(os.Stderr, "severity must be one of %q\n", nlu.Severities)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config.Config
	if *text == "" || *search {
		_ = godotenv.Load(*envFile)
		var err error
		if cfg, err = config.Load(); err != nil {
			log.Error("Invalid configuration", "err", err)
			os.Exit(1)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	run := func(path, transcript string) error {
		if path != "" {
			tr, err := transcribeFile(ctx, cfg, path)
			if err != nil {
				fmt.Fprintln(os.Stderr, flow.Localize(err))
				log.Error("Failed to transcribe", "file", path, "err", err)
				return err
			}
			transcript = tr
		}
		res, err := classify(ctx, cfg, transcript, *severity, *search)
		if err != nil {
			log.Error("Hospital search failed", "err", err)
			return err
		}
		res.File = path
		return enc.Encode(res)
	}

	if *watch != "" {
		err := inbox.Watch(ctx, *watch, 500*time.Millisecond, func(path string) {
			_ = run(path, "")
		})
		if err != nil {
			log.Error("Inbox failed", "dir", *watch, "err", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*file, *text); err != nil {
		os.Exit(1)
	}
}

func classify(ctx context.Context, cfg config.Config, transcript, severity string, search bool) (result, error) {
	res := result{Transcript: transcript}

	intent := nlu.Extract(transcript)
	res.Intent = intent.String()
	res.Target = nlu.Dispatch(intent)
	if intent.Kind == nlu.KindSymptom && severity != "" {
		res.Target = nlu.DispatchSymptom(intent.SymptomQuery, severity)
	}
	res.URL = res.Target.String()

	if !search || intent.Kind != nlu.KindSymptom {
		return res, nil
	}

	hc, err := proxy.NewHTTPClient(cfg.API.SocksProxy, cfg.API.Timeout)
	if err != nil {
		return res, err
	}
	hs, err := backend.New(cfg.API.BaseURL, hc).SearchHospitals(ctx, backend.Query{
		Lat:      cfg.Location.Lat,
		Lon:      cfg.Location.Lon,
		Symptom:  intent.SymptomQuery,
		Severity: severity,
	})
	if err != nil {
		return res, err
	}
	res.Hospitals = hs
	return res, nil
}

// transcribeFile replays path through the same capture and flow the daemon
// uses for the microphone.
func transcribeFile(ctx context.Context, cfg config.Config, path string) (string, error) {
	hc, err := proxy.NewHTTPClient(cfg.API.SocksProxy, cfg.API.Timeout)
	if err != nil {
		return "", err
	}

	var tr stt.Transcriber = stt.NewRemote(stt.Config{
		BaseURL:    cfg.API.BaseURL,
		AllowEmpty: cfg.STT.AllowEmpty,
		HTTPClient: hc,
	})
	if cfg.STT.Backend == config.BackendOpenAI {
		tr = stt.NewOpenAI(stt.OpenAIConfig{
			APIKey:     cfg.STT.OpenAIKey,
			Model:      cfg.STT.OpenAIModel,
			AllowEmpty: cfg.STT.AllowEmpty,
			HTTPClient: hc,
		})
	}

	capture := audio.NewCapture(audio.NewFileDevice(path), audio.Options{MaxDuration: cfg.Audio.MaxRecording})
	f := flow.New(capture, tr)
	f.Subscribe(flow.ObserverFunc(func(ev flow.Event) {
		if ev.Message != "" {
			log.Info(ev.Message, "state", ev.State, "file", path)
		}
	}))
	if err := f.Start(ctx); err != nil {
		return "", err
	}
	if s := capture.Active(); s != nil {
		<-s.Done()
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.STT.ProcessLimit)
	defer cancel()
	out, err := f.Stop(ctx)
	if err != nil {
		return "", err
	}
	return out.Transcript.Text, nil
}

func validSeverity(s string) bool {
	for _, v := range nlu.Severities {
		if v == s {
			return true
		}
	}
	return false
}
