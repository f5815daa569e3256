package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"medivox/internal/audio"
	"medivox/internal/backend"
	"medivox/internal/bus"
	"medivox/internal/config"
	"medivox/internal/daemon"
	"medivox/internal/flow"
	"medivox/internal/ipc"
	"medivox/internal/notify"
	"medivox/internal/proxy"
	"medivox/internal/stt"
	"medivox/internal/tts"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	if err := godotenv.Load(*envFile); err != nil {
		log.Debug("No env file loaded", "path", *envFile, "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	httpClient, err := proxy.NewHTTPClient(cfg.API.SocksProxy, cfg.API.Timeout)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.API.SocksProxy, "err", err)
		os.Exit(1)
	}

	log.Debug("Loaded http client", "proxy", cfg.API.SocksProxy != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mic := audio.NewPortAudioDevice()
	if err := mic.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer mic.Close()

	log.Debug("Loaded recorder")

	capture := audio.NewCapture(mic, audio.Options{
		SampleRate:  cfg.Audio.SampleRate,
		MaxDuration: cfg.Audio.MaxRecording,
	})
	f := flow.New(capture, newTranscriber(cfg, httpClient))

	be := backend.New(cfg.API.BaseURL, httpClient)
	if cfg.HasLocation() {
		be.NotifyLocation(backend.Location{Lat: *cfg.Location.Lat, Lon: *cfg.Location.Lon})
	}

	opt := daemon.Options{
		Lat:            cfg.Location.Lat,
		Lon:            cfg.Location.Lon,
		ProcessTimeout: cfg.STT.ProcessLimit,
	}
	if cfg.Cue.BeepFile != "" {
		opt.Cue = func() error { return notify.Cue(cfg.Cue.BeepFile) }
	}
	if cfg.Audio.DuckOthers {
		opt.Ducker = audio.NewDucker("medivox", "espeak")
	}
	if cfg.Cue.Speak {
		opt.Speak = func(text string) error { return tts.Speak(text, tts.DefaultLanguage) }
	}
	d := daemon.New(ctx, f, be, opt)

	if cfg.Bus.URL != "" {
		b, err := bus.Dial(cfg.Bus.URL, "medivox", 0)
		if err != nil {
			log.Warn("Bus unavailable, continuing without it", "url", cfg.Bus.URL, "err", err)
		} else {
			f.Subscribe(b)
			go b.Run(ctx)
		}
	}

	ln, err := ipc.StartServer(*socket, d.Handle)
	if err != nil {
		log.Error("Failed ipc server", "socket", *socket, "err", err)
		os.Exit(1)
	}
	defer ln.Close()

	log.Info("Boot up - successful", "socket", *socket, "stt", cfg.STT.Backend)

	<-ctx.Done()

	log.Info("Shutting down")
	f.Cancel()
	d.Wait()
}

func newTranscriber(cfg config.Config, hc *http.Client) stt.Transcriber {
	if cfg.STT.Backend == config.BackendOpenAI {
		return stt.NewOpenAI(stt.OpenAIConfig{
			APIKey:     cfg.STT.OpenAIKey,
			Model:      cfg.STT.OpenAIModel,
			AllowEmpty: cfg.STT.AllowEmpty,
			HTTPClient: hc,
		})
	}
	return stt.NewRemote(stt.Config{
		BaseURL:    cfg.API.BaseURL,
		AllowEmpty: cfg.STT.AllowEmpty,
		HTTPClient: hc,
	})
}
