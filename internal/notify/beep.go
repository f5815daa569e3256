package notify

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

var (
	initOnce sync.Once
	initErr  error
	rate     beep.SampleRate
)

// Cue plays the mp3 at path once and blocks until playback ends. An empty
// path is a no-op so callers can leave the cue unconfigured.
func Cue(path string) error {
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open cue: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode cue: %w", err)
	}
	defer streamer.Close()

	initOnce.Do(func() {
		rate = format.SampleRate
		initErr = speaker.Init(rate, rate.N(time.Second/10))
	})
	if initErr != nil {
		return fmt.Errorf("speaker init: %w", initErr)
	}

	var s beep.Streamer = streamer
	if format.SampleRate != rate {
		s = beep.Resample(4, format.SampleRate, rate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}
