// Package inbox watches a directory for dropped recordings.
package inbox

import (
	"context"
	"fmt"
	log "log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Extensions lists the audio files picked up, matching what audioconv decodes.
var Extensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".ogg":  true,
	".opus": true,
}

// Watch calls handle once per audio file created in dir, after writes to it
// have been quiet for settle. handle runs on the watching goroutine. Watch
// returns when ctx is done.
func Watch(ctx context.Context, dir string, settle time.Duration, handle func(path string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Info("Watching inbox", "dir", dir)

	pending := make(map[string]*time.Timer)
	ready := make(chan string)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !Extensions[strings.ToLower(filepath.Ext(ev.Name))] {
				continue
			}
			if t, ok := pending[ev.Name]; ok {
				t.Reset(settle)
				continue
			}
			name := ev.Name
			pending[name] = time.AfterFunc(settle, func() {
				select {
				case ready <- name:
				case <-ctx.Done():
				}
			})

		case name := <-ready:
			if _, ok := pending[name]; !ok {
				continue
			}
			delete(pending, name)
			handle(name)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("Inbox watcher error", "err", err)
		}
	}
}
