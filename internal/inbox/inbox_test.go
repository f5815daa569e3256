package inbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatch_PicksUpAudioOnce(t *testing.T) {
	dir := t.TempDir()
	got := make(chan string, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, 100*time.Millisecond, func(p string) { got <- p })
	}()
	// let the watcher register before writing
	time.Sleep(100 * time.Millisecond)

	wav := filepath.Join(dir, "memo.WAV")
	f, err := os.Create(wav)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		f.Write([]byte("RIFF"))
		time.Sleep(10 * time.Millisecond)
	}
	f.Close()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-got:
		if p != wav {
			t.Errorf("expected %s, got %s", wav, p)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("audio file never handled")
	}

	select {
	case p := <-got:
		t.Errorf("expected a single callback, got another for %s", p)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("watch returned %v", err)
	}
}

func TestWatch_MissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope"), time.Millisecond, func(string) {})
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
