package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"medivox/internal/audio"
	"medivox/internal/audio/audiotest"
	"medivox/internal/backend"
	"medivox/internal/flow"
	"medivox/internal/ipc"
	"medivox/internal/nlu"
	"medivox/internal/stt"
)

type fakeTranscriber struct{ text string }

func (f fakeTranscriber) Name() string { return "fake" }

func (f fakeTranscriber) Transcribe(ctx context.Context, rec audio.Recording) (stt.Transcript, error) {
	return stt.Transcript{Text: f.text, SessionID: rec.SessionID, Backend: "fake"}, nil
}

type server struct {
	searches  chan string
	feedbacks chan backend.Feedback
}

func newServer(t *testing.T) (*backend.Client, *server) {
	t.Helper()
	s := &server{searches: make(chan string, 4), feedbacks: make(chan backend.Feedback, 4)}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/hospitals":
			s.searches <- r.URL.Query().Get("symptom")
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `[{"name": "서울신경과의원", "address": "서울시 강남구"}, {"name": "브레인클리닉"}]`)
		case "/api/feedback":
			var fb backend.Feedback
			_ = json.NewDecoder(r.Body).Decode(&fb)
			s.feedbacks <- fb
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)
	return backend.New(ts.URL, nil), s
}

func newDaemon(t *testing.T, text string, opt Options) (*Daemon, *server) {
	t.Helper()
	be, srv := newServer(t)
	dev := &audiotest.Device{Frames: [][]float32{{0.1, 0.2}}}
	f := flow.New(audio.NewCapture(dev, audio.Options{}), fakeTranscriber{text: text})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, f, be, opt), srv
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
		var zero T
		return zero
	}
}

func TestDaemon_SymptomSearchAndFeedback(t *testing.T) {
	cues := make(chan struct{}, 1)
	spoken := make(chan string, 4)
	d, srv := newDaemon(t, "머리가 아파요", Options{
		Cue:   func() error { cues <- struct{}{}; return nil },
		Speak: func(s string) error { spoken <- s; return nil },
	})

	if r := d.Handle(ipc.ControlMessage{Cmd: ipc.CmdStart}); !r.OK || r.State != "recording" {
		t.Fatalf("unexpected start reply %+v", r)
	}
	recv(t, cues)

	r := d.Handle(ipc.ControlMessage{Cmd: ipc.CmdStop})
	if !r.OK || r.State != "routed" {
		t.Fatalf("unexpected stop reply %+v", r)
	}
	if want := nlu.DispatchSymptom("머리가 아파요", "").String(); r.Target != want {
		t.Errorf("expected target %q, got %q", want, r.Target)
	}

	if got := recv(t, srv.searches); got != "머리가 아파요" {
		t.Errorf("expected symptom search, got %q", got)
	}
	d.Wait()
	if len(d.Results()) != 2 || d.LastHospital().Name != "서울신경과의원" {
		t.Fatalf("unexpected results %+v", d.Results())
	}
	said := map[string]bool{recv(t, spoken): true, recv(t, spoken): true}
	if !said[r.Message] || !said[d.LastHospital().Summary()] {
		t.Errorf("expected routed message and top result spoken, got %v", said)
	}

	st := d.Handle(ipc.ControlMessage{Cmd: ipc.CmdStatus})
	if len(st.Hospitals) != 2 || st.Hospitals[0] != "서울신경과의원 (서울시 강남구)" {
		t.Errorf("expected search results in status, got %q", st.Hospitals)
	}

	fr := d.Handle(ipc.ControlMessage{Cmd: ipc.CmdFeedback, Arg: "like"})
	if !fr.OK {
		t.Fatalf("feedback rejected: %+v", fr)
	}
	fb := recv(t, srv.feedbacks)
	if fb.Hospital != "서울신경과의원" || fb.Address != "서울시 강남구" || fb.Verdict != backend.VerdictLike {
		t.Errorf("unexpected feedback %+v", fb)
	}
}

func TestDaemon_HospitalRouteSkipsSearch(t *testing.T) {
	d, srv := newDaemon(t, "서울대학교병원 가는 길 알려주세요", Options{})

	d.Handle(ipc.ControlMessage{Cmd: ipc.CmdToggle})
	r := d.Handle(ipc.ControlMessage{Cmd: ipc.CmdToggle})
	if !r.OK || r.Target != nlu.ForHospital("서울대학교병원", "").String() {
		t.Fatalf("unexpected toggle reply %+v", r)
	}
	d.Wait()
	if d.LastHospital().Name != "서울대학교병원" {
		t.Errorf("expected last hospital from route, got %+v", d.LastHospital())
	}
	select {
	case s := <-srv.searches:
		t.Errorf("directions must not search, got %q", s)
	default:
	}

	d.Handle(ipc.ControlMessage{Cmd: ipc.CmdFeedback, Arg: "dislike", Hospital: "다른병원"})
	if fb := recv(t, srv.feedbacks); fb.Hospital != "다른병원" || fb.Verdict != backend.VerdictDislike {
		t.Errorf("unexpected feedback %+v", fb)
	}
}

func TestDaemon_RefusedCommands(t *testing.T) {
	d, _ := newDaemon(t, "두통", Options{})

	r := d.Handle(ipc.ControlMessage{Cmd: ipc.CmdStop})
	if r.OK || r.State != "idle" || r.Message != msgNotRecording {
		t.Errorf("unexpected stop-without-start reply %+v", r)
	}

	d.Handle(ipc.ControlMessage{Cmd: ipc.CmdStart})
	r = d.Handle(ipc.ControlMessage{Cmd: ipc.CmdStart})
	if r.OK || r.State != "recording" || r.Message != flow.MsgBusy {
		t.Errorf("unexpected second start reply %+v", r)
	}

	r = d.Handle(ipc.ControlMessage{Cmd: ipc.CmdCancel})
	if !r.OK || r.State != "idle" || r.Message != flow.MsgCancelled {
		t.Errorf("unexpected cancel reply %+v", r)
	}

	if r := d.Handle(ipc.ControlMessage{Cmd: "dance"}); r.OK || r.Error == "" {
		t.Errorf("unknown command must fail, got %+v", r)
	}
	if r := d.Handle(ipc.ControlMessage{Cmd: ipc.CmdFeedback, Arg: "meh"}); r.OK {
		t.Errorf("bad verdict must fail, got %+v", r)
	}
	if r := d.Handle(ipc.ControlMessage{Cmd: ipc.CmdFeedback, Arg: "like"}); r.OK {
		t.Errorf("feedback without a hospital must fail, got %+v", r)
	}
}

type duckLog struct{ calls chan string }

func (l duckLog) Duck(context.Context) error    { l.calls <- "duck"; return nil }
func (l duckLog) Restore(context.Context) error { l.calls <- "restore"; return nil }

func TestDaemon_DucksWhileRecording(t *testing.T) {
	l := duckLog{calls: make(chan string, 4)}
	d, _ := newDaemon(t, "서울대학교병원", Options{Ducker: l})

	d.Handle(ipc.ControlMessage{Cmd: ipc.CmdStart})
	if got := recv(t, l.calls); got != "duck" {
		t.Fatalf("expected duck, got %q", got)
	}
	d.Handle(ipc.ControlMessage{Cmd: ipc.CmdCancel})
	if got := recv(t, l.calls); got != "restore" {
		t.Fatalf("expected restore, got %q", got)
	}
}
