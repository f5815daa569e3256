package daemon

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"medivox/internal/audio"
	"medivox/internal/backend"
	"medivox/internal/flow"
	"medivox/internal/ipc"
	"medivox/internal/nlu"
)

type Options struct {
	Lat, Lon *float64

	// ProcessTimeout bounds transcription after stop. Default 60s.
	ProcessTimeout time.Duration

	// Cue is played when recording starts and Speak reads user facing
	// messages aloud. Both are optional.
	Cue   func() error
	Speak func(string) error

	// Ducker, when set, quiets other playback while recording.
	Ducker Ducker
}

type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

// Daemon answers control commands and reacts to flow events.
type Daemon struct {
	ctx     context.Context
	flow    *flow.Flow
	backend *backend.Client
	opt     Options

	mu       sync.Mutex
	hospital backend.Hospital
	results  []backend.Hospital
	searches sync.WaitGroup

	duckq chan bool
}

func New(ctx context.Context, f *flow.Flow, be *backend.Client, opt Options) *Daemon {
	if opt.ProcessTimeout <= 0 {
		opt.ProcessTimeout = 60 * time.Second
	}
	d := &Daemon{ctx: ctx, flow: f, backend: be, opt: opt}
	if opt.Ducker != nil {
		d.duckq = make(chan bool, 8)
		go d.ducking()
	}
	f.Subscribe(d)
	return d
}

// Handle executes one control command.
func (d *Daemon) Handle(msg ipc.ControlMessage) ipc.Reply {
	log.Debug("Control command", "cmd", msg.Cmd, "arg", msg.Arg)

	switch msg.Cmd {
	case ipc.CmdStart:
		return d.reply(d.flow.Start(d.ctx), nil, flow.MsgBusy)
	case ipc.CmdStop:
		ctx, cancel := context.WithTimeout(d.ctx, d.opt.ProcessTimeout)
		defer cancel()
		out, err := d.flow.Stop(ctx)
		return d.reply(err, &out, msgNotRecording)
	case ipc.CmdToggle:
		// the session outlives this command, so only stopping gets a deadline
		if d.flow.Status().State != flow.StateRecording {
			return d.reply(d.flow.Start(d.ctx), nil, flow.MsgBusy)
		}
		ctx, cancel := context.WithTimeout(d.ctx, d.opt.ProcessTimeout)
		defer cancel()
		out, err := d.flow.Stop(ctx)
		return d.reply(err, &out, flow.MsgBusy)
	case ipc.CmdCancel:
		d.flow.Cancel()
		return d.reply(nil, nil, "")
	case ipc.CmdStatus:
		r := d.reply(nil, nil, "")
		for _, h := range d.Results() {
			r.Hospitals = append(r.Hospitals, h.Summary())
		}
		return r
	case ipc.CmdFeedback:
		return d.feedback(msg)
	default:
		log.Warn("Unknown command", "cmd", msg.Cmd)
		return ipc.Reply{Error: fmt.Sprintf("unknown command %q", msg.Cmd)}
	}
}

const msgNotRecording = "녹음 중이 아닙니다."

// reply reports the flow status after a command. invalid is shown when the
// command was refused in the current state.
func (d *Daemon) reply(err error, out *flow.Outcome, invalid string) ipc.Reply {
	st := d.flow.Status()
	r := ipc.Reply{OK: err == nil, State: string(st.State), Message: st.Message}
	if err != nil {
		r.Error = err.Error()
		switch {
		case errors.Is(err, flow.ErrDiscarded):
			r.Message = flow.MsgCancelled
		case st.Err != nil && errors.Is(st.Err, err):
			// the flow already reported this failure
		case errors.Is(err, audio.ErrInvalidState) && invalid != "":
			r.Message = invalid
		default:
			r.Message = flow.Localize(err)
		}
	}
	if out != nil && out.Target.Route != "" {
		r.Target = out.Target.String()
	}
	return r
}

func (d *Daemon) feedback(msg ipc.ControlMessage) ipc.Reply {
	verdict, err := backend.ParseVerdict(msg.Arg)
	if err != nil {
		return ipc.Reply{Error: err.Error()}
	}

	fb := backend.Feedback{Hospital: msg.Hospital, Verdict: verdict}
	if fb.Hospital == "" {
		h := d.LastHospital()
		fb.Hospital, fb.Address = h.Name, h.Address
	}
	if fb.Hospital == "" {
		return ipc.Reply{Error: "no hospital to rate yet"}
	}

	d.backend.NotifyFeedback(fb)
	return ipc.Reply{OK: true, Message: fmt.Sprintf("%s: %s", fb.Hospital, verdict)}
}

// LastHospital is the most recent directions target or top search result.
func (d *Daemon) LastHospital() backend.Hospital {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hospital
}

// Results returns the last hospital search.
func (d *Daemon) Results() []backend.Hospital {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]backend.Hospital(nil), d.results...)
}

// StateChanged runs side effects off the flow's goroutine.
func (d *Daemon) StateChanged(ev flow.Event) {
	if d.duckq != nil {
		select {
		case d.duckq <- ev.State == flow.StateRecording:
		default:
		}
	}

	switch ev.State {
	case flow.StateRecording:
		if d.opt.Cue != nil {
			go func() {
				if err := d.opt.Cue(); err != nil {
					log.Warn("Failed to play cue", "err", err)
				}
			}()
		}
	case flow.StateRouted:
		log.Info("Routed", "session", ev.SessionID, "transcript", ev.Transcript, "target", ev.Target.String())
		d.say(ev.Message)
		if name, ok := ev.Target.Hospital(); ok {
			d.mu.Lock()
			d.hospital = backend.Hospital{Name: name, Address: ev.Target.Params["address"]}
			d.mu.Unlock()
			return
		}
		target := *ev.Target
		d.searches.Add(1)
		go func() {
			defer d.searches.Done()
			d.search(target)
		}()
	case flow.StateFailed:
		log.Error("Attempt failed", "session", ev.SessionID, "err", ev.Err)
		d.say(ev.Message)
	}
}

func (d *Daemon) search(target nlu.NavigationTarget) {
	ctx, cancel := context.WithTimeout(d.ctx, 30*time.Second)
	defer cancel()

	hs, err := d.backend.SearchHospitals(ctx, backend.Query{
		Lat:      d.opt.Lat,
		Lon:      d.opt.Lon,
		Symptom:  target.Params["symptom"],
		Severity: target.Params["severity"],
	})
	if err != nil {
		log.Error("Hospital search failed", "symptom", target.Params["symptom"], "err", err)
		return
	}

	d.mu.Lock()
	d.results = hs
	if len(hs) > 0 {
		d.hospital = hs[0]
	}
	d.mu.Unlock()

	log.Info("Hospitals found", "count", len(hs))
	for i, h := range hs {
		log.Info(fmt.Sprintf("%2d. %s", i+1, h.Summary()))
	}
	if len(hs) > 0 {
		d.say(hs[0].Summary())
	}
}

func (d *Daemon) say(text string) {
	if d.opt.Speak == nil || text == "" {
		return
	}
	go func() {
		if err := d.opt.Speak(text); err != nil {
			log.Error("Failed to voice out", "err", err)
		}
	}()
}

// ducking applies duck requests in event order.
func (d *Daemon) ducking() {
	ducked := false
	for {
		select {
		case <-d.ctx.Done():
			if ducked {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				_ = d.opt.Ducker.Restore(ctx)
				cancel()
			}
			return
		case want := <-d.duckq:
			if want == ducked {
				continue
			}
			var err error
			if want {
				err = d.opt.Ducker.Duck(d.ctx)
			} else {
				err = d.opt.Ducker.Restore(d.ctx)
			}
			if err != nil {
				log.Warn("Failed to adjust other playback", "duck", want, "err", err)
				continue
			}
			ducked = want
		}
	}
}

// Wait blocks until background searches finish.
func (d *Daemon) Wait() {
	d.searches.Wait()
}
