package bus

import (
	"context"
	"encoding/json"
	log "log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"medivox/internal/flow"
)

// Message is what the UI side of the bus receives.
type Message struct {
	From      string            `json:"from"`
	Kind      string            `json:"kind"` // "state" or "navigate"
	State     string            `json:"state,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Content   string            `json:"content,omitempty"`
	Route     string            `json:"route,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	URL       string            `json:"url,omitempty"`
}

const (
	KindState    = "state"
	KindNavigate = "navigate"
)

// Bus publishes flow events to a websocket hub. Publishing never blocks:
// when the outbox is full the message is dropped.
type Bus struct {
	url    string
	from   string
	reconn time.Duration

	mu   sync.Mutex
	conn *ws.Conn

	out  chan Message
	done chan struct{}
	once sync.Once
}

func Dial(wsURL, from string, reconn time.Duration) (*Bus, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}
	if reconn <= 0 {
		reconn = 2 * time.Second
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}

	log.Info("Connected to bus", "url", wsURL)
	return &Bus{
		url:    u.String(),
		from:   from,
		reconn: reconn,
		conn:   conn,
		out:    make(chan Message, 64),
		done:   make(chan struct{}),
	}, nil
}

// Publish queues m for delivery and reports whether it was accepted.
func (b *Bus) Publish(m Message) bool {
	if m.From == "" {
		m.From = b.from
	}
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.out <- m:
		return true
	default:
		log.Warn("Bus outbox full, dropping message", "kind", m.Kind)
		return false
	}
}

// StateChanged forwards flow events; a routed event additionally produces a
// navigate message for the UI router.
func (b *Bus) StateChanged(ev flow.Event) {
	b.Publish(Message{
		Kind:      KindState,
		State:     string(ev.State),
		SessionID: ev.SessionID,
		Content:   ev.Message,
	})
	if ev.Target != nil {
		b.Publish(Message{
			Kind:      KindNavigate,
			SessionID: ev.SessionID,
			Route:     ev.Target.Route,
			Params:    ev.Target.Params,
			URL:       ev.Target.String(),
		})
	}
}

// connErr reports why the reader of conn stopped.
type connErr struct {
	conn *ws.Conn
	err  error
}

// Run delivers queued messages until ctx is done or Close is called. It
// reconnects when a write fails or the hub drops the connection.
func (b *Bus) Run(ctx context.Context) {
	broken := make(chan connErr)
	go b.read(b.current(), broken)

	for {
		select {
		case <-ctx.Done():
			b.Close()
			return
		case <-b.done:
			return
		case ce := <-broken:
			if ce.conn != b.current() {
				continue
			}
			if IsClosed(ce.err) {
				log.Info("Bus closed by hub, reconnecting", "url", b.url, "err", ce.err)
			} else {
				log.Warn("Bus read failed, reconnecting", "url", b.url, "err", ce.err)
			}
			if !b.tryReconn(ctx) {
				return
			}
			go b.read(b.current(), broken)
		case m := <-b.out:
			if err := b.write(m); err != nil {
				log.Warn("Bus write failed, reconnecting", "url", b.url, "err", err)
				if !b.tryReconn(ctx) {
					return
				}
				go b.read(b.current(), broken)
				if err := b.write(m); err != nil {
					log.Error("Bus write failed after reconnect", "err", err)
				}
			}
		}
	}
}

// read discards whatever the hub sends. Reading keeps ping and close
// frames flowing and notices a dropped connection between writes.
func (b *Bus) read(conn *ws.Conn, broken chan<- connErr) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			select {
			case broken <- connErr{conn: conn, err: err}:
			case <-b.done:
			}
			return
		}
	}
}

func (b *Bus) current() *ws.Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn
}

func (b *Bus) write(m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	log.Debug("Write bus", "msg", string(data))

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn.WriteMessage(ws.TextMessage, data)
}

func (b *Bus) tryReconn(ctx context.Context) bool {
	for {
		conn, _, err := ws.DefaultDialer.DialContext(ctx, b.url, nil)
		if err == nil {
			b.mu.Lock()
			_ = b.conn.Close()
			b.conn = conn
			b.mu.Unlock()
			log.Info("Reconnected to bus", "url", b.url)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-b.done:
			return false
		case <-time.After(b.reconn):
		}
	}
}

func (b *Bus) Close() error {
	var err error
	b.once.Do(func() {
		close(b.done)
		b.mu.Lock()
		_ = b.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
		err = b.conn.Close()
		b.mu.Unlock()
	})
	return err
}

// IsClosed reports whether err is an orderly websocket shutdown.
func IsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
