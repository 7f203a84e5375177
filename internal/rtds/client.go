// Package rtds is a client for the Polymarket real-time data socket.
package rtds

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	DefaultURL          = "wss://ws-live-data.polymarket.com"
	DefaultPingInterval = 5 * time.Second

	pingWriteTimeout = 3 * time.Second
)

type Subscription struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`

	// Filters is an optional JSON string (not an object).
	Filters string `json:"filters,omitempty"`
}

type subscribeRequest struct {
	Action        string         `json:"action"`
	Subscriptions []Subscription `json:"subscriptions"`
}

// Message is the socket envelope. Payload is decoded according to Topic and
// Type, see DecodeTrade.
type Message struct {
	Topic        string          `json:"topic"`
	Type         string          `json:"type"`
	Timestamp    int64           `json:"timestamp"`
	Payload      json.RawMessage `json:"payload"`
	ConnectionID string          `json:"connection_id,omitempty"`
}

type Options struct {
	// PingInterval paces the text "ping" keepalive the server expects.
	PingInterval time.Duration
	// ReadTimeout drops a connection that stayed silent this long; the server
	// answers every ping, so the default is three ping intervals.
	ReadTimeout time.Duration

	BackoffMin time.Duration
	BackoffMax time.Duration

	OutBuffer int
	Dialer    *websocket.Dialer
	Log       zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 3 * o.PingInterval
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = 500 * time.Millisecond
	}
	if o.BackoffMax < o.BackoffMin {
		o.BackoffMax = 15 * time.Second
	}
	if o.OutBuffer <= 0 {
		o.OutBuffer = 256
	}
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	return o
}

type stream struct {
	url  string
	subs []Subscription
	opts Options
	log  zerolog.Logger
	out  chan Message
}

// Start subscribes to subs on url and emits every message until ctx is done,
// reconnecting after failures. The returned channel is closed on exit.
func Start(ctx context.Context, url string, subs []Subscription, opts Options) <-chan Message {
	if url == "" {
		url = DefaultURL
	}
	opts = opts.withDefaults()
	s := &stream{
		url:  url,
		subs: subs,
		opts: opts,
		log:  opts.Log.With().Str("url", url).Logger(),
		out:  make(chan Message, opts.OutBuffer),
	}
	go s.run(ctx)
	return s.out
}

func (s *stream) run(ctx context.Context) {
	defer close(s.out)

	wait := s.opts.BackoffMin
	for reconnects := 0; ; reconnects++ {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			wait = s.opts.BackoffMin
		}
		s.log.Warn().Err(err).Int("reconnects", reconnects).Dur("retry_in", wait).Msg("rtds disconnected")
		if !sleepJittered(ctx, wait) {
			return
		}
		wait = nextBackoff(wait, s.opts.BackoffMax)
	}
}

// session runs one connection. connected reports whether the subscription
// was accepted before the connection failed.
func (s *stream) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := s.opts.Dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeRequest{Action: "subscribe", Subscriptions: s.subs}); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	s.log.Info().Int("subscriptions", len(s.subs)).Msg("rtds subscribed")

	done := make(chan struct{})
	defer close(done)
	go s.keepalive(ctx, conn, done)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, fmt.Errorf("read: %w", err)
		}
		m, ok := s.decode(raw)
		if !ok {
			continue
		}
		select {
		case s.out <- m:
		case <-ctx.Done():
			return true, nil
		}
	}
}

// keepalive is the only writer once the subscription is sent. Closing the
// connection on ctx done unblocks the reader.
func (s *stream) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(s.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-t.C:
			_ = conn.SetWriteDeadline(time.Now().Add(pingWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				s.log.Warn().Err(err).Msg("rtds ping failed")
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *stream) decode(raw []byte) (Message, bool) {
	switch string(raw) {
	case "", "ping", "pong":
		return Message{}, false
	}
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		s.log.Debug().Err(err).Int("bytes", len(raw)).Msg("rtds non-envelope message")
		return Message{}, false
	}
	if m.Topic == "" {
		return Message{}, false
	}
	return m, true
}

func nextBackoff(cur, max time.Duration) time.Duration {
	if cur >= max/2 {
		return max
	}
	return cur * 2
}

// sleepJittered waits a random duration in [d/2, d] and reports false when ctx
// ended first.
func sleepJittered(ctx context.Context, d time.Duration) bool {
	if d > 1 {
		d = d/2 + rand.N(d/2+1)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
