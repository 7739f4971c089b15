// Package live keeps a Socket.IO (Engine.IO v4) connection over WebSocket
// and hands named events to registered handlers.
//
// Only what the notification signal needs is implemented: the default
// namespace, token auth in the CONNECT packet, ping/pong, and text EVENT
// packets. Binary packets and acks are ignored.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Engine.IO packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioNoop    = '6'
)

// Socket.IO packet types, carried inside an Engine.IO message.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioConnectError = '4'
)

var (
	// ErrRejected means the server refused the namespace connection,
	// usually because the token was not accepted. It is not retried.
	ErrRejected = errors.New("live: connection rejected")
	// ErrServerDisconnect means the server closed the namespace on purpose.
	ErrServerDisconnect = errors.New("live: disconnected by server")
)

type TokenSource interface {
	Token() string
}

type Options struct {
	// URL is the server's http(s) base URL.
	URL    string
	Tokens TokenSource
	// Path defaults to /socket.io/.
	Path string

	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	// ReconnectAttempts bounds consecutive failed reconnects.
	ReconnectAttempts int
	// Jitter randomizes each delay by up to this fraction. Zero disables.
	Jitter float64

	Logger *slog.Logger
}

// Handler receives an event's arguments as raw JSON.
type Handler func(args []json.RawMessage)

type Channel struct {
	opts   Options
	log    *slog.Logger
	dialer ws.Dialer

	mu       sync.RWMutex
	handlers map[string][]Handler
	onState  func(connected bool)
}

func New(opts Options) *Channel {
	if opts.Path == "" {
		opts.Path = "/socket.io/"
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.ReconnectDelayMax <= 0 {
		opts.ReconnectDelayMax = 5 * time.Second
	}
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = 5
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Channel{
		opts:     opts,
		log:      opts.Logger,
		dialer:   ws.Dialer{Timeout: 10 * time.Second},
		handlers: map[string][]Handler{},
	}
}

// On registers fn for event. Handlers run on their own goroutine.
func (c *Channel) On(event string, fn Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], fn)
}

// OnState is told about every connect and disconnect.
func (c *Channel) OnState(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// Run connects and keeps reconnecting until ctx ends, the server rejects
// or closes the namespace, or ReconnectAttempts consecutive attempts fail.
// Without a token it returns immediately. Nothing missed while
// disconnected is replayed.
func (c *Channel) Run(ctx context.Context) error {
	failures := 0
	for {
		if c.opts.Tokens == nil || c.opts.Tokens.Token() == "" {
			return nil
		}
		connected, err := c.connect(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrRejected) {
			return err
		}
		if errors.Is(err, ErrServerDisconnect) {
			c.log.Info("live channel closed by server")
			return nil
		}
		if connected {
			failures = 0
		}
		failures++
		if failures > c.opts.ReconnectAttempts {
			return fmt.Errorf("live: giving up after %d attempts: %w", c.opts.ReconnectAttempts, err)
		}
		delay := c.backoff(failures)
		c.log.Warn("live channel lost; reconnecting", "err", err, "attempt", failures, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// backoff doubles from ReconnectDelay per attempt, capped at
// ReconnectDelayMax.
func (c *Channel) backoff(attempt int) time.Duration {
	d := c.opts.ReconnectDelay
	for i := 1; i < attempt && d < c.opts.ReconnectDelayMax; i++ {
		d *= 2
	}
	if j := c.opts.Jitter; j > 0 {
		delta := float64(d) * j
		d = time.Duration(float64(d) - delta + rand.Float64()*2*delta)
	}
	return min(d, c.opts.ReconnectDelayMax)
}

func (c *Channel) endpoint() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("live: parse url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + c.opts.Path
	u.RawQuery = url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode()
	return u.String(), nil
}

type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// connect runs one connection to completion. connected reports whether the
// namespace handshake succeeded before the connection ended.
func (c *Channel) connect(ctx context.Context) (connected bool, err error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return false, err
	}
	conn, br, _, err := c.dialer.Dial(ctx, endpoint)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
		defer ws.PutReader(br)
	}
	rw := struct {
		io.Reader
		io.Writer
	}{r, conn}

	open, err := wsutil.ReadServerText(rw)
	if err != nil {
		return false, fmt.Errorf("read open: %w", err)
	}
	if len(open) == 0 || open[0] != eioOpen {
		return false, fmt.Errorf("unexpected first packet %q", open)
	}
	var hs handshake
	if err := json.Unmarshal(open[1:], &hs); err != nil {
		return false, fmt.Errorf("parse open: %w", err)
	}
	timeout := time.Duration(hs.PingInterval+hs.PingTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	auth, err := json.Marshal(map[string]string{"token": c.opts.Tokens.Token()})
	if err != nil {
		return false, err
	}
	if err := wsutil.WriteClientText(conn, append([]byte{eioMessage, sioConnect}, auth...)); err != nil {
		return false, fmt.Errorf("send connect: %w", err)
	}

	defer func() {
		if connected {
			c.setState(false)
		}
	}()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		msg, err := wsutil.ReadServerText(rw)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return connected, fmt.Errorf("ping timeout: %w", err)
			}
			return connected, fmt.Errorf("read: %w", err)
		}
		if len(msg) == 0 {
			continue
		}
		switch msg[0] {
		case eioPing:
			if err := wsutil.WriteClientText(conn, []byte{eioPong}); err != nil {
				return connected, fmt.Errorf("send pong: %w", err)
			}
		case eioClose:
			return connected, errors.New("transport closed")
		case eioNoop:
		case eioMessage:
			if len(msg) < 2 {
				continue
			}
			switch msg[1] {
			case sioConnect:
				connected = true
				c.log.Info("live channel connected", "sid", hs.SID)
				c.setState(true)
			case sioConnectError:
				return connected, fmt.Errorf("%w: %s", ErrRejected, connectErrorMessage(msg[2:]))
			case sioDisconnect:
				return connected, ErrServerDisconnect
			case sioEvent:
				c.dispatch(msg[2:])
			}
		}
	}
}

func connectErrorMessage(raw []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(raw))
}

// dispatch decodes `["name", args...]`, skipping an optional namespace
// prefix and ack id.
func (c *Channel) dispatch(raw []byte) {
	if i := strings.IndexByte(string(raw), '['); i > 0 {
		raw = raw[i:]
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) == 0 {
		c.log.Debug("live: dropping malformed event", "raw", string(raw))
		return
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return
	}
	c.mu.RLock()
	hs := c.handlers[name]
	c.mu.RUnlock()
	for _, h := range hs {
		go h(parts[1:])
	}
}

func (c *Channel) setState(connected bool) {
	c.mu.RLock()
	fn := c.onState
	c.mu.RUnlock()
	if fn != nil {
		fn(connected)
	}
}
