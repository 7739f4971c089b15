package live

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

// socketServer upgrades every request and hands the raw conn to script.
func socketServer(t *testing.T, script func(conn net.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func send(t *testing.T, conn net.Conn, msg string) {
	t.Helper()
	if err := wsutil.WriteServerText(conn, []byte(msg)); err != nil {
		t.Errorf("write %q: %v", msg, err)
	}
}

func expect(t *testing.T, conn net.Conn, want string) {
	t.Helper()
	got, err := wsutil.ReadClientText(conn)
	if err != nil {
		t.Errorf("read: %v", err)
		return
	}
	if string(got) != want {
		t.Errorf("client sent %q, want %q", got, want)
	}
}

func TestEndpoint(t *testing.T) {
	cases := map[string]string{
		"http://localhost:4000":     "ws://localhost:4000/socket.io/?EIO=4&transport=websocket",
		"https://gym.example.com/":  "wss://gym.example.com/socket.io/?EIO=4&transport=websocket",
		"https://gym.example.com/x": "wss://gym.example.com/x/socket.io/?EIO=4&transport=websocket",
	}
	for in, want := range cases {
		got, err := New(Options{URL: in}).endpoint()
		if err != nil {
			t.Fatalf("endpoint(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("endpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBackoffDoublesUpToMax(t *testing.T) {
	c := New(Options{})
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := c.backoff(i + 1); got != w {
			t.Fatalf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestHandshakePingAndEvent(t *testing.T) {
	done := make(chan struct{})
	srv := socketServer(t, func(conn net.Conn) {
		send(t, conn, `0{"sid":"s1","pingInterval":25000,"pingTimeout":20000}`)
		expect(t, conn, `40{"token":"tok"}`)
		send(t, conn, `40{"sid":"n1"}`)
		send(t, conn, `2`)
		expect(t, conn, `3`)
		send(t, conn, `42["new-notification",{"id":"n7"}]`)
		<-done
	})
	defer close(done)

	c := New(Options{URL: srv.URL, Tokens: staticToken("tok")})
	got := make(chan string, 1)
	c.On("new-notification", func(args []json.RawMessage) {
		var payload struct {
			ID string `json:"id"`
		}
		if len(args) == 1 && json.Unmarshal(args[0], &payload) == nil {
			got <- payload.ID
		}
	})
	var states atomic.Int32
	c.OnState(func(connected bool) {
		if connected {
			states.Add(1)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	select {
	case id := <-got:
		if id != "n7" {
			t.Fatalf("event id = %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("event not delivered")
	}
	if states.Load() != 1 {
		t.Fatalf("connected callbacks = %d", states.Load())
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop on cancel")
	}
}

func TestConnectErrorIsTerminal(t *testing.T) {
	var hits atomic.Int32
	srv := socketServer(t, func(conn net.Conn) {
		hits.Add(1)
		send(t, conn, `0{"sid":"s1","pingInterval":25000,"pingTimeout":20000}`)
		expect(t, conn, `40{"token":"bad"}`)
		send(t, conn, `44{"message":"unauthorized"}`)
	})

	c := New(Options{URL: srv.URL, Tokens: staticToken("bad"), ReconnectDelay: time.Millisecond})
	err := c.Run(context.Background())
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("connections = %d, want 1", hits.Load())
	}
}

func TestServerDisconnectStopsRun(t *testing.T) {
	srv := socketServer(t, func(conn net.Conn) {
		send(t, conn, `0{"sid":"s1","pingInterval":25000,"pingTimeout":20000}`)
		expect(t, conn, `40{"token":"tok"}`)
		send(t, conn, `40{"sid":"n1"}`)
		send(t, conn, `41`)
	})

	c := New(Options{URL: srv.URL, Tokens: staticToken("tok"), ReconnectDelay: time.Millisecond})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestReconnectAttemptsAreBounded(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Options{
		URL:               srv.URL,
		Tokens:            staticToken("tok"),
		ReconnectDelay:    time.Millisecond,
		ReconnectDelayMax: 2 * time.Millisecond,
		ReconnectAttempts: 2,
	})
	if err := c.Run(context.Background()); err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if hits.Load() != 3 {
		t.Fatalf("connections = %d, want 3", hits.Load())
	}
}

func TestRunWithoutTokenReturnsImmediately(t *testing.T) {
	c := New(Options{URL: "http://127.0.0.1:1", Tokens: staticToken("")})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}
