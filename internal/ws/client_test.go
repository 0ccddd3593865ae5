// ABOUTME: Tests for the self-healing websocket client
// ABOUTME: Covers reconnect cadence, keep-alive, ordering and shutdown
package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// testServer accepts websocket connections and records activity
type testServer struct {
	*httptest.Server

	mu       sync.Mutex
	conns    []*websocket.Conn
	received [][]byte
	pings    int
	queries  []string
	connCh   chan *websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{connCh: make(chan *websocket.Conn, 16)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.queries = append(ts.queries, r.URL.RawQuery)
		ts.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.SetPingHandler(func(string) error {
			ts.mu.Lock()
			ts.pings++
			ts.mu.Unlock()
			return nil
		})

		ts.mu.Lock()
		ts.conns = append(ts.conns, conn)
		ts.mu.Unlock()
		ts.connCh <- conn

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ts.mu.Lock()
			ts.received = append(ts.received, data)
			ts.mu.Unlock()
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (ts *testServer) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ts.connCh:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

func (ts *testServer) receivedCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.received)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		origin string
		want   string
		ok     bool
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws", true},
		{"https://music.example.com", "wss://music.example.com/ws", true},
		{"ftp://nope", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := EndpointURL(tt.origin)
		if tt.ok && err != nil {
			t.Errorf("EndpointURL(%q) unexpected error: %v", tt.origin, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("EndpointURL(%q) expected error", tt.origin)
		}
		if got != tt.want {
			t.Errorf("EndpointURL(%q) = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestConnectAndOnConnect(t *testing.T) {
	ts := newTestServer(t)

	connected := make(chan struct{})
	client := New(Config{
		URL:       ts.wsURL(),
		OnConnect: func() { close(connected) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)

	ts.waitConn(t)
	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("OnConnect never fired")
	}

	waitFor(t, time.Second, client.Connected)
}

func TestIdentityQueryParameters(t *testing.T) {
	ts := newTestServer(t)

	client := New(Config{
		URL:            ts.wsURL(),
		ClientID:       "client-1",
		SignatureToken: "sig-1",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	ts.waitConn(t)

	ts.mu.Lock()
	query := ts.queries[0]
	ts.mu.Unlock()
	if !strings.Contains(query, "clientId=client-1") || !strings.Contains(query, "signature=sig-1") {
		t.Errorf("identity query missing: %s", query)
	}
}

func TestSendPreservesOrder(t *testing.T) {
	ts := newTestServer(t)

	client := New(Config{URL: ts.wsURL()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	ts.waitConn(t)
	waitFor(t, time.Second, client.Connected)

	for _, msg := range []string{"one", "two", "three"} {
		if err := client.Send([]byte(msg)); err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}

	waitFor(t, 2*time.Second, func() bool { return ts.receivedCount() == 3 })
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for i, want := range []string{"one", "two", "three"} {
		if string(ts.received[i]) != want {
			t.Errorf("message %d: got %s, want %s", i, ts.received[i], want)
		}
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	client := New(Config{URL: "ws://localhost:1/ws"})
	if err := client.Send([]byte("hello")); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	ts := newTestServer(t)

	var reconnects int
	var mu sync.Mutex
	client := New(Config{
		URL:        ts.wsURL(),
		RetryDelay: 50 * time.Millisecond,
		OnConnect: func() {
			mu.Lock()
			reconnects++
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)

	first := ts.waitConn(t)
	waitFor(t, time.Second, client.Connected)

	// Drop the connection server-side; the first retry after a
	// successful connection is immediate.
	start := time.Now()
	first.Close()
	ts.waitConn(t)
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("first reconnect should be immediate, took %v", elapsed)
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reconnects == 2
	})
}

func TestRepeatedDropsAreDelayed(t *testing.T) {
	ts := newTestServer(t)

	client := New(Config{
		URL:        ts.wsURL(),
		RetryDelay: 100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)

	// First drop reconnects immediately; dropping the reconnect right
	// away forces the delayed path.
	ts.waitConn(t).Close()
	second := ts.waitConn(t)

	start := time.Now()
	second.Close()
	ts.waitConn(t)
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("second consecutive reconnect should wait, took %v", elapsed)
	}
}

func TestConnectFailuresAreRetriedWithDelay(t *testing.T) {
	// A server that always rejects the upgrade makes every dial fail.
	var mu sync.Mutex
	var attempts []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts = append(attempts, time.Now())
		mu.Unlock()
		http.Error(w, "no", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(Config{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		RetryDelay: 80 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(attempts) >= 4
	})

	mu.Lock()
	defer mu.Unlock()
	// The first retry is immediate; every one after that waits.
	for i := 2; i < 4; i++ {
		if gap := attempts[i].Sub(attempts[i-1]); gap < 70*time.Millisecond {
			t.Errorf("attempt %d followed %d after only %v", i+1, i, gap)
		}
	}
}

func TestCancelDuringRetryDelayStops(t *testing.T) {
	client := New(Config{
		URL:        "ws://localhost:1/ws",
		RetryDelay: 10 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	frames := client.Start(ctx)

	// Let the loop burn its immediate retry and settle into the delay.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case _, open := <-frames:
		if open {
			t.Error("unexpected frame from a failing endpoint")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not stop on cancellation")
	}
}

func TestKeepAlivePings(t *testing.T) {
	ts := newTestServer(t)

	client := New(Config{
		URL:          ts.wsURL(),
		PingInterval: 30 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	ts.waitConn(t)

	waitFor(t, 2*time.Second, func() bool {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		return ts.pings >= 2
	})
}

func TestKeepAliveStopsBeforeReconnect(t *testing.T) {
	ts := newTestServer(t)

	var mu sync.Mutex
	var pingerExit time.Time
	client := New(Config{
		URL:          ts.wsURL(),
		PingInterval: 20 * time.Millisecond,
	})
	client.pingerStopped = func() {
		mu.Lock()
		pingerExit = time.Now()
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)

	conn := ts.waitConn(t)
	_ = conn.Close()
	ts.waitConn(t)
	accepted := time.Now()

	mu.Lock()
	exit := pingerExit
	mu.Unlock()
	if exit.IsZero() {
		t.Fatal("keep-alive still running after connection closed")
	}
	if exit.After(accepted) {
		t.Errorf("keep-alive outlived its connection: stopped %v after the next handshake", exit.Sub(accepted))
	}
}

func TestOnConnectCompletesBeforeInboundFrames(t *testing.T) {
	ts := newTestServer(t)

	var onConnectDone sync.WaitGroup
	onConnectDone.Add(1)
	var finished bool
	var mu sync.Mutex
	client := New(Config{
		URL: ts.wsURL(),
		OnConnect: func() {
			defer onConnectDone.Done()
			time.Sleep(50 * time.Millisecond)
			mu.Lock()
			finished = true
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	frames := client.Start(ctx)

	conn := ts.waitConn(t)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("early")); err != nil {
		t.Fatalf("server write failed: %v", err)
	}

	select {
	case frame := <-frames:
		mu.Lock()
		done := finished
		mu.Unlock()
		if !done {
			t.Error("inbound frame surfaced before the connect callback returned")
		}
		if string(frame.Data) != "early" {
			t.Errorf("unexpected frame: %q", frame.Data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	onConnectDone.Wait()
}

func TestCancellationStopsLoopAndClosesFrames(t *testing.T) {
	ts := newTestServer(t)

	client := New(Config{URL: ts.wsURL()})
	ctx, cancel := context.WithCancel(context.Background())
	frames := client.Start(ctx)
	ts.waitConn(t)
	waitFor(t, time.Second, client.Connected)

	cancel()

	select {
	case _, open := <-frames:
		if open {
			// Drain any frame that raced the cancel.
			for range frames {
			}
		}
	case <-time.After(3 * time.Second):
		t.Fatal("frames channel never closed after cancel")
	}

	waitFor(t, time.Second, func() bool { return !client.Connected() })
}

func TestInboundFramesSurface(t *testing.T) {
	ts := newTestServer(t)

	client := New(Config{URL: ts.wsURL()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	frames := client.Start(ctx)
	conn := ts.waitConn(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"SESSIONS"}`)); err != nil {
		t.Fatalf("server write failed: %v", err)
	}

	select {
	case frame := <-frames:
		if frame.Kind != FrameText {
			t.Errorf("expected text frame, got kind %d", frame.Kind)
		}
		if string(frame.Data) != `{"type":"SESSIONS"}` {
			t.Errorf("unexpected frame data: %s", frame.Data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("inbound frame never surfaced")
	}
}

func TestServesAcrossReconnect(t *testing.T) {
	ts := newTestServer(t)

	client := New(Config{URL: ts.wsURL(), RetryDelay: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	frames := client.Start(ctx)

	ts.waitConn(t).Close()
	conn := ts.waitConn(t)
	waitFor(t, time.Second, client.Connected)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("after")); err != nil {
		t.Fatalf("server write failed: %v", err)
	}

	select {
	case frame := <-frames:
		if string(frame.Data) != "after" {
			t.Errorf("unexpected frame after reconnect: %s", frame.Data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no frame after reconnect")
	}
}
