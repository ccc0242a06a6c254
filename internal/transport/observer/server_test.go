package observer

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"factorysim.ai/internal/observerproto"
	"factorysim.ai/internal/sim/catalogs"
	"factorysim.ai/internal/sim/world"
	modelpkg "factorysim.ai/internal/sim/world/kernel/model"
)

func newTestServer(t *testing.T) (*world.World, *Server, *httptest.Server) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	w, err := world.New(world.WorldConfig{ID: "test"}, cats)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	srv := NewServer(w, log.New(io.Discard, "", 0), Options{CommandsPerSecond: 0.001, CommandBurst: 1})
	w.AddTickSink(srv)
	mux := http.NewServeMux()
	srv.Register(mux)
	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)
	return w, srv, hs
}

func dial(t *testing.T, hs *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(msg, v); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
}

func waitSubscribers(t *testing.T, srv *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for srv.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers=%d want %d", srv.Subscribers(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWS_SubscribeReceivesTicks(t *testing.T) {
	w, srv, hs := newTestServer(t)
	conn := dial(t, hs)
	if err := conn.WriteJSON(observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version, Events: true}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitSubscribers(t, srv, 1)

	w.Step([]world.Command{world.Construct("MINER", modelpkg.Coord{X: 0, Y: 0}, "")})

	var tick observerproto.TickMsg
	readJSON(t, conn, &tick)
	if tick.Type != observerproto.TypeTick || tick.Tick != 0 || tick.Structures != 1 {
		t.Fatalf("tick=%+v", tick)
	}
	if len(tick.Events) == 0 || tick.Events[0].Type != world.EventStructureConstructed {
		t.Fatalf("events=%+v want STRUCTURE_CONSTRUCTED first", tick.Events)
	}
}

func TestWS_CommandsAreRateLimited(t *testing.T) {
	w, srv, hs := newTestServer(t)
	conn := dial(t, hs)
	_ = conn.WriteJSON(observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version})
	waitSubscribers(t, srv, 1)

	send := func(id string, cmd world.Command) observerproto.AckMsg {
		t.Helper()
		if err := conn.WriteJSON(observerproto.CommandMsg{Type: observerproto.TypeCommand, ProtocolVersion: observerproto.Version, ID: id, Command: cmd}); err != nil {
			t.Fatalf("write: %v", err)
		}
		var ack observerproto.AckMsg
		readJSON(t, conn, &ack)
		return ack
	}

	if ack := send("c1", world.Construct("PATH", modelpkg.Coord{X: 1, Y: 1}, "")); ack.Type != observerproto.TypeAck || ack.ID != "c1" {
		t.Fatalf("ack=%+v", ack)
	}
	if ack := send("c2", world.Construct("PATH", modelpkg.Coord{X: 2, Y: 1}, "")); ack.Type != observerproto.TypeError || ack.Code != "E_RATE_LIMITED" {
		t.Fatalf("second command=%+v want rate limited", ack)
	}

	w.Step(nil)
	if got := w.Metrics().InboxDepth; got != 1 {
		t.Fatalf("inbox depth=%d want 1 queued command", got)
	}
}

func TestWS_RejectsBadHandshake(t *testing.T) {
	_, srv, hs := newTestServer(t)
	conn := dial(t, hs)
	_ = conn.WriteJSON(map[string]string{"type": "HELLO"})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
	if srv.Subscribers() != 0 {
		t.Fatalf("subscriber registered after bad handshake")
	}
}

func TestStateHandler_ServesMetrics(t *testing.T) {
	w, _, hs := newTestServer(t)
	w.Step([]world.Command{world.Construct("PATH", modelpkg.Coord{}, "")})

	resp, err := http.Get(hs.URL + "/v1/state")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var m world.WorldMetrics
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Tick != 1 || m.Structures != 1 {
		t.Fatalf("metrics=%+v want tick 1 with 1 structure", m)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:1234": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}
