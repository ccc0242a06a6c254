package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"factorysim.ai/internal/observerproto"
	"factorysim.ai/internal/sim/world"
)

type Options struct {
	// CommandsPerSecond and CommandBurst bound COMMAND intake per connection.
	CommandsPerSecond float64
	CommandBurst      int
	// AllowRemote disables the loopback-only check (tests behind proxies).
	AllowRemote bool
}

func (o *Options) applyDefaults() {
	if o.CommandsPerSecond <= 0 {
		o.CommandsPerSecond = 5
	}
	if o.CommandBurst <= 0 {
		o.CommandBurst = 10
	}
}

type subscriber struct {
	events bool
	out    chan []byte
}

// Server streams one TICK message per world tick to subscribed observers and
// forwards their COMMAND messages into the world inbox. It is a world.TickSink.
type Server struct {
	world *world.World
	log   *log.Logger
	opts  Options

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu   sync.Mutex
	subs map[string]*subscriber
}

func NewServer(w *world.World, logger *log.Logger, opts Options) *Server {
	opts.applyDefaults()
	return &Server{
		world: w,
		log:   logger,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs: map[string]*subscriber{},
	}
}

// Register mounts the observer endpoints on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", s.WSHandler())
	mux.HandleFunc("/v1/state", s.StateHandler())
}

// WriteTick fans the entry out to subscribers. Slow subscribers only keep the latest message.
func (s *Server) WriteTick(entry world.TickLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return nil
	}
	m := s.world.Metrics()
	msg := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            entry.Tick,
		Digest:          entry.Digest,
		Structures:      m.Structures,
		Porters:         m.Porters,
		Grids:           m.Grids,
		Unpowered:       m.Unpowered,
		Commands:        len(entry.Commands),
	}
	plain, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	msg.Events = entry.Events
	full, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	for _, sub := range s.subs {
		if sub.events {
			sendLatest(sub.out, full)
		} else {
			sendLatest(sub.out, plain)
		}
	}
	return nil
}

func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		cfg := s.world.Config()
		cats := s.world.Catalogs()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         cfg.ID,
			Tick:            s.world.CurrentTick(),
			TickRateHz:      cfg.TickRateHz,
			Resources:       cats.Resources.Palette,
			Structures:      sortedKeys(cats.Structures.ByID),
			Recipes:         sortedKeys(cats.Recipes.ByID),
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) StateHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.world.Metrics())
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		tickOut := make(chan []byte, 8)
		replyOut := make(chan []byte, 64)
		s.mu.Lock()
		s.subs[sid] = &subscriber{events: sub.Events, out: tickOut}
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.subs, sid)
			s.mu.Unlock()
		}()
		s.log.Printf("observer %s subscribed from %s", sid, r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b = <-replyOut:
				case b = <-tickOut:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			}
		}()

		limiter := rate.NewLimiter(rate.Limit(s.opts.CommandsPerSecond), s.opts.CommandBurst)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			reply, ok := s.handleCommand(msg, limiter)
			if !ok {
				continue
			}
			b, _ := json.Marshal(reply)
			select {
			case replyOut <- b:
			default:
				// Client is not reading replies; drop.
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// handleCommand validates and submits one COMMAND. Non-command messages are ignored.
func (s *Server) handleCommand(raw []byte, limiter *rate.Limiter) (observerproto.AckMsg, bool) {
	var m observerproto.CommandMsg
	if err := json.Unmarshal(raw, &m); err != nil || m.Type != observerproto.TypeCommand {
		return observerproto.AckMsg{}, false
	}
	fail := func(code, message string) (observerproto.AckMsg, bool) {
		return observerproto.AckMsg{Type: observerproto.TypeError, ID: m.ID, Code: code, Message: message}, true
	}
	if m.ProtocolVersion != observerproto.Version {
		return fail("E_PROTO", "unsupported protocol_version")
	}
	if !limiter.Allow() {
		return fail("E_RATE_LIMITED", "too many commands")
	}
	if err := world.ValidateCommand(m.Command); err != nil {
		return fail(world.ErrCodeInvalid, err.Error())
	}
	if err := s.world.Submit(m.Command); err != nil {
		return fail("E_BUSY", err.Error())
	}
	return observerproto.AckMsg{Type: observerproto.TypeAck, ID: m.ID}, true
}

func (s *Server) allowed(r *http.Request) bool {
	return s.opts.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func sortedKeys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
