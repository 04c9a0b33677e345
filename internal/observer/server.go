// Package observer streams per-tick statistics to websocket subscribers.
package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/udisondev/botsim/internal/action"
	"github.com/udisondev/botsim/internal/sim"
)

const (
	DefaultAddr       = "127.0.0.1:7780"
	DefaultSendBuffer = 16
	DefaultSample     = 8

	writeWait = 5 * time.Second
	readWait  = 60 * time.Second
)

// Options configures the observer server.
type Options struct {
	Addr       string
	SendBuffer int // messages queued per subscriber before drops
	Sample     int // rejected outcomes included per tick message
}

// Rejection is one sampled rejected request.
type Rejection struct {
	Requester string `json:"requester"`
	Kind      string `json:"kind"`
	Result    string `json:"result"`
	Reason    string `json:"reason,omitempty"`
}

// TickMessage is the JSON frame sent once per tick.
type TickMessage struct {
	Type         string            `json:"type"`
	Tick         uint64            `json:"tick"`
	At           time.Time         `json:"at"`
	DurationUS   int64             `json:"duration_us"`
	Drained      int               `json:"drained"`
	Applied      int               `json:"applied"`
	Rejected     map[string]int    `json:"rejected"`
	Generations  map[uint32]uint64 `json:"generations"`
	Entities     int               `json:"entities"`
	QueueDepth   int               `json:"queue_depth"`
	QueueRefused uint64            `json:"queue_refused"`
	Sample       []Rejection       `json:"sample,omitempty"`
}

// Stats counts observer activity.
type Stats struct {
	Subscribers int
	Sent        uint64
	Dropped     uint64
}

// Server is a sim.OutcomeSink serving the latest tick over HTTP and every
// tick over websocket. Slow subscribers lose frames instead of slowing the
// authority down.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader

	last atomic.Pointer[[]byte]

	mu     sync.Mutex
	subs   map[uint64]chan []byte
	nextID uint64

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewServer creates an observer.
func NewServer(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.SendBuffer < 1 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.Sample < 0 {
		opts.Sample = 0
	}
	return &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[uint64]chan []byte),
	}
}

var _ sim.OutcomeSink = (*Server)(nil)

// Consume implements sim.OutcomeSink.
func (s *Server) Consume(r sim.TickReport) {
	msg := messageOf(r, s.opts.Sample)
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("encoding tick message", "tick", r.Tick, "error", err)
		return
	}
	s.last.Store(&b)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- b:
			s.sent.Add(1)
		default:
			s.dropped.Add(1)
		}
	}
}

func messageOf(r sim.TickReport, sample int) TickMessage {
	msg := TickMessage{
		Type:         "TICK",
		Tick:         r.Tick,
		At:           r.At,
		DurationUS:   r.Duration.Microseconds(),
		Drained:      r.Drained,
		Applied:      r.Applied,
		Rejected:     make(map[string]int, len(r.Rejected)),
		Generations:  r.Generations,
		Entities:     r.Entities,
		QueueDepth:   r.QueueDepth,
		QueueRefused: r.QueueRefused,
	}
	for res, n := range r.Rejected {
		msg.Rejected[res.String()] = n
	}
	for _, o := range r.Outcomes {
		if len(msg.Sample) >= sample {
			break
		}
		if o.State != action.StateRejected {
			continue
		}
		msg.Sample = append(msg.Sample, Rejection{
			Requester: o.Request.Requester.String(),
			Kind:      o.Request.Kind.String(),
			Result:    o.Result.String(),
			Reason:    o.Reason,
		})
	}
	return msg
}

func (s *Server) subscribe() (uint64, chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ch := make(chan []byte, s.opts.SendBuffer)
	s.subs[s.nextID] = ch
	return s.nextID, ch
}

func (s *Server) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// Stats returns current counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	n := len(s.subs)
	s.mu.Unlock()
	return Stats{Subscribers: n, Sent: s.sent.Load(), Dropped: s.dropped.Load()}
}

// Handler returns the HTTP routes: GET /stats and GET /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

func (s *Server) handleStats(rw http.ResponseWriter, _ *http.Request) {
	last := s.last.Load()
	if last == nil {
		rw.WriteHeader(http.StatusNoContent)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_, _ = rw.Write(*last)
}

func (s *Server) handleWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, out := s.subscribe()
	defer s.unsubscribe(id)
	slog.Debug("observer subscribed", "id", id, "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writeErr := make(chan error, 1)
	go func() {
		if last := s.last.Load(); last != nil {
			if err := write(conn, *last); err != nil {
				writeErr <- err
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				writeErr <- ctx.Err()
				return
			case b := <-out:
				if err := write(conn, b); err != nil {
					writeErr <- err
					return
				}
			}
		}
	}()

	// Subscribers have nothing to say; reading only detects the close.
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	cancel()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	select {
	case <-writeErr:
	case <-time.After(500 * time.Millisecond):
	}
	slog.Debug("observer unsubscribed", "id", id)
}

func write(conn *websocket.Conn, b []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("observer listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("observer listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("observer serve: %w", err)
	}
	return nil
}
