package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	gojson "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/janaflow/core/internal/observability"
	"github.com/janaflow/core/pkg/worker"
)

// WorkerSnapshot is one worker's reported state for the debug endpoint.
type WorkerSnapshot struct {
	ID             int    `json:"id"`
	State          string `json:"state"`
	LastArrow      string `json:"last_arrow"`
	HeartbeatAgeMS int64  `json:"heartbeat_age_ms"`
}

// ArrowSnapshot is one arrow's activation state for the debug endpoint.
type ArrowSnapshot struct {
	Name           string `json:"name"`
	ThreadCount    int32  `json:"thread_count"`
	ActiveUpstream int32  `json:"active_upstream_count"`
	Finished       bool   `json:"finished"`
}

// Snapshot is the engine's performance/introspection state (spec.md §6
// "performance snapshot"). It carries no factory object listings.
type Snapshot struct {
	TopologyState string           `json:"topology_state"`
	Workers       []WorkerSnapshot `json:"workers"`
	Arrows        []ArrowSnapshot  `json:"arrows"`
}

// Snapshot builds the engine's current introspection state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	workers := make([]*worker.Worker, len(e.workers))
	copy(workers, e.workers)
	e.mu.Unlock()

	now := time.Now()
	ws := make([]WorkerSnapshot, len(workers))
	for i, w := range workers {
		ws[i] = WorkerSnapshot{
			ID:             w.ID,
			State:          w.State().String(),
			LastArrow:      w.LastArrow(),
			HeartbeatAgeMS: now.Sub(w.Heartbeat()).Milliseconds(),
		}
	}

	arrows := e.sched.Arrows()
	as := make([]ArrowSnapshot, len(arrows))
	for i, a := range arrows {
		as[i] = ArrowSnapshot{
			Name:           a.ArrowName(),
			ThreadCount:    a.ThreadCount(),
			ActiveUpstream: a.ActiveUpstreamCount(),
			Finished:       a.IsFinished(),
		}
	}

	return Snapshot{
		TopologyState: e.topology.State().String(),
		Workers:       ws,
		Arrows:        as,
	}
}

// DebugHandler exposes a rate-limited JSON snapshot endpoint
// ("/snapshot") and a minimal websocket control channel ("/ws") an
// external debug controller can use to pause and resume the topology and
// poll its state. The channel does not step one event at a time and does
// not list factory objects: the snapshot holds only topology, worker and
// arrow state. Every snapshot (HTTP or websocket push) is encoded with
// goccy/go-json and gated by the same rate.Limiter so a polling client
// cannot force unbounded snapshot work onto the engine.
func (e *Engine) DebugHandler() http.Handler {
	limiter := rate.NewLimiter(rate.Limit(10), 1)
	mux := http.NewServeMux()

	mux.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, "snapshot rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := gojson.NewEncoder(w).Encode(e.Snapshot()); err != nil {
			observability.Log().Error("snapshot encode failed", observability.Field{Key: "error", Value: err.Error()})
		}
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil) //nolint:exhaustruct
		if err != nil {
			return
		}
		defer conn.CloseNow() //nolint:errcheck
		e.serveDebugConn(r.Context(), conn, limiter)
	})

	return mux
}

// serveDebugConn reads step/pause/run commands from conn and pushes a
// fresh snapshot after each accepted command. "step" and "run" both
// resume the topology; neither stops it again after one event.
func (e *Engine) serveDebugConn(ctx context.Context, conn *websocket.Conn, limiter *rate.Limiter) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		switch string(data) {
		case "pause":
			e.topology.Pause()
		case "step", "run":
			e.topology.Run()
		}
		if !limiter.Allow() {
			continue
		}
		payload, err := gojson.Marshal(e.Snapshot())
		if err != nil {
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			return
		}
	}
}
