package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/botsim/internal/action"
	"github.com/udisondev/botsim/internal/model"
	"github.com/udisondev/botsim/internal/spatial"
)

const (
	DefaultWorkers   = 4
	DefaultInterval  = 100 * time.Millisecond
	DefaultChunkSize = 64
)

// Brain decides what one bot wants to do. A Brain instance is only ever used
// by one worker goroutine at a time.
type Brain interface {
	Decide(view View, self model.Snapshot) []action.Request
}

// BrainFactory builds the Brain owned by worker number worker.
type BrainFactory func(worker int) (Brain, error)

// Enqueuer accepts requests without blocking on their consumer.
type Enqueuer interface {
	Enqueue(req action.Request) error
}

// IndexSource resolves the published index of a map. Satisfied by
// spatial.Registry.
type IndexSource interface {
	Get(mapID uint32) (*spatial.Index, bool)
}

// LoopConfig configures the decision loop.
type LoopConfig struct {
	Workers   int
	Interval  time.Duration
	ChunkSize int
}

// LoopStats counts decision loop activity since creation.
type LoopStats struct {
	Passes    uint64
	Decisions uint64
	Enqueued  uint64
	Refused   uint64
	Unindexed uint64 // bots without a published snapshot when their turn came
}

// Loop runs bot decisions on a fixed pool of workers. Its only contact with
// shared state is reading published indexes and enqueueing requests: it
// never touches live objects and never waits for the authoritative thread.
type Loop struct {
	cfg     LoopConfig
	roster  *Roster
	indexes IndexSource
	queue   Enqueuer

	brains []Brain
	slots  chan int

	passes    atomic.Uint64
	decisions atomic.Uint64
	enqueued  atomic.Uint64
	refused   atomic.Uint64
	unindexed atomic.Uint64
}

// NewLoop creates a loop with one Brain per worker.
func NewLoop(cfg LoopConfig, roster *Roster, indexes IndexSource, queue Enqueuer, factory BrainFactory) (*Loop, error) {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = DefaultChunkSize
	}

	l := &Loop{
		cfg:     cfg,
		roster:  roster,
		indexes: indexes,
		queue:   queue,
		brains:  make([]Brain, cfg.Workers),
		slots:   make(chan int, cfg.Workers),
	}
	for w := range cfg.Workers {
		b, err := factory(w)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("creating brain for worker %d: %w", w, err)
		}
		l.brains[w] = b
		l.slots <- w
	}
	return l, nil
}

type chunk struct {
	view View
	ids  []model.EntityID
}

// RunPass gives every registered bot one decision. Bots on maps without a
// published index are skipped for this pass.
func (l *Loop) RunPass(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Workers)

	for mapID, ids := range l.roster.Snapshot() {
		idx, ok := l.indexes.Get(mapID)
		if !ok {
			l.unindexed.Add(uint64(len(ids)))
			continue
		}
		view := NewView(mapID, idx)
		for start := 0; start < len(ids); start += l.cfg.ChunkSize {
			c := chunk{view: view, ids: ids[start:min(start+l.cfg.ChunkSize, len(ids))]}
			g.Go(func() error {
				slot := <-l.slots
				defer func() { l.slots <- slot }()
				return l.runChunk(ctx, l.brains[slot], c)
			})
		}
	}

	err := g.Wait()
	l.passes.Add(1)
	if errors.Is(err, action.ErrQueueClosed) {
		return nil
	}
	return err
}

func (l *Loop) runChunk(ctx context.Context, brain Brain, c chunk) error {
	for _, id := range c.ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		self, ok := c.view.Lookup(id)
		if !ok {
			l.unindexed.Add(1)
			continue
		}
		reqs := brain.Decide(c.view, self)
		l.decisions.Add(1)
		if IsDebugEnabled() && len(reqs) > 0 {
			slog.Debug("bot decided", "bot", id, "map", c.view.MapID(), "requests", len(reqs))
		}
		if err := l.submit(id, c.view.MapID(), reqs); err != nil {
			return err
		}
	}
	return nil
}

// submit enqueues reqs in order. A full queue ends this bot's submissions
// for the pass so its later requests cannot overtake refused earlier ones.
func (l *Loop) submit(id model.EntityID, mapID uint32, reqs []action.Request) error {
	for i, req := range reqs {
		req.Requester = id
		req.MapID = mapID
		switch err := l.queue.Enqueue(req); {
		case err == nil:
			l.enqueued.Add(1)
		case errors.Is(err, action.ErrQueueFull):
			l.refused.Add(uint64(len(reqs) - i))
			return nil
		default:
			return err
		}
	}
	return nil
}

// Run runs a pass every interval until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	slog.Info("decision loop started", "workers", l.cfg.Workers, "interval", l.cfg.Interval, "bots", l.roster.Len())

	for {
		select {
		case <-ctx.Done():
			slog.Info("decision loop stopping", "passes", l.passes.Load())
			return nil
		case <-ticker.C:
			if err := l.RunPass(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("decision pass: %w", err)
			}
		}
	}
}

// Stats returns counters since creation.
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		Passes:    l.passes.Load(),
		Decisions: l.decisions.Load(),
		Enqueued:  l.enqueued.Load(),
		Refused:   l.refused.Load(),
		Unindexed: l.unindexed.Load(),
	}
}

// Close releases brains that hold resources (script VMs).
func (l *Loop) Close() {
	for _, b := range l.brains {
		if c, ok := b.(io.Closer); ok {
			if err := c.Close(); err != nil {
				slog.Warn("closing brain", "error", err)
			}
		}
	}
}
