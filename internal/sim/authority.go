package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/botsim/internal/action"
	"github.com/udisondev/botsim/internal/model"
	"github.com/udisondev/botsim/internal/spatial"
)

const (
	DefaultTickInterval = 50 * time.Millisecond
	DefaultWriteWorkers = 4

	// cooldown book is pruned every this many ticks
	pruneEvery = 200
)

// Rules is the rules engine driven by the authority: request legality and
// mutation plus the per-tick world update.
type Rules interface {
	action.Rules
	BeginTick(now time.Time)
	Update(now time.Time, dt time.Duration)
}

// TickReport summarizes one authoritative tick. Sinks receive the same value
// and must treat it as read-only.
type TickReport struct {
	Tick     uint64
	At       time.Time
	Duration time.Duration

	Drained  int
	Applied  int
	Rejected map[action.Result]int
	Outcomes []action.Outcome

	Generations map[uint32]uint64
	Entities    int

	QueueDepth   int
	QueueRefused uint64 // refused submissions since the previous tick
}

// OutcomeSink receives every tick report. Consume is called on the
// authoritative goroutine and must not block.
type OutcomeSink interface {
	Consume(report TickReport)
}

// AuthorityConfig configures the authoritative loop.
type AuthorityConfig struct {
	TickInterval time.Duration
	WriteWorkers int
	Clock        func() time.Time
}

// Authority is the single mutator of the live world. Every tick it drains
// the action queue, validates and applies requests in drain order, runs the
// rule updates and republishes a snapshot of every loaded map.
type Authority struct {
	cfg       AuthorityConfig
	world     *World
	rules     Rules
	validator *action.Validator
	queue     *action.Queue
	registry  *spatial.Registry
	sinks     []OutcomeSink

	tick        uint64
	last        time.Time
	lastRefused uint64
	scratch     []model.Snapshot

	mu      sync.Mutex
	pending []func(*World)
}

// NewAuthority wires the authoritative loop. Sinks may be empty.
func NewAuthority(cfg AuthorityConfig, world *World, rules Rules, validator *action.Validator,
	queue *action.Queue, registry *spatial.Registry, sinks ...OutcomeSink) *Authority {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.WriteWorkers < 1 {
		cfg.WriteWorkers = DefaultWriteWorkers
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Authority{
		cfg:       cfg,
		world:     world,
		rules:     rules,
		validator: validator,
		queue:     queue,
		registry:  registry,
		sinks:     sinks,
	}
}

// Do schedules fn to run on the authoritative goroutine at the start of the
// next tick. Safe for concurrent use.
func (a *Authority) Do(fn func(*World)) {
	a.mu.Lock()
	a.pending = append(a.pending, fn)
	a.mu.Unlock()
}

func (a *Authority) runPending() {
	a.mu.Lock()
	fns := a.pending
	a.pending = nil
	a.mu.Unlock()
	for _, fn := range fns {
		fn(a.world)
	}
}

// LoadMap makes mapID live and publishes its first snapshot. Authoritative
// goroutine only (or before Run starts).
func (a *Authority) LoadMap(mapID uint32) (uint64, error) {
	a.world.AddMap(mapID)
	return a.publish(mapID)
}

// UnloadMap despawns everything on mapID and destroys its index. Workers
// resolving the map afterwards see it as missing.
func (a *Authority) UnloadMap(mapID uint32) {
	for _, id := range a.world.RemoveMap(mapID) {
		a.validator.Cooldowns().Forget(id)
	}
	a.registry.Destroy(mapID)
	slog.Info("map unloaded", "map", mapID)
}

// World returns the live world. Authoritative goroutine only.
func (a *Authority) World() *World {
	return a.world
}

// Tick runs one authoritative step and returns its report.
func (a *Authority) Tick(ctx context.Context) (TickReport, error) {
	start := a.cfg.Clock()
	dt := a.cfg.TickInterval
	if !a.last.IsZero() {
		dt = start.Sub(a.last)
	}
	a.last = start
	a.tick++

	a.runPending()

	batch := a.queue.DrainAll()
	report := TickReport{
		Tick:        a.tick,
		At:          start,
		Drained:     len(batch),
		Rejected:    make(map[action.Result]int),
		Outcomes:    make([]action.Outcome, 0, len(batch)),
		Generations: make(map[uint32]uint64),
	}

	a.validator.BeginTick(a.tick, start)
	a.rules.BeginTick(start)
	for _, req := range batch {
		out := a.validator.Process(req, a.world)
		if out.State == action.StateApplied {
			report.Applied++
		} else {
			report.Rejected[out.Result]++
		}
		report.Outcomes = append(report.Outcomes, out)
	}
	a.queue.Recycle(batch)

	a.rules.Update(start, dt)
	if a.tick%pruneEvery == 0 {
		a.validator.Cooldowns().Prune(start)
	}

	for _, mapID := range a.world.Maps() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		gen, err := a.publish(mapID)
		if err != nil {
			return report, err
		}
		report.Generations[mapID] = gen
	}

	stats := a.queue.Stats()
	report.Entities = a.world.Len()
	report.QueueDepth = stats.Depth
	report.QueueRefused = stats.Refused - a.lastRefused
	a.lastRefused = stats.Refused
	if report.QueueRefused > 0 {
		slog.Warn("action queue saturated", "tick", a.tick, "refused", report.QueueRefused, "capacity", stats.Capacity)
	}
	report.Duration = a.cfg.Clock().Sub(start)

	for _, s := range a.sinks {
		s.Consume(report)
	}
	return report, nil
}

// publish captures mapID into the index write buffer and swaps it in.
func (a *Authority) publish(mapID uint32) (uint64, error) {
	idx := a.registry.GetOrCreate(mapID)
	if err := idx.BeginWritePass(); err != nil {
		return 0, fmt.Errorf("map %d write pass: %w", mapID, err)
	}
	a.scratch = a.world.CaptureMap(mapID, a.scratch[:0])
	if err := idx.InsertBatch(a.scratch, a.cfg.WriteWorkers); err != nil {
		return 0, fmt.Errorf("map %d insert: %w", mapID, err)
	}
	gen, err := idx.PublishSwap()
	if err != nil {
		return 0, fmt.Errorf("map %d publish: %w", mapID, err)
	}
	return gen, nil
}

// Run ticks every interval until ctx is canceled.
func (a *Authority) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	slog.Info("authority started", "interval", a.cfg.TickInterval, "maps", len(a.world.Maps()), "entities", a.world.Len())

	for {
		select {
		case <-ctx.Done():
			slog.Info("authority stopping", "ticks", a.tick)
			return nil
		case <-ticker.C:
			if _, err := a.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("tick %d: %w", a.tick, err)
			}
		}
	}
}
