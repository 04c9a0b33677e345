// Package journal persists tick summaries and action outcomes off the
// authoritative goroutine.
package journal

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/udisondev/botsim/internal/action"
	"github.com/udisondev/botsim/internal/sim"
)

const (
	DefaultBatchSize     = 1024
	DefaultFlushInterval = time.Second
	DefaultBuffer        = 256

	flushTimeout = 5 * time.Second
	// dropWarnInterval spaces the warnings logged while reports are dropped.
	dropWarnInterval = 10 * time.Second
)

// Options tunes the journal.
type Options struct {
	BatchSize     int           // outcome rows per write
	FlushInterval time.Duration // max age of a pending batch
	Buffer        int           // tick reports held between authority and writer
	SkipApplied   bool          // persist rejections only
}

// Stats counts journal activity.
type Stats struct {
	Ticks    uint64
	Outcomes uint64
	Dropped  uint64 // reports discarded because the buffer was full
	Failed   uint64 // batches the store refused
}

type entry struct {
	tick     TickRow
	outcomes []OutcomeRow
}

// Journal is a sim.OutcomeSink that hands reports to a background writer.
// Consume never blocks: when the writer falls behind, reports are dropped
// and counted.
type Journal struct {
	store Store
	opts  Options
	in    chan entry
	clock func() time.Time

	ticks    atomic.Uint64
	outcomes atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
	lastWarn atomic.Int64 // unix nanos of the last drop warning
}

// New creates a journal writing to store.
func New(store Store, opts Options) *Journal {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.Buffer < 1 {
		opts.Buffer = DefaultBuffer
	}
	return &Journal{
		store: store,
		opts:  opts,
		in:    make(chan entry, opts.Buffer),
		clock: time.Now,
	}
}

var _ sim.OutcomeSink = (*Journal)(nil)

// Consume implements sim.OutcomeSink.
func (j *Journal) Consume(r sim.TickReport) {
	e := entry{tick: TickRow{
		Tick:         r.Tick,
		At:           r.At,
		Duration:     r.Duration,
		Drained:      r.Drained,
		Applied:      r.Applied,
		Rejected:     r.Drained - r.Applied,
		Entities:     r.Entities,
		QueueDepth:   r.QueueDepth,
		QueueRefused: r.QueueRefused,
	}}
	for _, o := range r.Outcomes {
		if j.opts.SkipApplied && o.State == action.StateApplied {
			continue
		}
		e.outcomes = append(e.outcomes, rowOf(o))
	}

	select {
	case j.in <- e:
	default:
		j.warnDropped(r.Tick, j.dropped.Add(1))
	}
}

// warnDropped logs at most once per dropWarnInterval.
func (j *Journal) warnDropped(tick, total uint64) {
	now := j.clock().UnixNano()
	last := j.lastWarn.Load()
	if last != 0 && now-last < int64(dropWarnInterval) {
		return
	}
	if !j.lastWarn.CompareAndSwap(last, now) {
		return
	}
	slog.Warn("journal falling behind, dropping tick reports", "tick", tick, "dropped_total", total)
}

func rowOf(o action.Outcome) OutcomeRow {
	req := o.Request
	return OutcomeRow{
		Tick:        o.Tick,
		Seq:         req.Seq,
		Requester:   uint64(req.Requester),
		MapID:       req.MapID,
		Kind:        req.Kind.String(),
		SpellID:     req.SpellID,
		TargetID:    uint64(req.Target.ID),
		Result:      o.Result.String(),
		Reason:      o.Reason,
		SubmittedAt: req.SubmittedAt,
	}
}

// Run writes batches until ctx is canceled, then flushes what is pending.
func (j *Journal) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.opts.FlushInterval)
	defer ticker.Stop()

	var (
		ticks    []TickRow
		outcomes []OutcomeRow
	)
	flush := func(ctx context.Context) {
		if len(ticks) == 0 && len(outcomes) == 0 {
			return
		}
		if err := j.store.SaveBatch(ctx, ticks, outcomes); err != nil {
			j.failed.Add(1)
			slog.Error("journal write failed", "ticks", len(ticks), "outcomes", len(outcomes), "error", err)
		} else {
			j.ticks.Add(uint64(len(ticks)))
			j.outcomes.Add(uint64(len(outcomes)))
		}
		ticks = ticks[:0]
		outcomes = outcomes[:0]
	}

	slog.Info("journal started", "batch", j.opts.BatchSize, "interval", j.opts.FlushInterval)
	for {
		select {
		case <-ctx.Done():
			// drain what the authority already handed over
		pending:
			for {
				select {
				case e := <-j.in:
					ticks = append(ticks, e.tick)
					outcomes = append(outcomes, e.outcomes...)
				default:
					break pending
				}
			}
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			flush(fctx)
			cancel()
			st := j.Stats()
			slog.Info("journal stopped", "ticks", st.Ticks, "outcomes", st.Outcomes, "dropped", st.Dropped, "failed", st.Failed)
			return nil

		case e := <-j.in:
			ticks = append(ticks, e.tick)
			outcomes = append(outcomes, e.outcomes...)
			if len(outcomes) >= j.opts.BatchSize {
				flush(ctx)
			}

		case <-ticker.C:
			flush(ctx)
		}
	}
}

// Stats returns counters since creation.
func (j *Journal) Stats() Stats {
	return Stats{
		Ticks:    j.ticks.Load(),
		Outcomes: j.outcomes.Load(),
		Dropped:  j.dropped.Load(),
		Failed:   j.failed.Load(),
	}
}
