package action

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/botsim/internal/model"
)

func bot(n uint64) model.EntityID {
	return model.MakeEntityID(model.KindPlayer, n)
}

// Scenario: bot X enqueues {cast A, move B, cast C} while bot Y enqueues
// concurrently; X's requests drain in order.
func TestQueue_PerRequesterFIFO(t *testing.T) {
	q := NewQueue(16)
	x, y := bot(1), bot(2)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, q.Enqueue(Cast(x, 1, 100, TargetEntity(y))))
		assert.NoError(t, q.Enqueue(Move(x, 1, model.NewPosition(1, 2, 3))))
		assert.NoError(t, q.Enqueue(Cast(x, 1, 300, TargetEntity(y))))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, q.Enqueue(Attack(y, 1, x)))
	}()
	wg.Wait()

	batch := q.DrainAll()
	require.Len(t, batch, 4)

	var fromX []Request
	for _, r := range batch {
		if r.Requester == x {
			fromX = append(fromX, r)
		}
	}
	require.Len(t, fromX, 3)
	assert.Equal(t, KindCast, fromX[0].Kind)
	assert.Equal(t, uint32(100), fromX[0].SpellID)
	assert.Equal(t, KindMove, fromX[1].Kind)
	assert.Equal(t, uint32(300), fromX[2].SpellID)
	assert.Less(t, fromX[0].Seq, fromX[1].Seq)
	assert.Less(t, fromX[1].Seq, fromX[2].Seq)
}

func TestQueue_FIFOUnderManyProducers(t *testing.T) {
	const producers, perProducer = 32, 500
	q := NewQueue(producers * perProducer)

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := bot(uint64(p + 1))
			for i := range perProducer {
				req := Cast(id, 1, uint32(i+1), TargetEntity(id))
				if err := q.Enqueue(req); err != nil {
					t.Errorf("enqueue: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	batch := q.DrainAll()
	require.Len(t, batch, producers*perProducer)

	last := make(map[model.EntityID]uint32)
	var prevSeq uint64
	for _, r := range batch {
		assert.Greater(t, r.SpellID, last[r.Requester], "requester %s reordered", r.Requester)
		last[r.Requester] = r.SpellID
		assert.Greater(t, r.Seq, prevSeq)
		prevSeq = r.Seq
	}
}

// Scenario: fill to the bound, one more fails, drain returns exactly the accepted items.
func TestQueue_Backpressure(t *testing.T) {
	q := NewQueue(3)
	for i := range 3 {
		require.NoError(t, q.Enqueue(Cast(bot(1), 1, uint32(i+1), TargetEntity(bot(2)))))
	}

	err := q.Enqueue(Cast(bot(1), 1, 99, TargetEntity(bot(2))))
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 3, q.Len())

	batch := q.DrainAll()
	require.Len(t, batch, 3)
	for i, r := range batch {
		assert.Equal(t, uint32(i+1), r.SpellID)
	}

	st := q.Stats()
	assert.Equal(t, uint64(3), st.Accepted)
	assert.Equal(t, uint64(1), st.Refused)
	assert.Equal(t, uint64(3), st.Drained)
	assert.Equal(t, 0, st.Depth)

	require.NoError(t, q.Enqueue(Cast(bot(1), 1, 4, TargetEntity(bot(2)))), "drain frees capacity")
}

func TestQueue_DrainConcurrentWithProducers(t *testing.T) {
	const producers, perProducer = 8, 2000
	q := NewQueue(512)

	var wg sync.WaitGroup
	var accepted sync.Map
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := bot(uint64(p + 1))
			n := 0
			for i := range perProducer {
				if q.Enqueue(Move(id, 1, model.NewPosition(float64(i), 0, 0))) == nil {
					n++
				}
			}
			accepted.Store(id, n)
		}()
	}

	done := make(chan struct{})
	drained := make(map[model.EntityID]int)
	lastX := make(map[model.EntityID]float64)
	go func() {
		defer close(done)
		for {
			batch := q.DrainAll()
			for _, r := range batch {
				if c, ok := drained[r.Requester]; ok && c > 0 {
					if r.Target.Point.X <= lastX[r.Requester] {
						t.Errorf("requester %s reordered", r.Requester)
					}
				}
				drained[r.Requester]++
				lastX[r.Requester] = r.Target.Point.X
			}
			q.Recycle(batch)
			if allReported(&accepted, producers) && q.Stats().Accepted == q.Stats().Drained {
				return
			}
		}
	}()

	wg.Wait()
	<-done

	accepted.Range(func(k, v any) bool {
		assert.Equal(t, v.(int), drained[k.(model.EntityID)], "every accepted request drained once")
		return true
	})
}

func allReported(m *sync.Map, n int) bool {
	c := 0
	m.Range(func(any, any) bool { c++; return true })
	return c == n
}

func TestQueue_CloseAndReady(t *testing.T) {
	q := NewQueue(4)
	require.NoError(t, q.Enqueue(Attack(bot(1), 1, bot(2))))

	select {
	case <-q.Ready():
	default:
		t.Fatal("expected ready signal after enqueue")
	}

	q.Close()
	assert.ErrorIs(t, q.Enqueue(Attack(bot(1), 1, bot(2))), ErrQueueClosed)
	assert.Len(t, q.DrainAll(), 1, "pending requests survive Close")
}

func TestQueue_StampsSubmittedAt(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Enqueue(Attack(bot(1), 1, bot(2))))
	batch := q.DrainAll()
	require.Len(t, batch, 1)
	assert.False(t, batch[0].SubmittedAt.IsZero())
	assert.Equal(t, uint64(1), batch[0].Seq)
}

func BenchmarkQueue_Enqueue(b *testing.B) {
	q := NewQueue(1 << 20)
	req := Attack(bot(1), 1, bot(2))
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if q.Enqueue(req) != nil {
				q.DrainAll()
			}
		}
	})
}
