package geo

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/udisondev/botsim/internal/model"
)

func TestObstacleMap_OpenField(t *testing.T) {
	m := NewObstacleMap(DefaultResolution, DefaultEyeHeight)
	assert.True(t, m.CanSeeTarget(1, model.NewPosition(0, 0, 0), model.NewPosition(100, 0, 0)))
}

func TestObstacleMap_WallBlocks(t *testing.T) {
	m := NewObstacleMap(2, 2)
	m.BlockRect(1, 10, -4, 11, 4, 10)

	from, to := model.NewPosition(0, 0, 0), model.NewPosition(20, 0, 0)
	assert.False(t, m.CanSeeTarget(1, from, to))
	assert.False(t, m.CanSeeTarget(1, to, from), "symmetric")

	assert.True(t, m.CanSeeTarget(1, from, model.NewPosition(0, 20, 0)), "wall is not on this line")
	assert.True(t, m.CanSeeTarget(2, from, to), "other maps unaffected")
}

func TestObstacleMap_LowWallSeenOver(t *testing.T) {
	m := NewObstacleMap(2, 2)
	m.Block(1, 10, 0, 3)

	assert.True(t, m.CanSeeTarget(1, model.NewPosition(0, 0, 0), model.NewPosition(20, 0, 0)))

	m.Block(1, 10, 0, 9)
	assert.False(t, m.CanSeeTarget(1, model.NewPosition(0, 0, 0), model.NewPosition(20, 0, 0)))

	assert.True(t, m.CanSeeTarget(1, model.NewPosition(0, 0, 40), model.NewPosition(20, 0, 40)),
		"line passes far above the wall")
}

func TestObstacleMap_LongLinesNotTraced(t *testing.T) {
	m := NewObstacleMap(2, 2)
	m.Block(1, 500, 500, 10)

	far := float64(MaxTraceCells) * 2 * 4
	tests := []struct {
		name     string
		from, to model.Position
	}{
		{"distant target", model.NewPosition(0, 0, 0), model.NewPosition(1e12, 0, 0)},
		{"opposite extremes", model.NewPosition(-1e12, -1e12, -1e12), model.NewPosition(1e12, 1e12, 1e12)},
		{"beyond trace limit", model.NewPosition(0, 0, 0), model.NewPosition(far, 0, 0)},
		{"NaN", model.NewPosition(math.NaN(), 0, 0), model.NewPosition(10, 0, 0)},
		{"+Inf", model.NewPosition(0, 0, 0), model.NewPosition(math.Inf(1), 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan bool, 1)
			go func() { done <- m.CanSeeTarget(1, tt.from, tt.to) }()
			select {
			case visible := <-done:
				assert.False(t, visible)
			case <-time.After(time.Second):
				t.Fatal("sight line was not bounded")
			}
		})
	}

	near := float64(MaxTraceCells-1) * 2
	assert.True(t, m.CanSeeTarget(1, model.NewPosition(0, 0, 0), model.NewPosition(near, 0, 0)),
		"lines within the limit are still traced")
}

func TestObstacleMap_Clear(t *testing.T) {
	m := NewObstacleMap(2, 2)
	m.BlockRect(1, 10, -4, 11, 4, 10)
	assert.Positive(t, m.Columns(1))

	m.Clear(1)
	assert.Zero(t, m.Columns(1))
	assert.True(t, m.CanSeeTarget(1, model.NewPosition(0, 0, 0), model.NewPosition(20, 0, 0)))
}

func TestObstacleMap_ConcurrentReadsDuringLoad(t *testing.T) {
	m := NewObstacleMap(2, 2)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					m.CanSeeTarget(1, model.NewPosition(0, 0, 0), model.NewPosition(50, 50, 0))
				}
			}
		}()
	}
	for i := range 100 {
		m.Block(1, float64(i), float64(i), 10)
	}
	close(stop)
	wg.Wait()

	assert.False(t, m.CanSeeTarget(1, model.NewPosition(0, 0, 0), model.NewPosition(50, 50, 0)))
}
