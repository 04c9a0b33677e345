package bot

import (
	"testing"

	"github.com/udisondev/botsim/internal/model"
	"github.com/udisondev/botsim/internal/spatial"
	"github.com/udisondev/botsim/internal/testutil"
)

const testMap = 7

func player(n uint64, x, y float64, faction uint32) model.Snapshot {
	return testutil.Player(testMap, n, x, y, faction)
}

func creature(n uint64, x, y float64, alive bool) model.Snapshot {
	return testutil.Creature(testMap, n, x, y, alive)
}

func chest(n uint64, x, y float64) model.Snapshot {
	return testutil.Chest(testMap, n, x, y)
}

func publishedIndex(t testing.TB, snaps ...model.Snapshot) *spatial.Index {
	t.Helper()
	return testutil.PublishedIndex(t, testMap, snaps...)
}

func viewOf(t testing.TB, snaps ...model.Snapshot) View {
	return NewView(testMap, publishedIndex(t, snaps...))
}
