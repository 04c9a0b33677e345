package bot

import (
	"github.com/udisondev/botsim/internal/model"
	"github.com/udisondev/botsim/internal/spatial"
)

// View is a read-only window onto the published snapshots of one map.
// It is the only world access a Brain gets.
type View struct {
	mapID uint32
	idx   *spatial.Index
}

// NewView wraps idx. A nil index yields an empty view.
func NewView(mapID uint32, idx *spatial.Index) View {
	return View{mapID: mapID, idx: idx}
}

// MapID returns the map the view covers.
func (v View) MapID() uint32 {
	return v.mapID
}

// Generation returns the published generation seen by the view.
func (v View) Generation() uint64 {
	if v.idx == nil {
		return 0
	}
	return v.idx.Generation()
}

// Nearby returns snapshots of kind within radius of origin.
func (v View) Nearby(kind model.EntityKind, origin model.Position, radius float64) []model.Snapshot {
	if v.idx == nil {
		return nil
	}
	return v.idx.QueryNearby(kind, origin, radius)
}

// Query appends snapshots matching mask inside shape to dst.
func (v View) Query(dst []model.Snapshot, mask model.KindMask, shape spatial.Shape) []model.Snapshot {
	if v.idx == nil {
		return dst
	}
	return v.idx.QueryInto(dst, mask, shape)
}

// Lookup returns the published snapshot of id.
func (v View) Lookup(id model.EntityID) (model.Snapshot, bool) {
	if v.idx == nil {
		return model.Snapshot{}, false
	}
	return v.idx.Lookup(id)
}
