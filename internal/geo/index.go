// Package geo owns the in-memory spatial index used for proximity search.
// It holds identity + point only; full entity records stay in their stores.
package geo

import (
	"math"
	"sort"
	"sync"

	"hemolink/pkg/domain"
)

// cellSizeDeg is the grid cell edge in degrees. 0.25 degrees is roughly
// 28 km of latitude, so a city-scale radius query (<= 50 km) touches a
// handful of cells instead of scanning every entity.
const cellSizeDeg = 0.25

// lngCells is the number of longitude cells in one latitude ring. Cell
// indices wrap modulo this count so queries near the antimeridian see
// neighbors on both sides of the +-180 seam.
const lngCells = int(360 / cellSizeDeg)

// Neighbor is one radius-query result.
type Neighbor struct {
	ID        string
	DistanceM float64
}

type cellKey struct {
	latIdx int
	lngIdx int
}

// Index is a grid-bucketed point index. Concurrent readers are cheap; the
// index-wide write lock is acceptable because location updates are rare
// relative to queries.
type Index struct {
	mu    sync.RWMutex
	cells map[cellKey]map[string]domain.Point
	byID  map[string]domain.Point
}

func NewIndex() *Index {
	return &Index{
		cells: make(map[cellKey]map[string]domain.Point),
		byID:  make(map[string]domain.Point),
	}
}

func keyFor(p domain.Point) cellKey {
	return cellKey{
		latIdx: int(math.Floor(p.Lat / cellSizeDeg)),
		lngIdx: wrapLngIdx(int(math.Floor(p.Lng / cellSizeDeg))),
	}
}

// wrapLngIdx maps a longitude cell index into [-lngCells/2, lngCells/2),
// so +180 and -180 land in the same cell.
func wrapLngIdx(gi int) int {
	gi = ((gi % lngCells) + lngCells) % lngCells
	if gi >= lngCells/2 {
		gi -= lngCells
	}
	return gi
}

// Upsert inserts or moves an entity. A move is remove-from-old-cell plus
// insert-into-new-cell, O(1) amortized.
func (ix *Index) Upsert(entityID string, p domain.Point) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.byID[entityID]; ok {
		ix.removeFromCell(entityID, old)
	}
	ix.byID[entityID] = p

	k := keyFor(p)
	cell := ix.cells[k]
	if cell == nil {
		cell = make(map[string]domain.Point)
		ix.cells[k] = cell
	}
	cell[entityID] = p
}

// Remove drops an entity from the index. Unknown IDs are a no-op.
func (ix *Index) Remove(entityID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	p, ok := ix.byID[entityID]
	if !ok {
		return
	}
	delete(ix.byID, entityID)
	ix.removeFromCell(entityID, p)
}

// removeFromCell must be called with the write lock held.
func (ix *Index) removeFromCell(entityID string, p domain.Point) {
	k := keyFor(p)
	if cell := ix.cells[k]; cell != nil {
		delete(cell, entityID)
		if len(cell) == 0 {
			delete(ix.cells, k)
		}
	}
}

// Len returns the number of indexed entities.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID)
}

// QueryRadius returns entities within radiusM meters of center, nearest
// first, ties broken by ID ascending for determinism. At most limit entries
// are returned (limit <= 0 means unlimited); results are never padded with
// out-of-radius entities.
func (ix *Index) QueryRadius(center domain.Point, radiusM float64, limit int) []Neighbor {
	if radiusM < 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	// Bounding box of candidate cells. Longitude span widens with latitude;
	// clamp cos(lat) away from zero so polar queries degrade to a scan of
	// the ring instead of missing cells.
	radiusDeg := radiusM / earthRadiusM * 180 / math.Pi
	latSpan := int(math.Ceil(radiusDeg/cellSizeDeg)) + 1
	cosLat := math.Cos(center.Lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	lngSpan := int(math.Ceil(radiusDeg/cosLat/cellSizeDeg)) + 1
	// A span wider than half the ring would revisit cells after wrapping.
	if lngSpan > (lngCells-1)/2 {
		lngSpan = (lngCells - 1) / 2
	}

	centerKey := keyFor(center)
	var out []Neighbor
	for li := centerKey.latIdx - latSpan; li <= centerKey.latIdx+latSpan; li++ {
		for gi := centerKey.lngIdx - lngSpan; gi <= centerKey.lngIdx+lngSpan; gi++ {
			cell, ok := ix.cells[cellKey{latIdx: li, lngIdx: wrapLngIdx(gi)}]
			if !ok {
				continue
			}
			for id, p := range cell {
				d := DistanceM(center, p)
				if d <= radiusM {
					out = append(out, Neighbor{ID: id, DistanceM: d})
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceM != out[j].DistanceM {
			return out[i].DistanceM < out[j].DistanceM
		}
		return out[i].ID < out[j].ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
