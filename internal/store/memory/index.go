package memory

import (
	"math"
	"sort"
	"time"

	"github.com/rkm/stac-catalog/internal/query"
	"github.com/rkm/stac-catalog/internal/stac"
)

// gridStep is the edge length in degrees of a spatial grid cell.
const gridStep = 5.0

type gridCell struct {
	x, y int16
}

func newCollectionState(meta *stac.Collection) *collectionState {
	return &collectionState{
		meta:  meta,
		items: make(map[string]*Record),
		grid:  make(map[gridCell]map[string]struct{}),
	}
}

// insert indexes a record. Callers hold the store's write lock.
func (c *collectionState) insert(rec *Record) {
	c.items[rec.Item.Id] = rec

	ref := itemRef{start: startNanos(rec), id: rec.Item.Id}
	i := sort.Search(len(c.byStart), func(i int) bool {
		return !refLess(c.byStart[i], ref)
	})
	c.byStart = append(c.byStart, itemRef{})
	copy(c.byStart[i+1:], c.byStart[i:])
	c.byStart[i] = ref

	for _, cell := range cellsForBBox(rec.Meta.BBox) {
		ids, ok := c.grid[cell]
		if !ok {
			ids = make(map[string]struct{})
			c.grid[cell] = ids
		}
		ids[rec.Item.Id] = struct{}{}
	}
}

// remove unindexes a record. Callers hold the store's write lock.
func (c *collectionState) remove(rec *Record) {
	delete(c.items, rec.Item.Id)

	ref := itemRef{start: startNanos(rec), id: rec.Item.Id}
	i := sort.Search(len(c.byStart), func(i int) bool {
		return !refLess(c.byStart[i], ref)
	})
	if i < len(c.byStart) && c.byStart[i].id == rec.Item.Id {
		c.byStart = append(c.byStart[:i], c.byStart[i+1:]...)
	}

	for _, cell := range cellsForBBox(rec.Meta.BBox) {
		if ids, ok := c.grid[cell]; ok {
			delete(ids, rec.Item.Id)
			if len(ids) == 0 {
				delete(c.grid, cell)
			}
		}
	}
}

// candidates selects the records worth evaluating for a filter, using the
// narrowest applicable index. Selection only prunes; the exact evaluator
// still runs per row, so over-selection is correct and under-selection is
// the only bug class to avoid.
func (c *collectionState) candidates(filter *query.Fragment) []*Record {
	if boxes := pruneBBoxes(filter); boxes != nil {
		return c.spatialCandidates(boxes)
	}
	if end, ok := pruneEnd(filter); ok {
		return c.temporalCandidates(end)
	}
	out := make([]*Record, 0, len(c.items))
	for _, rec := range c.items {
		out = append(out, rec)
	}
	return out
}

func (c *collectionState) spatialCandidates(boxes [][]float64) []*Record {
	seen := make(map[string]struct{})
	var out []*Record
	for _, bbox := range boxes {
		for _, cell := range cellsForBBox(bbox) {
			for id := range c.grid[cell] {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, c.items[id])
			}
		}
	}
	return out
}

// temporalCandidates returns every record whose start is at or before end;
// overlap requires itemStart <= queryEnd, so records past end cannot match.
func (c *collectionState) temporalCandidates(end time.Time) []*Record {
	limit := end.UnixNano()
	n := sort.Search(len(c.byStart), func(i int) bool {
		return c.byStart[i].start > limit
	})
	out := make([]*Record, 0, n)
	for _, ref := range c.byStart[:n] {
		out = append(out, c.items[ref.id])
	}
	return out
}

// pruneBBoxes extracts a set of boxes whose union covers every possible
// match, or nil when no such set exists in the filter tree. An AND yields
// its first child with boxes; an OR yields the union only when every branch
// has one, since a box-free branch can match anywhere.
func pruneBBoxes(f *query.Fragment) [][]float64 {
	if f == nil {
		return nil
	}
	switch f.Kind {
	case query.KindSpatial:
		return [][]float64{f.BBox}
	case query.KindAnd:
		for _, child := range f.Children {
			if boxes := pruneBBoxes(child); boxes != nil {
				return boxes
			}
		}
		return nil
	case query.KindOr:
		var union [][]float64
		for _, child := range f.Children {
			boxes := pruneBBoxes(child)
			if boxes == nil {
				return nil
			}
			union = append(union, boxes...)
		}
		return union
	default:
		return nil
	}
}

// pruneEnd extracts an upper bound on item start time from the filter tree,
// when one exists.
func pruneEnd(f *query.Fragment) (time.Time, bool) {
	if f == nil {
		return time.Time{}, false
	}
	switch f.Kind {
	case query.KindTemporal:
		if f.End != nil {
			return *f.End, true
		}
		return time.Time{}, false
	case query.KindAnd:
		for _, child := range f.Children {
			if end, ok := pruneEnd(child); ok {
				return end, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func startNanos(rec *Record) int64 {
	// Normalization guarantees a temporal extent on every stored item.
	return rec.Meta.Start.UnixNano()
}

func refLess(a, b itemRef) bool {
	if a.start != b.start {
		return a.start < b.start
	}
	return a.id < b.id
}

// cellsForBBox returns the grid cells a WGS84 envelope touches. Envelopes
// crossing the antimeridian (west > east) expand into both hemispheric runs.
func cellsForBBox(bbox []float64) []gridCell {
	if len(bbox) != 4 {
		return nil
	}
	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]
	if west > east {
		cells := cellsForBBox([]float64{west, south, 180, north})
		return append(cells, cellsForBBox([]float64{-180, south, east, north})...)
	}

	// Boundary coordinates index into both adjacent cells; over-coverage
	// keeps pruning correct for envelopes ending exactly on a cell edge.
	x0, x1 := cellIndex(west), cellIndex(east)
	y0, y1 := cellIndex(south), cellIndex(north)

	cells := make([]gridCell, 0, (x1-x0+1)*(y1-y0+1))
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			cells = append(cells, gridCell{x: int16(x), y: int16(y)})
		}
	}
	return cells
}

func cellIndex(v float64) int {
	return int(math.Floor(v / gridStep))
}
