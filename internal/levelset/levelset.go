// Package levelset describes the immutable quadtree pyramid of levels that
// backs an elevation model, plus the absent-resource tracker that throttles
// retries against tiles retrieval has failed to obtain.
package levelset

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/walkthru-earth/elevationd/internal/geo"
)

// Level is one resolution tier of the pyramid. Delta is in degrees per the
// wire/config convention (spec §3); TexelSize is derived in radians.
type Level struct {
	Number        int
	DeltaLatDeg   float64
	DeltaLonDeg   float64
	TileWidth     int
	TileHeight    int
	CacheName     string
	FormatSuffix  string
	Service       string
	Expiry        time.Time
	Empty         bool // contributes no tiles; numbering still advances past it
}

// TexelSize returns the angular extent of one sample, in radians.
func (l Level) TexelSize() geo.Angle {
	return geo.AngleFromDegrees(l.DeltaLatDeg) / geo.Angle(l.TileHeight)
}

// deltaLat/deltaLon in radians, convenience for row/col arithmetic.
func (l Level) deltaLat() geo.Angle { return geo.AngleFromDegrees(l.DeltaLatDeg) }
func (l Level) deltaLon() geo.Angle { return geo.AngleFromDegrees(l.DeltaLonDeg) }

// LevelSet is the ordered, immutable pyramid descriptor.
type LevelSet struct {
	Levels     []Level // index i has Number == i
	TileOrigin geo.LatLon
	Coverage   geo.Sector

	absent *AbsentTracker
}

// New validates the quad-tree halving invariant (Delta_{l+1} = Delta_l/2)
// and constructs a LevelSet.
func New(levels []Level, origin geo.LatLon, coverage geo.Sector, absent *AbsentTracker) (*LevelSet, error) {
	for i := 1; i < len(levels); i++ {
		prevLat, curLat := levels[i-1].DeltaLatDeg, levels[i].DeltaLatDeg
		prevLon, curLon := levels[i-1].DeltaLonDeg, levels[i].DeltaLonDeg
		if math.Abs(curLat*2-prevLat) > 1e-9 || math.Abs(curLon*2-prevLon) > 1e-9 {
			return nil, fmt.Errorf("levelset: level %d does not halve level %d's tile delta", i, i-1)
		}
		if levels[i].Number != i {
			return nil, fmt.Errorf("levelset: level at index %d has Number %d", i, levels[i].Number)
		}
	}
	if absent == nil {
		absent = NewAbsentTracker(DefaultMaxAttempts, DefaultMinRetryInterval)
	}
	return &LevelSet{Levels: levels, TileOrigin: origin, Coverage: coverage, absent: absent}, nil
}

// Absent returns the level set's absent-resource tracker.
func (ls *LevelSet) Absent() *AbsentTracker { return ls.absent }

// Row computes the zero-origin row for a latitude at the given level.
func Row(lat, origin, deltaLat geo.Angle) int {
	return int(math.Floor(float64((lat - origin) / deltaLat)))
}

// Column computes the zero-origin column for a longitude at the given level.
func Column(lon, origin, deltaLon geo.Angle) int {
	return int(math.Floor(float64((lon - origin) / deltaLon)))
}

// RowCol returns the (row, column) of the tile containing p at level l.
func (ls *LevelSet) RowCol(l Level, p geo.LatLon) (row, col int) {
	row = Row(p.Lat, ls.TileOrigin.Lat, l.deltaLat())
	col = Column(p.Lon, ls.TileOrigin.Lon, l.deltaLon())
	return
}

// SouthWest returns the south-west corner of tile (row, col) at level l.
func (ls *LevelSet) SouthWest(l Level, row, col int) geo.LatLon {
	return geo.LatLon{
		Lat: ls.TileOrigin.Lat + geo.Angle(row)*l.deltaLat(),
		Lon: ls.TileOrigin.Lon + geo.Angle(col)*l.deltaLon(),
	}
}

// TileSector returns the geographic sector of tile (row, col) at level l.
func (ls *LevelSet) TileSector(l Level, row, col int) geo.Sector {
	sw := ls.SouthWest(l, row, col)
	return geo.Sector{
		MinLat: sw.Lat, MaxLat: sw.Lat + l.deltaLat(),
		MinLon: sw.Lon, MaxLon: sw.Lon + l.deltaLon(),
	}
}

// LevelForTexelSize scans levels in increasing resolution (finer = smaller
// texel) and returns the first non-empty level whose texel size is <= the
// target, else the finest non-empty level.
func (ls *LevelSet) LevelForTexelSize(target geo.Angle) Level {
	var finestNonEmpty Level
	haveFinest := false
	for _, l := range ls.Levels {
		if l.Empty {
			continue
		}
		if !haveFinest || l.Number > finestNonEmpty.Number {
			finestNonEmpty = l
			haveFinest = true
		}
		if l.TexelSize() <= target {
			return l
		}
	}
	return finestNonEmpty
}

// LastLevel returns the finest non-empty level whose tile sector system
// covers sector (i.e. the coverage sector intersects it); since LevelSet
// coverage is level-independent, this is simply the finest non-empty level
// when the set's overall coverage intersects sector.
func (ls *LevelSet) LastLevel(sector geo.Sector) (Level, bool) {
	if !ls.Coverage.Intersects(sector) {
		return Level{}, false
	}
	var finest Level
	have := false
	for _, l := range ls.Levels {
		if l.Empty {
			continue
		}
		if !have || l.Number > finest.Number {
			finest = l
			have = true
		}
	}
	return finest, have
}

// AncestorWalk yields the sequence of ancestor levels starting at
// levels[startNumber-1] down to level 0, skipping empty levels but always
// decrementing the level number at each step (the resolved Open Question
// of spec.md §9).
func (ls *LevelSet) AncestorWalk(startNumber int) []Level {
	var out []Level
	for n := startNumber - 1; n >= 0; n-- {
		if n >= len(ls.Levels) {
			continue
		}
		l := ls.Levels[n]
		if l.Empty {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Default absent-resource tracker tuning (spec §4.1, §8 property 5).
const (
	DefaultMaxAttempts      = 3
	DefaultMinRetryInterval = 5 * time.Minute
)

// absentEntry tracks retrieval failures for one tile key.
type absentEntry struct {
	attempts  int
	lastCheck time.Time
}

// AbsentTracker records retrieval failures keyed by (level, row, column)
// and throttles retry with a fixed retry interval: a resource is
// considered absent once it has failed MaxAttempts times, and stays absent
// until MinInterval has elapsed since the last check, at which point exactly
// one retry is admitted.
type AbsentTracker struct {
	mu          sync.Mutex
	entries     map[[3]int]*absentEntry
	maxAttempts int
	minInterval time.Duration
	now         func() time.Time
}

// NewAbsentTracker builds a tracker with the given tuning.
func NewAbsentTracker(maxAttempts int, minInterval time.Duration) *AbsentTracker {
	return &AbsentTracker{
		entries:     make(map[[3]int]*absentEntry),
		maxAttempts: maxAttempts,
		minInterval: minInterval,
		now:         time.Now,
	}
}

func keyTuple(level, row, col int) [3]int { return [3]int{level, row, col} }

// MarkAbsent records a failed attempt for the key.
func (t *AbsentTracker) MarkAbsent(level, row, col int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := keyTuple(level, row, col)
	e, ok := t.entries[k]
	if !ok {
		e = &absentEntry{}
		t.entries[k] = e
	}
	e.attempts++
	e.lastCheck = t.now()
}

// UnmarkAbsent clears the failure record for the key, e.g. after a
// successful retrieval.
func (t *AbsentTracker) UnmarkAbsent(level, row, col int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, keyTuple(level, row, col))
}

// IsResourceAbsent is true iff attempts >= MaxAttempts and the elapsed time
// since the last check is less than MinInterval; this enforces periodic
// retry even after repeated failures. Each call that observes an elapsed
// interval records a fresh lastCheck, so it both answers and ticks one
// retry window forward.
func (t *AbsentTracker) IsResourceAbsent(level, row, col int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := keyTuple(level, row, col)
	e, ok := t.entries[k]
	if !ok || e.attempts < t.maxAttempts {
		return false
	}
	if t.now().Sub(e.lastCheck) < t.minInterval {
		return true
	}
	// TTL elapsed: admit exactly one retry by resetting the check clock,
	// but keep it absent until that retry either succeeds (UnmarkAbsent)
	// or fails again (MarkAbsent bumps lastCheck once more).
	e.lastCheck = t.now()
	return false
}
