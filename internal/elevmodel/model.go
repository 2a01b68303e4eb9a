// Package elevmodel implements the tiled elevation model: the non-blocking
// tile acquisition pipeline and bilinear sampling at the heart of the
// pyramid (spec §4.3-§4.5). It wires together every leaf package -
// internal/levelset, internal/memcache, internal/filestore,
// internal/retrieval, internal/taskservice, internal/rasterfmt,
// internal/extremes - the way the teacher's app.go wires its cache,
// downloaders, and task queue around a single tile source.
package elevmodel

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/walkthru-earth/elevationd/internal/elevbuf"
	"github.com/walkthru-earth/elevationd/internal/elevsource"
	"github.com/walkthru-earth/elevationd/internal/extremes"
	"github.com/walkthru-earth/elevationd/internal/filestore"
	"github.com/walkthru-earth/elevationd/internal/geo"
	"github.com/walkthru-earth/elevationd/internal/levelset"
	"github.com/walkthru-earth/elevationd/internal/memcache"
	"github.com/walkthru-earth/elevationd/internal/retrieval"
	"github.com/walkthru-earth/elevationd/internal/taskservice"
	"github.com/walkthru-earth/elevationd/internal/tile"
)

// URLForTile builds a retrieval URL for a pyramid tile (spec §6); concrete
// builders live in internal/urlbuilder.
type URLForTile func(level levelset.Level, row, col int) (string, error)

// Config collects every collaborator a Model needs. Extremes is optional;
// Retrieval and URLForTile are required only when NetworkRetrievalEnabled
// is set.
type Config struct {
	Levels    *levelset.LevelSet
	MemCache  *memcache.Cache
	FileStore *filestore.FileStore
	Retrieval *retrieval.Service
	Tasks     *taskservice.Service
	Extremes  *extremes.Grid // optional; nil disables grid-backed extremes

	DataType  elevbuf.DataType
	ByteOrder elevbuf.ByteOrder

	MissingSignal      float64
	MissingReplacement float64
	ElevationMin       float64
	ElevationMax       float64

	NetworkRetrievalEnabled bool
	URLForTile              URLForTile
}

func (c Config) validate() error {
	if c.Levels == nil || c.MemCache == nil || c.FileStore == nil || c.Tasks == nil {
		return fmt.Errorf("elevmodel: Levels, MemCache, FileStore and Tasks are required")
	}
	if c.NetworkRetrievalEnabled && (c.Retrieval == nil || c.URLForTile == nil) {
		return fmt.Errorf("elevmodel: Retrieval and URLForTile are required when NetworkRetrievalEnabled")
	}
	return nil
}

// Model is a TiledElevationModel: a quadtree pyramid of elevation rasters
// sampled through the non-blocking acquisition pipeline of spec §4.3. It
// implements elevsource.ElevationSource.
type Model struct {
	cfg Config

	pinnedMu sync.RWMutex
	pinned   map[tile.Key]*tile.ElevationTile // level-0 tiles, never evicted (spec §3 Lifecycle)

	listenersMu sync.Mutex
	listeners   []func(Event)
}

// New builds a Model from its collaborators. It returns a ConfigError
// (spec §7) if a required collaborator is missing.
func New(cfg Config) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, elevsource.Wrap(elevsource.KindConfigError, err)
	}
	return &Model{cfg: cfg, pinned: make(map[tile.Key]*tile.ElevationTile)}, nil
}

// memoryGet looks up a tile by key, consulting the pinned level-0 map or
// the byte-budgeted memory cache as appropriate, and checks expiry.
func (m *Model) memoryGet(key tile.Key, expiry time.Time) (*tile.ElevationTile, bool) {
	var t *tile.ElevationTile
	if key.Level == 0 {
		m.pinnedMu.RLock()
		t = m.pinned[key]
		m.pinnedMu.RUnlock()
	} else {
		v, ok := m.cfg.MemCache.Get(key)
		if ok {
			t = v
		}
	}
	if !t.InMemory(expiry) {
		return nil, false
	}
	return t, true
}

// install places a decoded tile into the appropriate store: the pinned
// level-0 map, or the byte-budgeted memory cache for every other level
// (spec §3 Lifecycle, §4.2).
func (m *Model) install(t *tile.ElevationTile) {
	if t.Key.Level == 0 {
		m.pinnedMu.Lock()
		m.pinned[t.Key] = t
		m.pinnedMu.Unlock()
		return
	}
	byteCost := int64(t.Buf.Len()) * int64(m.cfg.DataType.Size())
	m.cfg.MemCache.Put(t.Key, t, byteCost)
}

// ancestorKey computes the ancestor tile key at level al, for a target
// tile (targetLevel, targetRow, targetCol), by halving row/column once per
// level decrement - exactly the number of single-level steps between
// targetLevel and al.Number, whether or not intervening levels are empty.
func ancestorKey(targetLevel, targetRow, targetCol int, al levelset.Level) tile.Key {
	depth := uint(targetLevel - al.Number)
	return tile.Key{Level: al.Number, Row: targetRow >> depth, Column: targetCol >> depth}
}

// GetElevations is the core tile acquisition pipeline (spec §4.3, steps
// A-E). It never blocks on disk or network I/O; missing tiles are
// requested asynchronously and the answer degrades gracefully to a
// coarser ancestor or the extreme floor.
func (m *Model) GetElevations(ctx context.Context, sector geo.Sector, locations []geo.LatLon, targetResolution float64, out []float64, mapMissing bool) (float64, error) {
	if len(locations) != len(out) {
		return 0, elevsource.Wrap(elevsource.KindInvalidArgument, fmt.Errorf("elevmodel: len(locations)=%d != len(out)=%d", len(locations), len(out)))
	}
	if err := ctx.Err(); err != nil {
		return 0, elevsource.Wrap(elevsource.KindInterrupted, err)
	}

	// Step A.
	if !m.cfg.Levels.Coverage.Intersects(sector) {
		return math.Inf(1), nil
	}
	targetLevel := m.cfg.Levels.LevelForTexelSize(geo.Angle(targetResolution))
	expiry := targetLevel.Expiry

	// Step B.
	nwRow, nwCol := m.cfg.Levels.RowCol(targetLevel, geo.LatLon{Lat: sector.MaxLat, Lon: sector.MinLon})
	seRow, seCol := m.cfg.Levels.RowCol(targetLevel, geo.LatLon{Lat: sector.MinLat, Lon: sector.MaxLon})
	if nwRow > seRow {
		nwRow, seRow = seRow, nwRow
	}
	if nwCol > seCol {
		nwCol, seCol = seCol, nwCol
	}

	workingSet := make(map[tile.Key]*tile.ElevationTile)
	missingTarget := false
	missingLevelZero := false
	worstTexel := targetLevel.TexelSize()

	ancestors := m.cfg.Levels.AncestorWalk(targetLevel.Number)

	for r := nwRow; r <= seRow; r++ {
		for c := nwCol; c <= seCol; c++ {
			key := tile.Key{Level: targetLevel.Number, Row: r, Column: c}
			if t, ok := m.memoryGet(key, expiry); ok {
				workingSet[key] = t
				continue
			}

			missingTarget = true
			m.requestTile(targetLevel, r, c)

			found := false
			var lastMissing levelset.Level
			var lastRow, lastCol int
			for _, al := range ancestors {
				ak := ancestorKey(targetLevel.Number, r, c, al)
				if t, ok := m.memoryGet(ak, al.Expiry); ok {
					if _, already := workingSet[ak]; !already {
						workingSet[ak] = t
						if al.TexelSize() > worstTexel {
							worstTexel = al.TexelSize()
						}
					}
					found = true
					break
				}
				lastMissing = al
				lastRow, lastCol = ak.Row, ak.Column
			}
			if !found {
				missingLevelZero = true
				if len(ancestors) > 0 {
					m.requestTile(lastMissing, lastRow, lastCol)
				}
			}
		}
	}

	// Step C.
	useFallback := len(workingSet) == 0 || missingLevelZero
	achieved := targetLevel.TexelSize().Radians()
	if useFallback {
		achieved = math.Inf(1)
	} else if missingTarget {
		achieved = worstTexel.Radians()
	}

	tiles := make([]*tile.ElevationTile, 0, len(workingSet))
	if !useFallback {
		for _, t := range workingSet {
			tiles = append(tiles, t)
		}
		m.refineExtremes(sector, tiles)
	}

	// Steps D & E.
	for i, loc := range locations {
		t := findContaining(tiles, loc)
		if t == nil {
			if m.cfg.Levels.Coverage.Contains(loc) {
				out[i] = m.extremeMin(sector)
			}
			continue
		}
		v, ok := bilinear(t, loc, m.cfg.MissingSignal)
		if !ok {
			if m.cfg.Levels.Coverage.Contains(loc) {
				out[i] = m.extremeMin(sector)
			}
			continue
		}
		if v == m.cfg.MissingSignal {
			if mapMissing {
				out[i] = m.cfg.MissingReplacement
			} else {
				out[i] = m.cfg.MissingSignal
			}
			continue
		}
		out[i] = v
	}

	return achieved, nil
}

// refineExtremes folds the resolved working set's per-tile (min,max) into a
// tighter extreme for sector and updates the grid's lookup cache when it
// differs from what's cached (spec §4.6), tightening the coarse grid's
// answer once a query has actually resolved real tile data over it.
func (m *Model) refineExtremes(sector geo.Sector, tiles []*tile.ElevationTile) {
	if m.cfg.Extremes == nil || len(tiles) == 0 {
		return
	}
	min, max := math.Inf(1), math.Inf(-1)
	for _, t := range tiles {
		if t.Min < min {
			min = t.Min
		}
		if t.Max > max {
			max = t.Max
		}
	}
	if cmin, cmax, ok := m.cfg.Extremes.Sector(sector); ok && cmin == min && cmax == max {
		return
	}
	m.cfg.Extremes.Insert(sector, min, max)
}

func findContaining(tiles []*tile.ElevationTile, loc geo.LatLon) *tile.ElevationTile {
	for _, t := range tiles {
		if t.Sector.Contains(loc) {
			return t
		}
	}
	return nil
}

// extremeMin returns the safe floor elevation for a sector: the grid
// extreme when an extremes grid is configured, else the model's configured
// coarse elevation floor (spec §4.3 step E, §9 elevationMin/Max fields).
func (m *Model) extremeMin(sector geo.Sector) float64 {
	if m.cfg.Extremes != nil {
		if min, _, ok := m.cfg.Extremes.Sector(sector); ok {
			return min
		}
	}
	return m.cfg.ElevationMin
}

// GetUnmappedElevation samples a single point with no missing-signal
// replacement, via the same acquisition pipeline as GetElevations.
func (m *Model) GetUnmappedElevation(lat, lon float64) (float64, bool) {
	p := geo.NewLatLonDegrees(lat, lon)
	if !m.cfg.Levels.Coverage.Contains(p) {
		return 0, false
	}
	sector := geo.Sector{MinLat: p.Lat, MaxLat: p.Lat, MinLon: p.Lon, MaxLon: p.Lon}
	out := make([]float64, 1)
	achieved, err := m.GetElevations(context.Background(), sector, []geo.LatLon{p}, 0, out, false)
	if err != nil || math.IsInf(achieved, 1) {
		return 0, false
	}
	return out[0], true
}

func (m *Model) Intersects(sector geo.Sector) bool { return m.cfg.Levels.Coverage.Intersects(sector) }
func (m *Model) Contains(p geo.LatLon) bool         { return m.cfg.Levels.Coverage.Contains(p) }

func (m *Model) BestResolution(sector geo.Sector) float64 {
	l, ok := m.cfg.Levels.LastLevel(sector)
	if !ok {
		return math.Inf(1)
	}
	return l.TexelSize().Radians()
}

func (m *Model) ExtremesPoint(p geo.LatLon) (elevsource.Extent, bool) {
	if m.cfg.Extremes != nil {
		if min, max, ok := m.cfg.Extremes.Point(p); ok {
			return elevsource.Extent{Min: min, Max: max}, true
		}
	}
	if !m.cfg.Levels.Coverage.Contains(p) {
		return elevsource.Extent{}, false
	}
	return elevsource.Extent{Min: m.cfg.ElevationMin, Max: m.cfg.ElevationMax}, true
}

func (m *Model) ExtremesSector(sector geo.Sector) (elevsource.Extent, bool) {
	if m.cfg.Extremes != nil {
		if min, max, ok := m.cfg.Extremes.Sector(sector); ok {
			return elevsource.Extent{Min: min, Max: max}, true
		}
	}
	if !m.cfg.Levels.Coverage.Intersects(sector) {
		return elevsource.Extent{}, false
	}
	return elevsource.Extent{Min: m.cfg.ElevationMin, Max: m.cfg.ElevationMax}, true
}

// LocalAvailability reports whether every tile the finest non-empty level
// needs to cover sector is already present on disk, without requesting
// anything.
func (m *Model) LocalAvailability(sector geo.Sector) bool {
	level, ok := m.cfg.Levels.LastLevel(sector)
	if !ok {
		return false
	}
	nwRow, nwCol := m.cfg.Levels.RowCol(level, geo.LatLon{Lat: sector.MaxLat, Lon: sector.MinLon})
	seRow, seCol := m.cfg.Levels.RowCol(level, geo.LatLon{Lat: sector.MinLat, Lon: sector.MaxLon})
	if nwRow > seRow {
		nwRow, seRow = seRow, nwRow
	}
	if nwCol > seCol {
		nwCol, seCol = seCol, nwCol
	}
	for r := nwRow; r <= seRow; r++ {
		for c := nwCol; c <= seCol; c++ {
			key := tile.Key{Level: level.Number, Row: r, Column: c}
			t := tile.Tile{Key: key}
			if !m.cfg.FileStore.Contains(t.Path(level.CacheName, level.FormatSuffix)) {
				return false
			}
		}
	}
	return true
}

// CacheBytesUsed reports the current byte usage of the tile memory cache,
// for metrics exposition.
func (m *Model) CacheBytesUsed() int64 { return m.cfg.MemCache.Used() }

// RetrievalQueueDepth reports the current depth of the network retrieval
// queue, or 0 when network retrieval is disabled.
func (m *Model) RetrievalQueueDepth() int {
	if m.cfg.Retrieval == nil {
		return 0
	}
	return m.cfg.Retrieval.QueueDepth()
}

var _ elevsource.ElevationSource = (*Model)(nil)
