// Package extremes answers coarse min/max elevation queries from a single
// preloaded grid, without touching the tile pyramid (spec §4.6).
package extremes

import (
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/walkthru-earth/elevationd/internal/geo"
)

// entryCost is the fixed byte cost of one cached (min, max) pair, per
// spec §4.6.
const entryCost = 64

// Grid is a flat big-endian int16 buffer of (min, max) pairs, one pair per
// coarse cell, loaded once at construction and held for the model's
// lifetime (spec §3 "Lifecycle").
type Grid struct {
	data   []byte // rows*cols*2 int16 entries, big-endian
	rows   int
	cols   int
	level  int // coarse level number, parsed from the filename
	origin geo.LatLon
	delta  geo.Angle // per-cell angular size (same for lat and lon)
	signal float64
	replacement float64

	mu    sync.Mutex
	cache *lru.Cache[geo.Sector, pair]
	cacheBudget int64
	cacheUsed   int64
}

type pair struct{ min, max float64 }

// LevelFromFilename extracts the coarse level number encoded as the last
// underscore-delimited segment of the filename before its extension, e.g.
// "extremes_4.bin" -> 4 (spec §6).
func LevelFromFilename(path string) (int, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	idx := strings.LastIndex(stem, "_")
	if idx < 0 {
		return 0, fmt.Errorf("extremes: filename %q has no level suffix", base)
	}
	return strconv.Atoi(stem[idx+1:])
}

// Load builds a Grid from raw file bytes. rows/cols describe the coarse
// grid dimensions; origin/delta place it geographically; signal/replacement
// implement the missing-data substitution of spec §4.6.
func Load(data []byte, rows, cols, level int, origin geo.LatLon, delta geo.Angle, signal, replacement float64, cacheBudgetBytes int64) (*Grid, error) {
	want := rows * cols * 2 * 2 // 2 bytes per int16, 2 entries (min,max) per cell
	if len(data) != want {
		return nil, fmt.Errorf("extremes: expected %d bytes for %dx%d grid, got %d", want, rows, cols, len(data))
	}
	g := &Grid{
		data: data, rows: rows, cols: cols, level: level,
		origin: origin, delta: delta, signal: signal, replacement: replacement,
		cacheBudget: cacheBudgetBytes,
	}
	if cacheBudgetBytes > 0 {
		cap := int(cacheBudgetBytes / entryCost)
		if cap < 1 {
			cap = 1
		}
		c, err := lru.New[geo.Sector, pair](cap)
		if err != nil {
			return nil, err
		}
		g.cache = c
	}
	return g, nil
}

// Level returns the coarse level number this grid was built for.
func (g *Grid) Level() int { return g.level }

func (g *Grid) cellAt(p geo.LatLon) (row, col int, ok bool) {
	row = int(math.Floor(float64((p.Lat - g.origin.Lat) / g.delta)))
	col = int(math.Floor(float64((p.Lon - g.origin.Lon) / g.delta)))
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		return 0, 0, false
	}
	return row, col, true
}

func (g *Grid) readCell(row, col int) pair {
	idx := row*g.cols + col
	off := idx * 4 // 2 int16 entries per cell
	minRaw := int16(binary.BigEndian.Uint16(g.data[off : off+2]))
	maxRaw := int16(binary.BigEndian.Uint16(g.data[off+2 : off+4]))

	min, max := float64(minRaw), float64(maxRaw)
	if min == g.signal {
		min = g.replacement
	}
	if max == g.signal {
		max = g.replacement
	}
	return pair{min: min, max: max}
}

// Point returns (min, max) elevation for a single location.
func (g *Grid) Point(p geo.LatLon) (min, max float64, ok bool) {
	row, col, ok := g.cellAt(p)
	if !ok {
		return 0, 0, false
	}
	pr := g.readCell(row, col)
	return pr.min, pr.max, true
}

// Sector returns (min, max) elevation over a sector, consulting the
// bounded lookup cache first and folding the covering cells on a miss.
func (g *Grid) Sector(s geo.Sector) (min, max float64, ok bool) {
	if g.cache != nil {
		g.mu.Lock()
		if pr, hit := g.cache.Get(s); hit {
			g.mu.Unlock()
			return pr.min, pr.max, true
		}
		g.mu.Unlock()
	}

	minRow, minCol, okMin := g.cellAt(geo.LatLon{Lat: s.MinLat, Lon: s.MinLon})
	maxRow, maxCol, okMax := g.cellAt(geo.LatLon{Lat: s.MaxLat, Lon: s.MaxLon})
	if !okMin && !okMax {
		return 0, 0, false
	}
	minRow, minCol = clamp(minRow, 0, g.rows-1), clamp(minCol, 0, g.cols-1)
	maxRow, maxCol = clamp(maxRow, 0, g.rows-1), clamp(maxCol, 0, g.cols-1)
	if minRow > maxRow {
		minRow, maxRow = maxRow, minRow
	}
	if minCol > maxCol {
		minCol, maxCol = maxCol, minCol
	}

	folded := pair{min: math.Inf(1), max: math.Inf(-1)}
	for r := minRow; r <= maxRow; r++ {
		for c := minCol; c <= maxCol; c++ {
			cell := g.readCell(r, c)
			if cell.min < folded.min {
				folded.min = cell.min
			}
			if cell.max > folded.max {
				folded.max = cell.max
			}
		}
	}

	g.Insert(s, folded.min, folded.max)
	return folded.min, folded.max, true
}

// Insert caches a (possibly tighter, coverage-refined) extreme for a
// sector, per spec §4.6's "update the lookup cache if it differs".
func (g *Grid) Insert(s geo.Sector, min, max float64) {
	if g.cache == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache.Add(s, pair{min: min, max: max})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
