// Package tile defines pyramid addressing (level, row, column) and the tile
// types sampled by the elevation model.
package tile

import (
	"fmt"
	"time"

	"github.com/walkthru-earth/elevationd/internal/elevbuf"
	"github.com/walkthru-earth/elevationd/internal/geo"
)

// Key is the hashable identity of a tile: (level, row, column).
type Key struct {
	Level  int
	Row    int
	Column int
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Level, k.Row, k.Column)
}

// Parent returns the ancestor key one level up, halving row and column.
func (k Key) Parent() Key {
	return Key{Level: k.Level - 1, Row: k.Row / 2, Column: k.Column / 2}
}

// Tile addresses a single raster cell of a level's geographic grid.
type Tile struct {
	Key         Key
	Sector      geo.Sector
	LevelDeltaLat, LevelDeltaLon geo.Angle // texel extent source, mirrors the owning level
	Width, Height int
}

// Path returns the tile's relative disk path:
// <cacheName>/<row>/<row>_<col><suffix>; suffix is appended as given,
// so it carries its own leading dot (e.g. ".bil").
func (t Tile) Path(cacheName, suffix string) string {
	return fmt.Sprintf("%s/%d/%d_%d%s", cacheName, t.Key.Row, t.Key.Row, t.Key.Column, suffix)
}

// ElevationTile is a Tile with a loaded sample buffer and derived metadata.
type ElevationTile struct {
	Tile
	Buf          *elevbuf.Buffer
	UpdateTime   time.Time
	Min, Max     float64
}

// InMemory reports whether the tile is usable: it has a buffer and was
// loaded at or after expiry (i.e. it has not expired per the level's expiry
// policy).
func (e *ElevationTile) InMemory(expiry time.Time) bool {
	return e != nil && e.Buf != nil && !e.UpdateTime.Before(expiry)
}
