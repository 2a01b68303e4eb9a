package config

import (
	"time"

	"github.com/walkthru-earth/elevationd/internal/levelset"
)

// BuildLevelSet expands a ModelConfig's single base tile-delta into the
// full quadtree pyramid (spec §3 "Δ_{l+1} = Δ_l/2"), marking the first
// NumEmptyLevels levels empty.
func (c ModelConfig) BuildLevelSet(absent *levelset.AbsentTracker) (*levelset.LevelSet, error) {
	levels := make([]levelset.Level, c.NumLevels)
	div := 1.0
	for l := 0; l < c.NumLevels; l++ {
		levels[l] = levelset.Level{
			Number:       l,
			DeltaLatDeg:  c.TileDeltaLatDeg / div,
			DeltaLonDeg:  c.TileDeltaLonDeg / div,
			TileWidth:    c.TileWidth,
			TileHeight:   c.TileHeight,
			CacheName:    c.CacheName,
			FormatSuffix: c.FormatSuffix,
			Service:      c.Service,
			Expiry:       c.ExpiryTime,
			Empty:        l < c.NumEmptyLevels,
		}
		div *= 2
	}
	return levelset.New(levels, c.TileOrigin, c.Sector, absent)
}

// DefaultExpiry is used when a ModelConfig leaves ExpiryTime zero: tiles
// never expire opportunistically (spec §3 "expired tiles are replaced
// opportunistically, not synchronously" - a zero expiry means every
// loaded tile always satisfies updateTime >= expiry).
var DefaultExpiry = time.Time{}
