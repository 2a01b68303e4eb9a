package elevmodel

import (
	"time"

	"github.com/walkthru-earth/elevationd/internal/geo"
	"github.com/walkthru-earth/elevationd/internal/tile"
)

// GetUnmappedLocalSourceElevation reads a single point straight from the
// on-disk cache, synchronously on the caller's goroutine, without
// consulting the memory cache or scheduling any retrieval (spec §4.9,
// §5 "the sole synchronous disk paths"). It returns false if the tile
// covering the point isn't already present on disk or fails to decode.
func (m *Model) GetUnmappedLocalSourceElevation(lat, lon float64) (float64, bool) {
	p := geo.NewLatLonDegrees(lat, lon)
	level, ok := m.cfg.Levels.LastLevel(geo.Sector{MinLat: p.Lat, MaxLat: p.Lat, MinLon: p.Lon, MaxLon: p.Lon})
	if !ok {
		return 0, false
	}

	row, col := m.cfg.Levels.RowCol(level, p)
	key := tile.Key{Level: level.Number, Row: row, Column: col}
	path := (tile.Tile{Key: key}).Path(level.CacheName, level.FormatSuffix)

	data, ok := m.cfg.FileStore.Read(path, time.Time{})
	if !ok {
		return 0, false
	}
	raster, err := m.decodeRaster(level, data)
	if err != nil {
		return 0, false
	}

	et := &tile.ElevationTile{
		Tile: tile.Tile{
			Key:           key,
			Sector:        m.cfg.Levels.TileSector(level, row, col),
			LevelDeltaLat: geo.AngleFromDegrees(level.DeltaLatDeg),
			LevelDeltaLon: geo.AngleFromDegrees(level.DeltaLonDeg),
			Width:         raster.Width,
			Height:        raster.Height,
		},
		Buf: raster.Buf,
	}
	v, ok := bilinear(et, p, m.cfg.MissingSignal)
	if !ok || v == m.cfg.MissingSignal {
		return 0, false
	}
	return v, true
}
