package elevmodel

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/walkthru-earth/elevationd/internal/elevbuf"
	"github.com/walkthru-earth/elevationd/internal/filestore"
	"github.com/walkthru-earth/elevationd/internal/geo"
	"github.com/walkthru-earth/elevationd/internal/levelset"
	"github.com/walkthru-earth/elevationd/internal/memcache"
	"github.com/walkthru-earth/elevationd/internal/taskservice"
	"github.com/walkthru-earth/elevationd/internal/tile"
)

// Two-level pyramid over a single 20x20 degree cell, level 1 halving level
// 0, both 2x2 tiles, used by every GetElevations-level test in this package.
func buildTestLevels(t *testing.T) *levelset.LevelSet {
	t.Helper()
	levels := []levelset.Level{
		{Number: 0, DeltaLatDeg: 20, DeltaLonDeg: 20, TileWidth: 2, TileHeight: 2, CacheName: "srtm", FormatSuffix: ".bil"},
		{Number: 1, DeltaLatDeg: 10, DeltaLonDeg: 10, TileWidth: 2, TileHeight: 2, CacheName: "srtm", FormatSuffix: ".bil"},
	}
	ls, err := levelset.New(levels, geo.NewLatLonDegrees(0, 0), geo.NewSectorDegrees(0, 20, 0, 20), nil)
	require.NoError(t, err)
	return ls
}

func buildTestModel(t *testing.T, ls *levelset.LevelSet) *Model {
	t.Helper()
	fs, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	cfg := Config{
		Levels:             ls,
		MemCache:           memcache.New(1<<20, 0.85, 1.0),
		FileStore:          fs,
		Tasks:              taskservice.New(2, 16),
		DataType:           elevbuf.Int16,
		ByteOrder:          elevbuf.LittleEndian,
		MissingSignal:      -32768,
		MissingReplacement: 0,
		ElevationMin:       -100,
		ElevationMax:       100,
	}
	m, err := New(cfg)
	require.NoError(t, err)
	return m
}

// installUniformTile places a w*h tile of a single repeated value directly
// into the model's memory store, bypassing the acquisition pipeline.
func installUniformTile(t *testing.T, m *Model, ls *levelset.LevelSet, level levelset.Level, row, col int, value int16) {
	t.Helper()
	n := level.TileWidth * level.TileHeight
	raw := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(raw[i*2:i*2+2], uint16(value))
	}
	buf, err := elevbuf.New(raw, elevbuf.Int16, elevbuf.LittleEndian, n)
	require.NoError(t, err)

	key := tile.Key{Level: level.Number, Row: row, Column: col}
	et := &tile.ElevationTile{
		Tile: tile.Tile{
			Key:           key,
			Sector:        ls.TileSector(level, row, col),
			LevelDeltaLat: geo.AngleFromDegrees(level.DeltaLatDeg),
			LevelDeltaLon: geo.AngleFromDegrees(level.DeltaLonDeg),
			Width:         level.TileWidth,
			Height:        level.TileHeight,
		},
		Buf:        buf,
		UpdateTime: time.Now(),
	}
	m.install(et)
}
