// Package config holds the typed configuration record that replaces the
// source's heterogeneous key-value parameter bag (spec §9). It is the only
// shape the core elevation model accepts; parsing an external XML
// restorable-state document into this record is out of scope (spec §1).
package config

import (
	"fmt"
	"time"

	"github.com/walkthru-earth/elevationd/internal/elevbuf"
	"github.com/walkthru-earth/elevationd/internal/geo"
)

// LevelConfig describes one pyramid level before LevelSet construction.
type LevelConfig struct {
	DeltaLatDeg float64
	DeltaLonDeg float64
	Empty       bool
}

// ModelConfig enumerates every recognized construction option for a tiled
// elevation model (spec §9).
type ModelConfig struct {
	TileWidth, TileHeight int
	NumLevels             int
	NumEmptyLevels        int
	TileDeltaLatDeg       float64 // level-0 delta; each subsequent level halves it
	TileDeltaLonDeg       float64
	TileOrigin            geo.LatLon
	Sector                geo.Sector

	FormatSuffix string // e.g. ".bil", ".tif"
	Service      string // base service URL template
	DatasetName  string
	CacheName    string

	DataType  elevbuf.DataType
	ByteOrder elevbuf.ByteOrder

	MissingSignal      float64
	MissingReplacement float64
	ElevationMin       float64
	ElevationMax       float64

	ExtremesFile string // optional, local file path of the coarse extremes grid

	ExpiryTime time.Time // instant before which loaded tiles are stale

	NetworkRetrievalEnabled bool
	DetailHint              float64 // carried in the config only; level selection does not read it
	RetrievePropertiesFromService bool

	MemoryCacheCapacityBytes int64
	ExtremesCacheCapacityBytes int64

	RetrievalMaxWorkers int
	RetrievalMaxQueue   int
	TaskMaxWorkers      int
	TaskMaxQueue        int

	BaseDir     string // FileStore root
	ListenAddr  string
	URLTemplate string // {level}/{row}/{column} tile URL template, spec §6

	ExtremesRows, ExtremesCols int
	ExtremesDeltaDeg          float64
	ExtremesLevel             int

	BathymetryEnabled   bool
	BathymetryThreshold float64
}

// Validate fails construction (spec §7 ConfigError) if a required option is
// missing or inconsistent.
func (c ModelConfig) Validate() error {
	if c.TileWidth <= 0 || c.TileHeight <= 0 {
		return fmt.Errorf("config: tileWidth/tileHeight must be positive")
	}
	if c.NumLevels <= 0 {
		return fmt.Errorf("config: numLevels must be positive")
	}
	if c.NumEmptyLevels < 0 || c.NumEmptyLevels >= c.NumLevels {
		return fmt.Errorf("config: numEmptyLevels must be in [0, numLevels)")
	}
	if c.TileDeltaLatDeg <= 0 || c.TileDeltaLonDeg <= 0 {
		return fmt.Errorf("config: tileDelta must be positive")
	}
	if c.CacheName == "" {
		return fmt.Errorf("config: cacheName is required")
	}
	if c.FormatSuffix == "" {
		return fmt.Errorf("config: formatSuffix is required")
	}
	return nil
}
