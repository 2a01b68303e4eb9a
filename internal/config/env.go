package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/walkthru-earth/elevationd/internal/elevbuf"
	"github.com/walkthru-earth/elevationd/internal/geo"
)

// envPrefix namespaces every recognized environment variable, e.g.
// ELEVATIOND_TILE_WIDTH.
const envPrefix = "ELEVATIOND_"

// Load reads a ModelConfig from the process environment, after optionally
// loading a .env file (godotenv.Load's error, returned e.g. when the file
// is absent, is ignored, so callers don't need to special-case dev vs.
// prod). Every field has a sane default for the single-region OpenTopography
// SRTM-style deployment used in local development.
func Load() (ModelConfig, error) {
	_ = godotenv.Load()

	c := ModelConfig{
		TileWidth:        envInt("TILE_WIDTH", 512),
		TileHeight:       envInt("TILE_HEIGHT", 512),
		NumLevels:        envInt("NUM_LEVELS", 12),
		NumEmptyLevels:   envInt("NUM_EMPTY_LEVELS", 0),
		TileDeltaLatDeg:  envFloat("TILE_DELTA_LAT_DEG", 45.0),
		TileDeltaLonDeg:  envFloat("TILE_DELTA_LON_DEG", 45.0),
		TileOrigin: geo.NewLatLonDegrees(envFloat("ORIGIN_LAT_DEG", -90.0), envFloat("ORIGIN_LON_DEG", -180.0)),
		Sector: geo.NewSectorDegrees(
			envFloat("COVERAGE_MIN_LAT_DEG", -90.0), envFloat("COVERAGE_MAX_LAT_DEG", 90.0),
			envFloat("COVERAGE_MIN_LON_DEG", -180.0), envFloat("COVERAGE_MAX_LON_DEG", 180.0),
		),

		FormatSuffix: envString("FORMAT_SUFFIX", ".bil"),
		Service:      envString("SERVICE_URL", ""),
		DatasetName:  envString("DATASET_NAME", "elevation"),
		CacheName:    envString("CACHE_NAME", "elevation"),

		DataType:  dataTypeOf(envString("DATA_TYPE", "int16")),
		ByteOrder: byteOrderOf(envString("BYTE_ORDER", "little")),

		MissingSignal:      envFloat("MISSING_SIGNAL", -32768),
		MissingReplacement: envFloat("MISSING_REPLACEMENT", 0),
		ElevationMin:       envFloat("ELEVATION_MIN", -12000),
		ElevationMax:       envFloat("ELEVATION_MAX", 9000),

		ExtremesFile:      envString("EXTREMES_FILE", ""),
		ExtremesRows:      envInt("EXTREMES_ROWS", 0),
		ExtremesCols:      envInt("EXTREMES_COLS", 0),
		ExtremesDeltaDeg:  envFloat("EXTREMES_DELTA_DEG", 1.0),
		ExtremesLevel:     envInt("EXTREMES_LEVEL", 0),

		ExpiryTime: time.Time{}, // never opportunistically stale by default

		NetworkRetrievalEnabled:       envBool("NETWORK_RETRIEVAL_ENABLED", true),
		DetailHint:                    envFloat("DETAIL_HINT", 1.0),
		RetrievePropertiesFromService: envBool("RETRIEVE_PROPERTIES_FROM_SERVICE", false),

		MemoryCacheCapacityBytes:   envInt64("MEMORY_CACHE_CAPACITY_BYTES", 256<<20),
		ExtremesCacheCapacityBytes: envInt64("EXTREMES_CACHE_CAPACITY_BYTES", 1<<20),

		RetrievalMaxWorkers: envInt("RETRIEVAL_MAX_WORKERS", 8),
		RetrievalMaxQueue:   envInt("RETRIEVAL_MAX_QUEUE", 512),
		TaskMaxWorkers:      envInt("TASK_MAX_WORKERS", 4),
		TaskMaxQueue:        envInt("TASK_MAX_QUEUE", 512),

		BaseDir:     envString("BASE_DIR", "./data"),
		ListenAddr:  envString("LISTEN_ADDR", ":8080"),
		URLTemplate: envString("URL_TEMPLATE", ""),

		BathymetryEnabled:   envBool("BATHYMETRY_ENABLED", false),
		BathymetryThreshold: envFloat("BATHYMETRY_THRESHOLD", 0),
	}

	if err := c.Validate(); err != nil {
		return ModelConfig{}, err
	}
	return c, nil
}

func dataTypeOf(s string) elevbuf.DataType {
	switch s {
	case "int8":
		return elevbuf.Int8
	case "int32":
		return elevbuf.Int32
	case "float32":
		return elevbuf.Float32
	case "float64":
		return elevbuf.Float64
	default:
		return elevbuf.Int16
	}
}

func byteOrderOf(s string) elevbuf.ByteOrder {
	if s == "big" {
		return elevbuf.BigEndian
	}
	return elevbuf.LittleEndian
}

func envString(name, def string) string {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(name string, def int64) int64 {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envFloat(name string, def float64) float64 {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(name string, def bool) bool {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
