package elevmodel

import (
	"strings"
	"time"

	"github.com/walkthru-earth/elevationd/internal/elevsource"
	"github.com/walkthru-earth/elevationd/internal/geo"
	"github.com/walkthru-earth/elevationd/internal/levelset"
	"github.com/walkthru-earth/elevationd/internal/rasterfmt"
	"github.com/walkthru-earth/elevationd/internal/retrieval"
	"github.com/walkthru-earth/elevationd/internal/tile"
)

// requestTile schedules an asynchronous load of (level, row, col) onto the
// TaskService. It is a no-op when the queue is full or the key is marked
// absent (spec §4.3 "requestTile is a no-op when...").
func (m *Model) requestTile(level levelset.Level, row, col int) {
	if level.Empty {
		return
	}
	if m.cfg.Levels.Absent().IsResourceAbsent(level.Number, row, col) {
		return
	}
	if m.cfg.Tasks.Full() {
		return
	}
	m.cfg.Tasks.Submit(func() {
		m.runRequestTask(level, row, col)
	})
}

// runRequestTask is RequestTask (spec §4.3.1), executed on a TaskService
// worker goroutine.
func (m *Model) runRequestTask(level levelset.Level, row, col int) {
	key := tile.Key{Level: level.Number, Row: row, Column: col}

	if _, ok := m.memoryGet(key, level.Expiry); ok {
		return
	}

	t := tile.Tile{Key: key}
	relPath := t.Path(level.CacheName, level.FormatSuffix)

	if data, ok := m.cfg.FileStore.Read(relPath, level.Expiry); ok {
		if err := m.decodeAndInstall(level, row, col, data); err != nil {
			m.cfg.FileStore.Delete(relPath)
			m.cfg.Levels.Absent().MarkAbsent(level.Number, row, col)
			return
		}
		m.cfg.Levels.Absent().UnmarkAbsent(level.Number, row, col)
		m.notify(Event{Kind: TileInstalled, Key: key})
		return
	}

	m.retrieveElevations(level, row, col, relPath)
}

// decodeRaster dispatches to the raw or GeoTIFF decoder by the level's
// format suffix (spec §4.5).
func (m *Model) decodeRaster(level levelset.Level, data []byte) (*rasterfmt.Raster, error) {
	var raster *rasterfmt.Raster
	var err error
	switch {
	case strings.EqualFold(level.FormatSuffix, ".tif"), strings.EqualFold(level.FormatSuffix, ".tiff"):
		raster, err = rasterfmt.DecodeGeoTIFF(data)
	default:
		raster, err = rasterfmt.DecodeRaw(data, level.TileWidth, level.TileHeight, m.cfg.DataType, m.cfg.ByteOrder)
	}
	if err != nil {
		return nil, elevsource.Wrap(elevsource.KindCorruptData, err)
	}
	return raster, nil
}

// decodeAndInstall decodes data and installs the resulting tile into
// memory (spec §4.3.1 steps 3 and 5).
func (m *Model) decodeAndInstall(level levelset.Level, row, col int, data []byte) error {
	raster, err := m.decodeRaster(level, data)
	if err != nil {
		return err
	}

	min, max := raster.Buf.MinMax(m.cfg.MissingSignal, m.cfg.MissingReplacement)
	key := tile.Key{Level: level.Number, Row: row, Column: col}
	et := &tile.ElevationTile{
		Tile: tile.Tile{
			Key:           key,
			Sector:        m.cfg.Levels.TileSector(level, row, col),
			LevelDeltaLat: geo.AngleFromDegrees(level.DeltaLatDeg),
			LevelDeltaLon: geo.AngleFromDegrees(level.DeltaLonDeg),
			Width:         raster.Width,
			Height:        raster.Height,
		},
		Buf:        raster.Buf,
		UpdateTime: time.Now(),
		Min:        min,
		Max:        max,
	}
	m.install(et)
	return nil
}

// retrieveElevations is step 5 of RequestTask: fetch the tile over the
// network (or mark it absent if retrieval is disabled), writing the result
// to the FileStore from the retrieval task's post-processor rather than
// blocking the caller. The post-processor resolves to a typed
// elevsource.RetrievalOutcome (spec §9) rather than a bag of raw
// callback parameters, so handleRetrievalOutcome branches on Kind alone.
func (m *Model) retrieveElevations(level levelset.Level, row, col int, relPath string) {
	if !m.cfg.NetworkRetrievalEnabled || m.cfg.Retrieval == nil || m.cfg.URLForTile == nil {
		m.handleRetrievalOutcome(level, row, col, relPath, elevsource.RetrievalOutcome{Kind: elevsource.RetrievalAbsent})
		return
	}

	url, err := m.cfg.URLForTile(level, row, col)
	if err != nil {
		m.handleRetrievalOutcome(level, row, col, relPath, elevsource.RetrievalOutcome{Kind: elevsource.RetrievalAbsent, Err: err})
		return
	}

	m.cfg.Retrieval.Submit(retrieval.Task{
		Key:      url,
		URL:      url,
		Priority: level.Number,
		Post: func(body []byte, contentType string, err error) {
			m.handleRetrievalOutcome(level, row, col, relPath, classifyRetrieval(body, contentType, err))
		},
	})
}

// classifyRetrieval turns a retrieval task's raw callback parameters into
// the typed outcome message handleRetrievalOutcome dispatches on.
func classifyRetrieval(body []byte, contentType string, err error) elevsource.RetrievalOutcome {
	if err != nil {
		return elevsource.RetrievalOutcome{Kind: elevsource.RetrievalError, Err: err}
	}
	if looksLikeText(contentType, body) {
		// An error body masquerading as tile bytes (spec §4.3.1 step 5).
		return elevsource.RetrievalOutcome{Kind: elevsource.RetrievalTextBody, Data: body}
	}
	return elevsource.RetrievalOutcome{Kind: elevsource.RetrievalSuccess, Data: body}
}

func (m *Model) handleRetrievalOutcome(level levelset.Level, row, col int, relPath string, outcome elevsource.RetrievalOutcome) {
	key := tile.Key{Level: level.Number, Row: row, Column: col}

	switch outcome.Kind {
	case elevsource.RetrievalError, elevsource.RetrievalTextBody, elevsource.RetrievalAbsent:
		m.cfg.Levels.Absent().MarkAbsent(level.Number, row, col)
		return
	}

	if err := m.cfg.FileStore.Write(relPath, outcome.Data); err != nil {
		m.cfg.Levels.Absent().MarkAbsent(level.Number, row, col)
		return
	}
	if err := m.decodeAndInstall(level, row, col, outcome.Data); err != nil {
		m.cfg.FileStore.Delete(relPath)
		m.cfg.Levels.Absent().MarkAbsent(level.Number, row, col)
		return
	}
	m.cfg.Levels.Absent().UnmarkAbsent(level.Number, row, col)
	m.notify(Event{Kind: TileInstalled, Key: key})
	m.notify(Event{Kind: RetrievalSucceeded, Key: key})
}

func looksLikeText(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "text/") || strings.Contains(ct, "xml") || strings.Contains(ct, "html") || strings.Contains(ct, "json") {
		return true
	}
	return false
}
