// Package bulk implements the background region-at-a-time tile downloader
// (spec §4.7): enumerate every tile a sector needs at a chosen resolution,
// across all non-empty levels, and submit the missing ones to the
// retrieval pool while respecting its back-pressure, reporting progress as
// it goes. It plays the role of the teacher's download-all-regions flows in
// internal/downloads/{esri,googleearth}, generalized to the elevation
// pyramid's level/row/column addressing and cooperative cancellation via
// context instead of a raw interrupt flag.
package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/walkthru-earth/elevationd/internal/filestore"
	"github.com/walkthru-earth/elevationd/internal/geo"
	"github.com/walkthru-earth/elevationd/internal/levelset"
	"github.com/walkthru-earth/elevationd/internal/retrieval"
	"github.com/walkthru-earth/elevationd/internal/tile"
)

// DefaultMaxTileCountPerRegion bounds how many tiles a single partitioned
// region may contain before the region is subdivided further (spec §4.7).
const DefaultMaxTileCountPerRegion = 200

// DefaultPollDelay is how long the run loop sleeps between drain attempts
// while the retrieval pool reports itself unavailable.
const DefaultPollDelay = 250 * time.Millisecond

// defaultAverageTileSize is used when no sample tiles exist yet to measure
// from (spec §4.7 "else a default").
const defaultAverageTileSize = 45 * 1024

// URLForTile builds a retrieval URL for a tile; shared shape with
// elevmodel.URLForTile so a single builder serves both.
type URLForTile func(level levelset.Level, row, col int) (string, error)

// Progress is a point-in-time snapshot of a running download.
type Progress struct {
	CurrentCount int
	CurrentSize  int64
	TotalCount   int
	TotalSize    int64
	Done         bool
	Err          error
}

// Downloader is the bulk retrieval planner of spec §4.7.
type Downloader struct {
	Levels     *levelset.LevelSet
	FileStore  *filestore.FileStore
	Retrieval  *retrieval.Service
	URLForTile URLForTile

	MaxTileCountPerRegion int
	PollDelay             time.Duration

	log *slog.Logger
}

// New builds a Downloader. MaxTileCountPerRegion and PollDelay default to
// DefaultMaxTileCountPerRegion/DefaultPollDelay when zero.
func New(levels *levelset.LevelSet, fileStore *filestore.FileStore, retrievalSvc *retrieval.Service, urlForTile URLForTile) *Downloader {
	return &Downloader{
		Levels:                levels,
		FileStore:             fileStore,
		Retrieval:             retrievalSvc,
		URLForTile:            urlForTile,
		MaxTileCountPerRegion: DefaultMaxTileCountPerRegion,
		PollDelay:             DefaultPollDelay,
		log:                   slog.Default().With("component", "bulk"),
	}
}

// region is a rectangular sub-range of rows/columns at one level.
type region struct {
	minRow, maxRow int
	minCol, maxCol int
}

func (r region) tileCount() int {
	return (r.maxRow - r.minRow + 1) * (r.maxCol - r.minCol + 1)
}

// pickLevel returns the non-empty level whose texel size is closest to
// targetResolution (spec §4.7: "closest, not just first-sufficient").
func pickLevel(ls *levelset.LevelSet, targetResolution float64) (levelset.Level, bool) {
	var best levelset.Level
	have := false
	bestDiff := math.Inf(1)
	for _, l := range ls.Levels {
		if l.Empty {
			continue
		}
		diff := math.Abs(l.TexelSize().Radians() - targetResolution)
		if diff < bestDiff {
			bestDiff = diff
			best = l
			have = true
		}
	}
	return best, have
}

// Run enumerates and retrieves every missing tile covering sector, at the
// level closest to resolution and every coarser non-empty level below it,
// reporting progress through report until ctx is cancelled or the run
// completes. Run blocks the calling goroutine; callers that want the
// bulk downloader's own thread (spec §4.7 "own thread") should invoke it
// via `go`.
func (d *Downloader) Run(ctx context.Context, sector geo.Sector, resolution float64, report func(Progress)) error {
	maxLevel, ok := pickLevel(d.Levels, resolution)
	if !ok {
		return fmt.Errorf("bulk: no non-empty level available")
	}

	var levels []levelset.Level
	for _, l := range d.Levels.Levels {
		if l.Empty || l.Number > maxLevel.Number {
			continue
		}
		levels = append(levels, l)
	}

	p := Progress{}
	p.TotalCount, p.TotalSize = estimateTotal(d.Levels, d.FileStore, levels, sector)
	var mu sync.Mutex
	emit := func() {
		mu.Lock()
		snapshot := p
		mu.Unlock()
		if report != nil {
			report(snapshot)
		}
	}
	emit()

	avgSize := averageTileSize(d.FileStore, levels)

	for _, level := range levels {
		if err := ctx.Err(); err != nil {
			mu.Lock()
			p.Err = err
			mu.Unlock()
			emit()
			return err
		}

		for _, reg := range partition(d.Levels, level, sector, d.regionBudget()) {
			missing := d.missingTiles(level, reg)
			for len(missing) > 0 {
				if err := ctx.Err(); err != nil {
					mu.Lock()
					p.Err = err
					mu.Unlock()
					emit()
					return err
				}

				remaining := missing[:0]
				for _, key := range missing {
					if !d.Retrieval.Available() {
						remaining = append(remaining, key)
						continue
					}
					d.submit(level, key, avgSize, &mu, &p, emit)
				}
				if len(remaining) == len(missing) {
					select {
					case <-ctx.Done():
						mu.Lock()
						p.Err = ctx.Err()
						mu.Unlock()
						emit()
						return ctx.Err()
					case <-time.After(d.pollDelay()):
					}
				}
				missing = remaining
			}
		}
	}

	mu.Lock()
	p.Done = true
	mu.Unlock()
	emit()
	return nil
}

func (d *Downloader) regionBudget() int {
	if d.MaxTileCountPerRegion > 0 {
		return d.MaxTileCountPerRegion
	}
	return DefaultMaxTileCountPerRegion
}

func (d *Downloader) pollDelay() time.Duration {
	if d.PollDelay > 0 {
		return d.PollDelay
	}
	return DefaultPollDelay
}

// partition subdivides sector's tile range at level into an m x m grid of
// regions of at most maxPerRegion tiles each (spec §4.7 step 1).
func partition(ls *levelset.LevelSet, level levelset.Level, sector geo.Sector, maxPerRegion int) []region {
	nwRow, nwCol := ls.RowCol(level, geo.LatLon{Lat: sector.MaxLat, Lon: sector.MinLon})
	seRow, seCol := ls.RowCol(level, geo.LatLon{Lat: sector.MinLat, Lon: sector.MaxLon})
	if nwRow > seRow {
		nwRow, seRow = seRow, nwRow
	}
	if nwCol > seCol {
		nwCol, seCol = seCol, nwCol
	}
	full := region{minRow: nwRow, maxRow: seRow, minCol: nwCol, maxCol: seCol}

	tileCount := full.tileCount()
	if tileCount <= maxPerRegion {
		return []region{full}
	}

	m := int(math.Ceil(math.Sqrt(float64(tileCount) / float64(maxPerRegion))))
	if m < 1 {
		m = 1
	}

	rows := splitRange(full.minRow, full.maxRow, m)
	cols := splitRange(full.minCol, full.maxCol, m)

	var regions []region
	for _, rr := range rows {
		for _, cc := range cols {
			regions = append(regions, region{minRow: rr[0], maxRow: rr[1], minCol: cc[0], maxCol: cc[1]})
		}
	}
	return regions
}

func splitRange(lo, hi, m int) [][2]int {
	n := hi - lo + 1
	if n <= 0 {
		return nil
	}
	chunk := n / m
	if chunk < 1 {
		chunk = 1
	}
	var out [][2]int
	for start := lo; start <= hi; start += chunk {
		end := start + chunk - 1
		if end > hi {
			end = hi
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// missingTiles returns the tile keys in reg not already present in the
// file store and not marked absent.
func (d *Downloader) missingTiles(level levelset.Level, reg region) []tile.Key {
	var out []tile.Key
	for r := reg.minRow; r <= reg.maxRow; r++ {
		for c := reg.minCol; c <= reg.maxCol; c++ {
			if d.Levels.Absent().IsResourceAbsent(level.Number, r, c) {
				continue
			}
			key := tile.Key{Level: level.Number, Row: r, Column: c}
			path := (tile.Tile{Key: key}).Path(level.CacheName, level.FormatSuffix)
			if d.FileStore.Contains(path) {
				continue
			}
			out = append(out, key)
		}
	}
	return out
}

// submit issues one retrieval task for key and wires its post-processor to
// write the file store, mark absence on failure, and bump progress.
func (d *Downloader) submit(level levelset.Level, key tile.Key, avgSize int64, mu *sync.Mutex, p *Progress, emit func()) {
	path := (tile.Tile{Key: key}).Path(level.CacheName, level.FormatSuffix)
	url, err := d.URLForTile(level, key.Row, key.Column)
	if err != nil {
		d.Levels.Absent().MarkAbsent(level.Number, key.Row, key.Column)
		mu.Lock()
		p.TotalCount--
		p.TotalSize -= avgSize
		mu.Unlock()
		emit()
		return
	}

	d.Retrieval.Submit(retrieval.Task{
		Key:      url,
		URL:      url,
		Priority: -level.Number, // coarser levels (fewer, cheaper) first
		Post: func(body []byte, contentType string, fetchErr error) {
			if fetchErr != nil || looksLikeText(contentType, body) {
				d.Levels.Absent().MarkAbsent(level.Number, key.Row, key.Column)
				mu.Lock()
				p.TotalCount--
				p.TotalSize -= avgSize
				mu.Unlock()
				emit()
				return
			}
			if err := d.FileStore.Write(path, body); err != nil {
				d.Levels.Absent().MarkAbsent(level.Number, key.Row, key.Column)
				emit()
				return
			}
			d.Levels.Absent().UnmarkAbsent(level.Number, key.Row, key.Column)
			mu.Lock()
			p.CurrentCount++
			p.CurrentSize += int64(len(body))
			mu.Unlock()
			emit()
		},
	})
}

func looksLikeText(contentType string, body []byte) bool {
	if len(body) == 0 {
		return false
	}
	for _, b := range body[:min(len(body), 32)] {
		if b == 0 {
			return false
		}
	}
	return contentType != "" && (contentType[0] == 't' || contentType[0] == 'T')
}
