package bulk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walkthru-earth/elevationd/internal/filestore"
	"github.com/walkthru-earth/elevationd/internal/geo"
	"github.com/walkthru-earth/elevationd/internal/levelset"
	"github.com/walkthru-earth/elevationd/internal/retrieval"
	"github.com/walkthru-earth/elevationd/internal/tile"
)

func buildLevels(t *testing.T) *levelset.LevelSet {
	t.Helper()
	levels := []levelset.Level{
		{Number: 0, DeltaLatDeg: 20, DeltaLonDeg: 20, TileWidth: 2, TileHeight: 2, CacheName: "srtm", FormatSuffix: ".bil"},
		{Number: 1, DeltaLatDeg: 10, DeltaLonDeg: 10, TileWidth: 2, TileHeight: 2, CacheName: "srtm", FormatSuffix: ".bil"},
	}
	ls, err := levelset.New(levels, geo.NewLatLonDegrees(0, 0), geo.NewSectorDegrees(0, 20, 0, 20), nil)
	require.NoError(t, err)
	return ls
}

func TestSplitRangeEvenDivision(t *testing.T) {
	got := splitRange(0, 9, 2)
	assert.Equal(t, [][2]int{{0, 4}, {5, 9}}, got)
}

func TestSplitRangeWithRemainder(t *testing.T) {
	got := splitRange(0, 9, 3)
	assert.Equal(t, [][2]int{{0, 2}, {3, 5}, {6, 8}, {9, 9}}, got)
}

func TestPickLevelClosestToTarget(t *testing.T) {
	ls := buildLevels(t)
	l, ok := pickLevel(ls, ls.Levels[1].TexelSize().Radians())
	require.True(t, ok)
	assert.Equal(t, 1, l.Number)

	l, ok = pickLevel(ls, ls.Levels[0].TexelSize().Radians())
	require.True(t, ok)
	assert.Equal(t, 0, l.Number)
}

func TestPartitionReturnsSingleRegionWhenSmall(t *testing.T) {
	ls := buildLevels(t)
	regions := partition(ls, ls.Levels[1], ls.Coverage, 1000)
	require.Len(t, regions, 1)
	assert.Equal(t, 0, regions[0].minRow)
}

func TestPartitionSubdividesWhenOverBudget(t *testing.T) {
	ls := buildLevels(t)
	regions := partition(ls, ls.Levels[1], ls.Coverage, 1)
	assert.Greater(t, len(regions), 1)
	for _, r := range regions {
		assert.LessOrEqual(t, r.tileCount(), 2) // budget 1, but a 1x1 cell is the minimum chunk
	}
}

func TestMissingTilesSkipsPresentAndAbsent(t *testing.T) {
	ls := buildLevels(t)
	fs, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	level := ls.Levels[1]
	present := tile.Key{Level: level.Number, Row: 0, Column: 0}
	require.NoError(t, fs.Write((tile.Tile{Key: present}).Path(level.CacheName, level.FormatSuffix), []byte("x")))
	ls.Absent().MarkAbsent(level.Number, 0, 1)
	ls.Absent().MarkAbsent(level.Number, 0, 1)
	ls.Absent().MarkAbsent(level.Number, 0, 1) // 3 attempts == DefaultMaxAttempts

	d := &Downloader{Levels: ls, FileStore: fs}
	missing := d.missingTiles(level, region{minRow: 0, maxRow: 0, minCol: 0, maxCol: 1})

	assert.Empty(t, missing, "one tile is on disk, the other is absent-throttled")
}

func TestRunDownloadsMissingTilesAndReportsCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{1, 2, 3, 4})
	}))
	defer srv.Close()

	ls := buildLevels(t)
	fs, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	svc := retrieval.New(retrieval.Config{MaxWorkers: 4, MaxQueue: 64})
	defer svc.Close()

	d := New(ls, fs, svc, func(level levelset.Level, row, col int) (string, error) {
		return srv.URL, nil
	})
	d.PollDelay = 10 * time.Millisecond

	var last Progress
	err = d.Run(context.Background(), ls.Coverage, ls.Levels[1].TexelSize().Radians(), func(p Progress) {
		last = p
	})
	require.NoError(t, err)
	assert.True(t, last.Done)
	assert.Nil(t, last.Err)
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	ls := buildLevels(t)
	fs, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	svc := retrieval.New(retrieval.Config{MaxWorkers: 1, MaxQueue: 1})
	defer svc.Close()

	d := New(ls, fs, svc, func(level levelset.Level, row, col int) (string, error) {
		return srv.URL, nil
	})
	d.PollDelay = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = d.Run(ctx, ls.Coverage, ls.Levels[1].TexelSize().Radians(), nil)
	assert.Error(t, err)
}

func TestAverageTileSizeFallsBackToDefaultWhenNothingCached(t *testing.T) {
	ls := buildLevels(t)
	fs, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, int64(defaultAverageTileSize), averageTileSize(fs, ls.Levels))
}

func TestAverageTileSizeSamplesOnDiskFiles(t *testing.T) {
	ls := buildLevels(t)
	fs, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	level := ls.Levels[1]
	key := tile.Key{Level: level.Number, Row: 0, Column: 0}
	path := (tile.Tile{Key: key}).Path(level.CacheName, level.FormatSuffix)
	require.NoError(t, fs.Write(path, make([]byte, 100)))

	assert.Equal(t, int64(100), averageTileSize(fs, ls.Levels))
}
