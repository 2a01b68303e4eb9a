package bulk

import (
	"math/rand"
	"os"
	"path/filepath"

	"github.com/walkthru-earth/elevationd/internal/filestore"
	"github.com/walkthru-earth/elevationd/internal/geo"
	"github.com/walkthru-earth/elevationd/internal/levelset"
	"github.com/walkthru-earth/elevationd/internal/tile"
)

// sampleSize is how many tiles to probe at the deepest level when
// extrapolating the missing-tile estimate (spec §4.7 "a small random
// sample at the deepest level").
const sampleSize = 32

// estimateTotal computes the expected tile count and byte size across all
// the given levels, discounting the deepest level's count by the fraction
// of a random sample already found on disk.
func estimateTotal(ls *levelset.LevelSet, fs *filestore.FileStore, levels []levelset.Level, sector geo.Sector) (count int, size int64) {
	if len(levels) == 0 {
		return 0, 0
	}
	avg := averageTileSize(fs, levels)

	for i, level := range levels {
		full := partition(ls, level, sector, 1<<30)[0] // a single region covering the whole sector
		n := full.tileCount()
		if i == len(levels)-1 {
			n = extrapolateMissing(fs, level, full, n)
		}
		count += n
		size += int64(n) * avg
	}
	return count, size
}

// extrapolateMissing samples up to sampleSize random tiles within reg at
// level, and scales n down by the fraction already present on disk.
func extrapolateMissing(fs *filestore.FileStore, level levelset.Level, reg region, n int) int {
	total := reg.tileCount()
	if total == 0 {
		return n
	}
	k := sampleSize
	if k > total {
		k = total
	}
	present := 0
	for i := 0; i < k; i++ {
		r := reg.minRow + rand.Intn(reg.maxRow-reg.minRow+1)
		c := reg.minCol + rand.Intn(reg.maxCol-reg.minCol+1)
		key := tile.Key{Level: level.Number, Row: r, Column: c}
		path := (tile.Tile{Key: key}).Path(level.CacheName, level.FormatSuffix)
		if fs.Contains(path) {
			present++
		}
	}
	missingFrac := 1.0 - float64(present)/float64(k)
	return int(float64(n) * missingFrac)
}

// averageTileSize estimates the mean on-disk tile size by sampling files
// under the first non-empty level whose cache directory holds files, falling back to
// defaultAverageTileSize when nothing is cached yet (spec §4.7).
func averageTileSize(fs *filestore.FileStore, levels []levelset.Level) int64 {
	for _, level := range levels {
		if level.Empty {
			continue
		}
		sizes := sampleFileSizes(fs, level.CacheName, 2)
		if len(sizes) > 0 {
			var sum int64
			for _, s := range sizes {
				sum += s
			}
			return sum / int64(len(sizes))
		}
	}
	return defaultAverageTileSize
}

// sampleFileSizes walks up to maxDirs subdirectories of a cache name under
// the file store's base directory and returns the sizes of files found.
func sampleFileSizes(fs *filestore.FileStore, cacheName string, maxDirs int) []int64 {
	root := fs.DirPath(cacheName)
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var sizes []int64
	dirs := 0
	for _, e := range entries {
		if !e.IsDir() || dirs >= maxDirs {
			continue
		}
		dirs++
		files, err := os.ReadDir(filepath.Join(root, e.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			sizes = append(sizes, info.Size())
		}
	}
	return sizes
}
