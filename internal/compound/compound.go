// Package compound implements layered composition of elevation sources
// (spec §9, "the compound and filter models... mentioned only in §9"):
// query each source in priority order and answer from the first one that
// has the point or sector in coverage.
package compound

import (
	"context"
	"math"

	"github.com/walkthru-earth/elevationd/internal/elevsource"
	"github.com/walkthru-earth/elevationd/internal/geo"
)

// Source layers an ordered list of elevsource.ElevationSource, highest
// priority first.
type Source struct {
	Layers []elevsource.ElevationSource
}

func New(layers ...elevsource.ElevationSource) *Source {
	return &Source{Layers: layers}
}

func (s *Source) GetUnmappedElevation(lat, lon float64) (float64, bool) {
	for _, l := range s.Layers {
		if v, ok := l.GetUnmappedElevation(lat, lon); ok {
			return v, true
		}
	}
	return 0, false
}

// GetElevations queries each layer in order over the locations that remain
// unanswered after the previous layer, returning the coarsest achieved
// resolution among layers that contributed a sample (the query is only as
// good as its least-resolved contributing layer).
func (s *Source) GetElevations(ctx context.Context, sector geo.Sector, locations []geo.LatLon, targetResolution float64, out []float64, mapMissing bool) (float64, error) {
	filled := make([]bool, len(locations))
	worst := 0.0
	any := false

	for _, l := range s.Layers {
		if !l.Intersects(sector) {
			continue
		}
		remaining := make([]geo.LatLon, 0, len(locations))
		idxMap := make([]int, 0, len(locations))
		for i, loc := range locations {
			if !filled[i] {
				remaining = append(remaining, loc)
				idxMap = append(idxMap, i)
			}
		}
		if len(remaining) == 0 {
			break
		}

		layerOut := make([]float64, len(remaining))
		res, err := l.GetElevations(ctx, sector, remaining, targetResolution, layerOut, mapMissing)
		if err != nil {
			return worst, err
		}
		contributed := false
		for j, v := range layerOut {
			i := idxMap[j]
			if v != 0 || l.Contains(remaining[j]) {
				out[i] = v
				filled[i] = true
				contributed = true
			}
		}
		if !contributed {
			continue
		}
		if res > worst {
			worst = res
		}
		any = true
	}
	if !any {
		return math.Inf(1), nil
	}
	return worst, nil
}

func (s *Source) Intersects(sector geo.Sector) bool {
	for _, l := range s.Layers {
		if l.Intersects(sector) {
			return true
		}
	}
	return false
}

func (s *Source) Contains(p geo.LatLon) bool {
	for _, l := range s.Layers {
		if l.Contains(p) {
			return true
		}
	}
	return false
}

func (s *Source) BestResolution(sector geo.Sector) float64 {
	best := math.Inf(1)
	for _, l := range s.Layers {
		if r := l.BestResolution(sector); r < best {
			best = r
		}
	}
	return best
}

func (s *Source) ExtremesPoint(p geo.LatLon) (elevsource.Extent, bool) {
	for _, l := range s.Layers {
		if e, ok := l.ExtremesPoint(p); ok {
			return e, true
		}
	}
	return elevsource.Extent{}, false
}

func (s *Source) ExtremesSector(sector geo.Sector) (elevsource.Extent, bool) {
	var folded elevsource.Extent
	have := false
	for _, l := range s.Layers {
		e, ok := l.ExtremesSector(sector)
		if !ok {
			continue
		}
		if !have {
			folded = e
			have = true
			continue
		}
		if e.Min < folded.Min {
			folded.Min = e.Min
		}
		if e.Max > folded.Max {
			folded.Max = e.Max
		}
	}
	return folded, have
}

func (s *Source) LocalAvailability(sector geo.Sector) bool {
	for _, l := range s.Layers {
		if l.Intersects(sector) && !l.LocalAvailability(sector) {
			return false
		}
	}
	return true
}
