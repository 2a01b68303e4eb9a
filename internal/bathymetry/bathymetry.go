// Package bathymetry implements the threshold filter adapter of spec §4.8:
// it wraps any ElevationSource and clamps returned elevations below a
// threshold up to the threshold, producing flat oceans from real
// bathymetry data.
package bathymetry

import (
	"context"

	"github.com/walkthru-earth/elevationd/internal/elevsource"
	"github.com/walkthru-earth/elevationd/internal/geo"
)

// Filter decorates an elevsource.ElevationSource, clamping elevations below
// Threshold up to Threshold. The source's own missing signal passes through
// unclamped.
type Filter struct {
	Source    elevsource.ElevationSource
	Threshold float64
	Signal    float64
}

// New builds a Filter with the default threshold of 0 (spec §4.8).
func New(source elevsource.ElevationSource, signal float64) *Filter {
	return &Filter{Source: source, Threshold: 0, Signal: signal}
}

func (f *Filter) clamp(v float64) float64 {
	if v == f.Signal {
		return v
	}
	if v < f.Threshold {
		return f.Threshold
	}
	return v
}

func (f *Filter) GetUnmappedElevation(lat, lon float64) (float64, bool) {
	v, ok := f.Source.GetUnmappedElevation(lat, lon)
	if !ok {
		return v, ok
	}
	return f.clamp(v), true
}

func (f *Filter) GetElevations(ctx context.Context, sector geo.Sector, locations []geo.LatLon, targetResolution float64, out []float64, mapMissing bool) (float64, error) {
	res, err := f.Source.GetElevations(ctx, sector, locations, targetResolution, out, mapMissing)
	if err != nil {
		return res, err
	}
	for i := range out {
		out[i] = f.clamp(out[i])
	}
	return res, nil
}

func (f *Filter) Intersects(sector geo.Sector) bool { return f.Source.Intersects(sector) }
func (f *Filter) Contains(p geo.LatLon) bool         { return f.Source.Contains(p) }
func (f *Filter) BestResolution(sector geo.Sector) float64 {
	return f.Source.BestResolution(sector)
}

func (f *Filter) ExtremesPoint(p geo.LatLon) (elevsource.Extent, bool) {
	e, ok := f.Source.ExtremesPoint(p)
	if !ok {
		return e, ok
	}
	return elevsource.Extent{Min: f.clamp(e.Min), Max: f.clamp(e.Max)}, true
}

func (f *Filter) ExtremesSector(sector geo.Sector) (elevsource.Extent, bool) {
	e, ok := f.Source.ExtremesSector(sector)
	if !ok {
		return e, ok
	}
	return elevsource.Extent{Min: f.clamp(e.Min), Max: f.clamp(e.Max)}, true
}

func (f *Filter) LocalAvailability(sector geo.Sector) bool {
	return f.Source.LocalAvailability(sector)
}
