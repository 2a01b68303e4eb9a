package compound

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walkthru-earth/elevationd/internal/elevsource"
	"github.com/walkthru-earth/elevationd/internal/geo"
)

// layer is a minimal fake elevsource.ElevationSource for composition tests.
type layer struct {
	intersects bool
	contains   func(geo.LatLon) bool
	elev       float64
	resolution float64
	extent     elevsource.Extent
	extentOK   bool
	local      bool
}

func (l *layer) GetUnmappedElevation(lat, lon float64) (float64, bool) {
	return l.elev, l.contains(geo.NewLatLonDegrees(lat, lon))
}

func (l *layer) GetElevations(ctx context.Context, sector geo.Sector, locations []geo.LatLon, targetResolution float64, out []float64, mapMissing bool) (float64, error) {
	for i, loc := range locations {
		if l.contains(loc) {
			out[i] = l.elev
		}
	}
	return l.resolution, nil
}

func (l *layer) Intersects(sector geo.Sector) bool { return l.intersects }
func (l *layer) Contains(p geo.LatLon) bool         { return l.contains(p) }
func (l *layer) BestResolution(sector geo.Sector) float64 {
	return l.resolution
}
func (l *layer) ExtremesPoint(p geo.LatLon) (elevsource.Extent, bool) { return l.extent, l.extentOK }
func (l *layer) ExtremesSector(sector geo.Sector) (elevsource.Extent, bool) {
	return l.extent, l.extentOK
}
func (l *layer) LocalAvailability(sector geo.Sector) bool { return l.local }

func within(lon float64) func(geo.LatLon) bool {
	return func(p geo.LatLon) bool { return p.Lon.Degrees() < lon }
}

func TestGetElevationsPrefersFirstContributingLayer(t *testing.T) {
	fine := &layer{intersects: true, contains: within(10), elev: 100, resolution: 1}
	coarse := &layer{intersects: true, contains: func(geo.LatLon) bool { return true }, elev: -999, resolution: 30}
	s := New(fine, coarse)

	locs := []geo.LatLon{geo.NewLatLonDegrees(0, 5), geo.NewLatLonDegrees(0, 20)}
	out := make([]float64, 2)
	res, err := s.GetElevations(context.Background(), geo.Sector{}, locs, 1, out, false)
	require.NoError(t, err)

	assert.Equal(t, 100.0, out[0], "covered by the fine layer")
	assert.Equal(t, -999.0, out[1], "falls through to the coarse layer")
	assert.Equal(t, 30.0, res, "resolution is the coarsest among contributing layers")
}

func TestGetElevationsSkipsNonIntersectingLayers(t *testing.T) {
	skip := &layer{intersects: false, contains: func(geo.LatLon) bool { return true }, elev: 1, resolution: 1}
	take := &layer{intersects: true, contains: func(geo.LatLon) bool { return true }, elev: 7, resolution: 5}
	s := New(skip, take)

	out := make([]float64, 1)
	res, err := s.GetElevations(context.Background(), geo.Sector{}, []geo.LatLon{{}}, 1, out, false)
	require.NoError(t, err)
	assert.Equal(t, 7.0, out[0])
	assert.Equal(t, 5.0, res)
}

func TestGetElevationsNoLayerIntersectsReturnsInfinity(t *testing.T) {
	skip := &layer{intersects: false, contains: func(geo.LatLon) bool { return false }}
	s := New(skip)

	out := make([]float64, 1)
	res, err := s.GetElevations(context.Background(), geo.Sector{}, []geo.LatLon{{}}, 1, out, false)
	require.NoError(t, err)
	assert.True(t, math.IsInf(res, 1))
}

func TestExtremesSectorFoldsAcrossLayers(t *testing.T) {
	a := &layer{extent: elevsource.Extent{Min: -10, Max: 50}, extentOK: true}
	b := &layer{extent: elevsource.Extent{Min: -100, Max: 20}, extentOK: true}
	s := New(a, b)

	e, ok := s.ExtremesSector(geo.Sector{})
	require.True(t, ok)
	assert.Equal(t, -100.0, e.Min)
	assert.Equal(t, 50.0, e.Max)
}

func TestExtremesPointReturnsFirstHit(t *testing.T) {
	a := &layer{extentOK: false}
	b := &layer{extent: elevsource.Extent{Min: 1, Max: 2}, extentOK: true}
	s := New(a, b)

	e, ok := s.ExtremesPoint(geo.LatLon{})
	require.True(t, ok)
	assert.Equal(t, 1.0, e.Min)
}

func TestIntersectsTrueIfAnyLayerIntersects(t *testing.T) {
	a := &layer{intersects: false}
	b := &layer{intersects: true}
	s := New(a, b)
	assert.True(t, s.Intersects(geo.Sector{}))
}

func TestLocalAvailabilityFalseIfAnyIntersectingLayerMissing(t *testing.T) {
	present := &layer{intersects: true, local: true}
	missing := &layer{intersects: true, local: false}
	assert.False(t, New(present, missing).LocalAvailability(geo.Sector{}))

	// A non-intersecting layer never gates availability even if its own
	// data isn't local.
	elsewhere := &layer{intersects: false, local: false}
	assert.True(t, New(present, elsewhere).LocalAvailability(geo.Sector{}))
}
