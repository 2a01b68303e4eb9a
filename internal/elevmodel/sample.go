package elevmodel

import (
	"math"

	"github.com/walkthru-earth/elevationd/internal/geo"
	"github.com/walkthru-earth/elevationd/internal/tile"
)

// bilinear samples t at loc per spec §4.4. Row 0 of the tile buffer is the
// north edge. Samples on the east or south edge clamp to the last
// column/row rather than reading out of bounds (the "half-texel"
// convention named in the spec). If any of the four neighbours equals
// signal, the signal itself is returned with no interpolation (spec §8
// property 7).
func bilinear(t *tile.ElevationTile, loc geo.LatLon, signal float64) (float64, bool) {
	s := t.Sector
	if !s.Contains(loc) {
		return 0, false
	}
	w, h := t.Width, t.Height
	if w <= 0 || h <= 0 {
		return 0, false
	}

	dLat := float64(s.MaxLat - loc.Lat)
	dLon := float64(loc.Lon - s.MinLon)
	deltaLat := float64(t.LevelDeltaLat)
	deltaLon := float64(t.LevelDeltaLon)
	if deltaLat == 0 || deltaLon == 0 {
		return 0, false
	}

	sLat := dLat / deltaLat
	sLon := dLon / deltaLon
	j := int(math.Floor(float64(h-1) * sLat))
	i := int(math.Floor(float64(w-1) * sLon))
	j = clampInt(j, 0, h-1)
	i = clampInt(i, 0, w-1)

	i2, j2 := i, j
	if i < w-1 {
		i2 = i + 1
	}
	if j < h-1 {
		j2 = j + 1
	}

	eL := t.Buf.At(j*w + i)
	eR := t.Buf.At(j*w + i2)
	eBotL := t.Buf.At(j2*w + i)
	eBotR := t.Buf.At(j2*w + i2)
	if eL == signal || eR == signal || eBotL == signal || eBotR == signal {
		return signal, true
	}

	ssLon, ssLat := 0.0, 0.0
	if w > 1 {
		dw := deltaLon / float64(w-1)
		ssLon = dLon/dw - float64(i)
	}
	if h > 1 {
		dh := deltaLat / float64(h-1)
		ssLat = dLat/dh - float64(j)
	}

	eTop := eL + ssLon*(eR-eL)
	eBot := eBotL + ssLon*(eBotR-eBotL)
	return eTop + ssLat*(eBot-eTop), true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
