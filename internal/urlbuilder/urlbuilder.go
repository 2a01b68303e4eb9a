// Package urlbuilder builds tile retrieval URLs from a Level + TileKey, the
// way the teacher's internal/wmts package turns a WMTS ResourceURL template
// into a concrete tile URL. Two styles are supported per spec §6: a WMS
// GetMap request, and a templated tile URL with {level}/{row}/{column}
// placeholders.
package urlbuilder

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/walkthru-earth/elevationd/internal/geo"
)

// Protocol selects BBOX axis ordering for WMS requests.
type Protocol int

const (
	// ProtocolLegacy orders BBOX as lon,lat,lon,lat (pre-1.3.0 WMS).
	ProtocolLegacy Protocol = iota
	// ProtocolCRS orders BBOX as lat,lon,lat,lon (WMS 1.3.0+ with a
	// geographic CRS).
	ProtocolCRS
)

// WMSParams describes the fixed parameters of a level's WMS GetMap service.
type WMSParams struct {
	ServiceURL string
	Layers     string
	Styles     string
	CRS        string // e.g. "EPSG:4326"
	Format     string
	Protocol   Protocol
}

// BuildWMS constructs a WMS GetMap URL for the tile's sector.
func (p WMSParams) BuildWMS(sector geo.Sector, width, height int, altFormat string) (string, error) {
	base, err := url.Parse(p.ServiceURL)
	if err != nil {
		return "", fmt.Errorf("urlbuilder: invalid service URL: %w", err)
	}

	format := p.Format
	if altFormat != "" {
		format = altFormat
	}

	minLat, maxLat := sector.MinLat.Degrees(), sector.MaxLat.Degrees()
	minLon, maxLon := sector.MinLon.Degrees(), sector.MaxLon.Degrees()

	var bbox string
	switch p.Protocol {
	case ProtocolCRS:
		bbox = formatBBox(minLat, minLon, maxLat, maxLon)
	default:
		bbox = formatBBox(minLon, minLat, maxLon, maxLat)
	}

	q := base.Query()
	q.Set("SERVICE", "WMS")
	q.Set("REQUEST", "GetMap")
	q.Set("VERSION", protocolVersion(p.Protocol))
	q.Set("LAYERS", p.Layers)
	q.Set("STYLES", p.Styles)
	q.Set("WIDTH", strconv.Itoa(width))
	q.Set("HEIGHT", strconv.Itoa(height))
	q.Set("FORMAT", format)
	q.Set("BBOX", bbox)
	if p.Protocol == ProtocolCRS {
		q.Set("CRS", p.CRS)
	} else {
		q.Set("SRS", p.CRS)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func protocolVersion(p Protocol) string {
	if p == ProtocolCRS {
		return "1.3.0"
	}
	return "1.1.1"
}

// formatBBox rounds each degree value to 1e-9 so radian round-trip noise
// (30 -> 29.999999999999996) does not leak into the request.
func formatBBox(a, b, c, d float64) string {
	r := func(v float64) string {
		return strconv.FormatFloat(math.Round(v*1e9)/1e9, 'f', -1, 64)
	}
	return strings.Join([]string{r(a), r(b), r(c), r(d)}, ",")
}

// TemplateParams describes a templated tile-service URL using {level},
// {row}, {column} placeholders, analogous to the teacher's
// wmts.ConvertTemplateToXYZ but keeping the pyramid's own level/row/column
// addressing rather than rewriting to XYZ.
type TemplateParams struct {
	Template string // e.g. "https://example.org/elev/{level}/{row}/{column}.bil"
}

// BuildTemplate substitutes level/row/column into the template.
func (t TemplateParams) BuildTemplate(level, row, column int) string {
	r := strings.NewReplacer(
		"{level}", strconv.Itoa(level),
		"{row}", strconv.Itoa(row),
		"{column}", strconv.Itoa(column),
	)
	return r.Replace(t.Template)
}
