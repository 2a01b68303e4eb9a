// Package elevsource defines the capability set every elevation source
// implements (tiled pyramid, bathymetry filter, compound composition) and
// the error taxonomy of spec §7. Core methods never return an error from
// the sampling path; Kind/Error exist so absent-resource and config-time
// failures can still be inspected via errors.As without panicking.
package elevsource

import (
	"context"
	"fmt"

	"github.com/walkthru-earth/elevationd/internal/geo"
)

// Kind classifies a failure the core distinguishes (spec §7).
type Kind int

const (
	KindInvalidArgument Kind = iota
	KindOutOfCoverage
	KindTransientIO
	KindUnavailable
	KindCorruptData
	KindInterrupted
	KindConfigError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindOutOfCoverage:
		return "OutOfCoverage"
	case KindTransientIO:
		return "TransientIO"
	case KindUnavailable:
		return "Unavailable"
	case KindCorruptData:
		return "CorruptData"
	case KindInterrupted:
		return "Interrupted"
	case KindConfigError:
		return "ConfigError"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with its Kind classification.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an *Error of the given kind.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Extent describes the min/max elevation over a point or sector.
type Extent struct {
	Min, Max float64
}

// ElevationSource is the capability set common to the tiled model,
// bathymetry filter, and compound composition (spec §9 "capability set"
// design note, replacing the source's AbstractElevationModel inheritance
// chain).
type ElevationSource interface {
	// GetUnmappedElevation samples a single point without missing-data
	// replacement: a void sample comes back as the configured missing
	// signal, and ok is false when no tile data covers the point.
	GetUnmappedElevation(lat, lon float64) (float64, bool)

	// GetElevations samples every location into out, never blocking on
	// I/O, and returns the resolution actually achieved.
	GetElevations(ctx context.Context, sector geo.Sector, locations []geo.LatLon, targetResolution float64, out []float64, mapMissing bool) (achievedResolution float64, err error)

	// Intersects reports whether sector overlaps the source's coverage.
	Intersects(sector geo.Sector) bool

	// Contains reports whether a single point lies in the source's coverage.
	Contains(p geo.LatLon) bool

	// BestResolution returns the finest texel size the source can produce
	// over sector.
	BestResolution(sector geo.Sector) float64

	// ExtremesPoint returns (min, max) elevation for a single point.
	ExtremesPoint(p geo.LatLon) (Extent, bool)

	// ExtremesSector returns (min, max) elevation over a sector.
	ExtremesSector(sector geo.Sector) (Extent, bool)

	// LocalAvailability reports whether the data for a sector is already
	// present locally (memory or disk), without fetching anything.
	LocalAvailability(sector geo.Sector) bool
}

// RetrievalOutcome is the typed message a retrieval task resolves to,
// replacing callback-style post-processor subclassing (spec §9).
type RetrievalOutcome struct {
	Kind RetrievalOutcomeKind
	Data []byte
	Err  error
}

type RetrievalOutcomeKind int

const (
	RetrievalSuccess RetrievalOutcomeKind = iota
	RetrievalTextBody
	RetrievalError
	RetrievalAbsent
)
