// Package geo provides the bounding-box arithmetic the POI pipeline is
// built on: parsing, containment, and intersection of axis-aligned
// latitude/longitude rectangles. Everything here is pure and deterministic.
package geo

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
)

// ErrParseBounds indicates a malformed bounding box from a collaborator.
var ErrParseBounds = eris.New("geo: malformed bounding box")

// LatLng is a point in degrees.
type LatLng struct {
	Lat float64
	Lng float64
}

// BoundingBox is an axis-aligned rectangle in degrees.
// Invariant: MinLat < MaxLat and MinLng < MaxLng.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// ParseBounds parses a Nominatim-style bounding box given as
// [south, north, west, east] strings. It fails with ErrParseBounds if any
// coordinate is non-numeric or the box is degenerate.
func ParseBounds(raw [4]string) (BoundingBox, error) {
	vals := make([]float64, 4)
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return BoundingBox{}, eris.Wrapf(ErrParseBounds, "coordinate %d: %q", i, s)
		}
		vals[i] = v
	}

	b := BoundingBox{
		MinLat: vals[0],
		MaxLat: vals[1],
		MinLng: vals[2],
		MaxLng: vals[3],
	}
	if b.MinLat >= b.MaxLat || b.MinLng >= b.MaxLng {
		return BoundingBox{}, eris.Wrapf(ErrParseBounds, "degenerate box %+v", b)
	}
	return b, nil
}

// Contains reports whether p lies inside b, inclusive on all four edges.
func (b BoundingBox) Contains(p LatLng) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// Center returns the midpoint of b.
func (b BoundingBox) Center() LatLng {
	return LatLng{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lng: (b.MinLng + b.MaxLng) / 2,
	}
}

// Intersect computes the overlap of a and b as the max of mins and min of
// maxes. The second return value is false when the boxes do not overlap or
// the overlap is degenerate (zero width or height).
func Intersect(a, b BoundingBox) (BoundingBox, bool) {
	out := BoundingBox{
		MinLat: max(a.MinLat, b.MinLat),
		MaxLat: min(a.MaxLat, b.MaxLat),
		MinLng: max(a.MinLng, b.MinLng),
		MaxLng: min(a.MaxLng, b.MaxLng),
	}
	if out.MinLat >= out.MaxLat || out.MinLng >= out.MaxLng {
		return BoundingBox{}, false
	}
	return out, true
}

// Round3 formats v with exactly three decimal places. Used for POI query
// keys: viewports whose intersection rounds to the same key are the same
// effective query.
func Round3(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// Round4 formats v with exactly four decimal places. Used for POI
// deduplication keys.
func Round4(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// BBoxParam formats b as "minLng,minLat,maxLng,maxLat" for bbox query
// parameters on the place-storage API.
func (b BoundingBox) BBoxParam() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLng, b.MinLat, b.MaxLng, b.MaxLat)
}
