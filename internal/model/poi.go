// Package model holds the domain types shared across the map engine:
// discovered POIs, user-saved places, and viewport state.
package model

import "github.com/granada-guide/mapengine/internal/geo"

// POIKind categorizes a discovered point of interest.
type POIKind string

const (
	POIRestaurant POIKind = "restaurant"
	POIBar        POIKind = "bar"
	POICafe       POIKind = "cafe"
	POIFastFood   POIKind = "fast_food"
	POIMuseum     POIKind = "museum"
	POIPark       POIKind = "park"
	POIAttraction POIKind = "attraction"
	POIPharmacy   POIKind = "pharmacy"
	POIFuel       POIKind = "fuel"
	POIOther      POIKind = "other"
)

// POIRecord is a third-party point of interest discovered for the current
// viewport. Records are immutable once created; the working set is replaced
// wholesale on every successful fetch.
type POIRecord struct {
	ID      string  `json:"id"` // stable: "<element type>-<element id>"
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Name    string  `json:"name"`
	Kind    POIKind `json:"kind"`
	IconKey string  `json:"iconKey"`
	Label   string  `json:"label"`
}

// ViewportState describes the visible map region after movement settles.
type ViewportState struct {
	Center geo.LatLng      `json:"center"`
	Zoom   int             `json:"zoom"`
	Bounds geo.BoundingBox `json:"bounds"`
}
