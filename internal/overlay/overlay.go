// Package overlay projects saved places and discovered POIs into a single
// marker model for the map layer. Projection is pure: same inputs, same
// markers.
package overlay

import (
	"strconv"

	"github.com/granada-guide/mapengine/internal/model"
)

// POIs render beneath saved places so a saved marker always wins a tap.
const poiZIndexOffset = -200

// knownIcons is the icon set the map layer can render. Anything else falls
// back to the default pin.
var knownIcons = map[string]struct{}{
	"utensils":       {},
	"wine":           {},
	"coffee":         {},
	"burger":         {},
	"pharmacy":       {},
	"fuel":           {},
	"landmark":       {},
	"tree":           {},
	"binoculars":     {},
	"walking":        {},
	"umbrella-beach": {},
	"default":        {},
}

// Marker is one renderable map marker.
type Marker struct {
	ID           string
	Lat          float64
	Lng          float64
	Name         string
	IconKey      string
	Label        string
	Status       model.PlaceStatus
	ZIndexOffset int
	Highlighted  bool
	// ClusterEligible marks markers the map layer may group at low zoom.
	// Saved places always render individually.
	ClusterEligible bool
}

// View is the projected overlay: saved places and POIs as separate layers.
type View struct {
	SavedPlaces []Marker
	POIs        []Marker
}

// ResolveIconKey maps an icon name to one the map layer can render.
func ResolveIconKey(icon string) string {
	if _, ok := knownIcons[icon]; ok {
		return icon
	}
	return "default"
}

// Project builds the overlay view. hoveredID highlights one saved place
// (0 for none). Saved places without coordinates are skipped.
func Project(saved []model.SavedPlace, pois []model.POIRecord, hoveredID int64) View {
	view := View{
		SavedPlaces: make([]Marker, 0, len(saved)),
		POIs:        make([]Marker, 0, len(pois)),
	}

	for _, p := range saved {
		if p.Lat == 0 && p.Lng == 0 {
			continue
		}
		icon := "default"
		if p.Category != nil {
			icon = ResolveIconKey(p.Category.Icon)
		}
		view.SavedPlaces = append(view.SavedPlaces, Marker{
			ID:          "place-" + strconv.FormatInt(p.ID, 10),
			Lat:         p.Lat,
			Lng:         p.Lng,
			Name:        p.Name,
			IconKey:     icon,
			Status:      p.Status,
			Highlighted: hoveredID != 0 && p.ID == hoveredID,
		})
	}

	for _, p := range pois {
		view.POIs = append(view.POIs, Marker{
			ID:              "poi-" + p.ID,
			Lat:             p.Lat,
			Lng:             p.Lng,
			Name:            p.Name,
			IconKey:         ResolveIconKey(p.IconKey),
			Label:           p.Label,
			ZIndexOffset:    poiZIndexOffset,
			ClusterEligible: true,
		})
	}

	return view
}
