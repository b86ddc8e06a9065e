package city

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/granada-guide/mapengine/internal/geo"
	"github.com/granada-guide/mapengine/pkg/nominatim"
)

// NominatimGeocoder adapts the Nominatim client to the Geocoder interface,
// asking at city detail.
type NominatimGeocoder struct {
	Client *nominatim.Client
}

// ReverseCity implements Geocoder.
func (g NominatimGeocoder) ReverseCity(ctx context.Context, center geo.LatLng) (Hit, error) {
	res, err := g.Client.Reverse(ctx, center.Lat, center.Lng, nominatim.DetailCity)
	if err != nil {
		return Hit{}, eris.Wrap(err, "city: reverse geocode")
	}
	return Hit{
		PlaceID:     res.PlaceID,
		Locality:    res.Addr.Locality(),
		BoundingBox: res.BoundingBox,
	}, nil
}
