package poi

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/granada-guide/mapengine/internal/geo"
	"github.com/granada-guide/mapengine/internal/model"
	"github.com/granada-guide/mapengine/pkg/overpass"
)

// DefaultLimit bounds the worst-case render cost of the POI working set.
const DefaultLimit = 180

var foldCaser = cases.Fold()

// FromElements converts raw elements into a bounded, deduplicated POI set.
// Elements without a usable coordinate are dropped. Duplicates share an icon
// key, a case-insensitively equal name, and coordinates equal after
// 4-decimal rounding; the first occurrence wins. The output keeps source
// order, truncated to limit entries.
func FromElements(elements []overpass.Element, limit int) []model.POIRecord {
	if limit <= 0 {
		limit = DefaultLimit
	}

	seen := make(map[string]struct{}, len(elements))
	records := make([]model.POIRecord, 0, min(len(elements), limit))

	for _, el := range elements {
		lat, lon, ok := el.Coordinate()
		if !ok {
			continue
		}

		cls := Classify(el.Tags)
		name := ResolveName(el.Tags, cls.Label)

		key := strings.Join([]string{
			cls.IconKey,
			foldCaser.String(name),
			geo.Round4(lat),
			geo.Round4(lon),
		}, "|")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		records = append(records, model.POIRecord{
			ID:      fmt.Sprintf("%s-%d", el.Type, el.ID),
			Lat:     lat,
			Lng:     lon,
			Name:    name,
			Kind:    cls.Kind,
			IconKey: cls.IconKey,
			Label:   cls.Label,
		})
		if len(records) >= limit {
			break
		}
	}

	return records
}
