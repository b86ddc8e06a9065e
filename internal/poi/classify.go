// Package poi turns raw geodata elements into typed, categorized, and
// deduplicated POI records.
package poi

import (
	_ "embed"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/granada-guide/mapengine/internal/model"
)

//go:embed rules.yaml
var rulesYAML []byte

// Classification is the category assigned to an element.
type Classification struct {
	Kind    model.POIKind
	IconKey string
	Label   string
}

type rule struct {
	Key             string        `yaml:"key"`
	Values          []string      `yaml:"values"`
	BrandSubstrings []string      `yaml:"brand_substrings"`
	Kind            model.POIKind `yaml:"kind"`
	Icon            string        `yaml:"icon"`
	Label           string        `yaml:"label"`
}

type ruleTable struct {
	Rules    []rule `yaml:"rules"`
	Fallback struct {
		Kind  model.POIKind `yaml:"kind"`
		Icon  string        `yaml:"icon"`
		Label string        `yaml:"label"`
	} `yaml:"fallback"`
}

var table ruleTable

func init() {
	if err := yaml.Unmarshal(rulesYAML, &table); err != nil {
		panic("poi: embedded rules.yaml is invalid: " + err.Error())
	}
}

func (r rule) matches(tags map[string]string) bool {
	if v, ok := tags[r.Key]; ok && slices.Contains(r.Values, v) {
		return true
	}
	if len(r.BrandSubstrings) > 0 {
		haystack := strings.ToLower(tags["name"] + " " + tags["brand"])
		for _, sub := range r.BrandSubstrings {
			if strings.Contains(haystack, sub) {
				return true
			}
		}
	}
	return false
}

// Classify assigns the first matching category from the ordered rule table,
// falling back to the generic "other" category.
func Classify(tags map[string]string) Classification {
	for _, r := range table.Rules {
		if r.matches(tags) {
			return Classification{Kind: r.Kind, IconKey: r.Icon, Label: r.Label}
		}
	}
	return Classification{
		Kind:    table.Fallback.Kind,
		IconKey: table.Fallback.Icon,
		Label:   table.Fallback.Label,
	}
}

// ResolveName picks a display name for an element: localized name first,
// then generic name, brand, operator, and short name. Elements with no
// usable name get a "<label> sin nombre" placeholder instead of being
// dropped.
func ResolveName(tags map[string]string, label string) string {
	for _, key := range []string{"name:es", "name", "brand", "operator", "short_name"} {
		if v := strings.TrimSpace(tags[key]); v != "" {
			return v
		}
	}
	return label + " sin nombre"
}
