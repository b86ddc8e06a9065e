package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/granada-guide/mapengine/internal/geo"
	"github.com/granada-guide/mapengine/internal/model"
)

// replayScript is a recorded map session: a sequence of settled views with
// pauses between them.
type replayScript struct {
	Steps []replayStep `yaml:"steps"`
}

type replayStep struct {
	Lat    float64 `yaml:"lat"`
	Lng    float64 `yaml:"lng"`
	Zoom   int     `yaml:"zoom"`
	SpanKm float64 `yaml:"span_km"`
	WaitMs int     `yaml:"wait_ms"`
}

// viewport derives a bounding box around the step's center. The span is an
// approximation good enough for replays; 1 degree of latitude is ~111km.
func (s replayStep) viewport() model.ViewportState {
	span := s.SpanKm
	if span <= 0 {
		span = 2
	}
	dLat := span / 111.0 / 2
	dLng := span / 85.0 / 2 // rough at Spanish latitudes
	return model.ViewportState{
		Center: geo.LatLng{Lat: s.Lat, Lng: s.Lng},
		Zoom:   s.Zoom,
		Bounds: geo.BoundingBox{
			MinLat: s.Lat - dLat, MaxLat: s.Lat + dLat,
			MinLng: s.Lng - dLng, MaxLng: s.Lng + dLng,
		},
	}
}

var replayCmd = &cobra.Command{
	Use:   "replay <script.yaml>",
	Short: "Replay a recorded map session against live services",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "replay: read %s", args[0])
		}
		var script replayScript
		if err := yaml.Unmarshal(raw, &script); err != nil {
			return eris.Wrapf(err, "replay: parse %s", args[0])
		}
		if len(script.Steps) == 0 {
			return eris.New("replay: script has no steps")
		}

		eng := buildEngine(cfg)
		defer eng.Close()

		for i, step := range script.Steps {
			eng.ObserveViewport(step.viewport())

			wait := time.Duration(step.WaitMs) * time.Millisecond
			if wait <= 0 {
				wait = 2 * time.Second
			}
			select {
			case <-time.After(wait):
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}

			snap := eng.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "step %d  zoom=%d  pois=%d  places=%d  %s\n",
				i+1, step.Zoom, len(snap.POIMarkers), len(snap.SavedPlaceMarkers), snap.CityStatus)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
}
