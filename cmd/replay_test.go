package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestReplayScriptParses(t *testing.T) {
	raw := `
steps:
  - lat: 37.177
    lng: -3.599
    zoom: 16
    span_km: 1.5
    wait_ms: 800
  - lat: 36.721
    lng: -4.421
    zoom: 13
`
	var script replayScript
	require.NoError(t, yaml.Unmarshal([]byte(raw), &script))
	require.Len(t, script.Steps, 2)
	assert.Equal(t, 16, script.Steps[0].Zoom)
	assert.Equal(t, 800, script.Steps[0].WaitMs)
	assert.InDelta(t, 1.5, script.Steps[0].SpanKm, 0.001)
}

func TestReplayStepViewport(t *testing.T) {
	step := replayStep{Lat: 37.177, Lng: -3.599, Zoom: 16, SpanKm: 2.22}
	v := step.viewport()

	assert.Equal(t, 16, v.Zoom)
	assert.InDelta(t, 37.177, v.Center.Lat, 1e-9)
	assert.InDelta(t, 0.02, v.Bounds.MaxLat-v.Bounds.MinLat, 0.001)
	assert.True(t, v.Bounds.Contains(v.Center))
}

func TestReplayStepViewport_DefaultSpan(t *testing.T) {
	v := replayStep{Lat: 37.0, Lng: -3.0, Zoom: 15}.viewport()
	assert.Greater(t, v.Bounds.MaxLat, v.Bounds.MinLat)
	assert.Greater(t, v.Bounds.MaxLng, v.Bounds.MinLng)
}
