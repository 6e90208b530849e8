package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyGrid is returned when a forecast document parses but carries no
	// samples. An empty grid is a configuration-level failure: nothing can be
	// matched against it, so the evaluation tick must be skipped.
	ErrEmptyGrid = errors.New("forecast grid has no samples")

	// ErrNoCache is returned by the forecast cache when a fetch fails and no
	// forecast has ever been persisted to fall back on.
	ErrNoCache = errors.New("no cached forecast available")
)

// GridSample is one forecast grid cell: a canonical latitude/longitude pair
// and the OVATION intensity at that point.
type GridSample struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Intensity int     `json:"intensity"`
}

// Grid is one immutable snapshot of the aurora forecast. A newer fetch
// produces a new Grid; an existing Grid is never mutated, so a snapshot taken
// at the start of an evaluation pass stays coherent for the whole pass.
type Grid struct {
	GeneratedAt time.Time
	Samples     []GridSample
}

// ovationDocument mirrors the upstream SWPC JSON layout. Coordinates are
// longitude-first with longitudes in [0, 360); see the package doc.
type ovationDocument struct {
	ObservationTime string       `json:"Observation Time"`
	ForecastTime    string       `json:"Forecast Time"`
	Coordinates     [][3]float64 `json:"coordinates"`
}

// ParseGrid decodes a raw OVATION JSON payload into a Grid, normalizing each
// sample to latitude-first canonical coordinates. It returns ErrEmptyGrid for
// a document with zero samples and a wrapped error for malformed JSON or
// out-of-range samples.
func ParseGrid(raw []byte) (*Grid, error) {
	var doc ovationDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse forecast payload: %w", err)
	}
	if len(doc.Coordinates) == 0 {
		return nil, ErrEmptyGrid
	}

	samples := make([]GridSample, 0, len(doc.Coordinates))
	for i, c := range doc.Coordinates {
		lon, lat := c[0], c[1]
		if lon >= 180 {
			lon -= 360
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("forecast sample %d: coordinates out of range (lat=%g lon=%g)", i, lat, c[0])
		}
		if c[2] < 0 {
			return nil, fmt.Errorf("forecast sample %d: negative intensity %g", i, c[2])
		}
		samples = append(samples, GridSample{Lat: lat, Lon: lon, Intensity: int(c[2])})
	}

	return &Grid{
		GeneratedAt: parseForecastTime(doc.ForecastTime, doc.ObservationTime),
		Samples:     samples,
	}, nil
}

// parseForecastTime picks the first parseable stamp, falling back to the
// current time when the document carries none.
func parseForecastTime(stamps ...string) time.Time {
	for _, s := range stamps {
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
	}
	return clock.Now().UTC()
}
