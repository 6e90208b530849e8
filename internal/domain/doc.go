// Package domain models NOAA OVATION aurora forecast data and alert
// subscriptions.
//
// # Data Source
//
// Forecast grids come from the NOAA Space Weather Prediction Center (SWPC)
// OVATION aurora model, published as a single JSON document at
// https://services.swpc.noaa.gov/json/ovation_aurora_latest.json. The document
// carries a "coordinates" array of [longitude, latitude, intensity] triples
// covering the whole globe at one-degree resolution (~65k samples), plus
// "Observation Time" and "Forecast Time" stamps in RFC 3339.
//
// # Coordinate Conventions
//
// The upstream feed is longitude-first with longitudes in [0, 360). Parsing
// normalizes every sample to latitude-first with longitude in [-180, 180],
// which is the convention for all internal coordinate math. Samples that fall
// outside the canonical ranges after normalization mean a malformed feed, not
// individual bad rows: the grid is rejected whole.
//
// # Intensity and Kp
//
// Intensity is the OVATION aurora probability value attached to a grid cell,
// a small non-negative integer (0–20 in practice). Subscribers express their
// alert threshold on the planetary K-index (Kp) scale of 0–9, the convention
// aurora watchers already know. [KpToIntensity] converts a Kp threshold to
// OVATION intensity units once per evaluation; the fire check itself always
// compares in intensity units. Kp values outside 0–9 are a per-subscription
// data error, never a batch failure.
package domain
