package measurement

import (
	"fmt"
	"math"
)

// maxRise caps the rise/run notation; anything steeper than 24/12 (~63°) is
// reported as 24/12.
const maxRise = 24

// PitchFromDegrees converts a pitch angle to standard rise/run notation,
// e.g. 26.57° → "6/12". Non-positive angles render as "Flat".
func PitchFromDegrees(degrees float64) string {
	if degrees <= 0 {
		return "Flat"
	}
	rise := int(math.Round(math.Tan(degrees*math.Pi/180) * 12))
	if rise > maxRise {
		rise = maxRise
	}
	if rise < 0 {
		rise = 0
	}
	return fmt.Sprintf("%d/12", rise)
}

// PredominantPitch returns the pitch bucket covering the largest cumulative
// area across segments — an area-weighted mode, not a count. Segments carry
// (pitch degrees, area) pairs; the result is independent of their order.
func PredominantPitch(segments []PitchedArea) string {
	if len(segments) == 0 {
		return "Unknown"
	}

	areas := make(map[string]float64, len(segments))
	for _, seg := range segments {
		areas[PitchFromDegrees(seg.PitchDegrees)] += seg.AreaSqMeters
	}

	best := "Unknown"
	bestArea := math.Inf(-1)
	for pitch, area := range areas {
		if area > bestArea || (area == bestArea && pitch < best) {
			best = pitch
			bestArea = area
		}
	}
	return best
}

// PitchedArea is one roof segment's contribution to the predominant-pitch
// vote.
type PitchedArea struct {
	PitchDegrees float64
	AreaSqMeters float64
}

// AzimuthDirection converts a compass azimuth to an 8-wind cardinal label
// (0° = N, 90° = E, 180° = S, 270° = W).
func AzimuthDirection(azimuth float64) string {
	directions := []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}
	index := int(math.Round(azimuth/45)) % 8
	if index < 0 {
		index += 8
	}
	return directions[index]
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}

// RoundTo rounds v to the given number of decimals. Exported for the
// provider normalizers.
func RoundTo(v float64, decimals int) float64 { return roundTo(v, decimals) }
