package googlesolar

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/smallbiznis/rooflens/internal/measurement"
)

// ErrNoRoofData marks a payload that decoded fine but carries no usable roof
// geometry; callers degrade to manual review.
var ErrNoRoofData = errors.New("no_roof_data_in_payload")

// Confidence assigned per imagery quality tier. Unknown tiers get the LOW
// score rather than failing the estimate.
var confidenceByQuality = map[string]float64{
	"HIGH":   0.85,
	"MEDIUM": 0.70,
	"LOW":    0.50,
}

const defaultConfidence = 0.50

type buildingInsights struct {
	ImageryQuality string `json:"imageryQuality"`
	ImageryDate    struct {
		Year  int `json:"year"`
		Month int `json:"month"`
		Day   int `json:"day"`
	} `json:"imageryDate"`
	SolarPotential struct {
		MaxArrayPanelsCount     int     `json:"maxArrayPanelsCount"`
		PanelCapacityWatts      float64 `json:"panelCapacityWatts"`
		MaxSunshineHoursPerYear float64 `json:"maxSunshineHoursPerYear"`
		CarbonOffsetFactorKg    float64 `json:"carbonOffsetFactorKgPerMwh"`
		WholeRoofStats          struct {
			AreaMeters2 float64 `json:"areaMeters2"`
		} `json:"wholeRoofStats"`
		RoofSegmentStats []roofSegmentStats `json:"roofSegmentStats"`
	} `json:"solarPotential"`
}

type roofSegmentStats struct {
	PitchDegrees   float64 `json:"pitchDegrees"`
	AzimuthDegrees float64 `json:"azimuthDegrees"`
	Stats          struct {
		AreaMeters2 float64 `json:"areaMeters2"`
	} `json:"stats"`
}

// Normalize converts a raw buildingInsights payload into the canonical
// measurement shape. It is deliberately pure so cached payloads can be
// re-normalized on every cache hit and pick up normalizer fixes for free.
func Normalize(raw json.RawMessage, address string) (measurement.Measurement, error) {
	var decoded buildingInsights
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return measurement.Measurement{}, fmt.Errorf("decode building insights: %w", err)
	}

	roofAreaM2 := decoded.SolarPotential.WholeRoofStats.AreaMeters2
	if roofAreaM2 <= 0 {
		return measurement.Measurement{}, ErrNoRoofData
	}

	confidence, ok := confidenceByQuality[decoded.ImageryQuality]
	if !ok {
		confidence = defaultConfidence
	}

	pitched := make([]measurement.PitchedArea, 0, len(decoded.SolarPotential.RoofSegmentStats))
	segments := make([]measurement.Segment, 0, len(decoded.SolarPotential.RoofSegmentStats))
	for _, seg := range decoded.SolarPotential.RoofSegmentStats {
		pitched = append(pitched, measurement.PitchedArea{
			PitchDegrees: seg.PitchDegrees,
			AreaSqMeters: seg.Stats.AreaMeters2,
		})
		segments = append(segments, measurement.Segment{
			AreaSqft:         measurement.RoundTo(seg.Stats.AreaMeters2*measurement.SquareMetersToSqft, 1),
			Pitch:            measurement.PitchFromDegrees(seg.PitchDegrees),
			AzimuthDegrees:   seg.AzimuthDegrees,
			AzimuthDirection: measurement.AzimuthDirection(seg.AzimuthDegrees),
		})
	}
	// Largest facets first.
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].AreaSqft > segments[j].AreaSqft
	})

	m := measurement.Measurement{
		Status:           measurement.StatusEstimate,
		TotalAreaSqft:    measurement.RoundTo(roofAreaM2*measurement.SquareMetersToSqft, 1),
		PredominantPitch: measurement.PredominantPitch(pitched),
		Source:           measurement.SourceGoogleSolar,
		ConfidenceScore:  measurement.Float(confidence),
		Address:          address,
		RoofSegments:     segments,
		RoofFacetCount:   measurement.Int(len(segments)),
	}

	if decoded.ImageryQuality != "" {
		m.ImageryQuality = measurement.String(decoded.ImageryQuality)
	}
	if decoded.ImageryDate.Year > 0 {
		m.ImageryDate = measurement.String(fmt.Sprintf("%04d-%02d-%02d",
			decoded.ImageryDate.Year, decoded.ImageryDate.Month, decoded.ImageryDate.Day))
	}
	if decoded.SolarPotential.MaxSunshineHoursPerYear > 0 {
		m.MaxSunshineHoursPerYear = measurement.Float(decoded.SolarPotential.MaxSunshineHoursPerYear)
	}
	if decoded.SolarPotential.CarbonOffsetFactorKg > 0 {
		m.CarbonOffsetFactor = measurement.Float(decoded.SolarPotential.CarbonOffsetFactorKg)
	}
	if decoded.SolarPotential.MaxArrayPanelsCount > 0 {
		m.MaxPanels = measurement.Int(decoded.SolarPotential.MaxArrayPanelsCount)
	}
	if decoded.SolarPotential.PanelCapacityWatts > 0 {
		m.PanelCapacityWatts = measurement.Int(int(decoded.SolarPotential.PanelCapacityWatts))
	}

	return m, nil
}
