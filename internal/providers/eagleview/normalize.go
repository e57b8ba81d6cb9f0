package eagleview

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/smallbiznis/rooflens/internal/measurement"
)

// verifiedConfidence is the fixed confidence for human-verified reports.
const verifiedConfidence = 0.98

// ErrNoAreaInReport marks a report that decoded fine but carries no total
// area under any known key.
var ErrNoAreaInReport = errors.New("report_missing_total_area")

// Report payloads vary across EagleView product generations. Measurements
// may sit at the top level or nested inside a container object, and every
// field is looked up through an ordered fallback table: first key present
// wins. Linear measures additionally check the "details" sub-object before
// the flat keys.
var (
	containerKeys = []string{"roofMeasurements", "roof"}
	areaKeys      = []string{"totalArea", "totalRoofArea", "total_area_sqft", "roofArea", "total_roof_area", "area"}
	pitchKeys     = []string{"predominantPitch", "predominant_pitch", "pitch"}
	ridgeKeys     = []string{"ridgeLength", "ridges", "total_ridge_length_ft"}
	valleyKeys    = []string{"valleyLength", "valleys", "total_valley_length_ft"}
	eaveKeys      = []string{"eaveLength", "eaves", "total_eave_length_ft"}
)

// mockReportPayload is the canned report served for mock orders.
const mockReportPayload = `{
	"totalArea": 2500,
	"predominantPitch": "6/12",
	"ridgeLength": 150,
	"valleyLength": 50,
	"eaveLength": 180,
	"structures": [
		{"type": "main_roof", "area": 2200},
		{"type": "garage", "area": 300}
	]
}`

// NormalizeReport converts a verified report payload into the canonical
// measurement shape. Pure, like the estimate normalizer, so stored payloads
// can be re-derived at any time.
func NormalizeReport(raw json.RawMessage, address, externalOrderID string) (measurement.Measurement, error) {
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return measurement.Measurement{}, fmt.Errorf("decode report: %w", err)
	}

	roof := roofContainer(decoded)

	area, ok := lookupFloat(roof, areaKeys)
	if !ok || area <= 0 {
		return measurement.Measurement{}, ErrNoAreaInReport
	}

	m := measurement.Measurement{
		Status:           measurement.StatusVerified,
		TotalAreaSqft:    measurement.RoundTo(area, 1),
		PredominantPitch: lookupPitch(roof),
		Source:           measurement.SourceEagleView,
		ConfidenceScore:  measurement.Float(verifiedConfidence),
		Address:          address,
		OrderID:          measurement.String(externalOrderID),
		SquaresNeeded:    measurement.SquaresFromArea(area),
	}

	if ridge, ok := lookupLine(roof, "ridges", ridgeKeys); ok {
		m.RidgeLengthFt = measurement.Float(ridge)
	}
	if valley, ok := lookupLine(roof, "valleys", valleyKeys); ok {
		m.ValleyLengthFt = measurement.Float(valley)
	}
	if eave, ok := lookupLine(roof, "eaves", eaveKeys); ok {
		m.EaveLengthFt = measurement.Float(eave)
	}

	if segments := facetSegments(roof); len(segments) > 0 {
		m.RoofSegments = segments
		m.RoofFacetCount = measurement.Int(len(segments))
	}
	if structures, ok := roof["structures"].([]any); ok {
		for _, s := range structures {
			if obj, ok := s.(map[string]any); ok {
				m.Structures = append(m.Structures, obj)
			}
		}
	}

	return m, nil
}

// roofContainer resolves the measurement object: nested containers first,
// the payload itself when the report is flat.
func roofContainer(payload map[string]any) map[string]any {
	for _, key := range containerKeys {
		if obj, ok := payload[key].(map[string]any); ok {
			return obj
		}
	}
	return payload
}

// lookupPitch reads the predominant pitch, accepting both pre-formatted
// rise/run strings and raw degree values, which go through the same
// conversion rule as the estimate tier.
func lookupPitch(roof map[string]any) string {
	for _, key := range pitchKeys {
		switch v := roof[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return measurement.PitchFromDegrees(v)
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return measurement.PitchFromDegrees(f)
			}
		}
	}
	return "Unknown"
}

// lookupLine reads a linear measure, preferring the "details" sub-object of
// newer reports over the flat keys of older ones.
func lookupLine(roof map[string]any, detailKey string, flat []string) (float64, bool) {
	if details, ok := roof["details"].(map[string]any); ok {
		if v, ok := lookupFloat(details, []string{detailKey}); ok {
			return v, true
		}
	}
	return lookupFloat(roof, flat)
}

// facetSegments maps the report's facet list onto canonical roof segments.
// Facet pitch is rise notation already, not degrees.
func facetSegments(roof map[string]any) []measurement.Segment {
	facets, ok := roof["facets"].([]any)
	if !ok {
		return nil
	}

	segments := make([]measurement.Segment, 0, len(facets))
	for _, f := range facets {
		obj, ok := f.(map[string]any)
		if !ok {
			continue
		}

		seg := measurement.Segment{Pitch: "Unknown"}
		if area, ok := lookupFloat(obj, []string{"area", "areaSqft"}); ok {
			seg.AreaSqft = measurement.RoundTo(area, 1)
		}
		switch p := obj["pitch"].(type) {
		case string:
			if p != "" {
				seg.Pitch = p
			}
		case float64:
			seg.Pitch = fmt.Sprintf("%d/12", int(math.Round(p)))
		}
		if az, ok := lookupFloat(obj, []string{"azimuth"}); ok {
			seg.AzimuthDegrees = az
			seg.AzimuthDirection = measurement.AzimuthDirection(az)
		}
		if compass, ok := obj["compass"].(string); ok && compass != "" {
			seg.AzimuthDirection = compass
		}
		segments = append(segments, seg)
	}
	return segments
}

func lookupFloat(payload map[string]any, keys []string) (float64, bool) {
	for _, key := range keys {
		if raw, ok := payload[key]; ok {
			switch v := raw.(type) {
			case float64:
				return v, true
			case json.Number:
				if f, err := v.Float64(); err == nil {
					return f, true
				}
			}
		}
	}
	return 0, false
}
