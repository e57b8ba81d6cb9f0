// Package measurement defines the canonical roof measurement schema that both
// provider tiers are normalized into.
package measurement

// Status tracks where a measurement sits in its lifecycle.
//
//	ESTIMATE       instant satellite estimate recorded, no paid order exists
//	MANUAL_REVIEW  estimate data unavailable, needs a human
//	PENDING        verified order placed, awaiting provider completion
//	VERIFIED       verified order completed, measurement upgraded
//	FAILED         verified order failed or timed out
type Status string

const (
	StatusEstimate     Status = "ESTIMATE"
	StatusManualReview Status = "MANUAL_REVIEW"
	StatusPending      Status = "PENDING"
	StatusVerified     Status = "VERIFIED"
	StatusFailed       Status = "FAILED"
)

// Terminal reports whether no further transition may leave this status.
// PENDING is a stable rest state but not terminal; ESTIMATE may still be
// upgraded to PENDING by a paid order.
func (s Status) Terminal() bool {
	switch s {
	case StatusVerified, StatusFailed, StatusManualReview:
		return true
	default:
		return false
	}
}

// Source identifies which provider produced the measurement data.
type Source string

const (
	SourceGoogleSolar Source = "GOOGLE_SOLAR"
	SourceEagleView   Source = "EAGLEVIEW"
)

// Segment describes a single roof facet.
type Segment struct {
	AreaSqft         float64 `json:"area_sqft"`
	Pitch            string  `json:"pitch"`
	AzimuthDegrees   float64 `json:"azimuth_degrees"`
	AzimuthDirection string  `json:"azimuth_direction"`
}

// Measurement is the canonical response shape for both tiers. Extended
// attributes are pointers: nil means "not provided by this source", never
// zero.
type Measurement struct {
	Status           Status   `json:"status"`
	TotalAreaSqft    float64  `json:"total_area_sqft"`
	PredominantPitch string   `json:"predominant_pitch"`
	Source           Source   `json:"source"`
	ConfidenceScore  *float64 `json:"confidence_score,omitempty"`
	Address          string   `json:"address"`
	OrderID          *string  `json:"order_id,omitempty"`
	Message          *string  `json:"message,omitempty"`
	IsCached         bool     `json:"is_cached"`

	// Google Solar extended data
	MaxSunshineHoursPerYear *float64  `json:"max_sunshine_hours_per_year,omitempty"`
	CarbonOffsetFactor      *float64  `json:"carbon_offset_factor,omitempty"`
	ImageryQuality          *string   `json:"imagery_quality,omitempty"`
	ImageryDate             *string   `json:"imagery_date,omitempty"`
	RoofFacetCount          *int      `json:"roof_facet_count,omitempty"`
	RoofSegments            []Segment `json:"roof_segments,omitempty"`
	MaxPanels               *int      `json:"max_panels,omitempty"`
	PanelCapacityWatts      *int      `json:"panel_capacity_watts,omitempty"`

	// EagleView extended data
	RidgeLengthFt  *float64         `json:"ridge_length_ft,omitempty"`
	ValleyLengthFt *float64         `json:"valley_length_ft,omitempty"`
	EaveLengthFt   *float64         `json:"eave_length_ft,omitempty"`
	SquaresNeeded  *float64         `json:"squares_needed,omitempty"`
	Structures     []map[string]any `json:"structures,omitempty"`
}

// ManualReview builds the degraded-but-valid response returned when the free
// tier cannot produce usable data. Confidence is zero by contract.
func ManualReview(address, message string) Measurement {
	zero := 0.0
	return Measurement{
		Status:           StatusManualReview,
		TotalAreaSqft:    0,
		PredominantPitch: "Unknown",
		Source:           SourceGoogleSolar,
		ConfidenceScore:  &zero,
		Address:          address,
		Message:          &message,
	}
}

// SquareMetersToSqft converts provider area figures (m²) to square feet.
const SquareMetersToSqft = 10.764

// SquaresFromArea returns roofing squares (1 square = 100 sqft), rounded to
// one decimal, or nil for a zero area.
func SquaresFromArea(areaSqft float64) *float64 {
	if areaSqft <= 0 {
		return nil
	}
	squares := roundTo(areaSqft/100, 1)
	return &squares
}

// Float returns a pointer to v, for optional fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for optional fields.
func Int(v int) *int { return &v }

// String returns a pointer to v, for optional fields.
func String(v string) *string { return &v }
