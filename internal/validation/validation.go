package validation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"health-telemetry/internal/models"
)

// DefaultDevice is stored when a reading does not name its device.
const DefaultDevice = "esp32-max30102"

// Rejection reasons surfaced to callers and used as metric labels.
const (
	ReasonMissingField = "missing_field"
	ReasonOutOfRange   = "out_of_range"
)

var (
	ErrMissingField = errors.New(ReasonMissingField)
	ErrOutOfRange   = errors.New(ReasonOutOfRange)
)

// RejectionError describes why a reading was not accepted.
type RejectionError struct {
	Reason string
	Field  string
	Value  float64
}

func (e *RejectionError) Error() string {
	if e.Reason == ReasonOutOfRange {
		return fmt.Sprintf("%s: %s=%v", e.Reason, e.Field, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Field)
}

func (e *RejectionError) Is(target error) bool {
	switch target {
	case ErrMissingField:
		return e.Reason == ReasonMissingField
	case ErrOutOfRange:
		return e.Reason == ReasonOutOfRange
	}
	return false
}

// Bounds are the accepted ranges. Lower bounds are exclusive, upper bounds
// inclusive: a reading is accepted when Min < v <= Max.
type Bounds struct {
	SpO2Min      float64
	SpO2Max      float64
	HeartRateMin float64
	HeartRateMax float64
}

// DefaultBounds accepts 0 < spo2 <= 100 and 0 < heartRate <= 250.
func DefaultBounds() Bounds {
	return Bounds{
		SpO2Min:      0,
		SpO2Max:      100,
		HeartRateMin: 0,
		HeartRateMax: 250,
	}
}

// Validator decides whether a reading may become an entry. Only range checks
// are applied; validity flags sent by the device are never trusted.
type Validator struct {
	bounds Bounds
}

// NewValidator returns a validator enforcing b.
func NewValidator(b Bounds) *Validator {
	return &Validator{bounds: b}
}

// Validate returns the normalized entry for an acceptable reading, or a
// *RejectionError. now stamps serverTimestamp and defaults deviceTimestamp.
func (v *Validator) Validate(r models.Reading, now time.Time) (models.Entry, error) {
	spo2, ok := r.SpO2.Float()
	if !ok {
		return models.Entry{}, &RejectionError{Reason: ReasonMissingField, Field: "spo2"}
	}
	hr, ok := r.HeartRate.Float()
	if !ok {
		return models.Entry{}, &RejectionError{Reason: ReasonMissingField, Field: "heartRate"}
	}
	if !within(spo2, v.bounds.SpO2Min, v.bounds.SpO2Max) {
		return models.Entry{}, &RejectionError{Reason: ReasonOutOfRange, Field: "spo2", Value: spo2}
	}
	if !within(hr, v.bounds.HeartRateMin, v.bounds.HeartRateMax) {
		return models.Entry{}, &RejectionError{Reason: ReasonOutOfRange, Field: "heartRate", Value: hr}
	}

	received := now.UnixMilli()

	device := DefaultDevice
	if r.Device.Present && r.Device.Value != "" {
		device = r.Device.Value
	}

	// Zero and values outside int64 milliseconds count as absent.
	deviceTS := received
	if ts, ok := r.Timestamp.Float(); ok && ts != 0 && ts >= math.MinInt64 && ts < math.MaxInt64 {
		deviceTS = int64(ts)
	}

	return models.Entry{
		SpO2:            spo2,
		HeartRate:       hr,
		TempC:           r.TempC.Ptr(),
		TempF:           r.TempF.Ptr(),
		Device:          device,
		DeviceTimestamp: deviceTS,
		ServerTimestamp: received,
		ValidHR:         true,
		ValidSpO2:       true,
	}, nil
}

func within(v, lo, hi float64) bool {
	return v > lo && v <= hi
}
