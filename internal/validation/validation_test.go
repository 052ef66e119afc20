package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-telemetry/internal/models"
)

var now = time.UnixMilli(1700000000000)

func reading(spo2, hr float64) models.Reading {
	return models.Reading{SpO2: models.Number(spo2), HeartRate: models.Number(hr)}
}

func TestValidate_Boundaries(t *testing.T) {
	v := NewValidator(DefaultBounds())

	tests := []struct {
		name   string
		spo2   float64
		hr     float64
		reason string
		field  string
	}{
		{"upper bounds inclusive", 100, 250, "", ""},
		{"typical", 97, 72, "", ""},
		{"smallest positive", 0.1, 0.1, "", ""},
		{"spo2 above max", 101, 80, ReasonOutOfRange, "spo2"},
		{"spo2 zero", 0, 80, ReasonOutOfRange, "spo2"},
		{"spo2 negative", -1, 80, ReasonOutOfRange, "spo2"},
		{"heart rate zero", 98, 0, ReasonOutOfRange, "heartRate"},
		{"heart rate above max", 98, 250.5, ReasonOutOfRange, "heartRate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := v.Validate(reading(tt.spo2, tt.hr), now)
			if tt.reason == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.spo2, entry.SpO2)
				assert.Equal(t, tt.hr, entry.HeartRate)
				return
			}
			var rej *RejectionError
			require.True(t, errors.As(err, &rej))
			assert.Equal(t, tt.reason, rej.Reason)
			assert.Equal(t, tt.field, rej.Field)
			assert.True(t, errors.Is(err, ErrOutOfRange))
		})
	}
}

func TestValidate_MissingAndUncoercible(t *testing.T) {
	v := NewValidator(DefaultBounds())

	tests := []struct {
		name  string
		r     models.Reading
		field string
	}{
		{"empty", models.Reading{}, "spo2"},
		{"no heart rate", models.Reading{SpO2: models.Number(98)}, "heartRate"},
		{"garbage spo2", models.Reading{
			SpO2:      models.OptionalNumber{Present: true},
			HeartRate: models.Number(70),
		}, "spo2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.r, now)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingField))
			assert.False(t, errors.Is(err, ErrOutOfRange))

			var rej *RejectionError
			require.True(t, errors.As(err, &rej))
			assert.Equal(t, tt.field, rej.Field)
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	v := NewValidator(DefaultBounds())

	entry, err := v.Validate(reading(98, 72), now)
	require.NoError(t, err)

	assert.Equal(t, DefaultDevice, entry.Device)
	assert.Equal(t, now.UnixMilli(), entry.DeviceTimestamp)
	assert.Equal(t, now.UnixMilli(), entry.ServerTimestamp)
	assert.Nil(t, entry.TempC)
	assert.Nil(t, entry.TempF)
	assert.True(t, entry.ValidHR)
	assert.True(t, entry.ValidSpO2)
}

func TestValidate_CarriesOptionalFields(t *testing.T) {
	v := NewValidator(DefaultBounds())

	r := reading(98, 72)
	r.TempC = models.Number(36.6)
	r.TempF = models.Number(97.9)
	r.Device = models.String("bedside-1")
	r.Timestamp = models.Number(1699999999123.7)

	entry, err := v.Validate(r, now)
	require.NoError(t, err)

	require.NotNil(t, entry.TempC)
	require.NotNil(t, entry.TempF)
	assert.Equal(t, 36.6, *entry.TempC)
	assert.Equal(t, 97.9, *entry.TempF)
	assert.Equal(t, "bedside-1", entry.Device)
	assert.Equal(t, int64(1699999999123), entry.DeviceTimestamp)
	assert.Equal(t, now.UnixMilli(), entry.ServerTimestamp)
}

func TestValidate_OverflowingTimestampFallsBack(t *testing.T) {
	v := NewValidator(DefaultBounds())

	for _, ts := range []float64{1e30, -1e30, 9223372036854775808} {
		r := reading(98, 70)
		r.Timestamp = models.Number(ts)

		entry, err := v.Validate(r, now)
		require.NoError(t, err)
		assert.Equal(t, now.UnixMilli(), entry.DeviceTimestamp, "timestamp %g", ts)
	}

	r := reading(98, 70)
	r.Timestamp = models.Number(-1000)
	entry, err := v.Validate(r, now)
	require.NoError(t, err)
	assert.Equal(t, int64(-1000), entry.DeviceTimestamp)
}

func TestValidate_TemperatureIsNotRangeChecked(t *testing.T) {
	v := NewValidator(DefaultBounds())

	r := reading(98, 72)
	r.TempC = models.Number(-400)

	entry, err := v.Validate(r, now)
	require.NoError(t, err)
	assert.Equal(t, -400.0, *entry.TempC)
}

func TestValidate_EmptyDeviceFallsBack(t *testing.T) {
	v := NewValidator(DefaultBounds())

	r := reading(98, 72)
	r.Device = models.String("")

	entry, err := v.Validate(r, now)
	require.NoError(t, err)
	assert.Equal(t, DefaultDevice, entry.Device)
}

func TestRejectionError_Message(t *testing.T) {
	err := &RejectionError{Reason: ReasonOutOfRange, Field: "spo2", Value: 101}
	assert.Equal(t, "out_of_range: spo2=101", err.Error())

	err = &RejectionError{Reason: ReasonMissingField, Field: "heartRate"}
	assert.Equal(t, "missing_field: heartRate", err.Error())
}
