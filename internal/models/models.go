package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Reading is one raw sample as submitted by a sensor device. Every field is
// optional and decoding never fails on a wrong type; coercion outcomes are
// recorded on the field and judged later by the validator.
type Reading struct {
	SpO2      OptionalNumber `json:"spo2"`
	HeartRate OptionalNumber `json:"heartRate"`
	TempC     OptionalNumber `json:"tempC"`
	TempF     OptionalNumber `json:"tempF"`
	Device    OptionalString `json:"device"`
	Timestamp OptionalNumber `json:"timestamp"`
}

// Entry is a validated reading as held by the store
type Entry struct {
	SpO2            float64  `json:"spo2"`
	HeartRate       float64  `json:"heartRate"`
	TempC           *float64 `json:"tempC"`
	TempF           *float64 `json:"tempF"`
	Device          string   `json:"device"`
	DeviceTimestamp int64    `json:"deviceTimestamp"`
	ServerTimestamp int64    `json:"serverTimestamp"`
	ValidHR         bool     `json:"validHR"`
	ValidSpO2       bool     `json:"validSPO2"`
}

// Snapshot is what a querier sees: the latest entry (nil before the first
// acceptance) and the most recent window of history, oldest first.
type Snapshot struct {
	Latest *Entry  `json:"latest"`
	Recent []Entry `json:"recent"`
}

// OptionalNumber holds a JSON value that should be a number.
//
// Present is false for an absent key or JSON null. Numeric is true when the
// value was a JSON number, or a string holding one, that fits in a finite
// float64.
type OptionalNumber struct {
	Present bool
	Numeric bool
	Value   float64
}

// Number returns a present, numeric value.
func Number(v float64) OptionalNumber {
	return OptionalNumber{Present: true, Numeric: true, Value: v}
}

// Float returns the value and whether it was usable.
func (n OptionalNumber) Float() (float64, bool) {
	if !n.Present || !n.Numeric {
		return 0, false
	}
	return n.Value, true
}

// Ptr returns a pointer to the value, or nil when it is not usable.
func (n OptionalNumber) Ptr() *float64 {
	v, ok := n.Float()
	if !ok {
		return nil
	}
	return &v
}

func (n *OptionalNumber) UnmarshalJSON(data []byte) error {
	*n = OptionalNumber{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	n.Present = true

	var text string
	switch c := data[0]; {
	case c == '"':
		if err := json.Unmarshal(data, &text); err != nil {
			return nil
		}
		text = strings.TrimSpace(text)
	case c == '-' || (c >= '0' && c <= '9'):
		text = string(data)
	default:
		// bool, object or array
		return nil
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	n.Numeric = true
	n.Value = v
	return nil
}

func (n OptionalNumber) MarshalJSON() ([]byte, error) {
	if v, ok := n.Float(); ok {
		return json.Marshal(v)
	}
	return []byte("null"), nil
}

// OptionalString holds a JSON value that should be a string. Anything that
// is not a JSON string is treated as absent.
type OptionalString struct {
	Present bool
	Value   string
}

// String returns a present string value.
func String(s string) OptionalString {
	return OptionalString{Present: true, Value: s}
}

func (s *OptionalString) UnmarshalJSON(data []byte) error {
	*s = OptionalString{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '"' {
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	s.Present = true
	s.Value = v
	return nil
}

func (s OptionalString) MarshalJSON() ([]byte, error) {
	if !s.Present {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}
