package main

import (
	"math"
	"math/rand/v2"
	"time"
)

// payload mirrors what the ESP32 firmware posts.
type payload struct {
	SpO2      float64 `json:"spo2"`
	HeartRate float64 `json:"heartRate"`
	TempC     float64 `json:"tempC"`
	TempF     float64 `json:"tempF"`
	Device    string  `json:"device"`
	Timestamp int64   `json:"timestamp"`
}

// generator produces plausible resting vitals, with roughly one reading in
// glitchEvery out of range the way a loose finger clip reports.
type generator struct {
	rnd         *rand.Rand
	device      string
	glitchEvery int
}

func newGenerator(rnd *rand.Rand, device string) *generator {
	return &generator{rnd: rnd, device: device, glitchEvery: 20}
}

func (g *generator) next(now time.Time) payload {
	tempC := round1(36 + g.rnd.Float64()*1.5)
	p := payload{
		SpO2:      float64(94 + g.rnd.IntN(7)),
		HeartRate: float64(60 + g.rnd.IntN(41)),
		TempC:     tempC,
		TempF:     round1(tempC*9/5 + 32),
		Device:    g.device,
		Timestamp: now.UnixMilli(),
	}
	if g.glitchEvery > 0 && g.rnd.IntN(g.glitchEvery) == 0 {
		switch g.rnd.IntN(3) {
		case 0:
			p.SpO2 = 0
		case 1:
			p.HeartRate = 0
		default:
			p.HeartRate = 255
		}
	}
	return p
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
