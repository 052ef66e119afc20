// Command sensor-sim posts synthetic pulse-oximeter readings to the telemetry
// endpoint, for exercising a local deployment without hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"health-telemetry/internal/logger"
)

type ingestResponse struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason"`
	Error   string `json:"error"`
}

type sender struct {
	client *resty.Client
	url    string
}

func newSender(url string) *sender {
	client := resty.New().
		SetTimeout(5*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &sender{client: client, url: url}
}

// send posts p and returns the decoded body. Skipped readings are not errors;
// malformed input and unexpected statuses are.
func (s *sender) send(ctx context.Context, p payload) (ingestResponse, error) {
	var out ingestResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(p).
		SetResult(&out).
		SetError(&out).
		Post(s.url)
	if err != nil {
		return out, fmt.Errorf("failed to post reading: %w", err)
	}
	if resp.IsError() {
		return out, fmt.Errorf("telemetry endpoint returned %d: %s", resp.StatusCode(), out.Error)
	}
	return out, nil
}

func main() {
	url := flag.String("url", "http://localhost:8080/api/telemetry", "telemetry endpoint")
	interval := flag.Duration("interval", 3*time.Second, "time between readings")
	count := flag.Int("count", 0, "readings to send, 0 for no limit")
	device := flag.String("device", "esp32-sim", "device identifier")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	log, err := logger.New(*level, "console", "sensor-sim")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Flush(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen := newGenerator(rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), *device)
	sent := simulate(ctx, newSender(*url), gen, *interval, *count, log)
	log.Info("simulator stopped", zap.Int("sent", sent))
}

// simulate sends readings until ctx is cancelled or count is reached and
// returns how many were accepted or skipped by the server.
func simulate(ctx context.Context, s *sender, gen *generator, interval time.Duration, count int, log *zap.Logger) int {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	delivered := 0
	for i := 0; count == 0 || i < count; i++ {
		p := gen.next(time.Now())
		res, err := s.send(ctx, p)
		switch {
		case err != nil:
			log.Error("reading not delivered", zap.Error(err))
		case res.Skipped:
			delivered++
			log.Warn("reading skipped",
				zap.String("reason", res.Reason),
				zap.Float64("spo2", p.SpO2),
				zap.Float64("heart_rate", p.HeartRate),
			)
		default:
			delivered++
			log.Info("reading accepted",
				zap.Float64("spo2", p.SpO2),
				zap.Float64("heart_rate", p.HeartRate),
				zap.Float64("temp_c", p.TempC),
			)
		}

		if count > 0 && i+1 == count {
			break
		}
		select {
		case <-ctx.Done():
			return delivered
		case <-ticker.C:
		}
	}
	return delivered
}
