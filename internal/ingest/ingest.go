package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"health-telemetry/internal/logger"
	"health-telemetry/internal/metrics"
	"health-telemetry/internal/models"
	"health-telemetry/internal/storage"
	"health-telemetry/internal/validation"
)

// Transports label where a reading came from.
const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
)

// ErrMalformedInput is returned when a payload is not a JSON object.
var ErrMalformedInput = errors.New("malformed input")

type Status string

const (
	StatusAccepted Status = "accepted"
	StatusSkipped  Status = "skipped"
)

// Result is the outcome of a well-formed submission.
type Result struct {
	Status Status
	// Reason is set when Status is StatusSkipped.
	Reason string
	// Entry is set when Status is StatusAccepted.
	Entry models.Entry
}

// Enqueuer receives accepted entries for delivery outside the request path.
type Enqueuer interface {
	Enqueue(e models.Entry) bool
}

// Service is the single writer of the store. Submissions are serialized so
// that arrival order, history order and serverTimestamp order agree.
type Service struct {
	mu        sync.Mutex
	validator *validation.Validator
	store     *storage.Store
	clock     *MonotonicClock
	window    int
	sinks     Enqueuer
	metrics   *metrics.Telemetry
	log       *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.clock = NewMonotonicClock(now) }
}

// WithSinks forwards every accepted entry to q.
func WithSinks(q Enqueuer) Option {
	return func(s *Service) { s.sinks = q }
}

// NewService wires a validator and store. window is the default number of
// recent entries returned by Snapshot.
func NewService(store *storage.Store, v *validation.Validator, window int, m *metrics.Telemetry, log *zap.Logger, opts ...Option) *Service {
	if window < 0 {
		window = 0
	}
	s := &Service{
		validator: v,
		store:     store,
		clock:     NewMonotonicClock(time.Now),
		window:    window,
		metrics:   m,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Decode parses payload into a Reading. Anything other than a JSON object is
// malformed; wrong field types are not, they are judged by the validator.
func Decode(payload []byte) (models.Reading, error) {
	var r models.Reading
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return r, fmt.Errorf("%w: body must be a JSON object", ErrMalformedInput)
	}
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return r, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return r, nil
}

// Submit decodes, validates and stores one payload. A validation rejection
// is a StatusSkipped result, not an error; the only error is
// ErrMalformedInput.
func (s *Service) Submit(ctx context.Context, transport string, payload []byte) (Result, error) {
	start := time.Now()
	defer func() {
		s.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	}()

	log := logger.FromContext(ctx, s.log).With(zap.String("transport", transport))
	s.metrics.ReadingsTotal.WithLabelValues(transport).Inc()

	reading, err := Decode(payload)
	if err != nil {
		s.metrics.MalformedTotal.WithLabelValues(transport).Inc()
		log.Error("failed to decode reading", zap.Error(err))
		return Result{}, err
	}

	entry, err := s.accept(reading)
	if err != nil {
		reason := validation.ReasonMissingField
		var rej *validation.RejectionError
		if errors.As(err, &rej) {
			reason = rej.Reason
		}
		s.metrics.RejectedTotal.WithLabelValues(transport, reason).Inc()
		log.Warn("invalid or out-of-range reading ignored",
			zap.String("reason", reason),
			zap.Error(err),
		)
		return Result{Status: StatusSkipped, Reason: reason}, nil
	}

	s.metrics.AcceptedTotal.WithLabelValues(transport).Inc()
	if s.sinks != nil {
		s.sinks.Enqueue(entry)
	}
	log.Debug("reading accepted",
		zap.String("device", entry.Device),
		zap.Float64("heart_rate", entry.HeartRate),
		zap.Float64("spo2", entry.SpO2),
		zap.Int64("server_ts", entry.ServerTimestamp),
	)
	return Result{Status: StatusAccepted, Entry: entry}, nil
}

// RecordUnreadable counts a payload the transport could not read in full,
// such as an oversized HTTP body, as a malformed reading.
func (s *Service) RecordUnreadable(ctx context.Context, transport string, err error) {
	s.metrics.ReadingsTotal.WithLabelValues(transport).Inc()
	s.metrics.MalformedTotal.WithLabelValues(transport).Inc()
	logger.FromContext(ctx, s.log).Error("failed to read payload",
		zap.String("transport", transport),
		zap.Error(err),
	)
}

// accept stamps, validates and appends as one unit.
func (s *Service) accept(r models.Reading) (models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.validator.Validate(r, s.clock.Now())
	if err != nil {
		return models.Entry{}, err
	}
	s.store.Append(entry)
	s.metrics.HistorySize.Set(float64(s.store.Len()))
	return entry, nil
}

// Snapshot returns the latest entry and the newest window entries. A
// negative window selects the configured default.
func (s *Service) Snapshot(window int) models.Snapshot {
	if window < 0 {
		window = s.window
	}
	return s.store.Snapshot(window)
}

// Window is the configured default window size.
func (s *Service) Window() int { return s.window }
