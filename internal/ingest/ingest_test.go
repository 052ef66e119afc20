package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"health-telemetry/internal/metrics"
	"health-telemetry/internal/models"
	"health-telemetry/internal/storage"
	"health-telemetry/internal/validation"
)

type fakeQueue struct {
	mu      sync.Mutex
	entries []models.Entry
}

func (q *fakeQueue) Enqueue(e models.Entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
	return true
}

// stepClock advances by one second on every call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestService(t *testing.T, capacity, window int, opts ...Option) (*Service, *storage.Store, *metrics.Telemetry) {
	t.Helper()
	store := storage.NewStore(capacity)
	m := metrics.NewUnregistered()
	svc := NewService(store, validation.NewValidator(validation.DefaultBounds()), window, m, zap.NewNop(), opts...)
	return svc, store, m
}

func submit(t *testing.T, svc *Service, body string) Result {
	t.Helper()
	res, err := svc.Submit(context.Background(), TransportHTTP, []byte(body))
	require.NoError(t, err)
	return res
}

func TestSubmit_ThreeReadingsScenario(t *testing.T) {
	svc, _, m := newTestService(t, 100, 300, WithClock(stepClock(time.UnixMilli(1000))))

	for _, hr := range []int{70, 72, 75} {
		res := submit(t, svc, fmt.Sprintf(`{"spo2":98,"heartRate":%d}`, hr))
		require.Equal(t, StatusAccepted, res.Status)
	}

	snap := svc.Snapshot(-1)
	require.NotNil(t, snap.Latest)
	assert.Equal(t, 75.0, snap.Latest.HeartRate)

	two := svc.Snapshot(2).Recent
	require.Len(t, two, 2)
	assert.Equal(t, 72.0, two[0].HeartRate)
	assert.Equal(t, 75.0, two[1].HeartRate)
	assert.Less(t, two[0].ServerTimestamp, two[1].ServerTimestamp)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.AcceptedTotal.WithLabelValues(TransportHTTP)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.HistorySize))
}

func TestSubmit_RejectedReadingLeavesEmptyStore(t *testing.T) {
	svc, store, m := newTestService(t, 100, 300)

	res := submit(t, svc, `{"spo2":-1,"heartRate":80}`)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, validation.ReasonOutOfRange, res.Reason)

	_, ok := store.Latest()
	assert.False(t, ok)
	assert.Nil(t, svc.Snapshot(-1).Latest)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectedTotal.WithLabelValues(TransportHTTP, validation.ReasonOutOfRange)))
}

func TestSubmit_RejectionDoesNotMutate(t *testing.T) {
	q := &fakeQueue{}
	svc, _, _ := newTestService(t, 100, 300, WithSinks(q))

	submit(t, svc, `{"spo2":97,"heartRate":64}`)
	before := svc.Snapshot(300)

	for _, body := range []string{
		`{"spo2":101,"heartRate":80}`,
		`{"spo2":98,"heartRate":0}`,
		`{"heartRate":80}`,
		`{"spo2":"abc","heartRate":80}`,
	} {
		res := submit(t, svc, body)
		assert.Equal(t, StatusSkipped, res.Status, body)
	}

	assert.Equal(t, before, svc.Snapshot(300))
	assert.Len(t, q.entries, 1)
}

func TestSubmit_CapacityTwoKeepsLastTwo(t *testing.T) {
	svc, store, _ := newTestService(t, 2, 300)

	submit(t, svc, `{"spo2":98,"heartRate":61}`)
	submit(t, svc, `{"spo2":98,"heartRate":62}`)
	submit(t, svc, `{"spo2":98,"heartRate":63}`)

	assert.Equal(t, 2, store.Len())
	recent := svc.Snapshot(-1).Recent
	require.Len(t, recent, 2)
	assert.Equal(t, 62.0, recent[0].HeartRate)
	assert.Equal(t, 63.0, recent[1].HeartRate)
}

func TestSubmit_Malformed(t *testing.T) {
	svc, store, m := newTestService(t, 10, 10)

	for _, body := range []string{``, `not json`, `[1,2]`, `null`, `42`, `"x"`, `{"spo2":`} {
		_, err := svc.Submit(context.Background(), TransportMQTT, []byte(body))
		require.Error(t, err, body)
		assert.True(t, errors.Is(err, ErrMalformedInput), body)
	}

	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 7.0, testutil.ToFloat64(m.MalformedTotal.WithLabelValues(TransportMQTT)))
}

func TestRecordUnreadable(t *testing.T) {
	svc, store, m := newTestService(t, 10, 10)

	svc.RecordUnreadable(context.Background(), TransportHTTP, errors.New("http: request body too large"))

	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReadingsTotal.WithLabelValues(TransportHTTP)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MalformedTotal.WithLabelValues(TransportHTTP)))
}

func TestSubmit_NonFiniteValuesAreMissing(t *testing.T) {
	svc, store, _ := newTestService(t, 10, 10)

	for _, body := range []string{
		`{"spo2":1e400,"heartRate":70}`,
		`{"spo2":"NaN","heartRate":70}`,
		`{"spo2":98,"heartRate":"-Inf"}`,
	} {
		res := submit(t, svc, body)
		assert.Equal(t, StatusSkipped, res.Status, body)
		assert.Equal(t, validation.ReasonMissingField, res.Reason, body)
	}
	assert.Equal(t, 0, store.Len())
}

func TestSubmit_OverflowingTimestampUsesReceiptTime(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	svc, _, _ := newTestService(t, 10, 10, WithClock(stepClock(start)))

	res := submit(t, svc, `{"spo2":98,"heartRate":70,"timestamp":1e30}`)
	require.Equal(t, StatusAccepted, res.Status)
	assert.Equal(t, res.Entry.ServerTimestamp, res.Entry.DeviceTimestamp)
	assert.Positive(t, res.Entry.DeviceTimestamp)
}

func TestSubmit_NumericStringsAreCoerced(t *testing.T) {
	svc, _, _ := newTestService(t, 10, 10)

	res := submit(t, svc, `{"spo2":"97.5","heartRate":"71","tempC":"36.4","tempF":"oops"}`)
	require.Equal(t, StatusAccepted, res.Status)
	assert.Equal(t, 97.5, res.Entry.SpO2)
	assert.Equal(t, 71.0, res.Entry.HeartRate)
	require.NotNil(t, res.Entry.TempC)
	assert.Equal(t, 36.4, *res.Entry.TempC)
	assert.Nil(t, res.Entry.TempF)
}

func TestSubmit_ForwardsAcceptedToSinks(t *testing.T) {
	q := &fakeQueue{}
	svc, _, _ := newTestService(t, 10, 10, WithSinks(q))

	res := submit(t, svc, `{"spo2":98,"heartRate":72,"device":"bedside"}`)
	require.Equal(t, StatusAccepted, res.Status)
	require.Len(t, q.entries, 1)
	assert.Equal(t, "bedside", q.entries[0].Device)
}

func TestSubmit_ServerTimestampNeverDecreases(t *testing.T) {
	// Wall clock that jumps backwards halfway through.
	times := []int64{5000, 6000, 3000, 3500, 7000}
	var i int
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		ts := times[i%len(times)]
		i++
		return time.UnixMilli(ts)
	}
	svc, _, _ := newTestService(t, 10, 10, WithClock(clock))

	for range times {
		submit(t, svc, `{"spo2":98,"heartRate":72}`)
	}

	recent := svc.Snapshot(10).Recent
	require.Len(t, recent, len(times))
	for j := 1; j < len(recent); j++ {
		assert.GreaterOrEqual(t, recent[j].ServerTimestamp, recent[j-1].ServerTimestamp)
	}
	assert.Equal(t, int64(7000), recent[len(recent)-1].ServerTimestamp)
}

func TestSubmit_ConcurrentWritersKeepOrder(t *testing.T) {
	svc, store, _ := newTestService(t, 1000, 1000)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = svc.Submit(context.Background(), TransportHTTP, []byte(`{"spo2":98,"heartRate":72}`))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, store.Len())
	recent := svc.Snapshot(1000).Recent
	for j := 1; j < len(recent); j++ {
		require.GreaterOrEqual(t, recent[j].ServerTimestamp, recent[j-1].ServerTimestamp)
	}
}

func TestSnapshot_DefaultWindow(t *testing.T) {
	svc, _, _ := newTestService(t, 10, 2)
	for i := 0; i < 5; i++ {
		submit(t, svc, `{"spo2":98,"heartRate":72}`)
	}

	assert.Equal(t, 2, svc.Window())
	assert.Len(t, svc.Snapshot(-1).Recent, 2)
	assert.Len(t, svc.Snapshot(0).Recent, 0)
	assert.Len(t, svc.Snapshot(100).Recent, 5)
}

func TestMonotonicClock(t *testing.T) {
	ts := []int64{10, 20, 15, 30}
	i := 0
	c := NewMonotonicClock(func() time.Time {
		v := ts[i]
		i++
		return time.UnixMilli(v)
	})

	var got []int64
	for range ts {
		got = append(got, c.Now().UnixMilli())
	}
	assert.Equal(t, []int64{10, 20, 20, 30}, got)
}
