package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"health-telemetry/internal/models"
)

// Archive is a write-only log of accepted entries kept outside the process.
// The in-memory Store is never rebuilt from it.
type Archive interface {
	Save(ctx context.Context, e models.Entry) error
	Close() error
}

const insertEntrySQL = `
	INSERT INTO telemetry_entries (spo2, heart_rate, temp_c, temp_f, device,
	                               device_ts, server_ts, valid_hr, valid_spo2)
	VALUES (%s)`

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func entryArgs(e models.Entry) []interface{} {
	return []interface{}{
		e.SpO2, e.HeartRate, nullableFloat(e.TempC), nullableFloat(e.TempF), e.Device,
		e.DeviceTimestamp, e.ServerTimestamp, e.ValidHR, e.ValidSpO2,
	}
}

// Archive drivers accepted by OpenArchive.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// OpenArchive opens the archive selected by driver. An empty driver means
// archiving is disabled and returns a nil Archive.
func OpenArchive(ctx context.Context, driver, dsn string, log *zap.Logger) (Archive, error) {
	switch driver {
	case "":
		return nil, nil
	case DriverPostgres:
		a, err := OpenPostgres(ctx, dsn, log)
		if err != nil {
			return nil, err
		}
		return a, nil
	case DriverSQLite:
		a, err := OpenSQLite(ctx, dsn, log)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", driver)
	}
}
