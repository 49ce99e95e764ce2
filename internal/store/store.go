package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/homesim/internal/device"
	"github.com/nerrad567/homesim/internal/infrastructure/database"
	"github.com/nerrad567/homesim/internal/notify"
)

// Logger defines the logging interface used by the store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SQLiteStore implements the persistence gateway over a migrated database.
type SQLiteStore struct {
	db       *database.DB
	loc      *time.Location
	notifier notify.Notifier
	logger   Logger
}

// NewSQLiteStore creates a store. loc is the zone task times are written
// and read in; nil means UTC.
func NewSQLiteStore(db *database.DB, loc *time.Location) *SQLiteStore {
	if loc == nil {
		loc = time.UTC
	}
	return &SQLiteStore{
		db:       db,
		loc:      loc,
		notifier: notify.Nop,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *SQLiteStore) SetLogger(logger Logger) { s.logger = logger }

// SetNotifier sets where skipped records are reported.
func (s *SQLiteStore) SetNotifier(n notify.Notifier) { s.notifier = n }

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// execer is the write half shared by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// LoadDevices returns every stored device keyed by id.
func (s *SQLiteStore) LoadDevices(ctx context.Context) (map[string]*device.Device, error) {
	query := `
		SELECT id, name, type, is_on, automation_enabled, source_sensor_id,
			turn_on_below, turn_off_above, set_point, level
		FROM devices
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := make(map[string]*device.Device)
	for rows.Next() {
		st, skip, err := s.scanDevice(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		if skip {
			continue
		}
		d := device.FromState(st)
		devices[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	s.logger.Debug("devices loaded", "count", len(devices))
	return devices, nil
}

// scanDevice reads one device row. skip is true when the row is malformed
// and has been reported.
func (s *SQLiteStore) scanDevice(ctx context.Context, row rowScanner) (device.State, bool, error) {
	var st device.State
	var typ string
	var isOn, automation int
	var sourceSensor sql.NullString
	var onBelow, offAbove, setPoint sql.NullFloat64

	err := row.Scan(&st.ID, &st.Name, &typ, &isOn, &automation, &sourceSensor,
		&onBelow, &offAbove, &setPoint, &st.Level)
	if err != nil {
		return st, false, err
	}

	t, err := device.ParseType(typ)
	if err != nil {
		s.skipped(ctx, fmt.Sprintf("device %q skipped: unknown type %q", st.ID, typ), st.ID, "")
		return st, true, nil
	}
	st.Type = t
	st.On = isOn != 0
	st.AutomationEnabled = automation != 0
	st.SourceSensorID = sourceSensor.String
	st.SetPoint = setPoint.Float64

	if onBelow.Valid && offAbove.Valid {
		h := device.Hysteresis{TurnOnBelow: onBelow.Float64, TurnOffAbove: offAbove.Float64}
		if err := h.Validate(); err != nil {
			// The device still loads, without automation.
			s.skipped(ctx, fmt.Sprintf("automation for device %q ignored: thresholds (%g, %g) are invalid",
				st.ID, h.TurnOnBelow, h.TurnOffAbove), st.ID, st.SourceSensorID)
			st.AutomationEnabled = false
			st.SourceSensorID = ""
		} else {
			st.Thresholds = &h
		}
	}
	return st, false, nil
}

// SaveDevices writes every device in one transaction.
func (s *SQLiteStore) SaveDevices(ctx context.Context, devices map[string]*device.Device) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, d := range devices {
		if err := upsertDevice(ctx, tx, d.Snapshot()); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing devices: %w", err)
	}
	return nil
}

// SaveDevice writes one device.
func (s *SQLiteStore) SaveDevice(ctx context.Context, d *device.Device) error {
	return upsertDevice(ctx, s.db, d.Snapshot())
}

func upsertDevice(ctx context.Context, ex execer, st device.State) error {
	query := `
		INSERT INTO devices (
			id, name, type, is_on, automation_enabled, source_sensor_id,
			turn_on_below, turn_off_above, set_point, level, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			is_on = excluded.is_on,
			automation_enabled = excluded.automation_enabled,
			source_sensor_id = excluded.source_sensor_id,
			turn_on_below = excluded.turn_on_below,
			turn_off_above = excluded.turn_off_above,
			set_point = excluded.set_point,
			level = excluded.level,
			updated_at = excluded.updated_at`

	var onBelow, offAbove sql.NullFloat64
	if st.Thresholds != nil {
		onBelow = sql.NullFloat64{Float64: st.Thresholds.TurnOnBelow, Valid: true}
		offAbove = sql.NullFloat64{Float64: st.Thresholds.TurnOffAbove, Valid: true}
	}
	now := formatTimestamp(time.Now())

	_, err := ex.ExecContext(ctx, query,
		st.ID, st.Name, string(st.Type), boolToInt(st.On), boolToInt(st.AutomationEnabled),
		nullString(st.SourceSensorID), onBelow, offAbove, st.SetPoint, st.Level, now, now,
	)
	if err != nil {
		return fmt.Errorf("saving device %s: %w", st.ID, err)
	}
	return nil
}

// DeleteDevice removes a device and its automation link.
func (s *SQLiteStore) DeleteDevice(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return device.ErrDeviceNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM automation_links WHERE device_id = ?`, id); err != nil {
		return fmt.Errorf("deleting automation link: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) skipped(ctx context.Context, msg, deviceID, sensorID string) {
	s.logger.Warn(msg, "device_id", deviceID, "sensor_id", sensorID)
	s.notifier.Notify(ctx, notify.Event{
		Kind:     notify.EventRecordSkipped,
		Level:    notify.LevelWarn,
		Message:  msg,
		DeviceID: deviceID,
		SensorID: sensorID,
		At:       time.Now(),
	})
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
