package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nerrad567/homesim/internal/device"
	"github.com/nerrad567/homesim/internal/schedule"
)

// LoadTasks returns the stored task list in order.
//
// A task whose device no longer exists keeps running against a generic
// placeholder carrying the stored id and name. Rows with an unparsable time
// or an unknown repeat value are reported and skipped.
func (s *SQLiteStore) LoadTasks(ctx context.Context, devices map[string]*device.Device) ([]*schedule.Task, error) {
	query := `
		SELECT id, device_id, device_name, action, scheduled_at, repeat, frozen
		FROM scheduled_tasks
		ORDER BY position`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	placeholders := make(map[string]*device.Device)
	var tasks []*schedule.Task
	for rows.Next() {
		var id, deviceID, deviceName, action, scheduledAt, repeat string
		var frozen int
		if err := rows.Scan(&id, &deviceID, &deviceName, &action, &scheduledAt, &repeat, &frozen); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}

		at, err := schedule.ParseTime(scheduledAt, s.loc)
		if err != nil {
			s.skipped(ctx, fmt.Sprintf("task %s skipped: %v", id, err), deviceID, "")
			continue
		}
		r := schedule.ParseRepeat(repeat)
		if !r.Known() {
			s.skipped(ctx, fmt.Sprintf("task %s skipped: unknown repeat value %q", id, repeat), deviceID, "")
			continue
		}

		key := device.NormalizeID(deviceID)
		d, ok := devices[key]
		if !ok {
			if d, ok = placeholders[key]; !ok {
				d = device.Placeholder(deviceID, deviceName)
				placeholders[key] = d
				s.logger.Warn("task references unknown device, using placeholder", "device_id", key, "task_id", id)
			}
		}

		tasks = append(tasks, &schedule.Task{
			ID:     id,
			Device: d,
			Action: action,
			Time:   at,
			Repeat: r,
			Frozen: frozen != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}

	s.logger.Debug("tasks loaded", "count", len(tasks))
	return tasks, nil
}

// SaveTasks replaces the stored list with tasks in one transaction. Tasks
// without an id are given a new UUID, written back to the task.
func (s *SQLiteStore) SaveTasks(ctx context.Context, tasks []*schedule.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_tasks`); err != nil {
		return fmt.Errorf("clearing tasks: %w", err)
	}

	query := `
		INSERT INTO scheduled_tasks (position, id, device_id, device_name, action, scheduled_at, repeat, frozen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	for i, t := range tasks {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		var deviceName string
		if t.Device != nil {
			deviceName = t.Device.Name
		}
		_, err := tx.ExecContext(ctx, query,
			i, t.ID, t.DeviceID(), deviceName, t.Action,
			schedule.FormatTime(t.Time.In(s.loc)), string(t.Repeat), boolToInt(t.Frozen),
		)
		if err != nil {
			return fmt.Errorf("saving task %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing tasks: %w", err)
	}
	return nil
}
