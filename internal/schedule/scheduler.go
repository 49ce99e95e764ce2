package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/homesim/internal/clock"
	"github.com/nerrad567/homesim/internal/device"
	"github.com/nerrad567/homesim/internal/notify"
)

// Logger defines the logging interface used by the Scheduler.
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

// TaskStore persists the whole task list.
type TaskStore interface {
	SaveTasks(ctx context.Context, tasks []*Task) error
}

// DeviceStore persists a single device after a scheduled action changed it.
type DeviceStore interface {
	SaveDevice(ctx context.Context, d *device.Device) error
}

// Metrics receives scheduler measurements.
type Metrics interface {
	TaskExecuted(repeat string)
	TaskFailed(reason string)
	TickCompleted(d time.Duration, due int)
	DeviceState(deviceID string, on bool)
}

type noopMetrics struct{}

func (noopMetrics) TaskExecuted(string)              {}
func (noopMetrics) TaskFailed(string)                {}
func (noopMetrics) TickCompleted(time.Duration, int) {}
func (noopMetrics) DeviceState(string, bool)         {}

// Failure reasons reported to Metrics.
const (
	reasonInvalidAction     = "invalid_action"
	reasonUnsupportedAction = "unsupported_action"
	reasonNoDevice          = "no_device"
)

// TickResult summarises one sweep.
type TickResult struct {
	Due         int
	Executed    int
	Failed      int
	Rescheduled int
	Removed     int
	Frozen      int
}

// Scheduler owns the ordered list of scheduled tasks and executes the due
// ones on every tick.
//
// One mutex guards the task list for the whole of every public operation,
// including a tick, so a sweep and a concurrent Schedule or Remove cannot
// lose each other's updates. All public methods are thread-safe.
type Scheduler struct {
	mu    sync.Mutex
	tasks []*Task

	registry *device.Registry
	store    TaskStore
	clock    clock.Clock

	devices        DeviceStore
	history        device.HistoryRecorder
	notifier       notify.Notifier
	metrics        Metrics
	logger         Logger
	conflictWindow time.Duration

	loopMu sync.Mutex
	cron   *cron.Cron
}

// NewScheduler creates a scheduler over registry. store receives the full
// task list after every change; clk supplies "now" for the loop and for the
// conflict window.
func NewScheduler(registry *device.Registry, store TaskStore, clk clock.Clock) *Scheduler {
	return &Scheduler{
		registry: registry,
		store:    store,
		clock:    clk,
		notifier: notify.Nop,
		metrics:  noopMetrics{},
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) { s.logger = logger }

// SetNotifier sets where task and device events are reported.
func (s *Scheduler) SetNotifier(n notify.Notifier) { s.notifier = n }

// SetMetrics sets the metrics sink.
func (s *Scheduler) SetMetrics(m Metrics) { s.metrics = m }

// SetDeviceStore enables saving devices changed by scheduled actions.
func (s *Scheduler) SetDeviceStore(ds DeviceStore) { s.devices = ds }

// SetHistory enables recording power transitions caused by scheduled actions.
func (s *Scheduler) SetHistory(h device.HistoryRecorder) { s.history = h }

// SetConflictWindow limits RemoveConflicting to tasks due no later than
// now+window. Zero (the default) applies no limit.
func (s *Scheduler) SetConflictWindow(window time.Duration) { s.conflictWindow = window }

// Load replaces the task list with tasks restored from the store.
// Nothing is saved.
func (s *Scheduler) Load(tasks []*Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append([]*Task(nil), tasks...)
	s.logger.Info("tasks loaded", "count", len(s.tasks))
}

// Register adds or replaces d in the device registry.
func (s *Scheduler) Register(d *device.Device) {
	s.registry.Register(d)
}

// Schedule appends a task for d and saves the task list. The action is not
// checked against the device's capabilities until the task fires.
//
// A nil device is reported as not found and yields nil.
func (s *Scheduler) Schedule(ctx context.Context, d *device.Device, action string, at time.Time, repeat string) *Task {
	t, _ := s.schedule(ctx, d, action, at, repeat)
	return t
}

// ScheduleByID looks the device up in the registry and schedules a task
// for it. The view carries the list position the task was appended at.
// An unknown id is reported and returned as ErrDeviceNotFound.
func (s *Scheduler) ScheduleByID(ctx context.Context, deviceID, action string, at time.Time, repeat string) (View, error) {
	d, ok := s.registry.Get(deviceID)
	if !ok {
		s.report(ctx, notify.EventNotFound, notify.LevelWarn,
			fmt.Sprintf("cannot schedule task: device %q not found", deviceID), device.NormalizeID(deviceID), "")
		return View{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	t, index := s.schedule(ctx, d, action, at, repeat)
	return t.View(index), nil
}

// schedule returns a copy of the new task and its index, both taken under
// the lock. d is never written: registered devices already carry a
// normalized id.
func (s *Scheduler) schedule(ctx context.Context, d *device.Device, action string, at time.Time, repeat string) (*Task, int) {
	if d == nil {
		s.report(ctx, notify.EventNotFound, notify.LevelWarn, "cannot schedule task for unknown device", "", "")
		return nil, -1
	}

	t := NewTask(d, action, at, repeat)

	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	index := len(s.tasks) - 1
	s.saveLocked(ctx)
	out := t.Clone()
	s.mu.Unlock()

	deviceID := device.NormalizeID(out.DeviceID())
	s.logger.Info("task scheduled",
		"device_id", deviceID, "action", out.Action, "time", FormatTime(out.Time), "repeat", out.Repeat, "index", index)
	s.notifier.Notify(ctx, notify.Event{
		Kind:     notify.EventTaskScheduled,
		Level:    notify.LevelInfo,
		Message:  fmt.Sprintf("%s scheduled for %s at %s (%s)", out.Action, d.Name, FormatTime(out.Time), out.Repeat),
		DeviceID: deviceID,
		TaskID:   out.ID,
		Action:   out.Action,
		At:       s.clock.Now(),
	})
	return out, index
}

// Update replaces the time and repeat policy of the task at index and
// clears its frozen flag. An out-of-range index is reported, not returned
// as an error; the result is false.
func (s *Scheduler) Update(ctx context.Context, index int, at time.Time, repeat string) bool {
	s.mu.Lock()
	if index < 0 || index >= len(s.tasks) {
		n := len(s.tasks)
		s.mu.Unlock()
		s.report(ctx, notify.EventNotFound, notify.LevelWarn,
			fmt.Sprintf("cannot update task %d: index out of range (%d tasks)", index, n), "", "")
		return false
	}

	t := s.tasks[index]
	t.Time = TruncateMinute(at)
	t.Repeat = ParseRepeat(repeat)
	t.Frozen = false
	s.saveLocked(ctx)
	view := t.View(index)
	s.mu.Unlock()

	s.notifier.Notify(ctx, notify.Event{
		Kind:     notify.EventTaskUpdated,
		Level:    notify.LevelInfo,
		Message:  fmt.Sprintf("task %d now runs at %s (%s)", index, view.Time, view.Repeat),
		DeviceID: view.DeviceID,
		TaskID:   view.ID,
		Action:   view.Action,
		At:       s.clock.Now(),
	})
	return true
}

// Remove deletes the task at index. An out-of-range index is reported and
// the result is false.
func (s *Scheduler) Remove(ctx context.Context, index int) bool {
	s.mu.Lock()
	if index < 0 || index >= len(s.tasks) {
		n := len(s.tasks)
		s.mu.Unlock()
		s.report(ctx, notify.EventNotFound, notify.LevelWarn,
			fmt.Sprintf("cannot remove task %d: index out of range (%d tasks)", index, n), "", "")
		return false
	}

	t := s.tasks[index]
	s.tasks = append(s.tasks[:index], s.tasks[index+1:]...)
	s.saveLocked(ctx)
	s.mu.Unlock()

	s.notifyRemoved(ctx, t, "task removed")
	return true
}

// RemoveConflicting deletes every task for deviceID whose action differs,
// ignoring case, from action. It returns how many tasks were removed.
//
// With a conflict window set, only tasks due no later than now+window are
// considered.
func (s *Scheduler) RemoveConflicting(ctx context.Context, deviceID, action string) int {
	deviceID = device.NormalizeID(deviceID)
	action = strings.TrimSpace(action)

	var horizon time.Time
	if s.conflictWindow > 0 {
		horizon = s.clock.Now().Add(s.conflictWindow)
	}

	s.mu.Lock()
	var removed []*Task
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		conflicting := t.DeviceID() == deviceID &&
			!strings.EqualFold(t.Action, action) &&
			(horizon.IsZero() || !t.Time.After(horizon))
		if conflicting {
			removed = append(removed, t)
			continue
		}
		kept = append(kept, t)
	}
	// Clear the tail so removed tasks are not kept alive by the backing array.
	for i := len(kept); i < len(s.tasks); i++ {
		s.tasks[i] = nil
	}
	s.tasks = kept
	if len(removed) > 0 {
		s.saveLocked(ctx)
	}
	s.mu.Unlock()

	for _, t := range removed {
		s.notifyRemoved(ctx, t, fmt.Sprintf("task %s cancelled by conflicting %s", t.Action, action))
	}
	if len(removed) > 0 {
		s.logger.Info("conflicting tasks removed", "device_id", deviceID, "action", action, "count", len(removed))
	}
	return len(removed)
}

// Tick executes every task due at now, in list order, then saves the task
// list once.
//
// Due tasks are selected before any of them runs, so rescheduling or
// removing a task during the sweep cannot skip or repeat another. A failing
// task is reported and the sweep continues.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) TickResult {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Task
	for _, t := range s.tasks {
		if t.Due(now) {
			due = append(due, t)
		}
	}

	res := TickResult{Due: len(due)}
	if len(due) == 0 {
		s.metrics.TickCompleted(time.Since(start), 0)
		return res
	}

	for _, t := range due {
		if s.execute(ctx, t, now) {
			res.Executed++
		} else {
			res.Failed++
		}

		next, ok := t.Repeat.Next(t.Time)
		switch {
		case ok:
			t.Time = next
			res.Rescheduled++
		case t.Repeat == RepeatNone:
			s.removeLocked(t)
			res.Removed++
		default:
			t.Frozen = true
			res.Frozen++
			s.logger.Warn("unknown repeat value, task frozen",
				"device_id", t.DeviceID(), "action", t.Action, "repeat", t.Repeat)
			s.notifier.Notify(ctx, notify.Event{
				Kind:     notify.EventUnknownRepeat,
				Level:    notify.LevelWarn,
				Message:  fmt.Sprintf("unknown repeat value %q: task for %s will not run again until edited", t.Repeat, t.DeviceID()),
				DeviceID: t.DeviceID(),
				TaskID:   t.ID,
				Action:   t.Action,
				At:       now,
			})
		}
	}

	s.saveLocked(ctx)
	s.metrics.TickCompleted(time.Since(start), len(due))
	s.logger.Debug("tick complete",
		"due", res.Due, "executed", res.Executed, "failed", res.Failed,
		"rescheduled", res.Rescheduled, "removed", res.Removed, "frozen", res.Frozen)
	return res
}

// execute runs a task's action on its device and reports the outcome.
// It returns false when the action could not be applied.
func (s *Scheduler) execute(ctx context.Context, t *Task, now time.Time) bool {
	d := t.Device
	if d == nil {
		s.metrics.TaskFailed(reasonNoDevice)
		s.notifier.Notify(ctx, notify.Event{
			Kind:    notify.EventTaskFailed,
			Level:   notify.LevelError,
			Message: "task has no device",
			TaskID:  t.ID,
			Action:  t.Action,
			At:      now,
		})
		return false
	}

	action, out, err := d.Execute(t.Action)
	if err != nil {
		reason := reasonInvalidAction
		if errors.Is(err, device.ErrUnsupportedAction) {
			reason = reasonUnsupportedAction
		}
		s.metrics.TaskFailed(reason)
		s.logger.Warn("scheduled action failed", "device_id", d.ID, "action", t.Action, "error", err)
		s.notifier.Notify(ctx, notify.Event{
			Kind:     notify.EventTaskFailed,
			Level:    notify.LevelError,
			Message:  fmt.Sprintf("%s on %s failed: %v", t.Action, d.Name, err),
			DeviceID: d.ID,
			TaskID:   t.ID,
			Action:   t.Action,
			At:       now,
		}.WithOn(out.On))
		return false
	}

	s.metrics.TaskExecuted(string(t.Repeat))
	s.notifier.Notify(ctx, notify.Event{
		Kind:     notify.EventTaskExecuted,
		Level:    notify.LevelInfo,
		Message:  fmt.Sprintf("%s executed on %s", action, d.Name),
		DeviceID: d.ID,
		TaskID:   t.ID,
		Action:   action.String(),
		Source:   device.SourceSchedule,
		At:       now,
	}.WithOn(out.On))

	if out.Changed {
		s.deviceChanged(ctx, d, action, out, now)
	}
	return true
}

func (s *Scheduler) deviceChanged(ctx context.Context, d *device.Device, action device.Action, out device.Outcome, now time.Time) {
	s.metrics.DeviceState(d.ID, out.On)
	s.notifier.Notify(ctx, notify.Event{
		Kind:     notify.EventDeviceChanged,
		Level:    notify.LevelInfo,
		Message:  fmt.Sprintf("%s is now %s", d.Name, onOff(out.On)),
		DeviceID: d.ID,
		Action:   action.String(),
		Source:   device.SourceSchedule,
		At:       now,
	}.WithOn(out.On))

	if s.devices != nil {
		if err := s.devices.SaveDevice(ctx, d); err != nil {
			s.persistFailed(ctx, "saving device", d.ID, err)
		}
	}
	if s.history != nil {
		entry := device.HistoryEntry{
			DeviceID:  d.ID,
			On:        out.On,
			Source:    device.SourceSchedule,
			Detail:    action.String(),
			CreatedAt: now,
		}
		if err := s.history.RecordTransition(ctx, entry); err != nil {
			s.logger.Warn("recording device history", "device_id", d.ID, "error", err)
		}
	}
}

// Tasks returns copies of all tasks in list order.
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = *t
	}
	return out
}

// Views returns the display form of all tasks in list order.
func (s *Scheduler) Views() []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]View, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.View(i)
	}
	return out
}

// Len returns the number of tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Save persists the current task list.
func (s *Scheduler) Save(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked(ctx)
}

func (s *Scheduler) removeLocked(target *Task) {
	for i, t := range s.tasks {
		if t == target {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

// saveLocked writes the whole list. Failures are reported, not returned:
// the in-memory list stays authoritative until the next save succeeds.
func (s *Scheduler) saveLocked(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveTasks(ctx, s.tasks); err != nil {
		s.persistFailed(ctx, "saving tasks", "", err)
	}
}

func (s *Scheduler) persistFailed(ctx context.Context, what, deviceID string, err error) {
	s.logger.Error(what+" failed", "device_id", deviceID, "error", err)
	s.notifier.Notify(ctx, notify.Event{
		Kind:     notify.EventPersistFailed,
		Level:    notify.LevelError,
		Message:  fmt.Sprintf("%s: %v", what, err),
		DeviceID: deviceID,
		At:       s.clock.Now(),
	})
}

func (s *Scheduler) notifyRemoved(ctx context.Context, t *Task, msg string) {
	s.notifier.Notify(ctx, notify.Event{
		Kind:     notify.EventTaskRemoved,
		Level:    notify.LevelInfo,
		Message:  msg,
		DeviceID: t.DeviceID(),
		TaskID:   t.ID,
		Action:   t.Action,
		At:       s.clock.Now(),
	})
}

func (s *Scheduler) report(ctx context.Context, kind notify.Kind, level notify.Level, msg, deviceID, taskID string) {
	s.logger.Warn(msg, "device_id", deviceID)
	s.notifier.Notify(ctx, notify.Event{
		Kind:     kind,
		Level:    level,
		Message:  msg,
		DeviceID: deviceID,
		TaskID:   taskID,
		At:       s.clock.Now(),
	})
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
