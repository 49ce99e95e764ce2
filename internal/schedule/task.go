package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/homesim/internal/device"
)

// TimeLayout is the boundary format for task times: minute precision,
// 24-hour clock.
const TimeLayout = "2006-01-02 15:04"

// Repeat is a task's recurrence policy. It is always stored lower-case;
// unrecognised values are kept as given.
type Repeat string

// Recurrence policies.
const (
	RepeatNone    Repeat = "none"
	RepeatDaily   Repeat = "daily"
	RepeatWeekly  Repeat = "weekly"
	RepeatMonthly Repeat = "monthly"
)

// ParseRepeat normalizes a repeat token. An empty token means none.
func ParseRepeat(s string) Repeat {
	r := Repeat(strings.ToLower(strings.TrimSpace(s)))
	if r == "" {
		return RepeatNone
	}
	return r
}

// Known reports whether r is one of the four recurrence policies.
func (r Repeat) Known() bool {
	switch r {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly:
		return true
	}
	return false
}

// Next returns the occurrence after t. ok is false for none and for
// unrecognised policies.
//
// Monthly keeps the day of month, clamped to the length of the target
// month: Jan 31 is followed by Feb 28 (29 in a leap year).
func (r Repeat) Next(t time.Time) (next time.Time, ok bool) {
	switch r {
	case RepeatDaily:
		return t.AddDate(0, 0, 1), true
	case RepeatWeekly:
		return t.AddDate(0, 0, 7), true
	case RepeatMonthly:
		return addMonthClamped(t), true
	}
	return time.Time{}, false
}

func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	month++
	if month > time.December {
		month = time.January
		year++
	}
	// Day 0 of the following month is the last day of this one.
	if last := time.Date(year, month+1, 0, 0, 0, 0, 0, t.Location()).Day(); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// TruncateMinute drops seconds and sub-seconds, keeping the location.
func TruncateMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}

// ParseTime parses a "yyyy-MM-dd HH:mm" timestamp in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t, nil
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// Task is a scheduled device command.
type Task struct {
	// ID is empty until the task is first persisted.
	ID     string
	Device *device.Device
	Action string
	Time   time.Time
	Repeat Repeat

	// Frozen marks a task whose repeat policy was not understood when it
	// last fired. Frozen tasks are never due; Update clears the flag.
	Frozen bool
}

// NewTask builds a task with the time truncated to the minute and the
// repeat policy normalized.
func NewTask(d *device.Device, action string, at time.Time, repeat string) *Task {
	return &Task{
		Device: d,
		Action: strings.TrimSpace(action),
		Time:   TruncateMinute(at),
		Repeat: ParseRepeat(repeat),
	}
}

// DeviceID returns the normalized id of the target device.
func (t *Task) DeviceID() string {
	if t.Device == nil {
		return ""
	}
	return t.Device.ID
}

// Due reports whether the task should fire at now. A task scheduled exactly
// at now is due.
func (t *Task) Due(now time.Time) bool {
	return !t.Frozen && !t.Time.After(now)
}

// Equal reports whether two tasks have the same id, device, action, time
// and repeat policy.
func (t *Task) Equal(o *Task) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.ID == o.ID &&
		t.DeviceID() == o.DeviceID() &&
		t.Action == o.Action &&
		t.Time.Equal(o.Time) &&
		t.Repeat == o.Repeat
}

// Clone returns a copy sharing the device pointer.
func (t *Task) Clone() *Task {
	c := *t
	return &c
}

// View is the display form of a task.
type View struct {
	Index      int    `json:"index"`
	ID         string `json:"id,omitempty"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	Action     string `json:"action"`
	Time       string `json:"time"`
	Repeat     Repeat `json:"repeat"`
	Frozen     bool   `json:"frozen,omitempty"`
}

// View renders the task at list position index.
func (t *Task) View(index int) View {
	v := View{
		Index:    index,
		ID:       t.ID,
		DeviceID: t.DeviceID(),
		Action:   t.Action,
		Time:     FormatTime(t.Time),
		Repeat:   t.Repeat,
		Frozen:   t.Frozen,
	}
	if t.Device != nil {
		v.DeviceName = t.Device.Name
	}
	return v
}
