package device

import (
	"context"
	"time"
)

// Sources recorded in the state history.
const (
	SourceSchedule   = "schedule"
	SourceAutomation = "automation"
	SourceManual     = "manual"
)

// HistoryEntry is one recorded power transition.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	On        bool      `json:"on"`
	Source    string    `json:"source"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRecorder appends device transitions to a local audit trail.
type HistoryRecorder interface {
	RecordTransition(ctx context.Context, e HistoryEntry) error
}

// HistoryReader returns the most recent transitions for a device, newest first.
type HistoryReader interface {
	DeviceHistory(ctx context.Context, deviceID string, limit int) ([]HistoryEntry, error)
}
