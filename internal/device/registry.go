package device

import (
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
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

// Registry owns the canonical Device instances, keyed by normalized id.
//
// Unlike a cache it hands out the canonical pointers themselves: the
// scheduler and the automation engine must act on the same object.
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
	logger  Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register adds d, replacing any device with the same id.
func (r *Registry) Register(d *Device) {
	d.ID = NormalizeID(d.ID)

	r.mu.Lock()
	_, replaced := r.devices[d.ID]
	r.devices[d.ID] = d
	r.mu.Unlock()

	r.logger.Debug("device registered", "device_id", d.ID, "replaced", replaced)
}

// Load replaces the registry contents with devices, as returned by the store.
func (r *Registry) Load(devices map[string]*Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = make(map[string]*Device, len(devices))
	for _, d := range devices {
		d.ID = NormalizeID(d.ID)
		r.devices[d.ID] = d
	}
	r.logger.Info("device registry loaded", "count", len(r.devices))
}

// Get returns the canonical device for id (normalized before lookup).
func (r *Registry) Get(id string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[NormalizeID(id)]
	return d, ok
}

// IsCanonical reports whether d is the registered instance for its id.
func (r *Registry) IsCanonical(d *Device) bool {
	if d == nil {
		return false
	}
	got, ok := r.Get(d.ID)
	return ok && got == d
}

// Remove deletes the device with the given id.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id = NormalizeID(id)
	if _, ok := r.devices[id]; !ok {
		return false
	}
	delete(r.devices, id)
	return true
}

// List returns all devices sorted by id.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Map returns a shallow copy of the id→device map for bulk saving.
func (r *Registry) Map() map[string]*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Device, len(r.devices))
	for id, d := range r.devices {
		out[id] = d
	}
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
