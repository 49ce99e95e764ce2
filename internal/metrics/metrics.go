// Package metrics exposes engine measurements as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "homesim"

// Metrics implements the measurement hooks of the scheduler, the
// automation engine and the async notifier.
type Metrics struct {
	tasksExecuted    *prometheus.CounterVec
	taskFailures     *prometheus.CounterVec
	tickDuration     prometheus.Histogram
	tasksDue         prometheus.Gauge
	deviceState      *prometheus.GaugeVec
	sensorValue      *prometheus.GaugeVec
	sensorReadings   *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	notificationDrop prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduled_tasks_executed_total",
				Help:      "Scheduled tasks that ran, by repeat rule.",
			},
			[]string{"repeat"},
		),
		taskFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduled_task_failures_total",
				Help:      "Scheduled tasks that could not be applied, by reason.",
			},
			[]string{"reason"},
		),
		tickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scheduler_tick_duration_seconds",
				Help:      "Time spent executing one scheduler tick.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
		),
		tasksDue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scheduler_tasks_due",
				Help:      "Tasks found due in the most recent tick.",
			},
		),
		deviceState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "device_on",
				Help:      "Current power state of a device (1 = on).",
			},
			[]string{"device_id"},
		),
		sensorValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sensor_value",
				Help:      "Most recent reading of a sensor.",
			},
			[]string{"sensor_id"},
		),
		sensorReadings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sensor_readings_total",
				Help:      "Readings accepted per sensor.",
			},
			[]string{"sensor_id"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "automation_transitions_total",
				Help:      "Devices switched by sensor automation, by direction.",
			},
			[]string{"direction"},
		),
		notificationDrop: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_dropped_total",
				Help:      "Events dropped because a notification queue was full.",
			},
		),
	}
	reg.MustRegister(
		m.tasksExecuted,
		m.taskFailures,
		m.tickDuration,
		m.tasksDue,
		m.deviceState,
		m.sensorValue,
		m.sensorReadings,
		m.transitions,
		m.notificationDrop,
	)
	return m
}

// TaskExecuted counts a scheduled task that ran.
func (m *Metrics) TaskExecuted(repeat string) {
	m.tasksExecuted.WithLabelValues(repeat).Inc()
}

// TaskFailed counts a task that failed to apply.
func (m *Metrics) TaskFailed(reason string) {
	m.taskFailures.WithLabelValues(reason).Inc()
}

// TickCompleted observes one scheduler sweep.
func (m *Metrics) TickCompleted(d time.Duration, due int) {
	m.tickDuration.Observe(d.Seconds())
	m.tasksDue.Set(float64(due))
}

// DeviceState records the power state of a device.
func (m *Metrics) DeviceState(deviceID string, on bool) {
	v := 0.0
	if on {
		v = 1
	}
	m.deviceState.WithLabelValues(deviceID).Set(v)
}

// SensorReading records an accepted reading.
func (m *Metrics) SensorReading(sensorID string, value float64) {
	m.sensorValue.WithLabelValues(sensorID).Set(value)
	m.sensorReadings.WithLabelValues(sensorID).Inc()
}

// AutomationTransition counts an automation switch ("on" or "off").
func (m *Metrics) AutomationTransition(direction string) {
	m.transitions.WithLabelValues(direction).Inc()
}

// NotificationDropped counts an event discarded by a full queue.
func (m *Metrics) NotificationDropped() {
	m.notificationDrop.Inc()
}
