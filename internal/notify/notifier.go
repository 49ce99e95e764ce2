package notify

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Logger defines the logging interface used by the sinks in this package.
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

// Multi fans every event out to each notifier in order.
type Multi []Notifier

// Notify delivers e to every notifier.
func (m Multi) Notify(ctx context.Context, e Event) {
	for _, n := range m {
		n.Notify(ctx, e)
	}
}

// Filter passes only events whose kind is listed to the wrapped notifier.
func Filter(n Notifier, kinds ...Kind) Notifier {
	allowed := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		allowed[k] = struct{}{}
	}
	return Func(func(ctx context.Context, e Event) {
		if _, ok := allowed[e.Kind]; ok {
			n.Notify(ctx, e)
		}
	})
}

// Except passes every event except those whose kind is listed.
func Except(n Notifier, kinds ...Kind) Notifier {
	blocked := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		blocked[k] = struct{}{}
	}
	return Func(func(ctx context.Context, e Event) {
		if _, ok := blocked[e.Kind]; !ok {
			n.Notify(ctx, e)
		}
	})
}

// LogNotifier writes every event to a structured logger.
type LogNotifier struct {
	Logger Logger
}

// Notify logs e at the level it carries.
func (l LogNotifier) Notify(_ context.Context, e Event) {
	args := []any{"kind", e.Kind}
	if e.DeviceID != "" {
		args = append(args, "device_id", e.DeviceID)
	}
	if e.SensorID != "" {
		args = append(args, "sensor_id", e.SensorID)
	}
	if e.TaskID != "" {
		args = append(args, "task_id", e.TaskID)
	}
	if e.Action != "" {
		args = append(args, "action", e.Action)
	}
	if e.On != nil {
		args = append(args, "on", *e.On)
	}
	if e.Value != nil {
		args = append(args, "value", *e.Value)
	}

	switch e.Level {
	case LevelError:
		l.Logger.Error(e.Message, args...)
	case LevelWarn:
		l.Logger.Warn(e.Message, args...)
	default:
		l.Logger.Info(e.Message, args...)
	}
}

// Async decouples a slow sink (network brokers) from the caller with a
// bounded queue drained by one goroutine. When the queue is full the event
// is dropped and counted.
type Async struct {
	next    Notifier
	queue   chan Event
	logger  Logger
	dropped atomic.Uint64
	done    chan struct{}
	once    sync.Once
	onDrop  func()
}

// NewAsync starts the delivery goroutine. Call Close to drain and stop it.
func NewAsync(next Notifier, size int) *Async {
	if size <= 0 {
		size = 1
	}
	a := &Async{
		next:   next,
		queue:  make(chan Event, size),
		logger: noopLogger{},
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// SetLogger sets the logger used to report dropped events.
func (a *Async) SetLogger(logger Logger) {
	a.logger = logger
}

// OnDrop registers a callback invoked for every dropped event. Must be set
// before the first Notify.
func (a *Async) OnDrop(fn func()) {
	a.onDrop = fn
}

// Notify enqueues e without blocking.
func (a *Async) Notify(_ context.Context, e Event) {
	select {
	case a.queue <- e:
	default:
		n := a.dropped.Add(1)
		if a.onDrop != nil {
			a.onDrop()
		}
		a.logger.Warn("notification queue full, event dropped", "kind", e.Kind, "dropped_total", n)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops accepting events, delivers what is queued and waits.
// Notify must not be called after Close.
func (a *Async) Close() {
	a.once.Do(func() { close(a.queue) })
	<-a.done
}

func (a *Async) run() {
	defer close(a.done)
	ctx := context.Background()
	for e := range a.queue {
		a.next.Notify(ctx, e)
	}
}

// Publisher is a topic-based broker such as the MQTT client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// PublishNotifier publishes each event as JSON to a topic chosen per event.
type PublishNotifier struct {
	pub    Publisher
	topic  func(e Event) string
	qos    byte
	logger Logger
}

// NewPublishNotifier creates a sink publishing to pub. topic maps an event to
// its destination topic.
func NewPublishNotifier(pub Publisher, qos byte, topic func(e Event) string) *PublishNotifier {
	return &PublishNotifier{pub: pub, topic: topic, qos: qos, logger: noopLogger{}}
}

// SetLogger sets the logger used to report publish failures.
func (p *PublishNotifier) SetLogger(logger Logger) {
	p.logger = logger
}

// Notify publishes e. Failures are logged and otherwise ignored.
func (p *PublishNotifier) Notify(_ context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("encoding event", "kind", e.Kind, "error", err)
		return
	}
	topic := p.topic(e)
	if err := p.pub.Publish(topic, payload, p.qos, false); err != nil {
		p.logger.Warn("publishing event", "topic", topic, "error", err)
	}
}

// ChannelPublisher is a pub/sub channel broker such as Redis.
type ChannelPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// ChannelNotifier publishes every event as JSON on one channel.
type ChannelNotifier struct {
	pub     ChannelPublisher
	channel string
	logger  Logger
}

// NewChannelNotifier creates a sink publishing to channel.
func NewChannelNotifier(pub ChannelPublisher, channel string) *ChannelNotifier {
	return &ChannelNotifier{pub: pub, channel: channel, logger: noopLogger{}}
}

// SetLogger sets the logger used to report publish failures.
func (c *ChannelNotifier) SetLogger(logger Logger) {
	c.logger = logger
}

// Notify publishes e. Failures are logged and otherwise ignored.
func (c *ChannelNotifier) Notify(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		c.logger.Error("encoding event", "kind", e.Kind, "error", err)
		return
	}
	if err := c.pub.Publish(ctx, c.channel, payload); err != nil {
		c.logger.Warn("publishing event", "channel", c.channel, "error", err)
	}
}

// Broadcaster pushes payloads to connected WebSocket clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// HubNotifier forwards events to WebSocket subscribers of the event kind.
type HubNotifier struct {
	Hub Broadcaster
}

// Notify broadcasts e on a channel named after its kind.
func (h HubNotifier) Notify(_ context.Context, e Event) {
	h.Hub.Broadcast(string(e.Kind), e)
}

// StateWriter records device power transitions in a time-series store.
type StateWriter interface {
	WriteDeviceState(deviceID string, on bool, source string, at time.Time)
}

// StateNotifier writes device.changed events to a StateWriter and ignores
// everything else.
type StateNotifier struct {
	Writer StateWriter
}

// Notify records e if it is a device transition.
func (s StateNotifier) Notify(_ context.Context, e Event) {
	if e.Kind != EventDeviceChanged || e.On == nil {
		return
	}
	s.Writer.WriteDeviceState(e.DeviceID, *e.On, e.Source, e.At)
}
