package sensorfeed

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/homesim/internal/automation"
	"github.com/nerrad567/homesim/internal/device"
	"github.com/nerrad567/homesim/internal/infrastructure/config"
	"github.com/nerrad567/homesim/internal/infrastructure/mqtt"
)

type reading struct {
	sensorID string
	value    float64
}

// fakeEngine stores readings on the sensors so random walks accumulate.
type fakeEngine struct {
	mu       sync.Mutex
	sensors  []*device.Sensor
	readings []reading
}

func newFakeEngine(ids ...string) *fakeEngine {
	e := &fakeEngine{}
	for _, id := range ids {
		e.sensors = append(e.sensors, device.NewSensor(id, id, "lx"))
	}
	return e
}

func (e *fakeEngine) Sensors() []*device.Sensor { return e.sensors }

func (e *fakeEngine) OnReading(_ context.Context, s *device.Sensor, value float64) []automation.Transition {
	s.Update(value, time.Now())
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readings = append(e.readings, reading{s.ID, value})
	return nil
}

func (e *fakeEngine) OnReadingByID(ctx context.Context, id string, value float64) ([]automation.Transition, error) {
	for _, s := range e.sensors {
		if s.ID == device.NormalizeID(id) {
			return e.OnReading(ctx, s, value), nil
		}
	}
	return nil, automation.ErrSensorNotFound
}

func (e *fakeEngine) got() []reading {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]reading(nil), e.readings...)
}

type fakeSubscriber struct {
	topic    string
	qos      byte
	handler  mqtt.MessageHandler
	unsubbed string
	failOn   error
}

func (f *fakeSubscriber) Subscribe(topic string, qos byte, h mqtt.MessageHandler) error {
	if f.failOn != nil {
		return f.failOn
	}
	f.topic, f.qos, f.handler = topic, qos, h
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topic string) error {
	f.unsubbed = topic
	return nil
}

// ─── Payload parsing ────────────────────────────────────────────────────────

func TestParseReading(t *testing.T) {
	tests := []struct {
		payload string
		want    float64
		wantErr bool
	}{
		{`{"value": 21.5}`, 21.5, false},
		{`{"value":-3,"unit":"C"}`, -3, false},
		{` 412 `, 412, false},
		{`0`, 0, false},
		{`{"unit":"C"}`, 0, true},
		{`{"value":"hot"}`, 0, true},
		{`warm`, 0, true},
		{``, 0, true},
		{`NaN`, 0, true},
	}
	for _, tt := range tests {
		got, err := ParseReading([]byte(tt.payload))
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("ParseReading(%q) error = %v, want ErrInvalidPayload", tt.payload, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseReading(%q) = %v, %v; want %v", tt.payload, got, err, tt.want)
		}
	}
}

// ─── MQTT ingest ────────────────────────────────────────────────────────────

func TestMQTTIngest(t *testing.T) {
	engine := newFakeEngine("lux")
	sub := &fakeSubscriber{}
	topics := mqtt.Topics{Prefix: "homesim"}
	ingest := NewMQTTIngest(context.Background(), engine, sub, topics, 1)

	if err := ingest.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sub.topic != "homesim/sensor/+/reading" || sub.qos != 1 || sub.handler == nil {
		t.Fatalf("subscribed %q qos %d", sub.topic, sub.qos)
	}

	if err := sub.handler("homesim/sensor/LUX/reading", []byte(`{"value":350}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if got := engine.got(); len(got) != 1 || got[0] != (reading{"lux", 350}) {
		t.Errorf("readings = %v", got)
	}

	tests := []struct {
		name    string
		topic   string
		payload string
		want    error
	}{
		{"unknown sensor", "homesim/sensor/ghost/reading", "1", automation.ErrSensorNotFound},
		{"bad payload", "homesim/sensor/lux/reading", "bright", ErrInvalidPayload},
	}
	for _, tt := range tests {
		if err := ingest.Handle(tt.topic, []byte(tt.payload)); !errors.Is(err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.name, err, tt.want)
		}
	}
	if err := ingest.Handle("homesim/device/lux/state", []byte("1")); err == nil {
		t.Error("foreign topic should be rejected")
	}
	if len(engine.got()) != 1 {
		t.Error("rejected messages must not reach the engine")
	}

	if err := ingest.Stop(); err != nil || sub.unsubbed != "homesim/sensor/+/reading" {
		t.Errorf("Stop() = %v, unsubscribed %q", err, sub.unsubbed)
	}
}

func TestMQTTIngest_SubscribeFailure(t *testing.T) {
	sub := &fakeSubscriber{failOn: mqtt.ErrNotConnected}
	ingest := NewMQTTIngest(context.Background(), newFakeEngine(), sub, mqtt.Topics{}, 0)

	if err := ingest.Start(); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}
}

// ─── Simulator ──────────────────────────────────────────────────────────────

func TestSimulator_StepIsBounded(t *testing.T) {
	engine := newFakeEngine("a", "b")
	engine.sensors[1].Update(500, time.Now())
	sim := NewSimulator(engine, config.SimulatorConfig{Interval: time.Second, MaxStep: 25, Seed: 7})

	prev := map[string]float64{"a": 0, "b": 500}
	for i := 0; i < 50; i++ {
		sim.Step(context.Background())
		got := engine.got()
		for _, r := range got[len(got)-2:] {
			if math.Abs(r.value-prev[r.sensorID]) > 25 {
				t.Fatalf("step %d moved %s from %v to %v", i, r.sensorID, prev[r.sensorID], r.value)
			}
			prev[r.sensorID] = r.value
		}
	}
	if len(engine.got()) != 100 {
		t.Errorf("readings = %d, want 100", len(engine.got()))
	}
}

func TestSimulator_SeedIsDeterministic(t *testing.T) {
	run := func() []reading {
		engine := newFakeEngine("lux")
		sim := NewSimulator(engine, config.SimulatorConfig{Interval: time.Second, MaxStep: 10, Seed: 42})
		for i := 0; i < 5; i++ {
			sim.Step(context.Background())
		}
		return engine.got()
	}

	first, second := run(), run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("reading %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestSimulator_ZeroStepHoldsValue(t *testing.T) {
	engine := newFakeEngine("lux")
	engine.sensors[0].Update(300, time.Now())
	sim := NewSimulator(engine, config.SimulatorConfig{Interval: time.Second, Seed: 1})

	sim.Step(context.Background())
	if got := engine.got(); got[0].value != 300 {
		t.Errorf("value = %v, want 300", got[0].value)
	}
}

func TestSimulator_StartStop(t *testing.T) {
	engine := newFakeEngine("lux")
	sim := NewSimulator(engine, config.SimulatorConfig{Interval: 5 * time.Millisecond, MaxStep: 1, Seed: 3})

	if err := sim.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := sim.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(engine.got()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sim.Stop()

	n := len(engine.got())
	if n < 3 {
		t.Fatalf("readings = %d, want at least 3", n)
	}
	time.Sleep(20 * time.Millisecond)
	if len(engine.got()) != n {
		t.Error("simulator kept running after Stop")
	}
	sim.Stop()
}

func TestSimulator_InvalidInterval(t *testing.T) {
	sim := NewSimulator(newFakeEngine(), config.SimulatorConfig{})
	if err := sim.Start(context.Background()); err == nil {
		t.Error("Start() with zero interval should fail")
	}
}
