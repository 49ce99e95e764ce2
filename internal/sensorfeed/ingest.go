package sensorfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/nerrad567/homesim/internal/infrastructure/mqtt"
)

// ErrInvalidPayload is returned for a reading that is not a finite number.
var ErrInvalidPayload = errors.New("sensorfeed: invalid reading payload")

// Subscriber is the part of the MQTT client the ingest needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// MQTTIngest forwards readings published on <prefix>/sensor/<id>/reading
// to the engine.
type MQTTIngest struct {
	engine Engine
	sub    Subscriber
	topics mqtt.Topics
	qos    byte
	ctx    context.Context
	logger Logger
}

// NewMQTTIngest creates an ingest. Handlers run with ctx.
func NewMQTTIngest(ctx context.Context, engine Engine, sub Subscriber, topics mqtt.Topics, qos byte) *MQTTIngest {
	return &MQTTIngest{
		engine: engine,
		sub:    sub,
		topics: topics,
		qos:    qos,
		ctx:    ctx,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger.
func (m *MQTTIngest) SetLogger(logger Logger) { m.logger = logger }

// Start subscribes to all sensor reading topics.
func (m *MQTTIngest) Start() error {
	topic := m.topics.AllSensorReadings()
	if err := m.sub.Subscribe(topic, m.qos, m.Handle); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	m.logger.Info("mqtt sensor ingest subscribed", "topic", topic)
	return nil
}

// Stop unsubscribes.
func (m *MQTTIngest) Stop() error {
	return m.sub.Unsubscribe(m.topics.AllSensorReadings())
}

// Handle processes one message. Payloads are {"value": 21.5} or a bare
// number.
func (m *MQTTIngest) Handle(topic string, payload []byte) error {
	sensorID, ok := m.topics.ParseSensorReading(topic)
	if !ok {
		return fmt.Errorf("sensorfeed: unexpected topic %q", topic)
	}
	value, err := ParseReading(payload)
	if err != nil {
		return fmt.Errorf("sensor %s: %w", sensorID, err)
	}

	transitions, err := m.engine.OnReadingByID(m.ctx, sensorID, value)
	if err != nil {
		return err
	}
	m.logger.Debug("mqtt reading ingested", "sensor_id", sensorID, "value", value, "transitions", len(transitions))
	return nil
}

// ParseReading decodes a reading payload.
func ParseReading(payload []byte) (float64, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return 0, ErrInvalidPayload
	}

	var v float64
	if payload[0] == '{' {
		var msg struct {
			Value *float64 `json:"value"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil || msg.Value == nil {
			return 0, ErrInvalidPayload
		}
		v = *msg.Value
	} else if err := json.Unmarshal(payload, &v); err != nil {
		return 0, ErrInvalidPayload
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidPayload
	}
	return v, nil
}
