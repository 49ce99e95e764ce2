package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/homesim/internal/infrastructure/config"
)

// testConfig targets a local Mosquitto at 127.0.0.1:1883.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS:         1,
		TopicPrefix: "homesim-test",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip returns a connected client or skips when no broker runs.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	c, err := Connect(testConfig(clientID))
	if err != nil {
		t.Skipf("MQTT broker not available: %v", err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // Test cleanup
	return c
}

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "home/"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"system status", topics.SystemStatus(), "home/system/status"},
		{"event", topics.Event("device.changed"), "home/events/device.changed"},
		{"all events", topics.AllEvents(), "home/events/#"},
		{"device state", topics.DeviceState("lamp"), "home/device/lamp/state"},
		{"sensor reading", topics.SensorReading("lux"), "home/sensor/lux/reading"},
		{"all readings", topics.AllSensorReadings(), "home/sensor/+/reading"},
		{"default prefix", Topics{}.SystemStatus(), "homesim/system/status"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestTopics_ParseSensorReading(t *testing.T) {
	topics := Topics{Prefix: "homesim"}

	tests := []struct {
		topic string
		id    string
		ok    bool
	}{
		{"homesim/sensor/lux/reading", "lux", true},
		{"homesim/sensor/hall.temp/reading", "hall.temp", true},
		{"homesim/sensor//reading", "", false},
		{"homesim/sensor/a/b/reading", "", false},
		{"homesim/sensor/lux/state", "", false},
		{"other/sensor/lux/reading", "", false},
	}
	for _, tt := range tests {
		id, ok := topics.ParseSensorReading(tt.topic)
		if id != tt.id || ok != tt.ok {
			t.Errorf("ParseSensorReading(%q) = %q, %v; want %q, %v", tt.topic, id, ok, tt.id, tt.ok)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig("opts-test")
	cfg.Broker.TLS = true
	cfg.Auth.Username = "user"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "opts-test" || opts.Username != "user" || opts.Password != "secret" {
		t.Errorf("identity = %q %q %q", opts.ClientID, opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("reconnect = %v %v", opts.AutoReconnect, opts.MaxReconnectInterval)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config not applied")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig("lwt-test"))
	configureLWT(opts, Topics{Prefix: "homesim"}, "lwt-test")

	if !opts.WillEnabled || opts.WillTopic != "homesim/system/status" || !opts.WillRetained {
		t.Fatalf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	var payload map[string]string
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if payload["status"] != "offline" || payload["reason"] != "unexpected_disconnect" || payload["client_id"] != "lwt-test" {
		t.Errorf("will payload = %v", payload)
	}
}

func TestStatusPayload_OmitsEmptyReason(t *testing.T) {
	if p := statusPayload("online", "c1", ""); strings.Contains(p, "reason") {
		t.Errorf("payload = %s, want no reason", p)
	}
}

func TestValidationWithoutConnection(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription), logger: noopLogger{}}
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", nil, 0, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("t", nil, 3, false), ErrInvalidQoS},
		{"publish oversized", c.Publish("t", make([]byte, maxPayloadSize+1), 0, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("t", []byte("x"), 0, false), ErrNotConnected},
		{"subscribe empty topic", c.Subscribe("", 0, noop), ErrInvalidTopic},
		{"subscribe bad qos", c.Subscribe("t", 3, noop), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("t", 0, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("t", 0, noop), ErrNotConnected},
		{"unsubscribe empty topic", c.Unsubscribe(""), ErrInvalidTopic},
		{"health disconnected", c.HealthCheck(context.Background()), ErrNotConnected},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.name, tt.err, tt.want)
		}
	}
	if c.SubscriptionCount() != 0 {
		t.Error("failed subscriptions must not be tracked")
	}
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on an unconnected client error = %v", err)
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := testConfig("refused")
	cfg.Broker.Port = 1 // nothing listens here

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	sub := connectOrSkip(t, "homesim-test-sub")
	pub := connectOrSkip(t, "homesim-test-pub")

	received := make(chan string, 1)
	topics := sub.Topics()
	err := sub.Subscribe(topics.AllSensorReadings(), 1, func(topic string, payload []byte) error {
		id, _ := topics.ParseSensorReading(topic)
		received <- id + "=" + string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !sub.HasSubscription(topics.AllSensorReadings()) {
		t.Error("subscription not tracked")
	}
	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish(pub.Topics().SensorReading("lux"), []byte("412"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != "lux=412" {
			t.Errorf("received %q, want lux=412", got)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}

	if err := sub.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := sub.Unsubscribe(topics.AllSensorReadings()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
}
