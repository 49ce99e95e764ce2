package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/homesim/internal/infrastructure/config"
	"github.com/nerrad567/homesim/internal/infrastructure/logging"
	"github.com/nerrad567/homesim/internal/notify"
)

func wsTestConfig() config.WebSocketConfig {
	return config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("reading message: %v", err)
	}
	return msg
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")
	hub := NewHub(wsTestConfig(), log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialHub(t, hub)
	if err := conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{string(notify.EventDeviceChanged)}},
	}); err != nil {
		t.Fatal(err)
	}
	if resp := readMessage(t, conn); resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}

	hub.Broadcast(string(notify.EventTaskScheduled), map[string]string{"ignored": "yes"})
	hub.Broadcast(string(notify.EventDeviceChanged), map[string]string{"device_id": "lamp"})

	msg := readMessage(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != string(notify.EventDeviceChanged) {
		t.Errorf("event = %+v, want device.changed only", msg)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["device_id"] != "lamp" {
		t.Errorf("payload = %v", msg.Payload)
	}
}

func TestHub_WildcardAndPing(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")
	hub := NewHub(wsTestConfig(), log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialHub(t, hub)
	conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}) //nolint:errcheck // checked via response
	if resp := readMessage(t, conn); resp.Type != WSTypePong || resp.ID != "p1" {
		t.Fatalf("ping response = %+v", resp)
	}

	conn.WriteJSON(WSMessage{ //nolint:errcheck // checked via response
		Type:    WSTypeSubscribe,
		Payload: WSSubscribePayload{Channels: []string{WSChannelAll}},
	})
	readMessage(t, conn)

	hub.Broadcast(string(notify.EventSensorReading), 42.5)
	if msg := readMessage(t, conn); msg.EventType != string(notify.EventSensorReading) || msg.Payload != 42.5 {
		t.Errorf("event = %+v", msg)
	}

	conn.WriteJSON(WSMessage{Type: "dance", ID: "x"}) //nolint:errcheck // checked via response
	if resp := readMessage(t, conn); resp.Type != WSTypeError {
		t.Errorf("unknown type response = %+v", resp)
	}
}

func TestHub_NotifierDeliversEvents(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")
	hub := NewHub(wsTestConfig(), log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialHub(t, hub)
	conn.WriteJSON(WSMessage{ //nolint:errcheck // checked via response
		Type:    WSTypeSubscribe,
		Payload: WSSubscribePayload{Channels: []string{WSChannelAll}},
	})
	readMessage(t, conn)

	n := notify.HubNotifier{Hub: hub}
	n.Notify(ctx, notify.Event{Kind: notify.EventTaskExecuted, DeviceID: "lamp", Message: "ON ran"})

	msg := readMessage(t, conn)
	payload, _ := msg.Payload.(map[string]any)
	if msg.EventType != string(notify.EventTaskExecuted) || payload["device_id"] != "lamp" {
		t.Errorf("event = %+v", msg)
	}
}

func TestWebSocketRoute_UnavailableWithoutHub(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/ws", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 before the hub exists", w.Code)
	}
}
