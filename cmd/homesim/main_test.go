package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/homesim/internal/api"
	"github.com/nerrad567/homesim/internal/automation"
	"github.com/nerrad567/homesim/internal/clock"
	"github.com/nerrad567/homesim/internal/device"
	"github.com/nerrad567/homesim/internal/infrastructure/config"
	"github.com/nerrad567/homesim/internal/infrastructure/database"
	"github.com/nerrad567/homesim/internal/infrastructure/logging"
	"github.com/nerrad567/homesim/internal/metrics"
	"github.com/nerrad567/homesim/internal/notify"
	"github.com/nerrad567/homesim/internal/schedule"
	"github.com/nerrad567/homesim/internal/store"
	"github.com/nerrad567/homesim/migrations"
)

// writeConfig writes a config with every network outlet disabled.
func writeConfig(t *testing.T, dbPath, extra string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	content := `
site:
  id: test-site

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "homesim-test"

influxdb:
  enabled: false

redis:
  enabled: false

api:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
` + extra
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("HOMESIM_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	t.Setenv("HOMESIM_CONFIG", writeConfig(t, "", ""))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

func TestRun_MQTTUnreachable(t *testing.T) {
	t.Setenv("HOMESIM_CONFIG", writeConfig(t, filepath.Join(t.TempDir(), "test.db"), ""))
	t.Setenv("HOMESIM_MQTT_ENABLED", "true")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail when the MQTT broker cannot be reached")
	}
}

// TestRun_StartupAndShutdown starts the engine with only SQLite and the
// simulator, lets it run briefly and checks the state it persisted.
func TestRun_StartupAndShutdown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	seedDatabase(t, dbPath)

	t.Setenv("HOMESIM_CONFIG", writeConfig(t, dbPath, `
scheduler:
  tick_interval: 1s
  timezone: UTC

automation:
  reevaluate_on_start: true
  simulator:
    enabled: true
    interval: 20ms
    max_step: 5
    seed: 7
`))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	db, err := database.Open(database.Config{Path: dbPath, BusyTimeout: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	st := store.NewSQLiteStore(db, time.UTC)
	devices, err := st.LoadDevices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	sensors, err := st.LoadSensors(context.Background(), devices)
	if err != nil {
		t.Fatal(err)
	}
	if !sensors["lux"].HasReading() {
		t.Error("simulator readings were not persisted")
	}
	if !devices["lamp"].IsOn() {
		t.Error("re-evaluation on start should have switched the lamp on")
	}
}

// seedDatabase stores a lamp linked to a dark light sensor.
func seedDatabase(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(database.Config{Path: path, BusyTimeout: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatal(err)
	}

	st := store.NewSQLiteStore(db, time.UTC)
	lamp := device.New("lamp", "Lamp", device.TypeLight)
	if err := st.SaveDevice(ctx, lamp); err != nil {
		t.Fatal(err)
	}
	lux := device.NewSensor("lux", "Light level", "lx")
	lux.Update(10, time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC))
	if err := st.SaveSensor(ctx, lux); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveLink(ctx, automation.Link{
		DeviceID:     "lamp",
		SensorID:     "lux",
		TurnOnBelow:  400,
		TurnOffAbove: 600,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("HOMESIM_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("HOMESIM_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestHealthCheck_NoOutlets(t *testing.T) {
	db, err := database.Open(database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	out := &outlets{}
	if err := healthCheck(context.Background(), db, out); err != nil {
		t.Errorf("healthCheck() error = %v", err)
	}
	checks := healthCheckers(db, out)
	if len(checks) != 1 || checks["database"] == nil {
		t.Errorf("healthCheckers() = %v, want only database", checks)
	}
}

func TestBuildNotifier_DeliversToHubAndDrains(t *testing.T) {
	cfg := &config.Config{Automation: config.AutomationConfig{NotifyQueueSize: 4}}
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")
	m := metrics.NewMetrics(prometheus.NewRegistry())
	hub := api.NewHub(config.WebSocketConfig{PingInterval: 30, PongTimeout: 10}, log)

	n, closeFn := buildNotifier(cfg, log, m, hub, &outlets{})
	n.Notify(context.Background(), notify.Event{Kind: notify.EventTaskExecuted, Message: "ran"})
	closeFn()

	if _, ok := n.(notify.Multi); !ok {
		t.Fatalf("buildNotifier() = %T, want notify.Multi", n)
	}
	if got := len(n.(notify.Multi)); got != 2 {
		t.Errorf("sinks = %d, want log and hub only", got)
	}
}

func TestRestoreState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restore.db")
	seedDatabase(t, path)

	db, err := database.Open(database.Config{Path: path, BusyTimeout: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	st := store.NewSQLiteStore(db, time.UTC)
	clk := clock.NewManual(time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC))
	registry := device.NewRegistry()
	engine := automation.NewEngine(registry, st, clk)
	scheduler := schedule.NewScheduler(registry, st, clk)

	if err := restoreState(ctx, st, registry, engine, scheduler, logging.New(config.LoggingConfig{Level: "error"}, "test")); err != nil {
		t.Fatalf("restoreState() error = %v", err)
	}

	lamp, ok := registry.Get("lamp")
	if !ok || !lamp.AutomationEnabled() || lamp.SourceSensorID() != "lux" {
		t.Fatalf("lamp not restored with its link: %+v", lamp)
	}
	lux, ok := engine.Sensor("lux")
	if !ok || !lux.HasSlave("lamp") {
		t.Error("sensor should list the lamp as a slave")
	}

	transitions := engine.ReevaluateAll(ctx)
	if len(transitions) != 1 || !lamp.IsOn() {
		t.Errorf("ReevaluateAll() = %+v, want the lamp switched on", transitions)
	}
}
