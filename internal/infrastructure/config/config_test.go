package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "test-home"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
scheduler:
  tick_interval: 5s
  timezone: "Europe/London"
  conflict_window: 2h
automation:
  simulator:
    enabled: true
    interval: 1m
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-home" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-home")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.Scheduler.TickInterval != 5*time.Second {
		t.Errorf("Scheduler.TickInterval = %v, want 5s", cfg.Scheduler.TickInterval)
	}
	if cfg.Scheduler.ConflictWindow != 2*time.Hour {
		t.Errorf("Scheduler.ConflictWindow = %v, want 2h", cfg.Scheduler.ConflictWindow)
	}
	if cfg.Location().String() != "Europe/London" {
		t.Errorf("Location() = %q, want Europe/London", cfg.Location())
	}
	if !cfg.Automation.Simulator.Enabled || cfg.Automation.Simulator.Interval != time.Minute {
		t.Errorf("Simulator = %+v, want enabled with 1m interval", cfg.Automation.Simulator)
	}
	// Untouched sections keep their defaults.
	if cfg.MQTT.TopicPrefix != "homesim" {
		t.Errorf("MQTT.TopicPrefix = %q, want default %q", cfg.MQTT.TopicPrefix, "homesim")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: ""
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "/tmp/from-file.db"
`)

	t.Setenv("HOMESIM_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("HOMESIM_SCHEDULER_TICK_INTERVAL", "3s")
	t.Setenv("HOMESIM_REDIS_ENABLED", "true")
	t.Setenv("HOMESIM_REDIS_ADDR", "cache:6379")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Scheduler.TickInterval != 3*time.Second {
		t.Errorf("Scheduler.TickInterval = %v, want 3s", cfg.Scheduler.TickInterval)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "cache:6379" {
		t.Errorf("Redis = %+v, want enabled at cache:6379", cfg.Redis)
	}
}

func TestLoad_InvalidEnvOverride(t *testing.T) {
	configPath := writeConfig(t, "site:\n  id: x\n")
	t.Setenv("HOMESIM_SCHEDULER_TICK_INTERVAL", "soon")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for unparsable duration override")
	}
	if !strings.Contains(err.Error(), "HOMESIM_SCHEDULER_TICK_INTERVAL") {
		t.Errorf("error %q does not name the offending variable", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		if err := loadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
			t.Errorf("loadDotEnv() error = %v, want nil", err)
		}
	})

	t.Run("variables are loaded without overriding", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		content := "HOMESIM_TEST_DOTENV_NEW=from-file\nHOMESIM_TEST_DOTENV_SET=from-file\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("write .env: %v", err)
		}
		t.Setenv("HOMESIM_TEST_DOTENV_SET", "from-env")
		t.Cleanup(func() { os.Unsetenv("HOMESIM_TEST_DOTENV_NEW") })

		if err := loadDotEnv(path); err != nil {
			t.Fatalf("loadDotEnv() error = %v", err)
		}
		if got := os.Getenv("HOMESIM_TEST_DOTENV_NEW"); got != "from-file" {
			t.Errorf("HOMESIM_TEST_DOTENV_NEW = %q, want from-file", got)
		}
		if got := os.Getenv("HOMESIM_TEST_DOTENV_SET"); got != "from-env" {
			t.Errorf("HOMESIM_TEST_DOTENV_SET = %q, want from-env", got)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing site id",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: "site.id",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid api port",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name:   "api port ignored when api disabled",
			mutate: func(c *Config) { c.API.Enabled = false; c.API.Port = 0 },
		},
		{
			name:    "tick interval too short",
			mutate:  func(c *Config) { c.Scheduler.TickInterval = 100 * time.Millisecond },
			wantErr: "scheduler.tick_interval",
		},
		{
			name:    "unknown timezone",
			mutate:  func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" },
			wantErr: "scheduler.timezone",
		},
		{
			name:    "negative conflict window",
			mutate:  func(c *Config) { c.Scheduler.ConflictWindow = -time.Minute },
			wantErr: "scheduler.conflict_window",
		},
		{
			name:    "redis enabled without address",
			mutate:  func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" },
			wantErr: "redis.addr",
		},
		{
			name:    "influx enabled without bucket",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Bucket = "" },
			wantErr: "influxdb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Timeouts(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 30*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
}
