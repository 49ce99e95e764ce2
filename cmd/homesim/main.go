// homesim - Home Automation Simulator
//
// This is the main entry point for the homesim engine. It keeps a registry
// of on/off devices, fires scheduled tasks against them and lets sensor
// readings drive devices through hysteresis automation. State lives in
// SQLite; MQTT, InfluxDB and Redis are optional outlets and feeds.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/homesim/internal/api"
	"github.com/nerrad567/homesim/internal/automation"
	"github.com/nerrad567/homesim/internal/clock"
	"github.com/nerrad567/homesim/internal/device"
	"github.com/nerrad567/homesim/internal/infrastructure/config"
	"github.com/nerrad567/homesim/internal/infrastructure/database"
	"github.com/nerrad567/homesim/internal/infrastructure/influxdb"
	"github.com/nerrad567/homesim/internal/infrastructure/logging"
	"github.com/nerrad567/homesim/internal/infrastructure/mqtt"
	"github.com/nerrad567/homesim/internal/infrastructure/redis"
	"github.com/nerrad567/homesim/internal/metrics"
	"github.com/nerrad567/homesim/internal/notify"
	"github.com/nerrad567/homesim/internal/schedule"
	"github.com/nerrad567/homesim/internal/sensorfeed"
	"github.com/nerrad567/homesim/internal/store"
	"github.com/nerrad567/homesim/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C or SIGTERM for a graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// outlets holds the optional infrastructure clients. A nil field means the
// outlet is disabled.
type outlets struct {
	mqtt   *mqtt.Client
	influx *influxdb.Client
	redis  *redis.Client
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting homesim",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)
	loc := cfg.Location()

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	out, err := connectOutlets(ctx, cfg, log)
	defer out.close(log)
	if err != nil {
		return err
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	notifier, closeNotifier := buildNotifier(cfg, log, m, hub, out)
	defer closeNotifier()

	clk := clock.System{Location: loc}
	st := store.NewSQLiteStore(db, loc)
	st.SetLogger(log.Component("store"))
	st.SetNotifier(notifier)

	devices := device.NewRegistry()
	devices.SetLogger(log.Component("registry"))

	scheduler := schedule.NewScheduler(devices, st, clk)
	scheduler.SetLogger(log.Component("scheduler"))
	scheduler.SetNotifier(notifier)
	scheduler.SetMetrics(m)
	scheduler.SetDeviceStore(st)
	scheduler.SetHistory(st)
	scheduler.SetConflictWindow(cfg.Scheduler.ConflictWindow)

	engine := automation.NewEngine(devices, st, clk)
	engine.SetLogger(log.Component("automation"))
	engine.SetNotifier(notifier)
	engine.SetMetrics(m)
	engine.SetDeviceStore(st)
	engine.SetSensorStore(st)
	engine.SetHistory(st)
	if out.influx != nil {
		engine.AddReadingSink(out.influx)
	}
	if out.redis != nil {
		engine.AddReadingSink(out.redis)
	}

	if err := restoreState(ctx, st, devices, engine, scheduler, log); err != nil {
		return err
	}
	if cfg.Automation.ReevaluateOnStart {
		transitions := engine.ReevaluateAll(ctx)
		log.Info("automation re-evaluated", "transitions", len(transitions))
	}

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:    cfg.API,
			WS:        cfg.WebSocket,
			Metrics:   cfg.Metrics,
			Location:  loc,
			Logger:    log.Component("api"),
			Registry:  devices,
			Scheduler: scheduler,
			Engine:    engine,
			Store:     st,
			Notifier:  notifier,
			Clock:     clk,
			Gatherer:  registry,
			Health:    healthCheckers(db, out),
			Hub:       hub,
			Version:   version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if out.mqtt != nil {
		ingest := sensorfeed.NewMQTTIngest(ctx, engine, out.mqtt, out.mqtt.Topics(), out.mqtt.QoS())
		ingest.SetLogger(log.Component("ingest"))
		if startErr := ingest.Start(); startErr != nil {
			return fmt.Errorf("starting sensor ingest: %w", startErr)
		}
		defer func() {
			if stopErr := ingest.Stop(); stopErr != nil {
				log.Warn("error stopping sensor ingest", "error", stopErr)
			}
		}()
	}

	if cfg.Automation.Simulator.Enabled {
		sim := sensorfeed.NewSimulator(engine, cfg.Automation.Simulator)
		sim.SetLogger(log.Component("simulator"))
		if startErr := sim.Start(ctx); startErr != nil {
			return fmt.Errorf("starting simulator: %w", startErr)
		}
		defer sim.Stop()
	}

	if startErr := scheduler.Start(ctx, cfg.Scheduler.TickInterval, loc); startErr != nil {
		return fmt.Errorf("starting scheduler: %w", startErr)
	}
	defer scheduler.Stop()

	if err := healthCheck(ctx, db, out); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"devices", devices.Len(),
		"tasks", scheduler.Len(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: scheduler, feeds, API,
	// notifier queues, outlets, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HOMESIM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMESIM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectOutlets connects every enabled outlet. On error the outlets
// connected so far are returned so the caller can close them.
func connectOutlets(ctx context.Context, cfg *config.Config, log *logging.Logger) (*outlets, error) {
	out := &outlets{}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return out, fmt.Errorf("connecting to MQTT: %w", err)
		}
		client.SetLogger(log.Component("mqtt"))
		out.mqtt = client
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return out, fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		out.influx = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	redisClient, err := redis.Connect(ctx, cfg.Redis)
	switch {
	case errors.Is(err, redis.ErrDisabled):
		log.Info("Redis disabled")
	case err != nil:
		return out, fmt.Errorf("connecting to Redis: %w", err)
	default:
		redisClient.SetLogger(log.Component("redis"))
		out.redis = redisClient
		log.Info("Redis connected", "addr", cfg.Redis.Addr, "channel", redisClient.EventsChannel())
	}

	return out, nil
}

// close shuts the outlets down. InfluxDB is flushed on close.
func (o *outlets) close(log *logging.Logger) {
	if o.redis != nil {
		log.Info("closing Redis connection")
		if err := o.redis.Close(); err != nil {
			log.Error("error closing Redis", "error", err)
		}
	}
	if o.influx != nil {
		log.Info("closing InfluxDB connection")
		if err := o.influx.Close(); err != nil {
			log.Error("error closing InfluxDB", "error", err)
		}
	}
	if o.mqtt != nil {
		log.Info("disconnecting from MQTT")
		if err := o.mqtt.Close(); err != nil {
			log.Error("error closing MQTT", "error", err)
		}
	}
}

// buildNotifier assembles the notification fan-out. The log sink runs
// inline; network sinks sit behind bounded queues so a slow broker never
// stalls a tick or a reading. Sensor readings are too chatty for the log.
//
// The returned func drains the queues and must run before the outlets close.
func buildNotifier(cfg *config.Config, log *logging.Logger, m *metrics.Metrics, hub *api.Hub, out *outlets) (notify.Notifier, func()) {
	sinks := notify.Multi{
		notify.Except(notify.LogNotifier{Logger: log.Component("events")}, notify.EventSensorReading),
	}
	var queues []*notify.Async

	async := func(next notify.Notifier) {
		a := notify.NewAsync(next, cfg.Automation.NotifyQueueSize)
		a.SetLogger(log.Component("notify"))
		a.OnDrop(m.NotificationDropped)
		queues = append(queues, a)
		sinks = append(sinks, a)
	}

	async(notify.HubNotifier{Hub: hub})

	if out.mqtt != nil {
		topics := out.mqtt.Topics()
		pub := notify.NewPublishNotifier(out.mqtt, out.mqtt.QoS(), func(e notify.Event) string {
			return topics.Event(string(e.Kind))
		})
		pub.SetLogger(log.Component("notify"))
		async(pub)
	}
	if out.redis != nil {
		ch := notify.NewChannelNotifier(out.redis, out.redis.EventsChannel())
		ch.SetLogger(log.Component("notify"))
		async(ch)
	}
	if out.influx != nil {
		async(notify.StateNotifier{Writer: out.influx})
	}

	return sinks, func() {
		for _, q := range queues {
			q.Close()
		}
	}
}

// restoreState loads persisted devices, sensors, links and tasks in
// dependency order. Malformed rows are skipped by the store.
func restoreState(ctx context.Context, st *store.SQLiteStore, devices *device.Registry, engine *automation.Engine, scheduler *schedule.Scheduler, log *logging.Logger) error {
	loaded, err := st.LoadDevices(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}
	devices.Load(loaded)

	sensors, err := st.LoadSensors(ctx, devices.Map())
	if err != nil {
		return fmt.Errorf("loading sensors: %w", err)
	}
	engine.LoadSensors(sensors)

	links, err := st.LoadAutomationLinks(ctx)
	if err != nil {
		return fmt.Errorf("loading automation links: %w", err)
	}
	restored := engine.Restore(ctx, links)

	tasks, err := st.LoadTasks(ctx, devices.Map())
	if err != nil {
		return fmt.Errorf("loading tasks: %w", err)
	}
	scheduler.Load(tasks)

	log.Info("state restored",
		"devices", devices.Len(),
		"sensors", len(sensors),
		"links", restored,
		"tasks", len(tasks),
	)
	return nil
}

// healthCheckers lists the components reported by the health endpoint.
func healthCheckers(db *database.DB, out *outlets) map[string]api.HealthChecker {
	checks := map[string]api.HealthChecker{"database": db}
	if out.mqtt != nil {
		checks["mqtt"] = out.mqtt
	}
	if out.influx != nil {
		checks["influxdb"] = out.influx
	}
	if out.redis != nil {
		checks["redis"] = out.redis
	}
	return checks
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - out: Enabled outlets (nil clients are skipped)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, out *outlets) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if out.mqtt != nil {
		if err := out.mqtt.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if out.influx != nil {
		if err := out.influx.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if out.redis != nil {
		if err := out.redis.HealthCheck(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}
