// G32 Bridge - Otto Wilde G32 telemetry bridge
//
// This is the main entry point for the bridge. It discovers the grills on
// an Otto Wilde account, keeps one supervised relay connection per enabled
// grill, and publishes decoded telemetry to MQTT, InfluxDB and a local
// HTTP/WebSocket API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/g32-bridge/internal/api"
	"github.com/nerrad567/g32-bridge/internal/bridges/g32"
	"github.com/nerrad567/g32-bridge/internal/cloud"
	"github.com/nerrad567/g32-bridge/internal/device"
	"github.com/nerrad567/g32-bridge/internal/diagnostics"
	"github.com/nerrad567/g32-bridge/internal/infrastructure/config"
	"github.com/nerrad567/g32-bridge/internal/infrastructure/database"
	"github.com/nerrad567/g32-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/g32-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/g32-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/g32-bridge/internal/presence"
	"github.com/nerrad567/g32-bridge/migrations"
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

// shutdownTimeout bounds closing every relay session on exit.
const shutdownTimeout = 15 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting G32 bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"account", logging.Redact(cfg.Account.Email),
		"relay", cfg.RelayAddress(),
	)

	// Open database
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"prefix", mqttClient.Topics().Prefix,
	)

	// Connect to InfluxDB (optional)
	influxClient, err := connectInflux(cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	debugLog := g32.NewDebugLog(time.Now)
	debugLog.SetEnabled(cfg.Debug.Enabled)

	cloudClient := cloud.NewClient(cloud.Config{
		BaseURL:  cfg.Account.APIBaseURL,
		Email:    cfg.Account.Email,
		Password: cfg.Account.Password,
		Timeout:  cfg.GetAccountTimeout(),
	})
	cloudClient.SetLogger(log.Component("cloud"))
	cloudClient.SetDebugLog(debugLog)

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("registry"))
	counterRepo := diagnostics.NewSQLiteRepository(db.DB)

	// Discovery and counter restore are independent.
	var counters []g32.CounterValue
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return discoverGrills(gctx, cloudClient, registry, log)
	})
	g.Go(func() error {
		var loadErr error
		counters, loadErr = counterRepo.LoadCounters(gctx)
		if loadErr != nil {
			return fmt.Errorf("loading diagnostic counters: %w", loadErr)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	grills := registry.List()
	if len(grills) == 0 {
		log.Warn("no grills available; the bridge will run without relay sessions")
	}

	// Presence gate
	gate := presence.New(mqttClient, presenceBindings(cfg))
	gate.SetLogger(log.Component("presence"))
	if err := gate.Start(ctx); err != nil {
		return fmt.Errorf("starting presence gate: %w", err)
	}
	defer gate.Stop()

	// Connection manager
	manager, err := g32.NewManager(grills, g32.ManagerConfig{
		Session: g32.SessionConfig{
			Address:          cfg.RelayAddress(),
			HeartbeatTimeout: cfg.GetHeartbeatTimeout(),
			ConnectTimeout:   cfg.GetConnectTimeout(),
			ReadBufferSize:   cfg.Relay.ReadBufferSize,
		},
		Policy:   retryPolicy(cfg.Retry),
		Gate:     gate,
		Logger:   log.Component("g32"),
		DebugLog: debugLog,
	})
	if err != nil {
		return fmt.Errorf("creating connection manager: %w", err)
	}
	// Sessions close before the sinks stop so their final states are
	// published and persisted.
	closeManager := sync.OnceFunc(func() {
		log.Info("closing relay sessions")
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := manager.Close(closeCtx); closeErr != nil {
			log.Error("error closing connection manager", "error", closeErr)
		}
	})
	defer closeManager()

	persister, err := startCounters(ctx, manager, cloudClient, counterRepo, counters, log)
	if err != nil {
		return err
	}
	defer func() {
		closeManager()
		persister.Stop()
	}()

	// MQTT bridge
	opts := g32.BridgeOptions{
		Manager:      manager,
		MQTTClient:   mqttClient,
		Topics:       mqttClient.Topics(),
		TelemetryQoS: byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0-2
		Version:      version,
		Logger:       log.Component("bridge"),
	}
	if influxClient != nil {
		opts.TimeSeries = influxClient
	}
	bridge, err := g32.NewBridge(opts)
	if err != nil {
		return fmt.Errorf("creating MQTT bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting MQTT bridge: %w", err)
	}
	defer func() {
		closeManager()
		bridge.Stop()
	}()

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.Component("api"),
		Grills:  manager,
		MQTT:    mqttClient,
		DB:      db,
		Bridge:  bridge,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := manager.Start(ctx, autoConnect(cfg, registry, log)...); err != nil {
		return fmt.Errorf("starting connection manager: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"grills", len(grills),
		"api", server.Addr(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, relay sessions,
	// MQTT bridge, counter persister, presence gate, InfluxDB, MQTT,
	// database.

	log.Info("G32 bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses G32_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("G32_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectInflux connects to InfluxDB when enabled. It returns a nil
// client when disabled.
func connectInflux(cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// discoverGrills refreshes the catalogue from the cloud, falling back to
// the stored catalogue when discovery fails.
func discoverGrills(ctx context.Context, client *cloud.Client, registry *device.Registry, log *logging.Logger) error {
	grills, err := client.Discover(ctx)
	if err == nil {
		if replaceErr := registry.Replace(ctx, grills); replaceErr != nil {
			log.Warn("storing discovered grills failed", "error", replaceErr)
		}
		return nil
	}

	if errors.Is(err, cloud.ErrAuthFailed) {
		log.Error("cloud login rejected; check account credentials", "error", err)
	} else {
		log.Warn("grill discovery failed", "error", err)
	}

	if loadErr := registry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading stored grills: %w", loadErr)
	}
	log.Info("using stored grill catalogue", "grills", registry.Count())
	return nil
}

// presenceBindings builds gate bindings from the per-grill config.
func presenceBindings(cfg *config.Config) []presence.Binding {
	var out []presence.Binding
	for serial, g := range cfg.Grills {
		if g.PresenceTopic == "" {
			continue
		}
		out = append(out, presence.Binding{
			Serial:      serial,
			Topic:       g.PresenceTopic,
			HomePayload: g.HomePayload,
		})
	}
	return out
}

// autoConnect returns the configured auto-connect serials that exist in
// the catalogue.
func autoConnect(cfg *config.Config, registry *device.Registry, log *logging.Logger) []string {
	var out []string
	for _, serial := range cfg.AutoConnectSerials() {
		if _, err := registry.Get(serial); err != nil {
			log.Warn("auto-connect grill not on account", "serial", serial)
			continue
		}
		out = append(out, serial)
	}
	return out
}

// retryPolicy converts the retry config to a policy.
func retryPolicy(c config.RetryConfig) g32.Policy {
	return g32.Policy{
		RapidAttempts: c.RapidAttempts,
		RapidDelay:    time.Duration(c.RapidDelay) * time.Second,
		InitialDelay:  time.Duration(c.InitialDelay) * time.Second,
		MaxDelay:      time.Duration(c.MaxDelay) * time.Second,
		GiveUpAfter:   time.Duration(c.GiveUpAfter) * time.Second,
	}
}

// startCounters restores persisted counters into the manager, starts the
// persister and only then attaches the manager as the cloud call
// recorder, so calls made during discovery are persisted too.
func startCounters(
	ctx context.Context,
	manager *g32.Manager,
	cloudClient *cloud.Client,
	repo diagnostics.Repository,
	counters []g32.CounterValue,
	log *logging.Logger,
) (*diagnostics.Persister, error) {
	if err := manager.LoadCounters(ctx, counterSnapshot(counters)); err != nil {
		return nil, fmt.Errorf("restoring diagnostic counters: %w", err)
	}

	persister := diagnostics.NewPersister(repo, diagnostics.DefaultFlushInterval, counters)
	persister.SetLogger(log.Component("diagnostics"))
	persister.Start(ctx, manager)

	cloudClient.SetRecorder(manager)
	return persister, nil
}

// counterSnapshot is a g32.CounterLoader over values already read.
type counterSnapshot []g32.CounterValue

func (c counterSnapshot) LoadCounters(context.Context) ([]g32.CounterValue, error) {
	return c, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
