// Gray Logic Mini-Split Bridge
//
// This is the main entry point for the mini-split bridge. It drives one
// Tuya-protocol heat pump (Pioneer WYT and compatibles) over the LAN and
// exposes it through:
//   - an HTTP API with a WebSocket status stream
//   - MQTT command/ack/state topics (optional)
//   - InfluxDB climate samples (optional)
//   - a SQLite command log (optional)
//
// Run without a subcommand to serve; see --help for the one-shot commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-minisplit/internal/api"
	"github.com/nerrad567/gray-logic-minisplit/internal/audit"
	"github.com/nerrad567/gray-logic-minisplit/internal/bridges/tuya"
	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-minisplit/internal/tuyalink"
	"github.com/nerrad567/gray-logic-minisplit/migrations"
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
	// Cancel on Ctrl+C and SIGTERM so every command shuts down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds flags shared by every command.
type options struct {
	configPath string
}

// newRootCmd builds the command tree. The root command serves.
func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "minisplit",
		Short: "Local bridge for a Tuya mini-split heat pump",
		Long: `minisplit controls a Tuya-protocol mini-split over the LAN.

Without a subcommand it serves the HTTP API and, when enabled, the MQTT
bridge, InfluxDB telemetry and the command log.

Device credentials come from the config file or TUYA_DEVICE_ID,
TUYA_DEVICE_IP and TUYA_LOCAL_KEY. The API token comes from BRIDGE_TOKEN.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (default $MINISPLIT_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(
		newServeCmd(opts),
		newStatusCmd(opts),
		newSendCmd(opts),
		newRawCmd(opts),
		newDatapointsCmd(opts),
		newDBCmd(opts),
	)
	return root
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MQTT bridge (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
}

// getConfigPath returns the configuration file path and whether it was
// chosen explicitly. Precedence: --config, MINISPLIT_CONFIG, default.
func (o *options) getConfigPath() (string, bool) {
	if o.configPath != "" {
		return o.configPath, true
	}
	if path := os.Getenv("MINISPLIT_CONFIG"); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// loadConfig loads the configuration. A missing default file is allowed so
// the bridge can run from environment variables alone.
func (o *options) loadConfig() (*config.Config, string, error) {
	path, explicit := o.getConfigPath()
	cfg, err := config.Load(path, !explicit)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

// run is the serve logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Shared command flags
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, opts *options) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting mini-split bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, configPath, err := opts.loadConfig()
	if err != nil {
		return err
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the command log (optional)
	var db *database.DB
	var commands audit.Repository
	var recorder tuya.CommandRecorder
	if cfg.Database.Enabled {
		db, err = openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("command log ready", "path", cfg.Database.Path)

		repo := audit.NewSQLiteRepository(db.DB)
		commands = repo
		recorder = audit.NewRecorder(repo)
	} else {
		log.Info("command log disabled")
	}

	dev, err := newDevice(cfg, log, recorder)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing device session")
		if closeErr := dev.manager.Close(); closeErr != nil {
			log.Error("error closing device session", "error", closeErr)
		}
	}()
	log.Info("device configured",
		"device", cfg.Device.String(),
		"temp_unit", dev.service.DisplayUnit(),
		"datapoints", dev.service.Table().Len(),
	)
	connectDevice(ctx, dev, log)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var metrics tuya.MetricsWriter
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		metrics = &climateMetrics{client: influxClient, unit: string(dev.service.DisplayUnit())}
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT and start the bridge (optional)
	var mqttClient *mqtt.Client
	var mqttStatus api.MQTTStatus
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		mqttStatus = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		bridge, bridgeErr := startBridge(ctx, cfg, dev.service, mqttClient, metrics, log)
		if bridgeErr != nil {
			return bridgeErr
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			bridge.Stop()
		}()
	} else {
		log.Info("MQTT bridge disabled")
		if metrics != nil {
			// Without the bridge's poll loop, samples follow status changes.
			dev.service.OnStatus(func(st tuya.CanonicalStatus) {
				metrics.WriteClimate(cfg.Device.ID, st)
			})
		}
	}

	// Start the HTTP API
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Service:  dev.service,
		Commands: commands,
		MQTT:     mqttStatus,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if st := dev.service.QueryStatus(ctx, false); st.Online {
		log.Info("device reachable", "datapoints", len(st.RawDPs))
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. MQTT bridge and client (if enabled)
	// 3. InfluxDB (if enabled)
	// 4. Device session
	// 5. Database (if enabled)

	log.Info("mini-split bridge stopped")
	return nil
}

// device groups the connection manager and the service built on it.
type device struct {
	manager *tuya.ConnectionManager
	service *tuya.Service
}

// connectDevice opens the device session eagerly. The device may be offline
// at startup; the manager reconnects on the next request.
func connectDevice(ctx context.Context, dev *device, log *logging.Logger) bool {
	address := dev.service.Identity().Address
	if !dev.manager.Connect(ctx) {
		log.Warn("device unreachable at startup", "address", address)
		return false
	}
	log.Info("device connected", "address", address)
	return true
}

// newDevice builds the device stack from configuration.
func newDevice(cfg *config.Config, log *logging.Logger, recorder tuya.CommandRecorder) (*device, error) {
	table := tuya.DefaultTable()
	if cfg.Bridge.DatapointsFile != "" {
		t, err := tuya.LoadTable(cfg.Bridge.DatapointsFile)
		if err != nil {
			return nil, fmt.Errorf("loading datapoint table: %w", err)
		}
		table = t
	}

	unit, err := tuya.ParseTemperatureUnit(cfg.Bridge.TempUnit)
	if err != nil {
		return nil, fmt.Errorf("parsing temp unit: %w", err)
	}

	link := tuyalink.New(tuyalink.Config{
		Port:           cfg.Device.Port,
		ConnectTimeout: cfg.Device.ConnectTimeout,
		IOTimeout:      cfg.Device.IOTimeout,
	})
	link.SetLogger(log)

	manager := tuya.NewConnectionManager(tuya.ManagerOptions{
		Link: link,
		Identity: tuya.Identity{
			DeviceID:        cfg.Device.ID,
			Address:         cfg.Device.Address,
			LocalKey:        cfg.Device.LocalKey,
			ProtocolVersion: cfg.Device.ProtocolVersion,
		},
		TTL:    cfg.Bridge.CacheTTL,
		Logger: log,
	})

	// Zero in the file means no settle wait; the service reads zero as default.
	settle := cfg.Bridge.SettleDelay
	if settle == 0 {
		settle = -1
	}

	service := tuya.NewService(tuya.ServiceOptions{
		Manager:     manager,
		Table:       table,
		DisplayUnit: unit,
		SettleDelay: settle,
		Recorder:    recorder,
		Logger:      log,
	})

	return &device{manager: manager, service: service}, nil
}

// openDatabase opens the command log and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(database.ConfigFrom(cfg.Database, migrations.FS))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// startBridge creates and starts the MQTT bridge for the device.
func startBridge(ctx context.Context, cfg *config.Config, service *tuya.Service, client *mqtt.Client, metrics tuya.MetricsWriter, log *logging.Logger) (*tuya.Bridge, error) {
	bridge, err := tuya.NewBridge(tuya.BridgeOptions{
		ID:             cfg.Bridge.ID,
		Service:        service,
		MQTTClient:     client,
		Topics:         client.Topics(),
		Metrics:        metrics,
		PollInterval:   cfg.Bridge.PollInterval,
		HealthInterval: cfg.Bridge.HealthInterval,
		Version:        version,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}

	if err := bridge.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}
	log.Info("MQTT bridge started",
		"bridge_id", bridge.ID(),
		"command_topic", client.Topics().Command(tuya.ProtocolName, bridge.ID()),
	)
	return bridge, nil
}

// healthCheck verifies the enabled infrastructure connections are healthy.
// Nil clients are the ones disabled in configuration.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check (may be nil)
//   - mqttClient: MQTT client to check (may be nil)
//   - influxClient: InfluxDB client to check (may be nil)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// The device is not checked here: it may legitimately be powered off.
	return nil
}
