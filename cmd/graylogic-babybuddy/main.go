// Gray Logic Baby Buddy bridge.
//
// This is the main entry point of the bridge. It polls one or more Baby Buddy
// servers, mirrors each child as a device, publishes the latest records on
// the Gray Logic MQTT bus, writes numeric fields to InfluxDB and serves the
// HTTP/WebSocket API.
//
// Commands:
//
//	graylogic-babybuddy [--config path]          run the bridge (default)
//	graylogic-babybuddy token --subject core     print an API bearer token
//	graylogic-babybuddy version
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-babybuddy/internal/api"
	"github.com/nerrad567/gray-logic-babybuddy/internal/audit"
	"github.com/nerrad567/gray-logic-babybuddy/internal/bridge"
	"github.com/nerrad567/gray-logic-babybuddy/internal/device"
	"github.com/nerrad567/gray-logic-babybuddy/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-babybuddy/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-babybuddy/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-babybuddy/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-babybuddy/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-babybuddy/internal/integration"
	"github.com/nerrad567/gray-logic-babybuddy/migrations"
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

// defaultTokenTTL is the validity of tokens printed by the token command.
const defaultTokenTTL = 365 * 24 * time.Hour

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root command starts the bridge.
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "graylogic-babybuddy",
		Short:         "Bridge Baby Buddy servers onto the Gray Logic bus",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to config.yaml (default $GRAYLOGIC_CONFIG or "+defaultConfigPath+")")

	rootCmd.AddCommand(
		newTokenCmd(&configPath),
		newVersionCmd(),
	)
	return rootCmd
}

// newTokenCmd prints a bearer token for the protected API routes.
func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print an API bearer token signed with security.jwt.secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigPath(*configPath))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			token, err := api.IssueToken(cfg.Security.JWT.Secret, subject, ttl)
			if err != nil {
				return fmt.Errorf("issuing token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "core", "token subject (who the token is for)")
	cmd.Flags().DurationVar(&ttl, "ttl", defaultTokenTTL, "token validity; 0 never expires")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s (commit %s, built %s)\n", version, commit, date)
			return err
		},
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Baby Buddy bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "entries", len(cfg.BabyBuddy.Entries))

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, cfg.Database)
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

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)

	// Initialise device registry
	deviceRegistry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	deviceRegistry.SetLogger(log.Component("device"))
	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.GetDeviceCount())

	// Service call log, written in the background
	callLog := audit.NewRecorder(audit.NewSQLiteRepository(db.DB), log.Component("audit"))
	callLog.Start(ctx)
	defer func() {
		log.Info("flushing service call log")
		callLog.Stop()
	}()

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
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Integration host: one coordinator per configured entry
	host := integration.NewHost(integration.HostConfig{
		Devices:  deviceRegistry,
		Location: cfg.Site.Location(),
		Logger:   log.Component("babybuddy"),
	})
	defer func() {
		log.Info("unloading Baby Buddy entries")
		host.Close()
	}()

	// MQTT bridge: state publishing, command topics, health
	health := bridge.NewHealthReporter(bridge.HealthReporterConfig{
		Version:   version,
		Publisher: mqttClient,
		Statuses:  host,
		Devices:   deviceRegistry,
	})
	health.SetLogger(log.Component("health"))

	mqttBridge := bridge.New(bridge.Config{
		MQTT:     mqttClient,
		Services: host,
		Devices:  deviceRegistry,
		Health:   health,
		Audit:    callLog,
		Logger:   log.Component("bridge"),
	})
	host.AddListener(mqttBridge.PublishSnapshot)

	if influxClient != nil {
		host.AddListener(bridge.NewTelemetry(influxClient).Write)
	}

	if startErr := mqttBridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting MQTT bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping MQTT bridge")
		mqttBridge.Stop()
	}()

	// HTTP API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log.Component("api"),
			Host:     host,
			Registry: deviceRegistry,
			Audit:    callLog,
			MQTT:     mqttClient,
			Bridge:   mqttBridge,
			DB:       db.DB,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))
	} else {
		log.Info("API server disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Set up entries last so the first snapshots reach every listener
	setup := newEntrySetup(host, log)
	setup.Start(ctx, cfg.BabyBuddy.Entries)
	defer setup.Wait()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// entry setup, API, bridge, entries, InfluxDB, MQTT, call log, database

	log.Info("Gray Logic Baby Buddy bridge stopped")
	return nil
}

// resolveConfigPath returns the configuration file path.
// The --config flag wins, then GRAYLOGIC_CONFIG, then the default.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
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
//   - error: All health check failures joined, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	var errs []error

	if err := db.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("mqtt: %w", err))
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("influxdb: %w", err))
		}
	}

	return errors.Join(errs...)
}
