// Wormbot Core - pan-tilt and camera controller
//
// This is the main entry point for the Wormbot Core application. It
// connects the PWM hardware, registers the pan-tilt mount and camera as
// peripheries, applies the default parameter file and holds the
// hardware until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/nerrad567/wormbot-core/migrations"

	"github.com/nerrad567/wormbot-core/internal/camera"
	"github.com/nerrad567/wormbot-core/internal/hardware"
	"github.com/nerrad567/wormbot-core/internal/hardware/gpiopwm"
	"github.com/nerrad567/wormbot-core/internal/hardware/pca9685"
	"github.com/nerrad567/wormbot-core/internal/hardware/pigpiod"
	"github.com/nerrad567/wormbot-core/internal/infrastructure/config"
	"github.com/nerrad567/wormbot-core/internal/infrastructure/database"
	"github.com/nerrad567/wormbot-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/wormbot-core/internal/infrastructure/logging"
	"github.com/nerrad567/wormbot-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/wormbot-core/internal/pantilt"
	"github.com/nerrad567/wormbot-core/internal/periphery"
	"github.com/nerrad567/wormbot-core/internal/process"
	"github.com/nerrad567/wormbot-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout bounds returning the mount to neutral on exit.
const shutdownTimeout = 30 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on shutdown signals
//
// Returns:
//   - error: nil on clean shutdown; wraps periphery.ErrInitialization or
//     periphery.ErrInconsistentState on fatal boot failures
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear boot sequence
	log := logging.Default()
	log.Info("starting Wormbot Core",
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
	defer log.Close() //nolint:errcheck // Nothing useful to do with a close error at exit
	log.Info("logger initialised", "level", cfg.Logging.Level, "format", cfg.Logging.Format, "output", cfg.Logging.Output)

	sinks := telemetry.Sinks{}

	// Apply history (optional)
	if cfg.Database.Enabled {
		db, dbErr := database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		history := periphery.NewSQLiteHistory(db.DB)
		reportLastApply(ctx, history, log)
		sinks.History = history
		log.Info("database connected", "path", cfg.Database.Path)
	} else {
		log.Info("database disabled, apply history not recorded")
	}

	// Telemetry (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		mqttClient.SetLogger(log)
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		sinks.MQTT = mqttClient
		log.Info("MQTT connected",
			"broker", net.JoinHostPort(cfg.MQTT.Broker.Host, strconv.Itoa(cfg.MQTT.Broker.Port)),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) { log.Error("InfluxDB write error", "error", err) })
		sinks.Influx = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	reporter := telemetry.New(cfg.PanTilt.Name, sinks)
	reporter.SetLogger(log)
	reporterCtx, stopReporter := context.WithCancel(context.WithoutCancel(ctx))
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		reporter.Run(reporterCtx)
	}()
	defer func() {
		stopReporter()
		<-reporterDone
	}()

	// GPIO daemon (if managed)
	if cfg.Hardware.Backend == config.BackendPigpiod && cfg.Hardware.Daemon.Managed {
		daemon, daemonErr := startDaemon(ctx, cfg, log)
		if daemonErr != nil {
			return fmt.Errorf("%w: starting pigpiod: %w", periphery.ErrInitialization, daemonErr)
		}
		defer func() {
			log.Info("stopping pigpiod")
			if stopErr := daemon.Stop(); stopErr != nil {
				log.Error("error stopping pigpiod", "error", stopErr)
			}
		}()
	}

	// Hardware
	driver, err := hardwareConnector(cfg.Hardware, cfg.PanTilt).Connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: connecting %s hardware: %w", periphery.ErrInitialization, cfg.Hardware.Backend, err)
	}
	defer func() {
		log.Info("closing hardware connection")
		if closeErr := driver.Close(); closeErr != nil {
			log.Error("error closing hardware", "error", closeErr)
		}
	}()
	log.Info("hardware connected", "backend", cfg.Hardware.Backend)

	// Peripheries
	registry := periphery.NewRegistry(cfg.Periphery.BackupPath)
	registry.SetLogger(log)
	registry.SetHistory(reporter)
	registry.SetStateObserver(reporter.OnRegistryState)

	if cfg.PanTilt.Enabled {
		mount, mountErr := pantilt.New(driver, cfg.PanTilt)
		if mountErr != nil {
			return fmt.Errorf("%w: pan-tilt: %w", periphery.ErrInitialization, mountErr)
		}
		mount.SetLogger(log.With("periphery", cfg.PanTilt.Name))
		mount.SetObserver(reporter)
		if regErr := registry.Register(mount); regErr != nil {
			return regErr
		}
	}

	if cam := openCamera(cfg.Camera, log); cam != nil {
		cam.SetObserver(reporter)
		if regErr := registry.Register(cam); regErr != nil {
			return regErr
		}
	}

	if err := registry.InitializeAll(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		log.Info("shutting down peripheries")
		if shutdownErr := registry.ShutdownAll(shutdownCtx); shutdownErr != nil {
			log.Error("error shutting down peripheries", "error", shutdownErr)
		}
	}()
	log.Info("peripheries initialised", "peripheries", registry.Names())

	if err := applyDefaultConfig(ctx, registry, cfg.Periphery.ConfigPath, log); err != nil {
		return err
	}

	log.Info("booting complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Peripheries back to neutral and released
	// 2. Hardware connection
	// 3. pigpiod (if managed)
	// 4. Telemetry reporter, InfluxDB, MQTT
	// 5. Database
	return nil
}

// reportLastApply logs the most recent apply recorded by an earlier run.
// One that ended inconsistent left parameters in an unknown state.
func reportLastApply(ctx context.Context, history *periphery.SQLiteHistory, log *logging.Logger) {
	recent, err := history.Recent(ctx, 1)
	if err != nil {
		log.Warn("cannot read apply history", "error", err)
		return
	}
	if len(recent) == 0 {
		return
	}
	last := recent[0]
	attrs := []any{
		"id", last.ID,
		"path", last.ConfigPath,
		"outcome", string(last.Outcome),
		"started_at", last.StartedAt,
	}
	if last.Outcome == periphery.OutcomeInconsistent {
		log.Warn("previous apply left peripheries inconsistent", attrs...)
		return
	}
	log.Info("previous apply", attrs...)
}

// getConfigPath returns the configuration file path.
// Uses WORMBOT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WORMBOT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func pigpiodAddress(cfg config.PigpiodConfig) string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// hardwareConnector selects the PWM backend.
func hardwareConnector(hw config.HardwareConfig, pt config.PanTiltConfig) hardware.Connector {
	switch hw.Backend {
	case config.BackendPigpiod:
		return pigpiod.Connector(pigpiod.Config{
			Address: pigpiodAddress(hw.Pigpiod),
			Timeout: hw.Pigpiod.ConnectTimeout,
		})
	case config.BackendPCA9685:
		return pca9685.Connector(pca9685.Config{Bus: hw.PCA9685.Bus, Address: hw.PCA9685.Address})
	case config.BackendRPIO:
		return gpiopwm.Connector([]int{pt.PanPin, pt.TiltPin})
	case config.BackendSim:
		return hardware.SimConnector(hardware.NewSim())
	default:
		return hardware.ConnectorFunc(func(context.Context) (hardware.Driver, error) {
			return nil, fmt.Errorf("unknown hardware backend %q", hw.Backend)
		})
	}
}

// startDaemon launches pigpiod under supervision and waits for its socket.
// The daemon outlives ctx so the mount can still be parked after a
// shutdown signal; it is stopped explicitly.
func startDaemon(ctx context.Context, cfg *config.Config, log *logging.Logger) (*process.Manager, error) {
	d := cfg.Hardware.Daemon
	addr := pigpiodAddress(cfg.Hardware.Pigpiod)

	manager := process.NewManager(process.Config{
		Name:               "pigpiod",
		Binary:             d.Binary,
		Args:               d.Args,
		ReadyCheck:         pigpiod.Probe(addr),
		StartupTimeout:     d.StartupDelay + cfg.Hardware.Pigpiod.ConnectTimeout,
		RestartOnFailure:   d.RestartOnFailure,
		MaxRestartAttempts: d.MaxRestartAttempts,
	})
	manager.SetLogger(log)

	log.Info("starting pigpiod", "binary", d.Binary, "address", addr)
	if err := manager.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	log.Info("pigpiod started", "pid", manager.PID())
	return manager, nil
}

// openCamera builds the camera periphery. A camera that cannot be opened
// is logged and left out; the rest of the robot still boots.
func openCamera(cfg config.CameraConfig, log *logging.Logger) *camera.Camera {
	if !cfg.Enabled {
		log.Info("camera disabled")
		return nil
	}
	drv, err := camera.Open(cfg)
	if err != nil {
		log.Error("failed to connect to camera, continuing without it", "backend", cfg.Backend, "error", err)
		return nil
	}
	cam := camera.New(drv, cfg)
	cam.SetLogger(log.With("periphery", cfg.Name))
	log.Info("camera connected", "backend", cfg.Backend)
	return cam
}

// applyDefaultConfig applies the boot parameter file. Only an
// inconsistent registry is fatal; a missing file keeps the built-in
// parameters.
func applyDefaultConfig(ctx context.Context, registry *periphery.Registry, path string, log *logging.Logger) error {
	err := registry.ReadConfig(ctx, path)
	switch {
	case err == nil:
		log.Info("default parameters applied", "path", path)
	case errors.Is(err, periphery.ErrInconsistentState):
		return fmt.Errorf("applying %s: %w", path, err)
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("no default parameter file, using built-in parameters", "path", path)
	default:
		log.Warn("default parameters not applied", "path", path, "error", err)
	}
	return nil
}
