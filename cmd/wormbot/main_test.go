package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/wormbot-core/internal/hardware"
	"github.com/nerrad567/wormbot-core/internal/infrastructure/config"
	"github.com/nerrad567/wormbot-core/internal/infrastructure/database"
	"github.com/nerrad567/wormbot-core/internal/infrastructure/logging"
	"github.com/nerrad567/wormbot-core/internal/periphery"
)

// testPaths holds the files a simulated boot reads and writes.
type testPaths struct {
	config string
	params string
	backup string
	db     string
}

// writeSimConfig writes a sim-backend config into a temp dir and points
// WORMBOT_CONFIG at it.
func writeSimConfig(t *testing.T) testPaths {
	t.Helper()
	dir := t.TempDir()
	p := testPaths{
		config: filepath.Join(dir, "config.yaml"),
		params: filepath.Join(dir, "default.config"),
		backup: filepath.Join(dir, "backup.config"),
		db:     filepath.Join(dir, "data", "wormbot.db"),
	}

	content := fmt.Sprintf(`
site:
  id: test-site

database:
  enabled: true
  path: %q
  wal_mode: true
  busy_timeout: 5

logging:
  level: debug
  format: text
  output: stdout

hardware:
  backend: sim

pantilt:
  speed: 0

camera:
  backend: sim
  width: 32
  height: 24
  capture_dir: %q

periphery:
  config_path: %q
  backup_path: %q
`, p.db, filepath.Join(dir, "captures"), p.params, p.backup)

	if err := os.WriteFile(p.config, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("WORMBOT_CONFIG", p.config)
	return p
}

func runFor(t *testing.T, d time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return run(ctx)
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("WORMBOT_CONFIG", "/nonexistent/path/config.yaml")

	if err := runFor(t, 5*time.Second); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_SimBoot(t *testing.T) {
	p := writeSimConfig(t)
	if err := os.WriteFile(p.params, []byte(`[
["pantilt", "max_pan", 2400],
["camera", "iso", 100]
]`), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := runFor(t, time.Second); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	backup, err := periphery.LoadEntries(p.backup)
	if err != nil {
		t.Fatalf("backup not written: %v", err)
	}
	found := false
	for _, e := range backup {
		if e.Periphery == "pantilt" && e.Parameter == "max_pan" {
			found = true
			if e.Value != 2450 {
				t.Errorf("backup max_pan = %v, want the pre-apply value 2450", e.Value)
			}
		}
	}
	if !found {
		t.Errorf("backup has no pantilt.max_pan: %+v", backup)
	}

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: p.db, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	records, err := periphery.NewSQLiteHistory(db.DB).Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 1 || records[0].Outcome != periphery.OutcomeApplied {
		t.Errorf("history = %+v, want one applied record", records)
	}
}

func TestRun_MissingDefaultConfigContinues(t *testing.T) {
	writeSimConfig(t)

	if err := runFor(t, time.Second); err != nil {
		t.Fatalf("run() error = %v, want boot to continue without a default parameter file", err)
	}
}

func TestRun_RejectedParametersRollBack(t *testing.T) {
	p := writeSimConfig(t)
	if err := os.WriteFile(p.params, []byte(`[["pantilt", "speed", 5]]`), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := runFor(t, time.Second); err != nil {
		t.Fatalf("run() error = %v, want a rolled-back apply to be non-fatal", err)
	}
}

func TestRun_InconsistentIsFatal(t *testing.T) {
	p := writeSimConfig(t)
	// Booting straight from a bad backup leaves nothing to roll back to.
	t.Setenv("WORMBOT_PERIPHERY_CONFIG", p.backup)
	if err := os.WriteFile(p.backup, []byte(`[["pantilt", "min_pan", 100]]`), 0o600); err != nil {
		t.Fatal(err)
	}

	err := runFor(t, 5*time.Second)
	if !errors.Is(err, periphery.ErrInconsistentState) {
		t.Fatalf("run() error = %v, want ErrInconsistentState", err)
	}
}

func TestRun_HardwareUnavailable(t *testing.T) {
	writeSimConfig(t)
	t.Setenv("WORMBOT_HARDWARE_BACKEND", config.BackendPigpiod)
	t.Setenv("WORMBOT_PIGPIOD_HOST", "127.0.0.1")
	t.Setenv("WORMBOT_PIGPIOD_PORT", "1")

	err := runFor(t, 10*time.Second)
	if !errors.Is(err, periphery.ErrInitialization) {
		t.Fatalf("run() error = %v, want ErrInitialization", err)
	}
	if !errors.Is(err, hardware.ErrConnectionRefused) {
		t.Errorf("run() error = %v, want ErrConnectionRefused cause", err)
	}
}

func TestReportLastApply(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "wormbot.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	history := periphery.NewSQLiteHistory(db.DB)

	var buf bytes.Buffer
	log := &logging.Logger{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	reportLastApply(ctx, history, log)
	if buf.Len() != 0 {
		t.Errorf("empty history logged %q", buf.String())
	}

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, outcome := range []periphery.Outcome{periphery.OutcomeApplied, periphery.OutcomeInconsistent} {
		rec := &periphery.ApplyRecord{
			ConfigPath: "tuning.config",
			Outcome:    outcome,
			State:      periphery.StateInconsistent,
			StartedAt:  at,
			FinishedAt: at,
		}
		if err := history.RecordApply(ctx, rec); err != nil {
			t.Fatalf("RecordApply() error = %v", err)
		}
		at = at.Add(time.Second)
	}

	reportLastApply(ctx, history, log)
	out := buf.String()
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, `"outcome":"inconsistent"`) {
		t.Errorf("expected a warning for the inconsistent apply, got %s", out)
	}
}

func TestOpenCamera_Degrades(t *testing.T) {
	log := logging.Default()
	cfg := config.Default().Camera

	cfg.Backend = config.CameraBackendCommand
	cfg.Command = "wormbot-no-such-still-binary"
	if cam := openCamera(cfg, log); cam != nil {
		t.Error("openCamera() should return nil when the camera cannot be opened")
	}

	cfg.Enabled = false
	if cam := openCamera(cfg, log); cam != nil {
		t.Error("openCamera() should return nil when disabled")
	}

	cfg = config.Default().Camera
	if cam := openCamera(cfg, log); cam == nil {
		t.Error("openCamera(sim) returned nil")
	}
}

func TestHardwareConnector(t *testing.T) {
	cfg := config.Default()
	ctx := context.Background()

	drv, err := hardwareConnector(cfg.Hardware, cfg.PanTilt).Connect(ctx)
	if err != nil {
		t.Fatalf("sim Connect() error = %v", err)
	}
	if _, ok := drv.(*hardware.Sim); !ok {
		t.Errorf("sim backend returned %T", drv)
	}

	cfg.Hardware.Backend = "gpiozero"
	if _, err := hardwareConnector(cfg.Hardware, cfg.PanTilt).Connect(ctx); err == nil {
		t.Error("unknown backend should fail to connect")
	}

	// BCM 14/15 carry no hardware PWM.
	cfg.Hardware.Backend = config.BackendRPIO
	if _, err := hardwareConnector(cfg.Hardware, cfg.PanTilt).Connect(ctx); err == nil {
		t.Error("rpio backend should reject non-PWM pins")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("WORMBOT_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
	t.Setenv("WORMBOT_CONFIG", "/etc/wormbot/config.yaml")
	if got := getConfigPath(); got != "/etc/wormbot/config.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}
