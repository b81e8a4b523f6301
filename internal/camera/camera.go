package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nerrad567/wormbot-core/internal/infrastructure/config"
	"github.com/nerrad567/wormbot-core/internal/periphery"
)

// Constant names.
const (
	ConstWidth  = "width"
	ConstHeight = "height"
)

const (
	captureDirPermissions  = 0o750
	captureFilePermissions = 0o640
	captureTimeLayout      = "20060102T150405.000Z"
)

// Logger is the logging interface used by the camera package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// CaptureObserver is notified after every successful capture.
type CaptureObserver interface {
	OnCapture(periphery string, size int, took time.Duration)
}

// Camera is a still camera periphery. It has no tunable parameters;
// its resolution is reported as constants.
type Camera struct {
	name       string
	driver     Driver
	width      int
	height     int
	captureDir string

	mu       sync.Mutex
	closed   bool
	logger   Logger
	observer CaptureObserver
	now      func() time.Time
}

var _ periphery.Periphery = (*Camera)(nil)

// New wraps driver as a periphery configured by cfg. The camera owns
// driver and closes it on Shutdown.
func New(driver Driver, cfg config.CameraConfig) *Camera {
	return &Camera{
		name:       cfg.Name,
		driver:     driver,
		width:      cfg.Width,
		height:     cfg.Height,
		captureDir: cfg.CaptureDir,
		logger:     noopLogger{},
		now:        time.Now,
	}
}

// SetLogger sets the camera logger.
func (c *Camera) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// SetObserver registers obs for capture events.
func (c *Camera) SetObserver(obs CaptureObserver) {
	c.mu.Lock()
	c.observer = obs
	c.mu.Unlock()
}

// Name implements periphery.Periphery.
func (c *Camera) Name() string { return c.name }

// Initialize implements periphery.Periphery. It prepares the capture
// directory.
func (c *Camera) Initialize(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.captureDir != "" {
		if err := os.MkdirAll(c.captureDir, captureDirPermissions); err != nil {
			return fmt.Errorf("creating capture directory: %w", err)
		}
	}
	c.logger.Debug("camera initialised", "periphery", c.name, "width", c.width, "height", c.height)
	return nil
}

// Shutdown implements periphery.Periphery by closing the driver.
// Further captures return ErrClosed.
func (c *Camera) Shutdown(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Debug("disconnecting camera", "periphery", c.name)
	return c.driver.Close()
}

// Parameters implements periphery.Periphery. The camera has none.
func (c *Camera) Parameters() map[string]float64 { return map[string]float64{} }

// SetParameter implements periphery.Periphery.
func (c *Camera) SetParameter(name string, _ float64) error {
	return fmt.Errorf("%w: %s.%s", periphery.ErrUnknownParameter, c.name, name)
}

// Constants implements periphery.Periphery.
func (c *Camera) Constants() map[string]float64 {
	return map[string]float64{
		ConstWidth:  float64(c.width),
		ConstHeight: float64(c.height),
	}
}

// Capture takes one still and returns the encoded image.
func (c *Camera) Capture(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture(ctx)
}

func (c *Camera) capture(ctx context.Context) ([]byte, error) {
	if c.closed {
		return nil, ErrClosed
	}
	start := c.now()
	img, err := c.driver.Capture(ctx)
	if err != nil {
		c.logger.Warn("capture failed", "periphery", c.name, "error", err)
		return nil, err
	}
	took := c.now().Sub(start)
	c.logger.Debug("captured", "periphery", c.name, "bytes", len(img), "took", took)
	if c.observer != nil {
		c.observer.OnCapture(c.name, len(img), took)
	}
	return img, nil
}

// CaptureToFile takes one still and writes it to path. An empty path
// writes a timestamped file into the capture directory. It returns the
// path written.
func (c *Camera) CaptureToFile(ctx context.Context, path string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	img, err := c.capture(ctx)
	if err != nil {
		return "", err
	}
	if path == "" {
		path = filepath.Join(c.captureDir, "capture-"+c.now().UTC().Format(captureTimeLayout)+".jpg")
	}
	if err := os.WriteFile(path, img, captureFilePermissions); err != nil {
		return "", fmt.Errorf("writing capture: %w", err)
	}
	c.logger.Info("capture saved", "periphery", c.name, "path", path)
	return path, nil
}
