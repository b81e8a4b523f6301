package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/wormbot-core/internal/infrastructure/config"
)

// Driver is the vendor side of a camera: something that returns one
// encoded still per call.
type Driver interface {
	Capture(ctx context.Context) ([]byte, error)
	Close() error
}

// Open returns the driver selected by cfg.Backend.
func Open(cfg config.CameraConfig) (Driver, error) {
	switch cfg.Backend {
	case config.CameraBackendCommand:
		return NewCommandDriver(CommandConfig{
			Binary: cfg.Command,
			Width:  cfg.Width,
			Height: cfg.Height,
		})
	case config.CameraBackendSim:
		return NewSimDriver(cfg.Width, cfg.Height)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrUnavailable, cfg.Backend)
	}
}

// defaultCaptureTimeout bounds one still capture.
const defaultCaptureTimeout = 10 * time.Second

// CommandConfig configures a still-capture executable such as
// libcamera-still or rpicam-still.
type CommandConfig struct {
	Binary  string
	Width   int
	Height  int
	Timeout time.Duration
}

// CommandDriver captures by running a still-capture executable that
// writes a JPEG to stdout.
type CommandDriver struct {
	path    string
	args    []string
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewCommandDriver resolves cfg.Binary on PATH. A missing binary returns
// ErrUnavailable.
func NewCommandDriver(cfg CommandConfig) (*CommandDriver, error) {
	path, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, cfg.Binary, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCaptureTimeout
	}
	return &CommandDriver{
		path:    path,
		args:    commandArgs(cfg.Width, cfg.Height),
		timeout: cfg.Timeout,
	}, nil
}

// commandArgs builds libcamera-still style arguments: no preview,
// capture immediately, JPEG to stdout.
func commandArgs(width, height int) []string {
	args := []string{"--nopreview", "--immediate", "--encoding", "jpg"}
	if width > 0 && height > 0 {
		args = append(args, "--width", strconv.Itoa(width), "--height", strconv.Itoa(height))
	}
	return append(args, "--output", "-")
}

// Capture implements Driver.
func (d *CommandDriver) Capture(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.path, d.args...) //nolint:gosec // Binary comes from operator configuration
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[len(msg)-200:]
		}
		return nil, fmt.Errorf("%w: %s: %w (%s)", ErrCaptureFailed, d.path, err, msg)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: %s wrote no image", ErrCaptureFailed, d.path)
	}
	return stdout.Bytes(), nil
}

// Close implements Driver.
func (d *CommandDriver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// SimDriver returns the same generated JPEG on every capture.
type SimDriver struct {
	frame []byte

	mu     sync.Mutex
	closed bool
	shots  int
}

// NewSimDriver renders a width x height test frame.
func NewSimDriver(width, height int) (*SimDriver, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid resolution %dx%d", ErrUnavailable, width, height)
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)}) //nolint:gosec // Diagonal gradient wraps at 256
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("encoding test frame: %w", err)
	}
	return &SimDriver{frame: buf.Bytes()}, nil
}

// Capture implements Driver.
func (d *SimDriver) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	d.shots++
	return bytes.Clone(d.frame), nil
}

// Shots returns the number of captures taken.
func (d *SimDriver) Shots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shots
}

// Close implements Driver.
func (d *SimDriver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
