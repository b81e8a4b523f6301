package pantilt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/wormbot-core/internal/hardware"
)

// StepObserver is notified of every pulse written to a channel,
// including each intermediate step of a walk.
type StepObserver interface {
	OnPulse(axis string, pulse int)
}

// StepObserverFunc adapts a function to StepObserver.
type StepObserverFunc func(axis string, pulse int)

// OnPulse calls f(axis, pulse).
func (f StepObserverFunc) OnPulse(axis string, pulse int) { f(axis, pulse) }

// Sleeper waits d between walk steps. It returns early with ctx.Err()
// when ctx is cancelled.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ChannelConfig describes one PWM axis.
type ChannelConfig struct {
	Axis      string
	Pin       int
	Start     int
	Min       int
	Max       int
	StepDelay time.Duration
}

// Channel is one servo axis. It moves toward a target pulse one
// microsecond per step, writing every step to the driver.
//
// Thread Safety:
//   - Pulse may be read from any goroutine during a walk.
//   - Motion and bound changes are driven by the owning Controller.
type Channel struct {
	axis   string
	pin    int
	driver hardware.Driver

	current  atomic.Int64
	released atomic.Bool

	mu        sync.RWMutex
	min, max  int
	stepDelay time.Duration

	sleep    Sleeper
	observer StepObserver
	logger   Logger
}

// NewChannel creates a channel positioned at cfg.Start. Nothing is
// written to the driver until Set or MoveTo.
func NewChannel(driver hardware.Driver, cfg ChannelConfig) (*Channel, error) {
	if cfg.Min > cfg.Max {
		return nil, fmt.Errorf("%w: %s [%d, %d]", ErrInvalidBounds, cfg.Axis, cfg.Min, cfg.Max)
	}
	if cfg.Start < cfg.Min || cfg.Start > cfg.Max {
		return nil, &PulseError{Axis: cfg.Axis, Pulse: cfg.Start, Min: cfg.Min, Max: cfg.Max}
	}

	c := &Channel{
		axis:      cfg.Axis,
		pin:       cfg.Pin,
		driver:    driver,
		min:       cfg.Min,
		max:       cfg.Max,
		stepDelay: cfg.StepDelay,
		sleep:     sleepContext,
		logger:    noopLogger{},
	}
	c.current.Store(int64(cfg.Start))
	return c, nil
}

// Axis returns the channel label.
func (c *Channel) Axis() string { return c.axis }

// Pin returns the hardware channel number.
func (c *Channel) Pin() int { return c.pin }

// Pulse returns the last pulse written (or the start pulse).
func (c *Channel) Pulse() int { return int(c.current.Load()) }

// Released reports whether the output is switched off.
func (c *Channel) Released() bool { return c.released.Load() }

// Bounds returns the current [min, max].
func (c *Channel) Bounds() (lo, hi int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.min, c.max
}

// SetBounds replaces the allowed pulse range.
func (c *Channel) SetBounds(lo, hi int) error {
	if lo > hi {
		return fmt.Errorf("%w: %s [%d, %d]", ErrInvalidBounds, c.axis, lo, hi)
	}
	c.mu.Lock()
	c.min, c.max = lo, hi
	c.mu.Unlock()
	return nil
}

// StepDelay returns the pause between unit steps.
func (c *Channel) StepDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stepDelay
}

// SetStepDelay replaces the pause between unit steps.
func (c *Channel) SetStepDelay(d time.Duration) {
	c.mu.Lock()
	c.stepDelay = d
	c.mu.Unlock()
}

func (c *Channel) checkBounds(pulse int) error {
	lo, hi := c.Bounds()
	if pulse < lo || pulse > hi {
		err := &PulseError{Axis: c.axis, Pulse: pulse, Min: lo, Max: hi}
		c.logger.Warn("pulse out of bounds", "axis", c.axis, "pulse", pulse, "min", lo, "max", hi)
		return err
	}
	return nil
}

// write sends pulse to the driver and publishes it on success.
func (c *Channel) write(pulse int) error {
	if err := c.driver.SetPulse(c.pin, pulse); err != nil {
		return fmt.Errorf("%w: %s pin %d pulse %d: %w", ErrDriver, c.axis, c.pin, pulse, err)
	}
	c.current.Store(int64(pulse))
	c.released.Store(false)
	if c.observer != nil {
		c.observer.OnPulse(c.axis, pulse)
	}
	return nil
}

// Set writes pulse directly, without a walk.
func (c *Channel) Set(pulse int) error {
	if err := c.checkBounds(pulse); err != nil {
		return err
	}
	return c.write(pulse)
}

// MoveTo walks the output from its current pulse to target, one unit
// per step, pausing StepDelay between steps. Every intermediate value is
// written exactly once, in order.
//
// The walk starts from the pulse the driver reports for the pin.
//
// Returns:
//   - *PulseError (ErrOutOfBounds): target outside bounds, nothing written
//   - ErrMotionCancelled: ctx cancelled; Pulse() holds the last value written
//   - ErrDriver: the output could not be read, or a write failed;
//     Pulse() holds the last value accepted
func (c *Channel) MoveTo(ctx context.Context, target int) error {
	if err := c.checkBounds(target); err != nil {
		return err
	}

	from, err := c.position()
	if err != nil {
		return err
	}
	if from == target {
		return nil
	}
	step := 1
	if target < from {
		step = -1
	}
	delay := c.StepDelay()

	c.logger.Debug("walk started", "axis", c.axis, "from", from, "to", target)

	for p := from + step; ; p += step {
		if err := ctx.Err(); err != nil {
			return c.cancelled(err)
		}
		if err := c.write(p); err != nil {
			return err
		}
		if p == target {
			return nil
		}
		if err := c.sleep(ctx, delay); err != nil {
			return c.cancelled(err)
		}
	}
}

// position returns the pulse a walk starts from. The driver is asked
// first, since the output may have been moved outside this channel; a
// released or never-driven output falls back to the last pulse written.
func (c *Channel) position() (int, error) {
	p, err := c.driver.Pulse(c.pin)
	if err != nil {
		return 0, fmt.Errorf("%w: reading %s pin %d: %w", ErrDriver, c.axis, c.pin, err)
	}
	last := c.Pulse()
	if p == hardware.PulseOff || p == last {
		return last, nil
	}
	c.logger.Debug("output moved outside controller", "axis", c.axis, "expected", last, "actual", p)
	c.current.Store(int64(p))
	return p, nil
}

func (c *Channel) cancelled(cause error) error {
	at := c.Pulse()
	c.logger.Info("walk cancelled", "axis", c.axis, "pulse", at)
	return fmt.Errorf("%w: %s stopped at %d: %w", ErrMotionCancelled, c.axis, at, cause)
}

// Release switches the output off. The logical position is kept so a
// later move starts from where the servo was left.
func (c *Channel) Release() error {
	if err := c.driver.SetPulse(c.pin, hardware.PulseOff); err != nil {
		return fmt.Errorf("%w: releasing %s pin %d: %w", ErrDriver, c.axis, c.pin, err)
	}
	c.released.Store(true)
	if c.observer != nil {
		c.observer.OnPulse(c.axis, hardware.PulseOff)
	}
	return nil
}
