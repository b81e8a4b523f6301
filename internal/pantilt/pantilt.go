package pantilt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/wormbot-core/internal/hardware"
	"github.com/nerrad567/wormbot-core/internal/infrastructure/config"
	"github.com/nerrad567/wormbot-core/internal/periphery"
)

// Angle ranges in degrees.
const (
	PanMinAngle  = -90.0
	PanMaxAngle  = 90.0
	TiltMinAngle = -25.0
	TiltMaxAngle = 35.0
)

// Axis labels.
const (
	AxisPan  = "pan"
	AxisTilt = "tilt"
)

// Parameter names.
const (
	ParamMinPan  = "min_pan"
	ParamMaxPan  = "max_pan"
	ParamMinTilt = "min_tilt"
	ParamMaxTilt = "max_tilt"
	ParamSpeed   = "speed"
)

// Constant names.
const (
	ConstPanPin  = "pan_pin"
	ConstTiltPin = "tilt_pin"
)

// maxSpeed is the slowest accepted step delay, in seconds.
const maxSpeed = 1.0

// Scale converts degrees to a pulse offset as an exact ratio, so that
// 45 degrees at 925 pulses per 90 degrees is exactly 462.5.
type Scale struct {
	Pulses  float64
	Degrees float64
}

// Offset returns the pulse offset for deg, rounded half to even.
func (s Scale) Offset(deg float64) int {
	return int(math.RoundToEven(deg * s.Pulses / s.Degrees))
}

var (
	panScale  = Scale{Pulses: 925, Degrees: 90}
	tiltScale = Scale{Pulses: 10, Degrees: 1}
)

// Controller drives a two-axis servo mount. It is a periphery.Periphery.
//
// Pan moves first, then tilt. Each axis walks one microsecond per step
// with the configured speed as the step delay, so a command blocks for
// the whole motion.
//
// Thread Safety:
//   - Commands and parameter changes are serialised.
//   - Channel pulses can be read concurrently via Pan().Pulse().
type Controller struct {
	name       string
	pan, tilt  *Channel
	panCenter  int
	tiltCenter int
	constants  map[string]float64
	logger     Logger
	mu         sync.Mutex
}

var (
	_ periphery.Periphery   = (*Controller)(nil)
	_ periphery.BatchSetter = (*Controller)(nil)
)

// New builds a controller on drv from the pantilt config section.
// No pulse is written until Initialize.
func New(drv hardware.Driver, cfg config.PanTiltConfig) (*Controller, error) {
	delay := cfg.StepDelay()

	pan, err := NewChannel(drv, ChannelConfig{
		Axis: AxisPan, Pin: cfg.PanPin, Start: cfg.PanNeutral,
		Min: cfg.MinPan, Max: cfg.MaxPan, StepDelay: delay,
	})
	if err != nil {
		return nil, err
	}
	tilt, err := NewChannel(drv, ChannelConfig{
		Axis: AxisTilt, Pin: cfg.TiltPin, Start: cfg.TiltNeutral,
		Min: cfg.MinTilt, Max: cfg.MaxTilt, StepDelay: delay,
	})
	if err != nil {
		return nil, err
	}

	return &Controller{
		name:       cfg.Name,
		pan:        pan,
		tilt:       tilt,
		panCenter:  cfg.PanNeutral,
		tiltCenter: cfg.TiltNeutral,
		constants: map[string]float64{
			ConstPanPin:  float64(cfg.PanPin),
			ConstTiltPin: float64(cfg.TiltPin),
		},
		logger: noopLogger{},
	}, nil
}

// SetLogger sets the logger for the controller and its channels.
func (c *Controller) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
	c.pan.logger = logger
	c.tilt.logger = logger
}

// SetObserver registers obs for every pulse written on either axis.
func (c *Controller) SetObserver(obs StepObserver) {
	c.pan.observer = obs
	c.tilt.observer = obs
}

// setSleeper replaces the inter-step wait on both channels.
func (c *Controller) setSleeper(s Sleeper) {
	c.pan.sleep = s
	c.tilt.sleep = s
}

// Pan returns the pan channel.
func (c *Controller) Pan() *Channel { return c.pan }

// Tilt returns the tilt channel.
func (c *Controller) Tilt() *Channel { return c.tilt }

// Name implements periphery.Periphery.
func (c *Controller) Name() string { return c.name }

// Pulses converts an angle pair to pulse targets. Angles are not
// range-checked here.
func (c *Controller) Pulses(panDeg, tiltDeg float64) (panPulse, tiltPulse int) {
	return c.panCenter + panScale.Offset(panDeg), c.tiltCenter - tiltScale.Offset(tiltDeg)
}

func checkAngle(axis string, deg, lo, hi float64) error {
	if math.IsNaN(deg) || deg < lo || deg > hi {
		return &AngleError{Axis: axis, Angle: deg, Min: lo, Max: hi}
	}
	return nil
}

// PanTilt moves the mount to the given angles in degrees.
//
// Both angles are checked before any motion; if either is out of range
// nothing moves and the *AngleError values are returned joined. An axis
// whose pulse target falls outside its bounds is skipped and its error
// returned, but the other axis still moves. Cancellation or a driver
// failure stops the command immediately.
func (c *Controller) PanTilt(ctx context.Context, panDeg, tiltDeg float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.panTilt(ctx, panDeg, tiltDeg)
}

func (c *Controller) panTilt(ctx context.Context, panDeg, tiltDeg float64) error {
	if err := errors.Join(
		checkAngle(AxisPan, panDeg, PanMinAngle, PanMaxAngle),
		checkAngle(AxisTilt, tiltDeg, TiltMinAngle, TiltMaxAngle),
	); err != nil {
		c.logger.Warn("angle command rejected", "pan", panDeg, "tilt", tiltDeg, "error", err)
		return err
	}

	panPulse, tiltPulse := c.Pulses(panDeg, tiltDeg)
	c.logger.Debug("moving", "pan", panDeg, "tilt", tiltDeg, "pan_pulse", panPulse, "tilt_pulse", tiltPulse)

	var errs []error
	for _, move := range []struct {
		ch     *Channel
		target int
	}{{c.pan, panPulse}, {c.tilt, tiltPulse}} {
		err := move.ch.MoveTo(ctx, move.target)
		if err == nil {
			continue
		}
		errs = append(errs, err)
		if !errors.Is(err, ErrOutOfBounds) {
			break
		}
	}
	return errors.Join(errs...)
}

// Initialize implements periphery.Periphery by setting both axes
// directly to neutral. If tilt cannot be set, pan is released again.
func (c *Controller) Initialize(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pan.Set(c.panCenter); err != nil {
		return err
	}
	if err := c.tilt.Set(c.tiltCenter); err != nil {
		return errors.Join(err, c.pan.Release())
	}
	c.logger.Info("pan-tilt initialised", "pan", c.panCenter, "tilt", c.tiltCenter)
	return nil
}

// Shutdown implements periphery.Periphery: walk back to (0, 0) and
// switch both outputs off. Outputs are released even if the walk fails.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	moveErr := c.panTilt(ctx, 0, 0)
	if moveErr != nil {
		c.logger.Warn("return to neutral failed", "error", moveErr)
	}
	err := errors.Join(moveErr, c.pan.Release(), c.tilt.Release())
	if err == nil {
		c.logger.Info("pan-tilt shut down")
	}
	return err
}

// Parameters implements periphery.Periphery.
func (c *Controller) Parameters() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	minPan, maxPan := c.pan.Bounds()
	minTilt, maxTilt := c.tilt.Bounds()
	return map[string]float64{
		ParamMinPan:  float64(minPan),
		ParamMaxPan:  float64(maxPan),
		ParamMinTilt: float64(minTilt),
		ParamMaxTilt: float64(maxTilt),
		ParamSpeed:   c.pan.StepDelay().Seconds(),
	}
}

// Constants implements periphery.Periphery.
func (c *Controller) Constants() map[string]float64 {
	out := make(map[string]float64, len(c.constants))
	for k, v := range c.constants {
		out[k] = v
	}
	return out
}

// SetParameter implements periphery.Periphery. It is SetParameters
// with a single entry.
func (c *Controller) SetParameter(name string, value float64) error {
	return c.SetParameters(map[string]float64{name: value})
}

// SetParameters implements periphery.BatchSetter.
//
// Pulse bounds must be whole microseconds inside the servo envelope and
// leave min <= max on their axis once the whole batch is applied, so a
// range can be moved past its old other end in one call. Speed is
// seconds per step in [0, 1]. Nothing changes unless every value is
// accepted.
func (c *Controller) SetParameters(params map[string]float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	minPan, maxPan := c.pan.Bounds()
	minTilt, maxTilt := c.tilt.Bounds()
	delay := c.pan.StepDelay()

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		value := params[name]

		if name == ParamSpeed {
			if math.IsNaN(value) || value < 0 || value > maxSpeed {
				return c.reject(name, value, fmt.Sprintf("speed must be within [0, %v]", maxSpeed))
			}
			delay = time.Duration(math.Round(value * float64(time.Second)))
			continue
		}

		var bound *int
		switch name {
		case ParamMinPan:
			bound = &minPan
		case ParamMaxPan:
			bound = &maxPan
		case ParamMinTilt:
			bound = &minTilt
		case ParamMaxTilt:
			bound = &maxTilt
		default:
			return fmt.Errorf("%w: %s.%s", periphery.ErrUnknownParameter, c.name, name)
		}
		if value != math.Trunc(value) || value < hardware.PulseMin || value > hardware.PulseMax {
			return c.reject(name, value,
				fmt.Sprintf("pulse must be a whole number within [%d, %d]", hardware.PulseMin, hardware.PulseMax))
		}
		*bound = int(value)
	}

	if minPan > maxPan {
		return c.rejectInverted(params, AxisPan, ParamMinPan, ParamMaxPan, minPan, maxPan)
	}
	if minTilt > maxTilt {
		return c.rejectInverted(params, AxisTilt, ParamMinTilt, ParamMaxTilt, minTilt, maxTilt)
	}

	if err := c.pan.SetBounds(minPan, maxPan); err != nil {
		return err
	}
	if err := c.tilt.SetBounds(minTilt, maxTilt); err != nil {
		return err
	}
	c.pan.SetStepDelay(delay)
	c.tilt.SetStepDelay(delay)
	return nil
}

func (c *Controller) reject(name string, value float64, reason string) error {
	c.logger.Warn("parameter rejected", "parameter", name, "value", value, "reason", reason)
	return &periphery.ParameterError{Periphery: c.name, Parameter: name, Value: value, Reason: reason}
}

// rejectInverted blames the bound the batch changed, preferring min.
func (c *Controller) rejectInverted(params map[string]float64, axis, minName, maxName string, lo, hi int) error {
	name := minName
	if _, ok := params[minName]; !ok {
		name = maxName
	}
	return c.reject(name, params[name], fmt.Sprintf("%s bounds would invert to [%d, %d]", axis, lo, hi))
}
