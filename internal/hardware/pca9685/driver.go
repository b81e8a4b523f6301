// Package pca9685 drives servos on a PCA9685 16-channel I2C PWM board
// through periph.io.
package pca9685

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/pca9685"
	"periph.io/x/host/v3"

	"github.com/nerrad567/wormbot-core/internal/hardware"
)

const (
	// Channels is the number of outputs on one board.
	Channels = 16

	// servoFrequency gives a 20ms period.
	servoFrequency = 50 * physic.Hertz
	periodMicros   = 20000

	// counterSteps is the PCA9685 12-bit counter resolution per period.
	counterSteps = 4096
)

// pwmDevice is the subset of *pca9685.Dev the driver uses.
type pwmDevice interface {
	SetPwm(channel int, on, off gpio.Duty) error
}

// Config selects the I2C bus and board address.
type Config struct {
	// Bus is a periph.io bus name such as "I2C1" or "/dev/i2c-1".
	// Empty opens the first available bus.
	Bus string

	// Address is the 7-bit board address, usually 0x40.
	Address uint16
}

// Driver is a hardware.Driver for one PCA9685 board.
//
// The board cannot report the pulse it outputs, so Pulse returns the
// last value written by this driver.
type Driver struct {
	dev    pwmDevice
	bus    i2c.BusCloser
	mu     sync.Mutex
	pulses [Channels]int
	closed bool
}

// Open initialises periph.io host drivers, opens the bus and sets the
// board to servo frequency.
func Open(cfg Config) (*Driver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: periph host init: %w", hardware.ErrConnectionRefused, err)
	}

	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("%w: opening i2c bus %q: %w", hardware.ErrConnectionRefused, cfg.Bus, err)
	}

	dev, err := pca9685.NewI2C(bus, cfg.Address)
	if err != nil {
		bus.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: pca9685 at 0x%02x: %w", hardware.ErrConnectionRefused, cfg.Address, err)
	}
	if err := dev.SetPwmFreq(servoFrequency); err != nil {
		bus.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: setting pwm frequency: %w", hardware.ErrConnectionRefused, err)
	}

	d := newDriver(dev)
	d.bus = bus
	return d, nil
}

func newDriver(dev pwmDevice) *Driver {
	return &Driver{dev: dev}
}

// Connector returns a hardware.Connector opening cfg.
func Connector(cfg Config) hardware.Connector {
	return hardware.ConnectorFunc(func(context.Context) (hardware.Driver, error) {
		return Open(cfg)
	})
}

// offCount converts a pulse width to the counter value at which the
// output goes low, rounding to the nearest step.
func offCount(pulse int) gpio.Duty {
	return gpio.Duty((pulse*counterSteps + periodMicros/2) / periodMicros)
}

// SetPulse implements hardware.Driver.
func (d *Driver) SetPulse(channel, pulse int) error {
	if channel < 0 || channel >= Channels {
		return fmt.Errorf("%w: pca9685 channel %d", hardware.ErrInvalidChannel, channel)
	}
	if err := hardware.ValidatePulse(pulse); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return hardware.ErrClosed
	}
	if err := d.dev.SetPwm(channel, 0, offCount(pulse)); err != nil {
		return fmt.Errorf("%w: pca9685 channel %d: %w", hardware.ErrCommandFailed, channel, err)
	}
	d.pulses[channel] = pulse
	return nil
}

// Pulse implements hardware.Driver.
func (d *Driver) Pulse(channel int) (int, error) {
	if channel < 0 || channel >= Channels {
		return 0, fmt.Errorf("%w: pca9685 channel %d", hardware.ErrInvalidChannel, channel)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, hardware.ErrClosed
	}
	return d.pulses[channel], nil
}

// Close releases the I2C bus.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.bus != nil {
		return d.bus.Close()
	}
	return nil
}
