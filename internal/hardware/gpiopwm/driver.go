// Package gpiopwm drives servos from the Raspberry Pi hardware PWM
// peripheral through go-rpio, without a daemon.
//
// Only BCM pins 12, 13, 18 and 19 carry hardware PWM. Pins 12/18 share
// PWM channel 0 and pins 13/19 share channel 1, so at most one pin of
// each pair can be used.
package gpiopwm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/nerrad567/wormbot-core/internal/hardware"
)

const (
	// clockHz makes one PWM count equal one microsecond.
	clockHz = 1_000_000

	// cycleLen is the 20ms servo period in counts.
	cycleLen = 20000
)

// pwmChannel maps each hardware-PWM pin to its PWM channel.
var pwmChannel = map[int]int{12: 0, 18: 0, 13: 1, 19: 1}

// pinWriter sets a duty cycle on a BCM pin.
type pinWriter func(pin int, duty, cycle uint32)

// Driver is a hardware.Driver for hardware-PWM pins.
type Driver struct {
	write   pinWriter
	release func() error

	mu     sync.Mutex
	pulses map[int]int
	closed bool
}

// ValidatePins checks that pins are hardware-PWM capable and do not
// share a PWM channel.
func ValidatePins(pins []int) error {
	used := make(map[int]int)
	sorted := append([]int(nil), pins...)
	sort.Ints(sorted)
	for _, pin := range sorted {
		ch, ok := pwmChannel[pin]
		if !ok {
			return fmt.Errorf("%w: gpio %d has no hardware PWM", hardware.ErrInvalidChannel, pin)
		}
		if other, taken := used[ch]; taken && other != pin {
			return fmt.Errorf("%w: gpio %d and %d share PWM channel %d", hardware.ErrInvalidChannel, other, pin, ch)
		}
		used[ch] = pin
	}
	return nil
}

// Open maps GPIO memory and switches pins to PWM mode at servo frequency.
func Open(pins []int) (*Driver, error) {
	if err := ValidatePins(pins); err != nil {
		return nil, err
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("%w: opening gpio memory: %w", hardware.ErrConnectionRefused, err)
	}

	for _, n := range pins {
		pin := rpio.Pin(n)
		pin.Mode(rpio.Pwm)
		pin.Freq(clockHz)
	}

	return newDriver(func(pin int, duty, cycle uint32) {
		rpio.Pin(pin).DutyCycle(duty, cycle)
	}, pins, rpio.Close), nil
}

func newDriver(write pinWriter, pins []int, release func() error) *Driver {
	d := &Driver{write: write, release: release, pulses: make(map[int]int, len(pins))}
	for _, p := range pins {
		d.pulses[p] = hardware.PulseOff
	}
	return d
}

// Connector returns a hardware.Connector opening pins.
func Connector(pins []int) hardware.Connector {
	return hardware.ConnectorFunc(func(context.Context) (hardware.Driver, error) {
		return Open(pins)
	})
}

// SetPulse implements hardware.Driver. The channel is the BCM pin number
// and must be one of the pins passed to Open.
func (d *Driver) SetPulse(channel, pulse int) error {
	if err := hardware.ValidatePulse(pulse); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return hardware.ErrClosed
	}
	if _, ok := d.pulses[channel]; !ok {
		return fmt.Errorf("%w: gpio %d not opened for PWM", hardware.ErrInvalidChannel, channel)
	}
	d.write(channel, uint32(pulse), cycleLen)
	d.pulses[channel] = pulse
	return nil
}

// Pulse implements hardware.Driver.
func (d *Driver) Pulse(channel int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, hardware.ErrClosed
	}
	p, ok := d.pulses[channel]
	if !ok {
		return 0, fmt.Errorf("%w: gpio %d not opened for PWM", hardware.ErrInvalidChannel, channel)
	}
	return p, nil
}

// Close unmaps GPIO memory.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.release != nil {
		return d.release()
	}
	return nil
}
