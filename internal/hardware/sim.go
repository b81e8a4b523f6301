package hardware

import (
	"context"
	"fmt"
	"sync"
)

// Sim is an in-memory Driver. Every channel accepts pulses; unset
// channels read as PulseOff.
type Sim struct {
	mu     sync.Mutex
	pulses map[int]int
	writes int
	closed bool
}

// NewSim returns an empty simulated driver.
func NewSim() *Sim {
	return &Sim{pulses: make(map[int]int)}
}

// SimConnector returns a Connector that always hands out sim.
func SimConnector(sim *Sim) Connector {
	return ConnectorFunc(func(context.Context) (Driver, error) {
		return sim, nil
	})
}

// SetPulse implements Driver.
func (s *Sim) SetPulse(channel, pulse int) error {
	if channel < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	if err := ValidatePulse(pulse); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.pulses[channel] = pulse
	s.writes++
	return nil
}

// Pulse implements Driver.
func (s *Sim) Pulse(channel int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.pulses[channel], nil
}

// Writes returns the number of accepted SetPulse calls.
func (s *Sim) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Close implements Driver.
func (s *Sim) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
