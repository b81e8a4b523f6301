package gpiopwm

import (
	"errors"
	"testing"

	"github.com/nerrad567/wormbot-core/internal/hardware"
)

func TestValidatePins(t *testing.T) {
	tests := []struct {
		name    string
		pins    []int
		wantErr bool
	}{
		{"pwm pair", []int{12, 13}, false},
		{"alternate pair", []int{18, 19}, false},
		{"no hardware pwm", []int{14, 15}, true},
		{"shared channel", []int{12, 18}, true},
		{"duplicate pin", []int{12, 12}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePins(tt.pins)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePins(%v) error = %v, wantErr %v", tt.pins, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, hardware.ErrInvalidChannel) {
				t.Errorf("error = %v, want ErrInvalidChannel", err)
			}
		})
	}
}

type dutyWrite struct {
	pin         int
	duty, cycle uint32
}

func TestDriver(t *testing.T) {
	var writes []dutyWrite
	released := false
	d := newDriver(func(pin int, duty, cycle uint32) {
		writes = append(writes, dutyWrite{pin, duty, cycle})
	}, []int{12, 13}, func() error { released = true; return nil })

	if err := d.SetPulse(12, 1525); err != nil {
		t.Fatalf("SetPulse() error = %v", err)
	}
	if len(writes) != 1 || writes[0] != (dutyWrite{12, 1525, cycleLen}) {
		t.Errorf("writes = %+v", writes)
	}
	if got, _ := d.Pulse(12); got != 1525 {
		t.Errorf("Pulse(12) = %d, want 1525", got)
	}
	if got, _ := d.Pulse(13); got != hardware.PulseOff {
		t.Errorf("Pulse(13) = %d, want off", got)
	}

	if err := d.SetPulse(18, 1500); !errors.Is(err, hardware.ErrInvalidChannel) {
		t.Errorf("SetPulse(unopened pin) error = %v, want ErrInvalidChannel", err)
	}
	if err := d.SetPulse(12, 4000); !errors.Is(err, hardware.ErrInvalidPulse) {
		t.Errorf("SetPulse(4000) error = %v, want ErrInvalidPulse", err)
	}

	if err := d.Close(); err != nil || !released {
		t.Fatalf("Close() error = %v, released = %v", err, released)
	}
	if err := d.SetPulse(12, 1500); !errors.Is(err, hardware.ErrClosed) {
		t.Errorf("SetPulse after Close error = %v, want ErrClosed", err)
	}
}
