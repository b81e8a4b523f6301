package pantilt

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/wormbot-core/internal/hardware"
)

// recordingDriver records every write per channel and can fail on a
// chosen pulse.
type recordingDriver struct {
	mu      sync.Mutex
	writes  map[int][]int
	failOn  map[int]int // channel -> pulse that fails
	readErr error
}

func newRecordingDriver() *recordingDriver {
	return &recordingDriver{writes: make(map[int][]int), failOn: make(map[int]int)}
}

func (d *recordingDriver) SetPulse(channel, pulse int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.failOn[channel]; ok && p == pulse {
		return errors.New("i/o error")
	}
	d.writes[channel] = append(d.writes[channel], pulse)
	return nil
}

func (d *recordingDriver) Pulse(channel int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readErr != nil {
		return 0, d.readErr
	}
	w := d.writes[channel]
	if len(w) == 0 {
		return hardware.PulseOff, nil
	}
	return w[len(w)-1], nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) written(channel int) []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.writes[channel]...)
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestChannel(t *testing.T, drv hardware.Driver, start int) *Channel {
	t.Helper()
	ch, err := NewChannel(drv, ChannelConfig{Axis: "pan", Pin: 3, Start: start, Min: 1000, Max: 2000})
	if err != nil {
		t.Fatalf("NewChannel() error = %v", err)
	}
	ch.sleep = noSleep
	return ch
}

func TestNewChannel_Validation(t *testing.T) {
	drv := newRecordingDriver()

	if _, err := NewChannel(drv, ChannelConfig{Axis: "pan", Start: 1500, Min: 2000, Max: 1000}); !errors.Is(err, ErrInvalidBounds) {
		t.Errorf("inverted bounds error = %v, want ErrInvalidBounds", err)
	}
	if _, err := NewChannel(drv, ChannelConfig{Axis: "pan", Start: 900, Min: 1000, Max: 2000}); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("start outside bounds error = %v, want ErrOutOfBounds", err)
	}
	if len(drv.written(0)) != 0 {
		t.Error("NewChannel should not write to the driver")
	}
}

func TestChannelMoveTo_WalksEveryStep(t *testing.T) {
	tests := []struct {
		name   string
		start  int
		target int
		want   []int
	}{
		{"up", 1500, 1504, []int{1501, 1502, 1503, 1504}},
		{"down", 1500, 1497, []int{1499, 1498, 1497}},
		{"single step", 1500, 1501, []int{1501}},
		{"already there", 1500, 1500, nil},
		{"to upper bound", 1998, 2000, []int{1999, 2000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := newRecordingDriver()
			ch := newTestChannel(t, drv, tt.start)

			var observed []int
			ch.observer = StepObserverFunc(func(axis string, pulse int) {
				if axis != "pan" {
					t.Errorf("observer axis = %q, want pan", axis)
				}
				observed = append(observed, pulse)
			})

			if err := ch.MoveTo(context.Background(), tt.target); err != nil {
				t.Fatalf("MoveTo() error = %v", err)
			}
			if got := drv.written(3); !slices.Equal(got, tt.want) {
				t.Errorf("writes = %v, want %v", got, tt.want)
			}
			if !slices.Equal(observed, tt.want) {
				t.Errorf("observed = %v, want %v", observed, tt.want)
			}
			if ch.Pulse() != tt.target {
				t.Errorf("Pulse() = %d, want %d", ch.Pulse(), tt.target)
			}
		})
	}
}

func TestChannelMoveTo_SleepsBetweenStepsOnly(t *testing.T) {
	drv := newRecordingDriver()
	ch := newTestChannel(t, drv, 1500)
	ch.SetStepDelay(3 * time.Millisecond)

	var sleeps []time.Duration
	ch.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	if err := ch.MoveTo(context.Background(), 1505); err != nil {
		t.Fatalf("MoveTo() error = %v", err)
	}
	if len(sleeps) != 4 {
		t.Fatalf("sleeps = %d, want 4 (none after the final step)", len(sleeps))
	}
	for _, d := range sleeps {
		if d != 3*time.Millisecond {
			t.Errorf("sleep = %v, want 3ms", d)
		}
	}
}

func TestChannelMoveTo_OutOfBounds(t *testing.T) {
	drv := newRecordingDriver()
	ch := newTestChannel(t, drv, 1500)

	for _, target := range []int{999, 2001} {
		err := ch.MoveTo(context.Background(), target)
		if !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("MoveTo(%d) error = %v, want ErrOutOfBounds", target, err)
		}
		var pe *PulseError
		if !errors.As(err, &pe) || pe.Pulse != target || pe.Min != 1000 || pe.Max != 2000 {
			t.Errorf("PulseError = %+v", pe)
		}
	}
	if len(drv.written(3)) != 0 {
		t.Errorf("out-of-bounds move wrote %v", drv.written(3))
	}
	if ch.Pulse() != 1500 {
		t.Errorf("Pulse() = %d, want 1500", ch.Pulse())
	}
}

func TestChannelMoveTo_Cancelled(t *testing.T) {
	drv := newRecordingDriver()
	ch := newTestChannel(t, drv, 1500)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch.sleep = func(ctx context.Context, _ time.Duration) error {
		if ch.Pulse() == 1503 {
			cancel()
		}
		return ctx.Err()
	}

	err := ch.MoveTo(ctx, 1600)
	if !errors.Is(err, ErrMotionCancelled) {
		t.Fatalf("MoveTo() error = %v, want ErrMotionCancelled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should wrap context.Canceled: %v", err)
	}
	if ch.Pulse() != 1503 {
		t.Errorf("Pulse() = %d, want 1503", ch.Pulse())
	}
	if got := drv.written(3); !slices.Equal(got, []int{1501, 1502, 1503}) {
		t.Errorf("writes = %v", got)
	}
}

func TestChannelMoveTo_CancelledBeforeStart(t *testing.T) {
	drv := newRecordingDriver()
	ch := newTestChannel(t, drv, 1500)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := ch.MoveTo(ctx, 1510); !errors.Is(err, ErrMotionCancelled) {
		t.Fatalf("MoveTo() error = %v, want ErrMotionCancelled", err)
	}
	if len(drv.written(3)) != 0 {
		t.Error("cancelled move should not write")
	}
}

func TestChannelMoveTo_DriverError(t *testing.T) {
	drv := newRecordingDriver()
	drv.failOn[3] = 1503
	ch := newTestChannel(t, drv, 1500)

	err := ch.MoveTo(context.Background(), 1510)
	if !errors.Is(err, ErrDriver) {
		t.Fatalf("MoveTo() error = %v, want ErrDriver", err)
	}
	if ch.Pulse() != 1502 {
		t.Errorf("Pulse() = %d, want last accepted 1502", ch.Pulse())
	}
}

func TestChannelMoveTo_StartsFromDriverOutput(t *testing.T) {
	drv := newRecordingDriver()
	ch := newTestChannel(t, drv, 1500)

	// Another client left the servo at 1600.
	if err := drv.SetPulse(3, 1600); err != nil {
		t.Fatal(err)
	}

	if err := ch.MoveTo(context.Background(), 1603); err != nil {
		t.Fatalf("MoveTo() error = %v", err)
	}
	if got := drv.written(3); !slices.Equal(got, []int{1600, 1601, 1602, 1603}) {
		t.Errorf("writes = %v, want the walk to resume from 1600", got)
	}
}

func TestChannelMoveTo_ReadError(t *testing.T) {
	drv := newRecordingDriver()
	drv.readErr = errors.New("daemon gone")
	ch := newTestChannel(t, drv, 1500)

	if err := ch.MoveTo(context.Background(), 1510); !errors.Is(err, ErrDriver) {
		t.Fatalf("MoveTo() error = %v, want ErrDriver", err)
	}
	if len(drv.written(3)) != 0 || ch.Pulse() != 1500 {
		t.Errorf("failed read moved the channel: writes %v, Pulse() %d", drv.written(3), ch.Pulse())
	}
}

func TestChannelSetAndRelease(t *testing.T) {
	drv := newRecordingDriver()
	ch := newTestChannel(t, drv, 1500)

	if err := ch.Set(1800); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := ch.Set(2500); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Set(2500) error = %v, want ErrOutOfBounds", err)
	}
	if err := ch.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if !ch.Released() {
		t.Error("Released() = false after Release")
	}
	if ch.Pulse() != 1800 {
		t.Errorf("Pulse() after release = %d, want 1800", ch.Pulse())
	}
	if got := drv.written(3); !slices.Equal(got, []int{1800, hardware.PulseOff}) {
		t.Errorf("writes = %v", got)
	}

	if err := ch.MoveTo(context.Background(), 1801); err != nil {
		t.Fatalf("MoveTo() after release error = %v", err)
	}
	if ch.Released() {
		t.Error("Released() = true after a new write")
	}
}

func TestChannelSetBounds(t *testing.T) {
	ch := newTestChannel(t, newRecordingDriver(), 1500)

	if err := ch.SetBounds(1600, 1400); !errors.Is(err, ErrInvalidBounds) {
		t.Errorf("SetBounds(inverted) error = %v", err)
	}
	if err := ch.SetBounds(1200, 1400); err != nil {
		t.Fatalf("SetBounds() error = %v", err)
	}
	if lo, hi := ch.Bounds(); lo != 1200 || hi != 1400 {
		t.Errorf("Bounds() = [%d, %d]", lo, hi)
	}
	if err := ch.MoveTo(context.Background(), 1450); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("MoveTo beyond new bounds error = %v", err)
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("zero delay error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled sleep error = %v", err)
	}
}
