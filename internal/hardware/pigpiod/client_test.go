package pigpiod

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/wormbot-core/internal/hardware"
)

// fakeDaemon answers SERVO and GPW like pigpiod, keeping pulses in memory.
type fakeDaemon struct {
	ln net.Listener

	mu       sync.Mutex
	pulses   map[uint32]uint32
	requests [][4]uint32
	forceErr int32
}

func startFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &fakeDaemon{ln: ln, pulses: make(map[uint32]uint32)}
	t.Cleanup(func() { ln.Close() })
	go d.serve()
	return d
}

func (d *fakeDaemon) addr() string { return d.ln.Addr().String() }

func (d *fakeDaemon) serve() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		go d.handle(conn)
	}
}

func (d *fakeDaemon) handle(conn net.Conn) {
	defer conn.Close()
	var req [frameSize]byte
	for {
		if _, err := io.ReadFull(conn, req[:]); err != nil {
			return
		}
		var words [4]uint32
		for i := range words {
			words[i] = binary.LittleEndian.Uint32(req[i*4:])
		}

		d.mu.Lock()
		d.requests = append(d.requests, words)
		res := d.forceErr
		if res == 0 {
			switch words[0] {
			case cmdServo:
				d.pulses[words[1]] = words[2]
			case cmdGetServoP:
				p, ok := d.pulses[words[1]]
				if !ok || p == 0 {
					res = errNotServoGPIO
				} else {
					res = int32(p)
				}
			}
		}
		d.mu.Unlock()

		var resp [frameSize]byte
		copy(resp[:12], req[:12])
		binary.LittleEndian.PutUint32(resp[12:], uint32(res))
		if _, err := conn.Write(resp[:]); err != nil {
			return
		}
	}
}

func dialFake(t *testing.T, d *fakeDaemon) *Client {
	t.Helper()
	c, err := Dial(context.Background(), Config{Address: d.addr(), Timeout: time.Second})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSetPulseAndRead(t *testing.T) {
	d := startFakeDaemon(t)
	c := dialFake(t, d)

	if err := c.SetPulse(14, 1525); err != nil {
		t.Fatalf("SetPulse() error = %v", err)
	}
	got, err := c.Pulse(14)
	if err != nil {
		t.Fatalf("Pulse() error = %v", err)
	}
	if got != 1525 {
		t.Errorf("Pulse(14) = %d, want 1525", got)
	}

	d.mu.Lock()
	first := d.requests[0]
	d.mu.Unlock()
	if first != [4]uint32{cmdServo, 14, 1525, 0} {
		t.Errorf("SERVO request = %v", first)
	}
}

func TestPulse_NeverDrivenReadsOff(t *testing.T) {
	d := startFakeDaemon(t)
	c := dialFake(t, d)

	got, err := c.Pulse(15)
	if err != nil {
		t.Fatalf("Pulse() error = %v", err)
	}
	if got != hardware.PulseOff {
		t.Errorf("Pulse(15) = %d, want %d", got, hardware.PulseOff)
	}
}

func TestCommandError(t *testing.T) {
	d := startFakeDaemon(t)
	c := dialFake(t, d)
	d.mu.Lock()
	d.forceErr = errNotPermitted
	d.mu.Unlock()

	err := c.SetPulse(14, 1500)
	if !errors.Is(err, hardware.ErrCommandFailed) {
		t.Fatalf("SetPulse() error = %v, want ErrCommandFailed", err)
	}
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Code != errNotPermitted || cmdErr.Cmd != cmdServo {
		t.Errorf("CommandError = %+v", cmdErr)
	}
}

func TestValidationBeforeWire(t *testing.T) {
	d := startFakeDaemon(t)
	c := dialFake(t, d)

	if err := c.SetPulse(40, 1500); !errors.Is(err, hardware.ErrInvalidChannel) {
		t.Errorf("SetPulse(gpio 40) error = %v, want ErrInvalidChannel", err)
	}
	if err := c.SetPulse(14, 3000); !errors.Is(err, hardware.ErrInvalidPulse) {
		t.Errorf("SetPulse(3000) error = %v, want ErrInvalidPulse", err)
	}
	if _, err := c.Pulse(-1); !errors.Is(err, hardware.ErrInvalidChannel) {
		t.Errorf("Pulse(-1) error = %v, want ErrInvalidChannel", err)
	}

	d.mu.Lock()
	n := len(d.requests)
	d.mu.Unlock()
	if n != 0 {
		t.Errorf("invalid commands reached the daemon: %d requests", n)
	}
}

func TestClose(t *testing.T) {
	d := startFakeDaemon(t)
	c := dialFake(t, d)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := c.SetPulse(14, 1500); !errors.Is(err, hardware.ErrClosed) {
		t.Errorf("SetPulse after Close error = %v, want ErrClosed", err)
	}
}

func TestDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = Connector(Config{Address: addr, Timeout: time.Second}).Connect(context.Background())
	if !errors.Is(err, hardware.ErrConnectionRefused) {
		t.Errorf("Connect() error = %v, want ErrConnectionRefused", err)
	}
	if err := Probe(addr)(context.Background()); err == nil {
		t.Error("Probe() on closed port should fail")
	}
}

func TestProbe(t *testing.T) {
	d := startFakeDaemon(t)
	if err := Probe(d.addr())(context.Background()); err != nil {
		t.Errorf("Probe() error = %v", err)
	}
}
