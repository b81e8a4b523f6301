// Package pigpiod drives servos through the pigpio daemon socket interface.
//
// Each command is a 16-byte little-endian request (cmd, p1, p2, p3) and
// the daemon answers with 16 bytes whose last word is the signed result.
// Negative results are pigpio error codes.
package pigpiod

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/nerrad567/wormbot-core/internal/hardware"
)

// pigpio socket command numbers.
const (
	cmdServo     = 8  // SERVO gpio pulsewidth
	cmdGetServoP = 84 // GPW gpio
)

// pigpio error codes the client interprets.
const (
	errBadUserGPIO   = -2
	errBadPulseWidth = -7
	errNotPermitted  = -41
	errNotServoGPIO  = -93
)

const (
	frameSize      = 16
	maxUserGPIO    = 31
	defaultTimeout = 5 * time.Second
)

// CommandError carries the pigpio error code for a rejected command.
type CommandError struct {
	Cmd  uint32
	Code int32
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("pigpiod: command %d failed with code %d (%s)", e.Cmd, e.Code, codeText(e.Code))
}

// Unwrap makes errors.Is(err, hardware.ErrCommandFailed) true.
func (e *CommandError) Unwrap() error {
	return hardware.ErrCommandFailed
}

func codeText(code int32) string {
	switch code {
	case errBadUserGPIO:
		return "bad user gpio"
	case errBadPulseWidth:
		return "bad pulse width"
	case errNotPermitted:
		return "not permitted"
	case errNotServoGPIO:
		return "not a servo gpio"
	default:
		return "unknown"
	}
}

// Config holds the daemon address.
type Config struct {
	// Address is host:port of the daemon, e.g. "localhost:8888".
	Address string

	// Timeout bounds the dial and each request/response exchange.
	Timeout time.Duration
}

// Client is a hardware.Driver speaking the pigpiod socket protocol.
//
// Thread Safety:
//   - Commands are serialised on the single connection.
type Client struct {
	cfg  Config
	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to the daemon.
//
// Returns:
//   - *Client: Connected driver
//   - error: wraps hardware.ErrConnectionRefused if the socket is unreachable
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: pigpiod at %s: %w", hardware.ErrConnectionRefused, cfg.Address, err)
	}
	return &Client{cfg: cfg, conn: conn}, nil
}

// Connector returns a hardware.Connector dialing cfg.
func Connector(cfg Config) hardware.Connector {
	return hardware.ConnectorFunc(func(ctx context.Context) (hardware.Driver, error) {
		return Dial(ctx, cfg)
	})
}

// Probe returns a readiness check that succeeds once the daemon accepts
// connections. Used when the daemon is supervised by Wormbot.
func Probe(address string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		c, err := Dial(ctx, Config{Address: address, Timeout: time.Second})
		if err != nil {
			return err
		}
		return c.Close()
	}
}

// SetPulse implements hardware.Driver with the SERVO command.
func (c *Client) SetPulse(channel, pulse int) error {
	if channel < 0 || channel > maxUserGPIO {
		return fmt.Errorf("%w: gpio %d", hardware.ErrInvalidChannel, channel)
	}
	if err := hardware.ValidatePulse(pulse); err != nil {
		return err
	}
	_, err := c.command(cmdServo, uint32(channel), uint32(pulse))
	return err
}

// Pulse implements hardware.Driver with the GPW command. A gpio that has
// never been driven as a servo reads as hardware.PulseOff.
func (c *Client) Pulse(channel int) (int, error) {
	if channel < 0 || channel > maxUserGPIO {
		return 0, fmt.Errorf("%w: gpio %d", hardware.ErrInvalidChannel, channel)
	}
	res, err := c.command(cmdGetServoP, uint32(channel), 0)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && cmdErr.Code == errNotServoGPIO {
			return hardware.PulseOff, nil
		}
		return 0, err
	}
	return int(res), nil
}

// Close implements hardware.Driver.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// command performs one request/response exchange.
func (c *Client) command(cmd, p1, p2 uint32) (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return 0, hardware.ErrClosed
	}

	var req [frameSize]byte
	binary.LittleEndian.PutUint32(req[0:], cmd)
	binary.LittleEndian.PutUint32(req[4:], p1)
	binary.LittleEndian.PutUint32(req[8:], p2)
	// p3 (extension length) stays 0.

	if err := c.conn.SetDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return 0, fmt.Errorf("%w: set deadline: %w", hardware.ErrCommandFailed, err)
	}
	if _, err := c.conn.Write(req[:]); err != nil {
		return 0, fmt.Errorf("%w: write: %w", hardware.ErrCommandFailed, err)
	}

	var resp [frameSize]byte
	if _, err := io.ReadFull(c.conn, resp[:]); err != nil {
		return 0, fmt.Errorf("%w: read: %w", hardware.ErrCommandFailed, err)
	}

	res := int32(binary.LittleEndian.Uint32(resp[12:]))
	if res < 0 {
		return 0, &CommandError{Cmd: cmd, Code: res}
	}
	return res, nil
}
