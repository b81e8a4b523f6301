// Package hardware defines the servo PWM driver used by Wormbot peripheries.
//
// A Driver writes pulse widths (microseconds) to numbered output channels.
// What a channel number means depends on the backend:
//
//   - pigpiod: BCM GPIO number, driven through the pigpio daemon socket
//   - pca9685: output 0-15 on a PCA9685 I2C servo board (periph.io)
//   - rpio:    BCM GPIO number with hardware PWM (12, 13, 18, 19) via go-rpio
//   - sim:     in-memory channels for development and tests
//
// A pulse of 0 switches the output off. Other pulses must lie in the
// servo envelope [PulseMin, PulseMax].
//
// The boot sequence obtains one Driver from a Connector and lends it to
// every periphery. Peripheries use disjoint channels, so the driver
// itself only serialises access to its transport.
package hardware
