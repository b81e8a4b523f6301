// Package pantilt controls a two-servo pan-tilt mount.
//
// A Channel owns one PWM output and moves it toward a target pulse one
// microsecond at a time, pausing the configured step delay between
// writes. This paces the servo instead of letting it jump, and makes
// every intermediate pulse visible to observers (telemetry) while the
// walk is in progress.
//
// The Controller accepts angle commands, pan in [-90, 90] and tilt in
// [-25, 35] degrees, and converts them to pulse targets:
//
//	pan  = pan_neutral  + round(deg * 925 / 90)
//	tilt = tilt_neutral - round(deg * 10)
//
// Its bounds and speed are exposed as periphery parameters so they can
// be persisted and rolled back by the periphery registry.
package pantilt
