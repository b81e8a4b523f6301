// Package camera provides the still camera periphery.
//
// A Camera wraps a Driver: CommandDriver runs a still-capture program
// (libcamera-still, rpicam-still) that writes a JPEG to stdout, and
// SimDriver returns a generated test frame. The camera has no tunable
// parameters; width and height are reported as constants.
package camera
