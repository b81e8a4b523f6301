// Package telemetry reports pan-tilt motion, camera captures and
// registry applies to MQTT and InfluxDB.
//
// Topics:
//
//	wormbot/state/pantilt/<axis>   latest pulse per axis
//	wormbot/state/registry         registry state and last apply (retained)
//	wormbot/event/camera/capture   one message per capture
//
// InfluxDB measurements: actuator_pulse, periphery_apply, camera_capture.
package telemetry
