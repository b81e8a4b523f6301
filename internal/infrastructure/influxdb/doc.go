// Package influxdb records Wormbot actuator time series in InfluxDB v2.
//
// Measurements:
//   - actuator_pulse: pulse width per servo step (tags: site, periphery, axis)
//   - periphery_apply: outcome and duration of each configuration apply
//   - camera_capture: size and duration of each still capture
//
// Writes are non-blocking and batched by the upstream client; errors are
// delivered through SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without time series
//	}
//	defer client.Close()
//
//	client.WritePulse("pantilt", "pan", 1987)
package influxdb
