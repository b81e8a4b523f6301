package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementActuatorPulse  = "actuator_pulse"
	MeasurementPeripheryApply = "periphery_apply"
	MeasurementCameraCapture  = "camera_capture"
)

// WritePulse records the pulse width commanded on one servo channel.
//
// Parameters:
//   - periphery: Owning periphery name, e.g. "pantilt"
//   - axis: Channel label, e.g. "pan" or "tilt"
//   - pulse: Pulse width in microseconds (0 means released)
func (c *Client) WritePulse(periphery, axis string, pulse int) {
	c.write(MeasurementActuatorPulse,
		map[string]string{"periphery": periphery, "axis": axis},
		map[string]any{"pulse_us": pulse},
		time.Now(),
	)
}

// WriteApply records the outcome of one configuration apply.
func (c *Client) WriteApply(outcome, state string, duration time.Duration) {
	c.write(MeasurementPeripheryApply,
		map[string]string{"outcome": outcome, "state": state},
		map[string]any{"duration_ms": duration.Milliseconds()},
		time.Now(),
	)
}

// WriteCapture records a completed camera capture.
func (c *Client) WriteCapture(periphery string, bytes int, duration time.Duration) {
	c.write(MeasurementCameraCapture,
		map[string]string{"periphery": periphery},
		map[string]any{"bytes": bytes, "duration_ms": duration.Milliseconds()},
		time.Now(),
	)
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.write(measurement, tags, fields, time.Now())
}

// write adds the site tag and hands the point to the batching WriteAPI.
// Points are dropped silently once the client is closed.
func (c *Client) write(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if c.site != "" {
		merged := make(map[string]string, len(tags)+1)
		for k, v := range tags {
			merged[k] = v
		}
		merged["site"] = c.site
		tags = merged
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
