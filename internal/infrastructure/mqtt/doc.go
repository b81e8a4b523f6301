// Package mqtt publishes Wormbot telemetry to an MQTT broker.
//
// The controller is publish-only: servo pulse widths while the mount
// moves, the periphery registry state after each configuration apply,
// and a retained online/offline status with a matching Last Will.
//
// # Topics
//
//	wormbot/system/status          retained, online/offline
//	wormbot/state/pantilt/{axis}   pulse width per step
//	wormbot/state/registry         retained, last apply outcome
//	wormbot/event/camera/capture   capture completed
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.PanTiltAxis("pan"), map[string]int{"pulse": 1987}, false)
package mqtt
