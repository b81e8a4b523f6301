package mqtt

import "fmt"

// TopicPrefix is the root of every topic Wormbot publishes.
const TopicPrefix = "wormbot"

// Topics provides builders for Wormbot MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.PanTiltAxis("pan") // "wormbot/state/pantilt/pan"
type Topics struct{}

// SystemStatus is the retained online/offline topic, also used for the LWT.
//
// Example: wormbot/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// PanTiltAxis returns the topic carrying the live pulse width of one axis.
//
// Example: wormbot/state/pantilt/tilt
func (Topics) PanTiltAxis(axis string) string {
	return fmt.Sprintf("%s/state/pantilt/%s", TopicPrefix, axis)
}

// RegistryState returns the retained topic carrying the registry state
// and the outcome of the last configuration apply.
//
// Example: wormbot/state/registry
func (Topics) RegistryState() string {
	return TopicPrefix + "/state/registry"
}

// CameraCapture returns the topic announcing completed captures.
//
// Example: wormbot/event/camera/capture
func (Topics) CameraCapture() string {
	return TopicPrefix + "/event/camera/capture"
}
