// Package bridge exposes a UPB network over MQTT.
//
// The bridge mirrors registry state onto retained topics and accepts
// commands back:
//
//	upb/status                    bridge availability (LWT)
//	upb/device/{key}/state        retained device state JSON
//	upb/device/{key}/set          command: {"level":80,"rate":5}
//	upb/device/{key}/get          request a state report
//	upb/link/{key}/state          retained link state JSON
//	upb/link/{key}/set            command: {"action":"activate"}
//
// Device and link keys are the registry's canonical keys. The topic prefix
// is configurable; "upb" is the default.
package bridge
