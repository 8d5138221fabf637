// Package registry owns the Device and Link entities the library models.
//
// The registry is populated once, before the connection is started, either
// from a UPStart export document or lazily when an unknown device is first
// referenced. Devices are never destroyed during a run; link membership is
// immutable after load.
//
// # Ownership
//
// The connection state machine is the sole writer of entity status. Every
// other component reads snapshots: lookups and enumerations return copies,
// and change notifications carry copies, so subscribers can never corrupt
// registry state.
//
// # Keys
//
// Devices are keyed "{network}_{device}_{channel}" and links
// "{network}_{link}". Lookups for unknown keys report absence rather than
// failing; not every addressed endpoint is described by the export file.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package registry
