// Package history persists device state changes to SQLite.
//
// A Recorder attaches to the client's event bus and appends one row per
// device-updated event, so level changes survive restarts and can be
// queried for dashboards or debugging. Entries are stored with the device's
// canonical key and a JSON state snapshot.
package history
