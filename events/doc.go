// Package events delivers lifecycle and state-change notifications.
//
// The bus carries a fixed set of topics: connected, disconnected,
// device-updated and link-activated. Events carry immutable snapshots of the
// affected entities, never live handles, so subscribers cannot corrupt
// registry invariants.
//
// Handlers run synchronously on the publishing goroutine, in subscription
// order; a panicking handler is recovered and logged so one misbehaving
// subscriber cannot take down the connection loop.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package events
