// Package pim maintains the serial or TCP session with a UPB powerline
// interface module (PIM) and drives the line-level protocol.
//
// A Conn owns the transport and two invariants:
//
//   - At most one PIM command is outstanding at a time. Send and the
//     register operations serialise callers; a command completes on an ack,
//     fails the attempt on a nak, busy or error line, and is retransmitted
//     up to the configured transmit count before ErrCommandFailed.
//   - Unsolicited powerline traffic ("PU" lines) is decoded, de-duplicated
//     against repeater echoes and handed to the message callback on a
//     dedicated goroutine.
//
// When the transport drops, or the heartbeat window passes with no traffic,
// the Conn reconnects with exponential backoff, replays the connect
// housekeeping and re-runs the sync hook. Reconnection stops only at Close.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Callbacks must be registered
// before Connect.
package pim
