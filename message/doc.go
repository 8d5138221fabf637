// Package message implements the UPB PIM wire codec.
//
// The PIM (Powerline Interface Module) speaks an ASCII line protocol. Each
// outbound command is a hex-encoded UPB packet prefixed with a one-byte PIM
// command and terminated with a carriage return. Each inbound line starts
// with a two-character marker ("PA", "PK", "PN", "PB", "PE", "PR", "PU")
// classifying it as accepted, ack, nak, busy, error, register report, or an
// unsolicited update carrying a full UPB packet.
//
// # Packet layout
//
// A UPB packet is an ordered byte sequence:
//
//	control word (2) | network ID (1) | destination ID (1) | source ID (1) |
//	message ID (1)   | data (0+)      | checksum (1)
//
// The control word encodes the link flag, repeater request, packet length,
// ack request, transmit count and transmit sequence. The checksum is the
// two's complement of the sum of all preceding bytes modulo 256; packets
// that fail checksum validation are rejected before any interpretation.
//
// The package also carries the UPB rate table: the protocol's sixteen
// transition-speed codes and their nearest-match mapping to seconds.
//
// # Thread Safety
//
// Encoder and all package functions are safe for concurrent use; Encoder is
// an immutable value after construction.
package message
