// Package upstart parses UPStart export documents (.upe files).
//
// The export is a line-oriented, comma-separated format. Each line's first
// field is a record type:
//
//	0   file overview, carries the network ID
//	2   link definition (ID, name)
//	3   device definition (ID, manufacturer, product, firmware, channels, name)
//	4   link member (device, channel, link, preset dim level)
//	8   channel definition (dimmable flag per channel)
//	99  device rename
//
// Parsing is best-effort: a malformed or unrecognised record is skipped with
// a diagnostic and parsing continues. The export file itself is optional;
// without one the registry is populated lazily from traffic.
package upstart
