package upb

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidFlag indicates an unrecognised or malformed entry in a flags
// string.
var ErrInvalidFlag = errors.New("invalid flag")

// Flags holds the tuning switches historically passed as a comma-separated
// string. Zero values give standard behaviour.
type Flags struct {
	// UnlimitedBlinkRate drops the half-second floor on blink intervals.
	// Some devices misbehave below it.
	UnlimitedBlinkRate bool

	// UseRawRate passes rate arguments straight through as UPB rate codes
	// instead of treating them as seconds.
	UseRawRate bool

	// ReportState requests a state report after every device command
	// instead of trusting the commanded level.
	ReportState bool

	// NoSync skips requesting state reports from known devices after
	// connect and reconnect.
	NoSync bool

	// HeartbeatTimeoutSec overrides how long the line may stay silent
	// before the session reconnects. Zero keeps the 90 second default;
	// -1 disables the heartbeat.
	HeartbeatTimeoutSec int
}

// ParseFlags parses a comma-separated flags string, e.g.
// "use_raw_rate, report_state, heartbeat_timeout_sec=120".
func ParseFlags(s string) (Flags, error) {
	var f Flags

	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, value, hasValue := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)

		switch name {
		case "unlimited_blink_rate":
			f.UnlimitedBlinkRate = true
		case "use_raw_rate":
			f.UseRawRate = true
		case "report_state":
			f.ReportState = true
		case "no_sync":
			f.NoSync = true
		case "heartbeat_timeout_sec":
			if !hasValue {
				return Flags{}, fmt.Errorf("%w: %s needs a value", ErrInvalidFlag, name)
			}
			secs, err := strconv.Atoi(value)
			if err != nil || secs < -1 {
				return Flags{}, fmt.Errorf("%w: %s=%s", ErrInvalidFlag, name, value)
			}
			f.HeartbeatTimeoutSec = secs
		default:
			return Flags{}, fmt.Errorf("%w: %q", ErrInvalidFlag, name)
		}
	}
	return f, nil
}

// heartbeatTimeout maps the flag value onto the session's duration
// convention: zero for the default, negative to disable.
func (f Flags) heartbeatTimeout() time.Duration {
	switch {
	case f.HeartbeatTimeoutSec > 0:
		return time.Duration(f.HeartbeatTimeoutSec) * time.Second
	case f.HeartbeatTimeoutSec < 0:
		return -1
	default:
		return 0
	}
}

// Config holds client configuration.
type Config struct {
	// URL is the PIM connection URL, "serial://device[:baud]" or
	// "tcp://host[:port]".
	URL string

	// ExportFilePath optionally names an UPStart export document to
	// preload the device and link registry from. Without one, devices are
	// discovered lazily from traffic.
	ExportFilePath string

	// TransmitCount is how many times each command is transmitted before
	// it is reported failed, clamped to 1-4. Default: 1.
	TransmitCount int

	// Flags carries the behavioural switches; see Flags and ParseFlags.
	Flags Flags
}

// defaultTransmitCount mirrors the session default so the control word
// matches what the session will actually do.
const defaultTransmitCount = 1

func (c Config) transmitCount() int {
	n := c.TransmitCount
	if n < 1 {
		n = defaultTransmitCount
	}
	if n > 4 {
		n = 4
	}
	return n
}
