package pim

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Defaults applied when the connection URL omits them.
const (
	// defaultBaud is the PIM's fixed serial speed.
	defaultBaud = 4800

	// defaultTCPPort is the port most serial-to-IP bridges expose.
	defaultTCPPort = 2101
)

// Endpoint is a parsed connection URL.
type Endpoint struct {
	// Scheme is "serial" or "tcp".
	Scheme string

	// Device is the serial device path, e.g. "/dev/ttyUSB0".
	Device string

	// Baud is the serial speed; meaningful only for serial endpoints.
	Baud int

	// Address is the "host:port" to dial; meaningful only for TCP
	// endpoints.
	Address string
}

// String returns the endpoint in URL form.
func (e Endpoint) String() string {
	if e.Scheme == "serial" {
		return fmt.Sprintf("serial://%s:%d", e.Device, e.Baud)
	}
	return fmt.Sprintf("tcp://%s", e.Address)
}

// ParseURL parses a connection URL.
//
// Supported forms:
//   - "serial:///dev/ttyUSB0" (baud defaults to 4800)
//   - "serial:///dev/ttyUSB0:9600"
//   - "tcp://192.168.1.20" (port defaults to 2101)
//   - "tcp://192.168.1.20:2101"
func ParseURL(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrInvalidURL, raw, err)
	}

	switch u.Scheme {
	case "serial":
		return parseSerial(u, raw)
	case "tcp":
		return parseTCP(u, raw)
	default:
		return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q (use serial or tcp)",
			ErrInvalidURL, u.Scheme)
	}
}

// parseSerial handles serial URLs. The device path may carry a ":baud"
// suffix, which url.Parse leaves inside the path.
func parseSerial(u *url.URL, raw string) (Endpoint, error) {
	device := u.Host + u.Path
	baud := defaultBaud

	if i := strings.LastIndex(device, ":"); i >= 0 {
		b, err := strconv.Atoi(device[i+1:])
		if err != nil || b <= 0 {
			return Endpoint{}, fmt.Errorf("%w: bad baud rate in %q", ErrInvalidURL, raw)
		}
		baud = b
		device = device[:i]
	}
	if device == "" {
		return Endpoint{}, fmt.Errorf("%w: missing device in %q", ErrInvalidURL, raw)
	}
	return Endpoint{Scheme: "serial", Device: device, Baud: baud}, nil
}

func parseTCP(u *url.URL, raw string) (Endpoint, error) {
	host := u.Host
	if host == "" {
		return Endpoint{}, fmt.Errorf("%w: missing host in %q", ErrInvalidURL, raw)
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, strconv.Itoa(defaultTCPPort))
	}
	return Endpoint{Scheme: "tcp", Address: host}, nil
}
