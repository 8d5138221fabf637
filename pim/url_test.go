package pim

import (
	"errors"
	"testing"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Endpoint
	}{
		{
			name: "serial with default baud",
			raw:  "serial:///dev/ttyUSB0",
			want: Endpoint{Scheme: "serial", Device: "/dev/ttyUSB0", Baud: 4800},
		},
		{
			name: "serial with explicit baud",
			raw:  "serial:///dev/ttyS0:9600",
			want: Endpoint{Scheme: "serial", Device: "/dev/ttyS0", Baud: 9600},
		},
		{
			name: "tcp with default port",
			raw:  "tcp://192.168.1.20",
			want: Endpoint{Scheme: "tcp", Address: "192.168.1.20:2101"},
		},
		{
			name: "tcp with explicit port",
			raw:  "tcp://pim.local:4000",
			want: Endpoint{Scheme: "tcp", Address: "pim.local:4000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURL(tt.raw)
			if err != nil {
				t.Fatalf("ParseURL(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParseURL(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseURLErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unsupported scheme", "http://example.com"},
		{"missing serial device", "serial://"},
		{"bad baud", "serial:///dev/ttyS0:fast"},
		{"missing tcp host", "tcp://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseURL(tt.raw)
			if !errors.Is(err, ErrInvalidURL) {
				t.Errorf("ParseURL(%q) error = %v, want ErrInvalidURL", tt.raw, err)
			}
		})
	}
}
