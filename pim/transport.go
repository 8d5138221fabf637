package pim

import (
	"context"
	"fmt"
	"io"
	"net"

	"go.bug.st/serial"
)

// DialFunc opens the underlying transport. The returned stream carries the
// PIM's ASCII line protocol in both directions.
type DialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// dialer returns the DialFunc for this endpoint.
func (e Endpoint) dialer() DialFunc {
	if e.Scheme == "serial" {
		return e.dialSerial
	}
	return e.dialTCP
}

// dialSerial opens the serial device. Opening a local device is quick, so
// the context is only checked, not plumbed through.
func (e Endpoint) dialSerial(ctx context.Context) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	port, err := serial.Open(e.Device, &serial.Mode{BaudRate: e.Baud})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrConnectionFailed, e.Device, err)
	}
	return port, nil
}

func (e Endpoint) dialTCP(ctx context.Context) (io.ReadWriteCloser, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", e.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnectionFailed, e.Address, err)
	}
	return conn, nil
}
