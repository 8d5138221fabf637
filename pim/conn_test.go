package pim

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gwww/upb-lib/message"
)

// scriptedTransport is an in-memory transport. Lines written by the session
// are recorded and may trigger scripted response lines.
type scriptedTransport struct {
	respond func(line string) []string

	in     chan string
	buf    []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes []string
}

func newScriptedTransport(respond func(string) []string) *scriptedTransport {
	return &scriptedTransport{
		respond: respond,
		in:      make(chan string, 64),
		closed:  make(chan struct{}),
	}
}

func (t *scriptedTransport) Read(p []byte) (int, error) {
	for len(t.buf) == 0 {
		select {
		case line := <-t.in:
			t.buf = []byte(line + "\r")
		case <-t.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, t.buf)
	t.buf = t.buf[n:]
	return n, nil
}

func (t *scriptedTransport) Write(p []byte) (int, error) {
	select {
	case <-t.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	line := strings.TrimSuffix(string(p), "\r")
	t.mu.Lock()
	t.writes = append(t.writes, line)
	t.mu.Unlock()

	if t.respond != nil {
		for _, r := range t.respond(line) {
			t.push(r)
		}
	}
	return len(p), nil
}

// push injects an inbound line, as if the PIM sent it spontaneously.
func (t *scriptedTransport) push(line string) {
	select {
	case t.in <- line:
	case <-t.closed:
	}
}

func (t *scriptedTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

func (t *scriptedTransport) written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.writes))
	copy(out, t.writes)
	return out
}

// transmits returns only the UPB transmit lines, without the lead byte.
func (t *scriptedTransport) transmits() []string {
	var out []string
	for _, w := range t.written() {
		if strings.HasPrefix(w, "\x14") {
			out = append(out, w[1:])
		}
	}
	return out
}

func newTestConn(t *testing.T, cfg Config, dial DialFunc) *Conn {
	t.Helper()

	cfg.Dial = dial
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = -1
	}
	if cfg.ResponseTimeout == 0 {
		cfg.ResponseTimeout = 200 * time.Millisecond
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = 5 * time.Millisecond
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func singleDial(tr *scriptedTransport) DialFunc {
	return func(context.Context) (io.ReadWriteCloser, error) { return tr, nil }
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// Known-good powerline update lines for a device state report from
// device 6 on network 194.
const (
	updateLine    = "PU0800C2FF068600AB"
	updateLineDup = "PU0801C2FF068600AA" // Same packet, next transmit sequence
	updateLineOn  = "PU0800C2FF06866447" // Same device reporting level 100
)

func TestConnectHandshake(t *testing.T) {
	tr := newScriptedTransport(nil)
	c := newTestConn(t, Config{}, singleDial(tr))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	writes := tr.written()
	if len(writes) != 2 {
		t.Fatalf("handshake wrote %d lines, want 2", len(writes))
	}
	if writes[0] != "\x120001FF" {
		t.Errorf("first handshake line = %q, want register read", writes[0])
	}
	if writes[1] != "\x1770028E" {
		t.Errorf("second handshake line = %q, want message mode write", writes[1])
	}
	if got := c.State(); got != StateReady {
		t.Errorf("State() = %v, want ready", got)
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
}

func TestConnectTwiceFails(t *testing.T) {
	tr := newScriptedTransport(nil)
	c := newTestConn(t, Config{}, singleDial(tr))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("second Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectRunsSyncHook(t *testing.T) {
	tr := newScriptedTransport(nil)
	c := newTestConn(t, Config{}, singleDial(tr))

	var mu sync.Mutex
	var states []State
	c.SetOnState(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	var duringSync State
	c.SetSyncHook(func(context.Context) { duringSync = c.State() })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if duringSync != StateSyncing {
		t.Errorf("state during sync hook = %v, want syncing", duringSync)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateConnecting, StateSyncing, StateReady}
	if len(states) != len(want) {
		t.Fatalf("state transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state transitions = %v, want %v", states, want)
		}
	}
}

func TestSendAck(t *testing.T) {
	tr := newScriptedTransport(func(line string) []string {
		if strings.HasPrefix(line, "\x14") {
			return []string{"PA", "PK"}
		}
		return nil
	})
	c := newTestConn(t, Config{}, singleDial(tr))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := c.Send(context.Background(), "8704C206FF208E"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := tr.transmits(); len(got) != 1 || got[0] != "8704C206FF208E" {
		t.Errorf("transmits = %v, want one copy of the packet", got)
	}
}

func TestSendRetransmitsOnNak(t *testing.T) {
	var attempts atomic.Int32
	tr := newScriptedTransport(func(line string) []string {
		if !strings.HasPrefix(line, "\x14") {
			return nil
		}
		if attempts.Add(1) < 3 {
			return []string{"PA", "PN"}
		}
		return []string{"PA", "PK"}
	})
	c := newTestConn(t, Config{TransmitCount: 3}, singleDial(tr))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := c.Send(context.Background(), "8704C206FF208E"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := len(tr.transmits()); got != 3 {
		t.Errorf("transmissions = %d, want 3", got)
	}
	if got := c.Stats().Retries; got != 2 {
		t.Errorf("Stats().Retries = %d, want 2", got)
	}
}

func TestSendFailsWhenNeverAcked(t *testing.T) {
	tr := newScriptedTransport(func(line string) []string {
		if strings.HasPrefix(line, "\x14") {
			return []string{"PA", "PN"}
		}
		return nil
	})
	c := newTestConn(t, Config{TransmitCount: 2}, singleDial(tr))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	err := c.Send(context.Background(), "8704C206FF208E")
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("Send() error = %v, want ErrCommandFailed", err)
	}
	if got := len(tr.transmits()); got != 2 {
		t.Errorf("transmissions = %d, want 2", got)
	}
}

func TestSendRetriesOnBusy(t *testing.T) {
	var attempts atomic.Int32
	tr := newScriptedTransport(func(line string) []string {
		if !strings.HasPrefix(line, "\x14") {
			return nil
		}
		if attempts.Add(1) == 1 {
			return []string{"PB"}
		}
		return []string{"PA", "PK"}
	})
	c := newTestConn(t, Config{TransmitCount: 2}, singleDial(tr))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := c.Send(context.Background(), "8704C206FF208E"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}

func TestSendRetriesOnTimeout(t *testing.T) {
	var attempts atomic.Int32
	tr := newScriptedTransport(func(line string) []string {
		if !strings.HasPrefix(line, "\x14") {
			return nil
		}
		if attempts.Add(1) == 1 {
			return nil // Silence; the attempt must time out
		}
		return []string{"PA", "PK"}
	})
	c := newTestConn(t, Config{TransmitCount: 2, ResponseTimeout: 30 * time.Millisecond},
		singleDial(tr))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := c.Send(context.Background(), "8704C206FF208E"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := len(tr.transmits()); got != 2 {
		t.Errorf("transmissions = %d, want 2", got)
	}
}

func TestSendNotConnected(t *testing.T) {
	tr := newScriptedTransport(nil)
	c := newTestConn(t, Config{}, singleDial(tr))

	if err := c.Send(context.Background(), "8704C206FF208E"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
}

func TestSendSingleOutstanding(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	tr := newScriptedTransport(func(line string) []string {
		if !strings.HasPrefix(line, "\x14") {
			return nil
		}
		if n := inFlight.Add(1); n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return []string{"PA", "PK"}
	})
	c := newTestConn(t, Config{}, singleDial(tr))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Send(context.Background(), "8704C206FF208E"); err != nil {
				t.Errorf("Send() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("max commands in flight = %d, want 1", got)
	}
	if got := len(tr.transmits()); got != 8 {
		t.Errorf("transmissions = %d, want 8", got)
	}
}

func TestUnsolicitedUpdateCallback(t *testing.T) {
	tr := newScriptedTransport(nil)
	c := newTestConn(t, Config{}, singleDial(tr))

	got := make(chan message.Response, 8)
	c.SetOnMessage(func(r message.Response) { got <- r })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	tr.push(updateLine)

	select {
	case r := <-got:
		if r.Kind != message.KindUpdate || r.Packet == nil {
			t.Fatalf("callback got %+v, want update with packet", r)
		}
		if r.Packet.NetworkID != 194 || r.Packet.SrcID != 6 {
			t.Errorf("packet = %v", r.Packet)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no callback for powerline update")
	}
}

func TestRepeatedPacketSuppressed(t *testing.T) {
	tr := newScriptedTransport(nil)
	c := newTestConn(t, Config{}, singleDial(tr))

	got := make(chan message.Response, 8)
	c.SetOnMessage(func(r message.Response) { got <- r })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Original, a repeater copy with the next sequence number, then a
	// genuinely different report from the same device.
	tr.push(updateLine)
	tr.push(updateLineDup)
	tr.push(updateLineOn)

	waitFor(t, "both distinct packets", func() bool { return len(got) >= 2 })

	first := <-got
	second := <-got
	if first.Packet.Data[0] != 0x00 || second.Packet.Data[0] != 0x64 {
		t.Errorf("levels = %#x, %#x; want 0x00 then 0x64",
			first.Packet.Data[0], second.Packet.Data[0])
	}
	if c.Stats().PacketsDropped != 1 {
		t.Errorf("PacketsDropped = %d, want 1", c.Stats().PacketsDropped)
	}
	select {
	case r := <-got:
		t.Errorf("unexpected extra callback: %+v", r)
	default:
	}
}

func TestGarbledLineDiscarded(t *testing.T) {
	tr := newScriptedTransport(nil)
	c := newTestConn(t, Config{}, singleDial(tr))

	got := make(chan message.Response, 8)
	c.SetOnMessage(func(r message.Response) { got <- r })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	tr.push("XX garbage")
	tr.push("PU0800C2FF068600AC") // Bad checksum
	tr.push(updateLine)

	select {
	case r := <-got:
		if r.Packet == nil || r.Packet.Data[0] != 0x00 {
			t.Errorf("callback got %+v, want the valid packet", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid packet after garbage was not delivered")
	}
}

func TestReconnectAfterTransportLoss(t *testing.T) {
	var dials atomic.Int32
	transports := []*scriptedTransport{newScriptedTransport(nil), newScriptedTransport(nil)}
	dial := func(context.Context) (io.ReadWriteCloser, error) {
		n := dials.Add(1)
		if int(n) > len(transports) {
			return transports[len(transports)-1], nil
		}
		return transports[n-1], nil
	}

	c := newTestConn(t, Config{}, dial)

	var mu sync.Mutex
	var states []State
	c.SetOnState(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	transports[0].Close()

	waitFor(t, "reconnect", func() bool { return dials.Load() >= 2 })
	waitFor(t, "ready after reconnect", func() bool { return c.State() == StateReady })

	if got := c.Stats().ReconnectsTotal; got != 1 {
		t.Errorf("ReconnectsTotal = %d, want 1", got)
	}

	// The fresh transport must see the connect housekeeping again.
	writes := transports[1].written()
	if len(writes) < 2 || writes[0] != "\x120001FF" || writes[1] != "\x1770028E" {
		t.Errorf("reconnect handshake writes = %q", writes)
	}

	mu.Lock()
	defer mu.Unlock()
	var sawReconnecting bool
	for _, s := range states {
		if s == StateReconnecting {
			sawReconnecting = true
		}
	}
	if !sawReconnecting {
		t.Errorf("state transitions %v missed reconnecting", states)
	}
}

func TestHeartbeatForcesReconnect(t *testing.T) {
	var dials atomic.Int32
	dial := func(context.Context) (io.ReadWriteCloser, error) {
		dials.Add(1)
		return newScriptedTransport(nil), nil
	}

	c := newTestConn(t, Config{HeartbeatTimeout: 40 * time.Millisecond}, dial)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Total silence; the heartbeat must tear the session down and the
	// receive loop must redial.
	waitFor(t, "heartbeat reconnect", func() bool { return dials.Load() >= 2 })
}

func TestReadRegisters(t *testing.T) {
	tr := newScriptedTransport(func(line string) []string {
		if line == "\x120002FE" {
			return []string{"PR000102"}
		}
		return nil
	})
	c := newTestConn(t, Config{}, singleDial(tr))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	values, err := c.ReadRegisters(context.Background(), 0x00, 0x02)
	if err != nil {
		t.Fatalf("ReadRegisters() error = %v", err)
	}
	if len(values) != 3 || values[0] != 0x00 || values[1] != 0x01 || values[2] != 0x02 {
		t.Errorf("ReadRegisters() = %#x", values)
	}
}

func TestWriteRegisters(t *testing.T) {
	tr := newScriptedTransport(func(line string) []string {
		if line == "\x1770028E" {
			return []string{"PA"}
		}
		return nil
	})
	c := newTestConn(t, Config{}, singleDial(tr))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := c.WriteRegisters(context.Background(), 0x70, []byte{0x02}); err != nil {
		t.Fatalf("WriteRegisters() error = %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	tr := newScriptedTransport(nil)
	c := newTestConn(t, Config{}, singleDial(tr))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("State() after Close = %v", got)
	}
}
