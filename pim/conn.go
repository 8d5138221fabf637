package pim

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gwww/upb-lib/message"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for the PIM session.
const (
	// defaultConnectTimeout is the maximum time to wait for a dial.
	defaultConnectTimeout = 10 * time.Second

	// defaultResponseTimeout bounds one transmission attempt: the time
	// from writing a command to its terminal response.
	defaultResponseTimeout = 5 * time.Second

	// defaultReconnectInterval is the initial delay between reconnection
	// attempts.
	defaultReconnectInterval = 5 * time.Second

	// maxReconnectInterval is the maximum delay between reconnection
	// attempts.
	maxReconnectInterval = time.Minute

	// defaultHeartbeatTimeout is how long the line may stay silent before
	// the session is presumed dead and torn down.
	defaultHeartbeatTimeout = 90 * time.Second

	// defaultTransmitCount is how many times a command is transmitted
	// before giving up.
	defaultTransmitCount = 1

	// maxTransmitCount is the most transmissions the control word can
	// request of powerline repeaters.
	maxTransmitCount = 4

	// callbackQueueSize is the buffer size for the message callback queue.
	callbackQueueSize = 100

	// repeatedPacketWindow is how long a powerline packet suppresses
	// repeater copies of itself.
	repeatedPacketWindow = time.Second

	// pendingBuffer sizes the per-command response channel.
	pendingBuffer = 8
)

// Connect housekeeping, sent on every (re)connect: a register read to flush
// the PIM's buffer, then a register write forcing message mode (PIM register
// 0x70 = 0x02).
const (
	flushRegistersPayload  = "0001FF"
	messageModeRegsPayload = "70028E"
)

// State is the connection lifecycle phase.
type State int

const (
	// StateDisconnected is the initial and final state.
	StateDisconnected State = iota

	// StateConnecting covers the initial dial and handshake.
	StateConnecting

	// StateSyncing covers the post-connect state refresh.
	StateSyncing

	// StateReady means commands flow normally.
	StateReady

	// StateReconnecting means the transport was lost and the session is
	// being re-established.
	StateReconnecting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSyncing:
		return "syncing"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Config holds PIM session configuration.
type Config struct {
	// URL is the connection URL, "serial://device[:baud]" or
	// "tcp://host[:port]". Ignored when Dial is set.
	URL string

	// ConnectTimeout is the maximum time to wait for a dial.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// ResponseTimeout bounds one transmission attempt.
	// Default: 5 seconds.
	ResponseTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection
	// attempts. Default: 5 seconds.
	ReconnectInterval time.Duration

	// HeartbeatTimeout is how long the line may stay silent before the
	// session is torn down and re-established. Zero selects the 90 second
	// default; negative disables the heartbeat.
	HeartbeatTimeout time.Duration

	// TransmitCount is how many times a command is transmitted before
	// ErrCommandFailed, clamped to 1-4. Default: 1.
	TransmitCount int

	// Dial overrides the transport. Intended for tests and unusual
	// transports; when set, URL is not consulted.
	Dial DialFunc
}

// Stats holds operational counters for the session.
type Stats struct {
	LinesTx         uint64
	LinesRx         uint64
	PacketsRx       uint64
	PacketsDropped  uint64 // Repeater duplicates and queue overflow
	Retries         uint64 // Retransmissions after nak, busy or timeout
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	LastActivity    time.Time
	State           State
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Session is the subset of Conn the client layer depends on. It exists so
// tests can substitute a scripted implementation.
type Session interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, packet string) error
	SetOnMessage(func(message.Response))
	SetOnState(func(State))
	SetSyncHook(func(context.Context))
	State() State
	Close() error
}

// Ensure Conn implements Session.
var _ Session = (*Conn)(nil)

// Conn is a PIM session over a serial device or TCP bridge.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - The message callback runs on a single dedicated goroutine, so
//     powerline packets are delivered in arrival order.
type Conn struct {
	cfg       Config
	dial      DialFunc
	heartbeat time.Duration // 0 disables
	txCount   int

	// Transport and lifecycle state
	mu        sync.RWMutex
	transport io.ReadWriteCloser
	state     State

	// writeMu serialises raw line writes; sendMu serialises whole
	// command transactions on top of it.
	writeMu sync.Mutex
	sendMu  sync.Mutex

	// pending receives the non-update responses for the command in
	// flight, nil when no command is outstanding.
	pendingMu sync.Mutex
	pending   chan message.Response

	// Callbacks
	cbMu      sync.RWMutex
	onMessage func(message.Response)
	onState   func(State)
	syncHook  func(context.Context)

	// Message callback queue, drained by a single worker.
	queue chan message.Response

	// Repeater suppression; touched only by the receive goroutine.
	lastPacket   *message.Packet
	lastPacketAt time.Time

	// Shutdown coordination
	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	// Statistics
	linesTx         atomic.Uint64
	linesRx         atomic.Uint64
	packetsRx       atomic.Uint64
	packetsDropped  atomic.Uint64
	retries         atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64 // Unix nanoseconds
}

// New creates a session from the configuration. The transport is not opened
// until Connect.
func New(cfg Config) (*Conn, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ResponseTimeout == 0 {
		cfg.ResponseTimeout = defaultResponseTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}

	heartbeat := cfg.HeartbeatTimeout
	switch {
	case heartbeat == 0:
		heartbeat = defaultHeartbeatTimeout
	case heartbeat < 0:
		heartbeat = 0
	}

	txCount := cfg.TransmitCount
	if txCount < 1 {
		txCount = defaultTransmitCount
	}
	if txCount > maxTransmitCount {
		txCount = maxTransmitCount
	}

	dial := cfg.Dial
	if dial == nil {
		endpoint, err := ParseURL(cfg.URL)
		if err != nil {
			return nil, err
		}
		dial = endpoint.dialer()
	}

	return &Conn{
		cfg:       cfg,
		dial:      dial,
		heartbeat: heartbeat,
		txCount:   txCount,
		queue:     make(chan message.Response, callbackQueueSize),
		done:      newCloseOnce(),
	}, nil
}

// SetLogger sets the logger for this session.
func (c *Conn) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// SetOnMessage sets the callback for unsolicited powerline packets and
// register reports. Register before Connect.
func (c *Conn) SetOnMessage(fn func(message.Response)) {
	c.cbMu.Lock()
	c.onMessage = fn
	c.cbMu.Unlock()
}

// SetOnState sets the callback invoked on every state transition. Register
// before Connect.
func (c *Conn) SetOnState(fn func(State)) {
	c.cbMu.Lock()
	c.onState = fn
	c.cbMu.Unlock()
}

// SetSyncHook sets the hook run in the syncing state after every connect and
// reconnect, typically to request state reports from known devices. The
// session reaches ready when the hook returns. Register before Connect.
func (c *Conn) SetSyncHook(fn func(context.Context)) {
	c.cbMu.Lock()
	c.syncHook = fn
	c.cbMu.Unlock()
}

// Connect dials the PIM, performs the connect housekeeping and starts the
// session goroutines. It returns once the session is ready; the sync hook,
// if any, runs on the calling goroutine.
func (c *Conn) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	if !c.transition(StateDisconnected, StateConnecting) {
		return fmt.Errorf("%w: session already started", ErrConnectionFailed)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	transport, err := c.dial(dialCtx)
	cancel()
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.mu.Lock()
	c.transport = transport
	c.mu.Unlock()
	c.lastActivity.Store(time.Now().UnixNano())

	if err := c.handshake(); err != nil {
		c.closeTransport()
		c.setState(StateDisconnected)
		return err
	}

	c.wg.Add(2)
	go c.receiveLoop()
	go c.callbackWorker()
	if c.heartbeat > 0 {
		c.wg.Add(1)
		go c.heartbeatLoop()
	}

	c.runSync()
	return nil
}

// handshake writes the connect housekeeping: flush the PIM's buffer, then
// force message mode. Responses arrive asynchronously and are discarded.
func (c *Conn) handshake() error {
	if err := c.writeLine(message.PimReadRegisters, flushRegistersPayload); err != nil {
		return fmt.Errorf("%w: handshake: %v", ErrConnectionFailed, err)
	}
	if err := c.writeLine(message.PimWriteRegisters, messageModeRegsPayload); err != nil {
		return fmt.Errorf("%w: handshake: %v", ErrConnectionFailed, err)
	}
	return nil
}

// runSync moves through syncing to ready, running the sync hook if set.
func (c *Conn) runSync() {
	c.setState(StateSyncing)

	c.cbMu.RLock()
	hook := c.syncHook
	c.cbMu.RUnlock()

	if hook != nil {
		hook(context.Background())
	}
	if c.isClosed() {
		return
	}
	c.setState(StateReady)
}

// Close shuts the session down and waits for its goroutines to finish. Safe
// to call multiple times.
func (c *Conn) Close() error {
	c.done.Close()
	c.closeTransport()
	c.wg.Wait()
	c.setState(StateDisconnected)
	c.logInfo("session closed")
	return nil
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the transport is up and past the handshake.
func (c *Conn) IsConnected() bool {
	s := c.State()
	return s == StateSyncing || s == StateReady
}

// Send transmits a UPB packet, already encoded as hex text, and waits for
// the powerline acknowledgement. On a nak, busy, error or timeout the packet
// is retransmitted up to the configured transmit count; exhausting the
// attempts returns ErrCommandFailed.
func (c *Conn) Send(ctx context.Context, packet string) error {
	_, err := c.transact(ctx, message.PimTransmitUPB, packet, message.KindAck, c.txCount)
	return err
}

// ReadRegisters reads count bytes of PIM registers starting at start and
// returns the raw report payload.
func (c *Conn) ReadRegisters(ctx context.Context, start, count byte) ([]byte, error) {
	resp, err := c.transact(ctx, message.PimReadRegisters,
		registerPayload(start, count), message.KindRegisterReport, 1)
	if err != nil {
		return nil, err
	}
	values, err := hex.DecodeString(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: bad register report %q", ErrCommandFailed, resp.Data)
	}
	return values, nil
}

// WriteRegisters writes values into PIM registers starting at start.
func (c *Conn) WriteRegisters(ctx context.Context, start byte, values []byte) error {
	_, err := c.transact(ctx, message.PimWriteRegisters,
		registerPayload(start, values...), message.KindAccepted, 1)
	return err
}

// registerPayload appends the checksum to a register command body and
// returns it as uppercase hex.
func registerPayload(start byte, rest ...byte) string {
	body := append([]byte{start}, rest...)
	var sum byte
	for _, b := range body {
		sum += b
	}
	body = append(body, -sum)
	return strings.ToUpper(hex.EncodeToString(body))
}

// transact runs one command to completion: write, wait for the wanted
// terminal response, retry on nak, busy, error or timeout. Only one
// transaction runs at a time.
func (c *Conn) transact(ctx context.Context, cmd message.PimCommand, payload string,
	want message.ResponseKind, attempts int) (message.Response, error) {

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	var lastKind string
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			c.retries.Add(1)
			c.logDebug("retransmitting command", "attempt", attempt, "payload", payload)
		}

		resp, retry, err := c.attempt(ctx, cmd, payload, want)
		if err == nil {
			return resp, nil
		}
		if !retry {
			return message.Response{}, err
		}
		lastKind = err.Error()
	}

	c.errorsTotal.Add(1)
	return message.Response{}, fmt.Errorf("%w: %s after %d transmissions",
		ErrCommandFailed, lastKind, attempts)
}

// attempt performs a single write-and-wait cycle. retry is true when the
// failure warrants a retransmission.
func (c *Conn) attempt(ctx context.Context, cmd message.PimCommand, payload string,
	want message.ResponseKind) (resp message.Response, retry bool, err error) {

	respCh := make(chan message.Response, pendingBuffer)
	c.setPending(respCh)
	defer c.setPending(nil)

	if err := c.writeLine(cmd, payload); err != nil {
		return message.Response{}, false, err
	}

	timer := time.NewTimer(c.cfg.ResponseTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return message.Response{}, false, ctx.Err()
		case <-c.done.Done():
			return message.Response{}, false, ErrClosed
		case <-timer.C:
			return message.Response{}, true, errors.New("response timeout")
		case resp := <-respCh:
			if resp.Kind == want {
				return resp, false, nil
			}
			if !resp.Kind.Terminal() {
				// Accepted; the terminal response is still to come.
				continue
			}
			switch resp.Kind {
			case message.KindNak, message.KindBusy, message.KindError:
				return message.Response{}, true, fmt.Errorf("%s", resp.Kind)
			default:
				c.logDebug("unexpected response during command",
					"kind", resp.Kind.String())
			}
		}
	}
}

// writeLine frames and writes one command line: lead byte, payload, CR.
func (c *Conn) writeLine(cmd message.PimCommand, payload string) error {
	c.mu.RLock()
	transport := c.transport
	c.mu.RUnlock()
	if transport == nil {
		return ErrNotConnected
	}

	line := make([]byte, 0, len(payload)+2)
	line = append(line, byte(cmd))
	line = append(line, payload...)
	line = append(line, '\r')

	c.writeMu.Lock()
	_, err := transport.Write(line)
	c.writeMu.Unlock()
	if err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %v", ErrNotConnected, err)
	}

	c.linesTx.Add(1)
	c.lastActivity.Store(time.Now().UnixNano())
	return nil
}

// receiveLoop reads lines until shutdown, reconnecting on transport loss.
func (c *Conn) receiveLoop() {
	defer c.wg.Done()

	reader := bufio.NewReader(c.currentTransport())

	for {
		line, err := reader.ReadString('\r')
		if err != nil {
			if c.isClosed() {
				return
			}
			c.errorsTotal.Add(1)
			c.logError("read failed", err)
			if !c.reconnect() {
				return
			}
			reader = bufio.NewReader(c.currentTransport())
			continue
		}

		c.linesRx.Add(1)
		c.lastActivity.Store(time.Now().UnixNano())

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		resp, err := message.Decode(line)
		if err != nil {
			// A garbled frame is discarded, never fatal.
			c.errorsTotal.Add(1)
			c.logDebug("discarding undecodable line", "line", line, "error", err)
			continue
		}
		c.route(resp)
	}
}

// route dispatches one decoded line: powerline updates go to the callback
// queue, everything else to the outstanding command.
func (c *Conn) route(resp message.Response) {
	if resp.Kind == message.KindUpdate {
		if c.isRepeatedPacket(*resp.Packet) {
			c.packetsDropped.Add(1)
			return
		}
		c.packetsRx.Add(1)
		select {
		case c.queue <- resp:
		default:
			c.packetsDropped.Add(1)
			c.logError("callback queue full, dropping packet", nil)
		}
		return
	}

	c.pendingMu.Lock()
	pending := c.pending
	c.pendingMu.Unlock()

	if pending != nil {
		select {
		case pending <- resp:
		default:
		}
		return
	}
	c.logDebug("response with no command outstanding", "kind", resp.Kind.String())
}

// isRepeatedPacket reports whether pkt is a repeater copy of the previous
// packet: identical apart from the transmit sequence and inside the
// suppression window.
func (c *Conn) isRepeatedPacket(pkt message.Packet) bool {
	now := time.Now()
	if c.lastPacket != nil &&
		now.Sub(c.lastPacketAt) < repeatedPacketWindow &&
		pkt.SameIgnoringSequence(*c.lastPacket) {
		c.lastPacketAt = now
		return true
	}
	c.lastPacket = &pkt
	c.lastPacketAt = now
	return false
}

// callbackWorker delivers queued messages one at a time so powerline packets
// are observed in arrival order.
func (c *Conn) callbackWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			c.drainQueue()
			return
		case resp := <-c.queue:
			c.cbMu.RLock()
			callback := c.onMessage
			c.cbMu.RUnlock()

			if callback == nil {
				continue
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						c.logError("message callback panic", fmt.Errorf("%v", r))
					}
				}()
				callback(resp)
			}()
		}
	}
}

// drainQueue discards queued messages during shutdown.
func (c *Conn) drainQueue() {
	for {
		select {
		case <-c.queue:
		default:
			return
		}
	}
}

// heartbeatLoop tears the transport down when the line stays silent past
// the heartbeat timeout; the receive loop then reconnects.
func (c *Conn) heartbeatLoop() {
	defer c.wg.Done()

	interval := c.heartbeat / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done.Done():
			return
		case <-ticker.C:
			if !c.IsConnected() {
				continue
			}
			last := time.Unix(0, c.lastActivity.Load())
			if time.Since(last) <= c.heartbeat {
				continue
			}
			c.logWarn("no traffic within heartbeat window, forcing reconnect",
				"timeout", c.heartbeat.String())
			c.lastActivity.Store(time.Now().UnixNano())
			c.closeTransport()
		}
	}
}

// reconnect re-establishes the session with exponential backoff. Returns
// false if shutdown was signalled. Runs on the receive goroutine.
func (c *Conn) reconnect() bool {
	c.setState(StateReconnecting)
	c.closeTransport()

	backoff := c.cfg.ReconnectInterval
	attempt := 0

	for {
		if c.isClosed() {
			return false
		}
		attempt++
		c.logInfo("attempting reconnection", "attempt", attempt,
			"backoff", backoff.String())

		if err := c.redial(); err != nil {
			c.errorsTotal.Add(1)
			c.logError("reconnect failed", err)

			select {
			case <-c.done.Done():
				return false
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * 1.5)
			if backoff > maxReconnectInterval {
				backoff = maxReconnectInterval
			}
			continue
		}

		c.reconnectsTotal.Add(1)
		c.lastActivity.Store(time.Now().UnixNano())
		c.logInfo("reconnection successful",
			"total_reconnects", c.reconnectsTotal.Load())

		// The sync hook sends commands and waits for responses this
		// goroutine delivers, so it must run elsewhere.
		go c.runSync()
		return true
	}
}

// redial opens a fresh transport and replays the connect housekeeping.
func (c *Conn) redial() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	transport, err := c.dial(ctx)
	cancel()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.transport = transport
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.closeTransport()
		return err
	}
	return nil
}

// Stats returns current operational statistics.
func (c *Conn) Stats() Stats {
	return Stats{
		LinesTx:         c.linesTx.Load(),
		LinesRx:         c.linesRx.Load(),
		PacketsRx:       c.packetsRx.Load(),
		PacketsDropped:  c.packetsDropped.Load(),
		Retries:         c.retries.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(0, c.lastActivity.Load()),
		State:           c.State(),
	}
}

func (c *Conn) setPending(ch chan message.Response) {
	c.pendingMu.Lock()
	c.pending = ch
	c.pendingMu.Unlock()
}

func (c *Conn) currentTransport() io.ReadWriteCloser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transport
}

func (c *Conn) closeTransport() {
	c.mu.Lock()
	if c.transport != nil {
		c.transport.Close()
		c.transport = nil
	}
	c.mu.Unlock()
}

// transition moves from one specific state to another, returning false if
// the session was in neither.
func (c *Conn) transition(from, to State) bool {
	c.mu.Lock()
	if c.state != from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.mu.Unlock()
	c.notifyState(to)
	return true
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	c.notifyState(s)
}

func (c *Conn) notifyState(s State) {
	c.logDebug("state changed", "state", s.String())

	c.cbMu.RLock()
	callback := c.onState
	c.cbMu.RUnlock()
	if callback != nil {
		callback(s)
	}
}

// isClosed returns true if the session has been closed.
func (c *Conn) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

func (c *Conn) logDebug(msg string, args ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, args...)
	}
}

func (c *Conn) logInfo(msg string, args ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, args...)
	}
}

func (c *Conn) logWarn(msg string, args ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, args...)
	}
}

func (c *Conn) logError(msg string, err error) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (c *Conn) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
