package upb

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gwww/upb-lib/events"
	"github.com/gwww/upb-lib/message"
	"github.com/gwww/upb-lib/pim"
	"github.com/gwww/upb-lib/registry"
	"github.com/gwww/upb-lib/upstart"
)

// Logger defines the logging interface used across the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client is the top-level handle on a UPB network.
//
// All state flows one way: commands go out through the session, and the
// registry is only ever mutated from powerline reports and optimistic
// updates applied on the session's callback goroutine, so snapshots and
// events are always consistent.
type Client struct {
	cfg     Config
	enc     message.Encoder
	session pim.Session
	reg     *registry.Registry
	bus     *events.Bus

	logger Logger

	// connected tracks the edge for connect/disconnect events.
	connected atomic.Bool
}

// NewClient creates a client for the configured PIM. The export document, if
// configured, is loaded immediately; the transport is not opened until
// Connect.
func NewClient(cfg Config) (*Client, error) {
	session, err := pim.New(pim.Config{
		URL:              cfg.URL,
		TransmitCount:    cfg.transmitCount(),
		HeartbeatTimeout: cfg.Flags.heartbeatTimeout(),
	})
	if err != nil {
		return nil, err
	}
	return newClient(cfg, session)
}

// newClient wires a client around any session implementation.
func newClient(cfg Config, session pim.Session) (*Client, error) {
	c := &Client{
		cfg:     cfg,
		enc:     message.NewEncoder(cfg.transmitCount()),
		session: session,
		reg:     registry.New(),
		bus:     events.New(),
		logger:  noopLogger{},
	}

	if cfg.ExportFilePath != "" {
		if err := upstart.ParseFile(cfg.ExportFilePath, c.reg, c.logger); err != nil {
			return nil, fmt.Errorf("load export document: %w", err)
		}
	}

	c.reg.SetOnDeviceUpdated(func(d registry.Device) {
		c.bus.Publish(events.Event{Topic: events.DeviceUpdated, Device: &d})
	})
	c.reg.SetOnLinkChanged(func(l registry.Link) {
		c.bus.Publish(events.Event{Topic: events.LinkActivated, Link: &l})
	})

	session.SetOnMessage(c.handleMessage)
	session.SetOnState(c.handleState)
	if !cfg.Flags.NoSync {
		session.SetSyncHook(c.syncStates)
	}
	return c, nil
}

// SetLogger sets the logger for the client and its components. Call before
// Connect.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	c.logger = logger
	c.reg.SetLogger(logger)
	c.bus.SetLogger(logger)
	if conn, ok := c.session.(*pim.Conn); ok {
		conn.SetLogger(logger)
	}
}

// Connect opens the PIM session. It returns once the session is ready;
// state synchronisation with known devices happens during the call unless
// the no_sync flag is set.
func (c *Client) Connect(ctx context.Context) error {
	return c.session.Connect(ctx)
}

// Disconnect shuts the session down.
func (c *Client) Disconnect() error {
	return c.session.Close()
}

// Bus returns the event bus. Subscribe before Connect to observe the initial
// sync.
func (c *Client) Bus() *events.Bus { return c.bus }

// NetworkID returns the network ID from the export document, zero if none
// was loaded.
func (c *Client) NetworkID() byte { return c.reg.NetworkID() }

// Device returns a snapshot of the device with the given canonical key,
// "{network}_{device}_{channel}".
func (c *Client) Device(key string) (registry.Device, bool) { return c.reg.Device(key) }

// Devices returns snapshots of all known devices, ordered by key.
func (c *Client) Devices() []registry.Device { return c.reg.Devices() }

// Link returns a snapshot of the link with the given canonical key,
// "{network}_{link}".
func (c *Client) Link(key string) (registry.Link, bool) { return c.reg.Link(key) }

// Links returns snapshots of all known links, ordered by key.
func (c *Client) Links() []registry.Link { return c.reg.Links() }

// TurnOn sets a device to a level (0-100). rateSeconds is the fade time in
// seconds; negative selects the device's configured default. With the
// use_raw_rate flag the value is used directly as a UPB rate code.
func (c *Client) TurnOn(ctx context.Context, key string, level int, rateSeconds float64) error {
	level = clampLevel(level)
	addr, dev, err := c.deviceAddr(key)
	if err != nil {
		return err
	}

	pkt := c.enc.Goto(addr, level, c.rateCode(rateSeconds))
	if err := c.session.Send(ctx, pkt); err != nil {
		return err
	}
	c.afterDeviceCommand(ctx, addr, dev.Addr, level, false)
	return nil
}

// TurnOff turns a device off, fading over rateSeconds.
func (c *Client) TurnOff(ctx context.Context, key string, rateSeconds float64) error {
	return c.TurnOn(ctx, key, 0, rateSeconds)
}

// FadeStart starts fading a device towards level. The device keeps fading
// until it reaches the level or FadeStop is called.
func (c *Client) FadeStart(ctx context.Context, key string, level int, rateSeconds float64) error {
	level = clampLevel(level)
	addr, dev, err := c.deviceAddr(key)
	if err != nil {
		return err
	}

	pkt := c.enc.FadeStart(addr, level, c.rateCode(rateSeconds))
	if err := c.session.Send(ctx, pkt); err != nil {
		return err
	}
	c.afterDeviceCommand(ctx, addr, dev.Addr, level, true)
	return nil
}

// FadeStop stops a fade in progress. The device holds whatever level it
// reached; a state report is requested to learn it when the report_state
// flag is set.
func (c *Client) FadeStop(ctx context.Context, key string) error {
	addr, dev, err := c.deviceAddr(key)
	if err != nil {
		return err
	}

	if err := c.session.Send(ctx, c.enc.FadeStop(addr)); err != nil {
		return err
	}
	if c.cfg.Flags.ReportState {
		return c.session.Send(ctx, c.enc.ReportState(addr))
	}
	c.reg.ApplyDeviceLevel(dev.Addr, dev.Status.Level, false)
	return nil
}

// Blink blinks a device. interval is in 1/60 second units and is clamped to
// the half-second floor unless the unlimited_blink_rate flag is set.
func (c *Client) Blink(ctx context.Context, key string, interval int) error {
	addr, dev, err := c.deviceAddr(key)
	if err != nil {
		return err
	}

	interval = message.ClampBlinkInterval(interval, c.cfg.Flags.UnlimitedBlinkRate)
	if err := c.session.Send(ctx, c.enc.Blink(addr, interval)); err != nil {
		return err
	}
	c.afterDeviceCommand(ctx, addr, dev.Addr, 100, false)
	return nil
}

// RequestStatus asks a device to report its state. The report arrives
// asynchronously and is applied to the registry when it does.
func (c *Client) RequestStatus(ctx context.Context, key string) error {
	addr, _, err := c.deviceAddr(key)
	if err != nil {
		return err
	}
	return c.session.Send(ctx, c.enc.ReportState(addr))
}

// ActivateLink activates a link (scene): every member takes its preset
// level.
func (c *Client) ActivateLink(ctx context.Context, key string) error {
	addr, err := registry.ParseLinkKey(key)
	if err != nil {
		return err
	}
	if err := c.session.Send(ctx, c.enc.ActivateLink(addr.Network, addr.Link)); err != nil {
		return err
	}
	c.reg.ApplyLinkAction(addr, registry.LinkActivate, 0)
	return nil
}

// DeactivateLink deactivates a link: every member turns off.
func (c *Client) DeactivateLink(ctx context.Context, key string) error {
	addr, err := registry.ParseLinkKey(key)
	if err != nil {
		return err
	}
	if err := c.session.Send(ctx, c.enc.DeactivateLink(addr.Network, addr.Link)); err != nil {
		return err
	}
	c.reg.ApplyLinkAction(addr, registry.LinkDeactivate, 0)
	return nil
}

// LinkGoto sets every member of a link to an explicit level.
func (c *Client) LinkGoto(ctx context.Context, key string, level int, rateSeconds float64) error {
	level = clampLevel(level)
	addr, err := registry.ParseLinkKey(key)
	if err != nil {
		return err
	}
	pkt := c.enc.LinkGoto(addr.Network, addr.Link, level, c.rateCode(rateSeconds))
	if err := c.session.Send(ctx, pkt); err != nil {
		return err
	}
	c.reg.ApplyLinkAction(addr, registry.LinkGoto, level)
	return nil
}

// deviceAddr resolves a canonical key into a wire address, creating the
// registry entry if the device has never been seen.
func (c *Client) deviceAddr(key string) (message.Addr, registry.Device, error) {
	regAddr, err := registry.ParseDeviceKey(key)
	if err != nil {
		return message.Addr{}, registry.Device{}, err
	}
	dev := c.reg.EnsureDevice(regAddr)
	return message.Addr{
		Network:      regAddr.Network,
		ID:           regAddr.Device,
		Channel:      regAddr.Channel,
		MultiChannel: dev.MultiChannel,
	}, dev, nil
}

// afterDeviceCommand settles the device's registry state after a successful
// command: either trust the commanded level, or ask the device what actually
// happened.
func (c *Client) afterDeviceCommand(ctx context.Context, addr message.Addr,
	regAddr registry.DeviceAddr, level int, transitioning bool) {

	if c.cfg.Flags.ReportState {
		if err := c.session.Send(ctx, c.enc.ReportState(addr)); err != nil {
			c.logger.Warn("post-command state request failed",
				"device", regAddr.Key(), "error", err)
		}
		return
	}
	c.reg.ApplyDeviceLevel(regAddr, level, transitioning)
}

// rateCode converts a rate argument in seconds to a UPB rate code, honouring
// the use_raw_rate flag. Negative means device default.
func (c *Client) rateCode(rateSeconds float64) int {
	return message.SecondsToRate(rateSeconds, c.cfg.Flags.UseRawRate)
}

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}

// syncStates requests a state report from every known device. Runs in the
// session's syncing phase after every connect and reconnect.
func (c *Client) syncStates(ctx context.Context) {
	devices := c.reg.Devices()
	c.logger.Info("synchronising device states", "devices", len(devices))

	for _, dev := range devices {
		// One report covers all channels of a device.
		if dev.Addr.Channel != 0 {
			continue
		}
		addr := message.Addr{
			Network:      dev.Addr.Network,
			ID:           dev.Addr.Device,
			Channel:      dev.Addr.Channel,
			MultiChannel: dev.MultiChannel,
		}
		if err := c.session.Send(ctx, c.enc.ReportState(addr)); err != nil {
			c.logger.Warn("state request failed during sync",
				"device", dev.Key(), "error", err)
		}
	}
}

// handleMessage applies one powerline packet to the registry. Runs on the
// session's callback goroutine, which is the registry's single writer.
func (c *Client) handleMessage(resp message.Response) {
	if resp.Kind != message.KindUpdate || resp.Packet == nil {
		return
	}
	pkt := *resp.Packet

	if pkt.Link {
		c.handleLinkPacket(pkt)
		return
	}

	switch pkt.Command {
	case message.CmdDeviceStateReport:
		// One level byte per channel, reported by the source device.
		for channel, level := range pkt.Data {
			c.reg.ApplyDeviceLevel(registry.DeviceAddr{
				Network: pkt.NetworkID,
				Device:  pkt.SrcID,
				Channel: channel,
			}, int(level), false)
		}

	case message.CmdGoto, message.CmdFadeStart:
		// Another controller commanded the destination device; mirror
		// the level it was told to take.
		if len(pkt.Data) == 0 {
			return
		}
		channel := 0
		if len(pkt.Data) >= 3 && pkt.Data[2] > 0 {
			channel = int(pkt.Data[2]) - 1
		}
		c.reg.ApplyDeviceLevel(registry.DeviceAddr{
			Network: pkt.NetworkID,
			Device:  pkt.DestID,
			Channel: channel,
		}, int(pkt.Data[0]), pkt.Command == message.CmdFadeStart)

	default:
		c.logger.Debug("unhandled powerline packet", "packet", pkt.String())
	}
}

// handleLinkPacket mirrors a scene command seen on the powerline.
func (c *Client) handleLinkPacket(pkt message.Packet) {
	addr := registry.LinkAddr{Network: pkt.NetworkID, Link: pkt.DestID}

	switch pkt.Command {
	case message.CmdActivateLink:
		c.reg.ApplyLinkAction(addr, registry.LinkActivate, 0)
	case message.CmdDeactivateLink:
		c.reg.ApplyLinkAction(addr, registry.LinkDeactivate, 0)
	case message.CmdGoto:
		if len(pkt.Data) == 0 {
			return
		}
		c.reg.ApplyLinkAction(addr, registry.LinkGoto, clampLevel(int(pkt.Data[0])))
	default:
		c.logger.Debug("unhandled link packet", "packet", pkt.String())
	}
}

// handleState publishes connect/disconnect events on state edges.
func (c *Client) handleState(s pim.State) {
	switch s {
	case pim.StateReady:
		if c.connected.CompareAndSwap(false, true) {
			c.bus.Publish(events.Event{Topic: events.Connected})
		}
	case pim.StateReconnecting, pim.StateDisconnected:
		if c.connected.CompareAndSwap(true, false) {
			c.bus.Publish(events.Event{Topic: events.Disconnected})
		}
	}
}
