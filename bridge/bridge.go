package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	upb "github.com/gwww/upb-lib"
	"github.com/gwww/upb-lib/events"
	"github.com/gwww/upb-lib/registry"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for the initial
	// broker connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for a publish
	// acknowledgement.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time in milliseconds to wait for
	// pending operations on disconnect.
	defaultDisconnectQuiesce = 1000

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultClientID identifies the bridge to the broker.
	defaultClientID = "upb-bridge"

	// commandTimeout bounds one powerline command triggered over MQTT.
	commandTimeout = 30 * time.Second
)

// Config holds broker and topic configuration.
type Config struct {
	// BrokerURL is the broker address, e.g. "tcp://localhost:1883" or
	// "ssl://broker:8883".
	BrokerURL string

	// ClientID identifies this bridge to the broker.
	// Default: "upb-bridge".
	ClientID string

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// TopicPrefix is the topic namespace. Default: "upb".
	TopicPrefix string

	// QoS is the quality of service for all publishes and subscriptions,
	// clamped to 0-2. Default: 1.
	QoS byte
}

// Controller is the slice of the client the bridge drives. It exists so
// tests can substitute a scripted implementation.
type Controller interface {
	TurnOn(ctx context.Context, key string, level int, rateSeconds float64) error
	TurnOff(ctx context.Context, key string, rateSeconds float64) error
	RequestStatus(ctx context.Context, key string) error
	ActivateLink(ctx context.Context, key string) error
	DeactivateLink(ctx context.Context, key string) error
	LinkGoto(ctx context.Context, key string, level int, rateSeconds float64) error
	Bus() *events.Bus
}

// Ensure the client satisfies Controller.
var _ Controller = (*upb.Client)(nil)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bridge mirrors UPB state onto MQTT and feeds MQTT commands back to the
// powerline.
type Bridge struct {
	cfg    Config
	topics Topics
	ctl    Controller
	mqtt   pahomqtt.Client
	logger Logger

	cancels []func()
}

// devicePayload is the JSON published on device state topics.
type devicePayload struct {
	Key           string    `json:"key"`
	Name          string    `json:"name,omitempty"`
	Level         int       `json:"level"`
	Transitioning bool      `json:"transitioning"`
	Known         bool      `json:"known"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// linkPayload is the JSON published on link state topics.
type linkPayload struct {
	Key        string    `json:"key"`
	Name       string    `json:"name,omitempty"`
	LastAction string    `json:"last_action"`
	At         time.Time `json:"at"`
}

// commandPayload is the JSON accepted on set topics. Level-only commands
// drive devices; action commands drive links.
type commandPayload struct {
	Level  *int     `json:"level,omitempty"`
	Rate   *float64 `json:"rate,omitempty"`
	Action string   `json:"action,omitempty"`
}

// New creates a bridge around a controller. Start connects it.
func New(cfg Config, ctl Controller) *Bridge {
	if cfg.ClientID == "" {
		cfg.ClientID = defaultClientID
	}
	if cfg.QoS > 2 {
		cfg.QoS = 2
	}
	return &Bridge{
		cfg:    cfg,
		topics: Topics{Prefix: cfg.TopicPrefix},
		ctl:    ctl,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the bridge. Call before Start.
func (b *Bridge) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Start connects to the broker, announces availability, subscribes to the
// command topics and begins mirroring bus events.
func (b *Bridge) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	opts := b.clientOptions()

	b.mqtt = pahomqtt.NewClient(opts)
	token := b.mqtt.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	if err := b.subscribeCommands(); err != nil {
		b.mqtt.Disconnect(defaultDisconnectQuiesce)
		return err
	}
	b.subscribeBus()

	b.publish(b.topics.Status(), []byte(`{"status":"online"}`), true)
	b.logger.Info("mqtt bridge started", "broker", b.cfg.BrokerURL,
		"prefix", b.topics.base())
	return nil
}

// clientOptions builds paho options: broker, credentials, auto-reconnect
// and an offline LWT on the status topic.
func (b *Bridge) clientOptions() *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(b.cfg.BrokerURL)
	opts.SetClientID(b.cfg.ClientID)
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWill(b.topics.Status(), `{"status":"offline"}`, b.cfg.QoS, true)

	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		// Subscriptions are restored by re-subscribing; retained state
		// topics already hold the latest values.
		b.publish(b.topics.Status(), []byte(`{"status":"online"}`), true)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		b.logger.Warn("mqtt connection lost", "error", err)
	})
	return opts
}

// subscribeCommands wires the device and link command topics.
func (b *Bridge) subscribeCommands() error {
	subs := map[string]pahomqtt.MessageHandler{
		b.topics.DeviceSetFilter(): b.wrap(b.handleDeviceSet),
		b.topics.DeviceGetFilter(): b.wrap(b.handleDeviceGet),
		b.topics.LinkSetFilter():   b.wrap(b.handleLinkSet),
	}
	for filter, handler := range subs {
		token := b.mqtt.Subscribe(filter, b.cfg.QoS, handler)
		if !token.WaitTimeout(defaultConnectTimeout) || token.Error() != nil {
			return fmt.Errorf("%w: subscribe %s: %v",
				ErrConnectionFailed, filter, token.Error())
		}
	}
	return nil
}

// subscribeBus mirrors registry events onto retained state topics.
func (b *Bridge) subscribeBus() {
	bus := b.ctl.Bus()
	b.cancels = append(b.cancels,
		bus.Subscribe(events.DeviceUpdated, func(e events.Event) {
			if e.Device != nil {
				b.publishDevice(*e.Device)
			}
		}),
		bus.Subscribe(events.LinkActivated, func(e events.Event) {
			if e.Link != nil {
				b.publishLink(*e.Link)
			}
		}),
		bus.Subscribe(events.Connected, func(events.Event) {
			b.publish(b.topics.Status(), []byte(`{"status":"online"}`), true)
		}),
		bus.Subscribe(events.Disconnected, func(events.Event) {
			b.publish(b.topics.Status(), []byte(`{"status":"degraded"}`), true)
		}),
	)
}

func (b *Bridge) publishDevice(d registry.Device) {
	payload, err := json.Marshal(devicePayload{
		Key:           d.Addr.Key(),
		Name:          d.Name,
		Level:         d.Status.Level,
		Transitioning: d.Status.Transitioning,
		Known:         d.Status.Known,
		UpdatedAt:     d.Status.UpdatedAt,
	})
	if err != nil {
		return
	}
	b.publish(b.topics.DeviceState(d.Addr.Key()), payload, true)
}

func (b *Bridge) publishLink(l registry.Link) {
	payload, err := json.Marshal(linkPayload{
		Key:        l.Addr.Key(),
		Name:       l.Name,
		LastAction: l.LastAction.String(),
		At:         l.LastActionAt,
	})
	if err != nil {
		return
	}
	b.publish(b.topics.LinkState(l.Addr.Key()), payload, true)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	if b.mqtt == nil {
		return
	}
	token := b.mqtt.Publish(topic, b.cfg.QoS, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		b.logger.Warn("mqtt publish timed out", "topic", topic)
	}
}

// handleDeviceSet drives a device from a set command.
func (b *Bridge) handleDeviceSet(topic string, payload []byte) error {
	key, err := b.topics.EntityKey(topic)
	if err != nil {
		return err
	}
	cmd, err := parseCommand(payload)
	if err != nil {
		return err
	}
	if cmd.Level == nil {
		return fmt.Errorf("%w: device command needs a level", ErrBadCommand)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	rate := -1.0
	if cmd.Rate != nil {
		rate = *cmd.Rate
	}
	if *cmd.Level <= 0 {
		return b.ctl.TurnOff(ctx, key, rate)
	}
	return b.ctl.TurnOn(ctx, key, *cmd.Level, rate)
}

// handleDeviceGet requests a state report.
func (b *Bridge) handleDeviceGet(topic string, _ []byte) error {
	key, err := b.topics.EntityKey(topic)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return b.ctl.RequestStatus(ctx, key)
}

// handleLinkSet drives a link from a set command.
func (b *Bridge) handleLinkSet(topic string, payload []byte) error {
	key, err := b.topics.EntityKey(topic)
	if err != nil {
		return err
	}
	cmd, err := parseCommand(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch cmd.Action {
	case "activate":
		return b.ctl.ActivateLink(ctx, key)
	case "deactivate":
		return b.ctl.DeactivateLink(ctx, key)
	case "goto", "":
		if cmd.Level == nil {
			return fmt.Errorf("%w: link goto needs a level", ErrBadCommand)
		}
		rate := -1.0
		if cmd.Rate != nil {
			rate = *cmd.Rate
		}
		return b.ctl.LinkGoto(ctx, key, *cmd.Level, rate)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrBadCommand, cmd.Action)
	}
}

func parseCommand(payload []byte) (commandPayload, error) {
	var cmd commandPayload
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return commandPayload{}, fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	return cmd, nil
}

// wrap adapts a command handler to paho's callback shape, with panic
// recovery and error logging.
func (b *Bridge) wrap(handler func(topic string, payload []byte) error) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("mqtt handler panic", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			b.logger.Warn("mqtt command rejected", "topic", msg.Topic(), "error", err)
		}
	}
}

// Close announces the graceful shutdown and disconnects from the broker.
func (b *Bridge) Close() error {
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil

	if b.mqtt != nil {
		b.publish(b.topics.Status(), []byte(`{"status":"offline"}`), true)
		b.mqtt.Disconnect(defaultDisconnectQuiesce)
	}
	return nil
}
