package registry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DeviceAddr is the addressing triple identifying a single controllable
// endpoint: network ID, device ID and 0-based channel.
type DeviceAddr struct {
	Network byte
	Device  byte
	Channel int
}

// Key returns the canonical device key, "{network}_{device}_{channel}".
func (a DeviceAddr) Key() string {
	return fmt.Sprintf("%d_%d_%d", a.Network, a.Device, a.Channel)
}

// String returns the canonical key.
func (a DeviceAddr) String() string { return a.Key() }

// ParseDeviceKey parses a canonical device key back into its address.
func ParseDeviceKey(key string) (DeviceAddr, error) {
	parts := strings.Split(key, "_")
	if len(parts) != 3 {
		return DeviceAddr{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	network, err := parseByte(parts[0])
	if err != nil {
		return DeviceAddr{}, fmt.Errorf("%w: %q: %v", ErrInvalidKey, key, err)
	}
	device, err := parseByte(parts[1])
	if err != nil {
		return DeviceAddr{}, fmt.Errorf("%w: %q: %v", ErrInvalidKey, key, err)
	}
	channel, err := strconv.Atoi(parts[2])
	if err != nil || channel < 0 {
		return DeviceAddr{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return DeviceAddr{Network: network, Device: device, Channel: channel}, nil
}

// LinkAddr identifies a link (scene) on a network.
type LinkAddr struct {
	Network byte
	Link    byte
}

// Key returns the canonical link key, "{network}_{link}".
func (a LinkAddr) Key() string {
	return fmt.Sprintf("%d_%d", a.Network, a.Link)
}

// String returns the canonical key.
func (a LinkAddr) String() string { return a.Key() }

// ParseLinkKey parses a canonical link key back into its address.
func ParseLinkKey(key string) (LinkAddr, error) {
	parts := strings.Split(key, "_")
	if len(parts) != 2 {
		return LinkAddr{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	network, err := parseByte(parts[0])
	if err != nil {
		return LinkAddr{}, fmt.Errorf("%w: %q: %v", ErrInvalidKey, key, err)
	}
	link, err := parseByte(parts[1])
	if err != nil {
		return LinkAddr{}, fmt.Errorf("%w: %q: %v", ErrInvalidKey, key, err)
	}
	return LinkAddr{Network: network, Link: link}, nil
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

// Status is a device's last known state.
type Status struct {
	// Level is the brightness 0-100. Meaningless until Known is true.
	Level int

	// Transitioning is true while a fade is believed to be in progress.
	Transitioning bool

	// Known is false until the first report or optimistic update arrives.
	Known bool

	// UpdatedAt is when the status last changed.
	UpdatedAt time.Time
}

// Device is one addressable powerline endpoint.
type Device struct {
	Addr DeviceAddr

	// Name is the display name from the export document.
	Name string

	// Dimmable is the device's capability; switch-only devices snap to
	// 0 or 100.
	Dimmable bool

	// MultiChannel marks devices with more than one channel.
	MultiChannel bool

	// Version, Manufacturer, Product and Kind are metadata from the
	// export document, empty for lazily created devices.
	Version      string
	Manufacturer string
	Product      string
	Kind         string

	Status Status
}

// Key returns the device's canonical key.
func (d *Device) Key() string { return d.Addr.Key() }

// clone returns a copy safe to hand outside the registry.
func (d *Device) clone() Device { return *d }

// LinkMember is one device's participation in a link, with the level the
// device takes when the link activates.
type LinkMember struct {
	DeviceKey string
	DimLevel  int
}

// Link is a named group of devices activated together as one scene.
// Membership is fixed after load.
type Link struct {
	Addr LinkAddr

	Name string

	// Members lists the participating devices in export-file order.
	Members []LinkMember

	// LastAction records the most recent scene command applied, for
	// subscribers that surface scene state.
	LastAction   LinkAction
	LastActionAt time.Time
}

// Key returns the link's canonical key.
func (l *Link) Key() string { return l.Addr.Key() }

func (l *Link) clone() Link {
	out := *l
	out.Members = make([]LinkMember, len(l.Members))
	copy(out.Members, l.Members)
	return out
}

// LinkAction is a scene command applied to a link.
type LinkAction int

const (
	// LinkActivate turns every member to its preset dim level.
	LinkActivate LinkAction = iota

	// LinkDeactivate turns every member off.
	LinkDeactivate

	// LinkGoto sets every member to an explicit level.
	LinkGoto
)

// String returns the action mnemonic.
func (a LinkAction) String() string {
	switch a {
	case LinkActivate:
		return "activate"
	case LinkDeactivate:
		return "deactivate"
	case LinkGoto:
		return "goto"
	default:
		return "unknown"
	}
}
