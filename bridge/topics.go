package bridge

import (
	"fmt"
	"strings"
)

// defaultPrefix is the topic namespace when none is configured.
const defaultPrefix = "upb"

// Topics builds the bridge's topic names from the configured prefix.
type Topics struct {
	Prefix string
}

func (t Topics) base() string {
	if t.Prefix == "" {
		return defaultPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Status is the bridge availability topic, also used for the LWT.
func (t Topics) Status() string {
	return t.base() + "/status"
}

// DeviceState is the retained state topic for one device.
func (t Topics) DeviceState(key string) string {
	return fmt.Sprintf("%s/device/%s/state", t.base(), key)
}

// LinkState is the retained state topic for one link.
func (t Topics) LinkState(key string) string {
	return fmt.Sprintf("%s/link/%s/state", t.base(), key)
}

// DeviceSetFilter matches set commands for any device.
func (t Topics) DeviceSetFilter() string {
	return t.base() + "/device/+/set"
}

// DeviceGetFilter matches state report requests for any device.
func (t Topics) DeviceGetFilter() string {
	return t.base() + "/device/+/get"
}

// LinkSetFilter matches set commands for any link.
func (t Topics) LinkSetFilter() string {
	return t.base() + "/link/+/set"
}

// EntityKey extracts the device or link key from a command topic,
// "{prefix}/device/{key}/set" and friends.
func (t Topics) EntityKey(topic string) (string, error) {
	rest, ok := strings.CutPrefix(topic, t.base()+"/")
	if !ok {
		return "", fmt.Errorf("%w: topic %q", ErrBadCommand, topic)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] == "" {
		return "", fmt.Errorf("%w: topic %q", ErrBadCommand, topic)
	}
	return parts[1], nil
}
