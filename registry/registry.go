package registry

import (
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
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

// Registry owns all Device and Link entities. Lookups return snapshots;
// change notifications fire after a mutation is committed and also carry
// snapshots.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
	links   map[string]*Link

	// networkID is the network described by the export document, zero
	// when no export file was supplied.
	networkID byte

	onDevice func(Device)
	onLink   func(Link)

	logger Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		links:   make(map[string]*Link),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetOnDeviceUpdated sets the callback fired after a device status change is
// committed. The callback receives a snapshot. Set before the connection
// starts; not synchronised against concurrent mutation.
func (r *Registry) SetOnDeviceUpdated(fn func(Device)) { r.onDevice = fn }

// SetOnLinkChanged sets the callback fired after a link action is applied.
func (r *Registry) SetOnLinkChanged(fn func(Link)) { r.onLink = fn }

// SetNetworkID records the network ID from the export overview record.
func (r *Registry) SetNetworkID(id byte) {
	r.mu.Lock()
	r.networkID = id
	r.mu.Unlock()
}

// NetworkID returns the network ID from the export document, zero if none.
func (r *Registry) NetworkID() byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.networkID
}

// AddDevice registers a device. An existing device with the same key is
// replaced.
func (r *Registry) AddDevice(d Device) {
	r.mu.Lock()
	r.devices[d.Key()] = &d
	r.mu.Unlock()
}

// AddLink registers a link.
func (r *Registry) AddLink(l Link) {
	r.mu.Lock()
	r.links[l.Key()] = &l
	r.mu.Unlock()
}

// EnsureDevice returns the device for addr, creating it with unknown status
// if it is not registered. Used when running without an export document.
func (r *Registry) EnsureDevice(addr DeviceAddr) Device {
	key := addr.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.devices[key]; ok {
		return d.clone()
	}

	d := &Device{Addr: addr, Name: key, Dimmable: true}
	r.devices[key] = d
	r.logger.Debug("device created lazily", "key", key)
	return d.clone()
}

// Device returns a snapshot of the device with the given canonical key.
func (r *Registry) Device(key string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[key]
	if !ok {
		return Device{}, false
	}
	return d.clone(), true
}

// Devices returns snapshots of all devices, ordered by key.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Link returns a snapshot of the link with the given canonical key.
func (r *Registry) Link(key string) (Link, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.links[key]
	if !ok {
		return Link{}, false
	}
	return l.clone(), true
}

// Links returns snapshots of all links, ordered by key.
func (r *Registry) Links() []Link {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Link, 0, len(r.links))
	for _, l := range r.links {
		out = append(out, l.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// SetDimmable records a device's dimming capability from the export file's
// channel records.
func (r *Registry) SetDimmable(key string, dimmable bool) {
	r.mu.Lock()
	if d, ok := r.devices[key]; ok {
		d.Dimmable = dimmable
	}
	r.mu.Unlock()
}

// Rename changes a device's display name. Unknown keys are ignored.
func (r *Registry) Rename(key, name string) {
	r.mu.Lock()
	if d, ok := r.devices[key]; ok {
		d.Name = name
	}
	r.mu.Unlock()
}

// AddLinkMember appends a member to a link. Used only during export parsing.
func (r *Registry) AddLinkMember(linkKey string, member LinkMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.links[linkKey]
	if !ok {
		return ErrLinkNotFound
	}
	l.Members = append(l.Members, member)
	return nil
}

// ApplyDeviceLevel commits a status report or optimistic update for a
// device and fires the device-updated notification. The device is created
// if unknown. Returns the committed snapshot.
//
// This is the mutation entry point used exclusively by the connection state
// machine.
func (r *Registry) ApplyDeviceLevel(addr DeviceAddr, level int, transitioning bool) Device {
	key := addr.Key()

	r.mu.Lock()
	d, ok := r.devices[key]
	if !ok {
		d = &Device{Addr: addr, Name: key, Dimmable: true}
		r.devices[key] = d
	}
	if !d.Dimmable && level > 0 {
		level = 100
	}
	d.Status = Status{
		Level:         level,
		Transitioning: transitioning,
		Known:         true,
		UpdatedAt:     time.Now().UTC(),
	}
	snapshot := d.clone()
	r.mu.Unlock()

	r.logger.Debug("device status updated", "key", key, "level", level,
		"transitioning", transitioning)

	// Notify after commit, never before.
	if r.onDevice != nil {
		r.onDevice(snapshot)
	}
	return snapshot
}

// ApplyLinkAction commits a scene command: the link's members take their
// preset level (activate), zero (deactivate) or an explicit level (goto).
// Member devices not present in the registry are skipped. Fires one
// device-updated notification per member and then a link-changed
// notification. Returns false if the link is unknown.
func (r *Registry) ApplyLinkAction(addr LinkAddr, action LinkAction, level int) (Link, bool) {
	key := addr.Key()

	r.mu.RLock()
	l, ok := r.links[key]
	var members []LinkMember
	if ok {
		members = make([]LinkMember, len(l.Members))
		copy(members, l.Members)
	}
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("command received for unknown link", "key", key)
		return Link{}, false
	}

	for _, m := range members {
		devAddr, err := ParseDeviceKey(m.DeviceKey)
		if err != nil {
			continue
		}

		memberLevel := 0
		switch action {
		case LinkActivate:
			memberLevel = m.DimLevel
		case LinkGoto:
			memberLevel = level
		}
		r.ApplyDeviceLevel(devAddr, memberLevel, false)
	}

	r.mu.Lock()
	l.LastAction = action
	l.LastActionAt = time.Now().UTC()
	snapshot := l.clone()
	r.mu.Unlock()

	r.logger.Debug("link action applied", "key", key, "action", action.String())

	if r.onLink != nil {
		r.onLink(snapshot)
	}
	return snapshot, true
}

// DeviceCount returns the number of registered devices.
func (r *Registry) DeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// LinkCount returns the number of registered links.
func (r *Registry) LinkCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.links)
}
