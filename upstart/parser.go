package upstart

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gwww/upb-lib/registry"
)

// Logger defines the logging interface used by the parser.
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

// Minimum field counts per record type; shorter records are malformed.
const (
	overviewFields   = 5
	linkFields       = 3
	deviceFields     = 13
	channelFields    = 4
	linkMemberFields = 6
	renameFields     = 3
)

// ParseFile reads an UPStart export from disk into the registry.
func ParseFile(path string, reg *registry.Registry, logger Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open export document: %w", err)
	}
	defer f.Close()
	return Parse(f, reg, logger)
}

// Parse reads an UPStart export document and populates the registry with the
// devices and links it describes. Malformed records are skipped with a
// diagnostic; only a read failure returns an error.
func Parse(r io.Reader, reg *registry.Registry, logger Logger) error {
	if logger == nil {
		logger = noopLogger{}
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	networkID := byte(0)

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")

		switch fields[0] {
		case "0":
			networkID = overviewRecord(reg, fields, logger, lineNo)
		case "2":
			linkRecord(reg, networkID, fields, logger, lineNo)
		case "3":
			deviceRecord(reg, networkID, fields, logger, lineNo)
		case "8":
			channelRecord(reg, networkID, fields, logger, lineNo)
		case "4":
			linkMemberRecord(reg, networkID, fields, logger, lineNo)
		case "99":
			renameRecord(reg, fields, logger, lineNo)
		default:
			logger.Debug("skipping unhandled export record",
				"line", lineNo, "type", fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read export document: %w", err)
	}

	logger.Info("export document loaded", "devices", reg.DeviceCount(),
		"links", reg.LinkCount(), "network_id", reg.NetworkID())
	return nil
}

// overviewRecord extracts the network ID from the file overview. All later
// records inherit it.
func overviewRecord(reg *registry.Registry, fields []string, logger Logger, lineNo int) byte {
	if len(fields) < overviewFields {
		logger.Warn("malformed overview record", "line", lineNo)
		return 0
	}
	id, err := parseByteField(fields[4])
	if err != nil {
		logger.Warn("malformed overview record", "line", lineNo, "error", err)
		return 0
	}
	reg.SetNetworkID(id)
	return id
}

func linkRecord(reg *registry.Registry, networkID byte, fields []string, logger Logger, lineNo int) {
	if len(fields) < linkFields {
		logger.Warn("malformed link record", "line", lineNo)
		return
	}
	id, err := parseByteField(fields[1])
	if err != nil {
		logger.Warn("malformed link record", "line", lineNo, "error", err)
		return
	}
	reg.AddLink(registry.Link{
		Addr: registry.LinkAddr{Network: networkID, Link: id},
		Name: fields[2],
	})
}

// deviceRecord creates one device per channel. Multi-channel devices get the
// channel number appended to the display name so each endpoint is
// distinguishable.
func deviceRecord(reg *registry.Registry, networkID byte, fields []string, logger Logger, lineNo int) {
	if len(fields) < deviceFields {
		logger.Warn("malformed device record", "line", lineNo)
		return
	}
	id, err := parseByteField(fields[1])
	if err != nil {
		logger.Warn("malformed device record", "line", lineNo, "error", err)
		return
	}
	channels, err := strconv.Atoi(fields[8])
	if err != nil || channels < 1 {
		logger.Warn("malformed device record", "line", lineNo,
			"channels", fields[8])
		return
	}
	multiChannel := channels > 1

	manufacturer, ok := manufacturers[fields[3]]
	if !ok {
		manufacturer = fields[3]
	}
	productID := fields[3] + "/" + fields[4]
	productName := productID
	kind := fields[7]
	if p, ok := products[productID]; ok {
		productName = p.name
		kind = p.kind
	}

	baseName := fields[11] + " " + fields[12]
	for channel := 0; channel < channels; channel++ {
		name := baseName
		if multiChannel {
			name = fmt.Sprintf("%s %d", baseName, channel)
		}
		reg.AddDevice(registry.Device{
			Addr: registry.DeviceAddr{
				Network: networkID,
				Device:  id,
				Channel: channel,
			},
			Name:         name,
			Dimmable:     true,
			MultiChannel: multiChannel,
			Version:      fields[5] + "." + fields[6],
			Manufacturer: manufacturer,
			Product:      productName,
			Kind:         kind,
		})
	}
}

// channelRecord records per-channel dimming capability for a device created
// by an earlier device record.
func channelRecord(reg *registry.Registry, networkID byte, fields []string, logger Logger, lineNo int) {
	if len(fields) < channelFields {
		logger.Warn("malformed channel record", "line", lineNo)
		return
	}
	addr, err := recordDeviceAddr(networkID, fields[2], fields[1])
	if err != nil {
		logger.Warn("malformed channel record", "line", lineNo, "error", err)
		return
	}
	reg.SetDimmable(addr.Key(), fields[3] == "1")
}

// linkMemberRecord attaches a device to a link with its preset dim level.
// Link ID 255 means "not linked" in the export format.
func linkMemberRecord(reg *registry.Registry, networkID byte, fields []string, logger Logger, lineNo int) {
	if len(fields) < linkMemberFields {
		logger.Warn("malformed link member record", "line", lineNo)
		return
	}
	linkID, err := parseByteField(fields[4])
	if err != nil {
		logger.Warn("malformed link member record", "line", lineNo, "error", err)
		return
	}
	if linkID == 255 {
		return
	}
	addr, err := recordDeviceAddr(networkID, fields[3], fields[1])
	if err != nil {
		logger.Warn("malformed link member record", "line", lineNo, "error", err)
		return
	}
	dimLevel, err := strconv.Atoi(fields[5])
	if err != nil {
		logger.Warn("malformed link member record", "line", lineNo,
			"dim_level", fields[5])
		return
	}

	linkKey := registry.LinkAddr{Network: networkID, Link: linkID}.Key()
	member := registry.LinkMember{DeviceKey: addr.Key(), DimLevel: dimLevel}
	if err := reg.AddLinkMember(linkKey, member); err != nil {
		logger.Warn("link member references undefined link",
			"line", lineNo, "link", linkKey)
	}
}

// renameRecord updates a device's display name. The record carries the
// canonical device key directly.
func renameRecord(reg *registry.Registry, fields []string, logger Logger, lineNo int) {
	if len(fields) < renameFields {
		logger.Warn("malformed rename record", "line", lineNo)
		return
	}
	reg.Rename(fields[1], fields[2])
}

func recordDeviceAddr(networkID byte, deviceField, channelField string) (registry.DeviceAddr, error) {
	device, err := parseByteField(deviceField)
	if err != nil {
		return registry.DeviceAddr{}, err
	}
	channel, err := strconv.Atoi(channelField)
	if err != nil || channel < 0 {
		return registry.DeviceAddr{}, fmt.Errorf("invalid channel %q", channelField)
	}
	return registry.DeviceAddr{Network: networkID, Device: device, Channel: channel}, nil
}

func parseByteField(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric field %q", s)
	}
	return byte(v), nil
}
