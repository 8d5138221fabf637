package message

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// sourceID is the source placeholder written into outbound packets. The PIM
// substitutes nothing; 0xFF is the conventional "not a device" source.
const sourceID = 0xFF

// minPacketChars is the hex length of a packet with no data bytes:
// control(4) + network(2) + dest(2) + src(2) + message ID(2) + checksum(2).
const minPacketChars = 14

// Addr addresses a single device endpoint for outbound commands.
type Addr struct {
	// Network is the UPB network ID (0-255).
	Network byte

	// ID is the device ID on the network (0-255).
	ID byte

	// Channel is the 0-based channel, 0 for single-channel devices.
	Channel int

	// MultiChannel marks devices with more than one channel; their
	// commands carry an explicit channel byte.
	MultiChannel bool
}

// Packet is a decoded UPB packet, typically the payload of a "PU" line.
type Packet struct {
	// Link is true when the destination ID addresses a link, false when
	// it addresses a device.
	Link bool

	// RepeaterRequest, AckRequest, TransmitCount and TransmitSeq are the
	// remaining control word fields, kept for diagnostics and for
	// repeated-packet suppression.
	RepeaterRequest byte
	AckRequest      byte
	TransmitCount   byte
	TransmitSeq     byte

	// Length is the packet length claimed by the control word, in bytes.
	Length byte

	// NetworkID, DestID and SrcID identify the packet's addressing.
	NetworkID byte
	DestID    byte
	SrcID     byte

	// Command is the UPB message ID.
	Command Command

	// Data is the command-specific payload, without the checksum.
	Data []byte
}

// Response is a classified inbound PIM line.
type Response struct {
	// Kind is the line's marker classification.
	Kind ResponseKind

	// Packet is the decoded UPB packet for KindUpdate lines, nil otherwise.
	Packet *Packet

	// Data is the raw text after the marker (register payloads and the
	// like), without further interpretation.
	Data string
}

// Decode classifies a received line by its PIM marker and, for update lines,
// parses and checksum-validates the carried UPB packet.
//
// A failed decode means the frame must be discarded; it is never fatal to
// the connection.
func Decode(line string) (Response, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 2 || line[0] != 'P' {
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownMarker, line)
	}

	var kind ResponseKind
	switch line[1] {
	case 'A':
		kind = KindAccepted
	case 'K':
		kind = KindAck
	case 'N':
		kind = KindNak
	case 'B':
		kind = KindBusy
	case 'E':
		kind = KindError
	case 'R':
		kind = KindRegisterReport
	case 'U':
		kind = KindUpdate
	default:
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownMarker, line)
	}

	resp := Response{Kind: kind, Data: line[2:]}
	if kind == KindUpdate {
		pkt, err := ParsePacket(line[2:])
		if err != nil {
			return Response{}, err
		}
		resp.Packet = &pkt
	}
	return resp, nil
}

// ParsePacket decodes the hex text of a UPB packet. The checksum is
// validated before any field is interpreted; a packet whose bytes do not sum
// to zero modulo 256 (checksum included) is rejected with ErrChecksum.
func ParsePacket(text string) (Packet, error) {
	if len(text) < minPacketChars {
		return Packet{}, fmt.Errorf("%w: packet %q too short", ErrInvalidFrame, text)
	}

	raw, err := hex.DecodeString(text)
	if err != nil {
		return Packet{}, fmt.Errorf("%w: %q: %v", ErrInvalidFrame, text, err)
	}

	var sum byte
	for _, b := range raw {
		sum += b
	}
	if sum != 0 {
		return Packet{}, fmt.Errorf("%w: packet %q", ErrChecksum, text)
	}

	control := uint16(raw[0])<<8 | uint16(raw[1])
	pkt := Packet{
		Link:            control&0x8000 != 0,
		RepeaterRequest: byte(control >> 13 & 0x03),
		Length:          byte(control >> 8 & 0x1F),
		AckRequest:      byte(control >> 4 & 0x07),
		TransmitCount:   byte(control >> 2 & 0x03),
		TransmitSeq:     byte(control & 0x03),
		NetworkID:       raw[2],
		DestID:          raw[3],
		SrcID:           raw[4],
		Command:         Command(raw[5]),
		Data:            raw[6 : len(raw)-1],
	}
	return pkt, nil
}

// SameIgnoringSequence reports whether two packets are identical apart from
// their transmit sequence bits. Powerline repeaters retransmit packets with
// only the sequence changed; duplicates must not be applied twice.
func (p Packet) SameIgnoringSequence(o Packet) bool {
	p.TransmitSeq, o.TransmitSeq = 0, 0
	return p.Link == o.Link &&
		p.RepeaterRequest == o.RepeaterRequest &&
		p.Length == o.Length &&
		p.AckRequest == o.AckRequest &&
		p.TransmitCount == o.TransmitCount &&
		p.NetworkID == o.NetworkID &&
		p.DestID == o.DestID &&
		p.SrcID == o.SrcID &&
		p.Command == o.Command &&
		bytes.Equal(p.Data, o.Data)
}

// String returns a compact diagnostic form of the packet.
func (p Packet) String() string {
	kind := "dev"
	if p.Link {
		kind = "link"
	}
	return fmt.Sprintf("Packet{%s net:%d dst:%d src:%d cmd:%s data:%X}",
		kind, p.NetworkID, p.DestID, p.SrcID, p.Command, p.Data)
}

// Encoder builds outbound UPB packets as uppercase hex text. The configured
// transmit count is folded into every control word so powerline repeaters
// retransmit the packet the same number of times the connection will.
type Encoder struct {
	txCount int
}

// NewEncoder creates an Encoder. txCount below 1 is treated as 1; the
// control word field saturates at 4 transmissions.
func NewEncoder(txCount int) Encoder {
	if txCount < 1 {
		txCount = 1
	}
	return Encoder{txCount: txCount}
}

// ControlWord assembles a control word without the length field, which is
// filled in during encoding once the data length is known.
func (e Encoder) ControlWord(link bool) uint16 {
	var control uint16
	if link {
		control |= 1 << 15
	}
	txField := e.txCount - 1
	if txField > 3 {
		txField = 3
	}
	control |= uint16(txField) << 2
	return control
}

// encode assembles control word, addressing, command and data, appends the
// checksum and returns the packet as uppercase hex.
func (e Encoder) encode(link bool, network, dest byte, cmd Command, data []byte) string {
	length := 7 + len(data)
	control := e.ControlWord(link) | uint16(length)<<8

	pkt := make([]byte, length)
	pkt[0] = byte(control >> 8)
	pkt[1] = byte(control)
	pkt[2] = network
	pkt[3] = dest
	pkt[4] = sourceID
	pkt[5] = byte(cmd)
	copy(pkt[6:], data)

	var sum byte
	for _, b := range pkt[:length-1] {
		sum += b
	}
	pkt[length-1] = -sum

	return strings.ToUpper(hex.EncodeToString(pkt))
}

// deviceArgs builds the level/rate/channel argument bytes shared by goto and
// fade-start. A negative rate omits the rate byte unless a channel byte must
// follow it, in which case 0xFF (device default) holds its place.
func deviceArgs(addr Addr, level, rate int) []byte {
	args := []byte{byte(level)}
	if rate >= 0 {
		args = append(args, byte(rate))
	} else if addr.MultiChannel {
		args = append(args, 0xFF)
	}
	if addr.MultiChannel {
		args = append(args, byte(addr.Channel+1))
	}
	return args
}

// Goto encodes a goto-level command for a device. rate is a UPB rate code;
// negative means the device default.
func (e Encoder) Goto(addr Addr, level, rate int) string {
	return e.encode(false, addr.Network, addr.ID, CmdGoto, deviceArgs(addr, level, rate))
}

// FadeStart encodes a fade-start command for a device.
func (e Encoder) FadeStart(addr Addr, level, rate int) string {
	return e.encode(false, addr.Network, addr.ID, CmdFadeStart, deviceArgs(addr, level, rate))
}

// FadeStop encodes a fade-stop command for a device.
func (e Encoder) FadeStop(addr Addr) string {
	return e.encode(false, addr.Network, addr.ID, CmdFadeStop, nil)
}

// Blink encodes a blink command. interval is in 1/60s units and is expected
// to be clamped with ClampBlinkInterval before encoding.
func (e Encoder) Blink(addr Addr, interval int) string {
	return e.encode(false, addr.Network, addr.ID, CmdBlink, []byte{byte(interval)})
}

// ReportState encodes a report-state request for a device.
func (e Encoder) ReportState(addr Addr) string {
	return e.encode(false, addr.Network, addr.ID, CmdReportState, nil)
}

// ActivateLink encodes a link activation.
func (e Encoder) ActivateLink(network, link byte) string {
	return e.encode(true, network, link, CmdActivateLink, nil)
}

// DeactivateLink encodes a link deactivation.
func (e Encoder) DeactivateLink(network, link byte) string {
	return e.encode(true, network, link, CmdDeactivateLink, nil)
}

// LinkGoto encodes a goto-level addressed to a link, setting every member of
// the scene to the level.
func (e Encoder) LinkGoto(network, link byte, level, rate int) string {
	args := []byte{byte(level)}
	if rate >= 0 {
		args = append(args, byte(rate))
	}
	return e.encode(true, network, link, CmdGoto, args)
}
