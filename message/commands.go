package message

// Command is a UPB message ID: the command byte carried in every packet.
type Command byte

// UPB commands and reports used to drive lights, switches and links.
// The full bus specification defines more; this is the subset the library
// transmits and interprets.
const (
	// CmdActivateLink activates a link (scene). Sent with the link flag set.
	CmdActivateLink Command = 0x20

	// CmdDeactivateLink deactivates a link. Sent with the link flag set.
	CmdDeactivateLink Command = 0x21

	// CmdGoto sets a device or link to a level, optionally at a rate.
	CmdGoto Command = 0x22

	// CmdFadeStart starts fading a device towards a level.
	CmdFadeStart Command = 0x23

	// CmdFadeStop stops a fade in progress.
	CmdFadeStop Command = 0x24

	// CmdBlink blinks a device at an interval.
	CmdBlink Command = 0x25

	// CmdReportState asks a device to report its state.
	CmdReportState Command = 0x30

	// CmdDeviceStateReport is a device's state report: one level byte per
	// channel, sent in response to CmdReportState or spontaneously.
	CmdDeviceStateReport Command = 0x86

	// CmdRegisterValuesReport carries a device's register values.
	CmdRegisterValuesReport Command = 0x90
)

// String returns the command mnemonic.
func (c Command) String() string {
	switch c {
	case CmdActivateLink:
		return "ACTIVATE"
	case CmdDeactivateLink:
		return "DEACTIVATE"
	case CmdGoto:
		return "GOTO"
	case CmdFadeStart:
		return "FADE_START"
	case CmdFadeStop:
		return "FADE_STOP"
	case CmdBlink:
		return "BLINK"
	case CmdReportState:
		return "REPORT_STATE"
	case CmdDeviceStateReport:
		return "DEVICE_STATE_REPORT"
	case CmdRegisterValuesReport:
		return "REGISTER_VALUES_REPORT"
	default:
		return "UNKNOWN"
	}
}

// PimCommand is the lead byte of an outbound line, selecting the PIM
// operation the rest of the line applies to.
type PimCommand byte

const (
	// PimTransmitUPB transmits the following UPB packet onto the powerline.
	PimTransmitUPB PimCommand = 0x14

	// PimReadRegisters reads PIM registers. Used on connect to flush the
	// PIM receive buffer and as a harmless probe.
	PimReadRegisters PimCommand = 0x12

	// PimWriteRegisters writes PIM registers. Used on connect to force
	// message mode (see PCS PIM protocol 2.2.3).
	PimWriteRegisters PimCommand = 0x17
)

// ResponseKind classifies an inbound PIM line by its two-character marker.
type ResponseKind int

const (
	// KindAccepted ("PA"): the PIM accepted the command for transmission.
	KindAccepted ResponseKind = iota

	// KindAck ("PK"): the addressed device acknowledged the packet.
	KindAck

	// KindNak ("PN"): the addressed device did not acknowledge.
	KindNak

	// KindBusy ("PB"): the PIM is busy; the command was not transmitted.
	KindBusy

	// KindError ("PE"): the PIM rejected the command.
	KindError

	// KindRegisterReport ("PR"): register values follow.
	KindRegisterReport

	// KindUpdate ("PU"): an unsolicited UPB packet seen on the powerline.
	KindUpdate
)

// String returns the marker mnemonic.
func (k ResponseKind) String() string {
	switch k {
	case KindAccepted:
		return "accepted"
	case KindAck:
		return "ack"
	case KindNak:
		return "nak"
	case KindBusy:
		return "busy"
	case KindError:
		return "error"
	case KindRegisterReport:
		return "registers"
	case KindUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Terminal reports whether this response completes the outstanding command,
// one way or the other. Accepted and update lines leave the command pending.
func (k ResponseKind) Terminal() bool {
	switch k {
	case KindAck, KindNak, KindBusy, KindError, KindRegisterReport:
		return true
	default:
		return false
	}
}
