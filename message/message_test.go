package message

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeMarkers(t *testing.T) {
	tests := []struct {
		line string
		want ResponseKind
	}{
		{"PA", KindAccepted},
		{"PK", KindAck},
		{"PN", KindNak},
		{"PB", KindBusy},
		{"PE", KindError},
		{"PR000102", KindRegisterReport},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			resp, err := Decode(tt.line)
			if err != nil {
				t.Fatalf("Decode(%q) error: %v", tt.line, err)
			}
			if resp.Kind != tt.want {
				t.Errorf("Decode(%q).Kind = %v, want %v", tt.line, resp.Kind, tt.want)
			}
			if resp.Packet != nil {
				t.Errorf("Decode(%q).Packet = %v, want nil", tt.line, resp.Packet)
			}
		})
	}
}

func TestDecodeUpdate(t *testing.T) {
	resp, err := Decode("PU0800C2FF068600AB\r")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if resp.Kind != KindUpdate {
		t.Fatalf("Kind = %v, want %v", resp.Kind, KindUpdate)
	}

	pkt := resp.Packet
	if pkt == nil {
		t.Fatal("Packet is nil")
	}
	if pkt.Link {
		t.Error("Link = true, want false")
	}
	if pkt.Length != 8 {
		t.Errorf("Length = %d, want 8", pkt.Length)
	}
	if pkt.NetworkID != 194 || pkt.DestID != 255 || pkt.SrcID != 6 {
		t.Errorf("addressing = %d/%d/%d, want 194/255/6", pkt.NetworkID, pkt.DestID, pkt.SrcID)
	}
	if pkt.Command != CmdDeviceStateReport {
		t.Errorf("Command = %v, want %v", pkt.Command, CmdDeviceStateReport)
	}
	if !bytes.Equal(pkt.Data, []byte{0x00}) {
		t.Errorf("Data = %X, want 00", pkt.Data)
	}
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	// Same packet as TestDecodeUpdate with the checksum byte altered.
	_, err := Decode("PU0800C2FF068600AC")
	if !errors.Is(err, ErrChecksum) {
		t.Errorf("Decode error = %v, want ErrChecksum", err)
	}
}

func TestDecodeInvalidLines(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"empty", "", ErrUnknownMarker},
		{"unknown marker", "XX1234", ErrUnknownMarker},
		{"not a pim line", "QA", ErrUnknownMarker},
		{"update too short", "PU0800", ErrInvalidFrame},
		{"update not hex", "PUZZ00C2FF068600AB", ErrInvalidFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.line); !errors.Is(err, tt.want) {
				t.Errorf("Decode(%q) error = %v, want %v", tt.line, err, tt.want)
			}
		})
	}
}

func TestControlWord(t *testing.T) {
	if got := NewEncoder(1).ControlWord(false); got != 0 {
		t.Errorf("ControlWord(false) = %04X, want 0000", got)
	}
	if got := NewEncoder(4).ControlWord(true); got != 0x800C {
		t.Errorf("ControlWord(true) = %04X, want 800C", got)
	}
	// The transmit count field saturates at 4 transmissions.
	if got := NewEncoder(9).ControlWord(false); got != 0x000C {
		t.Errorf("ControlWord(false) = %04X, want 000C", got)
	}
}

func TestEncodeGoto(t *testing.T) {
	got := NewEncoder(1).Goto(Addr{Network: 194, ID: 9}, 100, 5)
	if got != "0900C209FF226405A2" {
		t.Errorf("Goto = %s, want 0900C209FF226405A2", got)
	}
}

func TestEncodeActivateLink(t *testing.T) {
	got := NewEncoder(2).ActivateLink(194, 6)
	if got != "8704C206FF208E" {
		t.Errorf("ActivateLink = %s, want 8704C206FF208E", got)
	}
}

func TestEncodeReportState(t *testing.T) {
	got := NewEncoder(1).ReportState(Addr{Network: 142, ID: 42})
	if got != "07008E2AFF3012" {
		t.Errorf("ReportState = %s, want 07008E2AFF3012", got)
	}
}

// Every encoded packet must parse back with a valid checksum and matching
// fields.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc := NewEncoder(2)
	addr := Addr{Network: 17, ID: 33}
	multi := Addr{Network: 17, ID: 34, Channel: 1, MultiChannel: true}

	tests := []struct {
		name string
		text string
		cmd  Command
		link bool
		data []byte
	}{
		{"goto", enc.Goto(addr, 75, 8), CmdGoto, false, []byte{75, 8}},
		{"goto default rate", enc.Goto(addr, 75, -1), CmdGoto, false, []byte{75}},
		{"goto multichannel", enc.Goto(multi, 50, -1), CmdGoto, false, []byte{50, 0xFF, 2}},
		{"fade start", enc.FadeStart(addr, 30, 3), CmdFadeStart, false, []byte{30, 3}},
		{"fade stop", enc.FadeStop(addr), CmdFadeStop, false, []byte{}},
		{"blink", enc.Blink(addr, 40), CmdBlink, false, []byte{40}},
		{"report state", enc.ReportState(addr), CmdReportState, false, []byte{}},
		{"activate", enc.ActivateLink(17, 6), CmdActivateLink, true, []byte{}},
		{"deactivate", enc.DeactivateLink(17, 6), CmdDeactivateLink, true, []byte{}},
		{"link goto", enc.LinkGoto(17, 6, 100, 9), CmdGoto, true, []byte{100, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, err := ParsePacket(tt.text)
			if err != nil {
				t.Fatalf("ParsePacket(%q) error: %v", tt.text, err)
			}
			if pkt.Link != tt.link {
				t.Errorf("Link = %v, want %v", pkt.Link, tt.link)
			}
			if pkt.Command != tt.cmd {
				t.Errorf("Command = %v, want %v", pkt.Command, tt.cmd)
			}
			if !bytes.Equal(pkt.Data, tt.data) {
				t.Errorf("Data = %X, want %X", pkt.Data, tt.data)
			}
			if pkt.NetworkID != 17 {
				t.Errorf("NetworkID = %d, want 17", pkt.NetworkID)
			}
			if int(pkt.Length)*2 != len(tt.text) {
				t.Errorf("Length = %d, text %d chars", pkt.Length, len(tt.text))
			}
		})
	}
}

func TestSameIgnoringSequence(t *testing.T) {
	a, err := ParsePacket("0800C2FF068600AB")
	if err != nil {
		t.Fatal(err)
	}

	b := a
	b.TransmitSeq = 2
	if !a.SameIgnoringSequence(b) {
		t.Error("packets differing only in sequence reported as different")
	}

	c := a
	c.Data = []byte{0x64}
	if a.SameIgnoringSequence(c) {
		t.Error("packets with different data reported as same")
	}
}
