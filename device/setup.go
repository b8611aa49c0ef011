package device

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/pmausb/device/pma"
	"github.com/ardnew/pmausb/pkg"
)

// Standard request codes.
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestSetDescriptor    = 0x07
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
	RequestSynchFrame       = 0x0C
)

// Feature selectors.
const (
	FeatureEndpointHalt       = 0x00
	FeatureDeviceRemoteWakeup = 0x01
	FeatureTestMode           = 0x02
)

// bmRequestType fields. Direction, type and recipient values are meant
// to be OR'ed together.
const (
	RequestTypeDirectionMask = 0x80
	RequestTypeTypeMask      = 0x60
	RequestTypeRecipientMask = 0x1F

	RequestDirectionHostToDevice = 0x00
	RequestDirectionDeviceToHost = 0x80

	RequestTypeStandard = 0x00
	RequestTypeClass    = 0x20
	RequestTypeVendor   = 0x40

	RequestRecipientDevice    = 0x00
	RequestRecipientInterface = 0x01
	RequestRecipientEndpoint  = 0x02
	RequestRecipientOther     = 0x03
)

// GET_STATUS device status bits.
const (
	StatusSelfPowered  = 1 << 0
	StatusRemoteWakeup = 1 << 1
)

// SetupPacketSize is the length of a SETUP data packet.
const SetupPacketSize = 8

// SetupPacket is the decoded SETUP stage of a control transfer.
type SetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// ReadSetupPacket decodes the SETUP packet the peripheral stored at byte
// offset addr of packet memory. n is the received byte count; anything
// shorter than a full packet is rejected. The packet occupies four words
// and addr is always word aligned, so each field is one word load.
func ReadSetupPacket(mem pma.WordAccessor, addr, n int, out *SetupPacket) error {
	if n < SetupPacketSize {
		return fmt.Errorf("%w: %d bytes", pkg.ErrSetupPacketTooShort, n)
	}
	w := addr / 2
	first := mem.LoadWord(w)
	*out = SetupPacket{
		RequestType: uint8(first),
		Request:     uint8(first >> 8),
		Value:       mem.LoadWord(w + 1),
		Index:       mem.LoadWord(w + 2),
		Length:      mem.LoadWord(w + 3),
	}
	return nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for a SETUP
// packet captured off the bus.
func (s *SetupPacket) UnmarshalBinary(data []byte) error {
	if len(data) < SetupPacketSize {
		return fmt.Errorf("%w: %d bytes", pkg.ErrSetupPacketTooShort, len(data))
	}
	*s = SetupPacket{
		RequestType: data[0],
		Request:     data[1],
		Value:       binary.LittleEndian.Uint16(data[2:]),
		Index:       binary.LittleEndian.Uint16(data[4:]),
		Length:      binary.LittleEndian.Uint16(data[6:]),
	}
	return nil
}

// Bytes returns the packet as the host puts it on the wire.
func (s *SetupPacket) Bytes() [SetupPacketSize]byte {
	var b [SetupPacketSize]byte
	b[0], b[1] = s.RequestType, s.Request
	binary.LittleEndian.PutUint16(b[2:], s.Value)
	binary.LittleEndian.PutUint16(b[4:], s.Index)
	binary.LittleEndian.PutUint16(b[6:], s.Length)
	return b
}

// In reports whether the data stage, if any, flows to the host.
func (s *SetupPacket) In() bool {
	return s.RequestType&RequestTypeDirectionMask == RequestDirectionDeviceToHost
}

// Kind returns the type bits of bmRequestType: standard, class or vendor.
func (s *SetupPacket) Kind() uint8 {
	return s.RequestType & RequestTypeTypeMask
}

// Recipient returns the recipient bits of bmRequestType.
func (s *SetupPacket) Recipient() uint8 {
	return s.RequestType & RequestTypeRecipientMask
}

// Descriptor splits wValue of a GET_DESCRIPTOR request into descriptor
// type and index.
func (s *SetupPacket) Descriptor() (typ, index uint8) {
	return uint8(s.Value >> 8), uint8(s.Value)
}

// Interface returns the interface number carried in wIndex.
func (s *SetupPacket) Interface() int {
	return int(s.Index & 0xFF)
}

var standardRequestNames = [...]string{
	RequestGetStatus:        "GET_STATUS",
	RequestClearFeature:     "CLEAR_FEATURE",
	RequestSetFeature:       "SET_FEATURE",
	RequestSetAddress:       "SET_ADDRESS",
	RequestGetDescriptor:    "GET_DESCRIPTOR",
	RequestSetDescriptor:    "SET_DESCRIPTOR",
	RequestGetConfiguration: "GET_CONFIGURATION",
	RequestSetConfiguration: "SET_CONFIGURATION",
	RequestGetInterface:     "GET_INTERFACE",
	RequestSetInterface:     "SET_INTERFACE",
	RequestSynchFrame:       "SYNCH_FRAME",
}

var recipientNames = [...]string{"device", "interface", "endpoint", "other"}

// String formats the packet for logs and trace dumps, naming standard
// requests, for example "IN GET_DESCRIPTOR device value=0x0100 index=0 len=18".
func (s *SetupPacket) String() string {
	dir := "OUT"
	if s.In() {
		dir = "IN"
	}
	var req string
	switch s.Kind() {
	case RequestTypeStandard:
		if int(s.Request) < len(standardRequestNames) && standardRequestNames[s.Request] != "" {
			req = standardRequestNames[s.Request]
		} else {
			req = fmt.Sprintf("standard(0x%02X)", s.Request)
		}
	case RequestTypeClass:
		req = fmt.Sprintf("class(0x%02X)", s.Request)
	case RequestTypeVendor:
		req = fmt.Sprintf("vendor(0x%02X)", s.Request)
	default:
		req = fmt.Sprintf("reserved(0x%02X)", s.Request)
	}
	recip := "reserved"
	if int(s.Recipient()) < len(recipientNames) {
		recip = recipientNames[s.Recipient()]
	}
	return fmt.Sprintf("%s %s %s value=0x%04X index=%d len=%d",
		dir, req, recip, s.Value, s.Index, s.Length)
}
