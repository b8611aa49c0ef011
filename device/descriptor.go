package device

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/ardnew/pmausb/pkg"
)

// Descriptor types served or built by the engine.
const (
	DescriptorTypeDevice           = 0x01
	DescriptorTypeConfiguration    = 0x02
	DescriptorTypeString           = 0x03
	DescriptorTypeInterface        = 0x04
	DescriptorTypeEndpoint         = 0x05
	DescriptorTypeDeviceQualifier  = 0x06
	DescriptorTypeBOS              = 0x0F
	DescriptorTypeDeviceCapability = 0x10
	DescriptorTypeHID              = 0x21
	DescriptorTypeHIDReport        = 0x22
	DescriptorTypeCSInterface      = 0x24

	// DescriptorTypeWebUSBURL shares its value with the string type; it is
	// only ever returned by the vendor GET_URL request.
	DescriptorTypeWebUSBURL = 0x03
)

// Class codes.
const (
	ClassPerInterface = 0x00
	ClassCDC          = 0x02
	ClassHID          = 0x03
	ClassMisc         = 0xEF
	ClassVendor       = 0xFF
)

// Fixed descriptor sizes, including the two-byte header.
const (
	DeviceDescriptorSize        = 18
	ConfigurationDescriptorSize = 9
	InterfaceDescriptorSize     = 9
	EndpointDescriptorSize      = 7
)

// Configuration bmAttributes bits.
const (
	ConfigAttrBusPowered   = 0x80
	ConfigAttrSelfPowered  = 0x40
	ConfigAttrRemoteWakeup = 0x20
)

// LangIDUSEnglish is the only language the string table advertises.
const LangIDUSEnglish = 0x0409

// maxStringUnits is the number of UTF-16 code units that fit after the
// header of a descriptor whose length is one byte.
const maxStringUnits = (0xFF - 2) / 2

// checkHeader verifies that data begins with a descriptor of type typ
// whose bLength covers at least size bytes.
func checkHeader(data []byte, typ uint8, size int) error {
	if len(data) < 2 {
		return pkg.ErrDescriptorTooShort
	}
	if data[1] != typ {
		return fmt.Errorf("%w: type 0x%02X, want 0x%02X",
			pkg.ErrDescriptorTypeMismatch, data[1], typ)
	}
	if int(data[0]) < size || len(data) < size {
		return fmt.Errorf("%w: type 0x%02X has %d bytes, want %d",
			pkg.ErrDescriptorTooShort, typ, min(int(data[0]), len(data)), size)
	}
	return nil
}

// Walk calls fn with each descriptor packed back to back in blob, such as
// a configuration blob. It stops at the first error fn returns. A
// descriptor whose bLength runs past the blob is reported as too short.
func Walk(blob []byte, fn func(desc []byte) error) error {
	for off := 0; off < len(blob); {
		n := int(blob[off])
		if n < 2 || off+n > len(blob) {
			return fmt.Errorf("%w: bLength %d at offset %d", pkg.ErrDescriptorTooShort, n, off)
		}
		if err := fn(blob[off : off+n]); err != nil {
			return err
		}
		off += n
	}
	return nil
}

// DeviceDescriptor holds the fields of the device descriptor.
type DeviceDescriptor struct {
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// Append appends the wire form of the descriptor to b.
func (d DeviceDescriptor) Append(b []byte) []byte {
	b = append(b, DeviceDescriptorSize, DescriptorTypeDevice)
	b = binary.LittleEndian.AppendUint16(b, d.USBVersion)
	b = append(b, d.DeviceClass, d.DeviceSubClass, d.DeviceProtocol, d.MaxPacketSize0)
	b = binary.LittleEndian.AppendUint16(b, d.VendorID)
	b = binary.LittleEndian.AppendUint16(b, d.ProductID)
	b = binary.LittleEndian.AppendUint16(b, d.DeviceVersion)
	return append(b, d.ManufacturerIndex, d.ProductIndex, d.SerialNumberIndex, d.NumConfigurations)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (d *DeviceDescriptor) UnmarshalBinary(data []byte) error {
	if err := checkHeader(data, DescriptorTypeDevice, DeviceDescriptorSize); err != nil {
		return err
	}
	*d = DeviceDescriptor{
		USBVersion:        binary.LittleEndian.Uint16(data[2:]),
		DeviceClass:       data[4],
		DeviceSubClass:    data[5],
		DeviceProtocol:    data[6],
		MaxPacketSize0:    data[7],
		VendorID:          binary.LittleEndian.Uint16(data[8:]),
		ProductID:         binary.LittleEndian.Uint16(data[10:]),
		DeviceVersion:     binary.LittleEndian.Uint16(data[12:]),
		ManufacturerIndex: data[14],
		ProductIndex:      data[15],
		SerialNumberIndex: data[16],
		NumConfigurations: data[17],
	}
	return nil
}

// ConfigurationDescriptor holds the header of a configuration blob.
// TotalLength is normally left zero in stored blobs; the streamer fills it
// in as the header is sent.
type ConfigurationDescriptor struct {
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	ConfigurationIndex uint8
	Attributes         uint8
	MaxPower           uint8 // 2 mA units
}

// Append appends the wire form of the descriptor to b.
func (c ConfigurationDescriptor) Append(b []byte) []byte {
	b = append(b, ConfigurationDescriptorSize, DescriptorTypeConfiguration)
	b = binary.LittleEndian.AppendUint16(b, c.TotalLength)
	return append(b, c.NumInterfaces, c.ConfigurationValue, c.ConfigurationIndex,
		c.Attributes, c.MaxPower)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *ConfigurationDescriptor) UnmarshalBinary(data []byte) error {
	if err := checkHeader(data, DescriptorTypeConfiguration, ConfigurationDescriptorSize); err != nil {
		return err
	}
	*c = ConfigurationDescriptor{
		TotalLength:        binary.LittleEndian.Uint16(data[2:]),
		NumInterfaces:      data[4],
		ConfigurationValue: data[5],
		ConfigurationIndex: data[6],
		Attributes:         data[7],
		MaxPower:           data[8],
	}
	return nil
}

// InterfaceDescriptor holds the fields of an interface descriptor.
type InterfaceDescriptor struct {
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	InterfaceIndex    uint8
}

// Append appends the wire form of the descriptor to b.
func (i InterfaceDescriptor) Append(b []byte) []byte {
	return append(b, InterfaceDescriptorSize, DescriptorTypeInterface,
		i.InterfaceNumber, i.AlternateSetting, i.NumEndpoints,
		i.InterfaceClass, i.InterfaceSubClass, i.InterfaceProtocol, i.InterfaceIndex)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (i *InterfaceDescriptor) UnmarshalBinary(data []byte) error {
	if err := checkHeader(data, DescriptorTypeInterface, InterfaceDescriptorSize); err != nil {
		return err
	}
	*i = InterfaceDescriptor{
		InterfaceNumber:   data[2],
		AlternateSetting:  data[3],
		NumEndpoints:      data[4],
		InterfaceClass:    data[5],
		InterfaceSubClass: data[6],
		InterfaceProtocol: data[7],
		InterfaceIndex:    data[8],
	}
	return nil
}

// EndpointDescriptor holds the fields of an endpoint descriptor.
type EndpointDescriptor struct {
	EndpointAddress uint8 // bit 7 set for IN
	Attributes      uint8
	MaxPacketSize   uint16
	Interval        uint8
}

// Append appends the wire form of the descriptor to b.
func (e EndpointDescriptor) Append(b []byte) []byte {
	b = append(b, EndpointDescriptorSize, DescriptorTypeEndpoint, e.EndpointAddress, e.Attributes)
	b = binary.LittleEndian.AppendUint16(b, e.MaxPacketSize)
	return append(b, e.Interval)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *EndpointDescriptor) UnmarshalBinary(data []byte) error {
	if err := checkHeader(data, DescriptorTypeEndpoint, EndpointDescriptorSize); err != nil {
		return err
	}
	*e = EndpointDescriptor{
		EndpointAddress: data[2],
		Attributes:      data[3],
		MaxPacketSize:   binary.LittleEndian.Uint16(data[4:]),
		Interval:        data[6],
	}
	return nil
}

// StringDescriptor encodes s as a UTF-16LE string descriptor. Text that
// does not fit in one descriptor is cut at a character boundary.
func StringDescriptor(s string) []byte {
	units := utf16.Encode([]rune(s))
	if len(units) > maxStringUnits {
		units = units[:maxStringUnits]
		if utf16.IsSurrogate(rune(units[len(units)-1])) &&
			units[len(units)-1] < 0xDC00 {
			units = units[:len(units)-1]
		}
	}
	b := make([]byte, 2, 2+2*len(units))
	b[0], b[1] = byte(2+2*len(units)), DescriptorTypeString
	for _, u := range units {
		b = binary.LittleEndian.AppendUint16(b, u)
	}
	return b
}

// LanguageDescriptor returns string descriptor zero listing langIDs.
func LanguageDescriptor(langIDs ...uint16) []byte {
	b := []byte{byte(2 + 2*len(langIDs)), DescriptorTypeString}
	for _, id := range langIDs {
		b = binary.LittleEndian.AppendUint16(b, id)
	}
	return b
}

// DecodeString returns the text of a string descriptor.
func DecodeString(desc []byte) (string, error) {
	if err := checkHeader(desc, DescriptorTypeString, 2); err != nil {
		return "", err
	}
	n := int(desc[0])
	if n > len(desc) {
		return "", fmt.Errorf("%w: bLength %d, have %d", pkg.ErrDescriptorTooShort, n, len(desc))
	}
	units := make([]uint16, 0, (n-2)/2)
	for i := 2; i+1 < n; i += 2 {
		units = append(units, binary.LittleEndian.Uint16(desc[i:]))
	}
	return string(utf16.Decode(units)), nil
}
