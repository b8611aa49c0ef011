package device

import (
	"fmt"

	"github.com/ardnew/pmausb/pkg"
)

// Fixed string descriptor indices assigned by Build.
const (
	StringIndexLanguage     = 0
	StringIndexManufacturer = 1
	StringIndexProduct      = 2
	StringIndexVersion      = 3
	StringIndexSerial       = 4
	StringIndexFirstExtra   = 5
)

// Descriptors is the read-only descriptor set served by the device.
// Every slice is a complete descriptor blob in wire format.
type Descriptors struct {
	Device []byte

	// Configuration is the full configuration blob. Its wTotalLength
	// field is injected when the blob is sent, so it may be left zero.
	Configuration []byte

	// Strings is indexed by string descriptor index. Index 0 is the
	// language table. A nil entry is treated as out of range.
	Strings [][]byte

	// BOS is the binary object store. Nil disables GET_DESCRIPTOR(BOS).
	BOS []byte

	// SerialIndex is the string index served from the runtime serial
	// number. Zero means the device has no serial number string.
	SerialIndex uint8
}

// Validate checks that the blobs are internally consistent.
func (d *Descriptors) Validate() error {
	if len(d.Device) != DeviceDescriptorSize || d.Device[1] != DescriptorTypeDevice {
		return fmt.Errorf("%w: device descriptor", pkg.ErrInvalidParameter)
	}
	if d.Device[7] != MaxPacketSize {
		return fmt.Errorf("%w: bMaxPacketSize0 %d", pkg.ErrInvalidParameter, d.Device[7])
	}
	if err := checkHeader(d.Configuration, DescriptorTypeConfiguration, ConfigurationDescriptorSize); err != nil {
		return fmt.Errorf("%w: configuration descriptor: %w", pkg.ErrInvalidParameter, err)
	}
	if len(d.Configuration) > 0xFFFF {
		return fmt.Errorf("%w: configuration too long", pkg.ErrInvalidParameter)
	}
	// The host parses the blob descriptor by descriptor, so every bLength
	// must land on the next header.
	if err := Walk(d.Configuration, func([]byte) error { return nil }); err != nil {
		return fmt.Errorf("%w: configuration blob: %w", pkg.ErrInvalidParameter, err)
	}
	if len(d.Strings) > MaxStrings {
		return fmt.Errorf("%w: %d strings", pkg.ErrInvalidParameter, len(d.Strings))
	}
	for i, s := range d.Strings {
		if s == nil {
			continue
		}
		if len(s) < 2 || int(s[0]) > len(s) || s[1] != DescriptorTypeString {
			return fmt.Errorf("%w: string descriptor %d", pkg.ErrInvalidParameter, i)
		}
	}
	if d.BOS != nil && (len(d.BOS) < BOSDescriptorSize || d.BOS[1] != DescriptorTypeBOS) {
		return fmt.Errorf("%w: BOS descriptor", pkg.ErrInvalidParameter)
	}
	return nil
}

// Identity describes the device-level descriptor contents.
type Identity struct {
	VendorID      uint16
	ProductID     uint16
	DeviceVersion uint16
	DeviceClass   uint8

	Manufacturer string
	Product      string
	Version      string
	Serial       string

	// Extra strings are assigned indices from StringIndexFirstExtra.
	Extra []string

	MaxPowerMA   int
	SelfPowered  bool
	RemoteWakeup bool

	// LandingPage enables the BOS descriptor and the WebUSB GET_URL
	// vendor request when non-empty.
	LandingPage string
	VendorCode  uint8
}

// Build assembles the descriptor set for id. Each element of interfaces
// is the interface, class and endpoint descriptors of one interface, in
// interface number order.
func Build(id Identity, interfaces ...[]byte) (*Descriptors, error) {
	if len(id.Extra)+StringIndexFirstExtra > MaxStrings {
		return nil, fmt.Errorf("%w: %d extra strings", pkg.ErrInvalidParameter, len(id.Extra))
	}
	if len(interfaces) > MaxInterfaces {
		return nil, pkg.ErrTooManyInterfaces
	}

	d := &Descriptors{}

	dev := DeviceDescriptor{
		USBVersion:        USBVersion20,
		DeviceClass:       id.DeviceClass,
		MaxPacketSize0:    MaxPacketSize,
		VendorID:          id.VendorID,
		ProductID:         id.ProductID,
		DeviceVersion:     id.DeviceVersion,
		ManufacturerIndex: StringIndexManufacturer,
		ProductIndex:      StringIndexProduct,
		SerialNumberIndex: StringIndexSerial,
		NumConfigurations: 1,
	}
	if id.Serial == "" {
		dev.SerialNumberIndex = 0
	}
	if id.LandingPage != "" {
		dev.USBVersion = USBVersionBOS
		d.BOS = WebUSBBOS(id.VendorCode)
	}
	d.Device = dev.Append(make([]byte, 0, DeviceDescriptorSize))

	attrs := uint8(ConfigAttrBusPowered)
	if id.SelfPowered {
		attrs |= ConfigAttrSelfPowered
	}
	if id.RemoteWakeup {
		attrs |= ConfigAttrRemoteWakeup
	}
	power := id.MaxPowerMA / 2
	if power > 0xFF {
		power = 0xFF
	}
	cfg := ConfigurationDescriptor{
		NumInterfaces:      uint8(len(interfaces)),
		ConfigurationValue: 1,
		ConfigurationIndex: StringIndexVersion,
		Attributes:         attrs,
		MaxPower:           uint8(power),
	}
	d.Configuration = cfg.Append(nil)
	for _, iface := range interfaces {
		d.Configuration = append(d.Configuration, iface...)
	}

	strs := append([]string{id.Manufacturer, id.Product, id.Version, id.Serial}, id.Extra...)
	d.Strings = make([][]byte, 1, 1+len(strs))
	d.Strings[0] = LanguageDescriptor(LangIDUSEnglish)
	for _, s := range strs {
		d.Strings = append(d.Strings, StringDescriptor(s))
	}
	if id.Serial != "" {
		d.SerialIndex = StringIndexSerial
	}

	return d, d.Validate()
}
