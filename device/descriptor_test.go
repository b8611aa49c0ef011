package device

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/pmausb/pkg"
)

func TestDeviceDescriptor(t *testing.T) {
	want := DeviceDescriptor{
		USBVersion:        USBVersionBOS,
		DeviceClass:       ClassMisc,
		DeviceSubClass:    0x02,
		DeviceProtocol:    0x01,
		MaxPacketSize0:    64,
		VendorID:          0x1234,
		ProductID:         0x5678,
		DeviceVersion:     0x0101,
		ManufacturerIndex: 1,
		ProductIndex:      2,
		SerialNumberIndex: 4,
		NumConfigurations: 1,
	}

	buf := want.Append([]byte{0xAA})
	require.Len(t, buf, 1+DeviceDescriptorSize)
	assert.Equal(t, byte(0xAA), buf[0], "appends after existing bytes")
	assert.Equal(t, []byte{DeviceDescriptorSize, DescriptorTypeDevice, 0x10, 0x02}, buf[1:5])
	assert.Equal(t, []byte{0x34, 0x12, 0x78, 0x56}, buf[9:13])

	var parsed DeviceDescriptor
	require.NoError(t, parsed.UnmarshalBinary(buf[1:]))
	assert.Equal(t, want, parsed)
}

func TestUnmarshalBinary_Errors(t *testing.T) {
	wrong := DeviceDescriptor{}.Append(nil)
	wrong[1] = DescriptorTypeConfiguration

	tests := []struct {
		name string
		dst  interface{ UnmarshalBinary([]byte) error }
		data []byte
		want error
	}{
		{"device short", &DeviceDescriptor{}, make([]byte, 1), pkg.ErrDescriptorTooShort},
		{"device type", &DeviceDescriptor{}, wrong, pkg.ErrDescriptorTypeMismatch},
		{"device truncated", &DeviceDescriptor{}, DeviceDescriptor{}.Append(nil)[:10], pkg.ErrDescriptorTooShort},
		{"configuration short", &ConfigurationDescriptor{}, []byte{4, DescriptorTypeConfiguration, 0, 0}, pkg.ErrDescriptorTooShort},
		{"interface type", &InterfaceDescriptor{}, wrong[:9], pkg.ErrDescriptorTypeMismatch},
		{"endpoint bLength", &EndpointDescriptor{}, []byte{3, DescriptorTypeEndpoint, 0x81, 3, 8, 0, 1}, pkg.ErrDescriptorTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.dst.UnmarshalBinary(tt.data), tt.want)
		})
	}
}

func TestConfigurationTree(t *testing.T) {
	cfg := ConfigurationDescriptor{
		TotalLength:        25,
		NumInterfaces:      1,
		ConfigurationValue: 1,
		ConfigurationIndex: StringIndexVersion,
		Attributes:         ConfigAttrBusPowered | ConfigAttrRemoteWakeup,
		MaxPower:           50,
	}
	iface := InterfaceDescriptor{
		InterfaceNumber:   2,
		NumEndpoints:      1,
		InterfaceClass:    ClassHID,
		InterfaceSubClass: 1,
		InterfaceProtocol: 1,
		InterfaceIndex:    5,
	}
	ep := EndpointDescriptor{
		EndpointAddress: 0x81,
		Attributes:      EndpointTypeInterrupt,
		MaxPacketSize:   8,
		Interval:        10,
	}
	blob := ep.Append(iface.Append(cfg.Append(nil)))
	require.Len(t, blob, int(cfg.TotalLength))
	assert.Equal(t, uint16(25), binary.LittleEndian.Uint16(blob[2:4]))

	var types []byte
	require.NoError(t, Walk(blob, func(desc []byte) error {
		types = append(types, desc[1])
		switch desc[1] {
		case DescriptorTypeConfiguration:
			var got ConfigurationDescriptor
			require.NoError(t, got.UnmarshalBinary(desc))
			assert.Equal(t, cfg, got)
		case DescriptorTypeInterface:
			var got InterfaceDescriptor
			require.NoError(t, got.UnmarshalBinary(desc))
			assert.Equal(t, iface, got)
		case DescriptorTypeEndpoint:
			var got EndpointDescriptor
			require.NoError(t, got.UnmarshalBinary(desc))
			assert.Equal(t, ep, got)
		}
		return nil
	}))
	assert.Equal(t, []byte{DescriptorTypeConfiguration, DescriptorTypeInterface, DescriptorTypeEndpoint}, types)
}

func TestWalk_Malformed(t *testing.T) {
	blob := InterfaceDescriptor{}.Append(nil)

	tests := []struct {
		name string
		blob []byte
	}{
		{"overrun", append(append([]byte{}, blob...), 9, DescriptorTypeCSInterface, 0)},
		{"zero length", append(append([]byte{}, blob...), 0, 0)},
		{"dangling byte", append(append([]byte{}, blob...), 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := 0
			err := Walk(tt.blob, func([]byte) error { n++; return nil })
			assert.ErrorIs(t, err, pkg.ErrDescriptorTooShort)
			assert.Equal(t, 1, n, "descriptors before the bad one are visited")
		})
	}

	stop := Walk(blob, func([]byte) error { return pkg.ErrStall })
	assert.ErrorIs(t, stop, pkg.ErrStall)
	assert.NoError(t, Walk(nil, func([]byte) error { return pkg.ErrStall }))
}

func TestStringDescriptor(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"", []byte{2, DescriptorTypeString}},
		{"Hi", []byte{6, DescriptorTypeString, 'H', 0, 'i', 0}},
		{"é", []byte{4, DescriptorTypeString, 0xE9, 0}},
		{"\U0001F50C", []byte{6, DescriptorTypeString, 0x3D, 0xD8, 0x0C, 0xDD}},
	}
	for _, tt := range tests {
		got := StringDescriptor(tt.in)
		assert.Equal(t, tt.want, got, tt.in)

		s, err := DecodeString(got)
		require.NoError(t, err)
		assert.Equal(t, tt.in, s)
	}
}

func TestStringDescriptor_Truncated(t *testing.T) {
	long := strings.Repeat("x", 200)
	desc := StringDescriptor(long)
	require.Len(t, desc, 2+2*maxStringUnits)
	assert.Equal(t, byte(len(desc)), desc[0])

	s, err := DecodeString(desc)
	require.NoError(t, err)
	assert.Equal(t, long[:maxStringUnits], s)

	// A surrogate pair straddling the limit is dropped whole.
	paired := strings.Repeat("x", maxStringUnits-1) + "\U0001F50C"
	desc = StringDescriptor(paired)
	require.Len(t, desc, 2+2*(maxStringUnits-1))
	s, err = DecodeString(desc)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", maxStringUnits-1), s)
}

func TestDecodeString_Errors(t *testing.T) {
	_, err := DecodeString([]byte{2})
	assert.ErrorIs(t, err, pkg.ErrDescriptorTooShort)
	_, err = DecodeString([]byte{4, DescriptorTypeDevice, 'a', 0})
	assert.ErrorIs(t, err, pkg.ErrDescriptorTypeMismatch)
	_, err = DecodeString([]byte{8, DescriptorTypeString, 'a', 0})
	assert.ErrorIs(t, err, pkg.ErrDescriptorTooShort)
}

func TestLanguageDescriptor(t *testing.T) {
	assert.Equal(t,
		[]byte{6, DescriptorTypeString, 0x09, 0x04, 0x07, 0x04},
		LanguageDescriptor(LangIDUSEnglish, 0x0407))
	assert.Equal(t, []byte{2, DescriptorTypeString}, LanguageDescriptor())
}

func TestBuild(t *testing.T) {
	id := Identity{
		VendorID:     0x1209,
		ProductID:    0x0010,
		Manufacturer: "Acme",
		Product:      "Widget",
		Version:      "1.2",
		Serial:       "42",
		Extra:        []string{"Keys"},
		MaxPowerMA:   600,
		SelfPowered:  true,
	}
	iface := InterfaceDescriptor{InterfaceClass: ClassVendor}.Append(nil)

	d, err := Build(id, iface)
	require.NoError(t, err)

	var dev DeviceDescriptor
	require.NoError(t, dev.UnmarshalBinary(d.Device))
	assert.Equal(t, uint16(USBVersion20), dev.USBVersion)
	assert.Equal(t, uint8(MaxPacketSize), dev.MaxPacketSize0)
	assert.Equal(t, uint8(StringIndexSerial), dev.SerialNumberIndex)
	assert.Nil(t, d.BOS)

	var cfg ConfigurationDescriptor
	require.NoError(t, cfg.UnmarshalBinary(d.Configuration))
	assert.Zero(t, cfg.TotalLength, "filled in as the descriptor is sent")
	assert.Equal(t, uint8(1), cfg.NumInterfaces)
	assert.Equal(t, uint8(ConfigAttrBusPowered|ConfigAttrSelfPowered), cfg.Attributes)
	assert.Equal(t, uint8(0xFF), cfg.MaxPower)
	assert.Len(t, d.Configuration, ConfigurationDescriptorSize+InterfaceDescriptorSize)

	require.Len(t, d.Strings, StringIndexFirstExtra+1)
	assert.Equal(t, []byte{4, DescriptorTypeString, 0x09, 0x04}, d.Strings[StringIndexLanguage])
	for idx, want := range map[int]string{
		StringIndexManufacturer: "Acme",
		StringIndexProduct:      "Widget",
		StringIndexVersion:      "1.2",
		StringIndexSerial:       "42",
		StringIndexFirstExtra:   "Keys",
	} {
		s, err := DecodeString(d.Strings[idx])
		require.NoError(t, err)
		assert.Equal(t, want, s)
	}
	assert.Equal(t, uint8(StringIndexSerial), d.SerialIndex)
}

func TestBuild_WebUSB(t *testing.T) {
	d, err := Build(Identity{LandingPage: "https://example.com", VendorCode: 3})
	require.NoError(t, err)

	var dev DeviceDescriptor
	require.NoError(t, dev.UnmarshalBinary(d.Device))
	assert.Equal(t, uint16(USBVersionBOS), dev.USBVersion)
	assert.Equal(t, WebUSBBOS(3), d.BOS)
}

func TestBuild_Limits(t *testing.T) {
	_, err := Build(Identity{Extra: make([]string, MaxStrings)})
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)

	_, err = Build(Identity{}, make([][]byte, MaxInterfaces+1)...)
	assert.ErrorIs(t, err, pkg.ErrTooManyInterfaces)
}

func TestDescriptors_Validate(t *testing.T) {
	good, err := Build(Identity{})
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Descriptors)
	}{
		{"device length", func(d *Descriptors) { d.Device = d.Device[:8] }},
		{"max packet", func(d *Descriptors) { d.Device[7] = 8 }},
		{"configuration type", func(d *Descriptors) { d.Configuration[1] = DescriptorTypeInterface }},
		{"configuration blob", func(d *Descriptors) { d.Configuration = append(d.Configuration, 9, DescriptorTypeInterface) }},
		{"string type", func(d *Descriptors) { d.Strings[1] = []byte{2, DescriptorTypeDevice} }},
		{"bos", func(d *Descriptors) { d.BOS = []byte{5, DescriptorTypeDevice, 5, 0, 0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Build(Identity{})
			require.NoError(t, err)
			tt.mutate(d)
			assert.ErrorIs(t, d.Validate(), pkg.ErrInvalidParameter)
		})
	}
	assert.NoError(t, good.Validate())
}

func TestWebUSB(t *testing.T) {
	bos := WebUSBBOS(7)
	require.Len(t, bos, BOSDescriptorSize+WebUSBCapabilitySize)
	assert.Equal(t, byte(DescriptorTypeBOS), bos[1])
	assert.Equal(t, uint16(len(bos)), binary.LittleEndian.Uint16(bos[2:4]))
	assert.Equal(t, byte(1), bos[4])

	capability := bos[BOSDescriptorSize:]
	assert.Equal(t, byte(WebUSBCapabilitySize), capability[0])
	assert.Equal(t, byte(DescriptorTypeDeviceCapability), capability[1])
	assert.Equal(t, byte(DeviceCapabilityPlatform), capability[2])
	assert.Equal(t, webUSBPlatformUUID[:], capability[4:20])
	assert.Equal(t, byte(7), capability[22], "vendor code")
	assert.Equal(t, byte(1), capability[23], "landing page index")

	tests := []struct {
		url    string
		scheme byte
	}{
		{"https://example.com/a", URLSchemeHTTPS},
		{"http://example.com", URLSchemeHTTP},
		{"localhost:8080", URLSchemeNone},
	}
	for _, tt := range tests {
		desc := WebUSBURLDescriptor(tt.url)
		assert.Equal(t, byte(len(desc)), desc[0])
		assert.Equal(t, tt.scheme, desc[2])
		got, ok := ParseWebUSBURL(desc)
		require.True(t, ok)
		assert.Equal(t, tt.url, got)
	}

	_, ok := ParseWebUSBURL([]byte{3, DescriptorTypeConfiguration, 1})
	assert.False(t, ok)
}

func TestBuild_NoSerial(t *testing.T) {
	d, err := Build(Identity{Product: "x"})
	require.NoError(t, err)
	var dev DeviceDescriptor
	require.NoError(t, dev.UnmarshalBinary(d.Device))
	assert.Zero(t, dev.SerialNumberIndex)
	assert.Zero(t, d.SerialIndex)
	// Indices of later strings do not move.
	assert.Len(t, d.Strings, StringIndexFirstExtra)
}
