package board

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/pmausb/device"
	"github.com/ardnew/pmausb/device/class/hid"
	"github.com/ardnew/pmausb/device/hal"
	"github.com/ardnew/pmausb/pkg"
)

const yamlProfile = `
vendorId: 0x1209
productId: 0x0001
manufacturer: Acme
product: Widget
serial: ABC123
selfPowered: true
webusb:
  url: https://example.com/widget
  vendorCode: 1
hid:
  name: Widget Keys
  endpoint: 1
  report: keyboard
  boot: keyboard
`

const tomlProfile = `
vendorId = 0x1209
productId = 0x0002
product = "Gadget"
remoteWakeup = false

[hid]
endpoint = 1
report = "05 01 09 02 a1 01 c0"
`

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{".yaml", FormatYAML},
		{"yml", FormatYAML},
		{".TOML", FormatTOML},
		{"json", FormatJSON},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseFormat(".ini")
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
}

func TestParse_YAML(t *testing.T) {
	p, err := Parse([]byte(yamlProfile), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, uint16(0x1209), p.VendorID)
	assert.Equal(t, uint16(0x0001), p.ProductID)
	assert.Equal(t, "Acme", p.Manufacturer)
	assert.Equal(t, "ABC123", p.Serial)
	assert.True(t, p.SelfPowered)
	assert.True(t, p.RemoteWakeup, "default kept")
	assert.Equal(t, 512, p.MemorySize, "default kept")
	require.NotNil(t, p.WebUSB)
	assert.Equal(t, "https://example.com/widget", p.WebUSB.URL)
	require.NotNil(t, p.HID)
	assert.Equal(t, "Widget Keys", p.HID.Name)
}

func TestParse_TOML(t *testing.T) {
	p, err := Parse([]byte(tomlProfile), FormatTOML)
	require.NoError(t, err)

	assert.Equal(t, uint16(0x0002), p.ProductID)
	assert.Equal(t, "Gadget", p.Product)
	assert.False(t, p.RemoteWakeup)
	require.NotNil(t, p.HID)

	report, err := p.HID.reportDescriptor()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0x01, 0x09, 0x02, 0xA1, 0x01, 0xC0}, report)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"power", func(p *Profile) { p.MaxPowerMA = 600 }},
		{"serial", func(p *Profile) { p.Serial = "0123456789012345678901234567890" }},
		{"pma", func(p *Profile) { p.MemorySize = 511 }},
		{"webusb", func(p *Profile) { p.WebUSB = &WebUSB{} }},
		{"hid endpoint", func(p *Profile) { p.HID = &HID{Endpoint: 0} }},
		{"hid report", func(p *Profile) { p.HID = &HID{Endpoint: 1, Report: "zz"} }},
		{"hid boot", func(p *Profile) { p.HID = &HID{Endpoint: 1, Boot: "joystick"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(p)
			assert.ErrorIs(t, p.Validate(), pkg.ErrInvalidParameter)
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "board.yml")
	require.NoError(t, os.WriteFile(path, []byte(yamlProfile), 0o644))
	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Widget", p.Product)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "board.txt")
	require.NoError(t, os.WriteFile(bad, []byte(yamlProfile), 0o644))
	_, err = Load(bad)
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
}

func TestMarshal_RoundTrip(t *testing.T) {
	p, err := Parse([]byte(yamlProfile), FormatYAML)
	require.NoError(t, err)

	for _, format := range []Format{FormatYAML, FormatTOML, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			data, err := p.Marshal(format)
			require.NoError(t, err)
			got, err := Parse(data, format)
			require.NoError(t, err)
			assert.Equal(t, p, got)
		})
	}
}

func TestAssemble(t *testing.T) {
	p, err := Parse([]byte(yamlProfile), FormatYAML)
	require.NoError(t, err)

	a, err := p.Assemble(hal.NopBoard{})
	require.NoError(t, err)
	require.NotNil(t, a.HID)

	cfg := a.Config
	assert.True(t, cfg.SelfPowered)
	assert.Len(t, cfg.Interfaces, 1)
	assert.Len(t, cfg.Endpoints, 1)
	require.Len(t, cfg.Vendor, 1)
	assert.Equal(t, uint8(1), cfg.Vendor[0].Request)
	assert.Equal(t, uint16(device.WebUSBRequestGetURL), cfg.Vendor[0].Index)

	desc := cfg.Descriptors
	require.NotNil(t, desc.BOS)
	var dd device.DeviceDescriptor
	require.NoError(t, dd.UnmarshalBinary(desc.Device))
	assert.Equal(t, uint16(device.USBVersionBOS), dd.USBVersion)
	assert.Equal(t, uint16(0x1209), dd.VendorID)

	var iface device.InterfaceDescriptor
	require.NoError(t, iface.UnmarshalBinary(desc.Configuration[device.ConfigurationDescriptorSize:]))
	assert.Equal(t, uint8(device.ClassHID), iface.InterfaceClass)
	assert.Equal(t, uint8(hid.SubclassBoot), iface.InterfaceSubClass)
	assert.Equal(t, uint8(device.StringIndexFirstExtra), iface.InterfaceIndex)

	name, err := device.DecodeString(desc.Strings[device.StringIndexFirstExtra])
	require.NoError(t, err)
	assert.Equal(t, "Widget Keys", name)
}

func TestAssemble_Minimal(t *testing.T) {
	a, err := Default().Assemble(nil)
	require.NoError(t, err)
	assert.Nil(t, a.HID)
	assert.Nil(t, a.Config.Descriptors.BOS)
	assert.Empty(t, a.Config.Vendor)
}

func TestAssemble_HIDEndpoint(t *testing.T) {
	p := Default()
	p.HID = &HID{Endpoint: 2}
	_, err := p.Assemble(nil)
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
}
