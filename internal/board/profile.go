package board

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"

	"github.com/ardnew/pmausb/device"
	"github.com/ardnew/pmausb/device/class/hid"
	"github.com/ardnew/pmausb/device/hal"
	"github.com/ardnew/pmausb/pkg"
)

// Format is a profile encoding.
type Format string

// Supported profile encodings.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// ParseFormat normalizes a format name or file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: profile format %q", pkg.ErrInvalidParameter, s)
	}
}

// Profile describes a board's USB device.
type Profile struct {
	VendorID      uint16 `json:"vendorId" yaml:"vendorId" toml:"vendorId"`
	ProductID     uint16 `json:"productId" yaml:"productId" toml:"productId"`
	DeviceVersion uint16 `json:"deviceVersion" yaml:"deviceVersion" toml:"deviceVersion"`

	Manufacturer string `json:"manufacturer" yaml:"manufacturer" toml:"manufacturer"`
	Product      string `json:"product" yaml:"product" toml:"product"`
	Version      string `json:"version" yaml:"version" toml:"version"`
	Serial       string `json:"serial" yaml:"serial" toml:"serial"`

	MaxPowerMA     int  `json:"maxPowerMa" yaml:"maxPowerMa" toml:"maxPowerMa"`
	SelfPowered    bool `json:"selfPowered" yaml:"selfPowered" toml:"selfPowered"`
	RemoteWakeup   bool `json:"remoteWakeup" yaml:"remoteWakeup" toml:"remoteWakeup"`
	InhibitConnect bool `json:"inhibitConnect" yaml:"inhibitConnect" toml:"inhibitConnect"`

	// MemorySize is the packet memory size in bytes.
	MemorySize int `json:"pmaSize" yaml:"pmaSize" toml:"pmaSize"`

	WebUSB *WebUSB `json:"webusb,omitempty" yaml:"webusb,omitempty" toml:"webusb,omitempty"`
	HID    *HID    `json:"hid,omitempty" yaml:"hid,omitempty" toml:"hid,omitempty"`
}

// WebUSB enables the BOS descriptor and the GET_URL vendor request.
type WebUSB struct {
	URL        string `json:"url" yaml:"url" toml:"url"`
	VendorCode uint8  `json:"vendorCode" yaml:"vendorCode" toml:"vendorCode"`
}

// HID adds a HID interface with an interrupt IN endpoint.
type HID struct {
	Name     string `json:"name" yaml:"name" toml:"name"`
	Endpoint uint8  `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	Interval uint8  `json:"interval" yaml:"interval" toml:"interval"`

	// Report is "keyboard", "mouse" or a hex-encoded report descriptor.
	Report string `json:"report" yaml:"report" toml:"report"`

	// Boot is "keyboard", "mouse" or empty for a non-boot interface.
	Boot string `json:"boot" yaml:"boot" toml:"boot"`
}

// Default returns the profile used when none is given.
func Default() *Profile {
	return &Profile{
		VendorID:      0x18D1,
		ProductID:     0x5022,
		DeviceVersion: 0x0100,
		Manufacturer:  "Google Inc.",
		Product:       "Simulated Device",
		Version:       "sim-1.0",
		Serial:        "0000000000",
		MaxPowerMA:    100,
		RemoteWakeup:  true,
		MemorySize:    512,
	}
}

// Load reads a profile, choosing the decoder by file extension.
func Load(path string) (*Profile, error) {
	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	pkg.LogDebug(pkg.ComponentBoard, "profile loaded", "path", path, "product", p.Product)
	return p, nil
}

// Parse decodes a profile over the defaults and validates it.
func Parse(data []byte, format Format) (*Profile, error) {
	p := Default()
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, p)
	case FormatTOML:
		err = toml.Unmarshal(data, p)
	case FormatJSON:
		err = json.Unmarshal(data, p)
	default:
		err = fmt.Errorf("%w: profile format %q", pkg.ErrInvalidParameter, format)
	}
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Marshal encodes p.
func (p *Profile) Marshal(format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(p)
	case FormatTOML:
		return toml.Marshal(*p)
	case FormatJSON:
		return json.MarshalIndent(p, "", "  ")
	default:
		return nil, fmt.Errorf("%w: profile format %q", pkg.ErrInvalidParameter, format)
	}
}

// Validate checks the profile for values the device cannot represent.
func (p *Profile) Validate() error {
	if p.MaxPowerMA < 0 || p.MaxPowerMA > 500 {
		return fmt.Errorf("%w: maxPowerMa %d", pkg.ErrInvalidParameter, p.MaxPowerMA)
	}
	if len([]rune(p.Serial)) > device.MaxSerialLength {
		return fmt.Errorf("%w: serial longer than %d", pkg.ErrInvalidParameter, device.MaxSerialLength)
	}
	if p.MemorySize <= 0 || p.MemorySize%2 != 0 {
		return fmt.Errorf("%w: pmaSize %d", pkg.ErrInvalidParameter, p.MemorySize)
	}
	if p.WebUSB != nil && p.WebUSB.URL == "" {
		return fmt.Errorf("%w: webusb url is empty", pkg.ErrInvalidParameter)
	}
	if p.HID != nil {
		if p.HID.Endpoint == 0 || int(p.HID.Endpoint) >= device.MaxEndpoints {
			return fmt.Errorf("%w: hid endpoint %d", pkg.ErrInvalidParameter, p.HID.Endpoint)
		}
		if _, err := p.HID.reportDescriptor(); err != nil {
			return err
		}
		if _, err := p.HID.bootProtocol(); err != nil {
			return err
		}
	}
	return nil
}

func (h *HID) reportDescriptor() ([]byte, error) {
	switch strings.ToLower(h.Report) {
	case "", "keyboard":
		return hid.KeyboardReportDescriptor, nil
	case "mouse":
		return hid.MouseReportDescriptor, nil
	}
	raw := strings.NewReplacer(" ", "", ":", "", "\n", "").Replace(h.Report)
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: hid report: %w", pkg.ErrInvalidParameter, err)
	}
	return b, nil
}

func (h *HID) bootProtocol() (uint8, error) {
	switch strings.ToLower(h.Boot) {
	case "":
		return hid.ProtocolNone, nil
	case "keyboard":
		return hid.ProtocolKeyboard, nil
	case "mouse":
		return hid.ProtocolMouse, nil
	default:
		return 0, fmt.Errorf("%w: hid boot %q", pkg.ErrInvalidParameter, h.Boot)
	}
}

// Assembly is a profile turned into device configuration.
type Assembly struct {
	Config device.Config
	HID    *hid.HID
}

// Assemble builds the descriptor set and handler tables for p. The HID
// endpoint must be 1, the first endpoint after the control endpoint.
func (p *Profile) Assemble(b hal.Board) (*Assembly, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	id := device.Identity{
		VendorID:      p.VendorID,
		ProductID:     p.ProductID,
		DeviceVersion: p.DeviceVersion,
		Manufacturer:  p.Manufacturer,
		Product:       p.Product,
		Version:       p.Version,
		Serial:        p.Serial,
		MaxPowerMA:    p.MaxPowerMA,
		SelfPowered:   p.SelfPowered,
		RemoteWakeup:  p.RemoteWakeup,
	}

	a := &Assembly{
		Config: device.Config{
			Board:          b,
			SelfPowered:    p.SelfPowered,
			InhibitConnect: p.InhibitConnect,
		},
	}

	var ifaces [][]byte
	if p.HID != nil {
		if p.HID.Endpoint != 1 {
			return nil, fmt.Errorf("%w: hid endpoint must be 1", pkg.ErrInvalidParameter)
		}
		report, _ := p.HID.reportDescriptor()
		proto, _ := p.HID.bootProtocol()
		var opts []hid.Option
		if proto != hid.ProtocolNone {
			opts = append(opts, hid.WithBoot(proto))
		}
		if p.HID.Interval != 0 {
			opts = append(opts, hid.WithInterval(p.HID.Interval))
		}
		a.HID = hid.New(0, p.HID.Endpoint, report, opts...)

		var nameIndex uint8
		if p.HID.Name != "" {
			nameIndex = uint8(device.StringIndexFirstExtra + len(id.Extra))
			id.Extra = append(id.Extra, p.HID.Name)
		}
		ifaces = append(ifaces, a.HID.Descriptors(nameIndex))
		a.Config.Interfaces = append(a.Config.Interfaces, a.HID)
		a.Config.Endpoints = append(a.Config.Endpoints, a.HID)
	}

	if p.WebUSB != nil {
		id.LandingPage = p.WebUSB.URL
		id.VendorCode = p.WebUSB.VendorCode
		a.Config.Vendor = append(a.Config.Vendor,
			device.WebUSBRequest(p.WebUSB.VendorCode, p.WebUSB.URL))
	}

	desc, err := device.Build(id, ifaces...)
	if err != nil {
		return nil, err
	}
	a.Config.Descriptors = desc

	pkg.LogDebug(pkg.ComponentBoard, "profile assembled",
		"interfaces", len(a.Config.Interfaces),
		"webusb", p.WebUSB != nil)
	return a, nil
}
