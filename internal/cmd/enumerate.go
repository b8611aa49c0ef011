package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	yaml "gopkg.in/yaml.v3"

	"github.com/ardnew/pmausb/device"
	"github.com/ardnew/pmausb/host"
)

// Enumerate runs host enumeration against the simulated device.
type Enumerate struct {
	Bus `embed:""`

	Format string `help:"Output format" enum:"text,json,yaml" default:"text"`
}

// Run is called by kong when the enumerate command is executed.
func (c *Enumerate) Run(out io.Writer) error {
	r, err := c.open()
	if err != nil {
		return err
	}

	ctx, cancel := c.context()
	defer cancel()

	d, err := r.host.Enumerate(ctx)
	if err != nil {
		_ = r.close(c.Trace)
		return fmt.Errorf("enumerate: %w", err)
	}
	if err := writeReport(out, newReport(d), c.Format); err != nil {
		_ = r.close(c.Trace)
		return err
	}
	return r.close(c.Trace)
}

// report is what the host learned about the device.
type report struct {
	Address       uint8       `json:"address" yaml:"address"`
	USB           string      `json:"usb" yaml:"usb"`
	VendorID      string      `json:"vendorId" yaml:"vendorId"`
	ProductID     string      `json:"productId" yaml:"productId"`
	Manufacturer  string      `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	Product       string      `json:"product,omitempty" yaml:"product,omitempty"`
	Serial        string      `json:"serial,omitempty" yaml:"serial,omitempty"`
	Configuration int         `json:"configuration" yaml:"configuration"`
	TotalLength   int         `json:"totalLength" yaml:"totalLength"`
	MaxPowerMA    int         `json:"maxPowerMa" yaml:"maxPowerMa"`
	SelfPowered   bool        `json:"selfPowered" yaml:"selfPowered"`
	RemoteWakeup  bool        `json:"remoteWakeup" yaml:"remoteWakeup"`
	Interfaces    []ifaceInfo `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	LandingPage   string      `json:"landingPage,omitempty" yaml:"landingPage,omitempty"`
}

type ifaceInfo struct {
	Number    uint8    `json:"number" yaml:"number"`
	Class     string   `json:"class" yaml:"class"`
	Endpoints []string `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
}

func newReport(d *host.Device) report {
	desc := d.Descriptor()
	cfg := d.Configuration()
	r := report{
		Address:       d.Address(),
		USB:           bcd(desc.USBVersion),
		VendorID:      fmt.Sprintf("0x%04x", desc.VendorID),
		ProductID:     fmt.Sprintf("0x%04x", desc.ProductID),
		Manufacturer:  d.Manufacturer(),
		Product:       d.Product(),
		Serial:        d.SerialNumber(),
		Configuration: int(d.ConfigurationValue()),
		TotalLength:   int(cfg.TotalLength),
		MaxPowerMA:    int(cfg.MaxPower) * 2,
		SelfPowered:   cfg.Attributes&device.ConfigAttrSelfPowered != 0,
		RemoteWakeup:  cfg.Attributes&device.ConfigAttrRemoteWakeup != 0,
		LandingPage:   d.LandingPage(),
	}

	// Endpoints are listed in order, each belonging to the latest
	// interface that still has room for it.
	eps := d.Endpoints()
	for _, iface := range d.Interfaces() {
		info := ifaceInfo{
			Number: iface.InterfaceNumber,
			Class: fmt.Sprintf("%02x/%02x/%02x",
				iface.InterfaceClass, iface.InterfaceSubClass, iface.InterfaceProtocol),
		}
		for range iface.NumEndpoints {
			if len(eps) == 0 {
				break
			}
			ep := eps[0]
			eps = eps[1:]
			info.Endpoints = append(info.Endpoints,
				fmt.Sprintf("0x%02x %s %dB/%d", ep.EndpointAddress, transferType(ep.Attributes), ep.MaxPacketSize, ep.Interval))
		}
		r.Interfaces = append(r.Interfaces, info)
	}
	return r
}

func bcd(v uint16) string {
	return fmt.Sprintf("%x.%02x", v>>8, v&0xFF)
}

func transferType(attrs uint8) string {
	switch attrs & 0x03 {
	case device.EndpointTypeControl:
		return "control"
	case device.EndpointTypeIsochronous:
		return "isochronous"
	case device.EndpointTypeBulk:
		return "bulk"
	default:
		return "interrupt"
	}
}

func writeReport(w io.Writer, r report, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(r)
	}

	fmt.Fprintf(w, "address       %d\n", r.Address)
	fmt.Fprintf(w, "usb           %s\n", r.USB)
	fmt.Fprintf(w, "id            %s:%s\n", r.VendorID, r.ProductID)
	fmt.Fprintf(w, "manufacturer  %s\n", r.Manufacturer)
	fmt.Fprintf(w, "product       %s\n", r.Product)
	fmt.Fprintf(w, "serial        %s\n", r.Serial)
	fmt.Fprintf(w, "configuration %d (%d bytes, %d mA, self-powered %t, remote wakeup %t)\n",
		r.Configuration, r.TotalLength, r.MaxPowerMA, r.SelfPowered, r.RemoteWakeup)
	for _, iface := range r.Interfaces {
		fmt.Fprintf(w, "interface %d   class %s\n", iface.Number, iface.Class)
		for _, ep := range iface.Endpoints {
			fmt.Fprintf(w, "  endpoint    %s\n", ep)
		}
	}
	if r.LandingPage != "" {
		fmt.Fprintf(w, "landing page  %s\n", r.LandingPage)
	}
	return nil
}
