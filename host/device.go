package host

import (
	"context"
	"encoding/binary"

	"github.com/ardnew/pmausb/device"
	"github.com/ardnew/pmausb/pkg"
)

// Device is an enumerated function as seen from the host.
type Device struct {
	host    *Host
	address uint8

	descriptor device.DeviceDescriptor
	config     device.ConfigurationDescriptor
	rawConfig  []byte

	interfaces       []device.InterfaceDescriptor
	endpoints        []device.EndpointDescriptor
	classDescriptors [device.MaxInterfaces][][]byte

	strings [device.MaxStrings]string

	bos         []byte
	vendorCode  uint8
	landingPage string

	configurationValue uint8
}

func newDevice(host *Host, address uint8) *Device {
	return &Device{host: host, address: address}
}

// Address returns the device address.
func (d *Device) Address() uint8 {
	return d.address
}

// VendorID returns the device vendor ID.
func (d *Device) VendorID() uint16 {
	return d.descriptor.VendorID
}

// ProductID returns the device product ID.
func (d *Device) ProductID() uint16 {
	return d.descriptor.ProductID
}

// Descriptor returns the device descriptor.
func (d *Device) Descriptor() device.DeviceDescriptor {
	return d.descriptor
}

// Configuration returns the configuration descriptor header.
func (d *Device) Configuration() device.ConfigurationDescriptor {
	return d.config
}

// RawConfiguration returns the full configuration blob as read.
func (d *Device) RawConfiguration() []byte {
	return d.rawConfig
}

// Interfaces returns the interface descriptors.
func (d *Device) Interfaces() []device.InterfaceDescriptor {
	return d.interfaces
}

// Endpoints returns the endpoint descriptors.
func (d *Device) Endpoints() []device.EndpointDescriptor {
	return d.endpoints
}

// ClassDescriptors returns the class-specific descriptors that followed
// the interface with index i in the configuration.
func (d *Device) ClassDescriptors(i int) [][]byte {
	if i < 0 || i >= len(d.classDescriptors) {
		return nil
	}
	return d.classDescriptors[i]
}

// GetString returns a cached string descriptor.
func (d *Device) GetString(index uint8) string {
	if int(index) >= len(d.strings) {
		return ""
	}
	return d.strings[index]
}

// Manufacturer returns the manufacturer string.
func (d *Device) Manufacturer() string {
	return d.GetString(d.descriptor.ManufacturerIndex)
}

// Product returns the product string.
func (d *Device) Product() string {
	return d.GetString(d.descriptor.ProductIndex)
}

// SerialNumber returns the serial number string.
func (d *Device) SerialNumber() string {
	return d.GetString(d.descriptor.SerialNumberIndex)
}

// BOS returns the binary object store, or nil.
func (d *Device) BOS() []byte {
	return d.bos
}

// LandingPage returns the WebUSB landing page URL, or "".
func (d *Device) LandingPage() string {
	return d.landingPage
}

// ConfigurationValue returns the configuration selected by enumeration.
func (d *Device) ConfigurationValue() uint8 {
	return d.configurationValue
}

// ControlTransfer performs a control transfer on endpoint 0.
func (d *Device) ControlTransfer(ctx context.Context, setup *device.SetupPacket, data []byte) (int, error) {
	return d.host.ControlTransfer(ctx, d.address, d.maxPacket0(), setup, data)
}

func (d *Device) maxPacket0() int {
	return int(d.descriptor.MaxPacketSize0)
}

// GetDescriptor performs a GET_DESCRIPTOR request.
func (d *Device) GetDescriptor(ctx context.Context, descType, descIndex uint8, langID uint16, data []byte) (int, error) {
	setup := GetDescriptorRequest(descType, descIndex, langID, uint16(len(data)))
	return d.ControlTransfer(ctx, &setup, data)
}

// GetStatus performs a device GET_STATUS request.
func (d *Device) GetStatus(ctx context.Context) (uint16, error) {
	var buf [2]byte
	setup := GetStatusRequest(device.RequestRecipientDevice, 0)
	if _, err := d.ControlTransfer(ctx, &setup, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// SetFeature performs a device SET_FEATURE request.
func (d *Device) SetFeature(ctx context.Context, feature uint16) error {
	setup := FeatureRequest(true, device.RequestRecipientDevice, feature, 0)
	_, err := d.ControlTransfer(ctx, &setup, nil)
	return err
}

// ClearFeature performs a device CLEAR_FEATURE request.
func (d *Device) ClearFeature(ctx context.Context, feature uint16) error {
	setup := FeatureRequest(false, device.RequestRecipientDevice, feature, 0)
	_, err := d.ControlTransfer(ctx, &setup, nil)
	return err
}

// SetConfiguration selects a configuration.
func (d *Device) SetConfiguration(ctx context.Context, value uint8) error {
	setup := SetConfigurationRequest(value)
	if _, err := d.ControlTransfer(ctx, &setup, nil); err != nil {
		return err
	}
	d.configurationValue = value
	return nil
}

// GetURL performs the WebUSB GET_URL vendor request.
func (d *Device) GetURL(ctx context.Context, vendorCode, index uint8) (string, error) {
	buf := make([]byte, 255)
	setup := VendorRequest(vendorCode, uint16(index), device.WebUSBRequestGetURL, uint16(len(buf)))
	n, err := d.ControlTransfer(ctx, &setup, buf)
	if err != nil {
		return "", err
	}
	url, ok := device.ParseWebUSBURL(buf[:n])
	if !ok {
		return "", ErrEnumerationFailed
	}
	return url, nil
}

// parseConfigurationTree records the interfaces, endpoints and class
// descriptors of a configuration blob. Class descriptors are filed under
// the interface they follow.
func (d *Device) parseConfigurationTree(data []byte) {
	if d.config.UnmarshalBinary(data) != nil {
		return
	}
	d.rawConfig = append([]byte(nil), data...)
	d.interfaces = make([]device.InterfaceDescriptor, 0, d.config.NumInterfaces)
	d.endpoints = d.endpoints[:0]

	end := max(device.ConfigurationDescriptorSize, min(len(data), int(d.config.TotalLength)))
	body := data[device.ConfigurationDescriptorSize:end]
	current := -1
	err := device.Walk(body, func(desc []byte) error {
		switch desc[1] {
		case device.DescriptorTypeInterface:
			var iface device.InterfaceDescriptor
			if iface.UnmarshalBinary(desc) == nil {
				d.interfaces = append(d.interfaces, iface)
				current = len(d.interfaces) - 1
			}
		case device.DescriptorTypeEndpoint:
			var ep device.EndpointDescriptor
			if ep.UnmarshalBinary(desc) == nil {
				d.endpoints = append(d.endpoints, ep)
			}
		default:
			if current >= 0 && current < len(d.classDescriptors) {
				d.classDescriptors[current] = append(d.classDescriptors[current],
					append([]byte(nil), desc...))
			}
		}
		return nil
	})
	if err != nil {
		pkg.LogDebug(pkg.ComponentHost, "configuration truncated", "error", err)
	}
}

// parseBOS records the WebUSB vendor code when a WebUSB platform
// capability is present.
func (d *Device) parseBOS(data []byte) bool {
	d.bos = append([]byte(nil), data...)
	offset := device.BOSDescriptorSize
	for offset+3 <= len(data) {
		length := int(data[offset])
		if length < 3 || offset+length > len(data) {
			break
		}
		pc := data[offset : offset+length]
		if pc[1] == device.DescriptorTypeDeviceCapability &&
			pc[2] == device.DeviceCapabilityPlatform &&
			length >= device.WebUSBCapabilitySize {
			d.vendorCode = pc[22]
			return true
		}
		offset += length
	}
	return false
}
