package host

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ardnew/pmausb/device"
	"github.com/ardnew/pmausb/pkg"
)

// ErrEnumerationFailed is returned when a descriptor is missing or short.
var ErrEnumerationFailed = errors.New("enumeration failed")

// Enumerate resets the bus and runs the enumeration sequence: device
// descriptor, address assignment, configuration tree, strings, BOS and
// WebUSB landing page, then selects the first configuration.
func (h *Host) Enumerate(ctx context.Context) (*Device, error) {
	pkg.LogDebug(pkg.ComponentHost, "starting enumeration")

	h.bus.BusReset()

	dev := newDevice(h, 0)
	var buf [MaxDescriptorSize]byte

	// The first 8 bytes carry bMaxPacketSize0.
	n, err := dev.GetDescriptor(ctx, device.DescriptorTypeDevice, 0, 0, buf[:8])
	if err != nil {
		return nil, err
	}
	if n < 8 {
		return nil, fmt.Errorf("%w: device descriptor header %d bytes", ErrEnumerationFailed, n)
	}
	dev.descriptor.MaxPacketSize0 = buf[7]
	if dev.descriptor.MaxPacketSize0 == 0 {
		dev.descriptor.MaxPacketSize0 = defaultMaxPacket0
	}

	address := h.allocateAddress()
	setup := SetAddressRequest(address)
	if _, err := dev.ControlTransfer(ctx, &setup, nil); err != nil {
		return nil, err
	}
	dev.address = address
	pkg.LogDebug(pkg.ComponentHost, "assigned address", "address", address)

	n, err = dev.GetDescriptor(ctx, device.DescriptorTypeDevice, 0, 0, buf[:device.DeviceDescriptorSize])
	if err != nil {
		return nil, err
	}
	if err := dev.descriptor.UnmarshalBinary(buf[:n]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnumerationFailed, err)
	}

	pkg.LogDebug(pkg.ComponentHost, "device descriptor",
		"vendorID", dev.descriptor.VendorID,
		"productID", dev.descriptor.ProductID,
		"usb", dev.descriptor.USBVersion)

	// Read the header first for wTotalLength, then the whole tree.
	n, err = dev.GetDescriptor(ctx, device.DescriptorTypeConfiguration, 0, 0, buf[:device.ConfigurationDescriptorSize])
	if err != nil {
		return nil, err
	}
	if n < device.ConfigurationDescriptorSize {
		return nil, fmt.Errorf("%w: configuration header %d bytes", ErrEnumerationFailed, n)
	}
	total := min(int(binary.LittleEndian.Uint16(buf[2:4])), len(buf))
	n, err = dev.GetDescriptor(ctx, device.DescriptorTypeConfiguration, 0, 0, buf[:total])
	if err != nil {
		return nil, err
	}
	dev.parseConfigurationTree(buf[:n])

	pkg.LogDebug(pkg.ComponentHost, "configuration descriptor",
		"numInterfaces", dev.config.NumInterfaces,
		"totalLength", dev.config.TotalLength)

	if err := h.readStringDescriptors(ctx, dev, buf[:255]); err != nil {
		pkg.LogDebug(pkg.ComponentHost, "string descriptor read failed", "error", err)
	}

	if dev.descriptor.USBVersion >= device.USBVersionBOS {
		if err := h.readBOS(ctx, dev, buf[:]); err != nil {
			pkg.LogDebug(pkg.ComponentHost, "BOS read failed", "error", err)
		}
	}

	if dev.config.ConfigurationValue > 0 {
		if err := dev.SetConfiguration(ctx, dev.config.ConfigurationValue); err != nil {
			return nil, err
		}
	}

	pkg.LogInfo(pkg.ComponentHost, "device enumerated",
		"address", dev.address,
		"product", dev.Product())
	return dev, nil
}

// readStringDescriptors reads and caches the device-level strings.
func (h *Host) readStringDescriptors(ctx context.Context, dev *Device, buf []byte) error {
	n, err := dev.GetDescriptor(ctx, device.DescriptorTypeString, 0, 0, buf)
	if err != nil {
		return err
	}
	if n < 4 {
		return fmt.Errorf("%w: language table", ErrEnumerationFailed)
	}
	lang := binary.LittleEndian.Uint16(buf[2:4])

	indices := []uint8{
		dev.descriptor.ManufacturerIndex,
		dev.descriptor.ProductIndex,
		dev.descriptor.SerialNumberIndex,
		dev.config.ConfigurationIndex,
	}
	for _, idx := range indices {
		if idx == 0 || int(idx) >= len(dev.strings) {
			continue
		}
		n, err := dev.GetDescriptor(ctx, device.DescriptorTypeString, idx, lang, buf)
		if err != nil {
			return err
		}
		s, err := device.DecodeString(buf[:n])
		if err != nil {
			return err
		}
		dev.strings[idx] = s
	}
	return nil
}

// readBOS reads the BOS and, when WebUSB is advertised, the landing page.
func (h *Host) readBOS(ctx context.Context, dev *Device, buf []byte) error {
	n, err := dev.GetDescriptor(ctx, device.DescriptorTypeBOS, 0, 0, buf[:device.BOSDescriptorSize])
	if err != nil {
		return err
	}
	if n < device.BOSDescriptorSize {
		return fmt.Errorf("%w: BOS header", ErrEnumerationFailed)
	}
	total := min(int(binary.LittleEndian.Uint16(buf[2:4])), len(buf))
	n, err = dev.GetDescriptor(ctx, device.DescriptorTypeBOS, 0, 0, buf[:total])
	if err != nil {
		return err
	}
	if !dev.parseBOS(buf[:n]) {
		return nil
	}
	url, err := dev.GetURL(ctx, dev.vendorCode, 1)
	if err != nil {
		return err
	}
	dev.landingPage = url
	return nil
}
