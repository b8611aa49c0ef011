package device

import (
	"encoding/binary"

	"github.com/ardnew/pmausb/pkg"
)

// standardRequest handles standard requests addressed to the device.
func (d *Device) standardRequest(s *SetupPacket) error {
	if s.Kind() != RequestTypeStandard || s.Recipient() != RequestRecipientDevice {
		return pkg.ErrInvalidRequest
	}

	if s.In() {
		switch s.Request {
		case RequestGetDescriptor:
			return d.getDescriptor(s)
		case RequestGetStatus:
			return d.getStatus(s)
		default:
			return pkg.ErrInvalidRequest
		}
	}

	switch s.Request {
	case RequestSetFeature:
		return d.setFeature(s, true)
	case RequestClearFeature:
		return d.setFeature(s, false)
	case RequestSetAddress:
		return d.setAddress(s)
	case RequestSetConfiguration:
		return d.setConfiguration(s)
	default:
		return pkg.ErrInvalidRequest
	}
}

// getDescriptor serves device, configuration, string and BOS descriptors.
// The device is full-speed only, so the device qualifier is refused.
func (d *Device) getDescriptor(s *SetupPacket) error {
	typ, idx := s.Descriptor()

	switch typ {
	case DescriptorTypeDevice:
		d.sendDescriptor(d.desc.Device, false)

	case DescriptorTypeConfiguration:
		d.sendDescriptor(d.desc.Configuration, true)

	case DescriptorTypeString:
		desc := d.stringDescriptor(idx)
		if desc == nil {
			return pkg.ErrInvalidDescriptorIndex
		}
		d.sendDescriptor(desc[:desc[0]], false)

	case DescriptorTypeBOS:
		if d.desc.BOS == nil {
			return pkg.ErrNotSupported
		}
		d.sendDescriptor(d.desc.BOS, false)

	case DescriptorTypeDeviceQualifier:
		return pkg.ErrNotSupported

	default:
		return pkg.ErrInvalidRequest
	}
	return nil
}

func (d *Device) stringDescriptor(idx uint8) []byte {
	if int(idx) >= len(d.desc.Strings) {
		return nil
	}
	if idx != 0 && idx == d.desc.SerialIndex {
		if p := d.serial.Load(); p != nil {
			return *p
		}
	}
	return d.desc.Strings[idx]
}

// getStatus reports self-powered and remote wakeup.
func (d *Device) getStatus(s *SetupPacket) error {
	var status uint16
	if d.selfPowered {
		status |= StatusSelfPowered
	}
	if d.remoteWakeup.Load() {
		status |= StatusRemoteWakeup
	}
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], status)
	n := min(len(buf), int(s.Length))
	d.writeEP0(buf[:n])
	d.armEP0(n, true)
	return nil
}

// setFeature handles SET_FEATURE and CLEAR_FEATURE. Remote wakeup is the
// only device feature.
func (d *Device) setFeature(s *SetupPacket, on bool) error {
	if s.Value != FeatureDeviceRemoteWakeup {
		return pkg.ErrNotSupported
	}
	d.remoteWakeup.Store(on)
	d.ep0.Ack()
	pkg.LogDebug(pkg.ComponentControl, "remote wakeup", "enabled", on)
	return nil
}

// setAddress defers the address until the status stage completes.
func (d *Device) setAddress(s *SetupPacket) error {
	d.ctl.pendingAddress = uint8(s.Value & 0x7F)
	d.ctl.addressPending = true
	d.ep0.Ack()
	return nil
}

func (d *Device) setConfiguration(s *SetupPacket) error {
	d.ep0.Ack()
	pkg.LogDebug(pkg.ComponentControl, "configuration set", "value", s.Value)
	return nil
}
