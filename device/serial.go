package device

import (
	"fmt"

	"github.com/ardnew/pmausb/pkg"
)

// SetSerial replaces the serial number string served at the serial
// string index. It may be called at any time.
func (d *Device) SetSerial(serial string) error {
	if d.desc.SerialIndex == 0 {
		return fmt.Errorf("%w: no serial string index", pkg.ErrNotSupported)
	}
	r := []rune(serial)
	if len(r) > MaxSerialLength {
		return fmt.Errorf("%w: serial longer than %d", pkg.ErrInvalidParameter, MaxSerialLength)
	}
	desc := StringDescriptor(serial)
	d.serial.Store(&desc)
	pkg.LogDebug(pkg.ComponentDevice, "serial set", "serial", serial)
	return nil
}

// Serial returns the serial number currently served.
func (d *Device) Serial() string {
	desc := d.stringDescriptor(d.desc.SerialIndex)
	if desc == nil || d.desc.SerialIndex == 0 {
		return ""
	}
	s, _ := DecodeString(desc)
	return s
}

func (d *Device) loadSerial() {
	if d.serialSource == nil {
		return
	}
	serial, err := d.serialSource()
	if err == nil {
		err = d.SetSerial(serial)
	}
	if err != nil {
		pkg.LogWarn(pkg.ComponentDevice, "serial number unavailable", "error", err)
	}
}
