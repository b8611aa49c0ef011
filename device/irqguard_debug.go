//go:build usbdebug

package device

// assertInterruptContext panics when interrupt-owned state is touched
// outside Interrupt.
func assertInterruptContext(d *Device) {
	if !d.inInterrupt.Load() {
		panic("usb: control state accessed outside interrupt context")
	}
}
