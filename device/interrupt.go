package device

import (
	"github.com/ardnew/pmausb/device/hal"
)

// Interrupt services one peripheral interrupt. Causes are handled in a
// fixed order: bus reset, wake countdown, suspend, wakeup, then a single
// endpoint transfer completion. Exactly the causes read at entry are
// acknowledged.
func (d *Device) Interrupt() {
	d.inInterrupt.Store(true)
	defer d.inInterrupt.Store(false)

	status := d.hw.Status()

	if status&hal.IstrReset != 0 {
		d.busReset()
	}

	if status&hal.IstrESOF != 0 && d.waking() {
		d.wakeFrame()
	}

	if status&hal.IstrSusp != 0 {
		d.suspend()
	}

	if status&hal.IstrWkup != 0 {
		d.resume()
	}

	if status&hal.IstrCTR != 0 {
		ep := int(status & hal.IstrEPID)
		if ep < d.endpointCount {
			io := &d.endpointIO[ep]
			if status&hal.IstrDir != 0 {
				d.endpoints[ep].Rx(io)
			} else {
				d.endpoints[ep].Tx(io)
			}
		}
	}

	d.hw.Acknowledge(status)
}
