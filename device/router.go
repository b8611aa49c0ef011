package device

import (
	"fmt"

	"github.com/ardnew/pmausb/device/hal"
	"github.com/ardnew/pmausb/pkg"
)

// ep0Rx handles an OUT or SETUP completion on endpoint 0.
func (d *Device) ep0Rx() {
	assertInterruptContext(d)

	if d.hw.IsSetup(0) {
		d.ep0Setup()
		return
	}

	c := &d.ctl
	if c.iface != noInterface && !c.setup.In() {
		var buf [MaxPacketSize]byte
		n := d.endpointIO[0].Read(buf[:])
		d.continueInterface(buf[:n])
		return
	}

	// Status stage of an IN transfer. Anything still queued is dropped.
	c.stream.clear()
	c.iface = noInterface
	d.hw.SetStatusOut(0, false)
	d.hw.SetTxStatus(0, hal.StatusNAK)
	d.hw.SetRxStatus(0, hal.StatusValid)
}

// ep0Tx handles an IN completion on endpoint 0.
func (d *Device) ep0Tx() {
	assertInterruptContext(d)

	c := &d.ctl

	// The status stage of SET_ADDRESS has just completed.
	if c.addressPending {
		d.hw.SetAddress(c.pendingAddress)
		c.addressPending = false
		pkg.LogDebug(pkg.ComponentControl, "address set", "address", c.pendingAddress)
	}

	if c.stream.active {
		d.streamNext()
		return
	}
	if c.iface != noInterface {
		if c.setup.In() {
			d.continueInterface(nil)
			return
		}
		c.iface = noInterface
	}
}

// ep0Setup decodes a SETUP packet and routes it. Any failure stalls
// endpoint 0.
func (d *Device) ep0Setup() {
	c := &d.ctl
	c.stream.clear()
	c.iface = noInterface

	if err := ReadSetupPacket(d.mem, d.table.RxAddr(0), d.table.RxCount(0), &c.setup); err != nil {
		pkg.LogDebug(pkg.ComponentControl, "bad setup", "error", err)
		d.stallEP0()
		return
	}

	pkg.LogDebug(pkg.ComponentControl, "setup", "packet", c.setup.String())

	if err := d.route(&c.setup); err != nil {
		pkg.LogDebug(pkg.ComponentControl, "request failed",
			"setup", c.setup.String(),
			"error", err)
		d.stallEP0()
	}
}

// route dispatches by recipient and type: interface requests to their
// handler, vendor requests to the vendor table, the rest to the standard
// handlers.
func (d *Device) route(s *SetupPacket) error {
	if s.Recipient() == RequestRecipientInterface {
		if n := s.Interface(); n < d.ifaceCount && d.ifaces[n] != nil {
			return d.interfaceRequest(n, s)
		}
	}
	if s.Kind() == RequestTypeVendor {
		return d.vendorRequest(s)
	}
	return d.standardRequest(s)
}

func (d *Device) interfaceRequest(n int, s *SetupPacket) error {
	switch d.ifaces[n].HandleRequest(s, nil, &d.ep0) {
	case ResultDone:
		return nil
	case ResultContinue:
		d.ctl.iface = n
		if !s.In() {
			d.hw.SetRxStatus(0, hal.StatusValid)
		}
		return nil
	default:
		return fmt.Errorf("%w: interface %d", pkg.ErrInterfaceHandler, n)
	}
}

// continueInterface reinvokes the active interface handler with no setup.
func (d *Device) continueInterface(data []byte) {
	c := &d.ctl
	n := c.iface
	switch d.ifaces[n].HandleRequest(nil, data, &d.ep0) {
	case ResultContinue:
		if !c.setup.In() {
			d.hw.SetRxStatus(0, hal.StatusValid)
		}
	case ResultDone:
		c.iface = noInterface
	default:
		pkg.LogDebug(pkg.ComponentControl, "request failed",
			"setup", c.setup.String(),
			"error", fmt.Errorf("%w: interface %d", pkg.ErrInterfaceHandler, n))
		d.stallEP0()
	}
}
