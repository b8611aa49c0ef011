package device

import (
	"github.com/ardnew/pmausb/device/hal"
	"github.com/ardnew/pmausb/device/pma"
	"github.com/ardnew/pmausb/pkg"
)

// Control is the view of endpoint 0 given to interface handlers. It is
// only valid inside HandleRequest.
type Control struct {
	d *Device
}

// Setup returns the SETUP packet of the transfer in progress.
func (c *Control) Setup() *SetupPacket {
	return &c.d.ctl.setup
}

// MaxPacketSize returns the endpoint 0 packet size.
func (c *Control) MaxPacketSize() int {
	return MaxPacketSize
}

// Send stages up to one packet of data and arms the IN direction. When
// last is set the following OUT is treated as the status stage. Returns
// the number of bytes staged.
func (c *Control) Send(data []byte, last bool) int {
	n := min(len(data), MaxPacketSize)
	c.d.writeEP0(data[:n])
	c.d.armEP0(n, last)
	return n
}

// Ack arms a zero-length IN packet, completing the status stage of a
// request without an IN data stage.
func (c *Control) Ack() {
	c.d.armEP0(0, false)
}

// Stall stalls endpoint 0 until the next SETUP.
func (c *Control) Stall() {
	c.d.stallEP0()
}

func (d *Device) writeEP0(data []byte) {
	pma.CopyTo(d.mem, d.table.TxAddr(0), data)
}

// armEP0 sets the transmit count and makes both directions valid so the
// host may continue with IN tokens or end the transfer with an OUT.
func (d *Device) armEP0(n int, statusOut bool) {
	d.table.SetTxCount(0, n)
	d.hw.SetStatusOut(0, statusOut)
	d.hw.SetTxStatus(0, hal.StatusValid)
	d.hw.SetRxStatus(0, hal.StatusValid)
}

// stallEP0 abandons the transfer. The hardware accepts the next SETUP
// regardless of the stall.
func (d *Device) stallEP0() {
	d.ctl.stream.clear()
	d.ctl.iface = noInterface
	d.hw.SetStatusOut(0, false)
	d.hw.SetTxStatus(0, hal.StatusStall)
	d.hw.SetRxStatus(0, hal.StatusStall)
	pkg.LogDebug(pkg.ComponentControl, "ep0 stalled")
}
