package device

import (
	"encoding/binary"

	"github.com/ardnew/pmausb/device/pma"
	"github.com/ardnew/pmausb/pkg"
)

// cursor tracks the unsent part of a descriptor. It is active exactly
// while another IN packet of the descriptor is pending.
type cursor struct {
	rem    []byte
	zlp    bool
	active bool
}

func (c *cursor) clear() {
	*c = cursor{}
}

// next returns the next chunk and whether it ends the data stage. A data
// stage shorter than requested that ends on a packet boundary is closed
// with a zero-length packet.
func (c *cursor) next(size int) (chunk []byte, last bool) {
	n := min(len(c.rem), size)
	chunk, c.rem = c.rem[:n], c.rem[n:]
	last = len(c.rem) == 0 && (n < size || !c.zlp)
	c.active = !last
	if last {
		c.rem = nil
	}
	return chunk, last
}

// sendDescriptor starts the data stage for desc, truncated to the
// requested length. When config is set the wTotalLength field is written
// with the full blob length as the first packet is staged.
func (d *Device) sendDescriptor(desc []byte, config bool) {
	want := int(d.ctl.setup.Length)
	n := min(len(desc), want)
	d.ctl.stream = cursor{rem: desc[:n], zlp: n < want}

	chunk, last := d.ctl.stream.next(MaxPacketSize)
	d.writeEP0(chunk)
	if config {
		d.injectTotalLength(len(chunk), len(desc))
	}
	d.armEP0(len(chunk), last)

	pkg.LogDebug(pkg.ComponentControl, "descriptor",
		"value", d.ctl.setup.Value,
		"len", n,
		"streamed", !last)
}

// streamNext stages the next chunk after an IN completion.
func (d *Device) streamNext() {
	chunk, last := d.ctl.stream.next(MaxPacketSize)
	d.writeEP0(chunk)
	d.armEP0(len(chunk), last)
}

// injectTotalLength patches bytes 2 and 3 of the staged packet, limited
// to the bytes actually sent.
func (d *Device) injectTotalLength(sent, total int) {
	if sent <= 2 {
		return
	}
	var le [2]byte
	binary.LittleEndian.PutUint16(le[:], uint16(total))
	pma.CopyTo(d.mem, d.table.TxAddr(0)+2, le[:min(2, sent-2)])
}
