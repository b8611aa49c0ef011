package device

import (
	"github.com/ardnew/pmausb/device/hal"
	"github.com/ardnew/pmausb/device/pma"
	"github.com/ardnew/pmausb/pkg"
)

// Endpoint transfer types (USB 2.0 Spec Table 9-13).
const (
	EndpointTypeControl     = 0x00 // Control transfer
	EndpointTypeIsochronous = 0x01 // Isochronous transfer
	EndpointTypeBulk        = 0x02 // Bulk transfer
	EndpointTypeInterrupt   = 0x03 // Interrupt transfer
)

// Endpoint directions.
const (
	EndpointDirectionOut = 0x00 // Host to device
	EndpointDirectionIn  = 0x80 // Device to host
)

// EndpointEvent is a bus event delivered to every endpoint handler.
type EndpointEvent uint8

const (
	// EventReset is delivered on bus reset, before the address is cleared.
	EventReset EndpointEvent = iota
	// EventDeviceResume is delivered when a remote wake completes.
	EventDeviceResume
)

// String returns the event name.
func (e EndpointEvent) String() string {
	switch e {
	case EventReset:
		return "reset"
	case EventDeviceResume:
		return "device-resume"
	default:
		return "unknown"
	}
}

// EndpointHandler services one endpoint. Its methods run in interrupt
// context.
type EndpointHandler interface {
	// Tx is called when an IN transaction on the endpoint completed.
	Tx(ep *EndpointIO)
	// Rx is called when an OUT or SETUP transaction completed.
	Rx(ep *EndpointIO)
	// Event delivers bus events.
	Event(ep *EndpointIO, evt EndpointEvent)
}

// EndpointIO is the access an endpoint handler has to its own endpoint
// registers and packet buffers.
type EndpointIO struct {
	d   *Device
	num uint8
}

// Number returns the endpoint number.
func (e *EndpointIO) Number() uint8 { return e.num }

// MaxPacketSize returns the size of each of the endpoint's buffers.
func (e *EndpointIO) MaxPacketSize() int {
	return e.d.layout.Endpoints[e.num].Size
}

// Configure programs the endpoint type and both direction states.
func (e *EndpointIO) Configure(typ hal.EndpointType, tx, rx hal.EndpointStatus) {
	e.d.hw.ConfigureEndpoint(e.num, typ)
	e.d.hw.SetTxStatus(e.num, tx)
	e.d.hw.SetRxStatus(e.num, rx)
}

// Write stages data in the transmit buffer and arms the IN direction.
// Returns the number of bytes staged.
func (e *EndpointIO) Write(data []byte) int {
	n := min(len(data), e.MaxPacketSize())
	pma.CopyTo(e.d.mem, e.d.table.TxAddr(int(e.num)), data[:n])
	e.d.table.SetTxCount(int(e.num), n)
	e.d.hw.SetTxStatus(e.num, hal.StatusValid)
	return n
}

// Read copies the last received packet into buf and returns its length.
func (e *EndpointIO) Read(buf []byte) int {
	n := min(e.d.table.RxCount(int(e.num)), len(buf))
	pma.CopyFrom(buf[:n], e.d.mem, e.d.table.RxAddr(int(e.num)))
	return n
}

// ArmRx makes the endpoint ready to receive.
func (e *EndpointIO) ArmRx() {
	e.d.hw.SetRxStatus(e.num, hal.StatusValid)
}

// Stall stalls both directions of the endpoint.
func (e *EndpointIO) Stall() {
	e.d.hw.SetTxStatus(e.num, hal.StatusStall)
	e.d.hw.SetRxStatus(e.num, hal.StatusStall)
	pkg.LogDebug(pkg.ComponentDevice, "endpoint stalled", "ep", e.num)
}

// controlEndpoint is the endpoint 0 handler.
type controlEndpoint struct {
	d *Device
}

func (c controlEndpoint) Tx(*EndpointIO) { c.d.ep0Tx() }

func (c controlEndpoint) Rx(*EndpointIO) { c.d.ep0Rx() }

func (c controlEndpoint) Event(ep *EndpointIO, evt EndpointEvent) {
	if evt != EventReset {
		return
	}
	ep.Configure(hal.EndpointControl, hal.StatusNAK, hal.StatusValid)
}
