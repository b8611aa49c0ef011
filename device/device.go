package device

import (
	"fmt"
	"sync/atomic"

	"github.com/ardnew/pmausb/device/hal"
	"github.com/ardnew/pmausb/device/pma"
	"github.com/ardnew/pmausb/pkg"
)

// Config is the static configuration of a device.
type Config struct {
	// Descriptors is the descriptor set served on EP0.
	Descriptors *Descriptors

	// Interfaces is indexed by interface number. Nil entries are skipped
	// by the router and fall through to standard handling.
	Interfaces []InterfaceHandler

	// Endpoints holds the handlers for endpoints 1 and up, in order.
	// Endpoint 0 is always the control endpoint.
	Endpoints []EndpointHandler

	// Vendor is the vendor request table.
	Vendor []VendorRequest

	// Board receives clock, sleep and remote wake notifications.
	// Defaults to hal.NopBoard.
	Board hal.Board

	// Serial supplies the serial number at Init. When nil or failing,
	// the serial string from Descriptors is served.
	Serial func() (string, error)

	// SelfPowered is reported by GET_STATUS.
	SelfPowered bool

	// InhibitConnect leaves the pull-up disabled after Init. Call
	// Connect to attach to the bus later.
	InhibitConnect bool
}

// Device is the control-transfer engine of a full-speed device
// controller. All bus events are processed by Interrupt, which the
// peripheral invokes serially. Wake, IsSuspended, SetSerial and the
// lifecycle methods may be called from any goroutine.
type Device struct {
	hw     hal.Peripheral
	board  hal.Board
	mem    pma.WordAccessor
	table  *pma.Table
	layout pma.Layout

	desc   *Descriptors
	vendor []VendorRequest

	// Fixed tables indexed by number.
	ifaces        [MaxInterfaces]InterfaceHandler
	ifaceCount    int
	endpoints     [MaxEndpoints]EndpointHandler
	endpointIO    [MaxEndpoints]EndpointIO
	endpointCount int

	selfPowered    bool
	inhibitConnect bool
	serialSource   func() (string, error)
	serial         atomic.Pointer[[]byte]

	// ctl is owned by the interrupt handler.
	ctl control
	ep0 Control

	remoteWakeup atomic.Bool
	power        power

	inInterrupt atomic.Bool
	enabled     atomic.Bool
}

// control holds the control transfer state. It is reinitialized as a
// whole on bus reset.
type control struct {
	setup          SetupPacket
	pendingAddress uint8
	addressPending bool
	stream         cursor
	iface          int
}

func (c *control) reset() {
	*c = control{iface: noInterface}
}

// New validates cfg, lays out packet memory and returns a device bound to
// hw. The device does not touch the hardware until Init.
func New(hw hal.Peripheral, cfg Config) (*Device, error) {
	if hw == nil || cfg.Descriptors == nil {
		return nil, pkg.ErrInvalidParameter
	}
	if err := cfg.Descriptors.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Interfaces) > MaxInterfaces {
		return nil, pkg.ErrTooManyInterfaces
	}
	if len(cfg.Endpoints)+1 > MaxEndpoints {
		return nil, pkg.ErrTooManyEndpoints
	}
	for i, h := range cfg.Endpoints {
		if h == nil {
			return nil, fmt.Errorf("%w: endpoint %d has no handler", pkg.ErrInvalidParameter, i+1)
		}
	}

	size := hw.MemorySize()
	if size <= 0 {
		size = DefaultMemorySize
	}
	layout, err := pma.NewLayout(size, len(cfg.Endpoints)+1, MaxPacketSize)
	if err != nil {
		return nil, err
	}

	d := &Device{
		hw:             hw,
		board:          cfg.Board,
		mem:            hw.Memory(),
		layout:         layout,
		desc:           cfg.Descriptors,
		vendor:         cfg.Vendor,
		selfPowered:    cfg.SelfPowered,
		inhibitConnect: cfg.InhibitConnect,
		serialSource:   cfg.Serial,
	}
	if d.board == nil {
		d.board = hal.NopBoard{}
	}
	d.table = pma.NewTable(d.mem, layout.TableBase)
	d.ep0 = Control{d: d}
	d.ctl.reset()
	d.power.init()

	d.ifaceCount = copy(d.ifaces[:], cfg.Interfaces)
	d.endpoints[0] = controlEndpoint{d: d}
	d.endpointCount = 1 + copy(d.endpoints[1:], cfg.Endpoints)
	for ep := range d.endpointCount {
		d.endpointIO[ep] = EndpointIO{d: d, num: uint8(ep)}
	}

	pkg.LogDebug(pkg.ComponentDevice, "device created",
		"interfaces", d.ifaceCount,
		"endpoints", d.endpointCount,
		"pma", size)

	return d, nil
}

// Init powers the peripheral up, enables its interrupt and connects to the
// bus unless connection is inhibited.
func (d *Device) Init() error {
	if d.enabled.Load() {
		return nil
	}

	d.board.SetClock(true)

	// Force reset, then release it with every interrupt masked.
	d.hw.WriteControl(hal.CntrFRES)
	d.hw.WriteControl(0)
	d.hw.Acknowledge(0xFFFF)

	d.hw.SetTableBase(d.layout.TableBase)
	d.ctl.reset()
	d.power.init()
	d.loadSerial()

	d.hw.EnableInterrupt(d.Interrupt)
	d.hw.WriteControl(hal.CntrCTRM | hal.CntrPMAOvrM | hal.CntrErrM |
		hal.CntrWkupM | hal.CntrSuspM | hal.CntrResetM)
	d.enabled.Store(true)

	if !d.inhibitConnect {
		d.hw.Connect(true)
	}

	pkg.LogInfo(pkg.ComponentDevice, "usb init done",
		"connect", !d.inhibitConnect)
	return nil
}

// Release disconnects from the bus, disables the interrupt and gates the
// peripheral clock. Init may be called again afterward.
func (d *Device) Release() {
	if !d.enabled.Swap(false) {
		return
	}
	d.hw.Connect(false)
	d.hw.WriteControl(hal.CntrFRES | hal.CntrPDWN)
	d.hw.DisableInterrupt()
	d.board.SetSleepAllowed(true)
	d.board.SetClock(false)
	d.remoteWakeup.Store(false)

	pkg.LogInfo(pkg.ComponentDevice, "usb released")
}

// IsEnabled reports whether the device has been initialized and not
// released.
func (d *Device) IsEnabled() bool {
	return d.enabled.Load()
}

// Connect enables the bus pull-up of an initialized device.
func (d *Device) Connect() error {
	if !d.enabled.Load() {
		return pkg.ErrNotEnabled
	}
	d.hw.Connect(true)
	return nil
}

// Disconnect disables the bus pull-up.
func (d *Device) Disconnect() {
	d.hw.Connect(false)
}

// Address returns the bus address currently applied to the hardware.
func (d *Device) Address() uint8 {
	return d.hw.Address()
}

// RemoteWakeupEnabled reports whether the host has enabled remote wakeup.
func (d *Device) RemoteWakeupEnabled() bool {
	return d.remoteWakeup.Load()
}

// Layout returns the packet memory layout.
func (d *Device) Layout() pma.Layout {
	return d.layout
}

// busReset reinitializes all transfer and power state and every endpoint.
// The peripheral leaves suspend and any wake attempt ends.
func (d *Device) busReset() {
	assertInterruptContext(d)

	d.ctl.reset()
	d.remoteWakeup.Store(false)

	d.hw.ModifyControl(0, hal.CntrFSusp|hal.CntrLPMode|hal.CntrResume|hal.CntrESOFM)
	d.power.init()
	d.board.SetClock(true)
	d.board.SetSleepAllowed(false)

	for ep := range d.endpointCount {
		d.table.Reset(ep, d.layout.Endpoints[ep])
	}
	for ep := range d.endpointCount {
		d.endpoints[ep].Event(&d.endpointIO[ep], EventReset)
	}
	d.hw.SetAddress(0)

	pkg.LogDebug(pkg.ComponentDevice, "bus reset")
}
