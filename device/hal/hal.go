package hal

import "github.com/ardnew/pmausb/device/pma"

// Interrupt status register (ISTR) bits.
const (
	IstrEPID   = 0x000F // Endpoint of the completed transaction
	IstrDir    = 0x0010 // Completed transaction was OUT or SETUP
	IstrESOF   = 0x0100 // Expected start of frame missed (1 ms tick while suspended)
	IstrSOF    = 0x0200 // Start of frame
	IstrReset  = 0x0400 // Bus reset
	IstrSusp   = 0x0800 // Suspend request
	IstrWkup   = 0x1000 // Wakeup (host resume)
	IstrErr    = 0x2000 // Packet error
	IstrPMAOvr = 0x4000 // Packet memory over/underrun
	IstrCTR    = 0x8000 // Correct transfer
)

// Control register (CNTR) bits.
const (
	CntrFRES    = 0x0001 // Force USB reset
	CntrPDWN    = 0x0002 // Power down
	CntrLPMode  = 0x0004 // Low-power mode
	CntrFSusp   = 0x0008 // Force suspend
	CntrResume  = 0x0010 // Drive resume signalling
	CntrESOFM   = 0x0100 // ESOF interrupt mask
	CntrSOFM    = 0x0200 // SOF interrupt mask
	CntrResetM  = 0x0400 // Reset interrupt mask
	CntrSuspM   = 0x0800 // Suspend interrupt mask
	CntrWkupM   = 0x1000 // Wakeup interrupt mask
	CntrErrM    = 0x2000 // Error interrupt mask
	CntrPMAOvrM = 0x4000 // Packet memory overrun mask
	CntrCTRM    = 0x8000 // Correct transfer mask
)

// LineState is the raw D+/D- receiver state (RXDP<<1 | RXDM).
type LineState uint8

// Line states.
const (
	LineSE0 LineState = 0 // Both lines low
	LineK   LineState = 1 // D- high (resume signalling at full speed)
	LineJ   LineState = 2 // D+ high (idle at full speed)
	LineSE1 LineState = 3 // Both lines high (illegal)
)

// String returns the conventional line state name.
func (s LineState) String() string {
	switch s {
	case LineSE0:
		return "SE0"
	case LineK:
		return "K"
	case LineJ:
		return "J"
	case LineSE1:
		return "SE1"
	default:
		return "invalid"
	}
}

// EndpointStatus is the handshake an endpoint direction answers with.
type EndpointStatus uint8

// Endpoint direction states.
const (
	StatusDisabled EndpointStatus = iota // Tokens are ignored
	StatusStall                          // Tokens are answered with STALL
	StatusNAK                            // Tokens are answered with NAK
	StatusValid                          // Buffer armed, next token is ACKed
)

// String returns a short status name.
func (s EndpointStatus) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusStall:
		return "stall"
	case StatusNAK:
		return "nak"
	case StatusValid:
		return "valid"
	default:
		return "invalid"
	}
}

// EndpointType is the transfer type programmed into an endpoint register.
type EndpointType uint8

// Endpoint types.
const (
	EndpointControl     EndpointType = 0x00
	EndpointIsochronous EndpointType = 0x01
	EndpointBulk        EndpointType = 0x02
	EndpointInterrupt   EndpointType = 0x03
)

// MaxEndpoints is the number of endpoint registers.
const MaxEndpoints = 8

// Peripheral is the register interface of a full-speed device controller
// with dedicated packet memory.
//
// Every method is a single register access and must be safe to call from
// the interrupt handler and from ordinary code at the same time; no method
// blocks.
type Peripheral interface {
	// Memory returns word access to packet memory.
	Memory() pma.WordAccessor

	// MemorySize returns the packet memory size in bytes.
	MemorySize() int

	// SetTableBase sets the byte offset of the buffer descriptor table.
	SetTableBase(offset int)

	// Status returns the interrupt status register.
	Status() uint16

	// Acknowledge clears exactly the interrupt causes in mask.
	Acknowledge(mask uint16)

	// Control returns the control register.
	Control() uint16

	// WriteControl replaces the control register.
	WriteControl(value uint16)

	// ModifyControl atomically sets and then clears control register bits.
	ModifyControl(set, clear uint16)

	// SetAddress writes the device address register and enables the
	// function.
	SetAddress(address uint8)

	// Address returns the device address currently in hardware.
	Address() uint8

	// LineState returns the current receiver line state.
	LineState() LineState

	// ConfigureEndpoint programs the endpoint type and resets both
	// directions to disabled.
	ConfigureEndpoint(ep uint8, typ EndpointType)

	// SetTxStatus sets the IN direction state of ep.
	SetTxStatus(ep uint8, status EndpointStatus)

	// SetRxStatus sets the OUT direction state of ep.
	SetRxStatus(ep uint8, status EndpointStatus)

	// TxStatus returns the IN direction state of ep.
	TxStatus(ep uint8) EndpointStatus

	// RxStatus returns the OUT direction state of ep.
	RxStatus(ep uint8) EndpointStatus

	// SetStatusOut marks the next OUT on a control endpoint as the
	// zero-length status stage.
	SetStatusOut(ep uint8, on bool)

	// IsSetup reports whether the last reception on ep was a SETUP.
	IsSetup(ep uint8) bool

	// Connect enables or disables the D+ pull-up.
	Connect(on bool)

	// EnableInterrupt routes the peripheral interrupt line to handler.
	// The handler is never entered concurrently with itself.
	EnableInterrupt(handler func())

	// DisableInterrupt detaches the interrupt handler.
	DisableInterrupt()
}

// Board is the board-level collaborator of the engine.
type Board interface {
	// SetClock gates the peripheral clock.
	SetClock(on bool)

	// SetSleepAllowed tells the power manager whether USB blocks deep sleep.
	SetSleepAllowed(allowed bool)

	// RemoteWake is a best-effort side-band wake notification. It is called
	// whenever a remote wake attempt starts.
	RemoteWake()
}

// NopBoard is a Board that does nothing.
type NopBoard struct{}

// SetClock implements Board.
func (NopBoard) SetClock(bool) {}

// SetSleepAllowed implements Board.
func (NopBoard) SetSleepAllowed(bool) {}

// RemoteWake implements Board.
func (NopBoard) RemoteWake() {}
