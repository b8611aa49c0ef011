package sim

import (
	"sync"

	"github.com/ardnew/pmausb/device/hal"
	"github.com/ardnew/pmausb/device/pma"
	"github.com/ardnew/pmausb/pkg"
)

// DefaultMemorySize is the packet memory size of a new peripheral.
const DefaultMemorySize = 512

// maxServiceRounds bounds how often the interrupt is re-entered for
// causes raised while it was being serviced.
const maxServiceRounds = 16

// interruptMask selects the ISTR bits that have a CNTR mask bit at the
// same position.
const interruptMask = 0xFF00

type endpointRegister struct {
	typ       hal.EndpointType
	tx, rx    hal.EndpointStatus
	statusOut bool
	setup     bool
}

// Peripheral is a simulated device controller. Register methods are safe
// for concurrent use; interrupts are delivered one at a time.
type Peripheral struct {
	mu sync.Mutex

	mem       *pma.Memory
	tableBase int
	istr      uint16
	cntr      uint16
	daddr     uint8
	line      hal.LineState
	connected bool
	suspended bool
	eps       [hal.MaxEndpoints]endpointRegister

	// Bus response to a device remote wake.
	answerWake bool
	wakeLine   hal.LineState

	irq     sync.Mutex
	handler func()

	trace *Trace
}

// Option configures a Peripheral.
type Option func(*Peripheral)

// WithMemorySize sets the packet memory size in bytes.
func WithMemorySize(size int) Option {
	return func(p *Peripheral) { p.mem = pma.NewMemory(size) }
}

// WithTrace records every transaction into t.
func WithTrace(t *Trace) Option {
	return func(p *Peripheral) { p.trace = t }
}

// WithWakeResponse sets how the bus reacts when the device releases the
// resume signal: the line state it leaves behind, and whether the host
// resumes the bus.
func WithWakeResponse(line hal.LineState, answer bool) Option {
	return func(p *Peripheral) { p.wakeLine, p.answerWake = line, answer }
}

// New returns a powered-down peripheral with the bus idle.
func New(opts ...Option) *Peripheral {
	p := &Peripheral{
		mem:        pma.NewMemory(DefaultMemorySize),
		cntr:       hal.CntrFRES | hal.CntrPDWN,
		line:       hal.LineSE0,
		answerWake: true,
		wakeLine:   hal.LineJ,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetWakeResponse changes the bus reaction to a remote wake.
func (p *Peripheral) SetWakeResponse(line hal.LineState, answer bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wakeLine, p.answerWake = line, answer
}

// SetLineState forces the receiver line state.
func (p *Peripheral) SetLineState(s hal.LineState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.line = s
}

// Connected reports whether the pull-up is enabled.
func (p *Peripheral) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Trace returns the attached trace recorder, or nil.
func (p *Peripheral) Trace() *Trace {
	return p.trace
}

// Memory implements hal.Peripheral.
func (p *Peripheral) Memory() pma.WordAccessor { return p.mem }

// MemorySize implements hal.Peripheral.
func (p *Peripheral) MemorySize() int { return p.mem.Size() }

// SetTableBase implements hal.Peripheral.
func (p *Peripheral) SetTableBase(offset int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tableBase = offset
}

// Status implements hal.Peripheral.
func (p *Peripheral) Status() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.istr
}

// Acknowledge implements hal.Peripheral.
func (p *Peripheral) Acknowledge(mask uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.istr &^= mask
}

// Control implements hal.Peripheral.
func (p *Peripheral) Control() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cntr
}

// WriteControl implements hal.Peripheral.
func (p *Peripheral) WriteControl(value uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeControl(value)
}

// ModifyControl implements hal.Peripheral.
func (p *Peripheral) ModifyControl(set, clear uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeControl((p.cntr | set) &^ clear)
}

func (p *Peripheral) writeControl(value uint16) {
	old := p.cntr
	p.cntr = value

	if value&hal.CntrFRES != 0 {
		p.daddr = 0
		p.eps = [hal.MaxEndpoints]endpointRegister{}
	}

	switch {
	case old&hal.CntrResume == 0 && value&hal.CntrResume != 0:
		p.line = hal.LineK
		pkg.LogDebug(pkg.ComponentSim, "resume signal on")
	case old&hal.CntrResume != 0 && value&hal.CntrResume == 0:
		// Once the host has resumed or reset the bus it drives the line.
		if !p.suspended {
			break
		}
		p.line = p.wakeLine
		if p.answerWake {
			p.suspended = false
			p.istr |= hal.IstrWkup
		}
		pkg.LogDebug(pkg.ComponentSim, "resume signal off",
			"line", p.line,
			"answered", p.answerWake)
	}
}

// SetAddress implements hal.Peripheral.
func (p *Peripheral) SetAddress(address uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.daddr = address & 0x7F
}

// Address implements hal.Peripheral.
func (p *Peripheral) Address() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.daddr
}

// LineState implements hal.Peripheral.
func (p *Peripheral) LineState() hal.LineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.line
}

// ConfigureEndpoint implements hal.Peripheral.
func (p *Peripheral) ConfigureEndpoint(ep uint8, typ hal.EndpointType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eps[ep] = endpointRegister{typ: typ}
}

// SetTxStatus implements hal.Peripheral.
func (p *Peripheral) SetTxStatus(ep uint8, status hal.EndpointStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eps[ep].tx = status
}

// SetRxStatus implements hal.Peripheral.
func (p *Peripheral) SetRxStatus(ep uint8, status hal.EndpointStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eps[ep].rx = status
}

// TxStatus implements hal.Peripheral.
func (p *Peripheral) TxStatus(ep uint8) hal.EndpointStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eps[ep].tx
}

// RxStatus implements hal.Peripheral.
func (p *Peripheral) RxStatus(ep uint8) hal.EndpointStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eps[ep].rx
}

// SetStatusOut implements hal.Peripheral.
func (p *Peripheral) SetStatusOut(ep uint8, on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eps[ep].statusOut = on
}

// IsSetup implements hal.Peripheral.
func (p *Peripheral) IsSetup(ep uint8) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eps[ep].setup
}

// Connect implements hal.Peripheral.
func (p *Peripheral) Connect(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = on
	if on {
		p.line = hal.LineJ
	} else {
		p.line = hal.LineSE0
	}
	pkg.LogDebug(pkg.ComponentSim, "pull-up", "on", on)
}

// EnableInterrupt implements hal.Peripheral.
func (p *Peripheral) EnableInterrupt(handler func()) {
	p.irq.Lock()
	defer p.irq.Unlock()
	p.handler = handler
}

// DisableInterrupt implements hal.Peripheral.
func (p *Peripheral) DisableInterrupt() {
	p.irq.Lock()
	defer p.irq.Unlock()
	p.handler = nil
}

// raise sets status bits and services the interrupt.
func (p *Peripheral) raise(bits uint16) {
	p.mu.Lock()
	p.istr |= bits
	p.mu.Unlock()
	p.service()
}

// service runs the handler while an unmasked cause is pending. Causes
// raised by the handler itself are picked up by the next round.
func (p *Peripheral) service() {
	p.irq.Lock()
	defer p.irq.Unlock()

	for range maxServiceRounds {
		p.mu.Lock()
		pending := p.istr & p.cntr & interruptMask
		p.mu.Unlock()
		if pending == 0 || p.handler == nil {
			return
		}
		p.handler()
	}
	pkg.LogWarn(pkg.ComponentSim, "interrupt storm", "status", p.Status())
}

// table returns the buffer descriptor table as seen by the hardware.
func (p *Peripheral) table() *pma.Table {
	return pma.NewTable(p.mem, p.tableBase)
}

// active reports whether the function responds to tokens sent to addr.
// Callers hold mu.
func (p *Peripheral) active(addr uint8) bool {
	return p.connected &&
		p.cntr&(hal.CntrFRES|hal.CntrPDWN|hal.CntrFSusp) == 0 &&
		addr == p.daddr
}
