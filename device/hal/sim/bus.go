package sim

import (
	"github.com/ardnew/pmausb/device/hal"
	"github.com/ardnew/pmausb/device/pma"
	"github.com/ardnew/pmausb/pkg"
)

// Setup sends a SETUP token and its 8-byte data packet to endpoint 0 of
// the function at addr. A SETUP is accepted even when the endpoint is
// stalled.
func (p *Peripheral) Setup(addr uint8, packet [8]byte) pkg.Handshake {
	return p.SetupRaw(addr, packet[:])
}

// SetupRaw sends a SETUP token with an arbitrary data packet, such as a
// truncated one.
func (p *Peripheral) SetupRaw(addr uint8, packet []byte) pkg.Handshake {
	if len(packet) > 8 {
		packet = packet[:8]
	}
	p.mu.Lock()
	r := &p.eps[0]
	if !p.active(addr) || r.typ != hal.EndpointControl || r.rx == hal.StatusDisabled {
		p.mu.Unlock()
		p.record(KindSetup, addr, 0, packet, pkg.HandshakeNone)
		return pkg.HandshakeNone
	}
	t := p.table()
	pma.CopyTo(p.mem, t.RxAddr(0), packet)
	t.SetRxCount(0, len(packet))
	r.setup = true
	r.statusOut = false
	r.tx = hal.StatusNAK
	r.rx = hal.StatusNAK
	p.mu.Unlock()

	p.record(KindSetup, addr, 0, packet, pkg.HandshakeACK)
	p.raise(hal.IstrCTR | hal.IstrDir)
	return pkg.HandshakeACK
}

// In sends an IN token and returns the data packet and handshake.
func (p *Peripheral) In(addr, ep uint8) ([]byte, pkg.Handshake) {
	p.mu.Lock()
	if int(ep) >= hal.MaxEndpoints || !p.active(addr) {
		p.mu.Unlock()
		p.record(KindIn, addr, ep, nil, pkg.HandshakeNone)
		return nil, pkg.HandshakeNone
	}
	r := &p.eps[ep]
	var data []byte
	hs := handshakeFor(r.tx)
	if hs == pkg.HandshakeACK {
		t := p.table()
		data = make([]byte, t.TxCount(int(ep)))
		pma.CopyFrom(data, p.mem, t.TxAddr(int(ep)))
		r.tx = hal.StatusNAK
	}
	p.mu.Unlock()

	p.record(KindIn, addr, ep, data, hs)
	if hs == pkg.HandshakeACK {
		p.raise(hal.IstrCTR | uint16(ep))
	}
	return data, hs
}

// Out sends an OUT token followed by data. A control endpoint expecting
// the status stage stalls a non-empty packet.
func (p *Peripheral) Out(addr, ep uint8, data []byte) pkg.Handshake {
	p.mu.Lock()
	if int(ep) >= hal.MaxEndpoints || !p.active(addr) {
		p.mu.Unlock()
		p.record(KindOut, addr, ep, data, pkg.HandshakeNone)
		return pkg.HandshakeNone
	}
	r := &p.eps[ep]
	hs := handshakeFor(r.rx)
	t := p.table()
	switch {
	case hs != pkg.HandshakeACK:
	case r.statusOut && len(data) != 0:
		hs = pkg.HandshakeStall
	case len(data) > t.RxCapacity(int(ep)):
		hs = pkg.HandshakeNone
	default:
		pma.CopyTo(p.mem, t.RxAddr(int(ep)), data)
		t.SetRxCount(int(ep), len(data))
		r.setup = false
		r.rx = hal.StatusNAK
	}
	p.mu.Unlock()

	p.record(KindOut, addr, ep, data, hs)
	if hs == pkg.HandshakeACK {
		p.raise(hal.IstrCTR | hal.IstrDir | uint16(ep))
	}
	return hs
}

func handshakeFor(s hal.EndpointStatus) pkg.Handshake {
	switch s {
	case hal.StatusValid:
		return pkg.HandshakeACK
	case hal.StatusNAK:
		return pkg.HandshakeNAK
	case hal.StatusStall:
		return pkg.HandshakeStall
	default:
		return pkg.HandshakeNone
	}
}

// BusReset drives a bus reset. The function returns to address 0 with
// every endpoint disabled. Reset signalling on a suspended bus is also
// wakeup activity.
func (p *Peripheral) BusReset() {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return
	}
	bits := uint16(hal.IstrReset)
	if p.suspended {
		bits |= hal.IstrWkup
	}
	p.daddr = 0
	p.eps = [hal.MaxEndpoints]endpointRegister{}
	p.suspended = false
	p.line = hal.LineJ
	p.mu.Unlock()

	p.record(KindReset, 0, 0, nil, pkg.HandshakeNone)
	p.raise(bits)
}

// BusSuspend stops bus traffic, causing a suspend interrupt.
func (p *Peripheral) BusSuspend() {
	p.mu.Lock()
	p.suspended = true
	p.line = hal.LineJ
	p.mu.Unlock()

	p.record(KindSuspend, 0, 0, nil, pkg.HandshakeNone)
	p.raise(hal.IstrSusp)
}

// BusResume drives a host-initiated resume.
func (p *Peripheral) BusResume() {
	p.mu.Lock()
	p.suspended = false
	p.line = hal.LineJ
	p.mu.Unlock()

	p.record(KindResume, 0, 0, nil, pkg.HandshakeNone)
	p.raise(hal.IstrWkup)
}

// Frame advances the bus by one millisecond frame. A suspended bus misses
// its start of frame, raising ESOF.
func (p *Peripheral) Frame() {
	p.mu.Lock()
	bit := uint16(hal.IstrSOF)
	if p.suspended {
		bit = hal.IstrESOF
	}
	p.mu.Unlock()
	p.raise(bit)
}

// Suspended reports whether the bus is suspended.
func (p *Peripheral) Suspended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suspended
}
