package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ardnew/pmausb/device"
	"github.com/ardnew/pmausb/pkg"
)

// Bus is the host side of a full-speed bus with a single function
// attached. Each token method returns after the function responded.
type Bus interface {
	Setup(addr uint8, packet [device.SetupPacketSize]byte) pkg.Handshake
	In(addr, ep uint8) ([]byte, pkg.Handshake)
	Out(addr, ep uint8, data []byte) pkg.Handshake
	BusReset()
}

// Host limits.
const (
	// DefaultNAKLimit is how many consecutive NAKs a transaction tolerates.
	DefaultNAKLimit = 64

	// MaxDescriptorSize bounds descriptor reads.
	MaxDescriptorSize = 1024

	// MaxAddress is the highest assignable function address.
	MaxAddress = 127

	// defaultMaxPacket0 is the control packet size assumed before the
	// device descriptor has been read.
	defaultMaxPacket0 = 8
)

// ErrNoResponse is returned when the function does not answer a token.
var ErrNoResponse = errors.New("no response")

// Host drives control transfers over a Bus.
type Host struct {
	bus      Bus
	nakLimit int

	nextAddress uint8
	mutex       sync.Mutex
}

// Option configures a Host.
type Option func(*Host)

// WithNAKLimit sets how many NAKs a transaction tolerates before failing.
func WithNAKLimit(n int) Option {
	return func(h *Host) { h.nakLimit = n }
}

// New creates a host driving bus.
func New(bus Bus, opts ...Option) *Host {
	h := &Host{
		bus:         bus,
		nakLimit:    DefaultNAKLimit,
		nextAddress: 1,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ControlTransfer performs a control transfer with the function at addr.
// For IN requests data receives at most setup.Length bytes; for OUT
// requests the first setup.Length bytes of data are sent. Returns the
// number of data bytes transferred.
func (h *Host) ControlTransfer(ctx context.Context, addr uint8, maxPacket int,
	setup *device.SetupPacket, data []byte) (int, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if maxPacket <= 0 {
		maxPacket = defaultMaxPacket0
	}

	if hs := h.bus.Setup(addr, setup.Bytes()); hs != pkg.HandshakeACK {
		return 0, fmt.Errorf("setup stage: %w", handshakeError(hs))
	}

	want := min(int(setup.Length), len(data))

	if setup.In() {
		n := 0
		for {
			chunk, err := h.in(ctx, addr, 0)
			if err != nil {
				return n, fmt.Errorf("data stage: %w", err)
			}
			n += copy(data[n:want], chunk)
			if len(chunk) < maxPacket || n >= want {
				break
			}
		}
		if err := h.out(ctx, addr, 0, nil); err != nil {
			return n, fmt.Errorf("status stage: %w", err)
		}
		pkg.LogDebug(pkg.ComponentHost, "control in",
			"addr", addr,
			"request", setup.Request,
			"len", n)
		return n, nil
	}

	sent := 0
	for sent < want {
		k := min(maxPacket, want-sent)
		if err := h.out(ctx, addr, 0, data[sent:sent+k]); err != nil {
			return sent, fmt.Errorf("data stage: %w", err)
		}
		sent += k
	}
	status, err := h.in(ctx, addr, 0)
	if err != nil {
		return sent, fmt.Errorf("status stage: %w", err)
	}
	if len(status) != 0 {
		return sent, fmt.Errorf("status stage: %w: %d byte packet", pkg.ErrProtocol, len(status))
	}
	pkg.LogDebug(pkg.ComponentHost, "control out",
		"addr", addr,
		"request", setup.Request,
		"len", sent)
	return sent, nil
}

// in issues IN tokens until the endpoint answers with data or a stall.
func (h *Host) in(ctx context.Context, addr, ep uint8) ([]byte, error) {
	for range h.nakLimit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, hs := h.bus.In(addr, ep)
		if hs != pkg.HandshakeNAK {
			return data, handshakeError(hs)
		}
	}
	return nil, pkg.ErrNAK
}

// out issues OUT tokens until the endpoint accepts data or stalls.
func (h *Host) out(ctx context.Context, addr, ep uint8, data []byte) error {
	for range h.nakLimit {
		if err := ctx.Err(); err != nil {
			return err
		}
		if hs := h.bus.Out(addr, ep, data); hs != pkg.HandshakeNAK {
			return handshakeError(hs)
		}
	}
	return pkg.ErrNAK
}

func handshakeError(hs pkg.Handshake) error {
	if hs == pkg.HandshakeNone {
		return ErrNoResponse
	}
	return hs.Err()
}

// allocateAddress returns the next function address, wrapping at 127.
func (h *Host) allocateAddress() uint8 {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	addr := h.nextAddress
	h.nextAddress++
	if h.nextAddress > MaxAddress {
		h.nextAddress = 1
	}
	return addr
}
