package pkg

import "errors"

// USB protocol errors.
var (
	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrNAK indicates a NAK response (endpoint not ready).
	ErrNAK = errors.New("NAK received")

	// ErrProtocol indicates a protocol error.
	ErrProtocol = errors.New("protocol error")

	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrInvalidDescriptorIndex indicates a descriptor index outside the table.
	ErrInvalidDescriptorIndex = errors.New("invalid descriptor index")

	// ErrInterfaceHandler indicates an interface handler rejected a request.
	ErrInterfaceHandler = errors.New("interface handler error")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrDescriptorTooShort indicates the descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates the descriptor type does not match expected.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")
)

// Engine errors.
var (
	// ErrWakeTimeout indicates the bus did not resume after remote wake signalling.
	ErrWakeTimeout = errors.New("remote wake timeout")

	// ErrLayoutOverflow indicates the endpoint buffers do not fit in packet memory.
	ErrLayoutOverflow = errors.New("packet memory layout overflow")

	// ErrTooManyInterfaces indicates more interface handlers than table slots.
	ErrTooManyInterfaces = errors.New("too many interfaces")

	// ErrTooManyEndpoints indicates more endpoints than the peripheral supports.
	ErrTooManyEndpoints = errors.New("too many endpoints")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotEnabled indicates the peripheral has been released.
	ErrNotEnabled = errors.New("usb not enabled")

	// ErrReset indicates a bus reset was received.
	ErrReset = errors.New("bus reset")
)

// Handshake is the response a function returns to a token on the bus.
type Handshake int

// Handshake values.
const (
	HandshakeACK   Handshake = iota // Transaction accepted
	HandshakeNAK                    // Endpoint not ready
	HandshakeStall                  // Endpoint halted or request rejected
	HandshakeNone                   // No response (endpoint disabled)
)

// String returns a string representation of the handshake.
func (h Handshake) String() string {
	switch h {
	case HandshakeACK:
		return "ack"
	case HandshakeNAK:
		return "nak"
	case HandshakeStall:
		return "stall"
	case HandshakeNone:
		return "none"
	default:
		return "unknown"
	}
}

// Err returns the error corresponding to the handshake, or nil for ACK.
func (h Handshake) Err() error {
	switch h {
	case HandshakeACK:
		return nil
	case HandshakeNAK:
		return ErrNAK
	case HandshakeStall:
		return ErrStall
	default:
		return ErrProtocol
	}
}
