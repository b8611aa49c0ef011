package device

import (
	"time"

	"github.com/ardnew/pmausb/device/hal"
)

// Static sizing of the engine. The endpoint and interface tables are
// fixed-size arrays indexed by number.
const (
	// MaxPacketSize is the control endpoint maximum packet size.
	MaxPacketSize = 64

	// MaxEndpoints is the number of endpoint registers of the peripheral.
	MaxEndpoints = hal.MaxEndpoints

	// MaxInterfaces is the number of interface handler slots.
	MaxInterfaces = 8

	// MaxStrings is the maximum number of string descriptors.
	MaxStrings = 16

	// MaxSerialLength is the maximum serial number length in characters.
	MaxSerialLength = 28

	// DefaultMemorySize is the packet memory size assumed when the
	// peripheral does not report one.
	DefaultMemorySize = 512
)

// Remote wake timing, counted in bus frames (1 ms each).
const (
	// ResumeSignalFrames is the number of frames the resume signal is
	// driven for. Three frames keep the signal between 2 and 3 ms.
	ResumeSignalFrames = 3

	// ResumeTimeoutFrames bounds the wait for the bus to resume after the
	// resume signal is released.
	ResumeTimeoutFrames = 300

	// FrameInterval is the duration of one full-speed frame.
	FrameInterval = time.Millisecond
)

// noInterface is the Active Interface Slot value when no interface owns
// the next IN token.
const noInterface = -1
