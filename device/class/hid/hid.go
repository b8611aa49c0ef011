package hid

import (
	"sync"

	"github.com/ardnew/pmausb/device"
	"github.com/ardnew/pmausb/device/hal"
	"github.com/ardnew/pmausb/pkg"
)

// MaxReportSize is the largest feature or output report accepted by
// SET_REPORT.
const MaxReportSize = 64

// DefaultInterval is the interrupt endpoint polling interval in frames.
const DefaultInterval = 10

// HID is a HID interface: the control requests of the interface and the
// reset handling of its interrupt IN endpoint. Register it both as an
// interface handler and as the handler of its endpoint.
type HID struct {
	number   uint8
	endpoint uint8
	subclass uint8
	proto    uint8
	interval uint8

	// Report descriptor (stored by reference)
	reportDescriptor []byte
	hidDescriptor    HIDDescriptor

	mutex    sync.RWMutex
	protocol uint8 // 0 = boot, 1 = report
	idleRate uint8 // Idle rate in 4ms units (0 = infinite)
	resets   int

	onOutputReport  func(data []byte)
	onFeatureReport func(reportID uint8, data []byte)
	onSetProtocol   func(protocol uint8)
	onSetIdle       func(rate uint8, reportID uint8)

	// Transfer state, owned by the interrupt handler.
	pending     []byte
	zlp         bool
	reportBuf   [MaxReportSize]byte
	reportLen   int
	responseBuf [device.MaxPacketSize]byte
}

// Option configures a HID.
type Option func(*HID)

// WithBoot marks the interface as a boot device with the given protocol.
func WithBoot(protocol uint8) Option {
	return func(h *HID) { h.subclass, h.proto = SubclassBoot, protocol }
}

// WithInterval sets the interrupt endpoint polling interval.
func WithInterval(frames uint8) Option {
	return func(h *HID) { h.interval = frames }
}

// New creates a HID interface with the given number, interrupt IN
// endpoint number and report descriptor. The report descriptor is stored
// by reference.
func New(number, endpoint uint8, reportDescriptor []byte, opts ...Option) *HID {
	h := &HID{
		number:           number,
		endpoint:         endpoint,
		interval:         DefaultInterval,
		reportDescriptor: reportDescriptor,
		hidDescriptor: HIDDescriptor{
			HIDVersion:    0x0111,
			CountryCode:   CountryNone,
			ReportDescLen: uint16(len(reportDescriptor)),
		},
		protocol: ProtocolReport,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Number returns the interface number.
func (h *HID) Number() uint8 {
	return h.number
}

// Endpoint returns the interrupt IN endpoint number.
func (h *HID) Endpoint() uint8 {
	return h.endpoint
}

// Descriptors returns the interface, HID and endpoint descriptors of the
// interface for the configuration blob.
func (h *HID) Descriptors(stringIndex uint8) []byte {
	buf := make([]byte, 0, device.InterfaceDescriptorSize+HIDDescriptorSize+device.EndpointDescriptorSize)
	iface := device.InterfaceDescriptor{
		InterfaceNumber:   h.number,
		NumEndpoints:      1,
		InterfaceClass:    device.ClassHID,
		InterfaceSubClass: h.subclass,
		InterfaceProtocol: h.proto,
		InterfaceIndex:    stringIndex,
	}
	buf = iface.Append(buf)
	buf = h.hidDescriptor.Append(buf)
	ep := device.EndpointDescriptor{
		EndpointAddress: h.endpoint | device.EndpointDirectionIn,
		Attributes:      device.EndpointTypeInterrupt,
		MaxPacketSize:   device.MaxPacketSize,
		Interval:        h.interval,
	}
	return ep.Append(buf)
}

// SetOnOutputReport sets the callback for output reports from the host.
func (h *HID) SetOnOutputReport(cb func(data []byte)) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.onOutputReport = cb
}

// SetOnFeatureReport sets the callback for feature reports from the host.
func (h *HID) SetOnFeatureReport(cb func(reportID uint8, data []byte)) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.onFeatureReport = cb
}

// SetOnSetProtocol sets the callback for protocol changes.
func (h *HID) SetOnSetProtocol(cb func(protocol uint8)) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.onSetProtocol = cb
}

// SetOnSetIdle sets the callback for idle rate changes.
func (h *HID) SetOnSetIdle(cb func(rate uint8, reportID uint8)) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.onSetIdle = cb
}

// Protocol returns the current protocol (boot or report).
func (h *HID) Protocol() uint8 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.protocol
}

// IdleRate returns the current idle rate.
func (h *HID) IdleRate() uint8 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.idleRate
}

// Resets returns how many bus resets the endpoint has seen.
func (h *HID) Resets() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.resets
}

// ReportDescriptor returns the report descriptor.
func (h *HID) ReportDescriptor() []byte {
	return h.reportDescriptor
}

// HandleRequest implements device.InterfaceHandler.
func (h *HID) HandleRequest(setup *device.SetupPacket, data []byte, ep0 *device.Control) device.Result {
	if setup == nil {
		if !ep0.Setup().In() {
			return h.receiveReport(data, ep0)
		}
		return h.sendPending(ep0)
	}

	h.pending = nil
	h.reportLen = 0

	if setup.Kind() == device.RequestTypeStandard && setup.In() &&
		setup.Request == device.RequestGetDescriptor {
		return h.handleGetDescriptor(setup, ep0)
	}
	if setup.Kind() != device.RequestTypeClass {
		return device.ResultError
	}

	switch setup.Request {
	case RequestSetReport:
		return h.handleSetReport(setup, ep0)
	case RequestGetIdle:
		return h.reply(ep0, h.IdleRate())
	case RequestSetIdle:
		return h.handleSetIdle(setup, ep0)
	case RequestGetProtocol:
		return h.reply(ep0, h.Protocol())
	case RequestSetProtocol:
		return h.handleSetProtocol(setup, ep0)
	default:
		pkg.LogDebug(pkg.ComponentClass, "HID request unsupported",
			"request", setup.Request)
		return device.ResultError
	}
}

// handleGetDescriptor serves the HID and report descriptors. The report
// descriptor is streamed across IN packets when it exceeds one packet.
func (h *HID) handleGetDescriptor(setup *device.SetupPacket, ep0 *device.Control) device.Result {
	typ, _ := setup.Descriptor()
	switch typ {
	case DescriptorTypeHID:
		desc := h.hidDescriptor.Append(h.responseBuf[:0])
		h.pending = desc[:min(len(desc), int(setup.Length))]
	case DescriptorTypeReport:
		h.pending = h.reportDescriptor[:min(len(h.reportDescriptor), int(setup.Length))]
	default:
		return device.ResultError
	}
	h.zlp = len(h.pending) < int(setup.Length)
	return h.sendPending(ep0)
}

// sendPending sends the next packet of the pending reply. A short reply
// ending on a packet boundary is closed with a zero-length packet.
func (h *HID) sendPending(ep0 *device.Control) device.Result {
	size := ep0.MaxPacketSize()
	n := min(len(h.pending), size)
	last := len(h.pending) < size || (len(h.pending) == size && !h.zlp)
	ep0.Send(h.pending[:n], last)
	h.pending = h.pending[n:]
	if last {
		h.pending = nil
		return device.ResultDone
	}
	return device.ResultContinue
}

func (h *HID) reply(ep0 *device.Control, b uint8) device.Result {
	if ep0.Setup().Length == 0 {
		ep0.Send(nil, true)
		return device.ResultDone
	}
	h.responseBuf[0] = b
	ep0.Send(h.responseBuf[:1], true)
	return device.ResultDone
}

// handleSetReport waits for the report in the data stage.
func (h *HID) handleSetReport(setup *device.SetupPacket, ep0 *device.Control) device.Result {
	if setup.Length == 0 {
		h.dispatchReport(setup, nil)
		ep0.Ack()
		return device.ResultDone
	}
	if int(setup.Length) > MaxReportSize {
		return device.ResultError
	}
	return device.ResultContinue
}

// receiveReport accumulates SET_REPORT data and acknowledges once the
// whole report has arrived.
func (h *HID) receiveReport(data []byte, ep0 *device.Control) device.Result {
	setup := ep0.Setup()
	if h.reportLen+len(data) > int(setup.Length) {
		return device.ResultError
	}
	h.reportLen += copy(h.reportBuf[h.reportLen:], data)
	if h.reportLen < int(setup.Length) {
		return device.ResultContinue
	}
	h.dispatchReport(setup, h.reportBuf[:h.reportLen])
	ep0.Ack()
	return device.ResultDone
}

func (h *HID) dispatchReport(setup *device.SetupPacket, data []byte) {
	reportType := uint8(setup.Value >> 8)
	reportID := uint8(setup.Value & 0xFF)

	pkg.LogDebug(pkg.ComponentClass, "SET_REPORT",
		"type", reportType,
		"id", reportID,
		"len", len(data))

	h.mutex.RLock()
	outputCb := h.onOutputReport
	featureCb := h.onFeatureReport
	h.mutex.RUnlock()

	switch reportType {
	case ReportTypeOutput:
		if outputCb != nil {
			outputCb(data)
		}
	case ReportTypeFeature:
		if featureCb != nil {
			featureCb(reportID, data)
		}
	}
}

// handleSetIdle handles SET_IDLE request.
func (h *HID) handleSetIdle(setup *device.SetupPacket, ep0 *device.Control) device.Result {
	rate := uint8(setup.Value >> 8)
	reportID := uint8(setup.Value & 0xFF)

	h.mutex.Lock()
	h.idleRate = rate
	cb := h.onSetIdle
	h.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentClass, "SET_IDLE",
		"rate", rate,
		"reportID", reportID)

	if cb != nil {
		cb(rate, reportID)
	}
	ep0.Ack()
	return device.ResultDone
}

// handleSetProtocol handles SET_PROTOCOL request.
func (h *HID) handleSetProtocol(setup *device.SetupPacket, ep0 *device.Control) device.Result {
	protocol := uint8(setup.Value & 0xFF)
	if protocol > ProtocolReport {
		return device.ResultError
	}

	h.mutex.Lock()
	h.protocol = protocol
	cb := h.onSetProtocol
	h.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentClass, "SET_PROTOCOL",
		"protocol", protocol)

	if cb != nil {
		cb(protocol)
	}
	ep0.Ack()
	return device.ResultDone
}

// Tx implements device.EndpointHandler.
func (h *HID) Tx(ep *device.EndpointIO) {
	pkg.LogDebug(pkg.ComponentClass, "HID report sent", "ep", ep.Number())
}

// Rx implements device.EndpointHandler. The endpoint is IN only.
func (h *HID) Rx(ep *device.EndpointIO) {
	ep.Stall()
}

// Event implements device.EndpointHandler. A bus reset returns the
// endpoint to report protocol with nothing to send.
func (h *HID) Event(ep *device.EndpointIO, evt device.EndpointEvent) {
	switch evt {
	case device.EventReset:
		ep.Configure(hal.EndpointInterrupt, hal.StatusNAK, hal.StatusDisabled)
		h.mutex.Lock()
		h.protocol = ProtocolReport
		h.idleRate = 0
		h.resets++
		h.mutex.Unlock()
	case device.EventDeviceResume:
		pkg.LogDebug(pkg.ComponentClass, "HID resumed", "interface", h.number)
	}
}

var (
	_ device.InterfaceHandler = (*HID)(nil)
	_ device.EndpointHandler  = (*HID)(nil)
)
