package device

// Result is the outcome of an interface handler invocation.
type Result int8

const (
	// ResultError stalls the control endpoint.
	ResultError Result = -1
	// ResultDone ends the handler's part in the transfer.
	ResultDone Result = 0
	// ResultContinue asks for another invocation on the next IN
	// completion or OUT data packet.
	ResultContinue Result = 1
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case ResultError:
		return "error"
	case ResultDone:
		return "done"
	case ResultContinue:
		return "continue"
	default:
		return "unknown"
	}
}

// InterfaceHandler handles control requests addressed to one interface.
//
// On a SETUP, HandleRequest receives the decoded packet and nil data.
// When it returns ResultContinue it is invoked again with a nil setup:
// after each IN completion, or with the payload of each OUT data packet.
// The setup of the transfer remains available from ep0.Setup.
type InterfaceHandler interface {
	HandleRequest(setup *SetupPacket, data []byte, ep0 *Control) Result
}

// InterfaceFunc adapts a function to InterfaceHandler.
type InterfaceFunc func(setup *SetupPacket, data []byte, ep0 *Control) Result

// HandleRequest implements InterfaceHandler.
func (f InterfaceFunc) HandleRequest(setup *SetupPacket, data []byte, ep0 *Control) Result {
	return f(setup, data, ep0)
}
