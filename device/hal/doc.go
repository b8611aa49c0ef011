// Package hal defines the hardware boundary of the control engine.
//
// [Peripheral] is a register-level view of a full-speed USB device
// controller with a dedicated, word-addressed packet memory: interrupt
// status and control registers, the device address register, per-endpoint
// status bits, the receiver line state and the packet memory itself. The
// register bit constants follow the common layout of such controllers.
//
// [Board] is the board-level collaborator: clock gating, the sleep mask and
// an optional side-band wake notification.
//
// A complete in-memory implementation for tests and the CLI is available
// in [github.com/ardnew/pmausb/device/hal/sim].
package hal
