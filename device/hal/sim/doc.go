// Package sim provides a simulated full-speed device controller.
//
// [Peripheral] implements [hal.Peripheral] on top of an in-memory packet
// memory and register file, and exposes the host side of the bus as
// token methods ([Peripheral.Setup], [Peripheral.In], [Peripheral.Out])
// and bus events ([Peripheral.BusReset], [Peripheral.BusSuspend],
// [Peripheral.BusResume], [Peripheral.Frame]). Every bus event raises the
// interrupt synchronously, so a token returns only after the device has
// serviced it.
//
// Transactions can be recorded into a [Trace] and written as CBOR.
package sim
