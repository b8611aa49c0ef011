// Package device implements the control-transfer engine of a full-speed
// USB device controller with dedicated packet memory.
//
// The engine is driven entirely by [Device.Interrupt], which the
// peripheral invokes serially for every bus event. Hardware access goes
// through the [hal.Peripheral] register interface; packet memory is
// reached through the [github.com/ardnew/pmausb/device/pma] package.
//
// # Architecture
//
//   - [Device] owns the endpoint table, the control transfer state and
//     the power state. Bus reset reinitializes all of it at once.
//   - The request router sends interface-recipient requests to an
//     [InterfaceHandler], vendor requests to the [VendorRequest] table and
//     the rest to the standard request handlers.
//   - Descriptors longer than one packet are streamed one packet per IN
//     token. The configuration wTotalLength is injected as it is sent.
//   - [EndpointHandler] values service endpoints 1 and up; endpoint 0 is
//     built in.
//
// # Concurrency
//
// Control transfer state is owned by the interrupt handler. Building with
// the usbdebug tag makes the engine panic if that state is reached from
// anywhere else. [Device.Wake], [Device.IsSuspended] and
// [Device.SetSerial] are safe from any goroutine.
//
// # Remote Wake
//
// [Device.Wake] drives the resume signal for three frames, then waits up
// to 300 frames for the host to resume the bus. On success every endpoint
// handler receives [EventDeviceResume]; on failure the device suspends
// again.
//
// # Example
//
//	desc, _ := device.Build(device.Identity{
//	    VendorID:     0x18D1,
//	    ProductID:    0x5022,
//	    Manufacturer: "Example",
//	    Product:      "Widget",
//	})
//	dev, err := device.New(peripheral, device.Config{Descriptors: desc})
//	if err != nil {
//	    return err
//	}
//	dev.Init()
//
// A simulated peripheral is available in
// [github.com/ardnew/pmausb/device/hal/sim].
package device
