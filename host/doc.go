// Package host drives control transfers against a single full-speed
// function, as a root port would.
//
// A [Host] speaks to the function through the [Bus] token interface,
// which the simulated peripheral in
// [github.com/ardnew/pmausb/device/hal/sim] implements. [Host.Enumerate]
// runs the usual enumeration sequence and returns a [Device] holding the
// descriptors read along the way.
//
// # Example
//
//	bus := sim.New()
//	// ... create and Init a device on bus ...
//	h := host.New(bus)
//	dev, err := h.Enumerate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(dev.Product(), dev.SerialNumber())
package host
