// Package pkg provides shared utilities for the pmausb control engine.
//
// This package contains common functionality used by the device engine,
// the simulated peripheral and the test host, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for USB protocol and engine errors
//   - Component identifiers for log filtering
//   - Bus handshake codes shared by the simulator and the host
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogDebug(pkg.ComponentControl, "address applied", "address", 5)
//
// # Errors
//
// Request handlers report failures with sentinel values; the control
// endpoint turns every one of them into a STALL:
//
//	if errors.Is(err, pkg.ErrStall) {
//	    // host saw a STALL handshake
//	}
package pkg
