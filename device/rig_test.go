package device_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ardnew/pmausb/device"
	"github.com/ardnew/pmausb/device/hal"
	"github.com/ardnew/pmausb/device/hal/sim"
	"github.com/ardnew/pmausb/host"
)

const (
	testVendorCode  = 1
	testLandingPage = "https://example.com/console"
)

type fakeBoard struct {
	mu    sync.Mutex
	clock bool
	sleep bool
	wakes int
}

func (b *fakeBoard) SetClock(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clock = on
}

func (b *fakeBoard) SetSleepAllowed(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sleep = on
}

func (b *fakeBoard) RemoteWake() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wakes++
}

func (b *fakeBoard) state() (clock, sleep bool, wakes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clock, b.sleep, b.wakes
}

// eventRecorder is an interrupt endpoint that records bus events.
type eventRecorder struct {
	mu     sync.Mutex
	events []device.EndpointEvent
}

func (r *eventRecorder) Tx(*device.EndpointIO) {}

func (r *eventRecorder) Rx(ep *device.EndpointIO) { ep.Stall() }

func (r *eventRecorder) Event(ep *device.EndpointIO, evt device.EndpointEvent) {
	if evt == device.EventReset {
		ep.Configure(hal.EndpointInterrupt, hal.StatusNAK, hal.StatusDisabled)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) count(evt device.EndpointEvent) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == evt {
			n++
		}
	}
	return n
}

func testIdentity() device.Identity {
	return device.Identity{
		VendorID:      0x1209,
		ProductID:     0x0001,
		DeviceVersion: 0x0100,
		Manufacturer:  "Acme",
		Product:       "Console",
		Version:       "v1",
		Serial:        "0001",
		MaxPowerMA:    100,
		RemoteWakeup:  true,
		LandingPage:   testLandingPage,
		VendorCode:    testVendorCode,
	}
}

type rig struct {
	hw    *sim.Peripheral
	dev   *device.Device
	host  *host.Host
	board *fakeBoard
	ep1   *eventRecorder
	desc  *device.Descriptors
}

// newRig initializes a device on a simulated peripheral. Zero fields of
// cfg get the test identity, the fake board and one recording endpoint.
func newRig(t *testing.T, cfg device.Config, opts ...sim.Option) *rig {
	t.Helper()

	r := &rig{
		hw:    sim.New(opts...),
		board: &fakeBoard{},
		ep1:   &eventRecorder{},
	}
	if cfg.Descriptors == nil {
		desc, err := device.Build(testIdentity())
		require.NoError(t, err)
		cfg.Descriptors = desc
	}
	if cfg.Board == nil {
		cfg.Board = r.board
	}
	if cfg.Endpoints == nil {
		cfg.Endpoints = []device.EndpointHandler{r.ep1}
	}
	if cfg.Vendor == nil && cfg.Descriptors.BOS != nil {
		cfg.Vendor = []device.VendorRequest{device.WebUSBRequest(testVendorCode, testLandingPage)}
	}

	dev, err := device.New(r.hw, cfg)
	require.NoError(t, err)
	require.NoError(t, dev.Init())
	t.Cleanup(dev.Release)

	r.dev = dev
	r.desc = cfg.Descriptors
	r.host = host.New(r.hw)
	return r
}

func (r *rig) enumerate(t *testing.T) *host.Device {
	t.Helper()
	d, err := r.host.Enumerate(context.Background())
	require.NoError(t, err)
	return d
}

// control runs a control transfer at addr with 64-byte packets.
func (r *rig) control(addr uint8, setup *device.SetupPacket, data []byte) (int, error) {
	return r.host.ControlTransfer(context.Background(), addr, device.MaxPacketSize, setup, data)
}

func (r *rig) frames(n int) {
	for range n {
		r.hw.Frame()
	}
}

// suspendArmed enumerates, enables remote wakeup and suspends the bus.
func (r *rig) suspendArmed(t *testing.T) *host.Device {
	t.Helper()
	d := r.enumerate(t)
	require.NoError(t, d.SetFeature(context.Background(), device.FeatureDeviceRemoteWakeup))
	r.hw.BusSuspend()
	require.True(t, r.dev.IsSuspended())
	return d
}

func getDescriptor(descType, index uint8, length uint16) *device.SetupPacket {
	s := host.GetDescriptorRequest(descType, index, 0, length)
	return &s
}
