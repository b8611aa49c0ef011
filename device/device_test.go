package device_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/pmausb/device"
	"github.com/ardnew/pmausb/device/hal"
	"github.com/ardnew/pmausb/device/hal/sim"
	"github.com/ardnew/pmausb/pkg"
)

func TestNew_Validation(t *testing.T) {
	desc, err := device.Build(testIdentity())
	require.NoError(t, err)

	_, err = device.New(nil, device.Config{Descriptors: desc})
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)

	_, err = device.New(sim.New(), device.Config{})
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)

	eps := make([]device.EndpointHandler, device.MaxEndpoints)
	for i := range eps {
		eps[i] = &eventRecorder{}
	}
	_, err = device.New(sim.New(), device.Config{Descriptors: desc, Endpoints: eps})
	assert.ErrorIs(t, err, pkg.ErrTooManyEndpoints)

	_, err = device.New(sim.New(), device.Config{
		Descriptors: desc,
		Endpoints:   []device.EndpointHandler{nil},
	})
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)

	_, err = device.New(sim.New(), device.Config{
		Descriptors: desc,
		Interfaces:  make([]device.InterfaceHandler, device.MaxInterfaces+1),
	})
	assert.ErrorIs(t, err, pkg.ErrTooManyInterfaces)

	// Seven endpoints of 2x64 bytes do not fit in 512 bytes.
	eps = eps[:device.MaxEndpoints-1]
	_, err = device.New(sim.New(), device.Config{Descriptors: desc, Endpoints: eps})
	assert.ErrorIs(t, err, pkg.ErrLayoutOverflow)
}

func TestDevice_Lifecycle(t *testing.T) {
	r := newRig(t, device.Config{})

	assert.True(t, r.dev.IsEnabled())
	assert.True(t, r.hw.Connected())
	clock, _, _ := r.board.state()
	assert.True(t, clock)

	// Init twice is harmless.
	require.NoError(t, r.dev.Init())

	r.dev.Release()
	assert.False(t, r.dev.IsEnabled())
	assert.False(t, r.hw.Connected())
	clock, sleep, _ := r.board.state()
	assert.False(t, clock)
	assert.True(t, sleep)
	assert.ErrorIs(t, r.dev.Connect(), pkg.ErrNotEnabled)

	// Tokens go unanswered while released.
	r.hw.BusReset()
	s := getDescriptor(device.DescriptorTypeDevice, 0, 18)
	assert.Equal(t, pkg.HandshakeNone, r.hw.Setup(0, s.Bytes()))

	require.NoError(t, r.dev.Init())
	d := r.enumerate(t)
	assert.Equal(t, "Console", d.Product())
}

func TestDevice_InhibitConnect(t *testing.T) {
	r := newRig(t, device.Config{InhibitConnect: true})
	assert.True(t, r.dev.IsEnabled())
	assert.False(t, r.hw.Connected())

	_, err := r.host.Enumerate(context.Background())
	assert.Error(t, err)

	require.NoError(t, r.dev.Connect())
	assert.True(t, r.hw.Connected())
	r.enumerate(t)

	r.dev.Disconnect()
	assert.False(t, r.hw.Connected())
}

func TestEnumerate(t *testing.T) {
	r := newRig(t, device.Config{})
	d := r.enumerate(t)

	assert.Equal(t, uint8(1), d.Address())
	assert.Equal(t, uint8(1), r.dev.Address())
	assert.Equal(t, uint16(0x1209), d.VendorID())
	assert.Equal(t, uint16(0x0001), d.ProductID())
	assert.Equal(t, uint16(device.USBVersionBOS), d.Descriptor().USBVersion)
	assert.Equal(t, uint8(device.MaxPacketSize), d.Descriptor().MaxPacketSize0)
	assert.Equal(t, "Acme", d.Manufacturer())
	assert.Equal(t, "Console", d.Product())
	assert.Equal(t, "0001", d.SerialNumber())
	assert.Equal(t, uint8(1), d.ConfigurationValue())

	cfg := d.Configuration()
	assert.Equal(t, uint16(len(r.desc.Configuration)), cfg.TotalLength)
	assert.Len(t, d.RawConfiguration(), len(r.desc.Configuration))
	assert.NotZero(t, cfg.Attributes&device.ConfigAttrRemoteWakeup)

	assert.Equal(t, r.desc.BOS, d.BOS())
	assert.Equal(t, testLandingPage, d.LandingPage())

	// Every handled cause was acknowledged.
	handled := uint16(hal.IstrCTR | hal.IstrReset | hal.IstrSusp | hal.IstrWkup)
	assert.Zero(t, r.hw.Status()&handled)
}

func TestEnumerate_WithoutBOS(t *testing.T) {
	id := testIdentity()
	id.LandingPage = ""
	desc, err := device.Build(id)
	require.NoError(t, err)

	r := newRig(t, device.Config{Descriptors: desc})
	d := r.enumerate(t)
	assert.Equal(t, uint16(device.USBVersion20), d.Descriptor().USBVersion)
	assert.Nil(t, d.BOS())
	assert.Empty(t, d.LandingPage())

	buf := make([]byte, 64)
	_, err = d.GetDescriptor(context.Background(), device.DescriptorTypeBOS, 0, 0, buf)
	assert.ErrorIs(t, err, pkg.ErrStall)
}

func TestBusReset(t *testing.T) {
	r := newRig(t, device.Config{})
	d := r.enumerate(t)
	require.NoError(t, d.SetFeature(context.Background(), device.FeatureDeviceRemoteWakeup))
	require.True(t, r.dev.RemoteWakeupEnabled())
	resets := r.ep1.count(device.EventReset)

	r.hw.BusReset()

	assert.Equal(t, uint8(0), r.dev.Address())
	assert.False(t, r.dev.RemoteWakeupEnabled())
	assert.Equal(t, resets+1, r.ep1.count(device.EventReset))
	assert.Equal(t, hal.StatusNAK, r.hw.TxStatus(1))
	assert.Equal(t, hal.StatusDisabled, r.hw.RxStatus(1))

	// The old address no longer answers; address 0 does.
	buf := make([]byte, device.DeviceDescriptorSize)
	_, err := r.control(1, getDescriptor(device.DescriptorTypeDevice, 0, uint16(len(buf))), buf)
	assert.Error(t, err)
	n, err := r.control(0, getDescriptor(device.DescriptorTypeDevice, 0, uint16(len(buf))), buf)
	require.NoError(t, err)
	assert.Equal(t, r.desc.Device, buf[:n])
}

func TestBusReset_WhileSuspended(t *testing.T) {
	r := newRig(t, device.Config{})
	r.enumerate(t)
	r.hw.BusSuspend()
	require.True(t, r.dev.IsSuspended())

	r.hw.BusReset()
	assert.False(t, r.dev.IsSuspended())
	assert.Zero(t, r.hw.Control()&(hal.CntrFSusp|hal.CntrLPMode))
	clock, sleep, _ := r.board.state()
	assert.True(t, clock)
	assert.False(t, sleep)

	buf := make([]byte, device.DeviceDescriptorSize)
	n, err := r.control(0, getDescriptor(device.DescriptorTypeDevice, 0, uint16(len(buf))), buf)
	require.NoError(t, err)
	assert.Equal(t, r.desc.Device, buf[:n])
}

func TestSerial(t *testing.T) {
	r := newRig(t, device.Config{
		Serial: func() (string, error) { return "SN-42", nil },
	})
	assert.Equal(t, "SN-42", r.dev.Serial())
	d := r.enumerate(t)
	assert.Equal(t, "SN-42", d.SerialNumber())

	require.NoError(t, r.dev.SetSerial("SN-43"))
	assert.Equal(t, "SN-43", r.dev.Serial())

	buf := make([]byte, 255)
	n, err := d.GetDescriptor(context.Background(), device.DescriptorTypeString,
		device.StringIndexSerial, device.LangIDUSEnglish, buf)
	require.NoError(t, err)
	s, err := device.DecodeString(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, "SN-43", s)

	err = r.dev.SetSerial("0123456789012345678901234567890")
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
	assert.Equal(t, "SN-43", r.dev.Serial())
}

func TestSerial_SourceFails(t *testing.T) {
	r := newRig(t, device.Config{
		Serial: func() (string, error) { return "", errors.New("no unique id") },
	})
	assert.Equal(t, "0001", r.dev.Serial())
}

func TestLayout(t *testing.T) {
	r := newRig(t, device.Config{})
	l := r.dev.Layout()
	require.Len(t, l.Endpoints, 2)
	assert.Equal(t, device.MaxPacketSize, l.Endpoints[0].Size)
	assert.LessOrEqual(t, l.End(), r.hw.MemorySize())
}
