package device_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/pmausb/device"
	"github.com/ardnew/pmausb/device/hal"
	"github.com/ardnew/pmausb/device/hal/sim"
)

func TestSuspendResume(t *testing.T) {
	r := newRig(t, device.Config{})
	r.enumerate(t)
	assert.False(t, r.dev.IsSuspended())

	r.hw.BusSuspend()
	assert.True(t, r.dev.IsSuspended())
	assert.NotZero(t, r.hw.Control()&hal.CntrFSusp)
	assert.NotZero(t, r.hw.Control()&hal.CntrLPMode)
	clock, sleep, _ := r.board.state()
	assert.False(t, clock)
	assert.True(t, sleep)

	r.hw.BusResume()
	assert.False(t, r.dev.IsSuspended())
	assert.Zero(t, r.hw.Control()&(hal.CntrFSusp|hal.CntrLPMode))
	clock, sleep, _ = r.board.state()
	assert.True(t, clock)
	assert.False(t, sleep)

	// Missed frames outside a wake are masked.
	r.hw.BusSuspend()
	r.frames(5)
	assert.Zero(t, r.hw.Control()&hal.CntrESOFM)
	assert.Zero(t, r.ep1.count(device.EventDeviceResume))
}

func TestWake(t *testing.T) {
	r := newRig(t, device.Config{})
	r.suspendArmed(t)

	r.dev.Wake()
	_, _, wakes := r.board.state()
	assert.Equal(t, 1, wakes)
	assert.NotZero(t, r.hw.Control()&hal.CntrResume)
	assert.Equal(t, hal.LineK, r.hw.LineState())

	for i := range device.ResumeSignalFrames - 1 {
		r.hw.Frame()
		assert.True(t, r.dev.IsSuspended(), "frame %d", i)
		assert.NotZero(t, r.hw.Control()&hal.CntrResume, "frame %d", i)
	}

	r.hw.Frame()
	assert.Zero(t, r.hw.Control()&(hal.CntrResume|hal.CntrESOFM))
	assert.False(t, r.dev.IsSuspended())
	assert.False(t, r.hw.Suspended())
	assert.Equal(t, 1, r.ep1.count(device.EventDeviceResume))

	// The bus is usable again.
	buf := make([]byte, device.DeviceDescriptorSize)
	_, err := r.control(1, getDescriptor(device.DescriptorTypeDevice, 0, uint16(len(buf))), buf)
	assert.NoError(t, err)
}

func TestWake_SE1(t *testing.T) {
	r := newRig(t, device.Config{}, sim.WithWakeResponse(hal.LineSE1, false))
	r.suspendArmed(t)

	r.dev.Wake()
	r.frames(device.ResumeSignalFrames)

	assert.True(t, r.dev.IsSuspended())
	assert.NotZero(t, r.hw.Control()&hal.CntrFSusp)
	assert.Zero(t, r.hw.Control()&hal.CntrESOFM)
	assert.Zero(t, r.ep1.count(device.EventDeviceResume))
	_, sleep, _ := r.board.state()
	assert.True(t, sleep)

	// A failed attempt may be retried.
	r.dev.Wake()
	_, _, wakes := r.board.state()
	assert.Equal(t, 2, wakes)
}

func TestWake_Timeout(t *testing.T) {
	r := newRig(t, device.Config{}, sim.WithWakeResponse(hal.LineK, false))
	r.suspendArmed(t)

	r.dev.Wake()
	r.frames(device.ResumeSignalFrames + device.ResumeTimeoutFrames - 1)

	// Still waiting: another Wake does not start a second attempt.
	r.dev.Wake()
	_, _, wakes := r.board.state()
	assert.Equal(t, 1, wakes)
	assert.NotZero(t, r.hw.Control()&hal.CntrESOFM)

	r.hw.Frame()
	assert.Zero(t, r.hw.Control()&hal.CntrESOFM)
	assert.True(t, r.dev.IsSuspended())
	assert.Zero(t, r.ep1.count(device.EventDeviceResume))

	r.dev.Wake()
	_, _, wakes = r.board.state()
	assert.Equal(t, 2, wakes)
}

func TestWake_LateAnswer(t *testing.T) {
	r := newRig(t, device.Config{}, sim.WithWakeResponse(hal.LineK, false))
	r.suspendArmed(t)

	r.dev.Wake()
	r.frames(device.ResumeSignalFrames + 10)
	assert.True(t, r.dev.IsSuspended())

	// The host drives J before the timeout.
	r.hw.SetLineState(hal.LineJ)
	r.hw.Frame()
	assert.Equal(t, 1, r.ep1.count(device.EventDeviceResume))
	assert.Zero(t, r.hw.Control()&hal.CntrESOFM)
}

func TestWake_NoHostAnswer(t *testing.T) {
	r := newRig(t, device.Config{}, sim.WithWakeResponse(hal.LineJ, false))
	r.suspendArmed(t)

	r.dev.Wake()
	r.frames(device.ResumeSignalFrames)

	// The line reads J, so the device resumes on its own.
	assert.False(t, r.dev.IsSuspended())
	assert.Zero(t, r.hw.Control()&(hal.CntrFSusp|hal.CntrLPMode|hal.CntrResume|hal.CntrESOFM))
	clock, sleep, _ := r.board.state()
	assert.True(t, clock)
	assert.False(t, sleep)
	assert.Equal(t, 1, r.ep1.count(device.EventDeviceResume))
}

func TestWake_Preempted(t *testing.T) {
	tests := []struct {
		name string
		bus  func(*sim.Peripheral)
	}{
		{"host resume", (*sim.Peripheral).BusResume},
		{"bus reset", (*sim.Peripheral).BusReset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, device.Config{}, sim.WithWakeResponse(hal.LineK, false))
			r.suspendArmed(t)

			r.dev.Wake()
			r.hw.Frame()
			require.NotZero(t, r.hw.Control()&hal.CntrResume)

			tt.bus(r.hw)
			assert.False(t, r.dev.IsSuspended())
			assert.Zero(t, r.hw.Control()&(hal.CntrFSusp|hal.CntrResume|hal.CntrESOFM))
			assert.Equal(t, hal.LineJ, r.hw.LineState())

			r.frames(device.ResumeSignalFrames + device.ResumeTimeoutFrames + 10)
			assert.False(t, r.dev.IsSuspended())
			assert.Zero(t, r.ep1.count(device.EventDeviceResume))

			// Later attempts run normally.
			r.enumerate(t)
			r.suspendArmed(t)
			r.hw.SetWakeResponse(hal.LineJ, true)
			r.dev.Wake()
			_, _, wakes := r.board.state()
			assert.Equal(t, 2, wakes)
			r.frames(device.ResumeSignalFrames)
			assert.False(t, r.dev.IsSuspended())
			assert.Equal(t, 1, r.ep1.count(device.EventDeviceResume))
		})
	}
}

func TestWake_CountdownRearmed(t *testing.T) {
	r := newRig(t, device.Config{}, sim.WithWakeResponse(hal.LineK, false))
	r.suspendArmed(t)

	r.dev.Wake()
	r.frames(device.ResumeSignalFrames + device.ResumeTimeoutFrames)
	require.Zero(t, r.hw.Control()&hal.CntrESOFM)

	// Missed frames between attempts are not counted.
	r.frames(5)

	r.hw.SetWakeResponse(hal.LineJ, true)
	r.dev.Wake()
	r.frames(device.ResumeSignalFrames - 1)
	assert.True(t, r.dev.IsSuspended())
	assert.NotZero(t, r.hw.Control()&hal.CntrResume)

	r.hw.Frame()
	assert.False(t, r.dev.IsSuspended())
	assert.Zero(t, r.hw.Control()&(hal.CntrResume|hal.CntrESOFM))
	assert.Equal(t, 1, r.ep1.count(device.EventDeviceResume))
}

func TestWake_Ignored(t *testing.T) {
	t.Run("remote wakeup disabled", func(t *testing.T) {
		r := newRig(t, device.Config{})
		r.enumerate(t)
		r.hw.BusSuspend()
		r.dev.Wake()
		_, _, wakes := r.board.state()
		assert.Zero(t, wakes)
		assert.Zero(t, r.hw.Control()&hal.CntrResume)
	})

	t.Run("bus not suspended", func(t *testing.T) {
		r := newRig(t, device.Config{})
		d := r.enumerate(t)
		require.NoError(t, d.SetFeature(context.Background(), device.FeatureDeviceRemoteWakeup))
		r.dev.Wake()
		_, _, wakes := r.board.state()
		assert.Zero(t, wakes)
		assert.False(t, r.dev.IsSuspended())
	})

	t.Run("cleared by bus reset", func(t *testing.T) {
		r := newRig(t, device.Config{})
		d := r.enumerate(t)
		require.NoError(t, d.SetFeature(context.Background(), device.FeatureDeviceRemoteWakeup))
		r.hw.BusReset()
		r.hw.BusSuspend()
		r.dev.Wake()
		_, _, wakes := r.board.state()
		assert.Zero(t, wakes)
	})
}

func TestWake_Concurrent(t *testing.T) {
	r := newRig(t, device.Config{})
	r.suspendArmed(t)

	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			r.dev.Wake()
			_ = r.dev.IsSuspended()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	_, _, wakes := r.board.state()
	assert.Equal(t, 1, wakes)

	r.frames(device.ResumeSignalFrames)
	assert.False(t, r.dev.IsSuspended())
	assert.Equal(t, 1, r.ep1.count(device.EventDeviceResume))
}
