package device

import (
	"sync/atomic"

	"github.com/ardnew/pmausb/device/hal"
	"github.com/ardnew/pmausb/pkg"
)

// power tracks a remote wake attempt. wakeDone is false exactly while an
// attempt is in progress; frames counts down the resume signal and then
// goes negative while waiting for the bus.
type power struct {
	wakeDone atomic.Bool
	frames   atomic.Int32
}

func (p *power) init() {
	p.frames.Store(ResumeSignalFrames)
	p.wakeDone.Store(true)
}

// Wake starts a remote wake. It does nothing unless the host enabled
// remote wakeup and the bus is suspended, or while another wake is in
// progress. Safe to call from any goroutine.
func (d *Device) Wake() {
	if !d.remoteWakeup.Load() || d.hw.Control()&hal.CntrFSusp == 0 {
		return
	}
	if !d.power.wakeDone.CompareAndSwap(true, false) {
		return
	}

	pkg.LogDebug(pkg.ComponentPower, "remote wake")

	d.power.frames.Store(ResumeSignalFrames)
	d.hw.ModifyControl(hal.CntrResume|hal.CntrESOFM, 0)
	if d.power.wakeDone.Load() {
		// A host resume settled the attempt before the signal was armed.
		d.hw.ModifyControl(0, hal.CntrResume|hal.CntrESOFM)
		return
	}
	d.board.RemoteWake()
}

// waking reports whether a wake attempt has armed its frame countdown.
// Missed frames seen before the countdown is armed are not counted.
func (d *Device) waking() bool {
	return !d.power.wakeDone.Load() && d.hw.Control()&hal.CntrESOFM != 0
}

// IsSuspended reports whether the bus is suspended or a remote wake has
// not finished.
func (d *Device) IsSuspended() bool {
	return d.hw.Control()&hal.CntrFSusp != 0 || !d.power.wakeDone.Load()
}

func (d *Device) suspend() {
	pkg.LogDebug(pkg.ComponentPower, "suspend")

	d.hw.ModifyControl(hal.CntrFSusp|hal.CntrLPMode, 0)
	d.board.SetClock(false)
	d.board.SetSleepAllowed(true)
}

func (d *Device) resume() {
	pkg.LogDebug(pkg.ComponentPower, "resume", "line", d.hw.LineState())

	d.board.SetClock(true)
	d.hw.ModifyControl(0, hal.CntrFSusp|hal.CntrLPMode)
	d.board.SetSleepAllowed(false)

	// The host resumed the bus first; its countdown would never finish
	// because missed frames stop.
	if !d.power.wakeDone.Load() {
		pkg.LogDebug(pkg.ComponentPower, "wake preempted by host",
			"frames", d.power.frames.Load())
		d.finishWake()
	}
}

// finishWake ends a wake attempt. The resume signal and the missed frame
// interrupt are released and the countdown is rearmed for the next one.
func (d *Device) finishWake() {
	d.hw.ModifyControl(0, hal.CntrResume|hal.CntrESOFM)
	d.power.init()
}

// wakeFrame advances the remote wake countdown by one frame. The resume
// signal is released when the count reaches zero. From then on the line
// state decides: J means the host resumed the bus, SE1 or the timeout
// means the wake failed and the device suspends again.
func (d *Device) wakeFrame() {
	n := d.power.frames.Add(-1)
	if n == 0 {
		d.hw.ModifyControl(0, hal.CntrResume)
	}
	if n > 0 {
		return
	}

	state := d.hw.LineState()
	if state != hal.LineJ && state != hal.LineSE1 && n > -ResumeTimeoutFrames {
		return
	}

	d.finishWake()

	if state != hal.LineJ {
		pkg.LogWarn(pkg.ComponentPower, "wake error",
			"frames", n,
			"line", state)
		d.suspend()
		return
	}

	pkg.LogDebug(pkg.ComponentPower, "wake done", "frames", -n)
	d.resume()
	for ep := range d.endpointCount {
		d.endpoints[ep].Event(&d.endpointIO[ep], EventDeviceResume)
	}
}
