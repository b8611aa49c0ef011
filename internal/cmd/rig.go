package cmd

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/ardnew/pmausb/device"
	"github.com/ardnew/pmausb/device/class/hid"
	"github.com/ardnew/pmausb/device/hal/sim"
	"github.com/ardnew/pmausb/host"
	"github.com/ardnew/pmausb/internal/board"
	"github.com/ardnew/pmausb/pkg"
)

// consoleBoard logs the power callbacks of the device.
type consoleBoard struct {
	wakes atomic.Int32
}

func (b *consoleBoard) SetClock(on bool) {
	pkg.LogDebug(pkg.ComponentBoard, "usb clock", "on", on)
}

func (b *consoleBoard) SetSleepAllowed(allowed bool) {
	pkg.LogDebug(pkg.ComponentBoard, "deep sleep", "allowed", allowed)
}

func (b *consoleBoard) RemoteWake() {
	n := b.wakes.Add(1)
	pkg.LogInfo(pkg.ComponentBoard, "remote wake requested", "count", n)
}

// rig is a device on a simulated peripheral with a host attached.
type rig struct {
	profile *board.Profile
	board   *consoleBoard
	hw      *sim.Peripheral
	dev     *device.Device
	hid     *hid.HID
	host    *host.Host
	trace   *sim.Trace
}

// open loads the board profile and brings the device up on a new
// simulated peripheral.
func (b Bus) open(opts ...sim.Option) (*rig, error) {
	p := board.Default()
	if b.Board != "" {
		var err error
		if p, err = board.Load(b.Board); err != nil {
			return nil, err
		}
	}

	r := &rig{profile: p, board: &consoleBoard{}}
	a, err := p.Assemble(r.board)
	if err != nil {
		return nil, err
	}
	r.hid = a.HID
	if b.Serial != "" {
		serial := b.Serial
		a.Config.Serial = func() (string, error) { return serial, nil }
	}

	opts = append([]sim.Option{sim.WithMemorySize(p.MemorySize)}, opts...)
	if b.Trace != "" {
		r.trace = sim.NewTrace()
		opts = append(opts, sim.WithTrace(r.trace))
	}
	r.hw = sim.New(opts...)
	r.host = host.New(r.hw)

	if r.dev, err = device.New(r.hw, a.Config); err != nil {
		return nil, err
	}
	if err := r.dev.Init(); err != nil {
		return nil, err
	}
	if p.InhibitConnect {
		pkg.LogDebug(pkg.ComponentBoard, "connecting after init")
		if err := r.dev.Connect(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// close releases the device and writes the trace to path.
func (r *rig) close(path string) error {
	r.dev.Release()
	if r.trace == nil || path == "" {
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := r.trace.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write trace: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	pkg.LogInfo(pkg.ComponentSim, "trace written", "path", path, "records", r.trace.Len())
	return nil
}
