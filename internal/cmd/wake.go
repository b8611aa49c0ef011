package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/pmausb/device"
	"github.com/ardnew/pmausb/device/hal"
	"github.com/ardnew/pmausb/device/hal/sim"
	"github.com/ardnew/pmausb/pkg"
)

// frameMargin is how many frames past the device's own timeout the clock
// keeps running before the attempt is reported as failed.
const frameMargin = 10

// Wake enumerates the device, enables remote wakeup, suspends the bus and
// has the device signal a remote wake while a frame clock runs.
type Wake struct {
	Bus `embed:""`

	Line     string        `help:"Line state the bus shows after the resume signal" enum:"j,k,se0,se1" default:"j"`
	NoAnswer bool          `help:"The host does not resume the bus"`
	Frame    time.Duration `help:"Frame period" default:"1ms"`
}

// Run is called by kong when the wake command is executed.
func (c *Wake) Run(out io.Writer) error {
	line, err := parseLine(c.Line)
	if err != nil {
		return err
	}
	r, err := c.open(sim.WithWakeResponse(line, !c.NoAnswer))
	if err != nil {
		return err
	}

	ctx, cancel := c.context()
	defer cancel()

	frames, err := c.run(ctx, r)
	// Release drops the pull-up, so the line is read first.
	line = r.hw.LineState()
	closeErr := r.close(c.Trace)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "resumed after %d frames (line %s)\n", frames, line)
	return closeErr
}

func (c *Wake) run(ctx context.Context, r *rig) (int64, error) {
	d, err := r.host.Enumerate(ctx)
	if err != nil {
		return 0, fmt.Errorf("enumerate: %w", err)
	}
	if err := d.SetFeature(ctx, device.FeatureDeviceRemoteWakeup); err != nil {
		return 0, fmt.Errorf("enable remote wakeup: %w", err)
	}

	r.hw.BusSuspend()
	if !r.dev.IsSuspended() {
		return 0, fmt.Errorf("%w: device did not suspend", pkg.ErrProtocol)
	}

	period := c.Frame
	if period <= 0 {
		period = time.Millisecond
	}
	limit := int64(device.ResumeSignalFrames + device.ResumeTimeoutFrames + frameMargin)

	var frames atomic.Int64
	resumed := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)

	// Frame clock. The bus keeps framing until the device has resumed.
	g.Go(func() error {
		tick := time.NewTicker(period)
		defer tick.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-resumed:
				return nil
			case <-tick.C:
			}
			if frames.Add(1) > limit {
				return fmt.Errorf("%w: bus still suspended after %d frames",
					pkg.ErrWakeTimeout, limit)
			}
			r.hw.Frame()
		}
	})

	g.Go(func() error {
		r.dev.Wake()
		tick := time.NewTicker(period)
		defer tick.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-tick.C:
			}
			if !r.dev.IsSuspended() {
				close(resumed)
				return nil
			}
		}
	})

	if err := g.Wait(); err != nil {
		return frames.Load(), err
	}
	pkg.LogInfo(pkg.ComponentPower, "remote wake complete", "frames", frames.Load())
	return frames.Load(), nil
}

func parseLine(s string) (hal.LineState, error) {
	switch strings.ToLower(s) {
	case "j", "":
		return hal.LineJ, nil
	case "k":
		return hal.LineK, nil
	case "se0":
		return hal.LineSE0, nil
	case "se1":
		return hal.LineSE1, nil
	default:
		return 0, fmt.Errorf("%w: line state %q", pkg.ErrInvalidParameter, s)
	}
}
