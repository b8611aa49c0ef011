package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ardnew/pmausb/device"
	"github.com/ardnew/pmausb/device/hal/sim"
)

// Dump prints a trace written with --trace.
type Dump struct {
	File   string `arg:"" type:"existingfile" help:"Trace file"`
	Format string `help:"Output format" enum:"text,json" default:"text"`
}

// Run is called by kong when the dump command is executed.
func (c *Dump) Run(out io.Writer) error {
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := sim.ReadTrace(f)
	if err != nil {
		return fmt.Errorf("%s: %w", c.File, err)
	}

	if c.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	for _, rec := range records {
		fmt.Fprintln(out, formatRecord(rec))
	}
	return nil
}

func formatRecord(rec sim.Record) string {
	line := fmt.Sprintf("%6d %-7s", rec.Seq, rec.Kind)
	switch rec.Kind {
	case sim.KindSetup, sim.KindIn, sim.KindOut:
		line += fmt.Sprintf(" %3d.%d %-5s", rec.Address, rec.Endpoint, rec.Handshake)
	default:
		return line
	}
	if rec.Kind == sim.KindSetup {
		var s device.SetupPacket
		if s.UnmarshalBinary(rec.Data) == nil {
			return line + " " + s.String()
		}
	}
	if len(rec.Data) > 0 {
		line += " " + hex.EncodeToString(rec.Data)
	}
	return line
}
