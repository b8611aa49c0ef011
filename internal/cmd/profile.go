package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ardnew/pmausb/device/hal"
	"github.com/ardnew/pmausb/internal/board"
)

// ProfileCommand groups board profile subcommands.
type ProfileCommand struct {
	Init  ProfileInit  `cmd:"" help:"Write a board profile template"`
	Check ProfileCheck `cmd:"" help:"Validate a board profile"`
}

// ProfileInit writes the default profile, optionally with a HID
// interface and a WebUSB landing page.
type ProfileInit struct {
	Format string `help:"Output format" enum:"yaml,toml,json" default:"yaml"`
	Output string `help:"Destination file; - writes to stdout" default:"-"`
	Force  bool   `help:"Overwrite if the file already exists"`

	Keyboard bool   `help:"Add a boot keyboard interface"`
	WebUSB   string `name:"webusb" help:"WebUSB landing page URL"`
}

// Run is called by kong when the profile init command is executed.
func (c *ProfileInit) Run(out io.Writer) error {
	format, err := board.ParseFormat(c.Format)
	if err != nil {
		return err
	}

	p := board.Default()
	if c.Keyboard {
		p.HID = &board.HID{Name: "Keyboard", Endpoint: 1, Report: "keyboard", Boot: "keyboard"}
	}
	if c.WebUSB != "" {
		p.WebUSB = &board.WebUSB{URL: c.WebUSB, VendorCode: 1}
	}
	if err := p.Validate(); err != nil {
		return err
	}

	data, err := p.Marshal(format)
	if err != nil {
		return err
	}

	if c.Output == "" || c.Output == "-" {
		_, err := out.Write(data)
		return err
	}
	if !c.Force {
		if _, err := os.Stat(c.Output); err == nil {
			return errors.New("destination exists; use --force to overwrite")
		}
	}
	if err := os.MkdirAll(filepath.Dir(c.Output), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(c.Output, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", c.Output)
	return nil
}

// ProfileCheck loads a profile and builds its descriptors.
type ProfileCheck struct {
	File string `arg:"" type:"existingfile" help:"Board profile"`
}

// Run is called by kong when the profile check command is executed.
func (c *ProfileCheck) Run(out io.Writer) error {
	p, err := board.Load(c.File)
	if err != nil {
		return err
	}
	a, err := p.Assemble(hal.NopBoard{})
	if err != nil {
		return err
	}
	desc := a.Config.Descriptors
	fmt.Fprintf(out, "%s: %04x:%04x %q, configuration %d bytes, %d strings, bos %t\n",
		c.File, p.VendorID, p.ProductID, p.Product,
		len(desc.Configuration), len(desc.Strings), desc.BOS != nil)
	return nil
}
