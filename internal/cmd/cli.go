package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/term"

	"github.com/ardnew/pmausb/pkg"
)

// CLI is the pmausb command line.
type CLI struct {
	Config string `help:"Configuration file (json, yaml or toml)" env:"PMAUSB_CONFIG"`
	Log    Log    `embed:"" prefix:"log."`

	Enumerate Enumerate      `cmd:"" help:"Enumerate the simulated device and print what the host sees"`
	Wake      Wake           `cmd:"" help:"Suspend the bus and run a remote wake"`
	Dump      Dump           `cmd:"" help:"Print a recorded bus trace"`
	Profile   ProfileCommand `cmd:"" help:"Board profile commands"`
}

// Log configures engine logging.
type Log struct {
	Level  string `help:"Log level" enum:"debug,info,warn,error" default:"info" env:"PMAUSB_LOG_LEVEL"`
	Format string `help:"Log format; auto selects text on a terminal" enum:"auto,text,json" default:"auto" env:"PMAUSB_LOG_FORMAT"`
}

// Setup applies the level and format to the engine logger writing to f.
func (l Log) Setup(f *os.File) error {
	level, err := pkg.ParseLogLevel(l.Level)
	if err != nil {
		return err
	}
	pkg.SetLogLevel(level)

	format := pkg.LogFormatText
	switch l.Format {
	case "json":
		format = pkg.LogFormatJSON
	case "auto", "":
		if !term.IsTerminal(int(f.Fd())) {
			format = pkg.LogFormatJSON
		}
	}
	pkg.SetLogOutput(f, format)
	return nil
}

// Bus holds the options of commands that run a simulated device.
type Bus struct {
	Board   string        `help:"Board profile (yaml, toml or json)" type:"existingfile" env:"PMAUSB_BOARD"`
	Serial  string        `help:"Serial number supplied to the device at init"`
	Trace   string        `help:"Write a CBOR bus trace to this file" type:"path"`
	Timeout time.Duration `help:"Overall timeout" default:"5s"`
}

func (b Bus) context() (context.Context, context.CancelFunc) {
	if b.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), b.Timeout)
}

// ConfigCandidatePaths lists configuration files per loader. userPath
// comes first and is routed by extension.
func ConfigCandidatePaths(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	add := func(slice *[]string, p string) { *slice = append(*slice, p) }

	if userPath != "" {
		switch filepath.Ext(userPath) {
		case ".yaml", ".yml":
			add(&yamlPaths, userPath)
		case ".toml":
			add(&tomlPaths, userPath)
		default:
			add(&jsonPaths, userPath)
		}
	}

	var bases []string
	if wd, err := os.Getwd(); err == nil {
		bases = append(bases, filepath.Join(wd, "pmausb"))
	}
	if dir, err := os.UserConfigDir(); err == nil {
		bases = append(bases, filepath.Join(dir, "pmausb", "config"))
	}
	for _, base := range bases {
		add(&jsonPaths, base+".json")
		add(&yamlPaths, base+".yaml")
		add(&yamlPaths, base+".yml")
		add(&tomlPaths, base+".toml")
	}
	return jsonPaths, yamlPaths, tomlPaths
}
