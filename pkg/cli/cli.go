// Rainlink
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Rainlink.
//
// Rainlink is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Rainlink is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Rainlink.  If not, see <http://www.gnu.org/licenses/>.

// Package cli holds the command line flags shared by Rainlink binaries.
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ZaparooProject/rainlink/internal/telemetry"
	"github.com/ZaparooProject/rainlink/pkg/config"
	"github.com/ZaparooProject/rainlink/pkg/helpers"
	"github.com/rs/zerolog/log"
)

type Flags struct {
	listPorts func() ([]helpers.SerialDevice, error)
	Port      *string
	ConfigDir *string
	LogDir    *string
	Version   *bool
	ListPorts *bool
	Debug     *bool
	Console   *bool
}

// SetupFlags defines the flags on fs.
func SetupFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		listPorts: helpers.GetSerialDeviceList,
		Port: fs.String(
			"port",
			"",
			"serial port of the sensor, overrides the config file",
		),
		ConfigDir: fs.String(
			"config-dir",
			config.DefaultDir(),
			"directory holding "+config.CfgFile,
		),
		LogDir: fs.String(
			"log-dir",
			config.DefaultLogDir(),
			"directory for the rotating log file",
		),
		Version: fs.Bool(
			"version",
			false,
			"print version and exit",
		),
		ListPorts: fs.Bool(
			"list-ports",
			false,
			"list serial ports that could be a sensor and exit",
		),
		Debug: fs.Bool(
			"debug",
			false,
			"enable debug logging",
		),
		Console: fs.Bool(
			"console",
			true,
			"also log to stderr",
		),
	}
}

// Pre parses args and runs the flags that exit immediately. done is true
// when the caller should exit without starting the service.
func (f *Flags) Pre(fs *flag.FlagSet, args []string, out io.Writer) (done bool, err error) {
	if err := fs.Parse(args); err != nil {
		return true, fmt.Errorf("failed to parse flags: %w", err)
	}

	if *f.Version {
		_, _ = fmt.Fprintf(out, "Rainlink v%s\n", config.AppVersion)
		return true, nil
	}

	if *f.ListPorts {
		devices, err := f.listPorts()
		if err != nil {
			return true, fmt.Errorf("failed to list serial ports: %w", err)
		}
		if len(devices) == 0 {
			_, _ = fmt.Fprintln(out, "No serial ports found.")
			return true, nil
		}
		for _, d := range devices {
			_, _ = fmt.Fprintln(out, d.String())
		}
		return true, nil
	}

	return false, nil
}

// Setup initializes logging, loads the config and starts error reporting.
//
//nolint:gocritic // config struct copied for immutability
func (f *Flags) Setup(defaultConfig config.Values) (*config.Instance, error) {
	var writers []io.Writer
	if *f.Console {
		writers = append(writers, os.Stderr)
	}

	if err := helpers.InitLogging(*f.LogDir, writers); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	cfg, err := config.NewConfig(*f.ConfigDir, defaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log.Info().Str("path", cfg.Path()).Msg("loaded config")

	f.Post(cfg)

	if err := telemetry.Init(telemetry.Options{
		DSN:         cfg.TelemetryDSN(),
		DeviceID:    cfg.DeviceID(),
		AppVersion:  config.AppVersion,
		Environment: cfg.TelemetryEnvironment(),
	}); err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}

	return cfg, nil
}

// Post applies flags that override config values for this run.
func (f *Flags) Post(cfg *config.Instance) {
	if *f.Port != "" {
		log.Info().Str("port", *f.Port).Msg("serial port set from command line")
		cfg.SetSensorPort(*f.Port)
	}
	cfg.SetDebugLogging(*f.Debug || cfg.DebugLogging())
}
