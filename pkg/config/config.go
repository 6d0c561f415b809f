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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZaparooProject/rainlink/pkg/api/validation"
	"github.com/ZaparooProject/rainlink/pkg/helpers/syncutil"
	"github.com/ZaparooProject/rainlink/pkg/hydreon"
	"github.com/adrg/xdg"
	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	SchemaVersion = 1
	CfgEnv        = "RAINLINK_CFG"
	CfgFile       = "rainlink.toml"
	AppName       = "rainlink"
)

// AppVersion is set at build time with -ldflags.
var AppVersion = "DEVELOPMENT"

var ErrSchemaMismatch = errors.New("schema version mismatch")

type Values struct {
	Telemetry    Telemetry            `toml:"telemetry,omitempty"`
	DeviceID     string               `toml:"device_id"`
	MQTT         []MQTTPublisher      `toml:"mqtt,omitempty" validate:"dive"`
	API          API                  `toml:"api"`
	Discovery    Discovery            `toml:"discovery,omitempty"`
	Sensor       hydreon.SensorConfig `toml:"sensor" validate:"-"`
	ConfigSchema int                  `toml:"config_schema"`
	DebugLogging bool                 `toml:"debug_logging"`
}

type Telemetry struct {
	DSN         string `toml:"dsn,omitempty" validate:"omitempty,url"`
	Environment string `toml:"environment,omitempty"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
}

// DefaultDir is the directory holding the config file when RAINLINK_CFG is
// not set.
func DefaultDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DefaultLogDir is where the rotating log file is written.
func DefaultLogDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

type Instance struct {
	fs       afero.Fs
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

type Option func(*Instance)

// WithFs replaces the filesystem the config is read from and written to.
func WithFs(fs afero.Fs) Option {
	return func(c *Instance) {
		c.fs = fs
	}
}

// NewConfig loads the config file from configDir, or from the path in
// RAINLINK_CFG, writing the defaults to disk first if it doesn't exist.
//
//nolint:gocritic // config struct copied for immutability
func NewConfig(configDir string, defaults Values, opts ...Option) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	log.Debug().Msgf("env config path: %s", cfgPath)

	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		fs:       afero.NewOsFs(),
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	exists, err := afero.Exists(cfg.fs, cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if !exists {
		log.Info().Msg("saving new default config to disk")

		err := cfg.fs.MkdirAll(filepath.Dir(cfgPath), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		err = cfg.Save()
		if err != nil {
			return nil, err
		}
	}

	err = cfg.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Instance) Path() string {
	return c.cfgPath
}

func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := afero.ReadFile(c.fs, c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// fields missing from the file keep their default values
	newVals := c.defaults
	err = toml.Unmarshal(data, &newVals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return ErrSchemaMismatch
	}

	if err := validation.DefaultValidator.Validate(&newVals); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c.vals = newVals
	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	c.vals.ConfigSchema = SchemaVersion

	if c.vals.DeviceID == "" {
		newID := uuid.New().String()
		c.vals.DeviceID = newID
		log.Info().Msgf("generated new device id: %s", newID)
	}

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(c.fs, c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Sensor returns a copy of the sensor section.
func (c *Instance) Sensor() hydreon.SensorConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sensor := c.vals.Sensor
	if sensor.HoldTime != nil {
		holdTime := *sensor.HoldTime
		sensor.HoldTime = &holdTime
	}
	return sensor
}

// SetSensorPort overrides the configured serial port for this run. It is
// not saved unless Save is called.
func (c *Instance) SetSensorPort(port string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Sensor.Port = port
}

func (c *Instance) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DeviceID
}

func (c *Instance) TelemetryDSN() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Telemetry.DSN
}

func (c *Instance) TelemetryEnvironment() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Telemetry.Environment
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
	if enabled {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
