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

package hydreon

import (
	"fmt"

	"github.com/ZaparooProject/rainlink/pkg/api/validation"
	"github.com/ZaparooProject/rainlink/pkg/hydreon/protocol"
)

// SensorConfig is the per-session device configuration. It is read once when
// the session is created.
type SensorConfig struct {
	// HoldTime is only sent to the device when set.
	HoldTime       *int   `toml:"hold_time,omitempty" json:"holdTime,omitempty" validate:"omitempty,min=0"`
	Port           string `toml:"port" json:"port" validate:"required,serialport"`
	IntensityLevel int    `toml:"intensity_level" json:"intensityLevel" validate:"min=0,max=7"`
	DisableLED     bool   `toml:"disable_led" json:"disableLed"`
}

// Validate checks the configuration before a session is started.
func (c *SensorConfig) Validate() error {
	if err := validation.DefaultValidator.Validate(c); err != nil {
		return fmt.Errorf("invalid sensor config: %w", err)
	}
	return nil
}

// ReconfigureCommands returns the commands pushed to the device after it
// reports a reset.
func (c *SensorConfig) ReconfigureCommands() []string {
	return protocol.Reconfigure(c.IntensityLevel, c.HoldTime, c.DisableLED)
}
