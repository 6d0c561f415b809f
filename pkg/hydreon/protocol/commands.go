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

package protocol

import "strconv"

// Kill returns the command that trips the sensor's kill switch.
func Kill() string {
	return "K"
}

// SetIntensity returns the command that sets the intensity level.
func SetIntensity(level int) string {
	return "i" + strconv.Itoa(level)
}

// SetHoldTime returns the command that sets the hold time.
func SetHoldTime(holdTime int) string {
	return "h" + strconv.Itoa(holdTime)
}

// SetLED returns the command that disables or enables the status LED.
func SetLED(disabled bool) string {
	if disabled {
		return "d 1"
	}
	return "d 0"
}

// Reconfigure returns the commands that restore the sensor settings after a
// reset, in the order the sensor expects them. The hold time command is only
// included when holdTime is set.
func Reconfigure(level int, holdTime *int, disableLED bool) []string {
	cmds := make([]string, 0, 3)
	cmds = append(cmds, SetIntensity(level))
	if holdTime != nil {
		cmds = append(cmds, SetHoldTime(*holdTime))
	}
	return append(cmds, SetLED(disableLED))
}
