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

import "strings"

// Channel groups.
const (
	GroupSensors     = "sensors"
	GroupDeviceInfo  = "device-info"
	GroupInteraction = "interaction"
)

// Channel identifiers in group#channel form.
var (
	ChannelRainIntensity = ChannelID(GroupSensors, "rain-intensity")
	ChannelTemperature   = ChannelID(GroupSensors, "temperature")
	ChannelDipSwitch     = ChannelID(GroupDeviceInfo, "dip-switch")
	ChannelPowerDays     = ChannelID(GroupDeviceInfo, "power-days")
	ChannelReset         = ChannelID(GroupDeviceInfo, "reset")
	ChannelKill          = ChannelID(GroupInteraction, "kill")
)

// Channels lists every channel a session emits, in a stable order.
func Channels() []string {
	return []string{
		ChannelRainIntensity,
		ChannelTemperature,
		ChannelDipSwitch,
		ChannelPowerDays,
		ChannelReset,
		ChannelKill,
	}
}

// ChannelID joins a group and channel name.
func ChannelID(group, channel string) string {
	return group + "#" + channel
}

// SplitChannelID is the inverse of ChannelID. ok is false when id has no
// group separator.
func SplitChannelID(id string) (group, channel string, ok bool) {
	return strings.Cut(id, "#")
}
