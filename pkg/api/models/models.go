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

package models

import (
	"encoding/json"
	"time"
)

const (
	NotificationState  = "sensor.state"
	NotificationStatus = "sensor.status"
)

// Notification is one event fanned out by the broker. Params holds the JSON
// encoded payload.
type Notification struct {
	Method string
	Params json.RawMessage
}

// ChannelState is the latest value of one sensor channel.
type ChannelState struct {
	UpdatedAt time.Time `json:"updatedAt"`
	Value     any       `json:"value"`
	Channel   string    `json:"channel"`
	Group     string    `json:"group"`
	Display   string    `json:"display"`
}

// SensorStatus is the link status of the sensor.
type SensorStatus struct {
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastActivity *time.Time `json:"lastActivity,omitempty"`
	State        string     `json:"state"`
	Kind         string     `json:"kind"`
	Detail       string     `json:"detail,omitempty"`
}

// CommandRequest is the body of a switch command.
type CommandRequest struct {
	State string `json:"state" validate:"required,onoff"`
}
