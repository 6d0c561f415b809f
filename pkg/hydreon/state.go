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
	"encoding/json"
	"strconv"
	"strings"
)

// State is a typed channel value. The set of implementations is closed.
type State interface {
	// String renders the value the way it is published, e.g. "ON" or "23.3".
	String() string
	state()
}

// DecimalState is a plain number.
type DecimalState int

// StringState is free text reported by the device.
type StringState string

// OnOffState is a switch value.
type OnOffState bool

// Switch values.
const (
	On  OnOffState = true
	Off OnOffState = false
)

// Unit of a QuantityState.
type Unit string

// UnitCelsius is degrees Celsius.
const UnitCelsius Unit = "°C"

// QuantityState is a measurement with a unit, rendered to one decimal place.
type QuantityState struct {
	Unit  Unit
	Value float64
}

func (s DecimalState) String() string { return strconv.Itoa(int(s)) }
func (s StringState) String() string  { return string(s) }

func (s OnOffState) String() string {
	if s {
		return "ON"
	}
	return "OFF"
}

func (s QuantityState) String() string {
	return strconv.FormatFloat(s.Value, 'f', 1, 64) + " " + string(s.Unit)
}

func (DecimalState) state()  {}
func (StringState) state()   {}
func (OnOffState) state()    {}
func (QuantityState) state() {}

// MarshalJSON keeps the number numeric on the wire.
func (s QuantityState) MarshalJSON() ([]byte, error) {
	//nolint:wrapcheck // plain struct encoding
	return json.Marshal(struct {
		Unit  Unit    `json:"unit"`
		Value float64 `json:"value"`
	}{Unit: s.Unit, Value: s.Value})
}

// ParseOnOff accepts ON or OFF in any case.
func ParseOnOff(s string) (OnOffState, bool) {
	s = strings.TrimSpace(s)
	switch {
	case strings.EqualFold(s, "ON"):
		return On, true
	case strings.EqualFold(s, "OFF"):
		return Off, true
	default:
		return Off, false
	}
}

// StatusState is the coarse health of a session.
type StatusState int

const (
	StatusUnknown StatusState = iota
	StatusOnline
	StatusOffline
)

func (s StatusState) String() string {
	switch s {
	case StatusOnline:
		return "ONLINE"
	case StatusOffline:
		return "OFFLINE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name.
func (s StatusState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StatusKind qualifies an offline status.
type StatusKind int

const (
	KindNone StatusKind = iota
	KindCommunicationError
)

func (k StatusKind) String() string {
	if k == KindCommunicationError {
		return "COMMUNICATION_ERROR"
	}
	return "NONE"
}

// MarshalText renders the kind name.
func (k StatusKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Status is what a session reports about its link.
type Status struct {
	Detail string      `json:"detail,omitempty"`
	State  StatusState `json:"state"`
	Kind   StatusKind  `json:"kind"`
}

// Sink receives everything a session emits. Calls are serialised per
// channel; implementations must not call back into the Session.
type Sink interface {
	UpdateState(channel string, state State)
	UpdateStatus(status Status)
}
