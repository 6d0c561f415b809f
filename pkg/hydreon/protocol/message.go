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

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Rain intensity bounds reported by the sensor.
const (
	MinRainIntensity = 0
	MaxRainIntensity = 7
)

// Message keys, the first field of every line.
const (
	keyDipSwitch   = "DIP"
	keyPowerDays   = "PwrDays"
	keyRain        = "R"
	keyReset       = "Reset"
	keyTemperature = "t"
)

// ErrMalformedLine is wrapped by every DecodeError.
var ErrMalformedLine = errors.New("malformed line")

// DecodeError describes a line whose key was recognised but whose payload
// could not be parsed.
type DecodeError struct {
	Err  error
	Line string
	Key  string
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %q: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("decode %q: %v", e.Line, ErrMalformedLine)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedLine}
	}
	return []error{ErrMalformedLine, e.Err}
}

// Message is one decoded line. The set of implementations is closed.
type Message interface {
	message()
}

// DipSwitchReport carries the physical DIP switch positions.
type DipSwitchReport struct {
	Value string
}

// PowerDaysReport carries the number of days since the last power loss.
type PowerDaysReport struct {
	Days int
}

// RainIntensity is a rain reading in the range 0 to 7.
type RainIntensity struct {
	Level int
}

// ResetReport is sent by the sensor after it reboots.
type ResetReport struct {
	Reason string
}

// Temperature is the internal sensor temperature in degrees Celsius,
// rounded to one decimal place.
type Temperature struct {
	Celsius float64
}

// Unrecognized is any line outside the vocabulary, plus rain readings that
// fall outside the reportable range.
type Unrecognized struct {
	Fields     []string
	OutOfRange bool
}

// Short reports whether the line had too few fields to be meaningful.
func (u Unrecognized) Short() bool {
	return !u.OutOfRange && len(u.Fields) < 3
}

func (DipSwitchReport) message() {}
func (PowerDaysReport) message() {}
func (RainIntensity) message()   {}
func (ResetReport) message()     {}
func (Temperature) message()     {}
func (Unrecognized) message()    {}

// Decode maps one line to a Message. Fields are separated by runs of
// whitespace and the first field selects the message type.
func Decode(line string) (Message, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Unrecognized{Fields: fields}, nil
	}

	fail := func(err error) (Message, error) {
		return nil, &DecodeError{Line: line, Key: fields[0], Err: err}
	}

	switch fields[0] {
	case keyDipSwitch:
		if len(fields) < 2 {
			return fail(nil)
		}
		return DipSwitchReport{Value: fields[1]}, nil
	case keyPowerDays:
		if len(fields) < 2 {
			return fail(nil)
		}
		days, err := strconv.Atoi(fields[1])
		if err != nil {
			return fail(err)
		}
		return PowerDaysReport{Days: days}, nil
	case keyRain:
		if len(fields) < 2 {
			return fail(nil)
		}
		level, err := strconv.Atoi(fields[1])
		if err != nil {
			return fail(err)
		}
		if level < MinRainIntensity || level > MaxRainIntensity {
			return Unrecognized{Fields: fields, OutOfRange: true}, nil
		}
		return RainIntensity{Level: level}, nil
	case keyReset:
		if len(fields) < 2 {
			return fail(nil)
		}
		return ResetReport{Reason: fields[1]}, nil
	case keyTemperature:
		if len(fields) < 2 {
			return fail(nil)
		}
		celsius, err := parseTemperature(fields[len(fields)-1])
		if err != nil {
			return fail(err)
		}
		return Temperature{Celsius: celsius}, nil
	default:
		return Unrecognized{Fields: fields}, nil
	}
}

// parseTemperature parses values such as "023.3C". The last character is the
// unit letter.
func parseTemperature(s string) (float64, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("temperature value %q too short", s)
	}
	v, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("temperature value %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("temperature value %q is not finite", s)
	}
	return math.Round(v*10) / 10, nil
}
