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

package link

import (
	"errors"
	"fmt"

	"go.bug.st/serial"
)

var (
	ErrPortNotFound         = errors.New("port not found")
	ErrPortInUse            = errors.New("port in use")
	ErrUnsupportedOperation = errors.New("unsupported comm operation")
	ErrListenerLimit        = errors.New("too many listeners")
	ErrNotConnected         = errors.New("not connected")
	ErrWrite                = errors.New("write failed")
)

// CommError is returned by Connect. Kind is one of the sentinel errors above
// and Err is the underlying cause, if any.
type CommError struct {
	Kind error
	Err  error
	Port string
}

func (e *CommError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("serial port %s: %v", e.Port, e.Kind)
	}
	return fmt.Sprintf("serial port %s: %v: %v", e.Port, e.Kind, e.Err)
}

func (e *CommError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Detail is the human readable status text shown while the sensor is offline.
func (e *CommError) Detail() string {
	switch {
	case errors.Is(e.Kind, ErrPortNotFound):
		return "Serial Error: Port " + e.Port + " does not exist"
	case errors.Is(e.Kind, ErrPortInUse):
		return "Serial Error: Port " + e.Port + " in use"
	case errors.Is(e.Kind, ErrUnsupportedOperation):
		return "Serial Error: Unsupported comm operation on port " + e.Port
	case errors.Is(e.Kind, ErrListenerLimit):
		return "Serial Error: Too many listeners on port " + e.Port
	default:
		return "Serial Error: " + e.Error()
	}
}

// classifyOpenError maps errors from the serial library to a CommError.
func classifyOpenError(port string, err error) *CommError {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound:
			return &CommError{Port: port, Kind: ErrPortNotFound, Err: err}
		case serial.PortBusy, serial.PermissionDenied:
			return &CommError{Port: port, Kind: ErrPortInUse, Err: err}
		case serial.InvalidSpeed, serial.InvalidDataBits, serial.InvalidParity,
			serial.InvalidStopBits, serial.InvalidTimeoutValue,
			serial.InvalidSerialPort, serial.FunctionNotImplemented:
			return &CommError{Port: port, Kind: ErrUnsupportedOperation, Err: err}
		}
	}
	return &CommError{Port: port, Kind: ErrUnsupportedOperation, Err: err}
}
