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
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"time"

	"go.bug.st/serial"
)

// ReadTimeout bounds each blocking read so the read loop can notice it has
// been stopped.
const ReadTimeout = 3000 * time.Millisecond

// Port is the subset of serial.Port used by the link.
type Port interface {
	io.ReadWriteCloser
	Drain() error
	SetReadTimeout(t time.Duration) error
}

// PortFactory opens a serial port. Tests replace it with a mock.
type PortFactory func(name string, mode *serial.Mode) (Port, error)

// PortResolver reports whether a port name refers to an existing device.
type PortResolver func(name string) bool

// Mode returns the fixed line settings of the sensor: 9600 baud, 8 data bits,
// no parity, 1 stop bit.
func Mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// DefaultPortFactory opens a real serial port.
func DefaultPortFactory(name string, mode *serial.Mode) (Port, error) {
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

// DefaultPortResolver checks the device node on unix systems and the
// enumerated port list on windows, where COM ports have no path.
func DefaultPortResolver(name string) bool {
	if name == "" {
		return false
	}
	if runtime.GOOS != "windows" {
		_, err := os.Stat(name)
		return err == nil
	}
	ports, err := serial.GetPortsList()
	if err != nil {
		return false
	}
	return slices.Contains(ports, name)
}
