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

package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidatePort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		goos string
		name string
		want bool
	}{
		{goos: "linux", name: "/dev/ttyUSB0", want: true},
		{goos: "linux", name: "/dev/ttyACM1", want: true},
		{goos: "linux", name: "/dev/ttyAMA0", want: true},
		{goos: "linux", name: "/dev/serial0", want: true},
		{goos: "linux", name: "/dev/tty1", want: false},
		{goos: "linux", name: "/dev/ttyS4", want: false},
		{goos: "darwin", name: "/dev/cu.usbserial-A1", want: true},
		{goos: "darwin", name: "/dev/cu.Bluetooth-Incoming-Port", want: false},
		{goos: "windows", name: "COM3", want: true},
		{goos: "windows", name: "LPT1", want: false},
		{goos: "freebsd", name: "/dev/cuaU0", want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.goos+tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, candidatePort(tt.goos, tt.name))
		})
	}
}

func TestBridgeName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "FTDI FT232R", bridgeName("0403", "6001"))
	assert.Equal(t, "Silicon Labs CP210x", bridgeName("10C4", "EA60"))
	assert.Empty(t, bridgeName("dead", "beef"))
}

func TestSortSerialDevices(t *testing.T) {
	t.Parallel()

	devices := []SerialDevice{
		{Path: "/dev/ttyAMA0"},
		{Path: "/dev/ttyUSB1", USB: true},
		{Path: "/dev/ttyACM0", USB: true},
	}
	sortSerialDevices(devices)

	assert.Equal(t, []string{"/dev/ttyACM0", "/dev/ttyUSB1", "/dev/ttyAMA0"},
		[]string{devices[0].Path, devices[1].Path, devices[2].Path})
}

func TestSerialDeviceString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/dev/ttyAMA0", SerialDevice{Path: "/dev/ttyAMA0"}.String())
	assert.Equal(t, "/dev/ttyUSB0 (FTDI FT232R, serial A50285BI)", SerialDevice{
		Path: "/dev/ttyUSB0", USB: true, VID: "0403", PID: "6001",
		Bridge: "FTDI FT232R", Serial: "A50285BI",
	}.String())
	assert.Equal(t, "/dev/ttyACM0 (USB 2341:0043)", SerialDevice{
		Path: "/dev/ttyACM0", USB: true, VID: "2341", PID: "0043",
	}.String())
}
