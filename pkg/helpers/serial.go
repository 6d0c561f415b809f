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
	"fmt"
	"runtime"
	"slices"
	"strings"

	"go.bug.st/serial/enumerator"
)

// SerialDevice is a port that may have a sensor attached.
type SerialDevice struct {
	Path   string
	VID    string
	PID    string
	Bridge string
	Serial string
	USB    bool
}

type usbID struct {
	vid string
	pid string
}

// USB serial bridges commonly used to wire the sensor's RS232/TTL pins.
var knownBridges = map[usbID]string{
	{vid: "0403", pid: "6001"}: "FTDI FT232R",
	{vid: "0403", pid: "6015"}: "FTDI FT231X",
	{vid: "10c4", pid: "ea60"}: "Silicon Labs CP210x",
	{vid: "1a86", pid: "7523"}: "WCH CH340",
	{vid: "067b", pid: "2303"}: "Prolific PL2303",
}

func bridgeName(vid, pid string) string {
	return knownBridges[usbID{vid: strings.ToLower(vid), pid: strings.ToLower(pid)}]
}

// candidatePort filters out ports that are never a sensor, like virtual
// consoles on linux or bluetooth ports on macOS.
func candidatePort(goos, name string) bool {
	switch goos {
	case "linux":
		for _, prefix := range []string{"/dev/ttyUSB", "/dev/ttyACM", "/dev/ttyAMA", "/dev/serial"} {
			if strings.HasPrefix(name, prefix) {
				return true
			}
		}
		return false
	case "darwin":
		return strings.HasPrefix(name, "/dev/tty.usbserial") ||
			strings.HasPrefix(name, "/dev/cu.usbserial")
	case "windows":
		return strings.HasPrefix(name, "COM")
	default:
		return name != ""
	}
}

// GetSerialDeviceList returns the serial ports a sensor could be attached to,
// USB ports first.
func GetSerialDeviceList() ([]SerialDevice, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports list: %w", err)
	}

	devices := make([]SerialDevice, 0, len(ports))
	for _, p := range ports {
		if !candidatePort(runtime.GOOS, p.Name) {
			continue
		}
		d := SerialDevice{
			Path:   p.Name,
			USB:    p.IsUSB,
			Serial: p.SerialNumber,
		}
		if p.IsUSB {
			d.VID = strings.ToLower(p.VID)
			d.PID = strings.ToLower(p.PID)
			d.Bridge = bridgeName(d.VID, d.PID)
		}
		devices = append(devices, d)
	}

	sortSerialDevices(devices)
	return devices, nil
}

func sortSerialDevices(devices []SerialDevice) {
	slices.SortStableFunc(devices, func(a, b SerialDevice) int {
		if a.USB != b.USB {
			if a.USB {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Path, b.Path)
	})
}

// String renders the device for a port listing.
func (d SerialDevice) String() string {
	if !d.USB {
		return d.Path
	}
	desc := d.Bridge
	if desc == "" {
		desc = "USB " + d.VID + ":" + d.PID
	}
	if d.Serial != "" {
		desc += ", serial " + d.Serial
	}
	return d.Path + " (" + desc + ")"
}
