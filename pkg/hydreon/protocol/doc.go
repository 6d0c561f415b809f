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

// Package protocol implements the Hydreon RG-9 ASCII line protocol: framing
// of the inbound byte stream, decoding of lines into typed messages and
// encoding of outbound commands.
//
// Inbound lines are terminated by a carriage return, line feeds are ignored
// and fields are separated by runs of whitespace:
//
//	R 3
//	t 0 023.3C
//	Reset PWR
package protocol
