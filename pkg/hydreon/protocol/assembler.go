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

const (
	// MaxLineLength is the largest line the assembler buffers. Bytes past this
	// point are dropped until the next terminator.
	MaxLineLength = 275

	// LineTerminator ends every line the sensor sends.
	LineTerminator byte = '\r'

	// LineFeed is sent by some firmware revisions after the terminator and is
	// never part of a line.
	LineFeed byte = '\n'
)

// LineAssembler turns the raw byte stream from the sensor into complete lines.
// It is owned by a single read loop and is not safe for concurrent use.
type LineAssembler struct {
	buf        [MaxLineLength]byte
	n          int
	overflowed bool
}

// Feed consumes one byte. It returns the completed line and true when b
// terminates a non-empty line.
//
// Over-long lines are truncated to MaxLineLength rather than rejected, the
// caller can check Overflowed before the next Feed to find out.
func (a *LineAssembler) Feed(b byte) (string, bool) {
	switch b {
	case LineTerminator:
		if a.n == 0 {
			return "", false
		}
		line := string(a.buf[:a.n])
		a.n = 0
		return line, true
	case LineFeed:
		return "", false
	default:
		if a.n == 0 {
			a.overflowed = false
		}
		if a.n >= MaxLineLength {
			a.overflowed = true
			return "", false
		}
		a.buf[a.n] = b
		a.n++
		return "", false
	}
}

// Reset discards any partial line.
func (a *LineAssembler) Reset() {
	a.n = 0
	a.overflowed = false
}

// Len returns the number of buffered bytes of the current partial line.
func (a *LineAssembler) Len() int {
	return a.n
}

// Overflowed reports whether bytes were dropped from the most recent line.
func (a *LineAssembler) Overflowed() bool {
	return a.overflowed
}
