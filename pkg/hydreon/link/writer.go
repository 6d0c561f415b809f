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

	"github.com/ZaparooProject/rainlink/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

// CommandTerminator is appended to every outbound command.
const CommandTerminator byte = '\n'

// Writer serialises commands onto the port shared with the read loop. It is
// safe for concurrent use.
type Writer struct {
	port Port
	mu   syncutil.Mutex
}

func (w *Writer) attach(port Port) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.port = port
}

// detach waits for an in-flight write before releasing the port.
func (w *Writer) detach() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.port = nil
}

// Send writes cmd followed by the command terminator and drains the output
// buffer. Failures are logged and returned, they never affect the link.
func (w *Writer) Send(cmd string) error {
	buf := make([]byte, 0, len(cmd)+1)
	buf = append(buf, cmd...)
	buf = append(buf, CommandTerminator)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.port == nil {
		log.Warn().Str("command", cmd).Msg("hydreon: dropping command, link not connected")
		return ErrNotConnected
	}

	if _, err := w.port.Write(buf); err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("hydreon: failed to send command")
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := w.port.Drain(); err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("hydreon: failed to drain command")
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	log.Debug().Str("command", cmd).Msg("hydreon: sent command")
	return nil
}
