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
	"context"
	"errors"
	"time"

	"github.com/ZaparooProject/rainlink/pkg/helpers/syncutil"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// ReadErrorBackoff is the pause after a failed read before the loop tries
// again.
const ReadErrorBackoff = 1 * time.Second

// ByteHandler receives every byte read from the port, in order, on the read
// loop goroutine.
type ByteHandler func(b byte)

// Supervisor owns the serial port and the goroutine reading from it. At most
// one read loop is active per Supervisor.
type Supervisor struct {
	clock    clockwork.Clock
	factory  PortFactory
	resolver PortResolver
	port     Port
	cancel   context.CancelFunc
	done     chan struct{}
	writer   *Writer
	portName string
	mu       syncutil.Mutex
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithPortFactory replaces the function used to open ports.
func WithPortFactory(f PortFactory) Option {
	return func(s *Supervisor) {
		s.factory = f
	}
}

// WithPortResolver replaces the function used to check a port name exists.
func WithPortResolver(r PortResolver) Option {
	return func(s *Supervisor) {
		s.resolver = r
	}
}

// WithClock sets the clock used for the read error backoff.
func WithClock(c clockwork.Clock) Option {
	return func(s *Supervisor) {
		s.clock = c
	}
}

// NewSupervisor creates a disconnected Supervisor.
func NewSupervisor(opts ...Option) *Supervisor {
	s := &Supervisor{
		clock:    clockwork.NewRealClock(),
		factory:  DefaultPortFactory,
		resolver: DefaultPortResolver,
		writer:   &Writer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Writer returns the command writer bound to this supervisor's port.
func (s *Supervisor) Writer() *Writer {
	return s.writer
}

// Connected reports whether a read loop is currently running.
func (s *Supervisor) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Supervisor) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Connect opens portName and starts the read loop, which passes each byte to
// handler until Disconnect is called or ctx is cancelled. Errors are always
// a *CommError.
func (s *Supervisor) Connect(ctx context.Context, portName string, handler ByteHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		return &CommError{Port: portName, Kind: ErrListenerLimit}
	}
	// the previous loop ended by itself, release what it left behind
	s.teardownLocked()

	if !s.resolver(portName) {
		return &CommError{Port: portName, Kind: ErrPortNotFound}
	}

	port, err := s.factory(portName, Mode())
	if err != nil {
		return classifyOpenError(portName, err)
	}

	if err := port.SetReadTimeout(ReadTimeout); err != nil {
		if cerr := port.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("port", portName).Msg("hydreon: failed to close port")
		}
		return &CommError{Port: portName, Kind: ErrUnsupportedOperation, Err: err}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.port = port
	s.portName = portName
	s.cancel = cancel
	s.done = done
	s.writer.attach(port)

	go s.readLoop(loopCtx, port, handler, done)

	log.Info().Str("port", portName).Msg("hydreon: connected to serial port")
	return nil
}

// Disconnect stops the read loop, waits for it to exit and closes the port.
// It is safe to call when not connected.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

func (s *Supervisor) teardownLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.done != nil {
		<-s.done
		s.done = nil
	}
	s.writer.detach()
	if s.port != nil {
		if err := s.port.Close(); err != nil {
			log.Warn().Err(err).Str("port", s.portName).Msg("hydreon: failed to close port")
		} else {
			log.Info().Str("port", s.portName).Msg("hydreon: closed serial port")
		}
		s.port = nil
	}
}

func (s *Supervisor) readLoop(ctx context.Context, port Port, handler ByteHandler, done chan struct{}) {
	defer close(done)

	buf := make([]byte, 1)
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := port.Read(buf)
		if err != nil {
			if isPortClosed(err) {
				log.Warn().Err(err).Msg("hydreon: serial port closed, stopping read loop")
				return
			}
			log.Error().Err(err).Msg("hydreon: failed to read from serial port")
			select {
			case <-ctx.Done():
				return
			case <-s.clock.After(ReadErrorBackoff):
			}
			continue
		}
		if n == 0 {
			continue
		}

		handler(buf[0])
	}
}

func isPortClosed(err error) bool {
	var portErr *serial.PortError
	return errors.As(err, &portErr) && portErr.Code() == serial.PortClosed
}
