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

// Package linktest provides a scriptable serial port for tests of code that
// sits on top of the link package.
package linktest

import (
	"errors"
	"time"

	"github.com/ZaparooProject/rainlink/pkg/helpers/syncutil"
	"github.com/ZaparooProject/rainlink/pkg/hydreon/link"
	"go.bug.st/serial"
)

// ErrClosed is returned by MockPort reads and writes after Close.
var ErrClosed = errors.New("mock port closed")

// idleRead is how long an empty read blocks before reporting no data.
const idleRead = 2 * time.Millisecond

// MockPort is an in-memory link.Port. Bytes queued with Push are returned
// one per Read; an empty queue behaves like a read timeout.
type MockPort struct {
	readErr    error
	writeErr   error
	drainErr   error
	timeoutErr error
	closeErr   error
	pending    []byte
	writes     [][]byte
	drains     int
	closes     int
	timeout    time.Duration
	closed     bool
	mu         syncutil.Mutex
}

// NewMockPort creates an open MockPort with nothing queued.
func NewMockPort() *MockPort {
	return &MockPort{}
}

// Push queues bytes to be returned by Read.
func (m *MockPort) Push(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, data...)
}

// PushLine queues line followed by a carriage return.
func (m *MockPort) PushLine(line string) {
	m.Push(append([]byte(line), '\r'))
}

// Pending returns the number of queued bytes not read yet.
func (m *MockPort) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// SetReadError makes every Read fail with err until cleared with nil.
func (m *MockPort) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// SetWriteError makes every Write fail with err until cleared with nil.
func (m *MockPort) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// SetDrainError makes every Drain fail with err until cleared with nil.
func (m *MockPort) SetDrainError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drainErr = err
}

// SetTimeoutError makes SetReadTimeout fail with err.
func (m *MockPort) SetTimeoutError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeoutErr = err
}

// SetCloseError makes Close return err.
func (m *MockPort) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
}

func (m *MockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	if m.readErr != nil {
		err := m.readErr
		m.mu.Unlock()
		return 0, err
	}
	if len(m.pending) > 0 && len(p) > 0 {
		n := copy(p, m.pending)
		m.pending = m.pending[n:]
		m.mu.Unlock()
		return n, nil
	}
	m.mu.Unlock()

	time.Sleep(idleRead)
	return 0, nil
}

func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.writes = append(m.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (m *MockPort) Drain() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drainErr != nil {
		return m.drainErr
	}
	m.drains++
	return nil
}

func (m *MockPort) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timeoutErr != nil {
		return m.timeoutErr
	}
	m.timeout = t
	return nil
}

func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closes++
	return m.closeErr
}

// Writes returns a copy of every successful Write, one entry per call.
func (m *MockPort) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.writes))
	for _, w := range m.writes {
		out = append(out, string(w))
	}
	return out
}

// Drains returns the number of successful Drain calls.
func (m *MockPort) Drains() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drains
}

// ReadTimeout returns the last timeout passed to SetReadTimeout.
func (m *MockPort) ReadTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

// IsClosed reports whether Close has been called.
func (m *MockPort) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Closes returns how many times Close has been called.
func (m *MockPort) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// Factory hands out ports in order and records every open request. When the
// queue is empty, opens fail with Err (or a generic error when Err is nil).
type Factory struct {
	Err    error
	ports  []*MockPort
	opened []string
	modes  []serial.Mode
	mu     syncutil.Mutex
}

// NewFactory creates a Factory that returns the given ports in order.
func NewFactory(ports ...*MockPort) *Factory {
	return &Factory{ports: ports}
}

// Add queues another port to be returned by the next open.
func (f *Factory) Add(port *MockPort) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ports = append(f.ports, port)
}

// Open implements link.PortFactory.
func (f *Factory) Open(name string, mode *serial.Mode) (link.Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, name)
	if mode != nil {
		f.modes = append(f.modes, *mode)
	}
	if len(f.ports) == 0 {
		if f.Err != nil {
			return nil, f.Err
		}
		return nil, errors.New("no mock port available")
	}
	port := f.ports[0]
	f.ports = f.ports[1:]
	return port, nil
}

// Opened returns the port names passed to Open, in order.
func (f *Factory) Opened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

// Modes returns the serial modes passed to Open, in order.
func (f *Factory) Modes() []serial.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]serial.Mode(nil), f.modes...)
}

// Resolver is a link.PortResolver backed by a fixed set of names.
func Resolver(names ...string) link.PortResolver {
	return func(name string) bool {
		for _, n := range names {
			if n == name {
				return true
			}
		}
		return false
	}
}
