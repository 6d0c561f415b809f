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

package link_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/rainlink/pkg/helpers/syncutil"
	"github.com/ZaparooProject/rainlink/pkg/hydreon/link"
	"github.com/ZaparooProject/rainlink/pkg/hydreon/link/linktest"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

const testPort = "/dev/ttyUSB0"

type byteRecorder struct {
	got []byte
	mu  syncutil.Mutex
}

func (r *byteRecorder) handle(b byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, b)
}

func (r *byteRecorder) bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.got...)
}

func newTestSupervisor(t *testing.T, ports ...*linktest.MockPort) (*link.Supervisor, *linktest.Factory) {
	t.Helper()
	factory := linktest.NewFactory(ports...)
	sup := link.NewSupervisor(
		link.WithPortFactory(factory.Open),
		link.WithPortResolver(linktest.Resolver(testPort)),
	)
	t.Cleanup(sup.Disconnect)
	return sup, factory
}

func TestSupervisor_ConnectUsesFixedMode(t *testing.T) {
	t.Parallel()

	port := linktest.NewMockPort()
	sup, factory := newTestSupervisor(t, port)

	require.NoError(t, sup.Connect(context.Background(), testPort, func(byte) {}))
	assert.True(t, sup.Connected())

	assert.Equal(t, []string{testPort}, factory.Opened())
	require.Len(t, factory.Modes(), 1)
	mode := factory.Modes()[0]
	assert.Equal(t, 9600, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, link.ReadTimeout, port.ReadTimeout())
}

func TestSupervisor_DeliversBytesInOrder(t *testing.T) {
	t.Parallel()

	port := linktest.NewMockPort()
	sup, _ := newTestSupervisor(t, port)
	rec := &byteRecorder{}

	require.NoError(t, sup.Connect(context.Background(), testPort, rec.handle))
	port.Push([]byte("R 3\r\nt 0 023.3C\r"))

	want := []byte("R 3\r\nt 0 023.3C\r")
	assert.Eventually(t, func() bool {
		return string(rec.bytes()) == string(want)
	}, time.Second, 5*time.Millisecond)
}

func TestSupervisor_UnknownPort(t *testing.T) {
	t.Parallel()

	sup, factory := newTestSupervisor(t)

	err := sup.Connect(context.Background(), "/dev/missing", func(byte) {})
	require.Error(t, err)
	require.ErrorIs(t, err, link.ErrPortNotFound)

	var commErr *link.CommError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, "Serial Error: Port /dev/missing does not exist", commErr.Detail())
	assert.Empty(t, factory.Opened(), "unresolved ports must not be opened")
	assert.False(t, sup.Connected())
}

func TestSupervisor_OpenFailure(t *testing.T) {
	t.Parallel()

	sup, factory := newTestSupervisor(t)
	factory.Err = errors.New("device busy")

	err := sup.Connect(context.Background(), testPort, func(byte) {})
	require.ErrorIs(t, err, link.ErrUnsupportedOperation)

	var commErr *link.CommError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, "Serial Error: Unsupported comm operation on port "+testPort, commErr.Detail())
	assert.False(t, sup.Connected())
}

func TestSupervisor_SetReadTimeoutFailureClosesPort(t *testing.T) {
	t.Parallel()

	port := linktest.NewMockPort()
	port.SetTimeoutError(errors.New("ioctl failed"))
	sup, _ := newTestSupervisor(t, port)

	err := sup.Connect(context.Background(), testPort, func(byte) {})
	require.ErrorIs(t, err, link.ErrUnsupportedOperation)
	assert.True(t, port.IsClosed())
	assert.False(t, sup.Connected())
}

func TestSupervisor_SecondConnectIsListenerLimit(t *testing.T) {
	t.Parallel()

	first := linktest.NewMockPort()
	second := linktest.NewMockPort()
	sup, factory := newTestSupervisor(t, first, second)

	require.NoError(t, sup.Connect(context.Background(), testPort, func(byte) {}))

	err := sup.Connect(context.Background(), testPort, func(byte) {})
	require.ErrorIs(t, err, link.ErrListenerLimit)

	var commErr *link.CommError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, "Serial Error: Too many listeners on port "+testPort, commErr.Detail())
	assert.Len(t, factory.Opened(), 1)
	assert.False(t, first.IsClosed(), "active port must stay open")
}

func TestSupervisor_DisconnectStopsLoopThenClosesPort(t *testing.T) {
	t.Parallel()

	port := linktest.NewMockPort()
	sup, _ := newTestSupervisor(t, port)
	rec := &byteRecorder{}

	require.NoError(t, sup.Connect(context.Background(), testPort, rec.handle))
	sup.Disconnect()

	assert.False(t, sup.Connected())
	assert.True(t, port.IsClosed())
	assert.Equal(t, 1, port.Closes())

	// bytes arriving after disconnect are never delivered
	port.Push([]byte("R 1\r"))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.bytes())

	sup.Disconnect()
	assert.Equal(t, 1, port.Closes(), "second disconnect is a no-op")
}

func TestSupervisor_ReconnectAfterDisconnect(t *testing.T) {
	t.Parallel()

	first := linktest.NewMockPort()
	second := linktest.NewMockPort()
	sup, _ := newTestSupervisor(t, first, second)
	rec := &byteRecorder{}

	require.NoError(t, sup.Connect(context.Background(), testPort, rec.handle))
	sup.Disconnect()
	require.NoError(t, sup.Connect(context.Background(), testPort, rec.handle))

	second.Push([]byte("x"))
	assert.Eventually(t, func() bool {
		return string(rec.bytes()) == "x"
	}, time.Second, 5*time.Millisecond)
}

func TestSupervisor_ContextCancelStopsLoop(t *testing.T) {
	t.Parallel()

	port := linktest.NewMockPort()
	sup, _ := newTestSupervisor(t, port)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sup.Connect(ctx, testPort, func(byte) {}))
	cancel()

	assert.Eventually(t, func() bool {
		return !sup.Connected()
	}, time.Second, 5*time.Millisecond)
}

func TestSupervisor_ReadErrorBacksOff(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	port := linktest.NewMockPort()
	port.SetReadError(errors.New("framing error"))

	factory := linktest.NewFactory(port)
	sup := link.NewSupervisor(
		link.WithPortFactory(factory.Open),
		link.WithPortResolver(linktest.Resolver(testPort)),
		link.WithClock(clock),
	)
	t.Cleanup(sup.Disconnect)
	rec := &byteRecorder{}

	require.NoError(t, sup.Connect(context.Background(), testPort, rec.handle))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	// the loop survives read errors and resumes after the pause
	port.SetReadError(nil)
	port.Push([]byte("R"))
	assert.True(t, sup.Connected())
	assert.Empty(t, rec.bytes())

	clock.Advance(link.ReadErrorBackoff)
	assert.Eventually(t, func() bool {
		return string(rec.bytes()) == "R"
	}, time.Second, 5*time.Millisecond)
}

func TestSupervisor_DisconnectDuringBackoff(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	port := linktest.NewMockPort()
	port.SetReadError(errors.New("framing error"))

	factory := linktest.NewFactory(port)
	sup := link.NewSupervisor(
		link.WithPortFactory(factory.Open),
		link.WithPortResolver(linktest.Resolver(testPort)),
		link.WithClock(clock),
	)

	require.NoError(t, sup.Connect(context.Background(), testPort, func(byte) {}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	sup.Disconnect()
	assert.False(t, sup.Connected())
	assert.True(t, port.IsClosed())
}
