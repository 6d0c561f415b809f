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

package publishers

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/rainlink/pkg/api/models"
	"github.com/ZaparooProject/rainlink/pkg/helpers/syncutil"
	"github.com/ZaparooProject/rainlink/pkg/hydreon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCommand struct {
	state   hydreon.State
	channel string
}

type commandRecorder struct {
	err  error
	cmds []recordedCommand
	mu   syncutil.Mutex
}

func (r *commandRecorder) handle(channel string, cmd hydreon.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, recordedCommand{channel: channel, state: cmd})
	return r.err
}

func (r *commandRecorder) get() []recordedCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedCommand(nil), r.cmds...)
}

func stateNotification(t *testing.T, cs models.ChannelState) models.Notification {
	t.Helper()
	params, err := json.Marshal(cs)
	require.NoError(t, err)
	return models.Notification{Method: models.NotificationState, Params: params}
}

func startPublisher(
	t *testing.T,
	topic string,
	onCommand CommandHandler,
) (*MQTTPublisher, *mockMQTTClient, chan models.Notification) {
	t.Helper()
	client := newMockMQTTClient()
	ns := make(chan models.Notification, 10)
	p := NewMQTTPublisher("localhost:1883", topic, onCommand, WithClientFactory(client.factory()))
	require.NoError(t, p.Start(ns))
	t.Cleanup(p.Stop)
	return p, client, ns
}

func TestNewMQTTPublisher(t *testing.T) {
	t.Parallel()

	p := NewMQTTPublisher("broker.example.com:8883", "garden/rain/", nil)
	assert.Equal(t, "broker.example.com:8883", p.broker)
	assert.Equal(t, "garden/rain", p.topic)
	assert.NotNil(t, p.stopCh)
	assert.Nil(t, p.client)
}

func TestMQTTPublisher_StartOptions(t *testing.T) {
	t.Parallel()

	_, client, _ := startPublisher(t, "rain", nil)

	client.mu.Lock()
	opts := client.opts
	client.mu.Unlock()
	require.NotNil(t, opts)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://localhost:1883", opts.Servers[0].String())
	assert.Contains(t, opts.ClientID, "rainlink-")
	assert.True(t, opts.AutoReconnect)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "rain/availability", opts.WillTopic)
	assert.Equal(t, []byte("offline"), opts.WillPayload)
	assert.True(t, opts.WillRetained)
}

func TestMQTTPublisher_AvailabilityOnConnect(t *testing.T) {
	t.Parallel()

	_, client, _ := startPublisher(t, "rain", nil)

	msg, ok := client.lastOn("rain/availability")
	require.True(t, ok)
	assert.Equal(t, "online", msg.payload)
	assert.True(t, msg.retained)
	assert.Empty(t, client.subscribed())
}

func TestMQTTPublisher_ConnectError(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	client.connectError = errors.New("connection refused")
	p := NewMQTTPublisher("localhost:1883", "rain", nil, WithClientFactory(client.factory()))

	err := p.Start(make(chan models.Notification))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to MQTT broker")
}

func TestMQTTPublisher_PublishesChannelState(t *testing.T) {
	t.Parallel()

	_, client, ns := startPublisher(t, "garden/rain", nil)

	ns <- stateNotification(t, models.ChannelState{
		Channel: hydreon.ChannelTemperature,
		Group:   "sensors",
		Display: "23.3 °C",
		Value:   hydreon.QuantityState{Value: 23.3, Unit: hydreon.UnitCelsius},
	})

	assert.Eventually(t, func() bool {
		_, ok := client.lastOn("garden/rain/sensors/temperature")
		return ok
	}, time.Second, 10*time.Millisecond)

	msg, _ := client.lastOn("garden/rain/sensors/temperature")
	assert.Equal(t, []byte("23.3 °C"), msg.payload)
	assert.True(t, msg.retained)
}

func TestMQTTPublisher_PublishesStatus(t *testing.T) {
	t.Parallel()

	_, client, ns := startPublisher(t, "rain", nil)

	params := json.RawMessage(`{"state":"OFFLINE","kind":"COMMUNICATION_ERROR"}`)
	ns <- models.Notification{Method: models.NotificationStatus, Params: params}

	assert.Eventually(t, func() bool {
		_, ok := client.lastOn("rain/status")
		return ok
	}, time.Second, 10*time.Millisecond)

	msg, _ := client.lastOn("rain/status")
	assert.Equal(t, []byte(params), msg.payload)
}

func TestMQTTPublisher_SkipsUnknownMethods(t *testing.T) {
	t.Parallel()

	_, client, ns := startPublisher(t, "rain", nil)
	before := len(client.getPublished())

	ns <- models.Notification{Method: "other.event", Params: json.RawMessage(`{}`)}
	ns <- models.Notification{Method: models.NotificationStatus, Params: json.RawMessage(`{}`)}

	assert.Eventually(t, func() bool {
		_, ok := client.lastOn("rain/status")
		return ok
	}, time.Second, 10*time.Millisecond)
	assert.Len(t, client.getPublished(), before+1)
}

func TestMQTTPublisher_PublishErrorContinues(t *testing.T) {
	t.Parallel()

	_, client, ns := startPublisher(t, "rain", nil)

	client.mu.Lock()
	client.publishError = errors.New("publish failed")
	client.mu.Unlock()

	ns <- models.Notification{Method: models.NotificationStatus, Params: json.RawMessage(`{}`)}
	ns <- models.Notification{Method: models.NotificationStatus, Params: json.RawMessage(`{}`)}

	client.mu.Lock()
	client.publishError = nil
	client.mu.Unlock()

	ns <- models.Notification{Method: models.NotificationStatus, Params: json.RawMessage(`{"state":"ONLINE"}`)}

	assert.Eventually(t, func() bool {
		msg, ok := client.lastOn("rain/status")
		return ok && assert.ObjectsAreEqual([]byte(`{"state":"ONLINE"}`), msg.payload)
	}, time.Second, 10*time.Millisecond)
}

func TestMQTTPublisher_KillCommand(t *testing.T) {
	t.Parallel()

	rec := &commandRecorder{}
	_, client, _ := startPublisher(t, "rain", rec.handle)

	assert.Equal(t, []string{"rain/interaction/kill/set"}, client.subscribed())

	require.True(t, client.deliver("rain/interaction/kill/set", " on "))
	require.True(t, client.deliver("rain/interaction/kill/set", "OFF"))
	require.True(t, client.deliver("rain/interaction/kill/set", "toggle"))

	cmds := rec.get()
	require.Len(t, cmds, 2)
	assert.Equal(t, hydreon.ChannelKill, cmds[0].channel)
	assert.Equal(t, hydreon.On, cmds[0].state)
	assert.Equal(t, hydreon.Off, cmds[1].state)
}

func TestMQTTPublisher_CommandErrorIsLogged(t *testing.T) {
	t.Parallel()

	rec := &commandRecorder{err: errors.New("not connected")}
	_, client, _ := startPublisher(t, "rain", rec.handle)

	require.True(t, client.deliver("rain/interaction/kill/set", "ON"))
	assert.Len(t, rec.get(), 1)
}

func TestMQTTPublisher_ChannelForCommand(t *testing.T) {
	t.Parallel()

	p := NewMQTTPublisher("localhost:1883", "a/b", nil)

	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{topic: "a/b/interaction/kill/set", want: hydreon.ChannelKill, wantOK: true},
		{topic: "a/b/interaction/kill", wantOK: false},
		{topic: "x/interaction/kill/set", wantOK: false},
		{topic: "a/b/kill/set", wantOK: false},
	}

	for _, tt := range tests {
		got, ok := p.channelForCommand(tt.topic)
		assert.Equal(t, tt.wantOK, ok, tt.topic)
		assert.Equal(t, tt.want, got, tt.topic)
	}
}

func TestMQTTPublisher_Stop(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	ns := make(chan models.Notification)
	p := NewMQTTPublisher("localhost:1883", "rain", nil, WithClientFactory(client.factory()))
	require.NoError(t, p.Start(ns))

	p.Stop()
	p.Stop()

	msg, ok := client.lastOn("rain/availability")
	require.True(t, ok)
	assert.Equal(t, "offline", msg.payload)
	assert.False(t, client.IsConnected())

	client.mu.Lock()
	assert.Equal(t, 1, client.disconnectCall)
	client.mu.Unlock()
}

func TestMQTTPublisher_ChannelClosed(t *testing.T) {
	t.Parallel()

	_, client, ns := startPublisher(t, "rain", nil)
	close(ns)

	// loop exits; nothing else is published
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, client.getPublished(), 1)
}
