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
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/rainlink/pkg/api/models"
	"github.com/ZaparooProject/rainlink/pkg/hydreon"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"
	commandSuffix       = "/set"
	disconnectQuiesceMs = 250
	connectTimeout      = 10 * time.Second
)

// CommandHandler applies a command received for a channel.
type CommandHandler func(channel string, cmd hydreon.State) error

// ClientFactory creates the MQTT client. Tests replace it with a mock.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// MQTTPublisher mirrors sensor channels and link status to retained MQTT
// topics and forwards switch commands back to the session.
//
// Topics, relative to the configured prefix:
//
//	<group>/<channel>          channel display value, retained
//	status                     link status JSON, retained
//	availability               online/offline, retained, set by will on loss
//	interaction/kill/set       commands, ON triggers a kill
type MQTTPublisher struct {
	client    mqtt.Client
	newClient ClientFactory
	onCommand CommandHandler
	stopCh    chan struct{}
	broker    string
	topic     string
}

type Option func(*MQTTPublisher)

// WithClientFactory replaces the function used to create the MQTT client.
func WithClientFactory(f ClientFactory) Option {
	return func(p *MQTTPublisher) {
		p.newClient = f
	}
}

// NewMQTTPublisher creates a publisher for the given broker and topic prefix.
// onCommand may be nil, in which case no command topic is subscribed.
func NewMQTTPublisher(broker, topic string, onCommand CommandHandler, opts ...Option) *MQTTPublisher {
	p := &MQTTPublisher{
		broker:    broker,
		topic:     strings.TrimSuffix(topic, "/"),
		onCommand: onCommand,
		newClient: mqtt.NewClient,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start connects to the MQTT broker and begins publishing notifications.
func (p *MQTTPublisher) Start(notifications <-chan models.Notification) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + p.broker)
	opts.SetClientID("rainlink-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetWill(p.availabilityTopic(), availabilityOffline, 1, true)

	opts.OnConnect = func(c mqtt.Client) {
		log.Info().Msgf("mqtt publisher: connected to %s", p.broker)
		p.onConnect(c)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt publisher: connection lost")
	}

	p.client = p.newClient(opts)

	// with connect retry the token only completes once a connection is up
	token := p.client.Connect()
	if token.WaitTimeout(connectTimeout) {
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		log.Info().Msgf("mqtt publisher: publishing to %s (topic: %s)", p.broker, p.topic)
	} else {
		log.Warn().Msgf("mqtt publisher: %s not reachable yet, retrying in background", p.broker)
	}

	go p.publishNotifications(notifications)

	return nil
}

// Stop marks the device unavailable, disconnects from the broker and stops
// publishing.
func (p *MQTTPublisher) Stop() {
	select {
	case <-p.stopCh:
		return
	default:
		close(p.stopCh)
	}

	if p.client != nil && p.client.IsConnected() {
		token := p.client.Publish(p.availabilityTopic(), 1, true, availabilityOffline)
		token.WaitTimeout(time.Second)
		log.Debug().Msg("mqtt publisher: disconnecting")
		p.client.Disconnect(disconnectQuiesceMs)
	}
}

// onConnect runs on every (re)connect: subscriptions are not kept by the
// broker for a clean session.
func (p *MQTTPublisher) onConnect(c mqtt.Client) {
	token := c.Publish(p.availabilityTopic(), 1, true, availabilityOnline)
	if token.Wait() && token.Error() != nil {
		log.Error().Err(token.Error()).Msg("mqtt publisher: failed to publish availability")
	}

	if p.onCommand == nil {
		return
	}
	topic := p.commandTopic(hydreon.ChannelKill)
	token = c.Subscribe(topic, 1, p.handleMessage)
	if token.Wait() && token.Error() != nil {
		log.Error().Err(token.Error()).Msgf("mqtt publisher: failed to subscribe to %s", topic)
		return
	}
	log.Debug().Msgf("mqtt publisher: subscribed to %s", topic)
}

func (p *MQTTPublisher) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	channel, ok := p.channelForCommand(msg.Topic())
	if !ok {
		log.Warn().Msgf("mqtt publisher: command on unknown topic %s", msg.Topic())
		return
	}

	state, ok := hydreon.ParseOnOff(string(msg.Payload()))
	if !ok {
		log.Warn().Str("payload", string(msg.Payload())).Msg("mqtt publisher: invalid command payload")
		return
	}

	if err := p.onCommand(channel, state); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("mqtt publisher: command failed")
	}
}

// publishNotifications is the main loop that forwards notifications to MQTT.
func (p *MQTTPublisher) publishNotifications(notifications <-chan models.Notification) {
	log.Debug().Msg("mqtt publisher: starting notification publisher goroutine")

	for {
		select {
		case <-p.stopCh:
			log.Debug().Msg("mqtt publisher: stopping notification publisher")
			return
		case notif, ok := <-notifications:
			if !ok {
				log.Debug().Msg("mqtt publisher: notification channel closed")
				return
			}

			topic, payload, err := p.message(notif)
			if err != nil {
				log.Error().Err(err).Msgf("mqtt publisher: failed to build %s message", notif.Method)
				continue
			}
			if topic == "" {
				continue
			}

			token := p.client.Publish(topic, 0, true, payload)
			if token.Wait() && token.Error() != nil {
				log.Error().Err(token.Error()).Msgf("mqtt publisher: failed to publish message")
				continue
			}

			log.Debug().Msgf("mqtt publisher: published %s to %s", notif.Method, topic)
		}
	}
}

// message maps a notification to its topic and payload. An empty topic means
// the notification is not published.
func (p *MQTTPublisher) message(notif models.Notification) (topic string, payload []byte, err error) {
	switch notif.Method {
	case models.NotificationState:
		var cs models.ChannelState
		if err := json.Unmarshal(notif.Params, &cs); err != nil {
			return "", nil, fmt.Errorf("failed to unmarshal channel state: %w", err)
		}
		group, channel, ok := hydreon.SplitChannelID(cs.Channel)
		if !ok {
			return "", nil, fmt.Errorf("invalid channel id: %s", cs.Channel)
		}
		return p.topic + "/" + group + "/" + channel, []byte(cs.Display), nil
	case models.NotificationStatus:
		return p.topic + "/status", notif.Params, nil
	default:
		return "", nil, nil
	}
}

func (p *MQTTPublisher) availabilityTopic() string {
	return p.topic + "/availability"
}

func (p *MQTTPublisher) commandTopic(channelID string) string {
	group, channel, _ := hydreon.SplitChannelID(channelID)
	return p.topic + "/" + group + "/" + channel + commandSuffix
}

func (p *MQTTPublisher) channelForCommand(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, p.topic+"/")
	if !ok {
		return "", false
	}
	rest, ok = strings.CutSuffix(rest, commandSuffix)
	if !ok {
		return "", false
	}
	group, channel, ok := strings.Cut(rest, "/")
	if !ok {
		return "", false
	}
	return hydreon.ChannelID(group, channel), true
}
