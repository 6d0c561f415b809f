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

// Package service wires a sensor session to the state store, the broker and
// every consumer of sensor notifications.
package service

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/rainlink/pkg/api"
	"github.com/ZaparooProject/rainlink/pkg/config"
	"github.com/ZaparooProject/rainlink/pkg/hydreon"
	"github.com/ZaparooProject/rainlink/pkg/service/broker"
	"github.com/ZaparooProject/rainlink/pkg/service/discovery"
	"github.com/ZaparooProject/rainlink/pkg/service/publishers"
	"github.com/ZaparooProject/rainlink/pkg/service/state"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const subscriberBuffer = 100

// Options adjust how the service is started. The zero value runs against
// real hardware.
type Options struct {
	Clock             clockwork.Clock
	MQTTClientFactory publishers.ClientFactory
	// APIListen overrides the configured listen address.
	APIListen      string
	Version        string
	SessionOptions []hydreon.Option
	// DisableDiscovery skips mDNS advertising regardless of config.
	DisableDiscovery bool
}

// Start brings up the service. stop shuts everything down and returns the
// first error any component failed with. done is closed once shutdown has
// completed, including when a component fails by itself.
//
//nolint:gocritic // options struct passed by value
func Start(cfg *config.Instance, opts Options) (stop func() error, done <-chan struct{}, err error) {
	log.Info().Msgf("version: %s", opts.Version)

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(context.Background())

	store, ns := state.NewStore(clock)

	notifBroker := broker.NewBroker(ctx, ns)
	notifBroker.Start()

	sensorCfg := cfg.Sensor()
	sessionOpts := append([]hydreon.Option{hydreon.WithClock(clock)}, opts.SessionOptions...)
	session, err := hydreon.NewSession(sensorCfg, store, sessionOpts...)
	if err != nil {
		cancel()
		store.Close()
		return nil, nil, fmt.Errorf("failed to create sensor session: %w", err)
	}

	log.Info().Msg("starting publishers")
	activePublishers := startPublishers(cfg, notifBroker, session, opts.MQTTClientFactory)

	g, gctx := errgroup.WithContext(ctx)

	log.Info().Msg("starting API service")
	listen := opts.APIListen
	if listen == "" {
		listen = cfg.APIListen()
	}
	server := api.NewServer(api.Settings{
		Listen:         listen,
		Version:        opts.Version,
		AllowedOrigins: cfg.AllowedOrigins(),
		AllowedIPs:     cfg.AllowedIPs(),
	}, store, session)
	apiNotifications, _ := notifBroker.Subscribe(subscriberBuffer)
	g.Go(func() error {
		return server.Start(gctx, apiNotifications)
	})

	var discoveryService *discovery.Service
	if cfg.DiscoveryEnabled() && !opts.DisableDiscovery {
		log.Info().Msg("starting mDNS discovery service")
		discoveryService = discovery.New(discovery.Settings{
			InstanceName: cfg.DiscoveryInstanceName(),
			DeviceID:     cfg.DeviceID(),
			Version:      opts.Version,
			SensorPort:   sensorCfg.Port,
			APIPort:      cfg.APIPort(),
		})
		discoveryService.Start()
	} else {
		log.Info().Msg("mDNS discovery disabled")
	}

	log.Info().Str("port", sensorCfg.Port).Msg("starting sensor session")
	if err := session.Start(gctx); err != nil {
		cancel()
		_ = g.Wait()
		return nil, nil, fmt.Errorf("failed to start sensor session: %w", err)
	}

	var waitErr error
	doneCh := make(chan struct{})
	go func() {
		<-gctx.Done()
		log.Info().Msg("service context cancelled, running cleanup")

		session.Close()
		if discoveryService != nil {
			discoveryService.Stop()
		}
		for _, publisher := range activePublishers {
			publisher.Stop()
		}
		cancel()
		waitErr = g.Wait()
		store.Close()
		<-notifBroker.Done()

		log.Info().Msg("service cleanup completed")
		close(doneCh)
	}()

	stop = func() error {
		cancel()
		<-doneCh
		return waitErr
	}
	return stop, doneCh, nil
}

// startPublishers starts every enabled MQTT publisher, each with its own
// broker subscription. A publisher that fails to connect is skipped.
func startPublishers(
	cfg *config.Instance,
	notifBroker *broker.Broker,
	session *hydreon.Session,
	clientFactory publishers.ClientFactory,
) []*publishers.MQTTPublisher {
	activePublishers := make([]*publishers.MQTTPublisher, 0)

	for _, mqttCfg := range cfg.GetMQTTPublishers() {
		if !mqttCfg.IsEnabled() {
			continue
		}

		log.Info().Msgf("starting MQTT publisher: %s (topic: %s)", mqttCfg.Broker, mqttCfg.Topic)

		var pubOpts []publishers.Option
		if clientFactory != nil {
			pubOpts = append(pubOpts, publishers.WithClientFactory(clientFactory))
		}
		publisher := publishers.NewMQTTPublisher(mqttCfg.Broker, mqttCfg.Topic, session.HandleCommand, pubOpts...)

		notifications, id := notifBroker.Subscribe(subscriberBuffer)
		if err := publisher.Start(notifications); err != nil {
			log.Error().Err(err).Msgf("failed to start MQTT publisher for %s", mqttCfg.Broker)
			notifBroker.Unsubscribe(id)
			continue
		}

		activePublishers = append(activePublishers, publisher)
	}

	if len(activePublishers) > 0 {
		log.Info().Msgf("started %d MQTT publisher(s)", len(activePublishers))
	}

	return activePublishers
}
