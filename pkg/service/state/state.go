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

package state

import (
	"slices"

	"github.com/ZaparooProject/rainlink/pkg/api/models"
	"github.com/ZaparooProject/rainlink/pkg/api/notifications"
	"github.com/ZaparooProject/rainlink/pkg/helpers/syncutil"
	"github.com/ZaparooProject/rainlink/pkg/hydreon"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// NotificationBuffer is the capacity of the notification channel returned
// by NewStore.
const NotificationBuffer = 500

// Store keeps the latest value of every sensor channel and the link status,
// and queues a notification for each change. It is the hydreon.Sink of the
// service.
//
// Notifications are sent while holding mu. The sends never block, and
// holding the lock keeps them ordered and stops a send racing Close.
type Store struct {
	clock         clockwork.Clock
	notifications chan models.Notification
	channels      map[string]models.ChannelState
	status        models.SensorStatus
	mu            syncutil.RWMutex
	closed        bool
}

var _ hydreon.Sink = (*Store)(nil)

// NewStore creates an empty store and the channel its notifications are
// queued on.
func NewStore(clock clockwork.Clock) (store *Store, notificationCh <-chan models.Notification) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ns := make(chan models.Notification, NotificationBuffer)
	return &Store{
		clock:         clock,
		notifications: ns,
		channels:      make(map[string]models.ChannelState),
		status: models.SensorStatus{
			State: hydreon.StatusUnknown.String(),
			Kind:  hydreon.KindNone.String(),
		},
	}, ns
}

// UpdateState records the value of a channel.
func (s *Store) UpdateState(channel string, st hydreon.State) {
	group, _, _ := hydreon.SplitChannelID(channel)
	cs := models.ChannelState{
		Channel:   channel,
		Group:     group,
		Value:     stateValue(st),
		Display:   st.String(),
		UpdatedAt: s.clock.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.channels[channel] = cs
	notifications.StateChanged(s.notifications, cs)

	log.Debug().Str("channel", channel).Str("value", cs.Display).Msg("state updated")
}

// UpdateStatus records the link status.
func (s *Store) UpdateStatus(status hydreon.Status) {
	ss := models.SensorStatus{
		State:     status.State.String(),
		Kind:      status.Kind.String(),
		Detail:    status.Detail,
		UpdatedAt: s.clock.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.status = ss
	notifications.StatusChanged(s.notifications, ss)

	log.Info().Str("status", ss.State).Str("detail", ss.Detail).Msg("sensor status changed")
}

// Channel returns the latest value of one channel.
func (s *Store) Channel(id string) (models.ChannelState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.channels[id]
	return cs, ok
}

// Channels returns every channel that has a value, in the order of
// hydreon.Channels.
func (s *Store) Channels() []models.ChannelState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order := hydreon.Channels()
	out := make([]models.ChannelState, 0, len(s.channels))
	for _, cs := range s.channels {
		out = append(out, cs)
	}
	slices.SortFunc(out, func(a, b models.ChannelState) int {
		return slices.Index(order, a.Channel) - slices.Index(order, b.Channel)
	})
	return out
}

// Status returns the latest link status.
func (s *Store) Status() models.SensorStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Close stops further updates and closes the notification channel.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.notifications)
}

// stateValue is the JSON value published for a state.
func stateValue(st hydreon.State) any {
	switch v := st.(type) {
	case hydreon.DecimalState:
		return int(v)
	case hydreon.StringState:
		return string(v)
	case hydreon.OnOffState:
		return v.String()
	case hydreon.QuantityState:
		return v
	default:
		return st.String()
	}
}
