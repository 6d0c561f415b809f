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

// Package health watches a sensor link for silence. A Monitor is re-armed by
// every byte received and reports the link as dead when no activity is seen
// within its timeout.
package health

import (
	"time"

	"github.com/ZaparooProject/rainlink/pkg/helpers/syncutil"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout is how long the link may stay silent before it is reported
// offline.
const DefaultTimeout = 300 * time.Second

const (
	detailNeverReceived = "No data received"
	detailReceivedSince = "No data received since "
)

// TimeoutFunc is called once per expiry with the status detail to show.
type TimeoutFunc func(detail string)

// Monitor is a resettable watchdog. Only one timer is outstanding at a time.
type Monitor struct {
	clock     clockwork.Clock
	timer     clockwork.Timer
	last      time.Time
	onTimeout TimeoutFunc
	timeout   time.Duration
	gen       uint64
	hasLast   bool
	mu        syncutil.Mutex
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the clock used for timers and activity timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		m.timeout = d
	}
}

// NewMonitor creates an unarmed Monitor.
func NewMonitor(onTimeout TimeoutFunc, opts ...Option) *Monitor {
	m := &Monitor{
		clock:     clockwork.NewRealClock(),
		timeout:   DefaultTimeout,
		onTimeout: onTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Arm starts the watchdog without recording activity, so a link that never
// sends anything is still reported.
func (m *Monitor) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduleLocked()
}

// Touch records activity now and restarts the watchdog.
func (m *Monitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = m.clock.Now()
	m.hasLast = true
	m.scheduleLocked()
}

// LastActivity returns the time of the last Touch, if any.
func (m *Monitor) LastActivity() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.hasLast
}

// Stop cancels the watchdog. A timer already firing is discarded. The
// monitor can be armed again afterwards.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Monitor) scheduleLocked() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
	}
	gen := m.gen
	m.timer = m.clock.AfterFunc(m.timeout, func() {
		m.expire(gen)
	})
}

func (m *Monitor) expire(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	detail := detailNeverReceived
	if m.hasLast {
		detail = detailReceivedSince + m.last.Format(time.RFC1123)
	}
	m.mu.Unlock()

	log.Warn().Dur("timeout", m.timeout).Msg("hydreon: link silent, reporting offline")
	if m.onTimeout != nil {
		m.onTimeout(detail)
	}
}
