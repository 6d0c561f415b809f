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

package hydreon

import (
	"context"
	"errors"
	"time"

	"github.com/ZaparooProject/rainlink/pkg/helpers/syncutil"
	"github.com/ZaparooProject/rainlink/pkg/hydreon/health"
	"github.com/ZaparooProject/rainlink/pkg/hydreon/link"
	"github.com/ZaparooProject/rainlink/pkg/hydreon/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultRetryInterval is the pause between bring-up attempts.
	DefaultRetryInterval = 60 * time.Second
	// DefaultKillRevert is how long the kill switch stays asserted.
	DefaultKillRevert = 1 * time.Second
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotStarted     = errors.New("session not started")
)

// Phase is the lifecycle position of a Session.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseConnecting
	PhaseOnline
	PhaseOffline
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseOnline:
		return "online"
	case PhaseOffline:
		return "offline"
	default:
		return "uninitialized"
	}
}

// Session drives one sensor: it brings the link up, decodes what the device
// sends into channel states, pushes configuration after a device reset and
// handles the kill switch.
type Session struct {
	ctx           context.Context //nolint:containedctx // lifetime of the read loop
	clock         clockwork.Clock
	sink          Sink
	retryTimer    clockwork.Timer
	killTimer     clockwork.Timer
	supervisor    *link.Supervisor
	monitor       *health.Monitor
	cfg           SensorConfig
	linkOpts      []link.Option
	assembler     protocol.LineAssembler
	retryInterval time.Duration
	watchdog      time.Duration
	killRevert    time.Duration
	retryGen      uint64
	killGen       uint64
	phase         Phase
	started       bool
	closed        bool
	mu            syncutil.Mutex
	bringUpMu     syncutil.Mutex
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock for every timer the session uses.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// WithLinkOptions passes options through to the link supervisor.
func WithLinkOptions(opts ...link.Option) Option {
	return func(s *Session) {
		s.linkOpts = append(s.linkOpts, opts...)
	}
}

// WithRetryInterval overrides DefaultRetryInterval.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Session) {
		s.retryInterval = d
	}
}

// WithWatchdogTimeout overrides health.DefaultTimeout.
func WithWatchdogTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.watchdog = d
	}
}

// WithKillRevert overrides DefaultKillRevert.
func WithKillRevert(d time.Duration) Option {
	return func(s *Session) {
		s.killRevert = d
	}
}

// NewSession validates cfg and creates a session that reports to sink.
// Nothing is opened until Start.
func NewSession(cfg SensorConfig, sink Sink, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errors.New("sensor session requires a sink")
	}

	s := &Session{
		cfg:           cfg,
		sink:          sink,
		clock:         clockwork.NewRealClock(),
		retryInterval: DefaultRetryInterval,
		watchdog:      health.DefaultTimeout,
		killRevert:    DefaultKillRevert,
	}
	for _, opt := range opts {
		opt(s)
	}

	linkOpts := append([]link.Option{link.WithClock(s.clock)}, s.linkOpts...)
	s.supervisor = link.NewSupervisor(linkOpts...)
	s.monitor = health.NewMonitor(s.onWatchdog,
		health.WithClock(s.clock),
		health.WithTimeout(s.watchdog),
	)

	return s, nil
}

// Config returns the configuration the session was created with.
func (s *Session) Config() SensorConfig {
	return s.cfg
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Connected reports whether the serial link is open and being read.
func (s *Session) Connected() bool {
	return s.supervisor.Connected()
}

// LastActivity returns when the last byte was received, if ever.
func (s *Session) LastActivity() (time.Time, bool) {
	return s.monitor.LastActivity()
}

// Start reports an unknown status and a released kill switch, then tries to
// open the link. Failed attempts are retried on the retry interval until one
// succeeds. Connection errors are reported through the sink, not returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.ctx = ctx
	s.phase = PhaseConnecting
	s.sink.UpdateStatus(Status{State: StatusUnknown})
	s.sink.UpdateState(ChannelKill, Off)
	s.mu.Unlock()

	log.Info().Str("port", s.cfg.Port).Msg("hydreon: starting sensor session")
	s.bringUp()
	return nil
}

// Reconnect drops the current link, if any, and starts bringing it up again.
func (s *Session) Reconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.stopRetryLocked()
	s.mu.Unlock()

	log.Info().Str("port", s.cfg.Port).Msg("hydreon: reconnecting")

	s.bringUpMu.Lock()
	s.supervisor.Disconnect()
	s.monitor.Stop()
	s.assembler.Reset()
	s.bringUpMu.Unlock()

	s.bringUp()
	return nil
}

// Close stops retrying, disconnects the link and cancels outstanding timers.
// Timer callbacks that run after Close have no effect.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopRetryLocked()
	s.mu.Unlock()

	s.supervisor.Disconnect()

	s.mu.Lock()
	s.monitor.Stop()
	s.killGen++
	if s.killTimer != nil {
		s.killTimer.Stop()
		s.killTimer = nil
	}
	s.mu.Unlock()

	log.Info().Str("port", s.cfg.Port).Msg("hydreon: sensor session closed")
}

// HandleCommand applies a command sent to a channel. Only an ON command on
// the kill channel has an effect; everything else is ignored.
func (s *Session) HandleCommand(channel string, cmd State) error {
	if channel != ChannelKill {
		log.Debug().Str("channel", channel).Msg("hydreon: ignoring command for read-only channel")
		return nil
	}
	if on, ok := cmd.(OnOffState); !ok || !bool(on) {
		return nil
	}
	return s.kill()
}

func (s *Session) kill() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.sink.UpdateState(ChannelKill, On)
	s.killGen++
	if s.killTimer != nil {
		s.killTimer.Stop()
	}
	gen := s.killGen
	s.killTimer = s.clock.AfterFunc(s.killRevert, func() {
		s.revertKill(gen)
	})
	s.mu.Unlock()

	log.Info().Msg("hydreon: kill switch asserted")
	//nolint:wrapcheck // link errors are already descriptive
	return s.supervisor.Writer().Send(protocol.Kill())
}

func (s *Session) revertKill(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.killGen {
		return
	}
	s.killTimer = nil
	s.sink.UpdateState(ChannelKill, Off)
}

func (s *Session) bringUp() {
	s.bringUpMu.Lock()
	defer s.bringUpMu.Unlock()

	if s.supervisor.Connected() {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseConnecting
	s.mu.Unlock()

	err := s.supervisor.Connect(s.ctx, s.cfg.Port, s.onByte)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.supervisor.Disconnect()
		return
	}
	if err != nil {
		s.phase = PhaseOffline
		s.sink.UpdateStatus(Status{
			State:  StatusOffline,
			Kind:   KindCommunicationError,
			Detail: commDetail(err),
		})
		s.scheduleRetryLocked()
		s.mu.Unlock()
		log.Warn().Err(err).Dur("retry", s.retryInterval).Msg("hydreon: failed to connect to sensor")
		return
	}
	s.stopRetryLocked()
	s.monitor.Arm()
	s.mu.Unlock()
}

func (s *Session) scheduleRetryLocked() {
	s.stopRetryLocked()
	gen := s.retryGen
	s.retryTimer = s.clock.AfterFunc(s.retryInterval, func() {
		s.retry(gen)
	})
}

func (s *Session) stopRetryLocked() {
	s.retryGen++
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

func (s *Session) retry(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.retryGen {
		s.mu.Unlock()
		return
	}
	s.retryTimer = nil
	s.mu.Unlock()

	s.bringUp()
}

// onByte runs on the read loop goroutine.
func (s *Session) onByte(b byte) {
	s.monitor.Touch()

	line, ok := s.assembler.Feed(b)
	if !ok {
		return
	}
	if s.assembler.Overflowed() {
		log.Debug().Int("max", protocol.MaxLineLength).Msg("hydreon: line truncated")
	}

	msg, err := protocol.Decode(line)
	if err != nil {
		log.Warn().Err(err).Msg("hydreon: failed to decode line")
		s.assembler.Reset()
		return
	}

	s.dispatch(msg)
	s.markOnline()
}

func (s *Session) dispatch(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.RainIntensity:
		s.sink.UpdateState(ChannelRainIntensity, DecimalState(m.Level))
	case protocol.Temperature:
		s.sink.UpdateState(ChannelTemperature, QuantityState{Value: m.Celsius, Unit: UnitCelsius})
	case protocol.DipSwitchReport:
		s.sink.UpdateState(ChannelDipSwitch, StringState(m.Value))
	case protocol.PowerDaysReport:
		s.sink.UpdateState(ChannelPowerDays, DecimalState(m.Days))
	case protocol.ResetReport:
		s.sink.UpdateState(ChannelReset, StringState(m.Reason))
		s.reconfigure(m.Reason)
	case protocol.Unrecognized:
		switch {
		case m.OutOfRange:
			log.Debug().Strs("fields", m.Fields).Msg("hydreon: dropping out of range rain intensity")
		case m.Short():
			log.Debug().Strs("fields", m.Fields).Msg("hydreon: short line from sensor")
		}
	}
}

// reconfigure pushes the session configuration after the device rebooted.
func (s *Session) reconfigure(reason string) {
	log.Info().Str("reason", reason).Msg("hydreon: sensor reset, pushing configuration")
	w := s.supervisor.Writer()
	for _, cmd := range s.cfg.ReconfigureCommands() {
		// failures are logged by the writer, the remaining commands still go out
		_ = w.Send(cmd)
	}
}

func (s *Session) markOnline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase == PhaseOnline {
		return
	}
	s.phase = PhaseOnline
	s.sink.UpdateStatus(Status{State: StatusOnline})
}

func (s *Session) onWatchdog(detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.phase = PhaseOffline
	s.sink.UpdateStatus(Status{
		State:  StatusOffline,
		Kind:   KindCommunicationError,
		Detail: detail,
	})
}

func commDetail(err error) string {
	var commErr *link.CommError
	if errors.As(err, &commErr) {
		return commErr.Detail()
	}
	return "Serial Error: " + err.Error()
}
