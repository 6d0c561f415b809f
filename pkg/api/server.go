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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ZaparooProject/rainlink/pkg/api/middleware"
	"github.com/ZaparooProject/rainlink/pkg/api/models"
	"github.com/ZaparooProject/rainlink/pkg/hydreon"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
)

const (
	RequestTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	wsPing          = "ping"
	wsPong          = "pong"
)

// Session is the part of the sensor session the API drives.
type Session interface {
	HandleCommand(channel string, cmd hydreon.State) error
	Reconnect() error
	Config() hydreon.SensorConfig
	Phase() hydreon.Phase
	Connected() bool
	LastActivity() (time.Time, bool)
}

// StateReader is the read side of the state store.
type StateReader interface {
	Channels() []models.ChannelState
	Channel(id string) (models.ChannelState, bool)
	Status() models.SensorStatus
}

// Settings are the listener options read from config when the server is
// created.
type Settings struct {
	Listen         string
	Version        string
	AllowedOrigins []string
	AllowedIPs     []string
}

// Server serves the REST API and the notification WebSocket.
type Server struct {
	session  Session
	store    StateReader
	melody   *melody.Melody
	limiter  *middleware.IPRateLimiter
	handler  http.Handler
	settings Settings
}

// wsMessage is the frame sent to WebSocket clients for each notification.
type wsMessage struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func NewServer(settings Settings, store StateReader, session Session) *Server {
	s := &Server{
		session:  session,
		store:    store,
		settings: settings,
		melody:   melody.New(),
		limiter:  middleware.NewIPRateLimiter(),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	allowedOrigins := s.settings.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://*", "https://*"}
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.HTTPIPFilterMiddleware(middleware.NewIPFilter(s.settings.AllowedIPs)))
	r.Use(chimiddleware.NoCache)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{},
	}))

	s.melody.Upgrader.CheckOrigin = func(_ *http.Request) bool { return true }
	s.melody.HandleConnect(s.handleWSConnect)
	s.melody.HandleMessage(middleware.WebSocketRateLimitHandler(s.limiter, s.handleWSMessage))

	r.Get("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		err := s.melody.HandleRequest(w, r)
		if err != nil {
			log.Error().Err(err).Msg("handling websocket request")
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(RequestTimeout))

		r.Get("/api/version", s.handleVersion)
		r.Get("/api/state", s.handleState)
		r.Get("/api/state/{group}/{channel}", s.handleChannel)
		r.Get("/api/status", s.handleStatus)

		r.Group(func(r chi.Router) {
			r.Use(middleware.HTTPRateLimitMiddleware(s.limiter))
			r.Post("/api/kill", s.handleKill)
			r.Post("/api/reconnect", s.handleReconnect)
		})
	})

	return r
}

// Start listens on the configured address and broadcasts notifications to
// WebSocket clients until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, notifications <-chan models.Notification) error {
	listen := s.settings.Listen
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.handler,
		ReadHeaderTimeout: RequestTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listen, err)
	}

	s.limiter.StartCleanup(ctx)
	go s.broadcastNotifications(ctx, notifications)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("api server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	//nolint:contextcheck // parent is already cancelled
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.melody.Close(); err != nil {
		log.Debug().Err(err).Msg("closing websocket sessions")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	log.Info().Msg("api server stopped")
	return nil
}

func (s *Server) broadcastNotifications(ctx context.Context, notifications <-chan models.Notification) {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("stopping websocket broadcast via context cancellation")
			return
		case notif, ok := <-notifications:
			if !ok {
				log.Debug().Msg("websocket broadcast: notification channel closed")
				return
			}
			data, err := json.Marshal(wsMessage{Method: notif.Method, Params: notif.Params})
			if err != nil {
				log.Error().Err(err).Msg("marshalling notification")
				continue
			}
			if err := s.melody.Broadcast(data); err != nil {
				log.Error().Err(err).Msg("broadcasting notification")
			}
		}
	}
}

// handleWSConnect sends the current status and every channel value so a new
// client doesn't wait for the next change.
func (s *Server) handleWSConnect(session *melody.Session) {
	frames := make([]wsMessage, 0, len(hydreon.Channels())+1)

	status, err := json.Marshal(s.store.Status())
	if err == nil {
		frames = append(frames, wsMessage{Method: models.NotificationStatus, Params: status})
	}
	for _, cs := range s.store.Channels() {
		params, err := json.Marshal(cs)
		if err != nil {
			continue
		}
		frames = append(frames, wsMessage{Method: models.NotificationState, Params: params})
	}

	for _, frame := range frames {
		data, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		if err := session.Write(data); err != nil {
			log.Error().Err(err).Msg("sending initial state")
			return
		}
	}
}

// handleWSMessage answers heartbeats. Commands go through the REST API.
func (*Server) handleWSMessage(session *melody.Session, msg []byte) {
	if string(msg) != wsPing {
		log.Debug().Int("size", len(msg)).Msg("ignoring websocket message")
		return
	}
	if err := session.Write([]byte(wsPong)); err != nil {
		log.Error().Err(err).Msg("sending pong")
	}
}
