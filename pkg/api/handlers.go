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
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ZaparooProject/rainlink/pkg/api/models"
	"github.com/ZaparooProject/rainlink/pkg/api/validation"
	"github.com/ZaparooProject/rainlink/pkg/hydreon"
	"github.com/ZaparooProject/rainlink/pkg/hydreon/link"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const maxBodySize = 4096

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("writing response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, models.ErrorResponse{Error: err.Error()})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.VersionResponse{Version: s.settings.Version})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.StateResponse{Channels: s.store.Channels()})
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	id := hydreon.ChannelID(chi.URLParam(r, "group"), chi.URLParam(r, "channel"))
	cs, ok := s.store.Channel(id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no value for channel "+id))
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := models.StatusResponse{
		SensorStatus: s.store.Status(),
		Phase:        s.session.Phase().String(),
		Port:         s.session.Config().Port,
		Connected:    s.session.Connected(),
	}
	if last, ok := s.session.LastActivity(); ok {
		resp.LastActivity = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req models.CommandRequest
	if err := validation.ValidateAndUnmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	state, _ := hydreon.ParseOnOff(req.State)
	if !bool(state) {
		writeJSON(w, http.StatusOK, models.CommandResponse{Sent: false})
		return
	}

	if err := s.session.HandleCommand(hydreon.ChannelKill, state); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, link.ErrNotConnected) || errors.Is(err, hydreon.ErrSessionClosed) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, models.CommandResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, models.CommandResponse{Sent: true})
}

func (s *Server) handleReconnect(w http.ResponseWriter, _ *http.Request) {
	if err := s.session.Reconnect(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.CommandResponse{Sent: true})
}
