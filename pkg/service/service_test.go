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

package service

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ZaparooProject/rainlink/pkg/api/models"
	"github.com/ZaparooProject/rainlink/pkg/config"
	"github.com/ZaparooProject/rainlink/pkg/hydreon"
	"github.com/ZaparooProject/rainlink/pkg/hydreon/link"
	"github.com/ZaparooProject/rainlink/pkg/hydreon/link/linktest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPort = "/dev/ttyUSB0"
	waitFor  = 2 * time.Second
	tick     = 10 * time.Millisecond
)

func newConfig(t *testing.T, sensorPort string) *config.Instance {
	t.Helper()
	fs := afero.NewMemMapFs()
	data := fmt.Sprintf(`config_schema = 1

[sensor]
port = %q
intensity_level = 4

[discovery]
enabled = false
`, sensorPort)
	require.NoError(t, afero.WriteFile(fs, "/cfg/"+config.CfgFile, []byte(data), 0o600))

	cfg, err := config.NewConfig("/cfg", config.BaseDefaults, config.WithFs(fs))
	require.NoError(t, err)
	return cfg
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func getJSON(t *testing.T, url string, v any) bool {
	t.Helper()
	//nolint:noctx // test helper
	resp, err := http.Get(url)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	return json.NewDecoder(resp.Body).Decode(v) == nil
}

func TestStart_EndToEnd(t *testing.T) {
	port := linktest.NewMockPort()
	factory := linktest.NewFactory(port)
	addr := freeAddr(t)

	stop, done, err := Start(newConfig(t, testPort), Options{
		APIListen: addr,
		Version:   "test",
		SessionOptions: []hydreon.Option{
			hydreon.WithLinkOptions(
				link.WithPortFactory(factory.Open),
				link.WithPortResolver(linktest.Resolver(testPort)),
			),
		},
	})
	require.NoError(t, err)

	base := "http://" + addr
	port.PushLine("R 3")
	port.PushLine("t 1 021.4C")

	require.Eventually(t, func() bool {
		var st models.StateResponse
		if !getJSON(t, base+"/api/state", &st) {
			return false
		}
		return len(st.Channels) >= 3
	}, waitFor, tick)

	var status models.StatusResponse
	require.True(t, getJSON(t, base+"/api/status", &status))
	assert.Equal(t, "ONLINE", status.State)
	assert.Equal(t, testPort, status.Port)
	assert.True(t, status.Connected)

	var rain models.ChannelState
	require.True(t, getJSON(t, base+"/api/state/sensors/rain-intensity", &rain))
	assert.Equal(t, "3", rain.Display)

	//nolint:noctx // test request
	resp, err := http.Post(base+"/api/kill", "application/json", strings.NewReader(`{"state":"ON"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, port.Writes(), "K\n")

	require.NoError(t, stop())
	select {
	case <-done:
	default:
		t.Fatal("done not closed after stop")
	}
	assert.True(t, port.IsClosed())
}

func TestStart_InvalidSensorConfig(t *testing.T) {
	_, _, err := Start(newConfig(t, ""), Options{APIListen: freeAddr(t)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create sensor session")
}

func TestStart_APIFailureStopsService(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	port := linktest.NewMockPort()
	stop, done, err := Start(newConfig(t, testPort), Options{
		APIListen: ln.Addr().String(),
		SessionOptions: []hydreon.Option{
			hydreon.WithLinkOptions(
				link.WithPortFactory(linktest.NewFactory(port).Open),
				link.WithPortResolver(linktest.Resolver(testPort)),
			),
		},
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("service kept running without its API")
	}

	err = stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
	assert.True(t, port.IsClosed())
}
