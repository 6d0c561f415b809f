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

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPRateLimiter_Burst(t *testing.T) {
	t.Parallel()
	limiter := NewIPRateLimiter()

	rl := limiter.GetLimiter("192.168.1.100")
	for i := 0; i < BurstSize; i++ {
		assert.True(t, rl.Allow(), "should allow request %d within burst", i+1)
	}
	assert.False(t, rl.Allow(), "should block request beyond burst size")
}

func TestIPRateLimiter_PerClient(t *testing.T) {
	t.Parallel()
	limiter := NewIPRateLimiter(WithLimit(60, 1))

	rl1 := limiter.GetLimiter("192.168.1.100")
	rl2 := limiter.GetLimiter("192.168.1.101")
	assert.NotSame(t, rl1, rl2)
	assert.Same(t, rl1, limiter.GetLimiter("192.168.1.100"))

	assert.True(t, rl1.Allow())
	assert.False(t, rl1.Allow())
	assert.True(t, rl2.Allow())
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	limiter := NewIPRateLimiter(WithRateLimitClock(clock))

	limiter.GetLimiter("10.0.0.1")
	clock.Advance(6 * time.Minute)
	limiter.GetLimiter("10.0.0.2")
	clock.Advance(5 * time.Minute)

	limiter.Cleanup()
	assert.Equal(t, 1, limiter.Len())

	clock.Advance(10 * time.Minute)
	limiter.Cleanup()
	assert.Equal(t, 0, limiter.Len())
}

func TestIPRateLimiter_StartCleanup(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	limiter := NewIPRateLimiter(WithRateLimitClock(clock))
	limiter.GetLimiter("10.0.0.1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter.StartCleanup(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	clock.Advance(limiterMaxAge + limiterCleanupEvery)
	assert.Eventually(t, func() bool {
		return limiter.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestHTTPRateLimitMiddleware(t *testing.T) {
	t.Parallel()
	limiter := NewIPRateLimiter(WithLimit(60, 2))
	handler := HTTPRateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for iter := 0; iter < 3; iter++ {
		req := httptest.NewRequest(http.MethodPost, "/api/kill", http.NoBody)
		req.RemoteAddr = "192.168.1.100:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// a different port from the same host shares the bucket
	req := httptest.NewRequest(http.MethodPost, "/api/kill", http.NoBody)
	req.RemoteAddr = "192.168.1.100:54321"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/kill", http.NoBody)
	req.RemoteAddr = "192.168.1.101:12345"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
