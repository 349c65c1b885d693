// Copyright 2025 RetroLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@retrolabs.io
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package online talks to the two metadata services: Hasheous (content-hash
// keyed) and IGDB (name/slug/id keyed). Both clients share the retry
// discipline: bounded attempts with exponential backoff and jitter, plus an
// optional per-endpoint throttle between requests. A 404 is a clean miss,
// not an error.
package online

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Options configures one endpoint client.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	// Throttle is the minimum delay between consecutive requests to the
	// endpoint. Zero disables throttling.
	Throttle time.Duration
}

// endpoint wraps a retryable HTTP client with the per-endpoint throttle.
// Cheap to share: all methods are safe for concurrent use.
type endpoint struct {
	http *retryablehttp.Client

	throttle time.Duration
	mu       sync.Mutex
	last     time.Time
}

func newEndpoint(opts Options) *endpoint {
	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.MaxRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 8 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = opts.Timeout
	return &endpoint{http: rc, throttle: opts.Throttle}
}

// await blocks until the throttle window has passed.
func (e *endpoint) await() {
	if e.throttle <= 0 {
		return
	}
	e.mu.Lock()
	wait := time.Until(e.last.Add(e.throttle))
	if wait < 0 {
		wait = 0
	}
	e.last = time.Now().Add(wait)
	e.mu.Unlock()
	if wait > 0 {
		time.Sleep(wait)
	}
}

// do runs one request. Returns (body, true, nil) on a 2xx with a non-empty
// body, (nil, false, nil) on a 404 or empty body, and an error otherwise.
func (e *endpoint) do(req *retryablehttp.Request) ([]byte, bool, error) {
	e.await()

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, false, fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("%s %s: reading body: %w", req.Method, req.URL, err)
	}
	if len(body) == 0 {
		return nil, false, nil
	}
	return body, true, nil
}

func (e *endpoint) get(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	return e.do(req)
}

func (e *endpoint) post(ctx context.Context, url string, headers map[string]string, body string) ([]byte, bool, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, []byte(body))
	if err != nil {
		return nil, false, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return e.do(req)
}
