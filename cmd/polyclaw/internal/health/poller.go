// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package health polls the deployed service's liveness endpoint.
package health

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// LivenessPath is the fixed health path the deployed polyclaw runtime
// exposes. This is the only wire contract the orchestrator depends on
// from the service itself.
const LivenessPath = "/health"

// DefaultPollInterval is the fixed delay between liveness probes.
const DefaultPollInterval = 3 * time.Second

// HTTPClient abstracts the HTTP transport so tests inject a fake.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Poller performs bounded liveness polling against a deployed service.
//
// # Description
//
// A cloud deployment can take minutes to become routable after the
// pipeline finishes; Poller hides that by probing the liveness endpoint
// at a fixed interval until it answers or the budget runs out. Network
// errors mean "not yet ready", never failure.
type Poller struct {
	client   HTTPClient
	interval time.Duration
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides the poll interval (tests use milliseconds).
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(c HTTPClient) Option {
	return func(p *Poller) {
		if c != nil {
			p.client = c
		}
	}
}

// NewPoller creates a Poller with a short per-probe HTTP timeout so a
// black-holed endpoint cannot eat the whole budget in one request.
func NewPoller(opts ...Option) *Poller {
	p := &Poller{
		client:   &http.Client{Timeout: 5 * time.Second},
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WaitForReady polls GET {baseURL}/health until it returns a 2xx status
// or the timeout elapses.
//
// # Outputs
//
//   - bool: True once the service answered successfully; false on
//     timeout or context cancellation. Never panics, never returns an
//     error — the caller decides how to react to "not ready".
func (p *Poller) WaitForReady(ctx context.Context, baseURL string, timeout time.Duration) bool {
	if baseURL == "" {
		return false
	}
	url := strings.TrimRight(baseURL, "/") + LivenessPath

	deadline := time.Now().Add(timeout)
	for {
		if p.probe(ctx, url) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(p.interval):
		}
	}
}

// probe performs a single liveness request. Any error counts as not ready.
func (p *Poller) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
