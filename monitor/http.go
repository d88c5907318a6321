// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const userAgent = "mqbench/1.0"

// Stats is the JSON document a stats endpoint answers with.
type Stats struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
	LastError  string  `json:"last_error,omitempty"`
}

// HTTPProbe reads broker usage from a stats endpoint, typically a sidecar next to
// the broker container. The broker name is passed as the "broker" query parameter.
type HTTPProbe struct {
	endpoint string
	client   *http.Client
}

var _ Probe = (*HTTPProbe)(nil)

// NewHTTPProbe creates a probe for endpoint. Requests time out after timeout.
func NewHTTPProbe(endpoint string, timeout time.Duration) (*HTTPProbe, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid stats endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid stats endpoint scheme %q", u.Scheme)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPProbe{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (p *HTTPProbe) Sample(ctx context.Context, broker string) (Sample, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return Sample{}, err
	}
	q := u.Query()
	q.Set("broker", broker)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return Sample{}, fmt.Errorf("stats request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Sample{}, fmt.Errorf("stats endpoint returned status %d", resp.StatusCode)
	}

	var st Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return Sample{}, fmt.Errorf("failed to decode stats: %w", err)
	}
	return Sample{CPU: st.CPUPercent, Memory: st.MemoryMB, LastError: st.LastError}, nil
}
