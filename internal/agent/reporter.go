// Package agent collects host usage and reports it to the ingestion endpoint.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cmm/internal/middleware"

	"go.uber.org/zap"
)

// ErrRejected is returned when the service answered but did not accept the sample.
var ErrRejected = errors.New("sample rejected")

type Options struct {
	APIURL    string
	IngestKey string
	Interval  time.Duration
	Timeout   time.Duration
	Collector Collector
	Client    *http.Client
	Logger    *zap.Logger
}

// Reporter posts one sample per interval. Failed sends are logged and
// dropped; the next tick sends a fresh sample.
type Reporter struct {
	url       string
	ingestKey string
	interval  time.Duration
	collector Collector
	client    *http.Client
	log       *zap.Logger
}

// Result is the service's answer to one sample.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Alerts  int    `json:"alerts"`
}

func NewReporter(opts Options) (*Reporter, error) {
	if strings.TrimSpace(opts.APIURL) == "" {
		return nil, errors.New("agent: api url is required")
	}
	if opts.Collector == nil {
		return nil, errors.New("agent: collector is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 8 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{
		url:       opts.APIURL,
		ingestKey: opts.IngestKey,
		interval:  interval,
		collector: opts.Collector,
		client:    client,
		log:       log,
	}, nil
}

// Run reports immediately and then once per interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reporter) tick(ctx context.Context) {
	res, err := r.ReportOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.log.Warn("send failed", zap.Error(err))
		return
	}
	r.log.Info("sent", zap.Int("alerts", res.Alerts))
}

// ReportOnce collects and posts a single sample.
func (r *Reporter) ReportOnce(ctx context.Context) (*Result, error) {
	sample, err := r.collector.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	body, err := json.Marshal(sample)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.ingestKey != "" {
		req.Header.Set(middleware.IngestKeyHeader, r.ingestKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post sample: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("status %d: unexpected response body", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || !res.OK {
		return &res, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, res.Message)
	}
	return &res, nil
}
