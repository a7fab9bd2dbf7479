package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cmm/internal/middleware"
	"cmm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCollector struct {
	sample models.MetricSample
	err    error
}

func (f fixedCollector) Collect(context.Context) (models.MetricSample, error) {
	return f.sample, f.err
}

func testSample() models.MetricSample {
	return models.MetricSample{
		ServerID:      "srv-001",
		Timestamp:     models.Timestamp{Time: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		CPUPercent:    91.5,
		RAMPercent:    40,
		DiskPercent:   20,
		UptimeSeconds: 120,
	}
}

func TestReportOncePostsSample(t *testing.T) {
	var got models.MetricSample
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get(middleware.IngestKeyHeader)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"alerts":1}`))
	}))
	defer srv.Close()

	rep, err := NewReporter(Options{APIURL: srv.URL, IngestKey: "k1", Collector: fixedCollector{sample: testSample()}})
	require.NoError(t, err)

	res, err := rep.ReportOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Alerts)
	assert.Equal(t, "k1", key)
	assert.Equal(t, "srv-001", got.ServerID)
	assert.Equal(t, 91.5, got.CPUPercent)
	assert.True(t, got.Timestamp.Equal(testSample().Timestamp.Time))
}

func TestReportOnceSoftFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"message":"Unknown server_id (register server first)"}`))
	}))
	defer srv.Close()

	rep, err := NewReporter(Options{APIURL: srv.URL, Collector: fixedCollector{sample: testSample()}})
	require.NoError(t, err)
	res, err := rep.ReportOnce(context.Background())
	assert.ErrorIs(t, err, ErrRejected)
	require.NotNil(t, res)
	assert.Contains(t, res.Message, "Unknown server_id")
}

func TestReportOnceCollectorError(t *testing.T) {
	rep, err := NewReporter(Options{APIURL: "http://127.0.0.1:1", Collector: fixedCollector{err: errors.New("boom")}})
	require.NoError(t, err)
	_, err = rep.ReportOnce(context.Background())
	assert.ErrorContains(t, err, "boom")
}

func TestRunKeepsGoingAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"alerts":0}`))
	}))
	defer srv.Close()

	rep, err := NewReporter(Options{
		APIURL:    srv.URL,
		Interval:  10 * time.Millisecond,
		Collector: fixedCollector{sample: testSample()},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rep.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestNewReporterRequiresURLAndCollector(t *testing.T) {
	_, err := NewReporter(Options{Collector: fixedCollector{}})
	assert.Error(t, err)
	_, err = NewReporter(Options{APIURL: "http://x"})
	assert.Error(t, err)
}

func TestRoundPercent(t *testing.T) {
	assert.Equal(t, 12.3, roundPercent(12.34))
	assert.Equal(t, 100.0, roundPercent(130))
	assert.Equal(t, 0.0, roundPercent(-1))
}
