package models

import (
	"encoding/json"
	"strings"
	"time"
)

// MetricSample is one telemetry reading as submitted by an agent.
type MetricSample struct {
	ServerID      string    `json:"server_id"`
	Timestamp     Timestamp `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	RAMPercent    float64   `json:"ram_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

// Metric is a persisted sample. ID is the insertion sequence and never leaves the service.
type Metric struct {
	ID            int64     `json:"-"`
	ServerFK      int64     `json:"-"`
	ServerID      string    `json:"server_id"`
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	RAMPercent    float64   `json:"ram_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

// Timestamp accepts RFC 3339 and naive ISO 8601 values. Naive values are taken as UTC.
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseTimestamp parses the formats agents are known to send.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	var lastErr error
	for _, layout := range naiveLayouts {
		t, err := time.ParseInLocation(layout, raw, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
