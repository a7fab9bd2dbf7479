package models

import "time"

type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert is a persisted threshold breach. ServerID is a plain string so alerts
// outlive the server they were raised for.
type Alert struct {
	ID        int64      `json:"-"`
	ServerID  string     `json:"server_id"`
	Timestamp time.Time  `json:"timestamp"`
	Level     AlertLevel `json:"level"`
	Message   string     `json:"message"`
}
