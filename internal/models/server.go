package models

import "time"

// Server is a registered host that agents report metrics for.
type Server struct {
	ID          int64     `json:"-"`
	ServerID    string    `json:"server_id"`
	Name        string    `json:"name"`
	IP          string    `json:"ip"`
	Environment string    `json:"environment"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
}
