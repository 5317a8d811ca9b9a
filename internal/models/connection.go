package models

import "time"

// StreamStatus is a point-in-time view of the alert stream connection.
type StreamStatus struct {
	State        string     `json:"state"`
	Connected    bool       `json:"connected"`
	Attempts     int        `json:"attempts"`
	LastActivity *time.Time `json:"lastActivity,omitempty"`
	Subscribers  int        `json:"subscribers"`
}
