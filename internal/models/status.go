package models

import (
	"fmt"
	"strings"
)

// NotificationStatus is the subscription state of a scheduled notification.
type NotificationStatus string

const (
	StatusActive    NotificationStatus = "ACTIVE"
	StatusPaused    NotificationStatus = "PAUSED"
	StatusCancelled NotificationStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s NotificationStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCancelled:
		return true
	}
	return false
}

// ParseNotificationStatus parses a status name, case-insensitively.
func ParseNotificationStatus(v string) (NotificationStatus, error) {
	s := NotificationStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("invalid notification status %q", v)
	}
	return s, nil
}

// StatusUpdate is the body of a status change request.
type StatusUpdate struct {
	Status NotificationStatus `json:"status"`
}
