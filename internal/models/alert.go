// Package models defines domain models for climalert.
package models

import (
	"fmt"
	"time"
)

// AlertEvent is a decoded weather alert.
// JSON tags match the persisted history format.
type AlertEvent struct {
	CityName           string    `json:"cityName"`
	RegionCode         string    `json:"uf"`
	TemperatureSummary string    `json:"temperature"`
	Humidity           string    `json:"humidity"`
	Description        string    `json:"description"`
	OccurredAt         time.Time `json:"timestamp"`
}

// Location returns "City/UF".
func (a AlertEvent) Location() string {
	return fmt.Sprintf("%s/%s", a.CityName, a.RegionCode)
}

// Summary returns a single-line human readable form of the alert.
func (a AlertEvent) Summary() string {
	return fmt.Sprintf("%s: %s (%s, umidade %s)", a.Location(), a.Description, a.TemperatureSummary, a.Humidity)
}
