package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

type TransportMode string

const (
	ModeTransit TransportMode = "TRANSIT"
	ModeWalking TransportMode = "WALKING"
	ModeDriving TransportMode = "DRIVING"
	ModeCycling TransportMode = "CYCLING"
)

// AllModes lists the supported transport modes in a stable order.
var AllModes = []TransportMode{ModeTransit, ModeWalking, ModeDriving, ModeCycling}

func (m TransportMode) Valid() bool {
	switch m {
	case ModeTransit, ModeWalking, ModeDriving, ModeCycling:
		return true
	}
	return false
}

// ParseTransportMode accepts any casing ("transit", "Driving", ...).
func ParseTransportMode(s string) (TransportMode, error) {
	m := TransportMode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("parse transport mode: unknown mode %q", s)
	}
	return m, nil
}

func (m *TransportMode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("transport mode: %w", err)
	}
	parsed, err := ParseTransportMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// A traveler taking part in an optimization run.
// Owned by the caller; the core only reads it.
type UserLocation struct {
	ID       string        `json:"id"`
	Location Coordinate    `json:"location"`
	Mode     TransportMode `json:"mode"`
	Weight   float64       `json:"weight,omitempty"`
}

// EffectiveWeight returns the importance weight, defaulting to 1.
func (u UserLocation) EffectiveWeight() float64 {
	if u.Weight <= 0 {
		return 1
	}
	return u.Weight
}
