package entity

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Worker is a registry membership record.
type Worker struct {
	Address      common.Address `json:"address"`
	Name         string         `json:"name"`
	RegisteredAt time.Time      `json:"registered_at"`
	Active       bool           `json:"active"`
}

// Exists reports whether w is a filled-in record. Lookups that need to tell
// the zero address apart use the map's ok flag instead.
func (w Worker) Exists() bool { return w.Address != (common.Address{}) }

// Status distinguishes unknown addresses from deactivated workers.
type Status int

const (
	StatusUnregistered Status = iota
	StatusInactive
	StatusActive
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	default:
		return "unregistered"
	}
}

// MarshalText renders the status as its lower-case name.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
