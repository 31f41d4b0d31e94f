package models

import "time"

// PresenceStatus is a user's advertised availability.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
	StatusAway    PresenceStatus = "away"
	StatusBusy    PresenceStatus = "busy"
)

// Valid reports whether s is a known status.
func (s PresenceStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusAway, StatusBusy:
		return true
	}
	return false
}

// UserPresence is a user's presence record. The durable row is the system of
// record for Status/LastSeen across restarts; a TTL'd broker copy serves fast
// reads and decays to offline on expiry.
type UserPresence struct {
	UserID        string         `json:"user_id"`
	Status        PresenceStatus `json:"status"`
	LastSeen      time.Time      `json:"last_seen"`
	LastOnline    time.Time      `json:"last_online"`
	ConnectionIDs []string       `json:"connection_ids,omitempty"`
}
