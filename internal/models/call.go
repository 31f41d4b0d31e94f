package models

import "time"

// CallKind distinguishes audio from video calls.
type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

// CallStatus is the lifecycle state of a call.
type CallStatus string

const (
	CallRinging   CallStatus = "ringing"
	CallActive    CallStatus = "active"
	CallRejected  CallStatus = "rejected"
	CallCancelled CallStatus = "cancelled"
	CallEnded     CallStatus = "ended"
	CallMissed    CallStatus = "missed"
)

// Terminal reports whether the status is a terminal state.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallRejected, CallCancelled, CallEnded, CallMissed:
		return true
	}
	return false
}

// Call represents a call between a caller and one or more participants.
type Call struct {
	ID              string     `json:"id"` // UUID
	CallerID        string     `json:"caller_id"`
	ParticipantIDs  []string   `json:"participant_ids"` // includes the caller
	Kind            CallKind   `json:"kind"`
	Status          CallStatus `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	EndedBy         string     `json:"ended_by,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
}

// IsParticipant reports whether userID takes part in the call.
func (c *Call) IsParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Receivers returns every participant except the caller.
func (c *Call) Receivers() []string {
	out := make([]string, 0, len(c.ParticipantIDs))
	for _, id := range c.ParticipantIDs {
		if id != c.CallerID {
			out = append(out, id)
		}
	}
	return out
}

// CallRecord is the immutable history entry written exactly once when a call
// reaches a terminal status.
type CallRecord struct {
	CallID          string     `json:"call_id"`
	CallerID        string     `json:"caller_id"`
	ReceiverIDs     []string   `json:"receiver_ids"`
	Kind            CallKind   `json:"kind"`
	Status          CallStatus `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         time.Time  `json:"ended_at"`
	DurationSeconds int        `json:"duration_seconds"`
	CreatedAt       time.Time  `json:"created_at"`
}
