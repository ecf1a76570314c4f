package storage_service

import (
	"time"
)

// ApplicationType enumerates the three application forms the portal accepts.
type ApplicationType string

const (
	TypeAdmin  ApplicationType = "admin"
	TypeScript ApplicationType = "script"
	TypeHacks  ApplicationType = "hacks"
)

// Types lists every known application type in display order.
var Types = []ApplicationType{TypeAdmin, TypeScript, TypeHacks}

// Valid reports whether t is one of the known application types.
func (t ApplicationType) Valid() bool {
	switch t {
	case TypeAdmin, TypeScript, TypeHacks:
		return true
	}
	return false
}

// Status represents the application status lifecycle. An application starts
// pending and moves exactly once to accepted or rejected.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Application is one user submission.
type Application struct {
	ID              string          `json:"id"`
	Type            ApplicationType `json:"type"`
	DiscordUsername string          `json:"discordUsername"`
	DiscordUserID   string          `json:"discordUserId,omitempty"`
	FormData        map[string]any  `json:"formData"`
	Status          Status          `json:"status"`
	ReviewedBy      string          `json:"reviewedBy,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`

	// seq breaks ties between applications created within the same clock
	// tick so newest-first ordering stays deterministic.
	seq uint64
}

// ApplicationSettings is the per-type submission gate. A type with no record
// behaves as open.
type ApplicationSettings struct {
	ID        string          `json:"id"`
	Type      ApplicationType `json:"type"`
	IsOpen    bool            `json:"isOpen"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// AdminSession is an authenticated admin browser session.
type AdminSession struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
