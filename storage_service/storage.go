// Package storage_service owns every record the portal keeps: applications,
// per-type submission settings and admin sessions. All state is
// process-lifetime only; the store is a cache, not a system of record.
package storage_service

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no application exists for an id.
	ErrNotFound = errors.New("application not found")
	// ErrAlreadyReviewed is returned when a decision has already been
	// recorded. Status transitions are one-way: pending to accepted or
	// rejected, exactly once.
	ErrAlreadyReviewed = errors.New("application already reviewed")
)

// Store holds all portal state behind one mutex. HTTP handlers run on
// separate goroutines, so every map access goes through it.
type Store struct {
	mu           sync.Mutex
	applications map[string]*Application
	settings     map[ApplicationType]*ApplicationSettings
	sessions     map[string]*AdminSession
	seq          uint64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		applications: make(map[string]*Application),
		settings:     make(map[ApplicationType]*ApplicationSettings),
		sessions:     make(map[string]*AdminSession),
	}
}

// CreateApplication stores a new pending application and returns it with a
// freshly assigned id and timestamps.
func (s *Store) CreateApplication(typ ApplicationType, discordUsername, discordUserID string, formData map[string]any) Application {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.seq++
	app := &Application{
		ID:              uuid.NewString(),
		Type:            typ,
		DiscordUsername: discordUsername,
		DiscordUserID:   discordUserID,
		FormData:        formData,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
		seq:             s.seq,
	}
	s.applications[app.ID] = app
	return *app
}

// Applications returns every application, newest first.
func (s *Store) Applications() []Application {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Application, 0, len(s.applications))
	for _, app := range s.applications {
		out = append(out, *app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq > out[j].seq })
	return out
}

// ApplicationByID returns the application with the given id.
func (s *Store) ApplicationByID(id string) (Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[id]
	if !ok {
		return Application{}, ErrNotFound
	}
	return *app, nil
}

// UpdateApplicationStatus records the review decision for an application.
// Unknown ids return ErrNotFound and create nothing; a second decision for
// the same application returns ErrAlreadyReviewed and changes nothing.
func (s *Store) UpdateApplicationStatus(id string, status Status, reviewedBy string) (Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[id]
	if !ok {
		return Application{}, ErrNotFound
	}
	if app.Status != StatusPending {
		return Application{}, ErrAlreadyReviewed
	}
	app.Status = status
	app.ReviewedBy = reviewedBy
	app.UpdatedAt = time.Now()
	return *app, nil
}

// Settings returns the settings record for a type, if one exists. Absence
// means the type is open.
func (s *Store) Settings(typ ApplicationType) (ApplicationSettings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.settings[typ]
	if !ok {
		return ApplicationSettings{}, false
	}
	return *set, true
}

// IsOpen reports whether submissions for a type are currently accepted.
func (s *Store) IsOpen(typ ApplicationType) bool {
	set, ok := s.Settings(typ)
	return !ok || set.IsOpen
}

// SetSettings updates the gate for a type, creating the record on first use.
func (s *Store) SetSettings(typ ApplicationType, isOpen bool) ApplicationSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.settings[typ]
	if !ok {
		set = &ApplicationSettings{
			ID:   uuid.NewString(),
			Type: typ,
		}
		s.settings[typ] = set
	}
	set.IsOpen = isOpen
	set.UpdatedAt = time.Now()
	return *set
}

// CreateSession opens a new admin session that expires after ttl.
func (s *Store) CreateSession(ttl time.Duration) AdminSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess := &AdminSession{
		ID:        uuid.NewString(),
		SessionID: uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.sessions[sess.SessionID] = sess
	return *sess
}

// Session returns the live session with the given session id. Expired
// sessions are treated as absent even before the sweeper removes them.
func (s *Store) Session(sessionID string) (AdminSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || time.Now().After(sess.ExpiresAt) {
		return AdminSession{}, false
	}
	return *sess, true
}

// DeleteSession removes a session. Deleting an unknown id is a no-op.
func (s *Store) DeleteSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
}

// SweepExpiredSessions removes every session past its expiry and returns the
// number removed.
func (s *Store) SweepExpiredSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
