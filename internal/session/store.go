// Package session implements the in-memory session store: per-session
// preference/itinerary/history state, TTL eviction, and per-session
// serialization.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"travelorch/internal/models"
)

// entry pairs a session with the mutex that serializes turns against it.
type entry struct {
	mu      sync.Mutex
	session *models.Session
}

// Store is the process-wide, mutex-guarded session map.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ttl      time.Duration
}

// New constructs a store with the given inactivity TTL.
func New(ttl time.Duration) *Store {
	return &Store{sessions: make(map[string]*entry), ttl: ttl}
}

// Create mints a new session with a random id.
func (s *Store) Create() *models.Session {
	now := time.Now()
	sess := &models.Session{ID: uuid.NewString(), CreatedAt: now, LastActivityAt: now}
	s.mu.Lock()
	s.sessions[sess.ID] = &entry{session: sess}
	s.mu.Unlock()
	return sess
}

// Get returns the session for id, touching last_activity_at, or nil if
// absent or expired. Expired entries are freed opportunistically.
func (s *Store) Get(id string) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if time.Since(e.session.LastActivityAt) > s.ttl {
		delete(s.sessions, id)
		return nil
	}
	e.session.LastActivityAt = time.Now()
	return e.session
}

// Lock acquires the per-session lock for id, returning an unlock function.
// Callers use this to serialize concurrent turns against the same
// session; it is a no-op (never blocks another session) for different ids.
func (s *Store) Lock(id string) func() {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return func() {}
	}
	e.mu.Lock()
	return e.mu.Unlock
}

// AppendMessage records one turn of conversational history.
func (s *Store) AppendMessage(sess *models.Session, role, content string) {
	sess.History = append(sess.History, models.HistoryEntry{Role: role, Content: content, At: time.Now()})
}

// UpdatePreferences merges new preferences into the session's existing
// preferences, never overwriting a non-empty slot with an empty one, and
// deep-unioning interests.
func (s *Store) UpdatePreferences(sess *models.Session, update models.Preferences) {
	if update.City != "" {
		sess.Preferences.City = update.City
	}
	if update.DurationDays != nil {
		sess.Preferences.DurationDays = update.DurationDays
	}
	if update.TravelMode != "" {
		sess.Preferences.TravelMode = update.TravelMode
	}
	if len(update.TravelDates) > 0 {
		sess.Preferences.TravelDates = update.TravelDates
	}
	if update.Pace != "" {
		sess.Preferences.Pace = update.Pace
	}
	sess.Preferences.Interests = unionStrings(sess.Preferences.Interests, update.Interests)
}

func unionStrings(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range a {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func (s *Store) SetItinerary(sess *models.Session, it *models.Itinerary) { sess.Itinerary = it }

func (s *Store) SetSources(sess *models.Session, sources []models.Source) { sess.Sources = sources }

func (s *Store) SetEvaluation(sess *models.Session, eval *models.Evaluation) { sess.Evaluation = eval }

// RecordClarifyingQuestion appends a slot name to the already-asked list
// and increments the monotonic clarification counter.
func (s *Store) RecordClarifyingQuestion(sess *models.Session, slot string) {
	sess.ClarifyingQuestionsAsked = append(sess.ClarifyingQuestionsAsked, slot)
	sess.ClarificationCount++
}

// AlreadyAsked reports whether slot has already been asked this session.
func AlreadyAsked(sess *models.Session, slot string) bool {
	for _, s := range sess.ClarifyingQuestionsAsked {
		if s == slot {
			return true
		}
	}
	return false
}

// Reset clears a session's preferences and itinerary while keeping its id
// and history.
func (s *Store) Reset(sess *models.Session) {
	sess.Preferences = models.Preferences{}
	sess.Itinerary = nil
	sess.Sources = nil
	sess.Evaluation = nil
	sess.Confirmed = false
	sess.ClarifyingQuestionsAsked = nil
	sess.ClarificationCount = 0
}

// CleanupExpired removes every session whose inactivity exceeds the TTL.
// It takes the store lock itself, so it is called between other store
// operations (e.g. on a timer), never from inside Get.
func (s *Store) CleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, e := range s.sessions {
		if now.Sub(e.session.LastActivityAt) > s.ttl {
			delete(s.sessions, id)
		}
	}
}
