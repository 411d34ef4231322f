// Package appstate is the process-wide roster cache shared by the
// check-in/out and attendance services.
package appstate

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/stemsi/checkio-backend/internal/model"
)

// State caches students and users by id. CheckIOService is the only
// writer of the checked-in flag; other services only add or refresh rows.
type State struct {
	mu          sync.RWMutex
	studentByID map[string]model.Student
	userByID    map[string]model.User
	complete    bool

	generation atomic.Uint64
}

// New creates an empty cache.
func New() *State {
	return &State{
		studentByID: make(map[string]model.Student),
		userByID:    make(map[string]model.User),
	}
}

// ReplaceStudents swaps in a full roster.
func (s *State) ReplaceStudents(students []model.Student) {
	m := make(map[string]model.Student, len(students))
	for _, st := range students {
		m[st.ID] = st
	}
	s.mu.Lock()
	s.studentByID = m
	s.complete = true
	s.mu.Unlock()
}

// PutStudents adds or refreshes students.
func (s *State) PutStudents(students ...model.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range students {
		s.studentByID[st.ID] = st
	}
}

// Complete reports whether the cache holds the whole roster.
func (s *State) Complete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.complete
}

// Student returns a cached student.
func (s *State) Student(id string) (model.Student, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.studentByID[id]
	return st, ok
}

// Students returns a snapshot of every cached student.
func (s *State) Students() []model.Student {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Student, 0, len(s.studentByID))
	for _, st := range s.studentByID {
		out = append(out, st)
	}
	return out
}

// SetCheckedIn flips the flag on cached students and returns the ids that
// were not cached.
func (s *State) SetCheckedIn(ids []string, checkedIn bool) (missing []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		st, ok := s.studentByID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		st.CheckedIn = checkedIn
		s.studentByID[id] = st
	}
	return missing
}

// EvictStudents drops entries so the next read reloads them from the store.
func (s *State) EvictStudents(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.studentByID, id)
	}
	if len(ids) > 0 {
		s.complete = false
	}
}

// RemoveStudent forgets a deleted student.
func (s *State) RemoveStudent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.studentByID, id)
}

// MissingStudents returns the distinct ids that are not cached.
func (s *State) MissingStudents(ids []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return missing(ids, func(id string) bool {
		_, ok := s.studentByID[id]
		return ok
	})
}

// PutUsers adds or refreshes users. PINs are never cached.
func (s *State) PutUsers(users ...model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		u.PIN = ""
		s.userByID[u.ID] = u
	}
}

// User returns a cached user.
func (s *State) User(id string) (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.userByID[id]
	return u, ok
}

// RemoveUser forgets a deleted user.
func (s *State) RemoveUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userByID, id)
}

// MissingUsers returns the distinct ids that are not cached.
func (s *State) MissingUsers(ids []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return missing(ids, func(id string) bool {
		_, ok := s.userByID[id]
		return ok
	})
}

// NextGeneration numbers a board publication. Later calls return larger
// numbers.
func (s *State) NextGeneration() uint64 {
	return s.generation.Add(1)
}

func missing(ids []string, cached func(string) bool) []string {
	var out []string
	for _, id := range ids {
		if id == "" || cached(id) || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
