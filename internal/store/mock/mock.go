// Package mock provides an in-memory store implementing every storage
// contract, with error injection for tests.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"classattend/internal/attendance"
	"classattend/internal/face"
	"classattend/internal/identity"
	"classattend/internal/session"
)

type recordKey struct {
	session string
	student string
}

// Store is a mock implementation of the identity, session, ledger and
// event contracts.
type Store struct {
	mu         sync.RWMutex
	identities map[string]identity.Identity
	sessions   map[string]session.Session
	records    map[recordKey]attendance.Record
	events     []attendance.Event

	// Error injection
	CreateIdentityError error
	GetIdentityError    error
	ListError           error
	GetSessionError     error
	UpsertError         error
	SummaryError        error
	AppendEventError    error
}

// NewStore creates an empty mock store.
func NewStore() *Store {
	return &Store{
		identities: make(map[string]identity.Identity),
		sessions:   make(map[string]session.Session),
		records:    make(map[recordKey]attendance.Record),
	}
}

// AddIdentity seeds an identity without validation.
func (m *Store) AddIdentity(id identity.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[id.UID] = id
}

// AddSession seeds a session without validation.
func (m *Store) AddSession(s session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

// RecordCount returns the number of ledger rows.
func (m *Store) RecordCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Events returns a copy of appended events.
func (m *Store) Events() []attendance.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]attendance.Event(nil), m.events...)
}

// CreateIdentity stores a new identity.
func (m *Store) CreateIdentity(_ context.Context, id identity.Identity) error {
	if m.CreateIdentityError != nil {
		return m.CreateIdentityError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[id.UID]; ok {
		return identity.ErrAlreadyEnrolled
	}
	for _, other := range m.identities {
		if (id.StudentID != "" && other.StudentID == id.StudentID) || (id.FacultyID != "" && other.FacultyID == id.FacultyID) {
			return identity.ErrSecondaryIDTaken
		}
	}
	m.identities[id.UID] = id
	return nil
}

// GetIdentity returns identity.ErrNotFound for unknown uids.
func (m *Store) GetIdentity(_ context.Context, uid string) (*identity.Identity, error) {
	if m.GetIdentityError != nil {
		return nil, m.GetIdentityError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.identities[uid]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &id, nil
}

// ReplaceDescriptor overwrites a descriptor.
func (m *Store) ReplaceDescriptor(_ context.Context, uid string, d face.Descriptor, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.identities[uid]
	if !ok {
		return identity.ErrNotFound
	}
	id.Descriptor = d.Clone()
	id.EnrolledAt = at
	m.identities[uid] = id
	return nil
}

// ListIdentities returns identities of a role ordered by name.
func (m *Store) ListIdentities(_ context.Context, role identity.Role) ([]identity.Identity, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []identity.Identity
	for _, id := range m.identities {
		if id.Role == role {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].UID < out[j].UID
	})
	return out, nil
}

// ListDescriptors returns descriptors in enrollment order.
func (m *Store) ListDescriptors(_ context.Context) ([]face.Registered, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]identity.Identity, 0, len(m.identities))
	for _, id := range m.identities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if !ids[i].EnrolledAt.Equal(ids[j].EnrolledAt) {
			return ids[i].EnrolledAt.Before(ids[j].EnrolledAt)
		}
		return ids[i].UID < ids[j].UID
	})
	out := make([]face.Registered, 0, len(ids))
	for _, id := range ids {
		out = append(out, face.Registered{Owner: id.UID, Descriptor: id.Descriptor})
	}
	return out, nil
}

// CreateSession stores a session.
func (m *Store) CreateSession(_ context.Context, s session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

// GetSession returns session.ErrNotFound for unknown or malformed ids.
func (m *Store) GetSession(_ context.Context, id string) (*session.Session, error) {
	if m.GetSessionError != nil {
		return nil, m.GetSessionError
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, session.ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return &s, nil
}

// ListSessions returns sessions newest first.
func (m *Store) ListSessions(_ context.Context, facultyID string) ([]session.Session, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []session.Session
	for _, s := range m.sessions {
		if facultyID == "" || s.FacultyID == facultyID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	return out, nil
}

// UpsertPresent marks a student present.
func (m *Store) UpsertPresent(_ context.Context, sessionID, studentUID string, at time.Time) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey{sessionID, studentUID}] = attendance.Record{
		SessionID:  sessionID,
		StudentUID: studentUID,
		Status:     attendance.StatusPresent,
		MarkedAt:   at,
	}
	return nil
}

// GetRecord returns nil, nil when no row exists.
func (m *Store) GetRecord(_ context.Context, sessionID, studentUID string) (*attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[recordKey{sessionID, studentUID}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// SubjectCounts tallies sessions per subject and the student's present marks.
func (m *Store) SubjectCounts(_ context.Context, studentUID string) ([]attendance.SubjectCount, error) {
	if m.SummaryError != nil {
		return nil, m.SummaryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	bySubject := make(map[string]*attendance.SubjectCount)
	for _, s := range m.sessions {
		c, ok := bySubject[s.Subject]
		if !ok {
			c = &attendance.SubjectCount{Subject: s.Subject}
			bySubject[s.Subject] = c
		}
		c.Total++
		if rec, ok := m.records[recordKey{s.ID, studentUID}]; ok && rec.Status == attendance.StatusPresent {
			c.Attended++
		}
	}
	out := make([]attendance.SubjectCount, 0, len(bySubject))
	for _, c := range bySubject {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out, nil
}

// Roster lists present students of a session.
func (m *Store) Roster(_ context.Context, sessionID string) ([]attendance.RosterEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []attendance.RosterEntry
	for k, rec := range m.records {
		if k.session != sessionID || rec.Status != attendance.StatusPresent {
			continue
		}
		id := m.identities[k.student]
		out = append(out, attendance.RosterEntry{
			StudentUID: k.student,
			FullName:   id.FullName,
			StudentID:  id.StudentID,
			MarkedAt:   rec.MarkedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarkedAt.Before(out[j].MarkedAt) })
	return out, nil
}

// AppendEvent records an event once.
func (m *Store) AppendEvent(_ context.Context, evt attendance.Event) error {
	if m.AppendEventError != nil {
		return m.AppendEventError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == evt.ID {
			return nil
		}
	}
	m.events = append(m.events, evt)
	return nil
}

// ListEvents returns events newest first.
func (m *Store) ListEvents(_ context.Context, sessionID string, limit int) ([]attendance.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []attendance.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		if sessionID == "" || m.events[i].SessionID == sessionID {
			out = append(out, m.events[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
