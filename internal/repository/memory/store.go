package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/mamadbah2/moulinette/internal/domain/models"
	"github.com/mamadbah2/moulinette/internal/repository"
)

// Store keeps sessions and datasets in process memory.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	datasets map[string]map[string][]byte
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]models.Session),
		datasets: make(map[string]map[string][]byte),
	}
}

// SaveSession inserts or replaces a session.
func (s *Store) SaveSession(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.HeaderLines = slices.Clone(session.HeaderLines)
	s.sessions[session.ID] = session
	return nil
}

// GetSession returns a copy of the stored session.
func (s *Store) GetSession(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	session.HeaderLines = slices.Clone(session.HeaderLines)
	return &session, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(_ context.Context) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	slices.SortFunc(out, func(a, b models.Session) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// DeleteSession removes a session and its datasets.
func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.sessions, id)
	delete(s.datasets, id)
	return nil
}

// SaveDataset stores a copy of payload under the session.
func (s *Store) SaveDataset(_ context.Context, sessionID, name string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.datasets[sessionID] == nil {
		s.datasets[sessionID] = make(map[string][]byte)
	}
	s.datasets[sessionID][name] = slices.Clone(payload)
	return nil
}

// LoadDataset returns a copy of a stored payload.
func (s *Store) LoadDataset(_ context.Context, sessionID, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.datasets[sessionID][name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return slices.Clone(payload), nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }
