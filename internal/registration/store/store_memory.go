package store

import (
	"context"
	"fmt"
	"sync"

	"vigil/internal/registration/models"
)

// In-memory stores keep dev wiring and tests lightweight. They intentionally
// favor clarity over performance; the mutex makes Insert and
// CompareAndSetStatus atomic the same way the SQL and Redis backends are.
type InMemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]models.RegistrationToken
}

func NewInMemoryTokenStore() *InMemoryTokenStore {
	return &InMemoryTokenStore{tokens: make(map[string]models.RegistrationToken)}
}

func (s *InMemoryTokenStore) Insert(_ context.Context, token *models.RegistrationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[token.ID]; exists {
		return fmt.Errorf("token %q: %w", token.ID, ErrConflict)
	}
	s.tokens[token.ID] = *token
	return nil
}

func (s *InMemoryTokenStore) FindByID(_ context.Context, id string) (*models.RegistrationToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if token, ok := s.tokens[id]; ok {
		return &token, nil
	}
	return nil, fmt.Errorf("token not found: %w", ErrNotFound)
}

func (s *InMemoryTokenStore) CompareAndSetStatus(_ context.Context, id string, expected, next models.TokenStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[id]
	if !ok {
		return fmt.Errorf("token not found: %w", ErrNotFound)
	}
	if token.Status != expected {
		return fmt.Errorf("token status is %s, expected %s: %w", token.Status, expected, ErrInvalidState)
	}
	token.Status = next
	s.tokens[id] = token
	return nil
}

type InMemoryEventStore struct {
	mu     sync.RWMutex
	events map[string]models.Event
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{events: make(map[string]models.Event)}
}

func (s *InMemoryEventStore) Insert(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[event.ID]; exists {
		return fmt.Errorf("event %q: %w", event.ID, ErrConflict)
	}
	s.events[event.ID] = *event
	return nil
}

func (s *InMemoryEventStore) FindByID(_ context.Context, id string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if event, ok := s.events[id]; ok {
		return &event, nil
	}
	return nil, fmt.Errorf("event not found: %w", ErrNotFound)
}
