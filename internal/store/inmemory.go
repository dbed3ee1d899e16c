// This file implements an in-memory store used by tests and local runs.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/StayPipe/StayPipe/internal/models"
)

// InMemoryStore keeps everything in process memory behind a mutex. It is
// safe for concurrent use across conversations.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]models.Conversation
	users         []models.User
	reservations  []models.Reservation
	requests      []models.RequestItem
	tasks         []models.TaskItem
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]models.Conversation),
	}
}

// AddUser seeds a directory user. Test helper.
func (s *InMemoryStore) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, u)
}

// AddReservation seeds a reservation projection. Test helper.
func (s *InMemoryStore) AddReservation(r models.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations = append(s.reservations, r)
}

// GetConversation retrieves a conversation by id. Returns (nil, nil) when absent.
func (s *InMemoryStore) GetConversation(id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	out := conv
	out.Context = conv.Context.Clone()
	return &out, nil
}

// GetConversationByAddress retrieves the conversation for an address+scope pair.
func (s *InMemoryStore) GetConversationByAddress(address string, scopeID int64) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, conv := range s.conversations {
		if conv.ChannelAddress == address && conv.ScopeID == scopeID {
			out := conv
			out.Context = conv.Context.Clone()
			return &out, nil
		}
	}
	return nil, nil
}

// SaveConversation stores or updates a conversation.
func (s *InMemoryStore) SaveConversation(conv models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv.Context = conv.Context.Clone()
	s.conversations[conv.ID] = conv
	return nil
}

// ListStaleSubFlowConversations returns conversations stuck in a non-idle
// flow with no message since before.
func (s *InMemoryStore) ListStaleSubFlowConversations(before time.Time) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var conversations []models.Conversation
	for _, conv := range s.conversations {
		if conv.State.IsIdle() || !conv.LastMessageAt.Before(before) {
			continue
		}
		out := conv
		out.Context = conv.Context.Clone()
		conversations = append(conversations, out)
	}
	return conversations, nil
}

// GetContext returns the context document, defaulting on absence.
func (s *InMemoryStore) GetContext(conversationID string) models.ConversationContext {
	return getContext(s, conversationID)
}

// UpdateContext merges partial into the stored context document.
func (s *InMemoryStore) UpdateContext(conversationID string, partial models.ConversationContext) error {
	return updateContext(s, conversationID, partial)
}

// ClearContext resets the context document to its default.
func (s *InMemoryStore) ClearContext(conversationID string) error {
	return clearContext(s, conversationID)
}

// FindUserByAddress resolves a directory user for a channel address.
func (s *InMemoryStore) FindUserByAddress(address string, scopeID int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.users {
		if s.users[i].ScopeID == scopeID && phonesMatch(s.users[i].Phone, address) {
			u := s.users[i]
			return &u, nil
		}
	}
	for i := range s.users {
		if phonesMatch(s.users[i].Phone, address) {
			if s.users[i].ScopeID != scopeID {
				return nil, nil
			}
			u := s.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

// FindActiveReservationByPhone returns the newest active-stay reservation
// whose guest phone matches the address.
func (s *InMemoryStore) FindActiveReservationByPhone(phone string, scopeID int64) (*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	var best *models.Reservation
	for i := range s.reservations {
		r := s.reservations[i]
		if r.ScopeID != scopeID || !isActiveStay(r, now) || !phonesMatch(r.GuestPhone, phone) {
			continue
		}
		if best == nil || r.CheckInDate.After(best.CheckInDate) {
			match := r
			best = &match
		}
	}
	return best, nil
}

// FindReservationsByGuestDetails returns active-stay reservations matching
// the fuzzy guest details filter, newest check-in first.
func (s *InMemoryStore) FindReservationsByGuestDetails(q GuestQuery) ([]models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}
	var matches []models.Reservation
	for _, r := range s.reservations {
		if r.ScopeID != q.ScopeID || !isActiveStay(r, now) {
			continue
		}
		if matchesGuestDetails(r, q) {
			matches = append(matches, r)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CheckInDate.After(matches[j].CheckInDate)
	})
	return matches, nil
}

// CreateRequest stores a new request item.
func (s *InMemoryStore) CreateRequest(item models.RequestItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, item)
	return nil
}

// CreateTask stores a new task item.
func (s *InMemoryStore) CreateTask(item models.TaskItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, item)
	return nil
}

// ListOpenRequests retrieves open requests for a scope.
func (s *InMemoryStore) ListOpenRequests(scopeID int64) ([]models.RequestItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []models.RequestItem
	for _, item := range s.requests {
		if item.ScopeID == scopeID && item.Status == models.ItemStatusOpen {
			items = append(items, item)
		}
	}
	return items, nil
}

// ListOpenTasks retrieves open tasks for a scope.
func (s *InMemoryStore) ListOpenTasks(scopeID int64) ([]models.TaskItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []models.TaskItem
	for _, item := range s.tasks {
		if item.ScopeID == scopeID && item.Status == models.ItemStatusOpen {
			items = append(items, item)
		}
	}
	return items, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
