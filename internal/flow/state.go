package flow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/StayPipe/StayPipe/internal/models"
	"github.com/StayPipe/StayPipe/internal/store"
	"github.com/StayPipe/StayPipe/internal/util"
)

// StateManager owns conversation records and their state transitions. All
// mutations go through it so every path persists before replying.
type StateManager struct {
	store store.Store
	clock func() time.Time
}

// StateManagerOption configures state manager creation.
type StateManagerOption func(*StateManager)

// WithStateClock overrides the time source.
func WithStateClock(clock func() time.Time) StateManagerOption {
	return func(m *StateManager) { m.clock = clock }
}

// NewStateManager creates a state manager backed by the given store.
func NewStateManager(st store.Store, opts ...StateManagerOption) *StateManager {
	m := &StateManager{store: st, clock: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreateConversation loads the conversation for an address within a
// scope, creating an idle one on first contact. The last-message timestamp
// is touched either way.
func (m *StateManager) GetOrCreateConversation(address string, scopeID int64) (*models.Conversation, error) {
	conv, err := m.store.GetConversationByAddress(address, scopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation for %s: %w", address, err)
	}
	now := m.clock()
	if conv == nil {
		conv = &models.Conversation{
			ID:             util.GenerateConversationID(),
			ChannelAddress: address,
			ScopeID:        scopeID,
			State:          models.IdleState(),
			Context:        models.ConversationContext{Language: models.DefaultLanguage},
			CreatedAt:      now,
			LastMessageAt:  now,
		}
		if err := m.store.SaveConversation(*conv); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		slog.Debug("StateManager.GetOrCreateConversation created", "conversationID", conv.ID, "address", address, "scopeID", scopeID)
		return conv, nil
	}
	conv.LastMessageAt = now
	if err := m.store.SaveConversation(*conv); err != nil {
		return nil, fmt.Errorf("failed to touch conversation %s: %w", conv.ID, err)
	}
	return conv, nil
}

// SetState validates and persists a state transition.
func (m *StateManager) SetState(conv *models.Conversation, state models.ConversationState) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("invalid target state %s: %w", state, err)
	}
	previous := conv.State
	conv.State = state
	// The context document may have been updated through the store since
	// this record was loaded. Re-read it so the save cannot clobber it.
	conv.Context = m.store.GetContext(conv.ID)
	if err := m.store.SaveConversation(*conv); err != nil {
		conv.State = previous
		return fmt.Errorf("failed to persist state %s: %w", state, err)
	}
	slog.Debug("StateManager.SetState", "conversationID", conv.ID, "from", previous.String(), "to", state.String())
	return nil
}

// AttachUser links a resolved staff user to the conversation.
func (m *StateManager) AttachUser(conv *models.Conversation, userID int64) error {
	if conv.UserID != nil && *conv.UserID == userID {
		return nil
	}
	conv.UserID = &userID
	conv.Context = m.store.GetContext(conv.ID)
	if err := m.store.SaveConversation(*conv); err != nil {
		return fmt.Errorf("failed to attach user %d: %w", userID, err)
	}
	return nil
}

// ResetToIdle returns the conversation to the idle state and drops the
// sub-flow draft that was in progress. The booking draft and language
// survive so a later message can pick the thread back up.
func (m *StateManager) ResetToIdle(conv *models.Conversation) error {
	conv.State = models.IdleState()
	conv.Context = m.store.GetContext(conv.ID)
	conv.Context.GuestIdentification = nil
	conv.Context.ItemCreation = nil
	if err := m.store.SaveConversation(*conv); err != nil {
		return fmt.Errorf("failed to reset conversation %s: %w", conv.ID, err)
	}
	slog.Debug("StateManager.ResetToIdle", "conversationID", conv.ID)
	return nil
}

// ResetStaleSubFlows returns conversations abandoned mid-flow to idle.
// A guest who walks away during identification or item creation would
// otherwise have their next message swallowed by a step prompt. Returns
// the number of conversations reset.
func (m *StateManager) ResetStaleSubFlows(maxAge time.Duration) int {
	before := m.clock().Add(-maxAge)
	conversations, err := m.store.ListStaleSubFlowConversations(before)
	if err != nil {
		slog.Error("StateManager.ResetStaleSubFlows listing failed", "error", err)
		return 0
	}
	reset := 0
	for i := range conversations {
		conv := conversations[i]
		if err := m.ResetToIdle(&conv); err != nil {
			slog.Error("StateManager.ResetStaleSubFlows reset failed", "conversationID", conv.ID, "error", err)
			continue
		}
		reset++
	}
	if reset > 0 {
		slog.Info("StateManager.ResetStaleSubFlows completed", "reset", reset)
	}
	return reset
}

// ForceIdle is the fail-safe: a best-effort reset used on error paths
// where the caller is already returning an apology. Persistence faults are
// logged, never propagated.
func (m *StateManager) ForceIdle(conv *models.Conversation) {
	if err := m.ResetToIdle(conv); err != nil {
		slog.Error("StateManager.ForceIdle reset failed", "conversationID", conv.ID, "error", err)
	}
}
