package flow

import (
	"testing"
	"time"

	"github.com/StayPipe/StayPipe/internal/models"
	"github.com/StayPipe/StayPipe/internal/store"
)

func TestGetOrCreateConversation(t *testing.T) {
	st := store.NewInMemoryStore()
	m := NewStateManager(st)

	conv, err := m.GetOrCreateConversation("whatsapp:+41787192338", 1)
	if err != nil {
		t.Fatalf("GetOrCreateConversation failed: %v", err)
	}
	if conv.ID == "" || !conv.State.IsIdle() {
		t.Fatalf("unexpected new conversation: %+v", conv)
	}
	if conv.Context.Language != models.DefaultLanguage {
		t.Errorf("new conversation should carry the default language, got %q", conv.Context.Language)
	}

	again, err := m.GetOrCreateConversation("whatsapp:+41787192338", 1)
	if err != nil {
		t.Fatalf("GetOrCreateConversation failed: %v", err)
	}
	if again.ID != conv.ID {
		t.Errorf("same address and scope should reuse the conversation: %s vs %s", again.ID, conv.ID)
	}
}

func TestSetStateRejectsInvalidState(t *testing.T) {
	st := store.NewInMemoryStore()
	m := NewStateManager(st)
	conv, _ := m.GetOrCreateConversation("whatsapp:+41787192338", 1)

	err := m.SetState(conv, models.ConversationState{Flow: models.FlowRequestCreation, Step: models.StepBirthdate})
	if err == nil {
		t.Fatalf("expected invalid state to be rejected")
	}
	if !conv.State.IsIdle() {
		t.Errorf("failed transition must not change the state, got %s", conv.State)
	}
}

func TestResetToIdleClearsSubFlowDrafts(t *testing.T) {
	st := store.NewInMemoryStore()
	m := NewStateManager(st)
	conv, _ := m.GetOrCreateConversation("whatsapp:+41787192338", 1)

	booking := &models.BookingDraft{CheckInDate: "2026-09-10"}
	if err := st.UpdateContext(conv.ID, models.ConversationContext{
		Booking:             booking,
		GuestIdentification: &models.GuestIdentificationDraft{Step: models.StepName},
		ItemCreation:        &models.ItemCreationDraft{Responsible: "Juan"},
	}); err != nil {
		t.Fatalf("UpdateContext failed: %v", err)
	}
	if err := m.SetState(conv, models.ConversationState{Flow: models.FlowGuestIdentification, Step: models.StepName}); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}

	if err := m.ResetToIdle(conv); err != nil {
		t.Fatalf("ResetToIdle failed: %v", err)
	}
	ctx := st.GetContext(conv.ID)
	if ctx.GuestIdentification != nil || ctx.ItemCreation != nil {
		t.Errorf("sub-flow drafts should be cleared: %+v", ctx)
	}
	if ctx.Booking == nil || ctx.Booking.CheckInDate != "2026-09-10" {
		t.Errorf("booking draft should survive the reset: %+v", ctx.Booking)
	}
	stored, _ := st.GetConversation(conv.ID)
	if !stored.State.IsIdle() {
		t.Errorf("expected idle after reset, got %s", stored.State)
	}
}

func TestResetStaleSubFlows(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC)
	m := NewStateManager(st, WithStateClock(func() time.Time { return now }))

	// A conversation stuck three hours in guest identification.
	stale, _ := m.GetOrCreateConversation("whatsapp:+41787192338", 1)
	if err := m.SetState(stale, models.ConversationState{Flow: models.FlowGuestIdentification, Step: models.StepName}); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	stale.LastMessageAt = now.Add(-3 * time.Hour)
	if err := st.SaveConversation(*stale); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	// A recent sub-flow conversation that must survive.
	fresh, _ := m.GetOrCreateConversation("whatsapp:+573001112233", 1)
	if err := m.SetState(fresh, models.ConversationState{Flow: models.FlowRequestCreation, Step: models.StepWaitingForResponsible}); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}

	if got := m.ResetStaleSubFlows(2 * time.Hour); got != 1 {
		t.Fatalf("ResetStaleSubFlows = %d, want 1", got)
	}

	staleStored, _ := st.GetConversation(stale.ID)
	if !staleStored.State.IsIdle() {
		t.Errorf("stale conversation should be idle, got %s", staleStored.State)
	}
	freshStored, _ := st.GetConversation(fresh.ID)
	if freshStored.State.Flow != models.FlowRequestCreation {
		t.Errorf("fresh conversation should keep its flow, got %s", freshStored.State)
	}
}
