package flow

import (
	"strings"
	"testing"
	"time"

	"github.com/StayPipe/StayPipe/internal/guest"
	"github.com/StayPipe/StayPipe/internal/models"
	"github.com/StayPipe/StayPipe/internal/store"
)

func guestReservation(id int64, phone, birthdate string) models.Reservation {
	now := time.Now()
	return models.Reservation{
		ID:               id,
		ScopeID:          1,
		GuestName:        "Maria Fernanda Lopez",
		GuestPhone:       phone,
		GuestNationality: "Colombia",
		GuestBirthdate:   birthdate,
		CheckInDate:      now.Add(-24 * time.Hour),
		CheckOutDate:     now.Add(48 * time.Hour),
		Status:           models.ReservationStatusConfirmed,
		PaymentStatus:    models.PaymentStatusPaid,
		DoorPin:          "4711",
	}
}

func newGuestFlow(st *store.InMemoryStore) *GuestIdentification {
	return NewGuestIdentification(st, guest.NewService(st), NewStateManager(st), NewCatalog(nil))
}

func TestBeginResolvesByPhoneDirectly(t *testing.T) {
	st := store.NewInMemoryStore()
	st.AddReservation(guestReservation(1, "+41787192338", ""))
	conv := seedIdleConversation(t, st)
	g := newGuestFlow(st)

	reply, err := g.Begin(conv, models.GuestRequestCode, "code", models.LanguageEnglish)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !strings.Contains(reply, "4711") {
		t.Errorf("expected direct status reply with code: %q", reply)
	}
	if !conv.State.IsIdle() {
		t.Errorf("phone-resolved request should not start the sub-flow, state %s", conv.State)
	}
}

func TestBeginStartsQuestionsForUnknownPhone(t *testing.T) {
	st := store.NewInMemoryStore()
	conv := seedIdleConversation(t, st)
	g := newGuestFlow(st)

	reply, err := g.Begin(conv, models.GuestRequestPincode, "pin", models.LanguageSpanish)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !strings.Contains(reply, "nombre") {
		t.Errorf("expected first name question: %q", reply)
	}
	if conv.State.Flow != models.FlowPincodeIdentification || conv.State.Step != models.StepName {
		t.Errorf("unexpected state %s", conv.State)
	}
	draft := st.GetContext(conv.ID).GuestIdentification
	if draft == nil || draft.RequestType != models.GuestRequestPincode || draft.OriginalMessage != "pin" {
		t.Errorf("draft not persisted: %+v", draft)
	}
}

func TestIdentificationHappyPath(t *testing.T) {
	st := store.NewInMemoryStore()
	st.AddReservation(guestReservation(1, "+573001112233", ""))
	conv := seedIdleConversation(t, st)
	g := newGuestFlow(st)

	if _, err := g.Begin(conv, models.GuestRequestCode, "code", models.LanguageEnglish); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	reply, err := g.HandleStep(conv, "Maria", models.LanguageEnglish)
	if err != nil {
		t.Fatalf("name step failed: %v", err)
	}
	if !strings.Contains(reply, "last name") {
		t.Errorf("expected last name question: %q", reply)
	}

	reply, err = g.HandleStep(conv, "Lopez", models.LanguageEnglish)
	if err != nil {
		t.Fatalf("lastname step failed: %v", err)
	}
	if !strings.Contains(reply, "nationality") {
		t.Errorf("expected nationality question: %q", reply)
	}

	reply, err = g.HandleStep(conv, "Colombia", models.LanguageEnglish)
	if err != nil {
		t.Fatalf("nationality step failed: %v", err)
	}
	if !strings.Contains(reply, "4711") {
		t.Errorf("expected resolved status reply: %q", reply)
	}
	if !conv.State.IsIdle() {
		t.Errorf("resolution should reset to idle, state %s", conv.State)
	}
	if st.GetContext(conv.ID).GuestIdentification != nil {
		t.Errorf("draft should be cleared after resolution")
	}
}

func TestIdentificationRejectsShortAnswers(t *testing.T) {
	st := store.NewInMemoryStore()
	conv := seedIdleConversation(t, st)
	g := newGuestFlow(st)

	if _, err := g.Begin(conv, models.GuestRequestCode, "code", models.LanguageEnglish); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	reply, err := g.HandleStep(conv, "M", models.LanguageEnglish)
	if err != nil {
		t.Fatalf("short answer failed: %v", err)
	}
	if !strings.Contains(reply, "first name") {
		t.Errorf("short answer should repeat the question: %q", reply)
	}
	if conv.State.Step != models.StepName {
		t.Errorf("short answer must not advance, state %s", conv.State)
	}
}

func TestIdentificationNotFound(t *testing.T) {
	st := store.NewInMemoryStore()
	conv := seedIdleConversation(t, st)
	g := newGuestFlow(st)

	if _, err := g.Begin(conv, models.GuestRequestCode, "code", models.LanguageEnglish); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	mustStep(t, g, conv, "Maria")
	mustStep(t, g, conv, "Lopez")
	reply, err := g.HandleStep(conv, "Colombia", models.LanguageEnglish)
	if err != nil {
		t.Fatalf("nationality step failed: %v", err)
	}
	if !strings.Contains(reply, "could not find") {
		t.Errorf("expected not-found reply: %q", reply)
	}
	if !conv.State.IsIdle() {
		t.Errorf("not-found should reset to idle, state %s", conv.State)
	}
}

func TestIdentificationBirthdateDisambiguation(t *testing.T) {
	st := store.NewInMemoryStore()
	st.AddReservation(guestReservation(1, "+573001112233", "1990-05-12"))
	st.AddReservation(guestReservation(2, "+573004445566", "1985-01-30"))
	conv := seedIdleConversation(t, st)
	g := newGuestFlow(st)

	if _, err := g.Begin(conv, models.GuestRequestCode, "code", models.LanguageEnglish); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	mustStep(t, g, conv, "Maria")
	mustStep(t, g, conv, "Lopez")
	reply, err := g.HandleStep(conv, "Colombia", models.LanguageEnglish)
	if err != nil {
		t.Fatalf("nationality step failed: %v", err)
	}
	if !strings.Contains(reply, "date of birth") {
		t.Errorf("multiple matches should ask for birthdate: %q", reply)
	}
	if conv.State.Step != models.StepBirthdate {
		t.Fatalf("expected birthdate step, state %s", conv.State)
	}

	// Garbage input re-asks without advancing.
	reply, err = g.HandleStep(conv, "no idea", models.LanguageEnglish)
	if err != nil {
		t.Fatalf("invalid birthdate failed: %v", err)
	}
	if !strings.Contains(reply, "date of birth") {
		t.Errorf("invalid birthdate should re-ask: %q", reply)
	}

	reply, err = g.HandleStep(conv, "12.05.1990", models.LanguageEnglish)
	if err != nil {
		t.Fatalf("birthdate step failed: %v", err)
	}
	if !strings.Contains(reply, "4711") {
		t.Errorf("expected resolution after birthdate: %q", reply)
	}
	if !conv.State.IsIdle() {
		t.Errorf("resolution should reset to idle, state %s", conv.State)
	}
}

func TestIdentificationSkipHandsOverToReception(t *testing.T) {
	st := store.NewInMemoryStore()
	st.AddReservation(guestReservation(1, "+573001112233", ""))
	st.AddReservation(guestReservation(2, "+573004445566", ""))
	conv := seedIdleConversation(t, st)
	g := newGuestFlow(st)

	if _, err := g.Begin(conv, models.GuestRequestCode, "code", models.LanguageEnglish); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	mustStep(t, g, conv, "Maria")
	mustStep(t, g, conv, "Lopez")
	mustStep(t, g, conv, "Colombia")

	reply, err := g.HandleStep(conv, "skip", models.LanguageEnglish)
	if err != nil {
		t.Fatalf("skip failed: %v", err)
	}
	if !strings.Contains(reply, "contact reception") {
		t.Errorf("skip should hand over to reception: %q", reply)
	}
	if !strings.Contains(reply, "#1") || !strings.Contains(reply, "#2") {
		t.Errorf("handover should list the candidates: %q", reply)
	}
	if !conv.State.IsIdle() {
		t.Errorf("skip should reset to idle, state %s", conv.State)
	}
}

func mustStep(t *testing.T, g *GuestIdentification, conv *models.Conversation, answer string) {
	t.Helper()
	if _, err := g.HandleStep(conv, answer, models.LanguageEnglish); err != nil {
		t.Fatalf("step %q failed: %v", answer, err)
	}
}
