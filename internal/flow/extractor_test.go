package flow

import (
	"context"
	"testing"

	"github.com/StayPipe/StayPipe/internal/models"
	"github.com/StayPipe/StayPipe/internal/store"
)

// fakeBookingService records bookings and serves a fixed snapshot.
type fakeBookingService struct {
	snapshot     *models.AvailabilitySnapshot
	created      []models.BookingRequest
	confirmation string
}

func (f *fakeBookingService) CreateBooking(_ context.Context, req models.BookingRequest) (string, error) {
	f.created = append(f.created, req)
	return f.confirmation, nil
}

func (f *fakeBookingService) CheckAvailability(_ context.Context, _ int64, _, _ string) (*models.AvailabilitySnapshot, error) {
	return f.snapshot, nil
}

func seedIdleConversation(t *testing.T, st *store.InMemoryStore) *models.Conversation {
	t.Helper()
	conv := models.Conversation{
		ID:             "conv_test",
		ChannelAddress: "whatsapp:+41787192338",
		ScopeID:        1,
		State:          models.IdleState(),
		Context:        models.ConversationContext{Language: models.LanguageSpanish},
	}
	if err := st.SaveConversation(conv); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}
	return &conv
}

func TestExtractAccumulatesAcrossMessages(t *testing.T) {
	st := store.NewInMemoryStore()
	conv := seedIdleConversation(t, st)
	booking := &fakeBookingService{snapshot: testSnapshot(), confirmation: "Reserva confirmada #77"}
	e := NewExtractor(st, testParser(), booking)
	ctx := context.Background()

	// Dates arrive, the availability snapshot is fetched and persisted.
	result, err := e.Extract(ctx, conv, "hola, quiero reservar para mañana, 1 noche", models.LanguageSpanish)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.BookingFired {
		t.Fatalf("incomplete draft must not fire")
	}
	persisted := st.GetContext(conv.ID)
	if persisted.Booking == nil || persisted.Booking.CheckInDate != "2026-08-30" || persisted.Booking.CheckOutDate != "2026-08-31" {
		t.Fatalf("dates not persisted: %+v", persisted.Booking)
	}
	if persisted.Booking.LastAvailabilityCheck == nil {
		t.Fatalf("availability snapshot not persisted")
	}

	// Room choice resolves against the persisted snapshot. Still no
	// trigger, so nothing fires.
	result, err = e.Extract(ctx, conv, "una habitación privada", models.LanguageSpanish)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.BookingFired {
		t.Fatalf("message without trigger must not fire")
	}
	persisted = st.GetContext(conv.ID)
	if persisted.Booking.CategoryID != 10 || persisted.Booking.RoomType != models.RoomTypePrivate {
		t.Fatalf("room not resolved: %+v", persisted.Booking)
	}

	// Confirmation over an anchored draft fires the booking.
	result, err = e.Extract(ctx, conv, "sí", models.LanguageSpanish)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !result.BookingFired {
		t.Fatalf("complete confirmed draft should fire")
	}
	if result.Confirmation != "Reserva confirmada #77" {
		t.Errorf("unexpected confirmation: %q", result.Confirmation)
	}
	if len(booking.created) != 1 {
		t.Fatalf("expected 1 booking, got %d", len(booking.created))
	}
	req := booking.created[0]
	if req.CheckInDate != "2026-08-30" || req.CheckOutDate != "2026-08-31" || req.CategoryID != 10 {
		t.Errorf("booking request fields wrong: %+v", req)
	}
	if req.GuestName != PlaceholderGuestName {
		t.Errorf("missing name should fall back to placeholder, got %q", req.GuestName)
	}
	if req.FallbackAddress != conv.ChannelAddress {
		t.Errorf("fallback address wrong: %q", req.FallbackAddress)
	}

	// The fired booking consumed the draft.
	persisted = st.GetContext(conv.ID)
	if persisted.Booking != nil && !persisted.Booking.IsEmpty() {
		t.Errorf("draft should be cleared after booking: %+v", persisted.Booking)
	}
}

func TestExtractBookingKeywordTriggersDirectly(t *testing.T) {
	st := store.NewInMemoryStore()
	conv := seedIdleConversation(t, st)
	booking := &fakeBookingService{snapshot: testSnapshot(), confirmation: "ok"}
	e := NewExtractor(st, testParser(), booking)

	result, err := e.Extract(context.Background(), conv, "quiero reservar una habitación privada del 12.09 al 15.09", models.LanguageSpanish)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !result.BookingFired {
		persisted := st.GetContext(conv.ID)
		t.Fatalf("booking keyword with complete draft should fire, draft: %+v", persisted.Booking)
	}
}

func TestExtractNamedRoomWithoutCategoryBlocksBooking(t *testing.T) {
	st := store.NewInMemoryStore()
	conv := seedIdleConversation(t, st)
	// Empty snapshot: a mentioned room can never resolve to a category.
	booking := &fakeBookingService{snapshot: &models.AvailabilitySnapshot{}}
	e := NewExtractor(st, testParser(), booking)

	result, err := e.Extract(context.Background(), conv, "quiero reservar la habitación azul del 12.09 al 15.09", models.LanguageSpanish)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.BookingFired {
		t.Fatalf("unresolved room name must block the booking")
	}
	persisted := st.GetContext(conv.ID)
	if persisted.Booking.RoomName != "azul" || persisted.Booking.CategoryID != 0 {
		t.Errorf("expected unresolved room kept in draft: %+v", persisted.Booking)
	}
}

func TestShouldBookConfirmationAnchors(t *testing.T) {
	e := NewExtractor(store.NewInMemoryStore(), testParser(), &fakeBookingService{})
	complete := &models.BookingDraft{
		CheckInDate:  "2026-09-12",
		CheckOutDate: "2026-09-15",
		RoomType:     models.RoomTypePrivate,
	}
	confirmed := ParsedMessage{IsConfirmation: true}

	cases := []struct {
		name     string
		previous *models.BookingDraft
		want     bool
	}{
		{"no previous draft", nil, false},
		{"empty previous draft", &models.BookingDraft{}, false},
		{"anchored by dates", &models.BookingDraft{CheckInDate: "2026-09-12"}, true},
		{"anchored by availability check", &models.BookingDraft{LastAvailabilityCheck: testSnapshot()}, true},
	}
	for _, tc := range cases {
		if got := e.shouldBook(complete, confirmed, tc.previous); got != tc.want {
			t.Errorf("%s: shouldBook = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestExtractWithoutBookingServiceNeverFires(t *testing.T) {
	st := store.NewInMemoryStore()
	conv := seedIdleConversation(t, st)
	e := NewExtractor(st, testParser(), nil)

	result, err := e.Extract(context.Background(), conv, "quiero reservar para mañana, 1 noche", models.LanguageSpanish)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.BookingFired {
		t.Fatalf("no booking service, nothing can fire")
	}
}
