package flow

import (
	"testing"
	"time"

	"github.com/StayPipe/StayPipe/internal/models"
)

// fixedClock pins "today" to 2026-08-29 for relative date tests.
func fixedClock() time.Time {
	return time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)
}

func testParser() *Parser {
	return NewParser(WithClock(fixedClock))
}

func testSnapshot() *models.AvailabilitySnapshot {
	return &models.AvailabilitySnapshot{
		CheckedAt: fixedClock(),
		Rooms: []models.RoomOption{
			{Name: "Habitación Doble", CategoryID: 10, Type: models.RoomTypePrivate},
			{Name: "Dorm Compartido", CategoryID: 11, Type: models.RoomTypeShared},
			{Name: "Apartamento Deluxe", CategoryID: 12, Type: models.RoomTypePrivate},
		},
	}
}

func TestParseRelativeDates(t *testing.T) {
	p := testParser()

	parsed := p.Parse("hola, quiero reservar para mañana, 1 noche", nil)
	if parsed.Intent != IntentBooking {
		t.Errorf("expected booking intent, got %q", parsed.Intent)
	}
	if parsed.CheckInDate != "2026-08-30" || parsed.CheckOutDate != "2026-08-31" {
		t.Errorf("expected 2026-08-30/2026-08-31, got %s/%s", parsed.CheckInDate, parsed.CheckOutDate)
	}

	parsed = p.Parse("llego pasado mañana", nil)
	if parsed.CheckInDate != "2026-08-31" {
		t.Errorf("day after tomorrow should win over tomorrow, got %s", parsed.CheckInDate)
	}

	parsed = p.Parse("quiero una cama para hoy", nil)
	if parsed.CheckInDate != "2026-08-29" {
		t.Errorf("expected today, got %s", parsed.CheckInDate)
	}
}

func TestParseOneNightAgainstDraftAnchor(t *testing.T) {
	p := testParser()
	draft := &models.BookingDraft{CheckInDate: "2026-09-10"}

	parsed := p.Parse("solo 1 noche por favor", draft)
	if parsed.CheckInDate != "2026-09-10" || parsed.CheckOutDate != "2026-09-11" {
		t.Errorf("expected anchor+1, got %s/%s", parsed.CheckInDate, parsed.CheckOutDate)
	}
}

func TestParseExplicitDates(t *testing.T) {
	p := testParser()

	parsed := p.Parse("del 12.09 al 15.09 por favor", nil)
	if parsed.CheckInDate != "2026-09-12" || parsed.CheckOutDate != "2026-09-15" {
		t.Errorf("range parse failed: %s/%s", parsed.CheckInDate, parsed.CheckOutDate)
	}

	parsed = p.Parse("von 12.09 bis 15.09", nil)
	if parsed.CheckInDate != "2026-09-12" || parsed.CheckOutDate != "2026-09-15" {
		t.Errorf("von/bis parse failed: %s/%s", parsed.CheckInDate, parsed.CheckOutDate)
	}

	// A yearless date already behind us rolls to next year.
	parsed = p.Parse("llego el 15.01", nil)
	if parsed.CheckInDate != "2027-01-15" {
		t.Errorf("expected rollover to 2027, got %s", parsed.CheckInDate)
	}

	parsed = p.Parse("checkin: 02.10.2026 checkout: 05.10.2026", nil)
	if parsed.CheckInDate != "2026-10-02" || parsed.CheckOutDate != "2026-10-05" {
		t.Errorf("token parse failed: %s/%s", parsed.CheckInDate, parsed.CheckOutDate)
	}
}

func TestParseConfirmationKeepsDraftDates(t *testing.T) {
	p := testParser()
	draft := &models.BookingDraft{CheckInDate: "2026-09-10", CheckOutDate: "2026-09-12"}

	parsed := p.Parse("sí", draft)
	if !parsed.IsConfirmation {
		t.Fatalf("expected confirmation")
	}
	if parsed.CheckInDate != "2026-09-10" || parsed.CheckOutDate != "2026-09-12" {
		t.Errorf("confirmation should keep draft dates, got %s/%s", parsed.CheckInDate, parsed.CheckOutDate)
	}

	if p.Parse("ok, genial, gracias", nil).IsConfirmation {
		t.Errorf("longer message should not count as bare confirmation")
	}
}

func TestParseName(t *testing.T) {
	p := testParser()

	cases := []struct{ in, want string }{
		{"a nombre de Maria Lopez", "Maria Lopez"},
		{"my name is John Smith", "John Smith"},
		{"Maria Fernanda Lopez", "Maria Fernanda Lopez"},
		{"quiero reservar para mañana", ""},
		{"ok", ""},
	}
	for _, tc := range cases {
		if got := p.Parse(tc.in, nil).Name; got != tc.want {
			t.Errorf("Parse(%q).Name = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseRoomTiers(t *testing.T) {
	p := testParser()
	draft := &models.BookingDraft{LastAvailabilityCheck: testSnapshot()}

	// Tier 1: full name containment.
	parsed := p.Parse("quiero la habitación doble", draft)
	if parsed.CategoryID != 10 {
		t.Errorf("tier 1 containment failed, got category %d", parsed.CategoryID)
	}

	// Tier 1: short article-stripped message contained in a room name.
	parsed = p.Parse("la doble", draft)
	if parsed.CategoryID != 10 {
		t.Errorf("tier 1 short form failed, got category %d", parsed.CategoryID)
	}

	// Tier 2: two significant words in any order.
	parsed = p.Parse("el deluxe apartamento me gusta", draft)
	if parsed.CategoryID != 12 {
		t.Errorf("tier 2 word overlap failed, got category %d", parsed.CategoryID)
	}

	// Tier 4: type fallback through the keyword list.
	parsed = p.Parse("una habitación privada", draft)
	if parsed.CategoryID != 10 {
		t.Errorf("tier 4 fallback failed, got category %d", parsed.CategoryID)
	}
	if parsed.RoomType != models.RoomTypePrivate {
		t.Errorf("expected private room type, got %q", parsed.RoomType)
	}

	// Shared type with a single candidate wins directly.
	parsed = p.Parse("una cama en el dorm", draft)
	if parsed.CategoryID != 11 {
		t.Errorf("single shared candidate failed, got category %d", parsed.CategoryID)
	}
}

func TestParseRoomMentionWithoutSnapshot(t *testing.T) {
	p := testParser()

	parsed := p.Parse("quiero la habitación azul", nil)
	if parsed.RoomName != "azul" || parsed.CategoryID != 0 {
		t.Errorf("expected uncategorized mention, got %q/%d", parsed.RoomName, parsed.CategoryID)
	}
}

func TestParseIntents(t *testing.T) {
	p := testParser()
	cases := []struct {
		in   string
		want Intent
	}{
		{"ich möchte buchen", IntentBooking},
		{"hay disponibilidad?", IntentAvailability},
		{"qué tours tienen?", IntentTour},
		{"me pueden dar el código?", IntentCode},
		{"hola qué tal", IntentOther},
	}
	for _, tc := range cases {
		if got := p.Parse(tc.in, nil).Intent; got != tc.want {
			t.Errorf("intent for %q = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDescribeMissing(t *testing.T) {
	if got := describeMissing(nil); len(got) != 3 {
		t.Errorf("nil draft should miss the three required fields, got %v", got)
	}

	draft := &models.BookingDraft{
		CheckInDate: "2026-09-12",
		RoomType:    models.RoomTypePrivate,
		RoomName:    "azul",
	}
	got := describeMissing(draft)
	want := map[string]bool{"check_out_date": true, "category_id": true, "guest_name": true}
	if len(got) != len(want) {
		t.Fatalf("describeMissing = %v, want keys %v", got, want)
	}
	for _, field := range got {
		if !want[field] {
			t.Errorf("unexpected missing field %q", field)
		}
	}
}
