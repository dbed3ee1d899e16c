package flow

import (
	"log/slog"
	"strings"

	"github.com/StayPipe/StayPipe/internal/models"
)

// Merger folds a parsing pass into the conversation context. Parsed fields
// that carry a value overwrite the draft; everything else is preserved, so
// a booking accretes across messages.
type Merger struct{}

// NewMerger creates a merger.
func NewMerger() *Merger {
	return &Merger{}
}

// Merge applies the parsed message on top of the existing context and
// returns the updated document. The resolved language is written through,
// which pins it for later turns where the text has no signal.
func (m *Merger) Merge(existing models.ConversationContext, parsed ParsedMessage, language models.Language) models.ConversationContext {
	out := existing.Clone()
	if models.IsValidLanguage(language) {
		out.Language = language
	}

	if out.Booking == nil {
		out.Booking = &models.BookingDraft{}
	}
	booking := out.Booking

	if parsed.CheckInDate != "" {
		booking.CheckInDate = parsed.CheckInDate
	}
	if parsed.CheckOutDate != "" {
		booking.CheckOutDate = parsed.CheckOutDate
	}
	if parsed.Name != "" {
		booking.GuestName = parsed.Name
	}
	if parsed.RoomType != "" {
		booking.RoomType = parsed.RoomType
	}
	if parsed.RoomName != "" {
		booking.RoomName = parsed.RoomName
		booking.CategoryID = parsed.CategoryID
	}

	// A room named without a category gets another resolution attempt
	// against the cached availability, in case the snapshot arrived after
	// the name did.
	if booking.RoomName != "" && booking.CategoryID == 0 && booking.LastAvailabilityCheck != nil {
		if option := resolveRoomCategory(booking.RoomName, booking.LastAvailabilityCheck.Rooms); option != nil {
			booking.RoomName = option.Name
			booking.CategoryID = option.CategoryID
			if booking.RoomType == "" {
				booking.RoomType = option.Type
			}
		}
	}

	if booking.IsEmpty() {
		out.Booking = existing.Booking
	}

	slog.Debug("Merger.Merge", "language", out.Language, "checkIn", booking.CheckInDate,
		"checkOut", booking.CheckOutDate, "room", booking.RoomName, "categoryID", booking.CategoryID)
	return out
}

// resolveRoomCategory maps a free-text room name onto an availability
// entry. Three passes, strictest first: exact match, article-stripped
// match, then containment in either direction.
func resolveRoomCategory(roomName string, rooms []models.RoomOption) *models.RoomOption {
	name := strings.ToLower(strings.TrimSpace(roomName))
	if name == "" {
		return nil
	}

	for i := range rooms {
		if strings.ToLower(rooms[i].Name) == name {
			return &rooms[i]
		}
	}

	stripped := stripArticle(name)
	for i := range rooms {
		if stripArticle(strings.ToLower(rooms[i].Name)) == stripped {
			return &rooms[i]
		}
	}

	for i := range rooms {
		candidate := stripArticle(strings.ToLower(rooms[i].Name))
		if strings.Contains(candidate, stripped) || strings.Contains(stripped, candidate) {
			return &rooms[i]
		}
	}
	return nil
}
