package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/StayPipe/StayPipe/internal/models"
	"github.com/StayPipe/StayPipe/internal/store"
)

// PlaceholderGuestName stands in when a booking fires before the guest
// gave a name. The booking system replaces it during check-in.
const PlaceholderGuestName = "Invitado"

// BookingService creates reservations in the external booking system.
type BookingService interface {
	CreateBooking(ctx context.Context, req models.BookingRequest) (confirmation string, err error)
	CheckAvailability(ctx context.Context, scopeID int64, checkIn, checkOut string) (*models.AvailabilitySnapshot, error)
}

// ExtractionResult reports what one extraction pass did with a message.
type ExtractionResult struct {
	Context      models.ConversationContext
	Parsed       ParsedMessage
	BookingFired bool
	Confirmation string
}

// Extractor accumulates booking details across messages and fires the
// booking once the draft is complete and the guest asked for it. Every
// pass persists the merged context, even when nothing fires.
type Extractor struct {
	store   store.Store
	parser  *Parser
	merger  *Merger
	booking BookingService
}

// NewExtractor creates an extractor. The booking service may be nil, in
// which case complete drafts accumulate but never fire.
func NewExtractor(st store.Store, parser *Parser, booking BookingService) *Extractor {
	return &Extractor{
		store:   st,
		parser:  parser,
		merger:  NewMerger(),
		booking: booking,
	}
}

// Extract parses the message, merges it into the conversation context,
// persists the result, and fires a booking when the draft is complete and
// triggered. The persisted context is returned for the caller's reply.
func (e *Extractor) Extract(ctx context.Context, conv *models.Conversation, text string, language models.Language) (ExtractionResult, error) {
	existing := e.store.GetContext(conv.ID)
	parsed := e.parser.Parse(text, existing.Booking)
	merged := e.merger.Merge(existing, parsed, language)

	// Fresh dates may need a fresh availability snapshot before a room
	// mention can resolve to a category.
	if e.booking != nil && merged.Booking != nil && e.needsAvailability(existing.Booking, merged.Booking) {
		e.refreshAvailability(ctx, conv.ScopeID, merged.Booking)
		merged = e.merger.Merge(merged, parsed, language)
	}

	if err := e.store.UpdateContext(conv.ID, merged); err != nil {
		return ExtractionResult{}, fmt.Errorf("failed to persist context for %s: %w", conv.ID, err)
	}
	conv.Context = e.store.GetContext(conv.ID)

	result := ExtractionResult{Context: conv.Context, Parsed: parsed}
	booking := conv.Context.Booking
	if !e.shouldBook(booking, parsed, existing.Booking) {
		if !booking.IsEmpty() {
			slog.Debug("Extractor.Extract draft not fired", "conversationID", conv.ID, "missing", describeMissing(booking))
		}
		return result, nil
	}

	confirmation, err := e.fireBooking(ctx, conv, booking)
	if err != nil {
		return result, err
	}
	result.BookingFired = true
	result.Confirmation = confirmation

	// A fired booking consumes the draft.
	if err := e.store.UpdateContext(conv.ID, models.ConversationContext{Booking: &models.BookingDraft{}}); err != nil {
		slog.Error("Extractor.Extract failed to clear consumed draft", "conversationID", conv.ID, "error", err)
	}
	conv.Context = e.store.GetContext(conv.ID)
	result.Context = conv.Context
	return result, nil
}

// shouldBook is the firing rule: complete dates, a room type, a resolved
// category whenever a room was named, and an explicit trigger. The trigger
// is either a booking keyword in this message or a confirmation word while
// the previous draft already anchored dates or an availability check.
func (e *Extractor) shouldBook(booking *models.BookingDraft, parsed ParsedMessage, previous *models.BookingDraft) bool {
	if e.booking == nil || booking == nil {
		return false
	}
	if booking.CheckInDate == "" || booking.CheckOutDate == "" || booking.RoomType == "" {
		return false
	}
	if booking.RoomName != "" && booking.CategoryID == 0 {
		return false
	}
	if parsed.Intent == IntentBooking {
		return true
	}
	anchored := previous != nil && (previous.CheckInDate != "" || previous.LastAvailabilityCheck != nil)
	return parsed.IsConfirmation && anchored
}

func (e *Extractor) fireBooking(ctx context.Context, conv *models.Conversation, booking *models.BookingDraft) (string, error) {
	guestName := booking.GuestName
	if guestName == "" {
		guestName = PlaceholderGuestName
	}
	req := models.BookingRequest{
		ScopeID:         conv.ScopeID,
		GuestName:       guestName,
		CheckInDate:     booking.CheckInDate,
		CheckOutDate:    booking.CheckOutDate,
		RoomType:        booking.RoomType,
		CategoryID:      booking.CategoryID,
		FallbackAddress: conv.ChannelAddress,
		UserID:          conv.UserID,
	}
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("booking request invalid: %w", err)
	}
	confirmation, err := e.booking.CreateBooking(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create booking: %w", err)
	}
	slog.Info("Extractor.fireBooking booked", "conversationID", conv.ID, "scopeID", conv.ScopeID,
		"checkIn", booking.CheckInDate, "checkOut", booking.CheckOutDate, "categoryID", booking.CategoryID)
	return confirmation, nil
}

// needsAvailability reports whether the merged draft has dates but no
// usable snapshot for them.
func (e *Extractor) needsAvailability(previous, merged *models.BookingDraft) bool {
	if merged.CheckInDate == "" || merged.CheckOutDate == "" {
		return false
	}
	if merged.LastAvailabilityCheck != nil &&
		previous != nil && previous.CheckInDate == merged.CheckInDate && previous.CheckOutDate == merged.CheckOutDate {
		return false
	}
	return true
}

// refreshAvailability is best effort: a failed lookup leaves the old
// snapshot in place and the booking simply will not resolve a category yet.
func (e *Extractor) refreshAvailability(ctx context.Context, scopeID int64, booking *models.BookingDraft) {
	snapshot, err := e.booking.CheckAvailability(ctx, scopeID, booking.CheckInDate, booking.CheckOutDate)
	if err != nil {
		slog.Warn("Extractor.refreshAvailability failed", "scopeID", scopeID, "error", err)
		return
	}
	if snapshot != nil {
		booking.LastAvailabilityCheck = snapshot
	}
}
