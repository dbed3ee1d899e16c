package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/StayPipe/StayPipe/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// NormalizePhone reduces a channel address to bare digits so numbers stored
// in different formats ("+41 78 719 23 38", "0041787192338", "whatsapp:+41...")
// compare equal.
func NormalizePhone(address string) string {
	address = strings.TrimPrefix(strings.TrimSpace(address), "whatsapp:")
	var b strings.Builder
	for _, r := range address {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	digits := b.String()
	digits = strings.TrimPrefix(digits, "00")
	return digits
}

// phonesMatch reports whether two addresses denote the same number after
// normalization. One side may carry a country code the other lacks, so a
// suffix match of at least 8 digits also counts.
func phonesMatch(a, b string) bool {
	na, nb := NormalizePhone(a), NormalizePhone(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	const minSuffix = 8
	if len(na) >= minSuffix && len(nb) >= minSuffix {
		return strings.HasSuffix(na, nb) || strings.HasSuffix(nb, na)
	}
	return false
}

// matchesGuestDetails applies the fuzzy identification filter: the stored
// guest name must contain both given names (case-insensitive), nationality
// must match exactly (case-insensitive), and a birthdate, when given, must
// match the stored one.
func matchesGuestDetails(r models.Reservation, q GuestQuery) bool {
	first := strings.ToLower(strings.TrimSpace(q.FirstName))
	last := strings.ToLower(strings.TrimSpace(q.LastName))
	if first == "" || last == "" {
		return false
	}
	name := strings.ToLower(r.GuestName)
	if !strings.Contains(name, first) || !strings.Contains(name, last) {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(r.GuestNationality), strings.TrimSpace(q.Nationality)) {
		return false
	}
	if q.Birthdate != "" && r.GuestBirthdate != q.Birthdate {
		return false
	}
	return true
}

// isActiveStay reports whether the reservation covers now and carries an
// eligible status.
func isActiveStay(r models.Reservation, now time.Time) bool {
	if now.Before(r.CheckInDate) || now.After(r.CheckOutDate) {
		return false
	}
	for _, s := range models.ActiveStayStatuses {
		if r.Status == s {
			return true
		}
	}
	return false
}

// marshalContext serializes a context document for storage.
func marshalContext(ctx models.ConversationContext) (string, error) {
	data, err := json.Marshal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to marshal conversation context: %w", err)
	}
	return string(data), nil
}

// unmarshalContext deserializes a stored context document. A corrupt or
// empty document degrades to a default context instead of failing the read.
func unmarshalContext(data string) models.ConversationContext {
	var ctx models.ConversationContext
	if data != "" {
		if err := json.Unmarshal([]byte(data), &ctx); err != nil {
			ctx = models.ConversationContext{}
		}
	}
	ctx.Normalize()
	return ctx
}

// scanConversation scans a conversation row in the shared column order:
// id, channel_address, scope_id, user_id, flow, step, context, created_at,
// last_message_at.
func scanConversation(scan func(dest ...interface{}) error) (*models.Conversation, error) {
	var conv models.Conversation
	var userID sql.NullInt64
	var flow, step, contextJSON sql.NullString
	err := scan(
		&conv.ID, &conv.ChannelAddress, &conv.ScopeID, &userID,
		&flow, &step, &contextJSON, &conv.CreatedAt, &conv.LastMessageAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		conv.UserID = &userID.Int64
	}
	conv.State = models.ConversationState{
		Flow: models.Flow(flow.String),
		Step: models.Step(step.String),
	}
	if conv.State.Flow == "" {
		conv.State.Flow = models.FlowIdle
	}
	conv.Context = unmarshalContext(contextJSON.String)
	return &conv, nil
}

// scanReservation scans a reservation row in the shared column order.
func scanReservation(scan func(dest ...interface{}) error) (models.Reservation, error) {
	var r models.Reservation
	var birthdate, paymentLink, checkInLink, externalID, doorPin, lockPassword sql.NullString
	err := scan(
		&r.ID, &r.ScopeID, &r.GuestName, &r.GuestPhone, &r.GuestNationality, &birthdate,
		&r.CheckInDate, &r.CheckOutDate, &r.Status, &r.PaymentStatus, &r.OnlineCheckInCompleted,
		&paymentLink, &checkInLink, &externalID, &doorPin, &lockPassword,
	)
	if err != nil {
		return r, fmt.Errorf("scan reservation failed: %w", err)
	}
	r.GuestBirthdate = birthdate.String
	r.PaymentLink = paymentLink.String
	r.CheckInLink = checkInLink.String
	r.ExternalReservationID = externalID.String
	r.DoorPin = doorPin.String
	r.LockPassword = lockPassword.String
	return r, nil
}
