// Package models defines the core data structures for StayPipe.
//
// It includes conversation state, context documents, booking and guest
// identification drafts, and the read-only projections of reservations and
// users that the flow engine consumes. Types here are shared across modules.
package models

import (
	"errors"
	"time"
)

// Language identifies a supported reply language.
type Language string

const (
	// LanguageSpanish is the default language for guest-facing replies.
	LanguageSpanish Language = "es"
	// LanguageGerman is German.
	LanguageGerman Language = "de"
	// LanguageEnglish is English.
	LanguageEnglish Language = "en"
	// LanguageFrench is scored by the detector but has no reply templates.
	LanguageFrench Language = "fr"
)

// DefaultLanguage is used whenever no language signal is available.
const DefaultLanguage = LanguageSpanish

// DateLayout is the wire format for calendar dates inside context documents.
const DateLayout = "2006-01-02"

// IsValidLanguage checks if the given language is supported.
func IsValidLanguage(l Language) bool {
	switch l {
	case LanguageSpanish, LanguageGerman, LanguageEnglish, LanguageFrench:
		return true
	default:
		return false
	}
}

// Error variables for better error handling and testability
var (
	ErrEmptyAddress           = errors.New("channel address cannot be empty")
	ErrEmptyRecipient         = errors.New("recipient cannot be empty")
	ErrConversationNotFound   = errors.New("conversation not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrReservationNotFound    = errors.New("reservation not found")
	ErrInvalidScope           = errors.New("scope id must be positive")
	ErrInvalidState           = errors.New("invalid conversation state")
	ErrResponderDisabled      = errors.New("generative responder is disabled for this scope")
	ErrResponderMisconfigured = errors.New("generative responder credentials are not configured")
)

// MessageStatus represents the delivery status of an outbound message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt records a delivery status change for an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming message from a sender on a channel.
// Media carries a channel-specific attachment reference when present.
type Response struct {
	From  string `json:"from"`
	Body  string `json:"body"`
	Media string `json:"media,omitempty"`
	Time  int64  `json:"time"`
}

// User is a read-only projection of an authenticated directory user.
type User struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	RoleID  int64  `json:"role_id"`
	ScopeID int64  `json:"scope_id"`
}

// RequestItem is a request created through the request creation sub-flow.
// CreatedBy carries the staff member's name as shown in replies.
type RequestItem struct {
	ID          string    `json:"id"`
	ScopeID     int64     `json:"scope_id"`
	CreatedBy   string    `json:"created_by"`
	Responsible string    `json:"responsible"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// TaskItem is a task created through the task creation sub-flow.
// CreatedBy carries the staff member's name as shown in replies.
type TaskItem struct {
	ID          string    `json:"id"`
	ScopeID     int64     `json:"scope_id"`
	CreatedBy   string    `json:"created_by"`
	Responsible string    `json:"responsible"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// ItemStatusOpen is the initial status for created requests and tasks.
const ItemStatusOpen = "open"
