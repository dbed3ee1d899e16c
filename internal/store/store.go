// Package store provides storage backends for StayPipe.
//
// It persists conversations with their context documents and exposes the
// read-only projections (users, reservations) plus the request/task tables
// that the conversation flow engine consumes. Postgres and SQLite backends
// share a schema; an in-memory backend backs the tests.
package store

import (
	"strings"
	"time"

	"github.com/StayPipe/StayPipe/internal/models"
)

// Opts holds configuration options for store implementations.
type Opts struct {
	// DSN is the database connection string.
	DSN string
}

// Option configures store creation.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for Postgres-style DSNs and "sqlite3"
// for anything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	// Key-value DSNs like "host=... user=..." are also Postgres.
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// GuestQuery describes a reservation lookup by guest details. Birthdate is
// optional; when set it must use models.DateLayout.
type GuestQuery struct {
	FirstName   string
	LastName    string
	Nationality string
	Birthdate   string
	ScopeID     int64
	Now         time.Time
}

// Store is the persistence interface consumed by the flow engine.
type Store interface {
	// Conversations. GetConversationByAddress returns (nil, nil) when no
	// conversation exists for the address+scope pair.
	GetConversation(id string) (*models.Conversation, error)
	GetConversationByAddress(address string, scopeID int64) (*models.Conversation, error)
	SaveConversation(conv models.Conversation) error
	// ListStaleSubFlowConversations returns conversations stuck in a
	// non-idle flow with no message since before. Used by the maintenance
	// job that returns abandoned sub-flows to idle.
	ListStaleSubFlowConversations(before time.Time) ([]models.Conversation, error)

	// Context document operations. GetContext never fails upward: absence
	// or a storage fault yields a default context with the language set.
	GetContext(conversationID string) models.ConversationContext
	UpdateContext(conversationID string, partial models.ConversationContext) error
	ClearContext(conversationID string) error

	// Read-only projections.
	FindUserByAddress(address string, scopeID int64) (*models.User, error)
	FindActiveReservationByPhone(phone string, scopeID int64) (*models.Reservation, error)
	FindReservationsByGuestDetails(q GuestQuery) ([]models.Reservation, error)

	// Requests and tasks created through the creation sub-flows.
	CreateRequest(item models.RequestItem) error
	CreateTask(item models.TaskItem) error
	ListOpenRequests(scopeID int64) ([]models.RequestItem, error)
	ListOpenTasks(scopeID int64) ([]models.TaskItem, error)

	Close() error
}

// conversationAccess is the subset of Store the shared context document
// operations need.
type conversationAccess interface {
	GetConversation(id string) (*models.Conversation, error)
	SaveConversation(conv models.Conversation) error
}

// getContext implements the never-fails-upward context read shared by all
// backends: absence and faults both yield a normalized default context.
func getContext(s conversationAccess, conversationID string) models.ConversationContext {
	var ctx models.ConversationContext
	conv, err := s.GetConversation(conversationID)
	if err == nil && conv != nil {
		ctx = conv.Context
	}
	ctx.Normalize()
	return ctx
}

// updateContext performs the top-level document merge: fields present in
// partial overwrite, absent fields are preserved, and the language is
// normalized before writing.
func updateContext(s conversationAccess, conversationID string, partial models.ConversationContext) error {
	conv, err := s.GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return models.ErrConversationNotFound
	}
	merged := mergeContextDocuments(conv.Context, partial)
	merged.Normalize()
	conv.Context = merged
	return s.SaveConversation(*conv)
}

// clearContext resets the document to a default-language context.
func clearContext(s conversationAccess, conversationID string) error {
	conv, err := s.GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return models.ErrConversationNotFound
	}
	conv.Context = models.ConversationContext{Language: models.DefaultLanguage}
	return s.SaveConversation(*conv)
}

// mergeContextDocuments merges partial into existing at the top level.
// Zero-valued fields in partial mean "absent" and leave existing untouched.
func mergeContextDocuments(existing, partial models.ConversationContext) models.ConversationContext {
	out := existing.Clone()
	if partial.Language != "" {
		out.Language = partial.Language
	}
	if partial.Booking != nil {
		booking := *partial.Booking
		out.Booking = &booking
	}
	if partial.Tour != nil {
		tour := *partial.Tour
		out.Tour = &tour
	}
	if partial.GuestIdentification != nil {
		ident := *partial.GuestIdentification
		out.GuestIdentification = &ident
	}
	if partial.ItemCreation != nil {
		item := *partial.ItemCreation
		out.ItemCreation = &item
	}
	return out
}
