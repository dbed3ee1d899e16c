// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/StayPipe/StayPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

const sqliteConversationColumns = `id, channel_address, scope_id, user_id, flow, step, context, created_at, last_message_at`

// GetConversation retrieves a conversation by id. Returns (nil, nil) when absent.
func (s *SQLiteStore) GetConversation(id string) (*models.Conversation, error) {
	query := `SELECT ` + sqliteConversationColumns + ` FROM conversations WHERE id = ?`
	conv, err := scanConversation(s.db.QueryRow(query, id).Scan)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore.GetConversation not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetConversation failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	return conv, nil
}

// GetConversationByAddress retrieves the conversation for an address+scope
// pair. Returns (nil, nil) when absent.
func (s *SQLiteStore) GetConversationByAddress(address string, scopeID int64) (*models.Conversation, error) {
	query := `SELECT ` + sqliteConversationColumns + ` FROM conversations WHERE channel_address = ? AND scope_id = ?`
	conv, err := scanConversation(s.db.QueryRow(query, address, scopeID).Scan)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore.GetConversationByAddress not found", "address", address, "scopeID", scopeID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetConversationByAddress failed", "error", err, "address", address, "scopeID", scopeID)
		return nil, fmt.Errorf("failed to get conversation for %s: %w", address, err)
	}
	return conv, nil
}

// SaveConversation stores or updates a conversation.
func (s *SQLiteStore) SaveConversation(conv models.Conversation) error {
	contextJSON, err := marshalContext(conv.Context)
	if err != nil {
		slog.Error("SQLiteStore.SaveConversation marshal failed", "error", err, "id", conv.ID)
		return err
	}

	query := `
		INSERT OR REPLACE INTO conversations (id, channel_address, scope_id, user_id, flow, step, context, created_at, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var userID interface{}
	if conv.UserID != nil {
		userID = *conv.UserID
	}
	_, err = s.db.Exec(query, conv.ID, conv.ChannelAddress, conv.ScopeID, userID,
		string(conv.State.Flow), nilIfEmpty(string(conv.State.Step)), contextJSON,
		conv.CreatedAt, conv.LastMessageAt)
	if err != nil {
		slog.Error("SQLiteStore.SaveConversation failed", "error", err, "id", conv.ID)
		return fmt.Errorf("failed to save conversation %s: %w", conv.ID, err)
	}
	slog.Debug("SQLiteStore.SaveConversation succeeded", "id", conv.ID, "state", conv.State)
	return nil
}

// ListStaleSubFlowConversations returns conversations stuck in a non-idle
// flow with no message since before.
func (s *SQLiteStore) ListStaleSubFlowConversations(before time.Time) ([]models.Conversation, error) {
	query := `SELECT ` + sqliteConversationColumns + ` FROM conversations
		WHERE flow != ? AND last_message_at < ?`
	rows, err := s.db.Query(query, string(models.FlowIdle), before)
	if err != nil {
		slog.Error("SQLiteStore.ListStaleSubFlowConversations query failed", "error", err)
		return nil, fmt.Errorf("failed to query stale conversations: %w", err)
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}
	return conversations, nil
}

// GetContext returns the context document, defaulting on absence or fault.
func (s *SQLiteStore) GetContext(conversationID string) models.ConversationContext {
	return getContext(s, conversationID)
}

// UpdateContext merges partial into the stored context document.
func (s *SQLiteStore) UpdateContext(conversationID string, partial models.ConversationContext) error {
	return updateContext(s, conversationID, partial)
}

// ClearContext resets the context document to its default.
func (s *SQLiteStore) ClearContext(conversationID string) error {
	return clearContext(s, conversationID)
}

// FindUserByAddress resolves a directory user for a channel address. Scope
// members are preferred; a scope-unfiltered fallback is re-checked against
// the scope so outsiders never resolve.
func (s *SQLiteStore) FindUserByAddress(address string, scopeID int64) (*models.User, error) {
	users, err := s.listUsers()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ScopeID == scopeID && phonesMatch(users[i].Phone, address) {
			return &users[i], nil
		}
	}
	for i := range users {
		if phonesMatch(users[i].Phone, address) {
			if users[i].ScopeID != scopeID {
				slog.Debug("SQLiteStore.FindUserByAddress fallback match outside scope", "userID", users[i].ID, "scopeID", scopeID)
				return nil, nil
			}
			return &users[i], nil
		}
	}
	return nil, nil
}

func (s *SQLiteStore) listUsers() ([]models.User, error) {
	rows, err := s.db.Query(`SELECT id, name, phone, role_id, scope_id FROM users`)
	if err != nil {
		slog.Error("SQLiteStore.listUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Phone, &u.RoleID, &u.ScopeID); err != nil {
			slog.Error("SQLiteStore.listUsers scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

const sqliteReservationColumns = `id, scope_id, guest_name, guest_phone, guest_nationality, guest_birthdate,
	check_in_date, check_out_date, status, payment_status, online_check_in_completed,
	payment_link, check_in_link, external_reservation_id, door_pin, lock_password`

func (s *SQLiteStore) listActiveReservations(scopeID int64, now time.Time) ([]models.Reservation, error) {
	query := `SELECT ` + sqliteReservationColumns + `
		FROM reservations
		WHERE scope_id = ? AND check_in_date <= ? AND check_out_date >= ?
		ORDER BY check_in_date DESC`
	rows, err := s.db.Query(query, scopeID, now, now)
	if err != nil {
		slog.Error("SQLiteStore.listActiveReservations query failed", "error", err, "scopeID", scopeID)
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows.Scan)
		if err != nil {
			slog.Error("SQLiteStore.listActiveReservations scan failed", "error", err)
			return nil, err
		}
		if isActiveStay(r, now) {
			reservations = append(reservations, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reservation rows: %w", err)
	}
	return reservations, nil
}

// FindActiveReservationByPhone returns the newest active-stay reservation
// whose guest phone matches the address, or (nil, nil).
func (s *SQLiteStore) FindActiveReservationByPhone(phone string, scopeID int64) (*models.Reservation, error) {
	reservations, err := s.listActiveReservations(scopeID, time.Now())
	if err != nil {
		return nil, err
	}
	for i := range reservations {
		if phonesMatch(reservations[i].GuestPhone, phone) {
			return &reservations[i], nil
		}
	}
	return nil, nil
}

// FindReservationsByGuestDetails returns active-stay reservations matching
// the fuzzy guest details filter.
func (s *SQLiteStore) FindReservationsByGuestDetails(q GuestQuery) ([]models.Reservation, error) {
	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}
	reservations, err := s.listActiveReservations(q.ScopeID, now)
	if err != nil {
		return nil, err
	}
	var matches []models.Reservation
	for _, r := range reservations {
		if matchesGuestDetails(r, q) {
			matches = append(matches, r)
		}
	}
	slog.Debug("SQLiteStore.FindReservationsByGuestDetails", "scopeID", q.ScopeID, "matches", len(matches))
	return matches, nil
}

// CreateRequest stores a new request item.
func (s *SQLiteStore) CreateRequest(item models.RequestItem) error {
	query := `INSERT INTO requests (id, scope_id, created_by, responsible, description, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, item.ID, item.ScopeID, item.CreatedBy, item.Responsible,
		item.Description, item.Status, item.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore.CreateRequest failed", "error", err, "id", item.ID)
		return fmt.Errorf("failed to insert request %s: %w", item.ID, err)
	}
	return nil
}

// CreateTask stores a new task item.
func (s *SQLiteStore) CreateTask(item models.TaskItem) error {
	query := `INSERT INTO tasks (id, scope_id, created_by, responsible, description, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, item.ID, item.ScopeID, item.CreatedBy, item.Responsible,
		item.Description, item.Status, item.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore.CreateTask failed", "error", err, "id", item.ID)
		return fmt.Errorf("failed to insert task %s: %w", item.ID, err)
	}
	return nil
}

// ListOpenRequests retrieves open requests for a scope, newest first.
func (s *SQLiteStore) ListOpenRequests(scopeID int64) ([]models.RequestItem, error) {
	query := `SELECT id, scope_id, created_by, responsible, description, status, created_at
		FROM requests WHERE scope_id = ? AND status = ? ORDER BY created_at DESC`
	rows, err := s.db.Query(query, scopeID, models.ItemStatusOpen)
	if err != nil {
		slog.Error("SQLiteStore.ListOpenRequests query failed", "error", err, "scopeID", scopeID)
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var items []models.RequestItem
	for rows.Next() {
		var item models.RequestItem
		if err := rows.Scan(&item.ID, &item.ScopeID, &item.CreatedBy, &item.Responsible,
			&item.Description, &item.Status, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan request row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate request rows: %w", err)
	}
	return items, nil
}

// ListOpenTasks retrieves open tasks for a scope, newest first.
func (s *SQLiteStore) ListOpenTasks(scopeID int64) ([]models.TaskItem, error) {
	query := `SELECT id, scope_id, created_by, responsible, description, status, created_at
		FROM tasks WHERE scope_id = ? AND status = ? ORDER BY created_at DESC`
	rows, err := s.db.Query(query, scopeID, models.ItemStatusOpen)
	if err != nil {
		slog.Error("SQLiteStore.ListOpenTasks query failed", "error", err, "scopeID", scopeID)
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var items []models.TaskItem
	for rows.Next() {
		var item models.TaskItem
		if err := rows.Scan(&item.ID, &item.ScopeID, &item.CreatedBy, &item.Responsible,
			&item.Description, &item.Status, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	return items, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	} else {
		slog.Debug("SQLite database connection closed successfully")
	}
	return err
}
