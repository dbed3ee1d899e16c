// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/StayPipe/StayPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening Postgres database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	slog.Debug("Postgres database opened")

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Postgres ping successful")

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

const postgresConversationColumns = `id, channel_address, scope_id, user_id, flow, step, context, created_at, last_message_at`

// GetConversation retrieves a conversation by id. Returns (nil, nil) when absent.
func (s *PostgresStore) GetConversation(id string) (*models.Conversation, error) {
	query := `SELECT ` + postgresConversationColumns + ` FROM conversations WHERE id = $1`
	conv, err := scanConversation(s.db.QueryRow(query, id).Scan)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore.GetConversation not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetConversation failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	slog.Debug("PostgresStore.GetConversation found", "id", id, "state", conv.State)
	return conv, nil
}

// GetConversationByAddress retrieves the conversation for an address+scope
// pair. Returns (nil, nil) when absent.
func (s *PostgresStore) GetConversationByAddress(address string, scopeID int64) (*models.Conversation, error) {
	query := `SELECT ` + postgresConversationColumns + ` FROM conversations WHERE channel_address = $1 AND scope_id = $2`
	conv, err := scanConversation(s.db.QueryRow(query, address, scopeID).Scan)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore.GetConversationByAddress not found", "address", address, "scopeID", scopeID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetConversationByAddress failed", "error", err, "address", address, "scopeID", scopeID)
		return nil, fmt.Errorf("failed to get conversation for %s: %w", address, err)
	}
	return conv, nil
}

// SaveConversation stores or updates a conversation.
func (s *PostgresStore) SaveConversation(conv models.Conversation) error {
	contextJSON, err := marshalContext(conv.Context)
	if err != nil {
		slog.Error("PostgresStore.SaveConversation marshal failed", "error", err, "id", conv.ID)
		return err
	}

	query := `
		INSERT INTO conversations (id, channel_address, scope_id, user_id, flow, step, context, created_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id)
		DO UPDATE SET
			user_id = EXCLUDED.user_id,
			flow = EXCLUDED.flow,
			step = EXCLUDED.step,
			context = EXCLUDED.context,
			last_message_at = EXCLUDED.last_message_at`

	var userID interface{}
	if conv.UserID != nil {
		userID = *conv.UserID
	}
	_, err = s.db.Exec(query, conv.ID, conv.ChannelAddress, conv.ScopeID, userID,
		string(conv.State.Flow), nilIfEmpty(string(conv.State.Step)), contextJSON,
		conv.CreatedAt, conv.LastMessageAt)
	if err != nil {
		slog.Error("PostgresStore.SaveConversation failed", "error", err, "id", conv.ID)
		return fmt.Errorf("failed to save conversation %s: %w", conv.ID, err)
	}
	slog.Debug("PostgresStore.SaveConversation succeeded", "id", conv.ID, "state", conv.State)
	return nil
}

// ListStaleSubFlowConversations returns conversations stuck in a non-idle
// flow with no message since before.
func (s *PostgresStore) ListStaleSubFlowConversations(before time.Time) ([]models.Conversation, error) {
	query := `SELECT ` + postgresConversationColumns + ` FROM conversations
		WHERE flow != $1 AND last_message_at < $2`
	rows, err := s.db.Query(query, string(models.FlowIdle), before)
	if err != nil {
		slog.Error("PostgresStore.ListStaleSubFlowConversations query failed", "error", err)
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
func (s *PostgresStore) GetContext(conversationID string) models.ConversationContext {
	return getContext(s, conversationID)
}

// UpdateContext merges partial into the stored context document.
func (s *PostgresStore) UpdateContext(conversationID string, partial models.ConversationContext) error {
	return updateContext(s, conversationID, partial)
}

// ClearContext resets the context document to its default.
func (s *PostgresStore) ClearContext(conversationID string) error {
	return clearContext(s, conversationID)
}

// FindUserByAddress resolves a directory user for a channel address. Scope
// members are preferred; a scope-unfiltered fallback is re-checked against
// the scope so outsiders never resolve.
func (s *PostgresStore) FindUserByAddress(address string, scopeID int64) (*models.User, error) {
	users, err := s.listUsers()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ScopeID == scopeID && phonesMatch(users[i].Phone, address) {
			slog.Debug("PostgresStore.FindUserByAddress matched in scope", "userID", users[i].ID, "scopeID", scopeID)
			return &users[i], nil
		}
	}
	for i := range users {
		if phonesMatch(users[i].Phone, address) {
			if users[i].ScopeID != scopeID {
				slog.Debug("PostgresStore.FindUserByAddress fallback match outside scope", "userID", users[i].ID, "scopeID", scopeID)
				return nil, nil
			}
			return &users[i], nil
		}
	}
	slog.Debug("PostgresStore.FindUserByAddress no match", "scopeID", scopeID)
	return nil, nil
}

func (s *PostgresStore) listUsers() ([]models.User, error) {
	rows, err := s.db.Query(`SELECT id, name, phone, role_id, scope_id FROM users`)
	if err != nil {
		slog.Error("PostgresStore.listUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Phone, &u.RoleID, &u.ScopeID); err != nil {
			slog.Error("PostgresStore.listUsers scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

const postgresReservationColumns = `id, scope_id, guest_name, guest_phone, guest_nationality, guest_birthdate,
	check_in_date, check_out_date, status, payment_status, online_check_in_completed,
	payment_link, check_in_link, external_reservation_id, door_pin, lock_password`

func (s *PostgresStore) listActiveReservations(scopeID int64, now time.Time) ([]models.Reservation, error) {
	query := `SELECT ` + postgresReservationColumns + `
		FROM reservations
		WHERE scope_id = $1 AND check_in_date <= $2 AND check_out_date >= $2
		ORDER BY check_in_date DESC`
	rows, err := s.db.Query(query, scopeID, now)
	if err != nil {
		slog.Error("PostgresStore.listActiveReservations query failed", "error", err, "scopeID", scopeID)
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows.Scan)
		if err != nil {
			slog.Error("PostgresStore.listActiveReservations scan failed", "error", err)
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
func (s *PostgresStore) FindActiveReservationByPhone(phone string, scopeID int64) (*models.Reservation, error) {
	reservations, err := s.listActiveReservations(scopeID, time.Now())
	if err != nil {
		return nil, err
	}
	for i := range reservations {
		if phonesMatch(reservations[i].GuestPhone, phone) {
			slog.Debug("PostgresStore.FindActiveReservationByPhone matched", "reservationID", reservations[i].ID)
			return &reservations[i], nil
		}
	}
	slog.Debug("PostgresStore.FindActiveReservationByPhone no match", "scopeID", scopeID)
	return nil, nil
}

// FindReservationsByGuestDetails returns active-stay reservations matching
// the fuzzy guest details filter.
func (s *PostgresStore) FindReservationsByGuestDetails(q GuestQuery) ([]models.Reservation, error) {
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
	slog.Debug("PostgresStore.FindReservationsByGuestDetails", "scopeID", q.ScopeID, "matches", len(matches))
	return matches, nil
}

// CreateRequest stores a new request item.
func (s *PostgresStore) CreateRequest(item models.RequestItem) error {
	query := `INSERT INTO requests (id, scope_id, created_by, responsible, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.Exec(query, item.ID, item.ScopeID, item.CreatedBy, item.Responsible,
		item.Description, item.Status, item.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore.CreateRequest failed", "error", err, "id", item.ID)
		return fmt.Errorf("failed to insert request %s: %w", item.ID, err)
	}
	slog.Debug("PostgresStore.CreateRequest succeeded", "id", item.ID)
	return nil
}

// CreateTask stores a new task item.
func (s *PostgresStore) CreateTask(item models.TaskItem) error {
	query := `INSERT INTO tasks (id, scope_id, created_by, responsible, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.Exec(query, item.ID, item.ScopeID, item.CreatedBy, item.Responsible,
		item.Description, item.Status, item.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore.CreateTask failed", "error", err, "id", item.ID)
		return fmt.Errorf("failed to insert task %s: %w", item.ID, err)
	}
	slog.Debug("PostgresStore.CreateTask succeeded", "id", item.ID)
	return nil
}

// ListOpenRequests retrieves open requests for a scope, newest first.
func (s *PostgresStore) ListOpenRequests(scopeID int64) ([]models.RequestItem, error) {
	query := `SELECT id, scope_id, created_by, responsible, description, status, created_at
		FROM requests WHERE scope_id = $1 AND status = $2 ORDER BY created_at DESC`
	rows, err := s.db.Query(query, scopeID, models.ItemStatusOpen)
	if err != nil {
		slog.Error("PostgresStore.ListOpenRequests query failed", "error", err, "scopeID", scopeID)
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
	slog.Debug("PostgresStore.ListOpenRequests succeeded", "scopeID", scopeID, "count", len(items))
	return items, nil
}

// ListOpenTasks retrieves open tasks for a scope, newest first.
func (s *PostgresStore) ListOpenTasks(scopeID int64) ([]models.TaskItem, error) {
	query := `SELECT id, scope_id, created_by, responsible, description, status, created_at
		FROM tasks WHERE scope_id = $1 AND status = $2 ORDER BY created_at DESC`
	rows, err := s.db.Query(query, scopeID, models.ItemStatusOpen)
	if err != nil {
		slog.Error("PostgresStore.ListOpenTasks query failed", "error", err, "scopeID", scopeID)
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
	slog.Debug("PostgresStore.ListOpenTasks succeeded", "scopeID", scopeID, "count", len(items))
	return items, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	} else {
		slog.Debug("PostgreSQL database connection closed successfully")
	}
	return err
}
