package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbitpay/orbit/internal/log"
	"github.com/orbitpay/orbit/internal/rag"
)

// Querier defines the database operations the session store needs.
// Interfaces live with the consumer so tests can substitute a fake.
type Querier interface {
	InsertSession(ctx context.Context, id, title string) (SessionRow, error)
	GetSession(ctx context.Context, id string) (SessionRow, error)
	ListSessions(ctx context.Context, limit int) ([]SessionRow, error)
	DeleteSession(ctx context.Context, id string) (int64, error)
	InsertTurn(ctx context.Context, arg InsertTurnParams) (TurnRow, error)
	ListTurns(ctx context.Context, sessionID string) ([]TurnRow, error)
}

// SessionRow mirrors the sessions table.
type SessionRow struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TurnRow mirrors the session_turns table.
type TurnRow struct {
	ID        int64
	SessionID string
	Role      string
	Content   string
	Citations []byte
	CreatedAt time.Time
}

// InsertTurnParams holds the columns written per turn.
type InsertTurnParams struct {
	SessionID string
	Role      string
	Content   string
	Citations []byte
}

const insertSessionSQL = `
INSERT INTO sessions (id, title)
VALUES ($1, $2)
RETURNING id, title, created_at, updated_at`

const getSessionSQL = `
SELECT id, title, created_at, updated_at
FROM sessions
WHERE id = $1`

const listSessionsSQL = `
SELECT id, title, created_at, updated_at
FROM sessions
ORDER BY updated_at DESC
LIMIT $1`

const deleteSessionSQL = `
DELETE FROM sessions WHERE id = $1`

// Inserting a turn also bumps the session's updated_at so listing by
// recency works.
const insertTurnSQL = `
WITH bumped AS (
    UPDATE sessions SET updated_at = now() WHERE id = $1
)
INSERT INTO session_turns (session_id, role, content, citations)
VALUES ($1, $2, $3, $4)
RETURNING id, session_id, role, content, citations, created_at`

const listTurnsSQL = `
SELECT id, session_id, role, content, citations, created_at
FROM session_turns
WHERE session_id = $1
ORDER BY id ASC`

// PgxQuerier implements Querier against a pgx connection pool.
type PgxQuerier struct {
	pool *pgxpool.Pool
}

// NewPgxQuerier creates a PgxQuerier.
func NewPgxQuerier(pool *pgxpool.Pool) *PgxQuerier {
	return &PgxQuerier{pool: pool}
}

func (q *PgxQuerier) InsertSession(ctx context.Context, id, title string) (SessionRow, error) {
	var row SessionRow
	err := q.pool.QueryRow(ctx, insertSessionSQL, id, title).Scan(
		&row.ID, &row.Title, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return SessionRow{}, fmt.Errorf("insert session: %w", err)
	}
	return row, nil
}

func (q *PgxQuerier) GetSession(ctx context.Context, id string) (SessionRow, error) {
	var row SessionRow
	err := q.pool.QueryRow(ctx, getSessionSQL, id).Scan(
		&row.ID, &row.Title, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return SessionRow{}, err
	}
	return row, nil
}

func (q *PgxQuerier) ListSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	rows, err := q.pool.Query(ctx, listSessionsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var row SessionRow
		if err := rows.Scan(&row.ID, &row.Title, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (q *PgxQuerier) DeleteSession(ctx context.Context, id string) (int64, error) {
	tag, err := q.pool.Exec(ctx, deleteSessionSQL, id)
	if err != nil {
		return 0, fmt.Errorf("delete session: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *PgxQuerier) InsertTurn(ctx context.Context, arg InsertTurnParams) (TurnRow, error) {
	var row TurnRow
	err := q.pool.QueryRow(ctx, insertTurnSQL,
		arg.SessionID, arg.Role, arg.Content, arg.Citations,
	).Scan(&row.ID, &row.SessionID, &row.Role, &row.Content, &row.Citations, &row.CreatedAt)
	if err != nil {
		return TurnRow{}, fmt.Errorf("insert turn: %w", err)
	}
	return row, nil
}

func (q *PgxQuerier) ListTurns(ctx context.Context, sessionID string) ([]TurnRow, error) {
	rows, err := q.pool.Query(ctx, listTurnsSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var out []TurnRow
	for rows.Next() {
		var row TurnRow
		err := rows.Scan(&row.ID, &row.SessionID, &row.Role, &row.Content,
			&row.Citations, &row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Store manages conversation sessions.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries Querier
	logger  log.Logger
}

// NewStore creates a Store.
func NewStore(querier Querier, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{queries: querier, logger: logger}
}

// Create starts a new session.
func (s *Store) Create(ctx context.Context, title string) (Session, error) {
	row, err := s.queries.InsertSession(ctx, uuid.NewString(), title)
	if err != nil {
		return Session{}, fmt.Errorf("creating session: %w", err)
	}
	s.logger.Debug("created session", "session_id", row.ID)
	return sessionFromRow(row), nil
}

// Get fetches a session by ID. Returns ErrNotFound when unknown.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	row, err := s.queries.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Session{}, fmt.Errorf("getting session %q: %w", id, err)
	}
	return sessionFromRow(row), nil
}

// List returns sessions ordered by most recent activity.
func (s *Store) List(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.queries.ListSessions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	sessions := make([]Session, len(rows))
	for i, row := range rows {
		sessions[i] = sessionFromRow(row)
	}
	return sessions, nil
}

// Delete removes a session and its turns.
func (s *Store) Delete(ctx context.Context, id string) error {
	affected, err := s.queries.DeleteSession(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting session %q: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// AppendTurn appends one turn to a session.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, role Role, content string, citations []rag.Citation) (Turn, error) {
	if citations == nil {
		citations = []rag.Citation{}
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return Turn{}, fmt.Errorf("marshaling citations: %w", err)
	}

	row, err := s.queries.InsertTurn(ctx, InsertTurnParams{
		SessionID: sessionID,
		Role:      string(role),
		Content:   content,
		Citations: citationsJSON,
	})
	if err != nil {
		return Turn{}, fmt.Errorf("appending turn to %q: %w", sessionID, err)
	}
	return s.turnFromRow(row), nil
}

// Turns returns all turns of a session in insertion order.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.queries.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing turns for %q: %w", sessionID, err)
	}
	turns := make([]Turn, len(rows))
	for i, row := range rows {
		turns[i] = s.turnFromRow(row)
	}
	return turns, nil
}

func sessionFromRow(row SessionRow) Session {
	return Session{
		ID:        row.ID,
		Title:     row.Title,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func (s *Store) turnFromRow(row TurnRow) Turn {
	var citations []rag.Citation
	if err := json.Unmarshal(row.Citations, &citations); err != nil {
		s.logger.Warn("failed to parse turn citations",
			"turn_id", row.ID, "error", err)
	}
	return Turn{
		ID:        row.ID,
		SessionID: row.SessionID,
		Role:      Role(row.Role),
		Content:   row.Content,
		Citations: citations,
		CreatedAt: row.CreatedAt,
	}
}
