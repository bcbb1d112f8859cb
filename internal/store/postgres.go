package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lumaproject/luma/pkg/logger"
	"github.com/lumaproject/luma/pkg/prefixed_uuid"
)

// Postgres is the pgxpool-backed Store. Schema is applied with embedded
// migrations at startup (see migrations.go). The accept conflict is enforced
// by ON CONFLICT DO NOTHING on the unique session assignment.
type Postgres struct {
	pool *pgxpool.Pool
	log  logger.Logger
}

// PoolConfig bounds the pgx pool. Zero values keep the pgx defaults.
type PoolConfig struct {
	MaxConns        int32
	ConnMaxLifetime time.Duration
}

func buildPoolConfig(dsn string, pc PoolConfig) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.ConnMaxLifetime > 0 {
		cfg.MaxConnLifetime = pc.ConnMaxLifetime
	}
	return cfg, nil
}

// NewPostgres connects a pool, runs migrations and returns the store.
func NewPostgres(ctx context.Context, dsn string, pc PoolConfig, log logger.Logger) (*Postgres, error) {
	cfg, err := buildPoolConfig(dsn, pc)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	mm := NewMigrationManager(pool, log)
	defer func() {
		_ = mm.Close()
	}()
	if err := mm.RunMigrations(); err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{pool: pool, log: log}, nil
}

// Pool exposes the underlying pool for health checks.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// CreateSession creates a new waiting session.
func (p *Postgres) CreateSession(ctx context.Context, category string) (*Session, error) {
	s := Session{
		ID:       prefixed_uuid.New("session").String(),
		Category: category,
	}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO sessions (session_id, category) VALUES ($1, $2) RETURNING created_at`,
		s.ID, s.Category,
	).Scan(&s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &s, nil
}

// GetSession returns a session by id.
func (p *Postgres) GetSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := p.pool.QueryRow(ctx,
		`SELECT s.session_id, s.created_at, s.category, s.ended_at, COALESCE(sa.counsellor_id, '')
		 FROM sessions s
		 LEFT JOIN session_assignments sa ON sa.session_id = s.session_id
		 WHERE s.session_id = $1`,
		id,
	).Scan(&s.ID, &s.CreatedAt, &s.Category, &s.EndedAt, &s.CounsellorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// EndSession marks a session ended.
func (p *Postgres) EndSession(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE sessions SET ended_at = COALESCE(ended_at, now()) WHERE session_id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// AppendMessage appends to the session log.
func (p *Postgres) AppendMessage(ctx context.Context, sessionID, sender, text string) (*Message, error) {
	s, err := p.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.EndedAt != nil {
		return nil, ErrSessionEnded
	}

	msg := Message{Sender: sender, Text: text}
	err = p.pool.QueryRow(ctx,
		`INSERT INTO messages (session_id, sender, message) VALUES ($1, $2, $3) RETURNING ts`,
		sessionID, sender, text,
	).Scan(&msg.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return &msg, nil
}

// ListMessages returns the full ordered log.
func (p *Postgres) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	if _, err := p.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT sender, message, ts FROM messages WHERE session_id = $1 ORDER BY ts ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Sender, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListAvailableSessions returns unassigned, unended sessions, oldest first.
func (p *Postgres) ListAvailableSessions(ctx context.Context) ([]Session, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT s.session_id, s.created_at, s.category
		 FROM sessions s
		 LEFT JOIN session_assignments sa ON sa.session_id = s.session_id
		 WHERE sa.session_id IS NULL AND s.ended_at IS NULL
		 ORDER BY s.created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list available sessions: %w", err)
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.Category); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AssignSession claims a session; the unique constraint makes a second claim
// insert zero rows.
func (p *Postgres) AssignSession(ctx context.Context, sessionID, counsellorID string) error {
	s, err := p.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.EndedAt != nil {
		return ErrSessionEnded
	}

	tag, err := p.pool.Exec(ctx,
		`INSERT INTO session_assignments (session_id, counsellor_id) VALUES ($1, $2)
		 ON CONFLICT (session_id) DO NOTHING`,
		sessionID, counsellorID,
	)
	if err != nil {
		return fmt.Errorf("assign session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionTaken
	}
	return nil
}

// RegisterCounsellor stores a counsellor with generated id and token.
func (p *Postgres) RegisterCounsellor(ctx context.Context, c Counsellor) (*Counsellor, error) {
	c.ID = prefixed_uuid.New("counsellor").String()
	c.Token = prefixed_uuid.New("lct").String()
	if c.Status == "" {
		c.Status = "pending"
	}

	err := p.pool.QueryRow(ctx,
		`INSERT INTO counsellors (counsellor_id, display_name, categories, languages, bio, status, token)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		c.ID, c.DisplayName, c.Categories, c.Languages, c.Bio, c.Status, c.Token,
	).Scan(&c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("register counsellor: %w", err)
	}
	return &c, nil
}

// CounsellorByToken resolves a bearer token.
func (p *Postgres) CounsellorByToken(ctx context.Context, token string) (*Counsellor, error) {
	var c Counsellor
	err := p.pool.QueryRow(ctx,
		`SELECT counsellor_id, display_name, categories, languages, bio, status, token, created_at
		 FROM counsellors WHERE token = $1`,
		token,
	).Scan(&c.ID, &c.DisplayName, &c.Categories, &c.Languages, &c.Bio, &c.Status, &c.Token, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCounsellorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("counsellor by token: %w", err)
	}
	return &c, nil
}

// ListCounsellors returns counsellors filtered by status, tokens redacted.
func (p *Postgres) ListCounsellors(ctx context.Context, status string) ([]Counsellor, error) {
	query := `SELECT counsellor_id, display_name, categories, languages, bio, status, created_at
	          FROM counsellors`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list counsellors: %w", err)
	}
	defer rows.Close()

	out := []Counsellor{}
	for rows.Next() {
		var c Counsellor
		if err := rows.Scan(&c.ID, &c.DisplayName, &c.Categories, &c.Languages, &c.Bio, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan counsellor: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the pool. The migration manager's connection is closed at
// startup; this only releases the query pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)
