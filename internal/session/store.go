package session

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cleared-dev/invoicer/internal/model"
)

//go:embed schema.sql
var schema string

// ErrNoSession is returned when an operation needs a logged-in user.
var ErrNoSession = errors.New("not logged in")

// Tokens are the bearer credentials issued at sign-in.
type Tokens struct {
	Access  string `json:"accessToken"`
	Refresh string `json:"refreshToken"`
}

// Session is the persisted login state.
type Session struct {
	User   model.User
	Tokens Tokens
}

// Store persists the current session in SQLite so that it survives
// between invocations. It holds at most one session.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the session database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("session path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging session db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying session schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save records a new login, replacing any previous session.
func (s *Store) Save(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session (id, user_id, username, email, roles, access_token, refresh_token, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   user_id = excluded.user_id,
		   username = excluded.username,
		   email = excluded.email,
		   roles = excluded.roles,
		   access_token = excluded.access_token,
		   refresh_token = excluded.refresh_token,
		   updated_at = excluded.updated_at`,
		sess.User.ID, sess.User.Username, sess.User.Email, strings.Join(sess.User.Roles, ","),
		sess.Tokens.Access, sess.Tokens.Refresh, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Clear logs out.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// CurrentUser returns the logged-in user, or nil when nobody is logged in.
func (s *Store) CurrentUser(ctx context.Context) (*model.User, error) {
	sess, ok, err := s.load(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return &sess.User, nil
}

// Tokens returns the stored tokens, or ErrNoSession.
func (s *Store) Tokens(ctx context.Context) (Tokens, error) {
	sess, ok, err := s.load(ctx)
	if err != nil {
		return Tokens{}, err
	}
	if !ok {
		return Tokens{}, ErrNoSession
	}
	return sess.Tokens, nil
}

// SaveTokens stores refreshed tokens for the current session.
func (s *Store) SaveTokens(ctx context.Context, tokens Tokens) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE session SET access_token = ?, refresh_token = ?, updated_at = ? WHERE id = 1`,
		tokens.Access, tokens.Refresh, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving tokens: %w", err)
	}
	if n == 0 {
		return ErrNoSession
	}
	return nil
}

func (s *Store) load(ctx context.Context) (Session, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, email, roles, access_token, refresh_token FROM session WHERE id = 1`)

	var sess Session
	var roles string
	if err := row.Scan(
		&sess.User.ID,
		&sess.User.Username,
		&sess.User.Email,
		&roles,
		&sess.Tokens.Access,
		&sess.Tokens.Refresh,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("loading session: %w", err)
	}
	if roles != "" {
		sess.User.Roles = strings.Split(roles, ",")
	}
	return sess, true, nil
}
