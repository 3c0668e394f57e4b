package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/SejinDoesArt/twittertruefriends/internal/model"
)

// DefaultTTL bounds how long a browser session stays usable.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned when a session id is unknown or expired.
var ErrNotFound = errors.New("session not found")

// Session is one browser session's server-side state: the in-flight
// OAuth handshake values and, after callback completion, the
// credential.
type Session struct {
	ID           string
	State        string
	CodeVerifier string
	AccessToken  string
	UserID       string
	Expires      time.Time
}

// Credential returns the session's access credential; Valid() is false
// until the OAuth callback has completed.
func (s Session) Credential() model.Credential {
	return model.Credential{AccessToken: s.AccessToken, UserID: s.UserID}
}

// Store keeps sessions in SQLite so they survive process restarts.
// Expired rows read as absent and are purged on read.
type Store struct {
	sql *sql.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens (or creates) the session database. Use ":memory:" for
// tests.
func Open(path string, ttl time.Duration) (*Store, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil { return nil, err }
	// In-memory databases exist per connection; the pool must not
	// hand out a second one.
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil { return nil, err }
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{sql: d, ttl: ttl, now: time.Now}
	if err := s.migrate(); err != nil { _ = d.Close(); return nil, err }
	return s, nil
}

func (s *Store) Close() error { return s.sql.Close() }

// SetClock injects a clock for expiry tests.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) migrate() error {
	_, err := s.sql.Exec(`
	CREATE TABLE IF NOT EXISTS sessions (
	  id TEXT PRIMARY KEY,
	  state TEXT NOT NULL DEFAULT '',
	  code_verifier TEXT NOT NULL DEFAULT '',
	  access_token TEXT NOT NULL DEFAULT '',
	  user_id TEXT NOT NULL DEFAULT '',
	  expires INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires);
	`)
	return err
}

// Create inserts a fresh session with a random id.
func (s *Store) Create(ctx context.Context) (Session, error) {
	id, err := randomID()
	if err != nil {
		return Session{}, err
	}
	exp := s.now().Add(s.ttl)
	_, err = s.sql.ExecContext(ctx, `INSERT INTO sessions(id, expires) VALUES(?,?)`, id, exp.Unix())
	if err != nil {
		return Session{}, err
	}
	return Session{ID: id, Expires: exp}, nil
}

// Get loads a live session. Expired rows are deleted and reported as
// ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	row := s.sql.QueryRowContext(ctx,
		`SELECT id, state, code_verifier, access_token, user_id, expires FROM sessions WHERE id=?`, id)
	var out Session
	var exp int64
	err := row.Scan(&out.ID, &out.State, &out.CodeVerifier, &out.AccessToken, &out.UserID, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	out.Expires = time.Unix(exp, 0).UTC()
	if s.now().After(out.Expires) {
		_, _ = s.sql.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
		return Session{}, ErrNotFound
	}
	return out, nil
}

// SaveAuthRequest records the OAuth state and PKCE verifier for the
// redirect leg of the handshake.
func (s *Store) SaveAuthRequest(ctx context.Context, id, state, verifier string) error {
	return s.update(ctx, `UPDATE sessions SET state=?, code_verifier=? WHERE id=?`, state, verifier, id)
}

// SaveCredential records the exchanged token and owning user id, and
// clears the handshake values.
func (s *Store) SaveCredential(ctx context.Context, id, accessToken, userID string) error {
	return s.update(ctx, `UPDATE sessions SET access_token=?, user_id=?, state='', code_verifier='' WHERE id=?`,
		accessToken, userID, id)
}

func (s *Store) update(ctx context.Context, query string, args ...any) error {
	res, err := s.sql.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Destroy removes a session. Destroying an unknown id is not an error.
func (s *Store) Destroy(ctx context.Context, id string) error {
	_, err := s.sql.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
	return err
}

// PurgeExpired removes all rows past their expiry.
func (s *Store) PurgeExpired(ctx context.Context) error {
	_, err := s.sql.ExecContext(ctx, `DELETE FROM sessions WHERE expires<?`, s.now().Unix())
	return err
}

func randomID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
