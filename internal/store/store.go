// Package store persists registered users and the LeetCode usernames they
// follow, backed by PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors for the persistence layer.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const pgUniqueViolation = "23505"

// User is a registered account. LeetCodeUsername is nil until the user links
// one.
type User struct {
	ID               int
	Username         string
	PasswordHash     string
	LeetCodeUsername *string
	CreatedAt        time.Time
}

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool, mainly for tests.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateUser inserts a new account and returns it with its assigned ID.
// A taken username comes back as ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash)
		 VALUES ($1, $2)
		 RETURNING id, username, password_hash, leetcode_username, created_at`,
		username, passwordHash,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.LeetCodeUsername, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return User{}, fmt.Errorf("username %q: %w", username, ErrDuplicate)
		}
		return User{}, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetUserByUsername looks up an account by its login name.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return s.getUser(ctx,
		`SELECT id, username, password_hash, leetcode_username, created_at
		 FROM users WHERE username = $1`, username)
}

// GetUserByID looks up an account by primary key.
func (s *Store) GetUserByID(ctx context.Context, id int) (User, error) {
	return s.getUser(ctx,
		`SELECT id, username, password_hash, leetcode_username, created_at
		 FROM users WHERE id = $1`, id)
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.LeetCodeUsername, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("user: %w", ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

// SetLeetCodeUsername links (or relinks) the account's own LeetCode
// username.
func (s *Store) SetLeetCodeUsername(ctx context.Context, userID int, leetcodeUsername string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET leetcode_username = $1 WHERE id = $2`,
		leetcodeUsername, userID)
	if err != nil {
		return fmt.Errorf("updating leetcode username: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return nil
}

// Follow records that userID follows leetcodeUsername. Following a name
// twice is a no-op.
func (s *Store) Follow(ctx context.Context, userID int, leetcodeUsername string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO follows (user_id, leetcode_username)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id, leetcode_username) DO NOTHING`,
		userID, leetcodeUsername)
	if err != nil {
		return fmt.Errorf("adding follow: %w", err)
	}
	return nil
}

// Unfollow removes a follow. Removing one that does not exist is a no-op.
func (s *Store) Unfollow(ctx context.Context, userID int, leetcodeUsername string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM follows WHERE user_id = $1 AND leetcode_username = $2`,
		userID, leetcodeUsername)
	if err != nil {
		return fmt.Errorf("removing follow: %w", err)
	}
	return nil
}

// ListFollowed returns the LeetCode usernames userID follows, oldest follow
// first so fan-out results stay in a stable order.
func (s *Store) ListFollowed(ctx context.Context, userID int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT leetcode_username FROM follows
		 WHERE user_id = $1 ORDER BY followed_at, leetcode_username`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("listing follows: %w", err)
	}
	defer rows.Close()

	usernames := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning follow: %w", err)
		}
		usernames = append(usernames, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading follows: %w", err)
	}
	return usernames, nil
}

// Ping checks database connectivity, for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
