// Package store is the Postgres layer for accounts and delivery preferences.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/srthkdev/newsletter-ai-sub000/config"
	"github.com/srthkdev/newsletter-ai-sub000/internal/scheduler"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

type Store struct {
	DB *sql.DB
}

// New opens the Postgres connection described by cfg and verifies it.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	pingCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Preferences is one user's persisted newsletter settings.
type Preferences struct {
	UserID    string    `json:"user_id"`
	Topics    []string  `json:"topics"`
	Frequency string    `json:"frequency"`
	SendTime  string    `json:"send_time"`
	Timezone  string    `json:"timezone"`
	Tone      string    `json:"tone"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User operations

func (s *Store) CreateUser(ctx context.Context, email, hash string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2) RETURNING id`, email, hash).Scan(&id)
	return id, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	return
}

func (s *Store) GetUserEmail(ctx context.Context, userID string) (string, error) {
	var email string
	err := s.DB.QueryRowContext(ctx, `SELECT email FROM users WHERE id=$1`, userID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return email, err
}

// Preference operations

func (s *Store) UpsertPreferences(ctx context.Context, p Preferences) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO preferences (user_id, topics, frequency, send_time, timezone, tone, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (user_id) DO UPDATE SET
  topics = EXCLUDED.topics,
  frequency = EXCLUDED.frequency,
  send_time = EXCLUDED.send_time,
  timezone = EXCLUDED.timezone,
  tone = EXCLUDED.tone,
  updated_at = NOW()`,
		p.UserID, pq.Array(p.Topics), p.Frequency, p.SendTime, p.Timezone, p.Tone)
	return err
}

func (s *Store) GetPreferences(ctx context.Context, userID string) (Preferences, error) {
	p := Preferences{UserID: userID}
	err := s.DB.QueryRowContext(ctx, `
SELECT topics, frequency, send_time, timezone, tone, updated_at
FROM preferences WHERE user_id=$1`, userID).
		Scan(pq.Array(&p.Topics), &p.Frequency, &p.SendTime, &p.Timezone, &p.Tone, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// ListSubscribers joins users with their preferences, yielding the rows the
// scheduler seeds its job registry from.
func (s *Store) ListSubscribers(ctx context.Context) ([]scheduler.Subscriber, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT u.id, u.email, p.frequency, p.send_time, p.timezone
FROM users u
JOIN preferences p ON p.user_id = u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []scheduler.Subscriber
	for rows.Next() {
		var sub scheduler.Subscriber
		if err := rows.Scan(&sub.UserID, &sub.Email, &sub.Frequency, &sub.SendTime, &sub.Timezone); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
