package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Mutter0815/quotamailer/internal/campaign"
)

// ErrCorrupt marks persisted state that exists but cannot be read back.
var ErrCorrupt = errors.New("state store unreadable")

type SQLStore struct {
	DB *sql.DB
}

func NewSQL(db *sql.DB) *SQLStore { return &SQLStore{DB: db} }

func (s *SQLStore) LoadSentAddresses(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT recipient_email FROM sent_log`)
	if err != nil {
		return nil, fmt.Errorf("%w: query sent_log: %v", ErrCorrupt, err)
	}
	defer rows.Close()

	sent := make(map[string]struct{})
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("%w: scan sent_log: %v", ErrCorrupt, err)
		}
		if addr = strings.TrimSpace(addr); addr != "" {
			sent[addr] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read sent_log: %v", ErrCorrupt, err)
	}
	return sent, nil
}

func (s *SQLStore) RecordSend(ctx context.Context, rec campaign.SentRecord) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sent_log (sent_at, recipient_email, sender_email)
		VALUES ($1,$2,$3)
	`, rec.Timestamp.UTC(), rec.RecipientEmail, rec.SenderEmail)
	return err
}

func (s *SQLStore) LoadUnsubscribes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT email FROM unsubscribes`)
	if err != nil {
		return nil, fmt.Errorf("%w: query unsubscribes: %v", ErrCorrupt, err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("%w: scan unsubscribes: %v", ErrCorrupt, err)
		}
		if addr = NormalizeAddress(addr); addr != "" {
			out[addr] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read unsubscribes: %v", ErrCorrupt, err)
	}
	return out, nil
}

// NormalizeAddress is the key used for unsubscribe lookups.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
