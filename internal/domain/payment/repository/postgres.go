package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment"
)

// DefaultRecentLimit caps RecentConversions when the caller passes no limit.
const DefaultRecentLimit = 20

// ErrEmptyMessageID is returned when a reply is recorded without a Message-ID.
var ErrEmptyMessageID = errors.New("message id is empty")

// PostgresLedger implements Ledger using PostgreSQL
type PostgresLedger struct {
	db DB
}

// NewPostgresLedger creates a new PostgreSQL ledger
func NewPostgresLedger(db DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// RecordConversion inserts the conversion row and one row per payment in a
// single transaction.
func (l *PostgresLedger) RecordConversion(ctx context.Context, c *Conversion) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.PaymentCount = len(c.Payments)

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := `
		INSERT INTO conversions (id, source_name, origin, message_id, qr_count, payment_count, total_cents, status)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
		RETURNING created_at`

	err = tx.QueryRow(ctx, query,
		c.ID,
		c.SourceName,
		string(c.Origin),
		c.MessageID,
		c.QRCount,
		c.PaymentCount,
		c.TotalCents,
		string(c.Status),
	).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert conversion: %w", err)
	}

	paymentQuery := `
		INSERT INTO conversion_payments (conversion_id, position, recipient_name, recipient_address, iban, reference, amount_cents, purpose, purpose_code, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for i, p := range c.Payments {
		_, err = tx.Exec(ctx, paymentQuery,
			c.ID,
			i+1,
			p.RecipientName,
			p.RecipientAddress,
			p.IBAN,
			p.Reference,
			p.AmountCents,
			p.Purpose,
			p.PurposeCode,
			string(p.Source),
		)
		if err != nil {
			return fmt.Errorf("failed to insert payment %d: %w", i+1, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit conversion: %w", err)
	}
	return nil
}

// RecentConversions lists the newest conversions first.
func (l *PostgresLedger) RecentConversions(ctx context.Context, limit int) ([]Conversion, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := `
		SELECT id, source_name, origin, COALESCE(message_id, ''), qr_count, payment_count, total_cents, status, created_at
		FROM conversions
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := l.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	defer rows.Close()

	var out []Conversion
	for rows.Next() {
		var (
			c              Conversion
			origin, status string
		)
		if err := rows.Scan(
			&c.ID,
			&c.SourceName,
			&origin,
			&c.MessageID,
			&c.QRCount,
			&c.PaymentCount,
			&c.TotalCents,
			&status,
			&c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}
		c.Origin = Origin(origin)
		c.Status = Status(status)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversions: %w", err)
	}
	return out, nil
}

// Payments loads the payments of a conversion.
func (l *PostgresLedger) Payments(ctx context.Context, conversionID uuid.UUID) ([]payment.Record, error) {
	query := `
		SELECT recipient_name, recipient_address, iban, reference, amount_cents, purpose, purpose_code, source
		FROM conversion_payments
		WHERE conversion_id = $1
		ORDER BY position`

	rows, err := l.db.Query(ctx, query, conversionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []payment.Record
	for rows.Next() {
		var (
			r      payment.Record
			source string
		)
		if err := rows.Scan(
			&r.RecipientName,
			&r.RecipientAddress,
			&r.IBAN,
			&r.Reference,
			&r.AmountCents,
			&r.Purpose,
			&r.PurposeCode,
			&source,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		r.Source = payment.Source(source)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return out, nil
}

// HasReplied checks the reply log for a Message-ID.
func (l *PostgresLedger) HasReplied(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}

	query := `SELECT EXISTS (SELECT 1 FROM replied_messages WHERE message_id = $1)`

	var exists bool
	if err := l.db.QueryRow(ctx, query, messageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check reply: %w", err)
	}
	return exists, nil
}

// MarkReplied records a reply for a Message-ID.
func (l *PostgresLedger) MarkReplied(ctx context.Context, messageID string) error {
	if messageID == "" {
		return ErrEmptyMessageID
	}

	query := `
		INSERT INTO replied_messages (message_id)
		VALUES ($1)
		ON CONFLICT (message_id) DO NOTHING`

	if _, err := l.db.Exec(ctx, query, messageID); err != nil {
		return fmt.Errorf("failed to mark reply: %w", err)
	}
	return nil
}
