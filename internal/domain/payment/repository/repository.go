// Package repository records conversions and mailbox replies in PostgreSQL.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment"
)

// Status of a recorded conversion
type Status string

const (
	StatusConverted  Status = "converted"
	StatusNoPayments Status = "no_payments"
	StatusFailed     Status = "failed"
)

// Origin of a conversion request
type Origin string

const (
	OriginCLI  Origin = "cli"
	OriginMail Origin = "mail"
)

// Conversion is one processed input document
type Conversion struct {
	ID         uuid.UUID
	SourceName string
	Origin     Origin
	MessageID  string
	QRCount    int
	TotalCents int64
	Status     Status
	Payments   []payment.Record
	CreatedAt  time.Time

	// PaymentCount is filled when reading; on write it is len(Payments).
	PaymentCount int
}

// Ledger defines the persistence operations of the conversion history
type Ledger interface {
	// RecordConversion stores the conversion and its payments atomically
	RecordConversion(ctx context.Context, c *Conversion) error

	// RecentConversions returns the newest conversions without their payments
	RecentConversions(ctx context.Context, limit int) ([]Conversion, error)

	// Payments returns the payments of one conversion in document order
	Payments(ctx context.Context, conversionID uuid.UUID) ([]payment.Record, error)

	// HasReplied reports whether a reply was already sent for a message
	HasReplied(ctx context.Context, messageID string) (bool, error)

	// MarkReplied records a sent reply; repeated calls are no-ops
	MarkReplied(ctx context.Context, messageID string) error
}

// DB is the subset of the pgx pool the ledger uses. *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}
