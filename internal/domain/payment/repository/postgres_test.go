package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment"
)

func newMockLedger(t *testing.T) (*PostgresLedger, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresLedger(mock), mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func samplePayment() payment.Record {
	return payment.Record{
		RecipientName:    "JANEZ NOVAK",
		RecipientAddress: "Slovenska 1 1000 Ljubljana",
		IBAN:             "SI56020170014356205",
		AmountCents:      2874,
		Reference:        "SI1912345-67890",
		Purpose:          "Prispevek za januar",
		PurposeCode:      "OTHR",
		Source:           payment.SourceQR,
	}
}

// ============================================================================
// RecordConversion
// ============================================================================

func TestRecordConversion_InsertsConversionAndPayments(t *testing.T) {
	ledger, mock := newMockLedger(t)
	ctx := context.Background()

	id := uuid.New()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := samplePayment()
	conv := &Conversion{
		ID:         id,
		SourceName: "upn.pdf",
		Origin:     OriginMail,
		MessageID:  "<abc@example.com>",
		QRCount:    1,
		TotalCents: 2874,
		Status:     StatusConverted,
		Payments:   []payment.Record{p},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO conversions").
		WithArgs(id, "upn.pdf", "mail", "<abc@example.com>", 1, 1, int64(2874), "converted").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectExec("INSERT INTO conversion_payments").
		WithArgs(id, 1, p.RecipientName, p.RecipientAddress, p.IBAN, p.Reference, p.AmountCents, p.Purpose, p.PurposeCode, "qr").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := ledger.RecordConversion(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, created, conv.CreatedAt)
	assert.Equal(t, 1, conv.PaymentCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordConversion_AssignsID(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO conversions").
		WithArgs(pgxmock.AnyArg(), "empty.pdf", "cli", "", 0, 0, int64(0), "no_payments").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	conv := &Conversion{SourceName: "empty.pdf", Origin: OriginCLI, Status: StatusNoPayments}
	require.NoError(t, ledger.RecordConversion(context.Background(), conv))
	assert.NotEqual(t, uuid.Nil, conv.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordConversion_RollsBackOnPaymentError(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO conversions").
		WithArgs(anyArgs(8)...).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec("INSERT INTO conversion_payments").
		WithArgs(anyArgs(10)...).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	conv := &Conversion{
		SourceName: "upn.pdf",
		Origin:     OriginCLI,
		Status:     StatusConverted,
		Payments:   []payment.Record{samplePayment()},
	}
	err := ledger.RecordConversion(context.Background(), conv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert payment 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordConversion_BeginError(t *testing.T) {
	ledger, mock := newMockLedger(t)
	mock.ExpectBegin().WillReturnError(errors.New("pool closed"))

	err := ledger.RecordConversion(context.Background(), &Conversion{SourceName: "x.pdf"})
	assert.ErrorContains(t, err, "failed to begin transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================================================
// Reads
// ============================================================================

func TestRecentConversions(t *testing.T) {
	ledger, mock := newMockLedger(t)

	id := uuid.New()
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "source_name", "origin", "message_id", "qr_count", "payment_count", "total_cents", "status", "created_at",
	}).AddRow(id, "upn.pdf", "mail", "<m@x>", 2, 2, int64(5748), "converted", created)

	mock.ExpectQuery("FROM conversions").WithArgs(DefaultRecentLimit).WillReturnRows(rows)

	got, err := ledger.RecentConversions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, OriginMail, got[0].Origin)
	assert.Equal(t, StatusConverted, got[0].Status)
	assert.Equal(t, 2, got[0].PaymentCount)
	assert.Equal(t, int64(5748), got[0].TotalCents)
	assert.Equal(t, created, got[0].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPayments(t *testing.T) {
	ledger, mock := newMockLedger(t)

	id := uuid.New()
	p := samplePayment()
	rows := pgxmock.NewRows([]string{
		"recipient_name", "recipient_address", "iban", "reference", "amount_cents", "purpose", "purpose_code", "source",
	}).AddRow(p.RecipientName, p.RecipientAddress, p.IBAN, p.Reference, p.AmountCents, p.Purpose, p.PurposeCode, "qr")

	mock.ExpectQuery("FROM conversion_payments").WithArgs(id).WillReturnRows(rows)

	got, err := ledger.Payments(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []payment.Record{p}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================================================
// Reply log
// ============================================================================

func TestHasReplied(t *testing.T) {
	tests := []struct {
		name   string
		exists bool
	}{
		{"already replied", true},
		{"not yet replied", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, mock := newMockLedger(t)
			mock.ExpectQuery("SELECT EXISTS").
				WithArgs("<m@x>").
				WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(tt.exists))

			got, err := ledger.HasReplied(context.Background(), "<m@x>")
			require.NoError(t, err)
			assert.Equal(t, tt.exists, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHasReplied_EmptyMessageIDSkipsQuery(t *testing.T) {
	ledger, mock := newMockLedger(t)

	got, err := ledger.HasReplied(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReplied(t *testing.T) {
	ledger, mock := newMockLedger(t)
	mock.ExpectExec("INSERT INTO replied_messages").
		WithArgs("<m@x>").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, ledger.MarkReplied(context.Background(), "<m@x>"))
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.ErrorIs(t, ledger.MarkReplied(context.Background(), ""), ErrEmptyMessageID)
}
