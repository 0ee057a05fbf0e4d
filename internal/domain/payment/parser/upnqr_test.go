package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/paymenttest"
)

const janezPayload = "UPNQR\n\n\n\n\n\n\n\n00000002874\n\n\nOTHR\nPrispevek za DO\n\nSI56110022334455667\nSI19 12345-67890\nJANEZ NOVAK\nDUNAJSKA 1\nLJUBLJANA\n"

func TestParseUPN(t *testing.T) {
	t.Run("parses the reference order", func(t *testing.T) {
		r, ok := ParseUPN(janezPayload)
		require.True(t, ok)

		assert.Equal(t, int64(2874), r.AmountCents)
		assert.Equal(t, "SI1912345-67890", r.Reference)
		assert.Equal(t, "JANEZ NOVAK", r.RecipientName)
		assert.Equal(t, "DUNAJSKA 1 LJUBLJANA", r.RecipientAddress)
		assert.Equal(t, "SI56110022334455667", r.IBAN)
		assert.Equal(t, "Prispevek za DO", r.Purpose)
		assert.Equal(t, "OTHR", r.PurposeCode)
		assert.Equal(t, payment.SourceQR, r.Source)
	})

	t.Run("builder payload matches the literal", func(t *testing.T) {
		assert.Equal(t, janezPayload, paymenttest.JanezNovak().Payload())
	})

	t.Run("strips checksum line", func(t *testing.T) {
		u := paymenttest.JanezNovak()
		u.Checksum = true
		r, ok := ParseUPN(u.Payload())
		require.True(t, ok)
		assert.Equal(t, "DUNAJSKA 1 LJUBLJANA", r.RecipientAddress)
	})

	t.Run("IBAN with spaces is normalized", func(t *testing.T) {
		u := paymenttest.JanezNovak()
		u.IBAN = "si56 1100 2233 4455 667"
		r, ok := ParseUPN(u.Payload())
		require.True(t, ok)
		assert.Equal(t, "SI56110022334455667", r.IBAN)
	})

	t.Run("zero amount is accepted", func(t *testing.T) {
		u := paymenttest.JanezNovak()
		u.AmountCents = 0
		r, ok := ParseUPN(u.Payload())
		require.True(t, ok)
		assert.Zero(t, r.AmountCents)
	})

	t.Run("CRLF line endings", func(t *testing.T) {
		r, ok := ParseUPN(strings.ReplaceAll(janezPayload, "\n", "\r\n"))
		require.True(t, ok)
		assert.Equal(t, "JANEZ NOVAK", r.RecipientName)
	})
}

func TestParseUPN_Defaults(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(u *paymenttest.UPN)
		wantName    string
		wantPurpose string
		wantAddress string
	}{
		{
			name:        "blank name",
			mutate:      func(u *paymenttest.UPN) { u.Name = "" },
			wantName:    payment.DefaultRecipient,
			wantPurpose: "Prispevek za DO",
			wantAddress: "DUNAJSKA 1 LJUBLJANA",
		},
		{
			name:        "purpose falls back to code",
			mutate:      func(u *paymenttest.UPN) { u.Purpose = "" },
			wantName:    "JANEZ NOVAK",
			wantPurpose: "OTHR",
			wantAddress: "DUNAJSKA 1 LJUBLJANA",
		},
		{
			name: "purpose falls back to default",
			mutate: func(u *paymenttest.UPN) {
				u.Purpose = ""
				u.PurposeCode = ""
			},
			wantName:    "JANEZ NOVAK",
			wantPurpose: payment.DefaultPurpose,
			wantAddress: "DUNAJSKA 1 LJUBLJANA",
		},
		{
			name:        "street only",
			mutate:      func(u *paymenttest.UPN) { u.City = "" },
			wantName:    "JANEZ NOVAK",
			wantPurpose: "Prispevek za DO",
			wantAddress: "DUNAJSKA 1",
		},
		{
			name: "no address",
			mutate: func(u *paymenttest.UPN) {
				u.Street = ""
				u.City = ""
			},
			wantName:    "JANEZ NOVAK",
			wantPurpose: "Prispevek za DO",
			wantAddress: "",
		},
		{
			name: "no name or address",
			mutate: func(u *paymenttest.UPN) {
				u.Name = ""
				u.Street = ""
				u.City = ""
			},
			wantName:    payment.DefaultRecipient,
			wantPurpose: "Prispevek za DO",
			wantAddress: "",
		},
		{
			name: "empty city with checksum",
			mutate: func(u *paymenttest.UPN) {
				u.City = ""
				u.Checksum = true
			},
			wantName:    "JANEZ NOVAK",
			wantPurpose: "Prispevek za DO",
			wantAddress: "DUNAJSKA 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := paymenttest.JanezNovak()
			tt.mutate(&u)

			r, ok := ParseUPN(u.Payload())
			require.True(t, ok)
			assert.Equal(t, tt.wantName, r.RecipientName)
			assert.Equal(t, tt.wantPurpose, r.Purpose)
			assert.Equal(t, tt.wantAddress, r.RecipientAddress)
		})
	}
}

func TestParseUPN_TrailingEmptyFields(t *testing.T) {
	u := paymenttest.JanezNovak()
	u.City = ""
	payload := u.Payload()
	require.Len(t, strings.Split(strings.TrimSuffix(payload, "\n"), "\n"), 19)

	tests := map[string]string{
		"as encoded":        payload,
		"no final newline":  strings.TrimSuffix(payload, "\n"),
		"extra blank lines": payload + "\n\n",
		"CRLF":              strings.ReplaceAll(payload, "\n", "\r\n"),
		"leading newline":   "\n" + payload,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			r, ok := ParseUPN(in)
			require.True(t, ok)
			assert.Equal(t, "JANEZ NOVAK", r.RecipientName)
			assert.Equal(t, "DUNAJSKA 1", r.RecipientAddress)
			assert.Equal(t, int64(2874), r.AmountCents)
		})
	}
}

func TestParseUPN_PurposeCodeTruncated(t *testing.T) {
	u := paymenttest.JanezNovak()
	u.PurposeCode = "OTHRX"
	r, ok := ParseUPN(u.Payload())
	require.True(t, ok)
	assert.Equal(t, "OTHR", r.PurposeCode)
}

func TestParseUPN_Invalid(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(janezPayload), "\n")
	with := func(idx int, value string) string {
		cp := append([]string(nil), lines...)
		cp[idx] = value
		return strings.Join(cp, "\n")
	}

	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"whitespace", "  \n\t "},
		{"too few lines", strings.Join(lines[:18], "\n")},
		{"wrong header", with(0, "UPN")},
		{"lowercase header", with(0, "upnqr")},
		{"short amount", with(8, "2874")},
		{"long amount", with(8, "000000028740")},
		{"empty amount", with(8, "")},
		{"foreign IBAN", with(14, "DE89370400440532013000")},
		{"short IBAN", with(14, "SI5611002233")},
		{"empty IBAN", with(14, "")},
		{"not a UPN payload", "https://example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := ParseUPN(tt.content)
			assert.False(t, ok)
			assert.Equal(t, payment.Record{}, r)
		})
	}
}

func TestParseUPN_ChecksumOnlyWhenExtraLine(t *testing.T) {
	// A 19-line payload whose last line happens to be three digits keeps it.
	u := paymenttest.JanezNovak()
	u.City = "123"
	r, ok := ParseUPN(u.Payload())
	require.True(t, ok)
	assert.Equal(t, "DUNAJSKA 1 123", r.RecipientAddress)
}

func TestParseUPN_AmountWithSeparators(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(janezPayload), "\n")
	lines[8] = "+0000000 2874"
	// "+" and space are stripped before the length check.
	r, ok := ParseUPN(strings.Join(lines, "\n"))
	require.True(t, ok)
	assert.Equal(t, int64(2874), r.AmountCents)
}

func TestParseUPN_GeneratedOrders(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			u := paymenttest.Fake(seed)
			u.Checksum = seed%2 == 0

			r, ok := ParseUPN(u.Payload())
			require.True(t, ok)
			assert.Equal(t, u.AmountCents, r.AmountCents)
			assert.Equal(t, u.IBAN, r.IBAN)
			assert.Equal(t, payment.StripSpaces(u.Reference), r.Reference)
			assert.Equal(t, strings.TrimSpace(u.Name), r.RecipientName)
		})
	}
}

func TestParseAll(t *testing.T) {
	other := paymenttest.JanezNovak()
	other.AmountCents = 1000
	renamed := paymenttest.JanezNovak()
	renamed.Name = "MARIJA NOVAK"

	records := ParseAll([]string{
		janezPayload,
		"garbage",
		other.Payload(),
		renamed.Payload(),
	})

	require.Len(t, records, 2)
	assert.Equal(t, int64(2874), records[0].AmountCents)
	assert.Equal(t, "JANEZ NOVAK", records[0].RecipientName)
	assert.Equal(t, int64(1000), records[1].AmountCents)
}

func TestParseAll_Empty(t *testing.T) {
	assert.Empty(t, ParseAll(nil))
	assert.Empty(t, ParseAll([]string{"", "UPNQR"}))
}
