// Package payment defines the payment record shared by the UPN parsers, the
// EPC encoder and the document writers.
package payment

import (
	"strings"
	"unicode"

	"github.com/FACorreiaa/upn-epc-bridge/pkg/money"
)

// Defaults applied when a source document leaves a field blank.
const (
	DefaultRecipient = "Recipient"
	DefaultPurpose   = "UPN payment"
)

// Source identifies which extraction path produced a record.
type Source string

const (
	SourceQR   Source = "qr"
	SourceText Source = "text"
)

// Record is a single payment order. Records are built once by a parser and
// never modified afterwards.
type Record struct {
	RecipientName    string
	RecipientAddress string
	IBAN             string
	AmountCents      int64
	Reference        string
	Purpose          string
	PurposeCode      string
	PayerReference   string
	Source           Source
}

// Key identifies a payment across extraction paths.
type Key struct {
	IBAN        string
	Reference   string
	AmountCents int64
}

// Key returns the dedup identity of the record.
func (r Record) Key() Key {
	return Key{IBAN: r.IBAN, Reference: r.Reference, AmountCents: r.AmountCents}
}

// Amount returns the record amount as EUR money.
func (r Record) Amount() *money.Money {
	return money.Euros(r.AmountCents)
}

// Dedupe keeps the first record for every key, preserving input order.
func Dedupe(records []Record) []Record {
	seen := make(map[Key]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Total sums the amounts of all records.
func Total(records []Record) *money.Money {
	cents := make([]int64, len(records))
	for i, r := range records {
		cents[i] = r.AmountCents
	}
	return money.Sum(money.EUR, cents...)
}

// NormalizeIBAN removes all whitespace and uppercases the account number.
func NormalizeIBAN(iban string) string {
	return strings.ToUpper(StripSpaces(iban))
}

// StripSpaces removes every whitespace rune from s.
func StripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// CollapseSpaces trims s and replaces whitespace runs with a single space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
