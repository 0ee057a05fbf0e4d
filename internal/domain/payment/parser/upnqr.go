// Package parser recovers payment records from UPN QR payloads and, as a
// lower-confidence fallback, from the linearized text of a payment-order PDF.
package parser

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment"
)

// UPN QR field positions (0-indexed lines).
const (
	upnHeader      = "UPNQR"
	upnFieldCount  = 19
	upnAmountDigit = 11

	lineHeader      = 0
	lineAmount      = 8
	linePurposeCode = 11
	linePurposeText = 12
	lineIBAN        = 14
	lineReference   = 15
	lineName        = 16
	lineStreet      = 17
	lineCity        = 18
)

// ParseUPN decodes a single UPN QR payload. It reports false for anything that
// is not a well-formed payload; it never returns a partial record.
func ParseUPN(content string) (payment.Record, bool) {
	if strings.TrimSpace(content) == "" {
		return payment.Record{}, false
	}

	// Trailing fields may be empty, so only the leading whitespace is cut and
	// line positions are kept.
	lines := strings.Split(strings.TrimLeft(content, " \t\r\n"), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	for len(lines) > upnFieldCount && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > upnFieldCount && isChecksum(lines[len(lines)-1]) {
		lines = lines[:len(lines)-1]
	}
	if len(lines) < upnFieldCount {
		return payment.Record{}, false
	}
	if lines[lineHeader] != upnHeader {
		return payment.Record{}, false
	}

	cents, ok := parseUPNAmount(lines[lineAmount])
	if !ok {
		return payment.Record{}, false
	}

	iban := payment.NormalizeIBAN(lines[lineIBAN])
	if !strings.HasPrefix(iban, "SI") || len(iban) != 19 {
		return payment.Record{}, false
	}

	code := firstRunes(lines[linePurposeCode], 4)
	purpose := lines[linePurposeText]
	if purpose == "" {
		purpose = code
	}
	if purpose == "" {
		purpose = payment.DefaultPurpose
	}

	name := lines[lineName]
	if name == "" {
		name = payment.DefaultRecipient
	}

	return payment.Record{
		RecipientName:    name,
		RecipientAddress: joinNonEmpty(lines[lineStreet], lines[lineCity]),
		IBAN:             iban,
		AmountCents:      cents,
		Reference:        payment.StripSpaces(lines[lineReference]),
		Purpose:          purpose,
		PurposeCode:      code,
		Source:           payment.SourceQR,
	}, true
}

// ParseAll parses every payload, skips the invalid ones and removes
// duplicates by payment key, keeping the first occurrence.
func ParseAll(contents []string) []payment.Record {
	records := make([]payment.Record, 0, len(contents))
	for _, c := range contents {
		if r, ok := ParseUPN(c); ok {
			records = append(records, r)
		}
	}
	return payment.Dedupe(records)
}

// parseUPNAmount reads the 11-digit amount field, in cents.
func parseUPNAmount(field string) (int64, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, field)
	if len(digits) != upnAmountDigit {
		return 0, false
	}
	cents, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || cents < 0 {
		return 0, false
	}
	return cents, true
}

func isChecksum(line string) bool {
	if len(line) != 3 {
		return false
	}
	for _, r := range line {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func firstRunes(s string, n int) string {
	s = strings.TrimFunc(s, unicode.IsSpace)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
