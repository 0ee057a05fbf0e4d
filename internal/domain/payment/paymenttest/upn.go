// Package paymenttest builds UPN QR payloads for tests.
package paymenttest

import (
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
)

// UPN holds the fields of a UPN QR payload that the parser reads.
type UPN struct {
	AmountCents int64
	PurposeCode string
	Purpose     string
	IBAN        string
	Reference   string
	Name        string
	Street      string
	City        string
	// Checksum appends the trailing length line some issuers add.
	Checksum bool
}

// JanezNovak is the reference order used across packages.
func JanezNovak() UPN {
	return UPN{
		AmountCents: 2874,
		PurposeCode: "OTHR",
		Purpose:     "Prispevek za DO",
		IBAN:        "SI56110022334455667",
		Reference:   "SI19 12345-67890",
		Name:        "JANEZ NOVAK",
		Street:      "DUNAJSKA 1",
		City:        "LJUBLJANA",
	}
}

// Payload renders the order as a 19-line UPN QR payload.
func (u UPN) Payload() string {
	lines := make([]string, 19)
	lines[0] = "UPNQR"
	lines[8] = fmt.Sprintf("%011d", u.AmountCents)
	lines[11] = u.PurposeCode
	lines[12] = u.Purpose
	lines[14] = u.IBAN
	lines[15] = u.Reference
	lines[16] = u.Name
	lines[17] = u.Street
	lines[18] = u.City

	body := strings.Join(lines, "\n") + "\n"
	if u.Checksum {
		body += fmt.Sprintf("%03d\n", len(body)%1000)
	}
	return body
}

// Fake returns a random but well-formed order. The same seed always yields
// the same order.
func Fake(seed int64) UPN {
	f := gofakeit.New(seed)
	return UPN{
		AmountCents: int64(f.Number(1, 500000)),
		PurposeCode: "OTHR",
		Purpose:     "Prispevek " + f.City(),
		IBAN:        "SI56" + f.DigitN(15),
		Reference:   fmt.Sprintf("SI19 %s-%s", f.DigitN(5), f.DigitN(5)),
		Name:        strings.ToUpper(f.Name()),
		Street:      f.Street(),
		City:        f.City(),
	}
}
