package parser

import (
	"strings"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment"
)

// ForwardBlock anchors on an SI56 account line and scans forward. Lines before
// the first reference are recipient candidates; a repeated account line
// followed by a reference and an amount closes the block.
func ForwardBlock(text string) []payment.Record {
	lines := textLines(text)
	var out []payment.Record

	for i, line := range lines {
		if !isIBANShape(line) || !strings.Contains(line, "SI56") {
			continue
		}
		iban := payment.NormalizeIBAN(line)
		if !strings.HasPrefix(iban, "SI56") || len(iban) != 19 {
			continue
		}

		var (
			candidates []string
			reference  string
			purpose    string
			payerRef   string
			cents      int64
			haveAmount bool
			namesDone  bool
		)

	scan:
		for j := i + 1; j < len(lines); j++ {
			cur := lines[j]

			switch {
			case isIBANShape(cur) && strings.Contains(cur, "SI56"):
				if j+1 < len(lines) && isReference(lines[j+1]) {
					reference = payment.StripSpaces(lines[j+1])
				}
				if j+2 < len(lines) && isAmount(lines[j+2]) {
					cents, haveAmount = parseLayoutAmount(lines[j+2])
				}
				if haveAmount && reference != "" {
					break scan
				}
			case isReference(cur):
				reference = payment.StripSpaces(cur)
			case isAmount(cur):
				cents, haveAmount = parseLayoutAmount(cur)
			case isPayerReference(cur):
				payerRef = strings.TrimSpace(cur)
			case reference == "" && !namesDone:
				clean := payment.CollapseSpaces(cur)
				if strings.Contains(cur, purposeKeyword) {
					purpose = clean
					namesDone = true
				} else if longEnough(clean) {
					candidates = append(candidates, clean)
				}
			}
		}

		if !haveAmount || reference == "" {
			continue
		}
		out = append(out, textRecord(iban, reference, cents, candidates, purpose, payerRef))
	}

	return payment.Dedupe(out)
}

// ReferenceAnchor anchors on a reference line immediately followed by an
// amount. The account is searched backwards, the recipient and purpose
// forwards past the repeated amount line.
func ReferenceAnchor(text string) []payment.Record {
	lines := textLines(text)
	var out []payment.Record

	for i, line := range lines {
		if !isReference(line) {
			continue
		}
		reference := payment.StripSpaces(line)
		if i+1 >= len(lines) || !isAmount(lines[i+1]) {
			continue
		}
		cents, ok := parseLayoutAmount(lines[i+1])
		if !ok {
			continue
		}

		iban := ""
		for k := i - 1; k >= 0 && k > i-ibanLookback; k-- {
			if isSI56IBAN(lines[k]) {
				iban = payment.NormalizeIBAN(lines[k])
				break
			}
		}
		if iban == "" {
			continue
		}

		var names []string
		purpose, payerRef := "", ""
		for j := i + 3; j < len(lines) && j < i+3+nameLookahead; j++ {
			ln := lines[j]
			if isAmount(ln) || isReference(ln) {
				continue
			}
			if isPayerReference(ln) {
				payerRef = strings.TrimSpace(ln)
				continue
			}
			if strings.Contains(ln, purposeKeyword) {
				purpose = payment.CollapseSpaces(ln)
				break
			}
			if payment.StripSpaces(ln) != reference && !strings.Contains(ln, "SI56") {
				names = append(names, payment.CollapseSpaces(ln))
			}
		}

		out = append(out, textRecord(iban, reference, cents, names, purpose, payerRef))
	}

	return payment.Dedupe(out)
}

// AmountAnchor anchors on an amount line (optionally repeated) and looks a
// bounded number of lines ahead for the account and then the reference.
// Recipient lines follow, skipping known noise such as date stamps and
// bare account numbers.
func AmountAnchor(text string) []payment.Record {
	lines := textLines(text)
	var out []payment.Record

	for i, line := range lines {
		if !isAmount(line) {
			continue
		}
		cents, ok := parseLayoutAmount(line)
		if !ok {
			continue
		}

		j := i + 1
		if j < len(lines) && isAmount(lines[j]) {
			j++
		}

		iban, reference := "", ""
		for k := j; k < len(lines) && k < j+anchorLookahead; k++ {
			cur := lines[k]
			if isSI56IBAN(cur) {
				iban = payment.NormalizeIBAN(cur)
			}
			if isReference(cur) {
				reference = payment.StripSpaces(cur)
				break
			}
		}
		if iban == "" || reference == "" {
			continue
		}

		var names []string
		purpose := ""
		for k := j + 1; k < len(lines) && k < j+nameLookahead; k++ {
			ln := lines[k]
			if strings.Contains(ln, purposeKeyword) {
				purpose = payment.CollapseSpaces(ln)
				break
			}
			if isSI56Line(ln) || isReference(ln) || isNoise(ln) {
				continue
			}
			names = append(names, payment.CollapseSpaces(ln))
		}

		out = append(out, textRecord(iban, reference, cents, names, purpose, ""))
	}

	return payment.Dedupe(out)
}
