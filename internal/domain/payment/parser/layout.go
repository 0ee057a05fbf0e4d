package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cloudflare/ahocorasick"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment"
	"github.com/FACorreiaa/upn-epc-bridge/pkg/money"
)

// Strategy recovers payment records from the linearized text of a PDF.
type Strategy func(text string) []payment.Record

// NamedStrategy pairs a strategy with a label for logging.
type NamedStrategy struct {
	Name  string
	Parse Strategy
}

// StrategyResult is the output of one strategy run.
type StrategyResult struct {
	Name    string
	Records []payment.Record
}

// DefaultStrategies lists the text strategies in merge order.
func DefaultStrategies() []NamedStrategy {
	return []NamedStrategy{
		{Name: "reference_anchor", Parse: ReferenceAnchor},
		{Name: "amount_anchor", Parse: AmountAnchor},
		{Name: "forward_block", Parse: ForwardBlock},
	}
}

// RunStrategies runs each strategy independently over the same text.
func RunStrategies(text string, strategies []NamedStrategy) []StrategyResult {
	results := make([]StrategyResult, 0, len(strategies))
	for _, s := range strategies {
		results = append(results, StrategyResult{Name: s.Name, Records: s.Parse(text)})
	}
	return results
}

// ParseText runs the default strategies and merges their candidates by
// payment key. When several strategies produce the same key, the most complete
// candidate wins; equally complete candidates resolve to the earlier strategy.
func ParseText(text string) []payment.Record {
	return Merge(RunStrategies(text, DefaultStrategies()))
}

// Merge combines strategy results by payment key. Keys keep the order in
// which they were first seen.
func Merge(results []StrategyResult) []payment.Record {
	var order []payment.Key
	best := make(map[payment.Key]payment.Record)

	for _, res := range results {
		for _, r := range res.Records {
			k := r.Key()
			cur, ok := best[k]
			if !ok {
				order = append(order, k)
				best[k] = r
				continue
			}
			if completeness(r) > completeness(cur) {
				best[k] = r
			}
		}
	}

	out := make([]payment.Record, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

func completeness(r payment.Record) int {
	score := 0
	if r.RecipientName != payment.DefaultRecipient {
		score += 4
	}
	if r.Purpose != payment.DefaultPurpose {
		score += 2
	}
	if r.RecipientAddress != "" {
		score++
	}
	return score
}

// ============================================================================
// Shared line classification
// ============================================================================

// purposeKeyword marks the purpose line on the payment orders this targets.
// It is matched literally.
const purposeKeyword = "Prispevek"

const (
	ibanLookback     = 25
	nameLookahead    = 25
	anchorLookahead  = 18
	minNameCandidate = 3
)

var (
	ibanShapeRe   = regexp.MustCompile(`^SI\d{2}\d+$`)
	si56Re        = regexp.MustCompile(`^SI56\d+$`)
	referenceRe   = regexp.MustCompile(`^SI19[\d\-]+$`)
	amountRe      = regexp.MustCompile(`^\*+\s*\d+[,.]\d{2}\s*$`)
	payerRefRe    = regexp.MustCompile(`^RF\d{2}\s*$`)
	accountLineRe = regexp.MustCompile(`^\d{10}\s*$`)

	noiseMarkers = ahocorasick.NewStringMatcher([]string{"LBRI", "LT10"})
)

// textLines splits text into trimmed, non-empty lines.
func textLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func isIBANShape(line string) bool {
	return ibanShapeRe.MatchString(payment.StripSpaces(line))
}

// isSI56Line reports an SI56 account line regardless of its length.
func isSI56Line(line string) bool {
	return si56Re.MatchString(payment.StripSpaces(line))
}

// isSI56IBAN reports a complete 19-character SI56 account line.
func isSI56IBAN(line string) bool {
	s := payment.StripSpaces(line)
	return si56Re.MatchString(s) && len(s) == 19
}

func isReference(line string) bool {
	return referenceRe.MatchString(payment.StripSpaces(line))
}

func isAmount(line string) bool {
	return amountRe.MatchString(line)
}

func isPayerReference(line string) bool {
	return payerRefRe.MatchString(line)
}

func isNoise(line string) bool {
	return noiseMarkers.Contains([]byte(line)) || accountLineRe.MatchString(line)
}

// parseLayoutAmount reads an asterisk-padded amount such as "***28,74" and
// reports false for unparsable or non-positive values.
func parseLayoutAmount(line string) (int64, bool) {
	s := strings.TrimLeft(strings.TrimSpace(line), "*")
	m, err := money.Parse(s, money.EUR)
	if err != nil || !m.IsPositive() {
		return 0, false
	}
	return m.Amount(), true
}

// textRecord assembles a record from name lines; the first line is the
// recipient and the rest form the address.
func textRecord(iban, reference string, cents int64, names []string, purpose, payerRef string) payment.Record {
	r := payment.Record{
		RecipientName:  payment.DefaultRecipient,
		IBAN:           iban,
		AmountCents:    cents,
		Reference:      reference,
		Purpose:        purpose,
		PayerReference: payerRef,
		Source:         payment.SourceText,
	}
	if len(names) > 0 {
		r.RecipientName = names[0]
	}
	if len(names) > 1 {
		r.RecipientAddress = strings.Join(names[1:], " ")
	}
	if r.Purpose == "" {
		r.Purpose = payment.DefaultPurpose
	}
	return r
}

func longEnough(s string) bool {
	return utf8.RuneCountInString(s) >= minNameCandidate
}
