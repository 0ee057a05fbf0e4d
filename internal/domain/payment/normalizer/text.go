// Package normalizer turns raw QR payload bytes into Unicode text and folds
// Slovenian diacritics for output that can only carry ASCII.
package normalizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legacyCharsets are tried in order once UTF-8 has been ruled out. UPN
// payloads from Slovenian issuers are usually ISO-8859-2 or Windows-1250.
var legacyCharsets = []encoding.Encoding{
	charmap.ISO8859_2,
	charmap.Windows1250,
}

// Decode converts a raw byte buffer to text. The priority is UTF-8,
// ISO-8859-2, Windows-1250 and finally ISO-8859-1, which accepts any input.
func Decode(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	if utf8.Valid(raw) {
		return string(raw)
	}

	for _, cs := range legacyCharsets {
		if s, ok := decodeStrict(cs, raw); ok {
			return s
		}
	}

	return decodeLatin1(raw)
}

// NormalizeString returns s unchanged when it is valid UTF-8, otherwise the
// string is treated as raw bytes and decoded like Decode.
func NormalizeString(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return Decode([]byte(s))
}

// decodeStrict decodes with a single-byte charset and reports false when a
// byte has no mapping in that charset.
func decodeStrict(enc encoding.Encoding, raw []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	if strings.ContainsRune(string(out), utf8.RuneError) {
		return "", false
	}
	return string(out), true
}

// decodeLatin1 maps every byte to the code point of the same value.
func decodeLatin1(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw) * 2)
	for _, c := range raw {
		b.WriteRune(rune(c))
	}
	return b.String()
}

var slovenianFold = strings.NewReplacer(
	"č", "c", "Č", "C",
	"š", "s", "Š", "S",
	"ž", "z", "Ž", "Z",
	"đ", "d", "Đ", "D",
)

// FoldASCII replaces Slovenian diacritics with their base letters and strips
// combining marks from anything else, so the text survives fonts limited to
// a Western code page.
func FoldASCII(s string) string {
	if s == "" {
		return s
	}
	s = slovenianFold.Replace(s)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// Truncate cuts s to at most n runes and appends "..." when it was longer.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
