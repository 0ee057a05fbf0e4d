package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/encoding/charmap"
)

func TestDecode(t *testing.T) {
	latin2, err := charmap.ISO8859_2.NewEncoder().String("Plačilo za Žigo, Šmarje")
	assert.NoError(t, err)

	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{"empty", nil, ""},
		{"ascii", []byte("UPNQR"), "UPNQR"},
		{"utf8 diacritics", []byte("Plačilo"), "Plačilo"},
		{"iso-8859-2 c caron", []byte{0xE8}, "č"},
		{"iso-8859-2 sentence", []byte(latin2), "Plačilo za Žigo, Šmarje"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "�")
		})
	}
}

func TestDecodeStrict_RejectsUndefinedBytes(t *testing.T) {
	// 0x81 has no mapping in Windows-1250.
	_, ok := decodeStrict(charmap.Windows1250, []byte{0x41, 0x81})
	assert.False(t, ok)

	s, ok := decodeStrict(charmap.Windows1250, []byte{0xE8})
	assert.True(t, ok)
	assert.Equal(t, "č", s)
}

func TestDecodeLatin1(t *testing.T) {
	assert.Equal(t, "é", decodeLatin1([]byte{0xE9}))
	assert.Equal(t, "A\u0081", decodeLatin1([]byte{0x41, 0x81}))
}

func TestNormalizeString(t *testing.T) {
	assert.Equal(t, "Plačilo", NormalizeString("Plačilo"))
	assert.Equal(t, "č", NormalizeString(string([]byte{0xE8})))
}

func TestFoldASCII(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"JANEZ NOVAK", "JANEZ NOVAK"},
		{"Čevljarstvo Šuštar, Žalec", "Cevljarstvo Sustar, Zalec"},
		{"Đurđa Ćosić", "Durda Cosic"},
		{"café", "cafe"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FoldASCII(tt.in))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab...", Truncate("abc", 2))
	assert.Equal(t, "čš...", Truncate("čšž", 2))
}
