// Package script decides whether text is predominantly Latin. The batch
// pipeline uses it to route between OCR-text extraction (cheap, Latin only)
// and direct vision extraction (robust, any script).
package script

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultThreshold is the strict ratio applied to recognized OCR text.
	DefaultThreshold = 0.85
	// SchemaThreshold is the looser ratio applied to joined schema field
	// names when deciding the route for a whole batch up front.
	SchemaThreshold = 0.5
)

// nonLatinRanges covers the scripts that force the vision route outright.
var nonLatinRanges = []struct{ lo, hi rune }{
	{0x0980, 0x09FF}, // Bengali
	{0x0900, 0x097F}, // Devanagari
	{0x0600, 0x06FF}, // Arabic
	{0x4E00, 0x9FFF}, // CJK
	{0x3040, 0x309F}, // Hiragana
	{0x30A0, 0x30FF}, // Katakana
	{0xAC00, 0xD7AF}, // Hangul
	{0x0B80, 0x0BFF}, // Tamil
	{0x0C00, 0x0C7F}, // Telugu
	{0x0E00, 0x0E7F}, // Thai
	{0x0400, 0x04FF}, // Cyrillic
}

func isNonLatin(r rune) bool {
	for _, rg := range nonLatinRanges {
		if r >= rg.lo && r <= rg.hi {
			return true
		}
	}
	return false
}

// Latin here means ASCII letters plus the Latin-1 accented range, matching
// what the OCR engines emit for western-language forms.
func isLatinLetter(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= 0x00C0 && r <= 0x00FF)
}

// IsLatinDominant reports whether text is predominantly Latin-script.
//
// Any character from a known non-Latin script returns false immediately,
// regardless of ratio. Texts with fewer than 5 alphabetic characters return
// false (insufficient signal). Garbled OCR output, recognized as more than 3
// whitespace tokens averaging under 2 characters, also returns false.
// Otherwise the Latin share of alphabetic characters is compared against
// threshold.
func IsLatinDominant(text string, threshold float64) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	var alphabetic, latin int
	for _, r := range text {
		if isNonLatin(r) {
			return false
		}
		if unicode.IsLetter(r) {
			alphabetic++
			if isLatinLetter(r) {
				latin++
			}
		}
	}
	if alphabetic < 5 {
		return false
	}

	// Garbled OCR on non-Latin input often decodes to many one-character
	// tokens; treat that signature as untrustworthy.
	words := strings.Fields(text)
	if len(words) > 3 {
		var total int
		for _, w := range words {
			total += utf8.RuneCountInString(w)
		}
		if float64(total)/float64(len(words)) < 2 {
			return false
		}
	}

	return float64(latin)/float64(alphabetic) >= threshold
}
