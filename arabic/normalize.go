// Package arabic canonicalises Arabic free text so that user input can be
// compared against fixed phrases regardless of diacritics, letter variants
// and stray punctuation.
package arabic

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// RequiredOath is the pledge an admin applicant must reproduce.
const RequiredOath = "اقسم بان لا اضر السيرفر وان لا اغدر بالسيرفر"

// oathTokens are the load-bearing words of the oath. Input containing all of
// them passes even when the rest of the phrase differs.
var oathTokens = [...]string{"اقسم", "اضر", "السيرفر", "اغدر"}

// stripMarks removes the tashkeel range plus the superscript and wasla alifs.
var stripMarks = runes.Remove(runes.Predicate(func(r rune) bool {
	return (r >= 0x064B && r <= 0x065F) || r == 0x0670 || r == 0x0671
}))

// Normalize produces the canonical comparison form: trimmed, case-folded,
// diacritics removed, alif variants collapsed to bare alif, ya variants to
// bare ya, ta marbuta to ha, every rune outside the Arabic block and
// whitespace dropped, and whitespace runs collapsed to single spaces.
// Normalize is idempotent.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s, _, _ = transform.String(stripMarks, s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case 'أ', 'إ', 'آ':
			b.WriteRune('ا')
		case 'ى':
			b.WriteRune('ي')
		case 'ة':
			b.WriteRune('ه')
		default:
			if (r >= 0x0600 && r <= 0x06FF) || unicode.IsSpace(r) {
				b.WriteRune(r)
			}
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ValidateOath reports whether text counts as a valid oath: an exact match of
// the normalized required phrase, or any text containing all oath tokens in
// any order. The token fallback is intentionally as loose as the portal has
// always been; tightening it is a product decision, not a porting one.
func ValidateOath(text string) bool {
	n := Normalize(text)
	if n == Normalize(RequiredOath) {
		return true
	}
	for _, tok := range oathTokens {
		if !strings.Contains(n, tok) {
			return false
		}
	}
	return true
}
