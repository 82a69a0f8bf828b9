// Package arabic canonicalizes bilingual (Arabic/English) free text so that
// search and duplicate detection compare like with like. The same
// normalization is applied at insert time (stored in normalized_* columns)
// and at query time.
package arabic

import (
	"strings"
	"unicode"
)

// Character classes folded away: tatweel and the harakat range. Spelling
// variants of alef, ya and taa marbuta are unified to one form each, since
// handwritten source lists use them interchangeably.
var letterFold = map[rune]rune{
	'آ': 'ا', // alef madda -> alef
	'أ': 'ا', // alef hamza above -> alef
	'إ': 'ا', // alef hamza below -> alef
	'ٱ': 'ا', // alef wasla -> alef
	'ؤ': 'و', // waw hamza -> waw
	'ئ': 'ي', // ya hamza -> ya
	'ى': 'ي', // alef maqsura -> ya
	'ة': 'ه', // taa marbuta -> ha
}

func isDiacritic(r rune) bool {
	// harakat, shadda, sukun, superscript alef
	return (r >= 'ً' && r <= 'ْ') || r == 'ٰ'
}

// Normalize returns the canonical search form of s: diacritics and tatweel
// stripped, alef/ya/taa-marbuta variants unified, Latin text lowercased and
// runs of whitespace collapsed to single spaces.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true // leading whitespace is dropped
	for _, r := range s {
		switch {
		case r == 'ـ' || isDiacritic(r): // tatweel, harakat
			continue
		case unicode.IsSpace(r):
			if !space {
				b.WriteRune(' ')
				space = true
			}
			continue
		}
		if folded, ok := letterFold[r]; ok {
			r = folded
		}
		b.WriteRune(unicode.ToLower(r))
		space = false
	}
	return strings.TrimRight(b.String(), " ")
}
