package dedup

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldMarks decomposes (compatibility form, so "₃" becomes "3") and drops
// combining marks, so "Šulgi" and "Sulgi" compare equal.
func foldMarks(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeText lowercases, folds diacritics, turns punctuation into spaces
// and collapses runs of whitespace.
func NormalizeText(s string) string {
	s = strings.ToLower(foldMarks(s))
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	return b.String()
}

// NormalizeTitle is NormalizeText without leading articles
func NormalizeTitle(s string) string {
	t := NormalizeText(s)
	for _, article := range []string{"the ", "a ", "an ", "die ", "der ", "das ", "le ", "la ", "les "} {
		if strings.HasPrefix(t, article) && len(t) > len(article) {
			return t[len(article):]
		}
	}
	return t
}

// NormalizeBibKey keeps letters and digits only: "Steinkeller, 1989" == "steinkeller1989"
func NormalizeBibKey(s string) string {
	return strings.ReplaceAll(NormalizeText(s), " ", "")
}

var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi.org/",
	"doi:",
}

// NormalizeDOI lowercases and strips resolver prefixes. DOIs are case-insensitive.
func NormalizeDOI(s string) string {
	d := strings.ToLower(strings.TrimSpace(s))
	for _, p := range doiPrefixes {
		if strings.HasPrefix(d, p) {
			d = strings.TrimSpace(d[len(p):])
			break
		}
	}
	if !strings.HasPrefix(d, "10.") {
		return ""
	}
	return d
}

// NormalizeIdentifier canonicalizes catalog keys: "bm 12345", "BM. 12345" and
// "BM12345" all become "BM12345". Dots inside numbers survive ("1899.2-18.1").
func NormalizeIdentifier(s string) string {
	s = strings.ToUpper(foldMarks(strings.TrimSpace(s)))
	var b strings.Builder
	b.Grow(len(s))
	rs := []rune(s)
	for i, r := range rs {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case (r == '.' || r == '-' || r == '/') && i > 0 && i < len(rs)-1 &&
			unicode.IsDigit(rs[i-1]) && unicode.IsDigit(rs[i+1]):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Initials returns the lowercase first letter of each given name
func Initials(givenNames string) string {
	var b strings.Builder
	for _, part := range strings.Fields(NormalizeText(givenNames)) {
		for _, r := range part {
			b.WriteRune(r)
			break
		}
	}
	return b.String()
}

// NormalizeORCID keeps the 16 check characters: "https://orcid.org/0000-0002-1825-0097" -> "0000000218250097"
func NormalizeORCID(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == 'X' {
			b.WriteRune(r)
		}
	}
	if b.Len() != 16 {
		return ""
	}
	return b.String()
}

func joinKey(a, b string) string {
	return a + "|" + b
}

func splitKey(k string) (string, string) {
	a, b, _ := strings.Cut(k, "|")
	return a, b
}

func yearString(y int) string {
	if y <= 0 {
		return ""
	}
	return strconv.Itoa(y)
}
