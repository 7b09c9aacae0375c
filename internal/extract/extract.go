// Package extract recovers structured fields from a finalized chat record.
//
// Every heuristic is a Strategy that reports matches as byte spans of the text
// it was given, so precedence between heuristics is an explicit ordered slice
// rather than call order buried in code:
//   - phone strategies act on the cleaned body and redact what they accept
//   - status and region taggers read only the Original body
//   - the artifact stripper runs last and never sees the Original body
//
// Nothing in this package returns an error for unmatched input; a heuristic that
// finds nothing leaves its field empty.
package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Original is the message body exactly as captured by the transcript parser.
// Taggers take this type so they cannot be handed the redacted body by mistake.
type Original string

// Match is one candidate reported by a Strategy. Text[Start:End] == Raw.
type Match struct {
	Start int
	End   int
	Raw   string
	Value string // normalized value (Western digits, canonical tag, ...)
}

// Strategy attempts one heuristic over text.
type Strategy interface {
	Name() string
	Find(text string) []Match
}

var digitMap = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
)

// WesternDigits maps Arabic-Indic and Extended Arabic-Indic digits to ASCII.
func WesternDigits(s string) string {
	return digitMap.Replace(s)
}

// DigitsOnly keeps ASCII digits after mapping Arabic-Indic digits.
func DigitsOnly(s string) string {
	s = WesternDigits(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// asciiLower folds A-Z only, so byte offsets into the result stay valid for the input.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func runeBefore(s string, i int) (rune, int) {
	if i <= 0 {
		return utf8.RuneError, 0
	}
	return utf8.DecodeLastRuneInString(s[:i])
}

func runeAt(s string, i int) (rune, int) {
	if i >= len(s) {
		return utf8.RuneError, 0
	}
	return utf8.DecodeRuneInString(s[i:])
}

// digitBounded reports whether s[start:end] is not glued to further digits.
func digitBounded(s string, start, end int) bool {
	if r, n := runeBefore(s, start); n > 0 && unicode.IsDigit(r) {
		return false
	}
	if r, n := runeAt(s, end); n > 0 && unicode.IsDigit(r) {
		return false
	}
	return true
}

// proclitics are single letters Arabic attaches to the following word (and, with, for, so, like).
const proclitics = "وبلفك"

// wordBounded reports whether s[start:end] stands as a word, allowing one
// attached proclitic before it.
func wordBounded(s string, start, end int) bool {
	if r, n := runeAt(s, end); n > 0 && unicode.IsLetter(r) {
		return false
	}
	r, n := runeBefore(s, start)
	if n == 0 || !unicode.IsLetter(r) {
		return true
	}
	if !strings.ContainsRune(proclitics, r) {
		return false
	}
	r2, n2 := runeBefore(s, start-n)
	return n2 == 0 || !unicode.IsLetter(r2)
}

// regexStrategy reports digit-bounded regex matches, normalized by value.
// The boundary is checked around capture group bound (0 is the whole match).
type regexStrategy struct {
	name  string
	re    *regexp.Regexp
	bound int
	value func(m []string) string
}

func (s regexStrategy) Name() string { return s.name }

func (s regexStrategy) Find(text string) []Match {
	var out []Match
	for _, idx := range s.re.FindAllStringSubmatchIndex(text, -1) {
		start, end := idx[0], idx[1]
		b := 2 * s.bound
		if b+1 >= len(idx) || idx[b] < 0 || !digitBounded(text, idx[b], idx[b+1]) {
			continue
		}
		groups := make([]string, 0, len(idx)/2)
		for g := 0; g+1 < len(idx); g += 2 {
			if idx[g] < 0 {
				groups = append(groups, "")
				continue
			}
			groups = append(groups, text[idx[g]:idx[g+1]])
		}
		out = append(out, Match{
			Start: start,
			End:   end,
			Raw:   text[start:end],
			Value: s.value(groups),
		})
	}
	return out
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
