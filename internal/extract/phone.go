package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/you/wachat-extract/internal/core"
	"github.com/you/wachat-extract/internal/normalize"
)

// Secondary strategy names, usable in the rules file.
const (
	StrategyBare10      = "bare10"
	StrategyPunctuated  = "punctuated11"
	StrategyArabicIndic = "arabic_indic"
	StrategyIntl        = "intl_plus20"
	StrategySeparated   = "separated"

	StrategyPrimary = "local11"
)

// Rejection reasons for secondary candidates.
const (
	RejectLength    = "length"
	RejectPrefix    = "prefix"
	RejectDuplicate = "duplicate"
)

// DefaultSecondaryOrder is the precedence tuned on real transcripts.
var DefaultSecondaryOrder = []string{
	StrategyBare10,
	StrategyPunctuated,
	StrategyArabicIndic,
	StrategyIntl,
	StrategySeparated,
}

// DefaultPrefixes are the Egyptian mobile operator prefixes.
var DefaultPrefixes = []string{"010", "011", "012", "015"}

func digitsValue(m []string) string { return DigitsOnly(m[0]) }

var phoneStrategies = map[string]Strategy{
	StrategyPrimary: regexStrategy{
		name:  StrategyPrimary,
		re:    regexp.MustCompile(`\+?20[ \-]?1[0125][0-9]{8}|01[0125][0-9]{8}`),
		value: func(m []string) string { return LocalForm(m[0]) },
	},
	StrategyBare10: regexStrategy{
		name:  StrategyBare10,
		re:    regexp.MustCompile(`01[0-9]{8}`),
		value: digitsValue,
	},
	StrategyPunctuated: regexStrategy{
		name:  StrategyPunctuated,
		re:    regexp.MustCompile(`[،,;:.\s]*(01[0-9]{9})[،,;:.\s]*`),
		bound: 1,
		value: func(m []string) string { return DigitsOnly(m[1]) },
	},
	StrategyArabicIndic: regexStrategy{
		name:  StrategyArabicIndic,
		re:    regexp.MustCompile(`[\x{0660}-\x{0669}\x{06F0}-\x{06F9}]{10,11}`),
		value: digitsValue,
	},
	StrategyIntl: regexStrategy{
		name: StrategyIntl,
		re:   regexp.MustCompile(`\+20[ \-]?([0-9]{3})[ \-]?([0-9]{3})[ \-]?([0-9]{4})`),
		value: func(m []string) string {
			return "0" + m[1] + m[2] + m[3]
		},
	},
	StrategySeparated: regexStrategy{
		name:  StrategySeparated,
		re:    regexp.MustCompile(`0[ \-.\x{00A0}]*1[ \-.\x{00A0}]*[0125](?:[ \-.\x{00A0}]*[0-9]){8}`),
		value: digitsValue,
	},
}

// SecondaryResult describes what the secondary stage did to a record.
type SecondaryResult struct {
	Strategy string // winning strategy, empty when nothing was accepted
	Value    string
	Rejected map[string]int
}

// PhoneExtractor runs the primary stage and then the ordered secondary strategies.
type PhoneExtractor struct {
	primary   Strategy
	secondary []Strategy
	prefixes  []string
}

// NewPhoneExtractor builds an extractor for the given secondary order and prefixes.
// Empty arguments select the defaults.
func NewPhoneExtractor(order, prefixes []string) (*PhoneExtractor, error) {
	if len(order) == 0 {
		order = DefaultSecondaryOrder
	}
	if len(prefixes) == 0 {
		prefixes = DefaultPrefixes
	}
	p := &PhoneExtractor{
		primary:  phoneStrategies[StrategyPrimary],
		prefixes: append([]string(nil), prefixes...),
	}
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		name = strings.TrimSpace(name)
		s, ok := phoneStrategies[name]
		if !ok || name == StrategyPrimary {
			return nil, errors.Errorf("unknown secondary phone strategy %q", name)
		}
		if seen[name] {
			return nil, errors.Errorf("secondary phone strategy %q listed twice", name)
		}
		seen[name] = true
		p.secondary = append(p.secondary, s)
	}
	return p, nil
}

// Order returns the secondary strategy names in precedence order.
func (p *PhoneExtractor) Order() []string {
	out := make([]string, 0, len(p.secondary))
	for _, s := range p.secondary {
		out = append(out, s.Name())
	}
	return out
}

// StripPrimary removes every occurrence of every primary-shape number from msg.
// It repeats until no bounded match remains, so applying it twice changes nothing.
func (p *PhoneExtractor) StripPrimary(msg string) (string, []string) {
	var found []string
	for {
		matches := p.primary.Find(msg)
		if len(matches) == 0 {
			break
		}
		for _, m := range matches {
			found = append(found, m.Value)
		}
		sort.SliceStable(matches, func(i, j int) bool { return len(matches[i].Raw) > len(matches[j].Raw) })
		for _, m := range matches {
			msg = strings.ReplaceAll(msg, m.Raw, " ")
		}
	}
	if len(found) == 0 {
		return msg, nil
	}
	return normalize.Spaces(msg), dedupe(found)
}

// ExtractPrimary fills SenderPhone with the leftmost primary number when empty
// and redacts all primary numbers from Message. Numbers written with the 20
// country code, with or without "+", count as primary and are stored in local form.
func (p *PhoneExtractor) ExtractPrimary(rec *core.Record) []string {
	msg, found := p.StripPrimary(rec.Message)
	if len(found) == 0 {
		return nil
	}
	rec.Message = msg
	if rec.SenderPhone == "" {
		rec.SenderPhone = found[0]
	}
	return found
}

// ExtractSecondary tries the secondary strategies in order and stops at the
// first acceptable candidate.
func (p *PhoneExtractor) ExtractSecondary(rec *core.Record) SecondaryResult {
	res := SecondaryResult{}
	if rec.SenderPhone2 != "" {
		return res
	}
	for _, s := range p.secondary {
		for _, m := range s.Find(rec.Message) {
			if reason := p.reject(m.Value, rec.SenderPhone); reason != "" {
				if res.Rejected == nil {
					res.Rejected = make(map[string]int)
				}
				res.Rejected[reason]++
				continue
			}
			rec.SenderPhone2 = m.Value
			rec.Message = redact(rec.Message, m)
			res.Strategy = s.Name()
			res.Value = m.Value
			return res
		}
	}
	return res
}

func (p *PhoneExtractor) reject(candidate, primary string) string {
	if n := len(candidate); n != 10 && n != 11 {
		return RejectLength
	}
	if !p.hasPrefix(candidate) {
		return RejectPrefix
	}
	if primary != "" && LocalForm(primary) == candidate {
		return RejectDuplicate
	}
	return ""
}

func (p *PhoneExtractor) hasPrefix(candidate string) bool {
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(candidate, prefix) {
			return true
		}
	}
	return false
}

const redactPunct = "،,;:."

func redactable(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(redactPunct, r)
}

// redact cuts the accepted span together with the punctuation and spaces
// hugging it, then any other copy of the same number.
func redact(msg string, m Match) string {
	start, end := m.Start, m.End
	for {
		r, n := runeBefore(msg, start)
		if n == 0 || !redactable(r) {
			break
		}
		start -= n
	}
	for {
		r, n := runeAt(msg, end)
		if n == 0 || !redactable(r) {
			break
		}
		end += n
	}
	msg = msg[:start] + " " + msg[end:]
	if number := strings.TrimFunc(m.Raw, redactable); number != "" {
		msg = strings.ReplaceAll(msg, number, " ")
	}
	return normalize.Spaces(msg)
}

// LocalForm reduces a number to national digits, so "+201012345678" and
// "01012345678" compare equal.
func LocalForm(phone string) string {
	d := DigitsOnly(phone)
	if len(d) == 12 && strings.HasPrefix(d, "20") {
		return "0" + d[2:]
	}
	return d
}
