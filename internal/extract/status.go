package extract

import (
	"strings"
	"unicode"
)

// Canonical status tags.
const (
	StatusSale    = "للبيع"
	StatusRent    = "للإيجار"
	StatusWanted  = "مطلوب"
	StatusOffered = "معروض"
)

// StatusRule maps literal keyword variants to one canonical tag.
type StatusRule struct {
	Tag      string   `yaml:"tag"`
	Keywords []string `yaml:"keywords"`
}

// DefaultStatusRules is the bilingual keyword table, in output order.
var DefaultStatusRules = []StatusRule{
	{Tag: StatusSale, Keywords: []string{"للبيع", "بيع", "for sale", "sale"}},
	{Tag: StatusRent, Keywords: []string{"للإيجار", "للايجار", "إيجار", "ايجار", "for rent", "rental", "to let"}},
	{Tag: StatusWanted, Keywords: []string{"مطلوب", "مطلوبة", "wanted", "looking for"}},
	{Tag: StatusOffered, Keywords: []string{"معروض", "معروضة", "offered", "available"}},
}

type keyword struct {
	text   string
	folded bool // matched against the lower-cased text
}

type statusRule struct {
	tag      string
	keywords []keyword
}

// KeywordTagger classifies a message by literal keyword containment.
type KeywordTagger struct {
	rules []statusRule
}

// NewKeywordTagger compiles rules; an empty slice selects DefaultStatusRules.
func NewKeywordTagger(rules []StatusRule) *KeywordTagger {
	if len(rules) == 0 {
		rules = DefaultStatusRules
	}
	t := &KeywordTagger{}
	for _, r := range rules {
		tag := strings.TrimSpace(r.Tag)
		if tag == "" {
			continue
		}
		sr := statusRule{tag: tag}
		for _, kw := range r.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			if isArabic(kw) {
				sr.keywords = append(sr.keywords, keyword{text: kw})
				continue
			}
			sr.keywords = append(sr.keywords, keyword{text: strings.ToLower(kw), folded: true})
		}
		t.rules = append(t.rules, sr)
	}
	return t
}

// Tag returns the canonical tags whose keywords occur in text, in table order.
func (t *KeywordTagger) Tag(text Original) []string {
	raw := string(text)
	lower := strings.ToLower(raw)
	var out []string
	for _, r := range t.rules {
		for _, kw := range r.keywords {
			hay := raw
			if kw.folded {
				hay = lower
			}
			if strings.Contains(hay, kw.text) {
				out = append(out, r.tag)
				break
			}
		}
	}
	return dedupe(out)
}

func isArabic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Arabic, r) {
			return true
		}
	}
	return false
}
