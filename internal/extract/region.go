package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// DefaultRegionLimit caps the number of region tags per record.
const DefaultRegionLimit = 3

// Place is a gazetteer entry: the canonical tag and the spellings that map to it.
type Place struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// DefaultPlaces covers Greater Cairo and the new cities most listings mention.
var DefaultPlaces = []Place{
	{Name: "مدينة نصر", Aliases: []string{"مدينه نصر", "nasr city", "nasr"}},
	{Name: "التجمع الخامس", Aliases: []string{"التجمع", "القاهرة الجديدة", "القاهره الجديده", "new cairo", "fifth settlement", "tagamoa"}},
	{Name: "الشيخ زايد", Aliases: []string{"زايد", "sheikh zayed", "zayed"}},
	{Name: "6 أكتوبر", Aliases: []string{"6 اكتوبر", "٦ أكتوبر", "٦ اكتوبر", "أكتوبر", "اكتوبر", "october", "6th of october"}},
	{Name: "العاصمة الإدارية", Aliases: []string{"العاصمة الادارية", "العاصمه الاداريه", "العاصمة", "new capital", "administrative capital"}},
	{Name: "مصر الجديدة", Aliases: []string{"مصر الجديده", "heliopolis"}},
	{Name: "المعادي", Aliases: []string{"المعادى", "maadi"}},
	{Name: "الشروق", Aliases: []string{"shorouk", "el shorouk"}},
	{Name: "العبور", Aliases: []string{"obour", "el obour"}},
	{Name: "المقطم", Aliases: []string{"mokattam"}},
	{Name: "الرحاب", Aliases: []string{"rehab", "al rehab"}},
	{Name: "مدينتي", Aliases: []string{"madinaty"}},
	{Name: "بدر", Aliases: []string{"مدينة بدر", "badr city"}},
	{Name: "المستقبل", Aliases: []string{"مدينة المستقبل", "mostakbal city"}},
	{Name: "الزمالك", Aliases: []string{"zamalek"}},
	{Name: "المهندسين", Aliases: []string{"mohandessin"}},
	{Name: "الدقي", Aliases: []string{"الدقى", "dokki"}},
	{Name: "الهرم", Aliases: []string{"haram"}},
	{Name: "فيصل", Aliases: []string{"faisal"}},
	{Name: "حلوان", Aliases: []string{"helwan"}},
	{Name: "العين السخنة", Aliases: []string{"السخنة", "sokhna", "ain sokhna"}},
	{Name: "الساحل الشمالي", Aliases: []string{"الساحل", "north coast", "sahel"}},
}

// DefaultStoplist holds generic real-estate nouns that follow "in"/"at" without naming a place.
var DefaultStoplist = []string{
	"شقة", "شقه", "شقق", "فيلا", "فيلات", "دور", "الدور", "عمارة", "عماره", "برج", "مبنى",
	"مدينة", "مدينه", "منطقة", "منطقه", "المنطقة", "مكان", "موقع", "الموقع", "كمبوند",
	"حي", "الحي", "مجاورة", "المجاورة", "شارع", "الشارع", "متر", "سعر", "حالة", "حاله",
	"قلب", "اول", "أول", "اخر", "آخر", "نفس", "ارض", "أرض", "محل", "مكتب", "غرفة", "غرف",
	"تشطيب", "حدود", "خلال", "حالا", "الحال", "اسرع", "وقت",
	"the", "a", "an", "of", "this", "that", "my", "our", "your", "front", "apartment",
	"flat", "villa", "building", "floor", "compound", "city", "area", "district", "location",
	"total", "cash", "installments", "least", "once",
}

var arabicOrdinals = map[string]int{
	"الأول": 1, "الاول": 1, "الثاني": 2, "الثانى": 2, "الثالث": 3, "الرابع": 4,
	"الخامس": 5, "السادس": 6, "السابع": 7, "الثامن": 8, "التاسع": 9, "العاشر": 10,
	"الحادي عشر": 11, "الحادى عشر": 11, "الثاني عشر": 12, "الثانى عشر": 12,
	"الأولى": 1, "الاولى": 1, "الثانية": 2, "الثالثة": 3, "الرابعة": 4, "الخامسة": 5,
	"السادسة": 6, "السابعة": 7, "الثامنة": 8, "التاسعة": 9, "العاشرة": 10,
}

var englishOrdinals = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5, "sixth": 6,
	"seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10, "eleventh": 11, "twelfth": 12,
}

func ordinalAlternation() string {
	words := make([]string, 0, len(arabicOrdinals)+len(englishOrdinals))
	for w := range arabicOrdinals {
		words = append(words, w)
	}
	for w := range englishOrdinals {
		words = append(words, w)
	}
	// longest first so "الثاني عشر" wins over "الثاني"
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, "|")
}

const (
	districtLabel     = "الحي"
	neighborhoodLabel = "المجاورة"
)

var (
	districtRe = regexp.MustCompile(
		`(الحي|حي|district|neighbourhood|neighborhood|المجاورة|المجاوره|مجاورة|مجاوره)\s+(?:no\.?\s*|رقم\s+)?` +
			`([0-9\x{0660}-\x{0669}\x{06F0}-\x{06F9}]+(?:st|nd|rd|th)?|` + ordinalAlternation() + `)`)
	directionalRe   = regexp.MustCompile(`(شمال|جنوب|شرق|غرب|north|south|east|west)\s+([\p{L}\p{N}]+)`)
	prepositionalRe = regexp.MustCompile(`(?:^|\s)(في|فى|in|at)\s+([\p{L}\p{N}]+)`)
	ordinalSuffixRe = regexp.MustCompile(`(st|nd|rd|th)$`)
)

// gazetteer matches known place names and aliases.
type gazetteer struct {
	entries []gazetteerEntry
}

type gazetteerEntry struct {
	alias string
	name  string
}

func newGazetteer(places []Place) gazetteer {
	var g gazetteer
	for _, p := range places {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		for _, alias := range append([]string{name}, p.Aliases...) {
			alias = asciiLower(strings.TrimSpace(alias))
			if alias == "" {
				continue
			}
			g.entries = append(g.entries, gazetteerEntry{alias: alias, name: name})
		}
	}
	// longest alias first so overlapping shorter aliases lose at equal positions
	sort.SliceStable(g.entries, func(i, j int) bool {
		return len(g.entries[i].alias) > len(g.entries[j].alias)
	})
	return g
}

func (gazetteer) Name() string { return "gazetteer" }

func (g gazetteer) Find(text string) []Match {
	lower := asciiLower(text)
	var out []Match
	for _, e := range g.entries {
		from := 0
		for {
			i := strings.Index(lower[from:], e.alias)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(e.alias)
			from = end
			if !wordBounded(lower, start, end) {
				continue
			}
			out = append(out, Match{Start: start, End: end, Raw: text[start:end], Value: e.name})
		}
	}
	return out
}

// districts re-emits numbered districts in canonical "<label> N" form.
type districts struct{}

func (districts) Name() string { return "district" }

func (districts) Find(text string) []Match {
	lower := asciiLower(text)
	var out []Match
	for _, idx := range districtRe.FindAllStringSubmatchIndex(lower, -1) {
		start, end := idx[0], idx[1]
		if !wordBounded(lower, start, end) {
			continue
		}
		n, ok := ordinalNumber(lower[idx[4]:idx[5]])
		if !ok {
			continue
		}
		label := districtLabel
		switch lower[idx[2]:idx[3]] {
		case "المجاورة", "المجاوره", "مجاورة", "مجاوره", "neighborhood", "neighbourhood":
			label = neighborhoodLabel
		}
		out = append(out, Match{Start: start, End: end, Raw: text[start:end], Value: label + " " + n})
	}
	return out
}

func ordinalNumber(s string) (string, bool) {
	if n, ok := arabicOrdinals[s]; ok {
		return strconv.Itoa(n), true
	}
	if n, ok := englishOrdinals[s]; ok {
		return strconv.Itoa(n), true
	}
	d := DigitsOnly(ordinalSuffixRe.ReplaceAllString(s, ""))
	d = strings.TrimLeft(d, "0")
	if d == "" {
		return "", false
	}
	return d, true
}

// phraseStrategy reports "<keyword> <token>" phrases whose token passes the stoplist.
type phraseStrategy struct {
	name string
	re   *regexp.Regexp
	// keep reports whether the keyword belongs in the tag value
	keep bool
	stop map[string]struct{}
}

func (s phraseStrategy) Name() string { return s.name }

func (s phraseStrategy) Find(text string) []Match {
	lower := asciiLower(text)
	var out []Match
	for _, idx := range s.re.FindAllStringSubmatchIndex(lower, -1) {
		kwStart, tokStart, tokEnd := idx[2], idx[4], idx[5]
		if !wordBounded(lower, kwStart, idx[3]) || !wordBounded(lower, tokStart, tokEnd) {
			continue
		}
		token := lower[tokStart:tokEnd]
		if _, stop := s.stop[token]; stop || !placeLike(token) {
			continue
		}
		start := tokStart
		if s.keep {
			start = kwStart
		}
		raw := text[start:tokEnd]
		out = append(out, Match{Start: start, End: tokEnd, Raw: raw, Value: strings.Join(strings.Fields(raw), " ")})
	}
	return out
}

// placeLike rejects numbers and single letters.
func placeLike(token string) bool {
	letters := 0
	for _, r := range token {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 2
}

// RegionTagger runs the layered region heuristics in precedence order.
type RegionTagger struct {
	layers []Strategy
	limit  int
}

// NewRegionTagger builds the four layers. Empty arguments select the defaults.
func NewRegionTagger(places []Place, stoplist []string, limit int) *RegionTagger {
	if len(places) == 0 {
		places = DefaultPlaces
	}
	if len(stoplist) == 0 {
		stoplist = DefaultStoplist
	}
	if limit <= 0 {
		limit = DefaultRegionLimit
	}
	stop := make(map[string]struct{}, len(stoplist))
	for _, w := range stoplist {
		if w = asciiLower(strings.TrimSpace(w)); w != "" {
			stop[w] = struct{}{}
		}
	}
	return &RegionTagger{
		layers: []Strategy{
			newGazetteer(places),
			districts{},
			phraseStrategy{name: "directional", re: directionalRe, keep: true, stop: stop},
			phraseStrategy{name: "prepositional", re: prepositionalRe, stop: stop},
		},
		limit: limit,
	}
}

// Layers returns the layer names in precedence order.
func (t *RegionTagger) Layers() []string {
	out := make([]string, 0, len(t.layers))
	for _, l := range t.layers {
		out = append(out, l.Name())
	}
	return out
}

// Tag returns up to limit unique region tags. A match overlapping text already
// claimed by an earlier match is ignored.
func (t *RegionTagger) Tag(text Original) []string {
	raw := string(text)
	var (
		claimed []Match
		values  []string
	)
	for _, layer := range t.layers {
		matches := layer.Find(raw)
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })
		for _, m := range matches {
			if overlaps(claimed, m) {
				continue
			}
			claimed = append(claimed, m)
			values = append(values, m.Value)
		}
	}
	values = dedupe(values)
	if len(values) > t.limit {
		values = values[:t.limit]
	}
	return values
}

func overlaps(claimed []Match, m Match) bool {
	for _, c := range claimed {
		if m.Start < c.End && c.Start < m.End {
			return true
		}
	}
	return false
}
