package extract

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Rules holds every tunable table of the extractors. Fields left empty in a
// rules file fall back to the built-in defaults.
type Rules struct {
	Phone   PhoneRules   `yaml:"phone"`
	Status  []StatusRule `yaml:"status"`
	Regions RegionRules  `yaml:"regions"`
	Notices []string     `yaml:"notices"`
}

// PhoneRules tunes the secondary phone stage.
type PhoneRules struct {
	SecondaryOrder []string `yaml:"secondary_order"`
	Prefixes       []string `yaml:"prefixes"`
}

// RegionRules tunes the region tagger.
type RegionRules struct {
	Places   []Place  `yaml:"places"`
	Stoplist []string `yaml:"stoplist"`
	Limit    int      `yaml:"limit"`
}

// DefaultRules returns the built-in tables.
func DefaultRules() Rules {
	return Rules{
		Phone: PhoneRules{
			SecondaryOrder: append([]string(nil), DefaultSecondaryOrder...),
			Prefixes:       append([]string(nil), DefaultPrefixes...),
		},
		Status: append([]StatusRule(nil), DefaultStatusRules...),
		Regions: RegionRules{
			Places:   append([]Place(nil), DefaultPlaces...),
			Stoplist: append([]string(nil), DefaultStoplist...),
			Limit:    DefaultRegionLimit,
		},
		Notices: append([]string(nil), DefaultNotices...),
	}
}

// LoadRules reads a YAML rules file over the defaults. An empty path returns
// the defaults unchanged.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, errors.Wrapf(err, "read rules %s", path)
	}
	var file Rules
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return Rules{}, errors.Wrapf(err, "parse rules %s", path)
	}
	rules.merge(file)
	if err := rules.Validate(); err != nil {
		return Rules{}, errors.Wrapf(err, "rules %s", path)
	}
	return rules, nil
}

func (r *Rules) merge(o Rules) {
	if len(o.Phone.SecondaryOrder) > 0 {
		r.Phone.SecondaryOrder = o.Phone.SecondaryOrder
	}
	if len(o.Phone.Prefixes) > 0 {
		r.Phone.Prefixes = o.Phone.Prefixes
	}
	if len(o.Status) > 0 {
		r.Status = o.Status
	}
	if len(o.Regions.Places) > 0 {
		r.Regions.Places = o.Regions.Places
	}
	if len(o.Regions.Stoplist) > 0 {
		r.Regions.Stoplist = o.Regions.Stoplist
	}
	if o.Regions.Limit != 0 {
		r.Regions.Limit = o.Regions.Limit
	}
	if len(o.Notices) > 0 {
		r.Notices = o.Notices
	}
}

// Validate rejects tables the extractors cannot run with.
func (r Rules) Validate() error {
	if _, err := NewPhoneExtractor(r.Phone.SecondaryOrder, r.Phone.Prefixes); err != nil {
		return err
	}
	for _, p := range r.Phone.Prefixes {
		if p == "" || DigitsOnly(p) != p {
			return errors.Errorf("phone prefix %q is not a digit string", p)
		}
	}
	if r.Regions.Limit < 0 {
		return errors.Errorf("regions.limit must be positive, got %d", r.Regions.Limit)
	}
	for i, s := range r.Status {
		if s.Tag == "" || len(s.Keywords) == 0 {
			return errors.Errorf("status rule %d needs a tag and keywords", i)
		}
	}
	return nil
}
