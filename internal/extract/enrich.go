package extract

import (
	"strings"

	"github.com/you/wachat-extract/internal/core"
)

// Report summarizes what the extractors did to one record.
type Report struct {
	Primary   []string
	Secondary SecondaryResult
	Status    []string
	Regions   []string
	Stripped  bool
}

// Enricher runs the extractors over a finalized record in their fixed order:
// phones on Message, tags on MessageBackup, then stripping of Message and SenderName.
type Enricher struct {
	phones   *PhoneExtractor
	status   *KeywordTagger
	regions  *RegionTagger
	stripper *Stripper
}

// NewEnricher compiles rules.
func NewEnricher(rules Rules) (*Enricher, error) {
	phones, err := NewPhoneExtractor(rules.Phone.SecondaryOrder, rules.Phone.Prefixes)
	if err != nil {
		return nil, err
	}
	return &Enricher{
		phones:   phones,
		status:   NewKeywordTagger(rules.Status),
		regions:  NewRegionTagger(rules.Regions.Places, rules.Regions.Stoplist, rules.Regions.Limit),
		stripper: NewStripper(rules.Notices),
	}, nil
}

// Enrich mutates rec in place. MessageBackup is read, never written.
func (e *Enricher) Enrich(rec *core.Record) Report {
	var rep Report
	rep.Primary = e.phones.ExtractPrimary(rec)
	rep.Secondary = e.phones.ExtractSecondary(rec)

	original := Original(rec.MessageBackup)
	rep.Status = e.status.Tag(original)
	rep.Regions = e.regions.Tag(original)
	rec.Status = strings.Join(rep.Status, core.TagSeparator)
	rec.Region = strings.Join(rep.Regions, core.TagSeparator)

	rep.Stripped = e.stripper.Strip(rec)
	return rep
}
