// Package transcript rebuilds logical messages from the flat line stream of a
// chat export. A header line opens a record; every following non-header line is
// folded into it until the next header or the end of input.
package transcript

import (
	"regexp"
	"strings"

	"github.com/you/wachat-extract/internal/core"
	"github.com/you/wachat-extract/internal/normalize"
)

// State of the boundary machine.
type State int

const (
	Idle State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "idle"
}

// LineKind classifies what the parser did with a line.
type LineKind string

const (
	LineHeader       LineKind = "header"
	LineContinuation LineKind = "continuation"
	LinePreamble     LineKind = "preamble"
	LineBlank        LineKind = "blank"
)

var (
	headerRe = regexp.MustCompile(`^\[(\d{2}/\d{2}/\d{4}), (\d{1,2}:\d{2}:\d{2} (?:AM|PM))\] ([^:]+):(?: (.*))?$`)
	phoneRe  = regexp.MustCompile(`^\+(\d{2}) (\d{3}) (\d{3}) (\d{4})$`)
)

// senderMarker prefixes names of participants that are not in the exporter's contacts.
const senderMarker = "~"

// Header is the parsed form of a header line.
type Header struct {
	Date   string
	Time   string
	Sender string
	Body   string
}

// ParseHeader matches an already normalized line against the header grammar.
func ParseHeader(line string) (Header, bool) {
	m := headerRe.FindStringSubmatch(line)
	if m == nil {
		return Header{}, false
	}
	return Header{
		Date:   m[1],
		Time:   m[2],
		Sender: strings.TrimSpace(m[3]),
		Body:   strings.TrimSpace(m[4]),
	}, true
}

// SplitSender resolves the sender field into a display name and, when the
// field is an international number, the number itself.
func SplitSender(sender string) (name, phone string) {
	sender = strings.TrimSpace(sender)
	if m := phoneRe.FindStringSubmatch(sender); m != nil {
		return core.UnknownSender, "+" + m[1] + m[2] + m[3] + m[4]
	}
	name = strings.TrimSpace(strings.TrimPrefix(sender, senderMarker))
	return name, ""
}

// Parser is the per-file boundary state machine. It is not safe for concurrent use.
type Parser struct {
	source  string
	state   State
	current core.Record
	seen    int
}

// NewParser returns an idle parser attributing records to source.
func NewParser(source string) *Parser {
	return &Parser{source: source}
}

// State reports the current machine state.
func (p *Parser) State() State { return p.state }

// Current exposes the open record for inspection; ok is false while idle.
func (p *Parser) Current() (core.Record, bool) {
	return p.current, p.state == Open
}

// Feed consumes one raw line. When the line closes the open record, the
// completed record is returned with done set.
func (p *Parser) Feed(lineNumber int, raw string) (rec core.Record, done bool, kind LineKind) {
	if p.seen == 0 {
		raw = strings.TrimPrefix(raw, "\ufeff")
	}
	p.seen++

	line := normalize.Line(raw)
	if line == "" {
		return core.Record{}, false, LineBlank
	}

	hdr, ok := ParseHeader(line)
	if !ok {
		if p.state == Idle {
			return core.Record{}, false, LinePreamble
		}
		p.current.Message += " " + line
		p.current.MessageBackup += " " + line
		return core.Record{}, false, LineContinuation
	}

	if p.state == Open {
		rec, done = p.current, true
	}
	p.open(lineNumber, hdr)
	return rec, done, LineHeader
}

// Flush finalizes the pending record at end of input.
func (p *Parser) Flush() (core.Record, bool) {
	if p.state != Open {
		return core.Record{}, false
	}
	rec := p.current
	p.current = core.Record{}
	p.state = Idle
	return rec, true
}

func (p *Parser) open(lineNumber int, hdr Header) {
	name, phone := SplitSender(hdr.Sender)
	p.current = core.Record{
		FileSource:    p.source,
		Date:          hdr.Date,
		Time:          hdr.Time,
		SenderName:    name,
		SenderPhone:   phone,
		Message:       hdr.Body,
		MessageBackup: hdr.Body,
		LineNumber:    lineNumber,
	}
	p.state = Open
}
