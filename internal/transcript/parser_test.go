package transcript

import (
	"strings"
	"testing"

	"github.com/you/wachat-extract/internal/core"
)

func feedAll(p *Parser, lines []string) []core.Record {
	var out []core.Record
	for i, line := range lines {
		if rec, done, _ := p.Feed(i+1, line); done {
			out = append(out, rec)
		}
	}
	if rec, ok := p.Flush(); ok {
		out = append(out, rec)
	}
	return out
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		ok     bool
		date   string
		time   string
		sender string
		body   string
	}{
		{
			name:   "basic",
			line:   "[10/06/2025, 5:22:03 AM] Ahmed: للبيع شقة",
			ok:     true,
			date:   "10/06/2025",
			time:   "5:22:03 AM",
			sender: "Ahmed",
			body:   "للبيع شقة",
		},
		{
			name:   "two digit hour pm",
			line:   "[01/12/2024, 11:05:59 PM] ~ Sara: hi: there",
			ok:     true,
			date:   "01/12/2024",
			time:   "11:05:59 PM",
			sender: "~ Sara",
			body:   "hi: there",
		},
		{
			name:   "empty body",
			line:   "[01/12/2024, 1:05:59 PM] Sara:",
			ok:     true,
			date:   "01/12/2024",
			time:   "1:05:59 PM",
			sender: "Sara",
			body:   "",
		},
		{name: "missing meridiem", line: "[01/12/2024, 13:05:59] Sara: hi"},
		{name: "short year", line: "[01/12/24, 1:05:59 PM] Sara: hi"},
		{name: "no sender colon", line: "[01/12/2024, 1:05:59 PM] Sara joined"},
		{name: "continuation", line: "شقة 150 متر"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ok := ParseHeader(tt.line)
			if ok != tt.ok {
				t.Fatalf("ParseHeader ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if h.Date != tt.date || h.Time != tt.time || h.Sender != tt.sender || h.Body != tt.body {
				t.Fatalf("ParseHeader = %+v", h)
			}
		})
	}
}

func TestSplitSender(t *testing.T) {
	name, phone := SplitSender("+20 101 234 5678")
	if name != core.UnknownSender || phone != "+201012345678" {
		t.Fatalf("phone sender: name=%q phone=%q", name, phone)
	}
	name, phone = SplitSender("~ Mona")
	if name != "Mona" || phone != "" {
		t.Fatalf("marker sender: name=%q phone=%q", name, phone)
	}
	name, _ = SplitSender("شركه السويفي")
	if name != "شركه السويفي" {
		t.Fatalf("plain sender: name=%q", name)
	}
}

func TestParserStateMachine(t *testing.T) {
	p := NewParser("_chat.txt")
	if p.State() != Idle {
		t.Fatalf("new parser state = %s", p.State())
	}

	if _, done, kind := p.Feed(1, "Messages to this group are now secured"); done || kind != LinePreamble {
		t.Fatalf("preamble: done=%v kind=%s", done, kind)
	}
	if p.State() != Idle {
		t.Fatalf("preamble changed state to %s", p.State())
	}

	if _, done, kind := p.Feed(2, "[10/06/2025, 5:22:03 AM] Ahmed: first"); done || kind != LineHeader {
		t.Fatalf("first header: done=%v kind=%s", done, kind)
	}
	if p.State() != Open {
		t.Fatalf("state after header = %s", p.State())
	}

	if _, _, kind := p.Feed(3, "  second   line "); kind != LineContinuation {
		t.Fatalf("continuation kind = %s", kind)
	}
	if _, _, kind := p.Feed(4, "   "); kind != LineBlank {
		t.Fatalf("blank kind = %s", kind)
	}

	rec, done, _ := p.Feed(5, "[10/06/2025, 5:23:00 AM] ~ Mona: next")
	if !done {
		t.Fatalf("second header did not finalize the open record")
	}
	if rec.Message != "first second line" || rec.MessageBackup != "first second line" {
		t.Fatalf("folded message = %q / %q", rec.Message, rec.MessageBackup)
	}
	if rec.LineNumber != 2 || rec.FileSource != "_chat.txt" || rec.SenderName != "Ahmed" {
		t.Fatalf("provenance = %+v", rec)
	}

	last, ok := p.Flush()
	if !ok {
		t.Fatalf("flush returned nothing for open record")
	}
	if last.SenderName != "Mona" || last.LineNumber != 5 || last.Message != "next" {
		t.Fatalf("flushed record = %+v", last)
	}
	if _, ok := p.Flush(); ok {
		t.Fatalf("second flush emitted a record")
	}
}

func TestEveryHeaderOpensExactlyOneRecord(t *testing.T) {
	lines := []string{
		"preamble",
		"[01/01/2025, 9:00:00 AM] A: one",
		"[01/01/2025, 9:01:00 AM] B: two",
		"tail of two",
		"",
		"[01/01/2025, 9:02:00 AM] C: three",
		"[01/01/2025, 9:03:00 AM] D:",
		"four body",
	}
	recs := feedAll(NewParser("f.txt"), lines)
	if len(recs) != 4 {
		t.Fatalf("got %d records, want 4", len(recs))
	}
	wantLines := []int{2, 3, 6, 7}
	for i, rec := range recs {
		if rec.LineNumber != wantLines[i] {
			t.Fatalf("record %d line = %d, want %d", i, rec.LineNumber, wantLines[i])
		}
	}
	if recs[3].Message != " four body" {
		t.Fatalf("empty-body record message = %q", recs[3].Message)
	}
}

func TestContinuationGrowsMonotonically(t *testing.T) {
	p := NewParser("f.txt")
	p.Feed(1, "[01/01/2025, 9:00:00 AM] A: start")
	prev := 0
	for i := 0; i < 20; i++ {
		p.Feed(i+2, strings.Repeat("x", i%3)+" line")
		cur, ok := p.Current()
		if !ok {
			t.Fatalf("record closed by continuation")
		}
		if len(cur.Message) < prev || len(cur.MessageBackup) < prev {
			t.Fatalf("message shrank at line %d", i+2)
		}
		prev = len(cur.Message)
	}
}

func TestEOFFlushEmitsTrailingRecord(t *testing.T) {
	recs := feedAll(NewParser("f.txt"), []string{
		"[01/01/2025, 9:00:00 AM] A: only",
		"continued",
	})
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Message != "only continued" {
		t.Fatalf("message = %q", recs[0].Message)
	}
}

func TestLeadingBOMIgnored(t *testing.T) {
	recs := feedAll(NewParser("f.txt"), []string{"\ufeff[01/01/2025, 9:00:00 AM] A: x"})
	if len(recs) != 1 || recs[0].SenderName != "A" {
		t.Fatalf("records = %+v", recs)
	}
}
