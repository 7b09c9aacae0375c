package normalize

import "testing"

func TestLine(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: "hello world", want: "hello world"},
		{name: "bidi marks", raw: "\u200e[10/06/2025, 5:22:03\u202fAM] ~\u00a0Ahmed: hi", want: "[10/06/2025, 5:22:03 AM] ~ Ahmed: hi"},
		{name: "runs of whitespace", raw: "  a \t\t b   c  \r\n", want: "a b c"},
		{name: "isolates and rlm", raw: "\u2068شقة\u2069\u200f للبيع", want: "شقة للبيع"},
		{name: "bom", raw: "\ufeff[01/01/2024, 1:00:00 PM] x: y", want: "[01/01/2024, 1:00:00 PM] x: y"},
		{name: "empty", raw: "\u200e \u00a0", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Line(tt.raw)
			if got != tt.want {
				t.Fatalf("Line(%q) = %q, want %q", tt.raw, got, tt.want)
			}
			if again := Line(got); again != got {
				t.Fatalf("Line not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestSpaces(t *testing.T) {
	if got := Spaces("  a   b\n c "); got != "a b c" {
		t.Fatalf("Spaces = %q", got)
	}
}
