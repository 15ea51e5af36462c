package recognition

import (
	"math"
	"testing"
)

func defaultMatcher() *Matcher {
	return NewMatcher([]string{"emergency shutdown", "kill switch", "force stop", "shutdown now"})
}

func TestMatchExact(t *testing.T) {
	m := defaultMatcher()
	match := m.Match("Emergency Shutdown")
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Method != MethodExact || match.Confidence != 1.0 {
		t.Fatalf("got method %s confidence %f", match.Method, match.Confidence)
	}
	if !match.Exact() {
		t.Fatal("exact match must report Exact()")
	}
}

func TestMatchSubstring(t *testing.T) {
	m := defaultMatcher()
	match := m.Match("please do an emergency shutdown right now")
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Command != "emergency shutdown" {
		t.Fatalf("matched %q", match.Command)
	}
	if match.Confidence < 0.9 {
		t.Fatalf("substring confidence %f below 0.9", match.Confidence)
	}
}

func TestMatchPhoneticVariant(t *testing.T) {
	m := defaultMatcher()
	match := m.Match("emerjency shutdoun")
	if match == nil {
		t.Fatal("expected a phonetic match")
	}
	if match.Command != "emergency shutdown" {
		t.Fatalf("matched %q", match.Command)
	}
}

func TestMatchRejectsUnrelatedText(t *testing.T) {
	m := defaultMatcher()
	if match := m.Match("the weather is lovely today"); match != nil {
		t.Fatalf("unexpected match %+v", match)
	}
}

func TestMatchRejectsEmpty(t *testing.T) {
	m := defaultMatcher()
	if match := m.Match("   "); match != nil {
		t.Fatalf("unexpected match %+v", match)
	}
}

func TestNormalizeCollapsesCaseAndSpace(t *testing.T) {
	m := defaultMatcher()
	if got := m.Normalize("  Kill \t SWITCH  "); got != "kill switch" {
		t.Fatalf("Normalize = %q", got)
	}
}

func TestSequenceRatio(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"abc", "abc", 1.0},
		{"abc", "xyz", 0.0},
		{"", "", 1.0},
		{"abcd", "bcde", 0.75},
	}
	for _, tc := range cases {
		if got := sequenceRatio(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("sequenceRatio(%q, %q) = %f, want %f", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestWordOverlap(t *testing.T) {
	if got := wordOverlap("emergency shutdown", "shutdown emergency"); got != 1.0 {
		t.Fatalf("reordered words should overlap fully, got %f", got)
	}
	if got := wordOverlap("force stop", "kill switch"); got != 0 {
		t.Fatalf("disjoint phrases should not overlap, got %f", got)
	}
}
