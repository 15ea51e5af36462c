package recognition

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Match method names reported in metadata and logs.
const (
	MethodExact     = "exact_match"
	MethodSubstring = "substring_match"
	MethodFuzzy     = "fuzzy_match"
	MethodPhonetic  = "phonetic_match"
	MethodWord      = "word_match"
)

// Match is a keyword matcher verdict for one transcript.
type Match struct {
	Command    string
	Confidence float64
	Method     string
}

// Exact reports whether the match was a verbatim hit.
func (m *Match) Exact() bool { return m.Method == MethodExact }

// phoneticReplacements lists misrecognitions the matcher tolerates. Speech
// engines mangle these words in predictable ways.
var phoneticReplacements = map[string][]string{
	"emergency": {"emerjency", "emergancy", "emargency"},
	"shutdown":  {"shutdoun", "shut down", "shotdown"},
	"kill":      {"kil", "kell"},
	"switch":    {"swich", "swithc"},
	"force":     {"forse", "fource"},
	"stop":      {"stap", "stup"},
}

// Matcher matches transcripts against the configured command phrases using a
// ladder of strategies: exact, substring, edit similarity, phonetic
// variants, and word overlap.
type Matcher struct {
	commands  []string
	phonetic  map[string][]string
	normalize transform.Transformer
	lower     cases.Caser
}

// NewMatcher builds a matcher over the given command phrases.
func NewMatcher(commands []string) *Matcher {
	m := &Matcher{
		phonetic: make(map[string][]string),
		lower:    cases.Lower(language.English),
		normalize: transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
	}
	for _, command := range commands {
		normalized := m.Normalize(command)
		if normalized == "" {
			continue
		}
		m.commands = append(m.commands, normalized)

		patterns := []string{normalized}
		for word, variants := range phoneticReplacements {
			if !strings.Contains(normalized, word) {
				continue
			}
			for _, variant := range variants {
				patterns = append(patterns, strings.ReplaceAll(normalized, word, variant))
			}
		}
		m.phonetic[normalized] = patterns
	}
	return m
}

// Commands returns the normalized command phrases.
func (m *Matcher) Commands() []string { return m.commands }

// Normalize lowercases, strips diacritics, and collapses whitespace.
func (m *Matcher) Normalize(text string) string {
	folded, _, err := transform.String(m.normalize, text)
	if err != nil {
		folded = text
	}
	return strings.Join(strings.Fields(m.lower.String(folded)), " ")
}

// Match returns the best match for text, or nil when nothing clears the 0.6
// confidence bar.
func (m *Matcher) Match(text string) *Match {
	text = m.Normalize(text)
	if text == "" || len(m.commands) == 0 {
		return nil
	}

	var (
		bestCommand string
		bestRatio   float64
		bestMethod  string
	)
	consider := func(command string, ratio float64, method string) {
		if ratio > bestRatio {
			bestCommand, bestRatio, bestMethod = command, ratio, method
		}
	}

	for _, command := range m.commands {
		if text == command {
			return &Match{Command: command, Confidence: 1.0, Method: MethodExact}
		}
		if strings.Contains(text, command) || strings.Contains(command, text) {
			consider(command, 0.9, MethodSubstring)
		}
		if ratio := sequenceRatio(text, command); ratio > 0.7 {
			consider(command, ratio, MethodFuzzy)
		}
		for _, pattern := range m.phonetic[command] {
			if ratio := sequenceRatio(text, pattern); ratio > 0.8 {
				consider(command, ratio, MethodPhonetic)
			}
		}
		if ratio := wordOverlap(text, command); ratio > 0.6 {
			consider(command, ratio, MethodWord)
		}
	}

	if bestCommand == "" || bestRatio <= 0.6 {
		return nil
	}
	return &Match{Command: bestCommand, Confidence: bestRatio, Method: bestMethod}
}

// wordOverlap is the Jaccard index of the two phrases' word sets.
func wordOverlap(a, b string) float64 {
	aWords := strings.Fields(a)
	bWords := strings.Fields(b)
	if len(aWords) == 0 || len(bWords) == 0 {
		return 0
	}
	set := make(map[string]bool, len(aWords))
	for _, word := range aWords {
		set[word] = true
	}
	union := make(map[string]bool, len(aWords)+len(bWords))
	for _, word := range aWords {
		union[word] = true
	}
	intersection := 0
	for _, word := range bWords {
		if set[word] {
			set[word] = false
			intersection++
		}
		union[word] = true
	}
	if intersection == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}
