package guard

import (
	"regexp"
	"sort"
)

// PIIType identifies a category of personal data.
type PIIType string

const (
	PIIEmail PIIType = "EMAIL"
	PIIPhone PIIType = "PHONE"
	PIISSN   PIIType = "SSN"
)

// Match is a single occurrence of personal data in text.
type Match struct {
	Type  PIIType
	Value string
	Start int
	End   int
}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	// At least 8 digits, optional leading "+", one space or dash between digits.
	phoneRe = regexp.MustCompile(`\+?\d(?:[\s\-]?\d){7,}`)

	ssnRe = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
)

// detectors run in substitution order. SSN precedes phone so that an SSN
// is labelled as such rather than swallowed by the looser phone pattern.
var detectors = []struct {
	typ PIIType
	re  *regexp.Regexp
}{
	{PIIEmail, emailRe},
	{PIISSN, ssnRe},
	{PIIPhone, phoneRe},
}

// ScanPII finds every detector match in text, sorted by position.
// Overlapping matches of different detectors are all reported.
func ScanPII(text string) []Match {
	var matches []Match
	for _, d := range detectors {
		for _, loc := range d.re.FindAllStringIndex(text, -1) {
			matches = append(matches, Match{Type: d.typ, Value: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})
	return matches
}

// HasPII reports whether any detector matches text.
func HasPII(text string) bool {
	for _, d := range detectors {
		if d.re.MatchString(text) {
			return true
		}
	}
	return false
}

// RedactPII replaces every match of every detector with "[REDACTED <TYPE>]".
func RedactPII(text string) string {
	out := text
	for _, d := range detectors {
		out = d.re.ReplaceAllLiteralString(out, "[REDACTED "+string(d.typ)+"]")
	}
	return out
}
