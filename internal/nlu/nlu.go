package nlu

import (
	"strings"
	"unicode"
)

// HospitalSuffix is the word that marks a spoken hospital name.
const HospitalSuffix = "병원"

type Kind int

const (
	KindSymptom Kind = iota
	KindHospital
)

func (k Kind) String() string {
	if k == KindHospital {
		return "hospital"
	}
	return "symptom"
}

// Intent is either a named hospital or a symptom description. Only the field
// matching Kind is set.
type Intent struct {
	Kind         Kind
	HospitalName string
	SymptomQuery string
}

func HospitalIntent(name string) Intent {
	return Intent{Kind: KindHospital, HospitalName: name}
}

func SymptomIntent(query string) Intent {
	return Intent{Kind: KindSymptom, SymptomQuery: query}
}

func (i Intent) String() string {
	if i.Kind == KindHospital {
		return "hospital(" + i.HospitalName + ")"
	}
	return "symptom(" + i.SymptomQuery + ")"
}

var quoteStripper = strings.NewReplacer(`"`, "", "'", "")

// Normalize drops quote characters and surrounding whitespace.
func Normalize(text string) string {
	return strings.TrimSpace(quoteStripper.Replace(text))
}

// Extract classifies an utterance. It never fails: anything that does not
// name a hospital is treated as a symptom query, including empty text.
func Extract(text string) Intent {
	normalized := Normalize(text)
	if name, ok := findHospital(normalized); ok {
		return HospitalIntent(name)
	}
	return SymptomIntent(normalized)
}

// findHospital scans maximal runs of name runes. The first run containing
// the suffix wins, cut after its last occurrence so the longest qualifying
// name is kept.
func findHospital(s string) (string, bool) {
	runes := []rune(s)
	for start := 0; start < len(runes); {
		if !isNameRune(runes[start]) {
			start++
			continue
		}
		end := start
		for end < len(runes) && isNameRune(runes[end]) {
			end++
		}

		run := string(runes[start:end])
		if i := strings.LastIndex(run, HospitalSuffix); i >= 0 {
			return strings.TrimSpace(run[:i+len(HospitalSuffix)]), true
		}
		start = end
	}
	return "", false
}

// isNameRune accepts Hangul syllables, ASCII letters and digits, and
// whitespace.
func isNameRune(r rune) bool {
	switch {
	case r >= '가' && r <= '힣':
		return true
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	default:
		return unicode.IsSpace(r)
	}
}
