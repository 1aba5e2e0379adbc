package sequence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultFormat is the template applied to auto-created sequences.
const DefaultFormat = "{PREFIX}-{VALUE:06d}"

// JournalEntry is the sequence name used for journal entry numbers.
const JournalEntry = "journal_entry"

// Sequence is the persisted counter record for one named sequence.
type Sequence struct {
	Name        string
	Prefix      string
	NextValue   int64
	IncrementBy int64
	MinValue    int64
	MaxValue    int64
	Cycle       bool
	Format      string
}

// Defaults returns the record auto-created on first use of name.
func Defaults(name string) Sequence {
	return Sequence{
		Name:        name,
		Prefix:      DefaultPrefix(name),
		NextValue:   1,
		IncrementBy: 1,
		MinValue:    1,
		MaxValue:    999999999,
		Cycle:       false,
		Format:      DefaultFormat,
	}
}

// DefaultPrefix derives a prefix from a sequence name: "journal_entry" becomes "JE",
// single words keep their first three letters.
func DefaultPrefix(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
	if len(parts) == 0 {
		return "SEQ"
	}
	if len(parts) == 1 {
		word := strings.ToUpper(parts[0])
		if len(word) > 3 {
			word = word[:3]
		}
		return word
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]))
	}
	return b.String()
}

func (s Sequence) normalized() Sequence {
	d := Defaults(s.Name)
	if s.IncrementBy == 0 {
		s.IncrementBy = d.IncrementBy
	}
	if s.MaxValue == 0 {
		s.MaxValue = d.MaxValue
	}
	if s.NextValue < s.MinValue {
		s.NextValue = s.MinValue
	}
	if s.Format == "" {
		s.Format = d.Format
	}
	return s
}

// Advance hands out the current value and moves NextValue forward. A
// non-cycling sequence past MaxValue fails instead of wrapping.
func (s *Sequence) Advance() (int64, error) {
	*s = s.normalized()
	value := s.NextValue
	if value > s.MaxValue || (s.IncrementBy < 0 && value < s.MinValue) {
		if !s.Cycle {
			return 0, fmt.Errorf("%w: %s passed %d", errExhausted, s.Name, s.MaxValue)
		}
		value = s.MinValue
		if s.IncrementBy < 0 {
			value = s.MaxValue
		}
	}
	s.NextValue = value + s.IncrementBy
	return value, nil
}

var valueToken = regexp.MustCompile(`\{VALUE(?::(0?)(\d+)d)?\}`)

// Render expands the format template. prefix replaces {PREFIX}.
func Render(format, prefix string, value int64, at time.Time) string {
	if format == "" {
		format = DefaultFormat
	}
	out := strings.ReplaceAll(format, "{PREFIX}", prefix)
	out = strings.ReplaceAll(out, "{YEAR}", strconv.Itoa(at.Year()))
	return valueToken.ReplaceAllStringFunc(out, func(tok string) string {
		m := valueToken.FindStringSubmatch(tok)
		if m[2] == "" {
			return strconv.FormatInt(value, 10)
		}
		width, _ := strconv.Atoi(m[2])
		if m[1] == "0" {
			return fmt.Sprintf("%0*d", width, value)
		}
		return fmt.Sprintf("%*d", width, value)
	})
}
