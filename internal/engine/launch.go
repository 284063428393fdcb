package engine

import (
	"errors"
	"strings"
)

// ErrUnterminatedQuote reports a launch description that leaves a quote open.
var ErrUnterminatedQuote = errors.New("unterminated quoted string")

// SplitLinks splits a launch description at its '!' links. A '!' inside a quoted
// property value is not a link.
func SplitLinks(description string) ([]string, error) {
	return SplitOutsideQuotes(description, func(r rune) bool { return r == '!' })
}

// SplitOutsideQuotes splits s at runes matching sep that are not inside single or
// double quotes. Quotes are kept in the parts.
func SplitOutsideQuotes(s string, sep func(rune) bool) ([]string, error) {
	var (
		parts []string
		cur   strings.Builder
		quote rune
	)
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			cur.WriteRune(r)
		case sep(r):
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, ErrUnterminatedQuote
	}
	return append(parts, cur.String()), nil
}
