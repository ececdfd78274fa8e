package pje

import (
	"fmt"
	"regexp"
	"strings"
)

// CNJ numbers follow the fixed template NNNNNNN-DD.AAAA.J.TR.OOOO: a
// 7-digit sequential, 2 check digits, 4-digit year, 1-digit branch,
// 2-digit region and a 4-digit origin unit.
var cnjPattern = regexp.MustCompile(`^\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4}$`)

const cnjDigits = 20

// NormalizeNumber strips stray characters from a raw process number and
// re-punctuates the remaining digits into the canonical CNJ form.
// Returns ErrInvalidFormat when the digit count or pattern does not match.
func NormalizeNumber(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			// tolerated punctuation, dropped before reformatting
		default:
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidFormat, r)
		}
	}
	d := digits.String()
	if len(d) != cnjDigits {
		return "", fmt.Errorf("%w: got %d digits, want %d", ErrInvalidFormat, len(d), cnjDigits)
	}
	normalized := fmt.Sprintf("%s-%s.%s.%s.%s.%s", d[0:7], d[7:9], d[9:13], d[13:14], d[14:16], d[16:20])
	if !cnjPattern.MatchString(normalized) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, normalized)
	}
	return normalized, nil
}

// ExtractRegion derives the court-region key from a process number and
// returns it along with the normalized number.
//
// The two-digit TR segment loses at most one leading zero ("02" becomes
// "5"-region style "2", "15" stays "15"). The asymmetry is intentional:
// the portal URLs are keyed by the stripped form.
func ExtractRegion(raw string) (regionKey, normalized string, err error) {
	normalized, err = NormalizeNumber(raw)
	if err != nil {
		return "", "", err
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, normalized)
	tr := digits[14:16]
	if tr[0] == '0' {
		tr = tr[1:]
	}
	return tr, normalized, nil
}
