package board

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jacentio/squares/internal/keys"
)

// MaxDisplayNameLength bounds a claimant's display name, in runes.
const MaxDisplayNameLength = 64

// NormalizeSquareIDs trims, parses and zero-pads the requested squares,
// drops blanks and duplicates, and returns them in ascending numeric order.
// Numbers are not range-checked here; the claimer reports a square outside
// the board as not found before reading any square.
func NormalizeSquareIDs(raw []string) ([]string, error) {
	seen := make(map[int]bool, len(raw))
	numbers := make([]int, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n, err := keys.ParseSquareID(s)
		if err != nil {
			return nil, badRequest("invalid square %q", s)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	ids := make([]string, len(numbers))
	for i, n := range numbers {
		ids[i] = keys.SquareID(n)
	}
	return ids, nil
}

func normalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", badRequest("displayName required")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return "", badRequest("displayName longer than %d characters", MaxDisplayNameLength)
	}
	return name, nil
}
