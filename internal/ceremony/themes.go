package ceremony

import (
	"sort"
	"strings"

	"github.com/hearthmind/hearth/internal/state"
)

const (
	themeLimit   = 5
	themeMinLen  = 5 // words longer than 4 chars
	themeMinFreq = 2
)

// extractThemes pulls the most frequent interesting words out of recent
// human messages to seed topic discovery. Deterministic: frequency
// descending, then alphabetical.
func extractThemes(msgs []state.Message) []string {
	freq := make(map[string]int)
	for _, m := range msgs {
		for _, w := range strings.Fields(strings.ToLower(m.Content)) {
			w = strings.Trim(w, ".,!?;:\"'()[]{}")
			if len(w) < themeMinLen {
				continue
			}
			freq[w]++
		}
	}

	var words []string
	for w, n := range freq {
		if n >= themeMinFreq {
			words = append(words, w)
		}
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > themeLimit {
		words = words[:themeLimit]
	}
	return words
}
