package coach

import "strings"

// DefaultFillerWords is the stock list of hedges and disfluencies.
var DefaultFillerWords = []string{
	"um", "uh", "like", "you know", "so", "actually", "basically", "literally",
}

// CountFillers counts case-insensitive substring occurrences of each word in
// transcript. Matches inside longer words count too ("so" in "also"); the
// count is a cheap cross-check for the model, not a tokenizer.
func CountFillers(transcript string, words []string) int {
	lower := strings.ToLower(transcript)
	n := 0
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		n += strings.Count(lower, w)
	}
	return n
}
