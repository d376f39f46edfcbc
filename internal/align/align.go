// Package align compares a topic description with what the speaker actually
// said and marks which stretches of the description were covered.
//
// Both texts are split on whitespace and compared word by word, ignoring
// case, with go-difflib's SequenceMatcher (the Ratcliff/Obershelp
// longest-matching-block algorithm of Python's difflib). Junk heuristics are
// off, so frequent words like "the" still anchor matches. The result is a
// sequence of [Segment] values indexed over the expected text only: extra
// spoken words never appear in it.
package align

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Status labels a [Segment].
type Status string

const (
	StatusMatched Status = "matched"
	StatusMissed  Status = "missed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusMatched || s == StatusMissed
}

// Segment is a run of consecutive expected words with a common status.
type Segment struct {
	Status Status `json:"status"`
	Text   string `json:"text"`
}

// Diff aligns spoken against expected and returns the segments covering
// expected in order. Joining the segment texts with single spaces yields the
// whitespace-normalised expected text. An empty expected text yields nil.
func Diff(expected, spoken string) []Segment {
	a := strings.Fields(expected)
	if len(a) == 0 {
		return nil
	}
	b := strings.Fields(spoken)

	m := difflib.NewMatcherWithJunk(lower(a), lower(b), false, nil)

	var segs []Segment
	for _, op := range m.GetOpCodes() {
		if op.I1 == op.I2 {
			continue
		}
		var st Status
		switch op.Tag {
		case 'e':
			st = StatusMatched
		case 'r', 'd':
			st = StatusMissed
		default: // 'i' covers spoken words only
			continue
		}
		segs = append(segs, Segment{Status: st, Text: strings.Join(a[op.I1:op.I2], " ")})
	}
	return segs
}

// Coverage returns the fraction of expected words inside matched segments,
// in [0, 1]. It is 0 for an empty sequence.
func Coverage(segs []Segment) float64 {
	var matched, total int
	for _, s := range segs {
		n := len(strings.Fields(s.Text))
		total += n
		if s.Status == StatusMatched {
			matched += n
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}

// Join reassembles segment texts with single spaces.
func Join(segs []Segment) string {
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.Text
	}
	return strings.Join(parts, " ")
}

func lower(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}
