// Package decision turns a frame's labeled detections into one motion command.
//
// The engine is stateless: every batch is folded into a fresh Summary and
// evaluated on its own. Nothing is carried between frames.
package decision

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Detection is one labeled classification result from a perception system.
type Detection struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Summary maps a label to its score for a single frame.
type Summary map[string]float64

// scorePrecision is the number of decimal places kept when folding.
const scorePrecision = 1e4

// Fold builds a Summary from an ordered batch.
//
// Entries are applied left to right and a later entry for the same label
// overwrites an earlier one (last-wins, not max-wins). Entries with an empty
// label or a non-finite score are skipped. Scores are rounded to four decimals.
func Fold(batch []Detection) Summary {
	s := make(Summary, len(batch))
	for _, d := range batch {
		if d.Label == "" || math.IsNaN(d.Score) || math.IsInf(d.Score, 0) {
			continue
		}
		s[d.Label] = math.Round(d.Score*scorePrecision) / scorePrecision
	}
	return s
}

// Score returns the score recorded for label.
func (s Summary) Score(label string) (float64, bool) {
	v, ok := s[label]
	return v, ok
}

// Has reports whether label was detected.
func (s Summary) Has(label string) bool {
	_, ok := s[label]
	return ok
}

// String renders the summary with labels in sorted order.
func (s Summary) String() string {
	labels := make([]string, 0, len(s))
	for l := range s {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s=%.4f", l, s[l])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
