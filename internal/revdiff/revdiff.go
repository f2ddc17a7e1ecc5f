// Package revdiff measures how much of an article's text a revision changed,
// counted in whitespace-separated words.
package revdiff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type Stats struct {
	Inserted  int `json:"inserted"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// Changed is the number of words inserted or deleted.
func (s Stats) Changed() int {
	return s.Inserted + s.Deleted
}

// wordLines puts every word on its own newline-terminated line so the
// line-mode diff treats words as atoms.
func wordLines(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	return strings.Join(words, "\n") + "\n"
}

// Words diffs before against after word by word.
func Words(before, after string) Stats {
	dmp := diffmatchpatch.New()

	a, b, lines := dmp.DiffLinesToChars(wordLines(before), wordLines(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var s Stats
	for _, d := range diffs {
		n := len(strings.Fields(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			s.Inserted += n
		case diffmatchpatch.DiffDelete:
			s.Deleted += n
		case diffmatchpatch.DiffEqual:
			s.Unchanged += n
		}
	}
	return s
}
