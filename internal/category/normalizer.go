// Package category turns visually indented inventory tables into canonical
// dotted category codes and provides structural helpers over those codes.
package category

import (
	"strconv"
	"strings"
	"unicode"
)

const maxLevel = 5

// Cell is one normalized value. Level is zero when the raw value was not a
// category row and Code is empty.
type Cell struct {
	Raw   any
	Code  string
	Level int
}

// Value returns the canonical code for category rows and the raw value
// otherwise.
func (c Cell) Value() any {
	if c.Level == 0 {
		return c.Raw
	}
	return c.Code
}

// Normalizer assigns canonical codes to the first column of a category table.
// Codes below level 2 depend on the rows seen before them, so one Normalizer
// must see one table's rows in their original order. It is not safe for
// concurrent use.
type Normalizer struct {
	levels  [maxLevel]string
	counter int
}

func NewNormalizer() *Normalizer {
	n := &Normalizer{}
	n.Reset()
	return n
}

// Reset clears the level state and restarts the top-level counter at 1.
func (n *Normalizer) Reset() {
	n.levels = [maxLevel]string{}
	n.counter = 1
}

// Normalize resets the state and classifies values as one table.
func (n *Normalizer) Normalize(values []any) []Cell {
	n.Reset()
	out := make([]Cell, 0, len(values))
	for _, v := range values {
		out = append(out, n.Next(v))
	}
	return out
}

// Next classifies the next row of the current table.
func (n *Normalizer) Next(value any) Cell {
	raw, ok := value.(string)
	if !ok {
		return Cell{Raw: value}
	}
	stripped := strings.ReplaceAll(raw, " ", "")
	if stripped == "" {
		return Cell{Raw: value}
	}

	first := []rune(raw)[0]
	switch {
	// a lowercase Latin letter always opens level 4, even alone
	case first >= 'a' && first <= 'z':
		n.levels[3] = segment(raw)
		return n.emit(value, 4)

	case isAlpha(raw):
		n.levels[0] = strconv.Itoa(n.counter)
		n.counter++
		return Cell{Raw: value, Code: n.levels[0] + ".", Level: 1}

	case first >= 'A' && first <= 'Z':
		n.levels[1] = segment(raw)
		return n.emit(value, 2)

	case unicode.IsDigit([]rune(stripped)[0]):
		fourth := n.levels[3]
		if fourth != "" && (isUpper(fourth) || (isLower(fourth) && first == ' ')) {
			n.levels[4] = segment(raw)
			return n.emit(value, 5)
		}
		n.levels[2] = segment(raw)
		n.levels[3] = ""
		n.levels[4] = ""
		return n.emit(value, 3)

	case unicode.IsLower(first):
		n.levels[3] = segment(raw)
		return n.emit(value, 4)
	}
	return Cell{Raw: value}
}

func (n *Normalizer) emit(value any, level int) Cell {
	return Cell{Raw: value, Code: strings.Join(n.levels[:level], "."), Level: level}
}

// segment is the text before the first dot, without spaces.
func segment(raw string) string {
	head, _, _ := strings.Cut(raw, ".")
	return strings.TrimSpace(head)
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func isUpper(s string) bool {
	return hasLetter(s) && strings.ToUpper(s) == s
}

func isLower(s string) bool {
	return hasLetter(s) && strings.ToLower(s) == s
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}
