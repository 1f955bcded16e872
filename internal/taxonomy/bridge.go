// Package taxonomy reconciles category naming between inventory sources and
// maps domestic industry codes onto canonical category codes.
package taxonomy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrAmbiguousLabel  = errors.New("ambiguous_taxonomy_label")
	ErrConflictingCode = errors.New("conflicting_taxonomy_code")
	ErrEmptyEntry      = errors.New("empty_taxonomy_entry")
)

// Entry pairs a level-2 canonical code with the label the coarse source
// uses for the same category.
type Entry struct {
	Code  string `yaml:"code" json:"code"`
	Label string `yaml:"label" json:"label"`
}

// Bridge is an immutable two-way lookup between canonical codes and coarse
// source labels. Labels are compared exactly after trimming surrounding
// whitespace; inner spacing is significant.
type Bridge struct {
	byCode  map[string]string
	byLabel map[string][]string
}

func defaultEntries() []Entry {
	return []Entry{
		{Code: "2.A", Label: "A.  광물산업"},
		{Code: "2.B", Label: "B.  화학산업"},
		{Code: "2.C", Label: "C.  금속산업"},
	}
}

// Default returns the built-in bridge for the industrial-process categories.
func Default() *Bridge {
	b, err := NewBridge(defaultEntries())
	if err != nil {
		panic(err)
	}
	return b
}

// NewBridge indexes entries. A code listed twice with different labels is
// rejected. A label listed under several codes is kept and reported by
// ToCode and Validate.
func NewBridge(entries []Entry) (*Bridge, error) {
	b := &Bridge{
		byCode:  make(map[string]string, len(entries)),
		byLabel: make(map[string][]string, len(entries)),
	}
	for _, e := range entries {
		code := strings.TrimSpace(e.Code)
		label := strings.TrimSpace(e.Label)
		if code == "" || label == "" {
			return nil, fmt.Errorf("%w: code=%q label=%q", ErrEmptyEntry, e.Code, e.Label)
		}
		if existing, ok := b.byCode[code]; ok {
			if existing != label {
				return nil, fmt.Errorf("%w: %s maps to %q and %q", ErrConflictingCode, code, existing, label)
			}
			continue
		}
		b.byCode[code] = label
		b.byLabel[label] = append(b.byLabel[label], code)
	}
	return b, nil
}

func (b *Bridge) ToLabel(code string) (string, bool) {
	label, ok := b.byCode[strings.TrimSpace(code)]
	return label, ok
}

// ToCode resolves a coarse label back to its canonical code. An unknown
// label yields "" and no error.
func (b *Bridge) ToCode(label string) (string, error) {
	codes := b.byLabel[strings.TrimSpace(label)]
	switch len(codes) {
	case 0:
		return "", nil
	case 1:
		return codes[0], nil
	default:
		sorted := append([]string(nil), codes...)
		sort.Strings(sorted)
		return "", fmt.Errorf("%w: %q appears under %s", ErrAmbiguousLabel, strings.TrimSpace(label), strings.Join(sorted, ", "))
	}
}

// Validate reports every ambiguous label.
func (b *Bridge) Validate() error {
	var errs []error
	for _, label := range b.Labels() {
		if _, err := b.ToCode(label); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Labels lists the distinct coarse labels in sorted order.
func (b *Bridge) Labels() []string {
	out := make([]string, 0, len(b.byLabel))
	for label := range b.byLabel {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Entries lists the mapping ordered by code.
func (b *Bridge) Entries() []Entry {
	out := make([]Entry, 0, len(b.byCode))
	for code, label := range b.byCode {
		out = append(out, Entry{Code: code, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
