package importer

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// header maps column names to positions. Lookups ignore case and spaces.
type header map[string]int

func newHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		key := columnKey(name)
		if key == "" {
			continue
		}
		if _, seen := h[key]; !seen {
			h[key] = i
		}
	}
	return h
}

func columnKey(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}

// index returns the position of the first alias present, or -1.
func (h header) index(aliases ...string) int {
	for _, alias := range aliases {
		if i, ok := h[columnKey(alias)]; ok {
			return i
		}
	}
	return -1
}

func (h header) has(aliases ...string) bool {
	return h.index(aliases...) >= 0
}

// findHeader returns the position of the first row within limit rows holding
// one of the aliases.
func findHeader(rows [][]string, limit int, aliases ...string) int {
	for i, row := range rows {
		if i >= limit {
			break
		}
		if newHeader(row).has(aliases...) {
			return i
		}
	}
	return -1
}

// parseNumber reads spreadsheet numbers such as "1,234.5". Blank cells and
// placeholders like "-" or "NE" are nil.
func parseNumber(raw string) *float64 {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseYear(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, ".0")
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1000 || year > 9999 {
		return 0, false
	}
	return year, true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006.01.02",
	"2006/01/02",
	"20060102",
	// excelize renders cells with the built-in date format as mm-dd-yy
	"01-02-06",
}

func parseDate(raw string) (*time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, true
		}
	}
	return nil, false
}

var sheetYear = regexp.MustCompile(`\((\d{4})\)`)

// yearFromName reads a parenthesized year from a sheet name such as
// "명세서 주요정보(2022)".
func yearFromName(name string) (int, bool) {
	m := sheetYear.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	return parseYear(m[1])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
