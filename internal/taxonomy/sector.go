package taxonomy

import (
	"sort"
	"strings"

	"github.com/smallbiznis/verdant/internal/category"
)

// industryCodeWidth is the width of a domestic industry classification code.
// Spreadsheet exports often drop the leading zero of codes such as 07110.
const industryCodeWidth = 5

// SectorTable maps domestic industry classification codes onto canonical
// category codes.
type SectorTable struct {
	codes map[string]string
}

func defaultSectors() map[string]string {
	return map[string]string{
		"07110": "2.A.3",
		"19101": "2.B",
		"20111": "2.B.8",
		"23311": "2.A.1",
		"23312": "2.A.2",
		"23321": "2.A.1",
		"23991": "2.A.5",
		"24111": "2.C.1",
		"24112": "2.C.1",
		"24113": "2.C.2",
		"24119": "2.C.1",
		"24212": "2.C.3",
		"24219": "2.C.4",
		"41221": "2.A.6",
	}
}

func DefaultSectorTable() *SectorTable {
	return NewSectorTable(defaultSectors())
}

func NewSectorTable(codes map[string]string) *SectorTable {
	t := &SectorTable{codes: make(map[string]string, len(codes))}
	for sector, code := range codes {
		sector = normalizeSectorID(sector)
		code = strings.TrimSpace(code)
		if sector == "" || code == "" {
			continue
		}
		t.codes[sector] = code
	}
	return t
}

// Lookup returns the canonical code of an industry code.
func (t *SectorTable) Lookup(sectorID string) (string, bool) {
	code, ok := t.codes[normalizeSectorID(sectorID)]
	return code, ok
}

// Categories lists the canonical codes a site in sectorID contributes to,
// from level 2 down to level 3. 2.A.1 yields [2.A 2.A.1]; 2.B yields [2.B].
func (t *SectorTable) Categories(sectorID string) []string {
	code, ok := t.Lookup(sectorID)
	if !ok {
		return nil
	}
	return category.Expand(code, 2, 3)
}

func (t *SectorTable) Len() int { return len(t.codes) }

// Codes returns a copy of the table keyed by industry code.
func (t *SectorTable) Codes() map[string]string {
	out := make(map[string]string, len(t.codes))
	for k, v := range t.codes {
		out[k] = v
	}
	return out
}

// SectorIDs lists the known industry codes in sorted order.
func (t *SectorTable) SectorIDs() []string {
	out := make([]string, 0, len(t.codes))
	for k := range t.codes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalizeSectorID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) >= industryCodeWidth {
		return id
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return id
		}
	}
	return strings.Repeat("0", industryCodeWidth-len(id)) + id
}
