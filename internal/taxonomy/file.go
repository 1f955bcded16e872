package taxonomy

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Taxonomy is one consistent snapshot of the bridge and the sector table.
type Taxonomy struct {
	Bridge  *Bridge
	Sectors *SectorTable
}

func DefaultTaxonomy() *Taxonomy {
	return &Taxonomy{Bridge: Default(), Sectors: DefaultSectorTable()}
}

type fileFormat struct {
	Bridge  []Entry           `yaml:"bridge"`
	Sectors map[string]string `yaml:"sectors"`
}

// LoadFile reads a taxonomy file:
//
//	bridge:
//	  - code: "2.A"
//	    label: "A.  광물산업"
//	sectors:
//	  "23311": "2.A.1"
//
// A missing section falls back to the built-in table.
func LoadFile(path string) (*Taxonomy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Taxonomy, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}

	out := DefaultTaxonomy()
	if len(doc.Bridge) > 0 {
		bridge, err := NewBridge(doc.Bridge)
		if err != nil {
			return nil, err
		}
		if err := bridge.Validate(); err != nil {
			return nil, err
		}
		out.Bridge = bridge
	}
	if len(doc.Sectors) > 0 {
		out.Sectors = NewSectorTable(doc.Sectors)
	}
	return out, nil
}
