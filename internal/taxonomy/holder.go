package taxonomy

import (
	"sync/atomic"
)

// Holder publishes the current taxonomy to readers. A reload swaps the whole
// snapshot, so a reader never sees a bridge and sector table from different
// files.
type Holder struct {
	current atomic.Pointer[Taxonomy]
}

func NewHolder(initial *Taxonomy) *Holder {
	if initial == nil {
		initial = DefaultTaxonomy()
	}
	h := &Holder{}
	h.current.Store(initial)
	return h
}

func (h *Holder) Get() *Taxonomy { return h.current.Load() }

func (h *Holder) Bridge() *Bridge { return h.Get().Bridge }

func (h *Holder) Sectors() *SectorTable { return h.Get().Sectors }

func (h *Holder) Store(t *Taxonomy) {
	if t == nil {
		return
	}
	h.current.Store(t)
}
