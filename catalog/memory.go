package catalog

import (
	"context"
	"sync"
)

// MemoryCatalog keeps records in a map per format.
type MemoryCatalog struct {
	mu      sync.RWMutex
	indexes map[string]map[string]*Molecule // format → identifier → record
}

var indexedFormats = []string{FormatName, FormatInChI, FormatInChIKey, FormatSMILES, FormatFormula}

func NewMemoryCatalog(mols ...Molecule) *MemoryCatalog {
	c := &MemoryCatalog{indexes: make(map[string]map[string]*Molecule, len(indexedFormats))}
	for _, f := range indexedFormats {
		c.indexes[f] = make(map[string]*Molecule)
	}
	for _, m := range mols {
		c.Add(m)
	}
	return c
}

// Add inserts m, replacing any record sharing one of its identifiers.
func (c *MemoryCatalog) Add(m Molecule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := &m
	for _, f := range indexedFormats {
		id, _ := rec.Identifier(f)
		if id != "" {
			c.indexes[f][id] = rec
		}
	}
}

func (c *MemoryCatalog) Lookup(ctx context.Context, identifier, format string) (*Molecule, error) {
	idx, ok := c.indexes[NormalizeFormat(format)]
	if !ok {
		return nil, ErrUnknownFormat
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := idx[identifier]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (c *MemoryCatalog) ByInChI(ctx context.Context, inchi string) (*Molecule, error) {
	return c.Lookup(ctx, inchi, FormatInChI)
}

func (c *MemoryCatalog) Close() error { return nil }
