package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SourceCatalog = (*Catalog)(nil)

// file is the on-disk layout of a sources file:
//
//	sources:
//	  - id: leave
//	    table: form_leave
//	    auto_sync: true
//	    fields:
//	      - {name: title, type: text, label: Title}
type file struct {
	Sources []*domain.Source `yaml:"sources"`
}

// Catalog serves sources read from a YAML file. Sources are immutable once loaded.
type Catalog struct {
	path string

	mu      sync.RWMutex
	sources map[string]*domain.Source
}

// Load reads and validates the sources file at path.
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse builds a catalog from YAML bytes.
func Parse(data []byte) (*Catalog, error) {
	sources, err := parse(data)
	if err != nil {
		return nil, err
	}
	return &Catalog{sources: sources}, nil
}

func parse(data []byte) (map[string]*domain.Source, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse sources: %v", domain.ErrInvalidInput, err)
	}

	sources := make(map[string]*domain.Source, len(f.Sources))
	for _, s := range f.Sources {
		if s == nil {
			continue
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := sources[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate source id %q", domain.ErrInvalidInput, s.ID)
		}
		sources[s.ID] = s
	}

	// Child results and their indexes are keyed by <parent>_<sub name>, so a
	// derived id must not shadow a top-level source or another child.
	children := make(map[string]string)
	for _, s := range f.Sources {
		if s == nil {
			continue
		}
		for _, sub := range s.SubTables {
			childID := s.ChildSource(sub).ID
			if _, clash := sources[childID]; clash {
				return nil, fmt.Errorf("%w: sub table %q of source %q derives id %q, which is already a source id",
					domain.ErrInvalidInput, sub.Name, s.ID, childID)
			}
			if parent, clash := children[childID]; clash {
				return nil, fmt.Errorf("%w: sub table %q of source %q derives id %q, already derived from source %q",
					domain.ErrInvalidInput, sub.Name, s.ID, childID, parent)
			}
			children[childID] = s.ID
		}
	}
	return sources, nil
}

// Reload re-reads the sources file. On error the current sources are kept.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read sources file: %w", err)
	}
	sources, err := parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", c.path, err)
	}

	c.mu.Lock()
	c.sources = sources
	c.mu.Unlock()
	return nil
}

// Get returns the source with id or domain.ErrSourceNotFound
func (c *Catalog) Get(ctx context.Context, id string) (*domain.Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.sources[id]
	if !ok {
		return nil, domain.ErrSourceNotFound
	}
	return s, nil
}

// List returns every source ordered by id
func (c *Catalog) List(ctx context.Context) ([]*domain.Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*domain.Source, 0, len(c.sources))
	for _, s := range c.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
