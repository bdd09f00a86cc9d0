package session

import (
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/exglab/neurofeedback/pkg/ferrors"
)

// Catalogue holds the loaded set of named protocols.
type Catalogue struct {
	mu        sync.RWMutex
	protocols map[string]Protocol
}

// NewCatalogue parses the built-in protocol catalogue.
func NewCatalogue() (*Catalogue, error) {
	return LoadCatalogue([]byte(BuiltinCatalogueYAML))
}

// LoadCatalogue parses a YAML document of name -> Protocol, the
// format BuiltinCatalogueYAML and any operator override file share.
func LoadCatalogue(doc []byte) (*Catalogue, error) {
	raw := map[string]Protocol{}
	if err := yaml.Unmarshal(doc, &raw); err != nil {
		return nil, ferrors.Wrapf(ferrors.ErrRecorderIO, "parse protocol catalogue: %v", err)
	}
	for key, p := range raw {
		p.Key = key
		raw[key] = p
	}
	return &Catalogue{protocols: raw}, nil
}

// Get returns the named protocol.
func (c *Catalogue) Get(name string) (Protocol, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.protocols[name]
	return p, ok
}

// List returns every protocol, sorted by key, for list_protocols().
func (c *Catalogue) List() []Protocol {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.protocols))
	for k := range c.protocols {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Protocol, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.protocols[k])
	}
	return out
}

// Register adds or replaces a protocol, allowing operator overrides
// beyond the built-in catalogue.
func (c *Catalogue) Register(name string, p Protocol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.Key = name
	c.protocols[name] = p
}
