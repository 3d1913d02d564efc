package systems

import (
	"fmt"
	"sort"

	"github.com/volundmush/moonsilver/internal/config"
)

// Factory builds a fresh processor instance.
type Factory func() (Processor, error)

// Registry catalogs the processors a server knows how to build, by name.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) error {
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProcessor, name)
	}
	r.factories[name] = f
	return nil
}

// Names lists registered names alphabetically.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Build instantiates the enabled processors of cfgs in list order, applying
// configured priority overrides.
func (r *Registry) Build(cfgs []config.ProcessorConfig) ([]Processor, error) {
	out := make([]Processor, 0, len(cfgs))
	for _, c := range cfgs {
		if !c.IsEnabled() {
			continue
		}
		f, ok := r.factories[c.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProcessor, c.Name)
		}
		p, err := f()
		if err != nil {
			return nil, fmt.Errorf("build processor %s: %w", c.Name, err)
		}
		if c.Priority != nil {
			p = WithPriority(p, Priority(*c.Priority))
		}
		out = append(out, p)
	}
	return out, nil
}
