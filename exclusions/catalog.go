// ABOUTME: YAML exclusion catalog loader, producing an analyzer.ExclusionsFactory
// ABOUTME: over the thread/static-field/instance-field rules described in spec section 4.2

package exclusions

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/prateek/heaplens/graph"
)

// Catalog is the on-disk shape of an exclusion catalog: one entry per known
// benign reference, keyed by kind. Loaded once per analysis run and turned
// into a []graph.Exclusion via Exclusions().
type Catalog struct {
	Threads        []ThreadRule        `yaml:"threads"`
	StaticFields   []StaticFieldRule   `yaml:"staticFields"`
	InstanceFields []InstanceFieldRule `yaml:"instanceFields"`
}

// ThreadRule excludes everything reachable only from a named thread root,
// e.g. a finalizer or GC worker thread that legitimately holds onto
// otherwise-leaked-looking objects.
type ThreadRule struct {
	Name        string `yaml:"name"`
	Status      string `yaml:"status"`
	Description string `yaml:"description"`
}

// StaticFieldRule excludes a specific class's static field, e.g. a cache
// singleton known to hold weak or soft references.
type StaticFieldRule struct {
	ClassName   string `yaml:"class"`
	FieldName   string `yaml:"field"`
	Status      string `yaml:"status"`
	Description string `yaml:"description"`
}

// InstanceFieldRule excludes a specific class's instance field, merged by
// hierarchy when the visitor hydrates an instance (spec section 4.3).
type InstanceFieldRule struct {
	ClassName   string `yaml:"class"`
	FieldName   string `yaml:"field"`
	Status      string `yaml:"status"`
	Description string `yaml:"description"`
}

func (c *Catalog) defaults() {
	for i := range c.Threads {
		if c.Threads[i].Status == "" {
			c.Threads[i].Status = "ALWAYS_REACHABLE"
		}
	}
	for i := range c.StaticFields {
		if c.StaticFields[i].Status == "" {
			c.StaticFields[i].Status = "ALWAYS_REACHABLE"
		}
	}
	for i := range c.InstanceFields {
		if c.InstanceFields[i].Status == "" {
			c.InstanceFields[i].Status = "ALWAYS_REACHABLE"
		}
	}
}

// Load reads a YAML exclusion catalog from path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("exclusions: opening catalog %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a YAML exclusion catalog from r.
func Decode(r io.Reader) (*Catalog, error) {
	var cat Catalog
	if err := yaml.NewDecoder(r).Decode(&cat); err != nil {
		if err == io.EOF {
			return &Catalog{}, nil
		}
		return nil, fmt.Errorf("exclusions: decoding catalog: %w", err)
	}
	cat.defaults()
	return &cat, nil
}

// Exclusions turns the catalog into the []graph.Exclusion slice
// analyzer.FindPaths's ExclusionsFactory contract expects.
func (c *Catalog) Exclusions() ([]graph.Exclusion, error) {
	out := make([]graph.Exclusion, 0, len(c.Threads)+len(c.StaticFields)+len(c.InstanceFields))

	for _, t := range c.Threads {
		status, err := parseStatus(t.Status)
		if err != nil {
			return nil, fmt.Errorf("exclusions: thread rule %q: %w", t.Name, err)
		}
		out = append(out, graph.Exclusion{
			Kind:        graph.ThreadExclusion,
			ThreadName:  t.Name,
			Status:      status,
			Description: t.Description,
		})
	}
	for _, s := range c.StaticFields {
		status, err := parseStatus(s.Status)
		if err != nil {
			return nil, fmt.Errorf("exclusions: static field rule %s.%s: %w", s.ClassName, s.FieldName, err)
		}
		out = append(out, graph.Exclusion{
			Kind:        graph.StaticFieldExclusion,
			ClassName:   s.ClassName,
			FieldName:   s.FieldName,
			Status:      status,
			Description: s.Description,
		})
	}
	for _, i := range c.InstanceFields {
		status, err := parseStatus(i.Status)
		if err != nil {
			return nil, fmt.Errorf("exclusions: instance field rule %s.%s: %w", i.ClassName, i.FieldName, err)
		}
		out = append(out, graph.Exclusion{
			Kind:        graph.InstanceFieldExclusion,
			ClassName:   i.ClassName,
			FieldName:   i.FieldName,
			Status:      status,
			Description: i.Description,
		})
	}
	return out, nil
}

func parseStatus(s string) (graph.ExclusionStatus, error) {
	switch s {
	case "ALWAYS_REACHABLE", "":
		return graph.AlwaysReachable, nil
	case "WEAKLY_REACHABLE":
		return graph.WeaklyReachable, nil
	case "NEVER_REACHABLE":
		return graph.NeverReachable, nil
	default:
		return 0, fmt.Errorf("unknown status %q", s)
	}
}

// Factory adapts a loaded Catalog into an analyzer.ExclusionsFactory: a
// function of the snapshot, evaluated once per FindPaths call, matching
// spec section 6's ExclusionsFactory shape without importing package
// analyzer (which would create an import cycle back into exclusions).
func Factory(cat *Catalog) func(graph.Snapshot) ([]graph.Exclusion, error) {
	return func(graph.Snapshot) ([]graph.Exclusion, error) {
		return cat.Exclusions()
	}
}
