package widget

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/toolbake/pkg/domain"
)

// ErrUnknownKind is returned when a kind reference is not in the catalog.
var ErrUnknownKind = errors.New("unknown widget kind")

// Kind describes the value shape and equality rule of one widget kind.
type Kind interface {
	// Ref returns the versioned reference, e.g. "text@1".
	Ref() string
	// Empty returns the value of a widget that was never set.
	Empty() any
	// Normalize validates value and converts it to its stored shape.
	Normalize(value any) (any, error)
	// Equal reports whether two stored values are the same for change detection.
	Equal(a, b any) bool
}

// Factory builds a Kind from the kind-specific widget config.
type Factory func(config map[string]any) (Kind, error)

// Catalog maps versioned kind references to factories.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]map[int]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]map[int]Factory)}
}

// Register adds a kind version. Registering an existing version fails.
func (c *Catalog) Register(name string, version int, factory Factory) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	versions, ok := c.factories[name]
	if !ok {
		versions = make(map[int]Factory)
		c.factories[name] = versions
	}
	if _, exists := versions[version]; exists {
		return fmt.Errorf("kind %s@%d already registered", name, version)
	}
	versions[version] = factory
	return nil
}

// Lookup returns the factory for a reference. A reference without a version
// resolves to the latest registered version.
func (c *Catalog) Lookup(ref string) (Factory, error) {
	name, version, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	versions, ok := c.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, ref)
	}
	if version == 0 {
		for v := range versions {
			if v > version {
				version = v
			}
		}
	}
	factory, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, ref)
	}
	return factory, nil
}

// Refs lists every registered reference, sorted.
func (c *Catalog) Refs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var refs []string
	for name, versions := range c.factories {
		for v := range versions {
			refs = append(refs, fmt.Sprintf("%s@%d", name, v))
		}
	}
	sort.Strings(refs)
	return refs
}

// New builds the Kind of a single widget definition.
func (c *Catalog) New(def domain.WidgetDefinition) (Kind, error) {
	factory, err := c.Lookup(def.Kind)
	if err != nil {
		return nil, err
	}
	kind, err := factory(def.Config)
	if err != nil {
		return nil, fmt.Errorf("widget %q config: %w", def.ID, err)
	}
	return kind, nil
}

// Resolve builds the kinds of every widget of a tool.
func (c *Catalog) Resolve(tool *domain.Tool) (Kinds, error) {
	kinds := make(Kinds, len(tool.Widgets))
	var errs []error
	for _, def := range tool.Widgets {
		kind, err := c.New(def)
		if err != nil {
			errs = append(errs, fmt.Errorf("widget %q: %w", def.ID, err))
			continue
		}
		kinds[def.ID] = kind
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidTool, errors.Join(errs...))
	}
	return kinds, nil
}

// ParseRef splits "name@version". A missing version is returned as 0.
func ParseRef(ref string) (string, int, error) {
	name, ver, found := strings.Cut(strings.TrimSpace(ref), "@")
	if name == "" {
		return "", 0, fmt.Errorf("%w: empty reference", ErrUnknownKind)
	}
	if !found {
		return name, 0, nil
	}
	version, err := strconv.Atoi(ver)
	if err != nil || version <= 0 {
		return "", 0, fmt.Errorf("%w: bad version in %q", ErrUnknownKind, ref)
	}
	return name, version, nil
}

// Kinds maps widget ids to their resolved kinds.
type Kinds map[string]Kind

// Defaults returns the seeded values: the normalized default of each widget,
// or its kind's empty value.
func (k Kinds) Defaults(tool *domain.Tool) (domain.Values, error) {
	values := make(domain.Values, len(tool.Widgets))
	for _, def := range tool.Widgets {
		kind, ok := k[def.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownWidget, def.ID)
		}
		if def.Default == nil {
			values[def.ID] = kind.Empty()
			continue
		}
		v, err := kind.Normalize(def.Default)
		if err != nil {
			return nil, fmt.Errorf("widget %q default: %w", def.ID, err)
		}
		values[def.ID] = v
	}
	return values, nil
}

var defaultCatalog = newDefaultCatalog()

// Default returns the built-in catalog.
func Default() *Catalog {
	return defaultCatalog
}

// Lookup resolves a reference in the built-in catalog.
func Lookup(ref string) (Factory, error) {
	return defaultCatalog.Lookup(ref)
}

// Resolve builds the kinds of a tool using the built-in catalog.
func Resolve(tool *domain.Tool) (Kinds, error) {
	return defaultCatalog.Resolve(tool)
}
