package tools

import (
	"strconv"

	"github.com/rs/zerolog"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"sysutils-mcp/internal/schema"
)

// Entry is a registered tool.
type Entry struct {
	Descriptor Descriptor
	Handler    Handler
}

// Registry collects tools during startup.
// It is not safe for concurrent registration; Freeze it before serving.
type Registry struct {
	entries       *orderedmap.OrderedMap[string, *Entry]
	catalog       *Catalog
	schemaOptions schema.Options
	logger        zerolog.Logger
}

// NewRegistry creates a new tool registry.
func NewRegistry(opts schema.Options, logger zerolog.Logger) *Registry {
	return &Registry{
		entries:       orderedmap.New[string, *Entry](),
		schemaOptions: opts,
		logger:        logger.With().Str("component", "tool_registry").Logger(),
	}
}

// Register adds a new tool to the registry.
// The first registration of a name wins; later ones fail with ErrDuplicateName.
func (r *Registry) Register(desc Descriptor, handler Handler) error {
	if r.catalog != nil {
		return NewRegistryFrozenError(desc.Name)
	}
	if desc.Name == "" {
		return NewInvalidDescriptorError("tool name is empty", nil)
	}
	if desc.InputSchema == nil {
		return NewInvalidDescriptorError("tool "+strconv.Quote(desc.Name)+" has no input schema", nil)
	}
	if handler == nil {
		return NewInvalidDescriptorError("tool "+strconv.Quote(desc.Name)+" has no handler", nil)
	}
	if _, exists := r.entries.Get(desc.Name); exists {
		r.logger.Error().
			Str("tool", desc.Name).
			Msg("Duplicate tool registration rejected")
		return NewDuplicateNameError(desc.Name)
	}

	r.entries.Set(desc.Name, &Entry{Descriptor: desc, Handler: handler})

	r.logger.Debug().
		Str("tool", desc.Name).
		Str("schema_hash", strconv.FormatUint(desc.InputSchema.Fingerprint(), 16)).
		Msg("Registered tool")
	return nil
}

// Freeze ends registration and returns the read-only view used while serving.
// Calling Freeze again returns the same Catalog.
func (r *Registry) Freeze() *Catalog {
	if r.catalog != nil {
		return r.catalog
	}

	descriptors := make([]Descriptor, 0, r.entries.Len())
	for pair := r.entries.Oldest(); pair != nil; pair = pair.Next() {
		descriptors = append(descriptors, pair.Value.Descriptor)
	}
	r.catalog = &Catalog{
		entries:     r.entries,
		descriptors: descriptors,
	}

	r.logger.Info().
		Int("tools", len(descriptors)).
		Msg("Tool registry frozen")
	return r.catalog
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	return r.catalog != nil
}

// Catalog is the frozen, read-only registry. Reads need no locking.
type Catalog struct {
	entries     *orderedmap.OrderedMap[string, *Entry]
	descriptors []Descriptor
}

// Lookup returns a tool by exact name.
func (c *Catalog) Lookup(name string) (*Entry, error) {
	entry, ok := c.entries.Get(name)
	if !ok {
		return nil, NewUnknownToolError(name)
	}
	return entry, nil
}

// List returns all descriptors in registration order.
func (c *Catalog) List() []Descriptor {
	out := make([]Descriptor, len(c.descriptors))
	copy(out, c.descriptors)
	return out
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int {
	return len(c.descriptors)
}
