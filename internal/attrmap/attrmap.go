// Package attrmap provides bidirectional translation tables between
// wire-format SAML attribute names and local user-profile field names.
package attrmap

// Map is an immutable bidirectional attribute name table for one naming
// convention. Several wire names may map to the same local field, so the
// table is not required to be a bijection.
type Map struct {
	name       string
	identifier string
	fro        map[string]string
	to         map[string]string
}

// New creates a Map for the given convention name and SAML attrname-format
// identifier. The fro (wire name -> local field) and to (local field -> wire
// name) tables are copied, so the Map is safe for concurrent use.
func New(name, identifier string, fro, to map[string]string) Map {
	m := Map{
		name:       name,
		identifier: identifier,
		fro:        make(map[string]string, len(fro)),
		to:         make(map[string]string, len(to)),
	}

	for k, v := range fro {
		m.fro[k] = v
	}

	for k, v := range to {
		m.to[k] = v
	}

	return m
}

// Name returns the short convention name (e.g. "basic", "uri").
func (m Map) Name() string {
	return m.name
}

// Identifier returns the SAML attrname-format identifier URN.
func (m Map) Identifier() string {
	return m.identifier
}

// ToWire translates a local field name to its wire name.
// The second return value is false if the field is not in the table.
func (m Map) ToWire(localField string) (string, bool) {
	wire, ok := m.to[localField]
	return wire, ok
}

// ToLocal translates a wire attribute name to its local field name.
// The second return value is false if the name is not in the table.
func (m Map) ToLocal(wireName string) (string, bool) {
	local, ok := m.fro[wireName]
	return local, ok
}

// Registry holds attribute maps for multiple naming conventions.
// Callers pick a convention per communication partner.
type Registry struct {
	maps map[string]Map
}

// NewRegistry creates a registry from the given maps, keyed by convention name.
func NewRegistry(maps ...Map) *Registry {
	r := &Registry{
		maps: make(map[string]Map, len(maps)),
	}

	for _, m := range maps {
		r.maps[m.Name()] = m
	}

	return r
}

// Lookup returns the map registered for the given convention name.
func (r *Registry) Lookup(name string) (Map, bool) {
	m, ok := r.maps[name]
	return m, ok
}

// Conventions returns the names of all registered conventions.
func (r *Registry) Conventions() []string {
	names := make([]string, 0, len(r.maps))
	for name := range r.maps {
		names = append(names, name)
	}

	return names
}
