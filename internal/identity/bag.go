// Package identity implements the identity-normalization layer of the
// federation: building outgoing assertion attribute bags from local user
// records, and resolving incoming bags back into canonical field values.
package identity

import "sort"

// Bag is an attribute bag as exchanged with the SAML engine: a mapping from
// wire attribute name to an ordered sequence of string values. The first
// element of a sequence is the primary value.
type Bag map[string][]string

// First returns the primary (first non-empty) value for the given wire name.
// The second return value is false when the name is absent or all of its
// values are empty.
func (b Bag) First(name string) (string, bool) {
	for _, v := range b[name] {
		if v != "" {
			return v, true
		}
	}

	return "", false
}

// Set replaces the values for the given wire name.
func (b Bag) Set(name string, values ...string) {
	b[name] = values
}

// Names returns the bag's wire names in lexicographic order. Bag iteration
// order is not stable across map implementations, so anything that scans the
// bag must use this order to stay deterministic.
func (b Bag) Names() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Clone returns a deep copy of the bag.
func (b Bag) Clone() Bag {
	out := make(Bag, len(b))

	for name, values := range b {
		copied := make([]string, len(values))
		copy(copied, values)
		out[name] = copied
	}

	return out
}
