package identity

import "strings"

// emailOID is the well-known OID identifying the e-mail address attribute
// (urn:oid:1.2.840.113549.1.9.1.1).
const emailOID = "1.2.840.113549.1.9.1.1"

// Resolved maps local field names to their single canonical value.
// Fields with no match in the incoming bag are absent, never empty strings.
// It is transient request-scope state and is not persisted.
type Resolved map[string]string

// Get returns the resolved value for a local field.
func (r Resolved) Get(field string) (string, bool) {
	v, ok := r[field]
	return v, ok
}

// Username derives the authenticated principal's username from the resolved
// attributes, falling back to the given name identifier. Returns
// ErrCannotEstablishIdentity when neither yields a usable value.
func (r Resolved) Username(nameID string) (string, error) {
	if v, ok := r["username"]; ok {
		return v, nil
	}

	if nameID != "" {
		return nameID, nil
	}

	return "", ErrCannotEstablishIdentity
}

// Chain is the ordered list of candidate wire names for one local field.
// Candidates are tried in declared order; the first present non-empty value
// wins.
type Chain struct {
	Field      string
	Candidates []string
}

// DefaultChains returns the fallback chains for the standard user fields.
// The declared local field name always comes first, so a partner sending
// direct field names wins over one sending LDAP-style aliases.
func DefaultChains() []Chain {
	return []Chain{
		{Field: "username", Candidates: []string{"username", "uid"}},
		{Field: "first_name", Candidates: []string{"first_name", "cn", "givenName"}},
		{Field: "last_name", Candidates: []string{"last_name", "sn", "surname"}},
		{Field: "email", Candidates: []string{"email", "mail"}},
		{Field: "department", Candidates: []string{"department"}},
		{Field: "title", Candidates: []string{"title"}},
		{Field: "phone", Candidates: []string{"phone", "telephoneNumber"}},
		{Field: "organization", Candidates: []string{"organization", "o"}},
	}
}

// Resolver resolves incoming attribute bags into canonical local field
// values by walking per-field fallback chains.
type Resolver struct {
	chains []Chain
}

// NewResolver creates a resolver with the given chains. Passing no chains
// selects DefaultChains.
func NewResolver(chains ...Chain) *Resolver {
	if len(chains) == 0 {
		chains = DefaultChains()
	}

	return &Resolver{chains: chains}
}

// Resolve walks every chain against the bag and returns the resolved
// identity. Wire names the resolver does not know are ignored; fields
// without any match are left absent.
//
// Email gets a best-effort last resort: after the declared candidates are
// exhausted, the remaining bag keys are scanned in lexicographic order for a
// case-insensitive "mail" substring or the e-mail OID, and the first match
// wins. This is a compatibility fallback for partners sending OID or URI
// style names, not a primary contract.
func (r *Resolver) Resolve(bag Bag) Resolved {
	resolved := make(Resolved, len(r.chains))

	for _, chain := range r.chains {
		for _, candidate := range chain.Candidates {
			if v, ok := bag.First(candidate); ok {
				resolved[chain.Field] = v
				break
			}
		}
	}

	if _, ok := resolved["email"]; !ok {
		if v, ok := scanForEmail(bag); ok {
			resolved["email"] = v
		}
	}

	return resolved
}

// scanForEmail scans the bag keys in lexicographic order for a name that
// looks like an e-mail attribute.
func scanForEmail(bag Bag) (string, bool) {
	for _, name := range bag.Names() {
		if !strings.Contains(strings.ToLower(name), "mail") && !strings.Contains(name, emailOID) {
			continue
		}

		if v, ok := bag.First(name); ok {
			return v, true
		}
	}

	return "", false
}
