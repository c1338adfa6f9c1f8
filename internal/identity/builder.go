package identity

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/asiradnan/saml/internal/attrmap"
	"github.com/asiradnan/saml/internal/db/models"
)

// Wire aliases for group memberships. Both are emitted so relying parties
// expecting either name can consume memberships.
const (
	groupsAffiliationName = "eduPersonAffiliation"
	groupsMemberOfName    = "memberOf"
)

// statusTwins pairs each boolean field with its textual twin. Booleans go
// out in both forms to tolerate consumers expecting either.
var statusTwins = map[string]string{
	"is_active":    "account_status",
	"is_staff":     "staff_status",
	"is_superuser": "admin_status",
}

// Builder produces the outgoing attribute bag for an assertion from a local
// user record, translating local field names to wire names via the
// registered attribute maps.
type Builder struct {
	maps *attrmap.Registry
}

// NewBuilder creates a builder using the given attribute map registry. A nil
// registry falls back to the built-in conventions.
func NewBuilder(maps *attrmap.Registry) *Builder {
	if maps == nil {
		maps = attrmap.Builtin()
	}

	return &Builder{maps: maps}
}

// HasAccess reports whether an assertion may be issued for the user at all.
// A nil or unsaved user counts as unauthenticated. The builder must not be
// invoked when this returns false; access denial is a normal outcome for the
// issuance pipeline, not an error.
func HasAccess(u *models.User) bool {
	return u != nil && u.ID > 0 && u.Active
}

// Build produces the attribute bag for the user under the given naming
// convention. The requested set selects local fields; an empty set means all
// available fields. Fields with empty values are omitted entirely, never
// emitted as empty-string placeholders.
func (b *Builder) Build(user *models.User, requested []string, convention string) (Bag, error) {
	m, ok := b.maps.Lookup(convention)
	if !ok {
		return nil, ErrUnknownConvention
	}

	fields := b.collect(user)
	keep := requestedSet(requested)
	bag := make(Bag, len(fields))

	for field, values := range fields {
		if keep != nil && !keep[field] {
			continue
		}

		name := field
		if wire, found := m.ToWire(field); found {
			name = wire
		} else if field == "groups" {
			name = groupsAffiliationName
		}

		bag.Set(name, values...)

		if field == "groups" {
			bag.Set(groupsMemberOfName, values...)
		}
	}

	log.Debug().
		Str("username", user.Username).
		Str("convention", convention).
		Int("attributes", len(bag)).
		Msg("built assertion attribute bag")

	return bag, nil
}

// collect gathers the user's non-empty local fields. Booleans are collected
// in both canonical and textual form.
func (b *Builder) collect(user *models.User) map[string][]string {
	fields := make(map[string][]string)

	put := func(field, value string) {
		if value != "" {
			fields[field] = []string{value}
		}
	}

	put("username", user.Username)
	put("email", user.Email)
	put("first_name", user.FirstName)
	put("last_name", user.LastName)
	put("full_name", user.FullName())
	put("department", user.Department)
	put("title", user.Title)
	put("phone", user.Phone)
	put("organization", user.Organization)

	fields["is_active"] = []string{boolString(user.Active)}
	fields["account_status"] = []string{textForm(user.Active, "active", "inactive")}
	fields["is_staff"] = []string{boolString(user.Staff)}
	fields["staff_status"] = []string{textForm(user.Staff, "staff", "regular")}
	fields["is_superuser"] = []string{boolString(user.Admin)}
	fields["admin_status"] = []string{textForm(user.Admin, "admin", "user")}

	if !user.CreatedAt.IsZero() {
		put("date_joined", user.CreatedAt.Format(time.RFC3339))
	}

	if user.LastLogin != nil {
		put("last_login", user.LastLogin.Format(time.RFC3339))
	}

	if groups := user.GroupNames(); len(groups) > 0 {
		fields["groups"] = groups
	}

	return fields
}

// requestedSet expands the requested fields into a lookup set, pulling in
// the textual twin of any requested boolean and vice versa. Returns nil for
// an empty request, meaning "all fields".
func requestedSet(requested []string) map[string]bool {
	if len(requested) == 0 {
		return nil
	}

	keep := make(map[string]bool, len(requested)*2)

	for _, field := range requested {
		keep[field] = true

		if twin, ok := statusTwins[field]; ok {
			keep[twin] = true
		}

		for boolean, twin := range statusTwins {
			if twin == field {
				keep[boolean] = true
			}
		}
	}

	return keep
}

func boolString(v bool) string {
	if v {
		return "true"
	}

	return "false"
}

func textForm(v bool, yes, no string) string {
	if v {
		return yes
	}

	return no
}
