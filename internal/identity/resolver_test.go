package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFallbackOrder(t *testing.T) {
	r := NewResolver()

	// The direct field name wins over an LDAP-style alias.
	bag := Bag{
		"first_name": {"Alice"},
		"cn":         {"Alicia"},
		"givenName":  {"Ali"},
	}

	resolved := r.Resolve(bag)
	v, ok := resolved.Get("first_name")
	require.True(t, ok)
	assert.Equal(t, "Alice", v)

	// Without the direct name the next candidate in the chain wins.
	bag = Bag{
		"cn":        {"Alicia"},
		"givenName": {"Ali"},
	}

	resolved = r.Resolve(bag)
	v, ok = resolved.Get("first_name")
	require.True(t, ok)
	assert.Equal(t, "Alicia", v)
}

func TestResolveSkipsEmptyValues(t *testing.T) {
	r := NewResolver()

	bag := Bag{
		"username": {""},
		"uid":      {"alice"},
	}

	resolved := r.Resolve(bag)
	v, ok := resolved.Get("username")
	require.True(t, ok)
	assert.Equal(t, "alice", v)
}

func TestResolveAbsentFieldsStayAbsent(t *testing.T) {
	r := NewResolver()

	resolved := r.Resolve(Bag{"uid": {"alice"}})

	_, ok := resolved.Get("department")
	assert.False(t, ok)
	_, ok = resolved.Get("phone")
	assert.False(t, ok)
}

func TestResolveEmailLastResort(t *testing.T) {
	r := NewResolver()

	// Neither "email" nor "mail" is present, but an OID-style name is.
	bag := Bag{
		"uid": {"alice"},
		"urn:oid:1.2.840.113549.1.9.1.1": {"alice@example.org"},
	}

	resolved := r.Resolve(bag)
	v, ok := resolved.Get("email")
	require.True(t, ok)
	assert.Equal(t, "alice@example.org", v)

	// A "mail" substring matches case-insensitively.
	bag = Bag{
		"EmailAddress": {"bob@example.org"},
	}

	resolved = r.Resolve(bag)
	v, ok = resolved.Get("email")
	require.True(t, ok)
	assert.Equal(t, "bob@example.org", v)
}

func TestResolveEmailLastResortTieBreak(t *testing.T) {
	r := NewResolver()

	// Several candidate keys: the scan walks names in lexicographic order,
	// so "aMailbox" beats "zMail".
	bag := Bag{
		"zMail":    {"z@example.org"},
		"aMailbox": {"a@example.org"},
	}

	resolved := r.Resolve(bag)
	v, ok := resolved.Get("email")
	require.True(t, ok)
	assert.Equal(t, "a@example.org", v)
}

func TestResolveDeclaredEmailBeatsLastResort(t *testing.T) {
	r := NewResolver()

	bag := Bag{
		"mail":         {"declared@example.org"},
		"EmailAddress": {"scanned@example.org"},
	}

	resolved := r.Resolve(bag)
	v, ok := resolved.Get("email")
	require.True(t, ok)
	assert.Equal(t, "declared@example.org", v)
}

func TestUsername(t *testing.T) {
	resolved := Resolved{"username": "alice"}

	username, err := resolved.Username("name-id-1234")
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	// Without a resolved username the name identifier is used.
	resolved = Resolved{"email": "bob@example.org"}

	username, err = resolved.Username("name-id-1234")
	require.NoError(t, err)
	assert.Equal(t, "name-id-1234", username)

	// Neither available is a hard failure.
	_, err = resolved.Username("")
	assert.ErrorIs(t, err, ErrCannotEstablishIdentity)
}

func TestCustomChains(t *testing.T) {
	r := NewResolver(Chain{Field: "badge", Candidates: []string{"badgeNumber", "employeeID"}})

	resolved := r.Resolve(Bag{"employeeID": {"E-42"}})
	v, ok := resolved.Get("badge")
	require.True(t, ok)
	assert.Equal(t, "E-42", v)

	// Default chains are not in effect when custom chains are given.
	resolved = r.Resolve(Bag{"uid": {"alice"}})
	_, ok = resolved.Get("username")
	assert.False(t, ok)
}

func TestBagFirst(t *testing.T) {
	bag := Bag{
		"mail": {"", "second@example.org"},
	}

	v, ok := bag.First("mail")
	require.True(t, ok)
	assert.Equal(t, "second@example.org", v)

	_, ok = bag.First("missing")
	assert.False(t, ok)

	bag.Set("empty", "")
	_, ok = bag.First("empty")
	assert.False(t, ok)
}

func TestBagClone(t *testing.T) {
	bag := Bag{"uid": {"alice"}}
	clone := bag.Clone()

	clone["uid"][0] = "mallory"
	clone.Set("mail", "mallory@example.org")

	v, ok := bag.First("uid")
	require.True(t, ok)
	assert.Equal(t, "alice", v)
	_, ok = bag.First("mail")
	assert.False(t, ok)
}
