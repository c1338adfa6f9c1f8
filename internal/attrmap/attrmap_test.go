package attrmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapTranslation(t *testing.T) {
	m := New("test", "urn:test", map[string]string{
		"uid":  "username",
		"mail": "email",
	}, map[string]string{
		"username": "uid",
		"email":    "mail",
	})

	assert.Equal(t, "test", m.Name())
	assert.Equal(t, "urn:test", m.Identifier())

	local, ok := m.ToLocal("uid")
	require.True(t, ok)
	assert.Equal(t, "username", local)

	wire, ok := m.ToWire("email")
	require.True(t, ok)
	assert.Equal(t, "mail", wire)

	_, ok = m.ToLocal("nonexistent")
	assert.False(t, ok)

	_, ok = m.ToWire("nonexistent")
	assert.False(t, ok)
}

func TestMapCopiesTables(t *testing.T) {
	fro := map[string]string{"uid": "username"}
	to := map[string]string{"username": "uid"}
	m := New("test", "urn:test", fro, to)

	fro["uid"] = "tampered"
	to["username"] = "tampered"

	local, ok := m.ToLocal("uid")
	require.True(t, ok)
	assert.Equal(t, "username", local)

	wire, ok := m.ToWire("username")
	require.True(t, ok)
	assert.Equal(t, "uid", wire)
}

func TestBasicRoundTrip(t *testing.T) {
	m := Basic()

	// Fields with a single wire alias survive a round trip.
	for _, field := range []string{"username", "email", "first_name", "last_name"} {
		wire, ok := m.ToWire(field)
		require.True(t, ok, field)

		back, ok := m.ToLocal(wire)
		require.True(t, ok, wire)
		assert.Equal(t, field, back)
	}
}

func TestBasicAliases(t *testing.T) {
	m := Basic()

	tests := []struct {
		wire  string
		local string
	}{
		{"uid", "username"},
		{"mail", "email"},
		{"cn", "first_name"},
		{"givenName", "first_name"},
		{"sn", "last_name"},
		{"surname", "last_name"},
		{"eduPersonAffiliation", "groups"},
		{"memberOf", "groups"},
		{"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress", "email"},
	}

	for _, tt := range tests {
		local, ok := m.ToLocal(tt.wire)
		require.True(t, ok, tt.wire)
		assert.Equal(t, tt.local, local)
	}

	// Groups translate out to the affiliation name, not memberOf.
	wire, ok := m.ToWire("groups")
	require.True(t, ok)
	assert.Equal(t, "eduPersonAffiliation", wire)
}

func TestURIPassThrough(t *testing.T) {
	m := URI()

	assert.Equal(t, ConventionURI, m.Name())
	assert.Equal(t, FormatURI, m.Identifier())

	wire, ok := m.ToWire("uid")
	require.True(t, ok)
	assert.Equal(t, "uid", wire)

	local, ok := m.ToLocal("mail")
	require.True(t, ok)
	assert.Equal(t, "mail", local)
}

func TestBuiltinRegistry(t *testing.T) {
	r := Builtin()

	basic, ok := r.Lookup(ConventionBasic)
	require.True(t, ok)
	assert.Equal(t, FormatBasic, basic.Identifier())

	uri, ok := r.Lookup(ConventionURI)
	require.True(t, ok)
	assert.Equal(t, FormatURI, uri.Identifier())

	_, ok = r.Lookup("shibboleth")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{ConventionBasic, ConventionURI}, r.Conventions())
}
