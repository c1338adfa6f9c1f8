package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asiradnan/saml/internal/attrmap"
	"github.com/asiradnan/saml/internal/db/models"
)

func testUser() *models.User {
	return &models.User{
		ID:        1,
		Active:    true,
		Username:  "alice",
		Email:     "alice@example.org",
		FirstName: "Alice",
		LastName:  "Smith",
		Staff:     true,
		CreatedAt: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
		Groups: []models.Group{
			{Name: "staff"},
			{Name: "users"},
		},
	}
}

func TestBuildBasicConvention(t *testing.T) {
	b := NewBuilder(nil)

	bag, err := b.Build(testUser(), nil, attrmap.ConventionBasic)
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
	}{
		{"uid", "alice"},
		{"mail", "alice@example.org"},
		{"cn", "Alice"},
		{"sn", "Smith"},
		{"displayName", "Alice Smith"},
		{"accountStatus", "active"},
		{"staffStatus", "staff"},
		{"adminStatus", "user"},
		{"is_active", "true"},
		{"is_staff", "true"},
		{"is_superuser", "false"},
		{"memberSince", "2020-03-01T00:00:00Z"},
	}

	for _, tt := range tests {
		v, ok := bag.First(tt.name)
		require.True(t, ok, tt.name)
		assert.Equal(t, tt.value, v, tt.name)
	}
}

func TestBuildGroupsUnderBothNames(t *testing.T) {
	b := NewBuilder(nil)

	bag, err := b.Build(testUser(), nil, attrmap.ConventionBasic)
	require.NoError(t, err)

	assert.Equal(t, []string{"staff", "users"}, bag["eduPersonAffiliation"])
	assert.Equal(t, []string{"staff", "users"}, bag["memberOf"])
}

func TestBuildOmitsEmptyFields(t *testing.T) {
	b := NewBuilder(nil)

	user := &models.User{ID: 1, Active: true, Username: "bare"}

	bag, err := b.Build(user, nil, attrmap.ConventionBasic)
	require.NoError(t, err)

	for _, name := range []string{"mail", "cn", "sn", "displayName", "department", "telephoneNumber", "eduPersonAffiliation", "memberOf", "lastLogin"} {
		_, present := bag[name]
		assert.False(t, present, name)
	}

	// Booleans are always emitted, in both forms.
	v, ok := bag.First("accountStatus")
	require.True(t, ok)
	assert.Equal(t, "active", v)
	v, ok = bag.First("is_active")
	require.True(t, ok)
	assert.Equal(t, "true", v)
}

func TestBuildBooleanDualForms(t *testing.T) {
	b := NewBuilder(nil)

	user := testUser()
	user.Active = false
	user.Staff = false
	user.Admin = true

	bag, err := b.Build(user, nil, attrmap.ConventionBasic)
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
	}{
		{"is_active", "false"},
		{"accountStatus", "inactive"},
		{"is_staff", "false"},
		{"staffStatus", "regular"},
		{"is_superuser", "true"},
		{"adminStatus", "admin"},
	}

	for _, tt := range tests {
		v, ok := bag.First(tt.name)
		require.True(t, ok, tt.name)
		assert.Equal(t, tt.value, v, tt.name)
	}
}

func TestBuildRequestedFieldFilter(t *testing.T) {
	b := NewBuilder(nil)

	bag, err := b.Build(testUser(), []string{"username", "email"}, attrmap.ConventionBasic)
	require.NoError(t, err)

	_, ok := bag.First("uid")
	assert.True(t, ok)
	_, ok = bag.First("mail")
	assert.True(t, ok)

	_, ok = bag.First("cn")
	assert.False(t, ok)
	_, ok = bag.First("eduPersonAffiliation")
	assert.False(t, ok)
}

func TestBuildRequestedBooleanExpandsTwin(t *testing.T) {
	b := NewBuilder(nil)

	// Requesting the boolean pulls in its textual twin.
	bag, err := b.Build(testUser(), []string{"is_active"}, attrmap.ConventionBasic)
	require.NoError(t, err)

	_, ok := bag.First("is_active")
	assert.True(t, ok)
	_, ok = bag.First("accountStatus")
	assert.True(t, ok)
	_, ok = bag.First("is_staff")
	assert.False(t, ok)

	// And the other way around.
	bag, err = b.Build(testUser(), []string{"staff_status"}, attrmap.ConventionBasic)
	require.NoError(t, err)

	_, ok = bag.First("staffStatus")
	assert.True(t, ok)
	_, ok = bag.First("is_staff")
	assert.True(t, ok)
}

func TestBuildURIConvention(t *testing.T) {
	b := NewBuilder(nil)

	bag, err := b.Build(testUser(), nil, attrmap.ConventionURI)
	require.NoError(t, err)

	// The uri table only maps wire-style names, so local field names fall
	// through untranslated.
	v, ok := bag.First("username")
	require.True(t, ok)
	assert.Equal(t, "alice", v)

	v, ok = bag.First("is_active")
	require.True(t, ok)
	assert.Equal(t, "true", v)

	// Groups still go out under both membership names even though the uri
	// table has no entry for them.
	assert.Equal(t, []string{"staff", "users"}, bag["eduPersonAffiliation"])
	assert.Equal(t, []string{"staff", "users"}, bag["memberOf"])
	_, ok = bag.First("groups")
	assert.False(t, ok)
}

func TestBuildUnknownConvention(t *testing.T) {
	b := NewBuilder(nil)

	_, err := b.Build(testUser(), nil, "shibboleth")
	assert.ErrorIs(t, err, ErrUnknownConvention)
}

func TestHasAccess(t *testing.T) {
	assert.True(t, HasAccess(&models.User{ID: 1, Active: true}))
	assert.False(t, HasAccess(&models.User{ID: 1, Active: false}))
	assert.False(t, HasAccess(&models.User{Active: true}))
	assert.False(t, HasAccess(nil))
}
