package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/asiradnan/saml/internal/db/models"
	"github.com/asiradnan/saml/internal/identity"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Group{}, &models.UserGroup{}))

	return db
}

func createUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	user := &models.User{
		Active:     true,
		Username:   "alice",
		Email:      "old@example.org",
		FirstName:  "Alice",
		AuthSource: models.AuthSourceSAML,
	}
	require.NoError(t, db.Create(user).Error)

	return user
}

func TestApplyUpdatesChangedFields(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db)
	r := New(db)

	resolved := identity.Resolved{
		"email":      "new@example.org",
		"first_name": "Alice",
		"last_name":  "Smith",
		"department": "Engineering",
	}

	modified, err := r.Apply(user, resolved)
	require.NoError(t, err)
	assert.True(t, modified)

	// Both the in-memory record and the stored row carry the new values.
	assert.Equal(t, "new@example.org", user.Email)
	assert.Equal(t, "Smith", user.LastName)
	assert.Equal(t, "Engineering", user.Department)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.Equal(t, "new@example.org", stored.Email)
	assert.Equal(t, "Alice", stored.FirstName)
	assert.Equal(t, "Smith", stored.LastName)
	assert.Equal(t, "Engineering", stored.Department)
}

func TestApplyIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db)
	r := New(db)

	resolved := identity.Resolved{
		"email":     "new@example.org",
		"last_name": "Smith",
	}

	modified, err := r.Apply(user, resolved)
	require.NoError(t, err)
	assert.True(t, modified)

	// Applying the same identity again is a no-op.
	modified, err = r.Apply(user, resolved)
	require.NoError(t, err)
	assert.False(t, modified)
}

func TestApplyIgnoresAbsentAndEmptyFields(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db)
	r := New(db)

	// No opinion on email, and an explicit empty first name. Neither clears
	// the existing values.
	resolved := identity.Resolved{
		"first_name": "",
		"title":      "Engineer",
	}

	modified, err := r.Apply(user, resolved)
	require.NoError(t, err)
	assert.True(t, modified)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.Equal(t, "old@example.org", stored.Email)
	assert.Equal(t, "Alice", stored.FirstName)
	assert.Equal(t, "Engineer", stored.Title)
}

func TestApplyNeverRewritesUsername(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db)
	r := New(db)

	resolved := identity.Resolved{
		"username": "mallory",
		"email":    "new@example.org",
	}

	modified, err := r.Apply(user, resolved)
	require.NoError(t, err)
	assert.True(t, modified)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.Equal(t, "alice", stored.Username)
	assert.Equal(t, "new@example.org", stored.Email)
}

func TestApplyNoOpLeavesRowUntouched(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db)
	r := New(db)

	var before models.User
	require.NoError(t, db.First(&before, user.ID).Error)

	modified, err := r.Apply(user, identity.Resolved{"email": "old@example.org"})
	require.NoError(t, err)
	assert.False(t, modified)

	var after models.User
	require.NoError(t, db.First(&after, user.ID).Error)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestApplyPersistError(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db)
	r := New(db)

	// Closing the underlying connection makes the update fail.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = r.Apply(user, identity.Resolved{"email": "new@example.org"})
	assert.ErrorIs(t, err, ErrPersist)

	// The failed write must not leak into the in-memory record either.
	assert.Equal(t, "old@example.org", user.Email)
}
