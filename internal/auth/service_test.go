package auth

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

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Group{}, &models.UserGroup{}))

	return NewService(db)
}

func TestFindOrCreate(t *testing.T) {
	s := newTestService(t)

	user, err := s.FindOrCreate("name-id-1", models.AuthSourceSAML, "alice")
	require.NoError(t, err)
	assert.True(t, user.Active)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, models.AuthSourceSAML, user.AuthSource)
	assert.NotZero(t, user.ID)

	// Second call finds the same record instead of creating another.
	again, err := s.FindOrCreate("name-id-1", models.AuthSourceSAML, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	var count int64
	require.NoError(t, s.db.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestFindOrCreateNeverTouchesProfile(t *testing.T) {
	s := newTestService(t)

	user, err := s.FindOrCreate("name-id-1", models.AuthSourceSAML, "alice")
	require.NoError(t, err)

	user.FirstName = "Alice"
	user.Email = "alice@example.org"
	require.NoError(t, s.db.Save(user).Error)

	again, err := s.FindOrCreate("name-id-1", models.AuthSourceSAML, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.FirstName)
	assert.Equal(t, "alice@example.org", again.Email)
}

func TestUpsertFromBag(t *testing.T) {
	s := newTestService(t)

	bag := identity.Bag{
		"uid":  {"alice"},
		"mail": {"alice@example.org"},
		"cn":   {"Alice"},
	}

	user, err := s.UpsertFromBag("name-id-1", models.AuthSourceSAML, bag, "name-id-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.org", user.Email)
	assert.Equal(t, "Alice", user.FirstName)
}

func TestUpsertFromBagNoUsername(t *testing.T) {
	s := newTestService(t)

	_, err := s.UpsertFromBag("", models.AuthSourceSAML, identity.Bag{}, "")
	assert.ErrorIs(t, err, identity.ErrCannotEstablishIdentity)

	var count int64
	require.NoError(t, s.db.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestSyncGroupsReplacesSourceMemberships(t *testing.T) {
	s := newTestService(t)

	user, err := s.FindOrCreate("name-id-1", models.AuthSourceSAML, "alice")
	require.NoError(t, err)

	require.NoError(t, s.SyncGroups(user, []string{"staff", "users"}, models.GroupSourceSAML))

	var memberships []models.UserGroup
	require.NoError(t, s.db.Where("user_id = ?", user.ID).Find(&memberships).Error)
	assert.Len(t, memberships, 2)

	// The next assertion carries a different group set; the old one goes.
	require.NoError(t, s.SyncGroups(user, []string{"users"}, models.GroupSourceSAML))

	var fresh models.User
	require.NoError(t, s.db.Preload("Groups").First(&fresh, user.ID).Error)
	require.Len(t, fresh.Groups, 1)
	assert.Equal(t, "users", fresh.Groups[0].Name)

	// Groups themselves survive; only memberships are replaced.
	var groupCount int64
	require.NoError(t, s.db.Model(&models.Group{}).Count(&groupCount).Error)
	assert.EqualValues(t, 2, groupCount)
}

func TestSyncGroupsLeavesOtherSourcesAlone(t *testing.T) {
	s := newTestService(t)

	user, err := s.FindOrCreate("name-id-1", models.AuthSourceSAML, "alice")
	require.NoError(t, err)

	local := models.Group{Name: "operators", ExternalID: "operators", Source: models.GroupSourceLocal}
	require.NoError(t, s.db.Create(&local).Error)
	require.NoError(t, s.db.Create(&models.UserGroup{UserID: user.ID, GroupID: local.ID}).Error)

	require.NoError(t, s.SyncGroups(user, []string{"staff"}, models.GroupSourceSAML))
	require.NoError(t, s.SyncGroups(user, nil, models.GroupSourceSAML))

	var fresh models.User
	require.NoError(t, s.db.Preload("Groups").First(&fresh, user.ID).Error)
	require.Len(t, fresh.Groups, 1)
	assert.Equal(t, "operators", fresh.Groups[0].Name)
}
