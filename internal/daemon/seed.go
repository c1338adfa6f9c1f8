package daemon

import (
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/asiradnan/saml/internal/config"
	"github.com/asiradnan/saml/internal/db/models"
)

// seed creates the initial accounts when the user table is empty: an admin,
// plus a pair of demo users on dev mode identity provider nodes so the
// federation can be exercised right after first start.
func seed(cfg *config.Config, db *gorm.DB) {
	var count int64

	db.Model(&models.User{}).Count(&count)
	if count != 0 {
		return
	}

	admin := models.User{
		Username:   "admin",
		Email:      "admin@localhost",
		Password:   models.HashPassword("changeme"),
		Active:     true,
		Staff:      true,
		Admin:      true,
		AuthSource: models.AuthSourceLocal,
	}

	if err := db.Create(&admin).Error; err != nil {
		log.Error().Err(err).Msg("failed to seed admin user")
		return
	}

	log.Info().Msg("seeded admin user with default password, change it")

	if !cfg.DevMode || cfg.Role != config.RoleIdP {
		return
	}

	staff := models.Group{Name: "staff", ExternalID: "staff", Source: models.GroupSourceLocal}
	users := models.Group{Name: "users", ExternalID: "users", Source: models.GroupSourceLocal}
	db.Create(&staff)
	db.Create(&users)

	joined := time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)

	alice := models.User{
		Username:     "alice",
		Email:        "alice@example.org",
		Password:     models.HashPassword("alice"),
		FirstName:    "Alice",
		LastName:     "Lidell",
		Department:   "Engineering",
		Title:        "Site Reliability Engineer",
		Organization: "Example Org",
		Active:       true,
		Staff:        true,
		AuthSource:   models.AuthSourceLocal,
		CreatedAt:    joined,
	}

	bob := models.User{
		Username:   "bob",
		Email:      "bob@example.org",
		Password:   models.HashPassword("bob"),
		FirstName:  "Bob",
		LastName:   "Sacamano",
		Department: "Sales",
		Active:     true,
		AuthSource: models.AuthSourceLocal,
		CreatedAt:  joined,
	}

	if err := db.Create(&alice).Error; err == nil {
		db.Create(&models.UserGroup{UserID: alice.ID, GroupID: staff.ID})
		db.Create(&models.UserGroup{UserID: alice.ID, GroupID: users.ID})
	}

	if err := db.Create(&bob).Error; err == nil {
		db.Create(&models.UserGroup{UserID: bob.ID, GroupID: users.ID})
	}

	log.Info().Msg("seeded demo users alice and bob")
}
