package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/asiradnan/saml/internal/db/models"
	"github.com/asiradnan/saml/internal/identity"
	"github.com/asiradnan/saml/internal/reconcile"
)

// Service provides the shared identity plumbing for all authentication
// sources: upserting user records from attribute bags and synchronizing
// external group memberships.
type Service struct {
	db         *gorm.DB
	resolver   *identity.Resolver
	reconciler *reconcile.Reconciler
}

// NewService creates a new auth service.
func NewService(db *gorm.DB) *Service {
	return &Service{
		db:         db,
		resolver:   identity.NewResolver(),
		reconciler: reconcile.New(db),
	}
}

// Resolver returns the attribute resolver the service uses.
func (s *Service) Resolver() *identity.Resolver {
	return s.resolver
}

// Reconciler returns the user reconciler the service uses.
func (s *Service) Reconciler() *reconcile.Reconciler {
	return s.reconciler
}

// UpsertFromBag finds or creates the user identified by externalID and
// source, then reconciles the resolved attributes into the record. The
// username is derived from the resolved attributes with nameID as fallback;
// if neither yields one, identity.ErrCannotEstablishIdentity is returned and
// no record is created.
func (s *Service) UpsertFromBag(
	externalID string,
	source models.AuthSource,
	bag identity.Bag,
	nameID string,
) (*models.User, error) {
	resolved := s.resolver.Resolve(bag)

	username, err := resolved.Username(nameID)
	if err != nil {
		return nil, err
	}

	user, err := s.FindOrCreate(externalID, source, username)
	if err != nil {
		return nil, err
	}

	if _, err = s.reconciler.Apply(user, resolved); err != nil {
		return nil, err
	}

	return user, nil
}

// FindOrCreate returns the user identified by externalID and source,
// provisioning a bare active record with the given username on first sight.
// It never touches profile fields on an existing record; callers that want
// attributes applied go through the reconciler.
func (s *Service) FindOrCreate(
	externalID string,
	source models.AuthSource,
	username string,
) (*models.User, error) {
	var user models.User

	err := s.db.Preload("Groups").
		Where("external_id = ? AND auth_source = ?", externalID, source).
		First(&user).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			Active:     true,
			Username:   username,
			AuthSource: source,
			ExternalID: externalID,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}

		if err = s.db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}

		log.Info().
			Str("username", username).
			Str("source", string(source)).
			Msg("provisioned user")
	case err != nil:
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// SyncGroups replaces the user's memberships from the given source with the
// provided group names, creating groups on first sight. Memberships from
// other sources are left untouched.
func (s *Service) SyncGroups(user *models.User, names []string, source models.GroupSource) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		// Drop the user's existing memberships from this source
		err := tx.Where(
			"user_id = ? AND group_id IN (?)",
			user.ID,
			tx.Model(&models.Group{}).Select("id").Where("source = ?", source),
		).Delete(&models.UserGroup{}).Error
		if err != nil {
			return fmt.Errorf("failed to clear group memberships: %w", err)
		}

		for _, name := range names {
			var group models.Group

			err = tx.Where("external_id = ? AND source = ?", name, source).First(&group).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				group = models.Group{
					Name:       name,
					ExternalID: name,
					Source:     source,
				}

				if err = tx.Create(&group).Error; err != nil {
					return fmt.Errorf("failed to create group %q: %w", name, err)
				}
			} else if err != nil {
				return fmt.Errorf("failed to query group %q: %w", name, err)
			}

			membership := models.UserGroup{UserID: user.ID, GroupID: group.ID}
			if err = tx.Create(&membership).Error; err != nil {
				return fmt.Errorf("failed to add user to group %q: %w", name, err)
			}
		}

		return nil
	})
}
