package group

import (
	"strconv"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/asiradnan/saml/internal/db/models"
)

// replaceMembership swaps the group's member set for the submitted one and
// commits the transaction. Invalid user IDs in the form are skipped.
func (s *Service) replaceMembership(tx *gorm.DB, groupID uint, userIDs []string) error {
	if err := tx.Where("group_id = ?", groupID).Delete(&models.UserGroup{}).Error; err != nil {
		tx.Rollback()
		log.Error().Err(err).Msg("failed to delete existing group members")

		return err
	}

	for _, userIDStr := range userIDs {
		userID, err := strconv.ParseUint(userIDStr, 10, 64)
		if err != nil {
			continue
		}

		membership := models.UserGroup{
			UserID:  userID,
			GroupID: groupID,
		}
		if err = tx.Create(&membership).Error; err != nil {
			tx.Rollback()
			log.Error().Err(err).Msg("failed to add user to group")

			return err
		}
	}

	if err := tx.Commit().Error; err != nil {
		log.Error().Err(err).Msg("failed to commit group membership update")
		return err
	}

	return nil
}
