// Package group provides handlers for managing user groups (CRUD) in admin area.
package group

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/asiradnan/saml/internal/auth"
	"github.com/asiradnan/saml/internal/config"
	"github.com/asiradnan/saml/internal/db/models"
	"github.com/asiradnan/saml/internal/web/handler"
	"github.com/asiradnan/saml/internal/web/handler/whoami"
	"github.com/asiradnan/saml/internal/web/navigation"
)

const (
	// Path is the base path for group management.
	Path = handler.RootPath + "admin/group"

	// TemplateList is the template for listing groups.
	TemplateList = "admin/group/list"
	// TemplateForm is the template for creating/updating a group.
	TemplateForm = "admin/group/form"
)

// Service provides CRUD operations for groups. Group names feed directly
// into outgoing assertions, so membership edits here change what relying
// parties receive on the next login.
type Service struct {
	handler.Service
	cfg       *config.Config
	db        *gorm.DB
	validator *validator.Validate
}

// Handler is the exported instance.
var Handler = Service{}

// groupForm is the create/update form payload.
type groupForm struct {
	Name        string   `form:"name"        validate:"required,min=1,max=100"`
	ExternalID  string   `form:"external_id" validate:"max=255"`
	Source      string   `form:"source"      validate:"required,oneof=local oidc ldap saml"`
	Description string   `form:"description" validate:"max=255"`
	UserIDs     []string // form values are strings
}

// Init registers routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.db = db
	s.cfg = cfg
	s.validator = validator.New()

	app.Get(Path, auth.RequireStaff(), s.List)
	app.Get(Path+"/new", auth.RequireStaff(), s.New)
	app.Post(Path, auth.RequireStaff(), s.Create)
	app.Get(Path+"/:id/edit", auth.RequireStaff(), s.Edit)
	app.Post(Path+"/:id", auth.RequireStaff(), s.Update)
	app.Post(Path+"/:id/delete", auth.RequireStaff(), s.Delete)
}

func (s *Service) nav(title string, active bool) *navigation.Context {
	nav := navigation.NewContext(title, "admin", "group").
		AddBreadcrumb("Home", whoami.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Groups", Path, !active)

	if active {
		nav.AddBreadcrumb(title, "#", true)
	}

	return nav
}

// List shows all groups with their member counts.
func (s *Service) List(c *fiber.Ctx) error {
	var groups []models.Group

	search := c.Query("search", "")
	tx := s.db.Model(&models.Group{})

	if search != "" {
		like := "%" + search + "%"
		tx = tx.Where("name LIKE ? OR external_id LIKE ? OR description LIKE ?", like, like, like)
	}

	if err := tx.Order("name ASC").Find(&groups).Error; err != nil {
		log.Error().Err(err).Msg("query groups failed")

		return c.Status(fiber.StatusInternalServerError).Render(TemplateList, fiber.Map{
			"Navigation": s.nav("Groups", false),
			"Error":      "Failed to load groups",
		}, handler.BaseLayout)
	}

	memberCounts := make(map[uint]int64, len(groups))

	for _, g := range groups {
		var count int64
		if err := s.db.Model(&models.UserGroup{}).Where("group_id = ?", g.ID).Count(&count).Error; err == nil {
			memberCounts[g.ID] = count
		}
	}

	return c.Render(TemplateList, fiber.Map{
		"Navigation":   s.nav("Groups", false),
		"Groups":       groups,
		"MemberCounts": memberCounts,
		"Search":       search,
	}, handler.BaseLayout)
}

// New renders empty form.
func (s *Service) New(c *fiber.Ctx) error {
	users, err := s.allUsers()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).Render(TemplateForm, fiber.Map{
			"Navigation": s.nav("New", true),
			"Error":      "Failed to load users",
		}, handler.BaseLayout)
	}

	return c.Render(TemplateForm, fiber.Map{
		"Navigation":  s.nav("New", true),
		"Group":       models.Group{Source: models.GroupSourceLocal},
		"IsCreate":    true,
		"Users":       users,
		"SelectedIDs": map[uint64]bool{},
	}, handler.BaseLayout)
}

// Create handles form submission for creating a group.
func (s *Service) Create(c *fiber.Ctx) error {
	in := s.parseForm(c)

	if err := s.validator.Struct(in); err != nil {
		log.Warn().Err(err).Msg("validation failed for create group")

		return c.Status(fiber.StatusBadRequest).Render(TemplateForm, fiber.Map{
			"Navigation": s.nav("New", true),
			"Error":      "Validation failed: " + err.Error(),
			"Group":      in.toModel(),
			"IsCreate":   true,
		}, handler.BaseLayout)
	}

	g := in.toModel()

	tx := s.db.Begin()
	if err := tx.Create(&g).Error; err != nil {
		tx.Rollback()
		log.Error().Err(err).Msg("failed to create group")

		return c.Status(fiber.StatusInternalServerError).Render(TemplateForm, fiber.Map{
			"Navigation": s.nav("New", true),
			"Error":      "Failed to create group (possibly duplicate external id with same source)",
			"Group":      g,
			"IsCreate":   true,
		}, handler.BaseLayout)
	}

	if err := s.replaceMembership(tx, g.ID, in.UserIDs); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to save group members")
	}

	return c.Redirect(Path)
}

// Edit renders edit form for a group.
func (s *Service) Edit(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return c.Redirect(Path)
	}

	var g models.Group
	if err := s.db.First(&g, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(Path)
		}

		log.Error().Err(err).Msg("load group failed")

		return c.Status(fiber.StatusInternalServerError).SendString("Failed to load group")
	}

	users, err := s.allUsers()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to load users")
	}

	var memberships []models.UserGroup
	if err := s.db.Where("group_id = ?", g.ID).Find(&memberships).Error; err != nil {
		log.Error().Err(err).Msg("failed to load group members")
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to load group members")
	}

	selected := make(map[uint64]bool, len(memberships))
	for i := range memberships {
		selected[memberships[i].UserID] = true
	}

	return c.Render(TemplateForm, fiber.Map{
		"Navigation":  s.nav("Edit", true),
		"Group":       g,
		"IsCreate":    false,
		"Users":       users,
		"SelectedIDs": selected,
	}, handler.BaseLayout)
}

// Update handles updating an existing group.
func (s *Service) Update(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return c.Redirect(Path)
	}

	var g models.Group
	if err := s.db.First(&g, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(Path)
		}

		log.Error().Err(err).Msg("load group failed")

		return c.Status(fiber.StatusInternalServerError).SendString("Failed to load group")
	}

	in := s.parseForm(c)

	if err := s.validator.Struct(in); err != nil {
		log.Warn().Err(err).Msg("validation failed for update group")

		g.Name = in.Name
		g.ExternalID = in.ExternalID
		g.Source = models.GroupSource(in.Source)
		g.Description = in.Description

		return c.Status(fiber.StatusBadRequest).Render(TemplateForm, fiber.Map{
			"Navigation": s.nav("Edit", true),
			"Error":      "Validation failed: " + err.Error(),
			"Group":      g,
			"IsCreate":   false,
		}, handler.BaseLayout)
	}

	g.Name = in.Name
	g.ExternalID = in.ExternalID
	g.Source = models.GroupSource(in.Source)
	g.Description = in.Description

	tx := s.db.Begin()

	if err := tx.Save(&g).Error; err != nil {
		tx.Rollback()
		log.Error().Err(err).Msg("failed to update group")

		return c.Status(fiber.StatusInternalServerError).Render(TemplateForm, fiber.Map{
			"Navigation": s.nav("Edit", true),
			"Error":      "Failed to update group (check uniqueness constraints)",
			"Group":      g,
			"IsCreate":   false,
		}, handler.BaseLayout)
	}

	if err := s.replaceMembership(tx, g.ID, in.UserIDs); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to update group members")
	}

	return c.Redirect(Path)
}

// Delete removes a group. Memberships go with it via the association
// constraint.
func (s *Service) Delete(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return c.Redirect(Path)
	}

	if err := s.db.Delete(&models.Group{}, id).Error; err != nil {
		log.Error().Err(err).Msg("failed to delete group")
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to delete group")
	}

	return c.Redirect(Path)
}

func (s *Service) parseForm(c *fiber.Ctx) groupForm {
	userIDsBytes := c.Request().PostArgs().PeekMulti("user_ids")

	userIDs := make([]string, len(userIDsBytes))
	for i, b := range userIDsBytes {
		userIDs[i] = string(b)
	}

	return groupForm{
		Name:        c.FormValue("name"),
		ExternalID:  c.FormValue("external_id"),
		Source:      c.FormValue("source", string(models.GroupSourceLocal)),
		Description: c.FormValue("description"),
		UserIDs:     userIDs,
	}
}

func (s *Service) allUsers() ([]models.User, error) {
	var users []models.User

	if err := s.db.Order("username ASC").Find(&users).Error; err != nil {
		log.Error().Err(err).Msg("failed to load users")
		return nil, err
	}

	return users, nil
}

func (in groupForm) toModel() models.Group {
	return models.Group{
		Name:        in.Name,
		ExternalID:  in.ExternalID,
		Source:      models.GroupSource(in.Source),
		Description: in.Description,
	}
}
