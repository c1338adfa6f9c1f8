// Package party provides handlers for managing relying parties in admin area.
package party

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/asiradnan/saml/internal/auth"
	"github.com/asiradnan/saml/internal/config"
	"github.com/asiradnan/saml/internal/db/models"
	"github.com/asiradnan/saml/internal/samlengine"
	"github.com/asiradnan/saml/internal/web/handler"
	"github.com/asiradnan/saml/internal/web/handler/whoami"
	"github.com/asiradnan/saml/internal/web/navigation"
)

const (
	// Path is the base path for relying party management.
	Path = handler.RootPath + "admin/party"

	// TemplateList is the template for listing parties.
	TemplateList = "admin/party/list"
	// TemplateForm is the template for creating/updating a party.
	TemplateForm = "admin/party/form"
)

// Service provides CRUD operations for relying parties.
type Service struct {
	handler.Service
	cfg       *config.Config
	db        *gorm.DB
	validator *validator.Validate
	registry  *samlengine.PartyRegistry
}

// Handler is the exported instance.
var Handler = Service{}

// partyForm is the create/update form payload.
type partyForm struct {
	EntityID            string `form:"entity_id"    validate:"required,url"`
	Name                string `form:"name"         validate:"required,min=1,max=100"`
	MetadataURL         string `form:"metadata_url" validate:"omitempty,url"`
	MetadataXML         string `form:"metadata_xml"`
	Convention          string `form:"convention"   validate:"required,oneof=basic uri"`
	RequestedAttributes string `form:"requested_attributes"`
	Active              bool   `form:"active"`
}

// Init registers routes. The registry is reloaded after every change so
// issuance picks up new registrations without a restart; it may be nil on a
// service provider node where this handler is not mounted.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB, registry *samlengine.PartyRegistry) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.db = db
	s.cfg = cfg
	s.validator = validator.New()
	s.registry = registry

	app.Get(Path, auth.RequireStaff(), s.List)
	app.Get(Path+"/new", auth.RequireStaff(), s.New)
	app.Post(Path, auth.RequireStaff(), s.Create)
	app.Get(Path+"/:id/edit", auth.RequireStaff(), s.Edit)
	app.Post(Path+"/:id", auth.RequireStaff(), s.Update)
	app.Post(Path+"/:id/delete", auth.RequireStaff(), s.Delete)
}

func (s *Service) nav(title string, active bool) *navigation.Context {
	nav := navigation.NewContext(title, "admin", "party").
		AddBreadcrumb("Home", whoami.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Relying Parties", Path, !active)

	if active {
		nav.AddBreadcrumb(title, "#", true)
	}

	return nav
}

// List renders the relying party list.
func (s *Service) List(c *fiber.Ctx) error {
	var parties []models.Party

	if err := s.db.Order("entity_id ASC").Find(&parties).Error; err != nil {
		log.Error().Err(err).Msg("query parties failed")

		return c.Status(fiber.StatusInternalServerError).Render(TemplateList, fiber.Map{
			"Navigation": s.nav("Relying Parties", false),
			"Error":      "Failed to load relying parties",
		}, handler.BaseLayout)
	}

	return c.Render(TemplateList, fiber.Map{
		"Navigation": s.nav("Relying Parties", false),
		"Parties":    parties,
	}, handler.BaseLayout)
}

// New shows the creation form.
func (s *Service) New(c *fiber.Ctx) error {
	return c.Render(TemplateForm, fiber.Map{
		"Navigation": s.nav("New", true),
		"Party":      models.Party{Convention: "basic", Active: true},
		"IsCreate":   true,
	}, handler.BaseLayout)
}

// Create registers a new relying party.
func (s *Service) Create(c *fiber.Ctx) error {
	var in partyForm

	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).Render(TemplateList, fiber.Map{
			"Navigation": s.nav("Relying Parties", false),
			"Error":      "Invalid form data",
		}, handler.BaseLayout)
	}

	if err := s.validator.Struct(in); err != nil {
		return c.Status(fiber.StatusBadRequest).Render(TemplateList, fiber.Map{
			"Navigation": s.nav("Relying Parties", false),
			"Error":      "Please correct the highlighted errors",
		}, handler.BaseLayout)
	}

	party := models.Party{
		EntityID:            in.EntityID,
		Name:                in.Name,
		MetadataURL:         in.MetadataURL,
		MetadataXML:         in.MetadataXML,
		Convention:          in.Convention,
		RequestedAttributes: in.RequestedAttributes,
		Active:              in.Active,
	}

	if err := s.db.Create(&party).Error; err != nil {
		return c.Status(fiber.StatusBadRequest).Render(TemplateList, fiber.Map{
			"Navigation": s.nav("Relying Parties", false),
			"Error":      "Failed to register relying party: " + err.Error(),
		}, handler.BaseLayout)
	}

	s.reloadRegistry()

	return c.Redirect(Path)
}

// Edit shows the edit form for a relying party.
func (s *Service) Edit(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return c.Redirect(Path)
	}

	var party models.Party
	if err := s.db.First(&party, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(Path)
		}

		return c.Status(fiber.StatusInternalServerError).Render(TemplateForm, fiber.Map{
			"Error": "Failed to load relying party",
		}, handler.BaseLayout)
	}

	return c.Render(TemplateForm, fiber.Map{
		"Navigation": s.nav("Edit", true),
		"Party":      party,
		"IsCreate":   false,
	}, handler.BaseLayout)
}

// Update updates a relying party.
func (s *Service) Update(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return c.Redirect(Path)
	}

	var in partyForm
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).Render(TemplateForm, fiber.Map{
			"Error": "Invalid form data",
		}, handler.BaseLayout)
	}

	if err := s.validator.Struct(in); err != nil {
		return c.Status(fiber.StatusBadRequest).Render(TemplateForm, fiber.Map{
			"Error": "Please correct the highlighted errors",
		}, handler.BaseLayout)
	}

	var party models.Party
	if err := s.db.First(&party, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(Path)
		}

		return c.Status(fiber.StatusInternalServerError).Render(TemplateForm, fiber.Map{
			"Error": "Failed to load relying party",
		}, handler.BaseLayout)
	}

	party.EntityID = in.EntityID
	party.Name = in.Name
	party.MetadataURL = in.MetadataURL
	party.MetadataXML = in.MetadataXML
	party.Convention = in.Convention
	party.RequestedAttributes = in.RequestedAttributes
	party.Active = in.Active

	if err := s.db.Save(&party).Error; err != nil {
		return c.Status(fiber.StatusBadRequest).Render(TemplateForm, fiber.Map{
			"Error": "Failed to update relying party: " + err.Error(),
		}, handler.BaseLayout)
	}

	s.reloadRegistry()

	return c.Redirect(Path)
}

// Delete removes a relying party registration.
func (s *Service) Delete(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return c.Redirect(Path)
	}

	if err := s.db.Delete(&models.Party{}, id).Error; err != nil {
		log.Error().Err(err).Int("party_id", id).Msg("failed to delete relying party")
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to delete relying party")
	}

	s.reloadRegistry()

	return c.Redirect(Path)
}

func (s *Service) reloadRegistry() {
	if s.registry == nil {
		return
	}

	if err := s.registry.Reload(context.Background()); err != nil {
		log.Error().Err(err).Msg("failed to reload relying party registry")
	}
}
