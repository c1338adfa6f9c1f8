// Package whoami renders the logged-in user's profile and, on a service
// provider node, the attributes received from the partner identity provider.
package whoami

import (
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/asiradnan/saml/internal/config"
	"github.com/asiradnan/saml/internal/db/models"
	"github.com/asiradnan/saml/internal/web/handler"
	"github.com/asiradnan/saml/internal/web/navigation"
	"github.com/asiradnan/saml/internal/web/session"
)

const (
	// Path is the path to the whoami page.
	Path = handler.RootPath + "whoami"

	// TemplateName is the name of the whoami template.
	TemplateName = "whoami/whoami"
)

// Attribute is a single received attribute row for template rendering.
type Attribute struct {
	Name   string
	Values []string
}

// Service is the whoami handler service.
type Service struct {
	handler.Service
	cfg *config.Config
	db  *gorm.DB
}

// Handler is the whoami handler.
var Handler = Service{}

// Init initializes the whoami handler.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.db = db
	s.cfg = cfg

	app.Get(Path, s.Get)
}

// Get handles the whoami page rendering.
func (s *Service) Get(c *fiber.Ctx) error {
	sessionID := c.Cookies("session")
	if sessionID == "" {
		return c.Redirect("/login")
	}

	rec := new(session.Record)
	if err := rec.Read(sessionID); err != nil || rec.User.ID == 0 {
		return c.Redirect("/login")
	}

	// Re-read the user so profile edits show without relogin
	var user models.User
	if err := s.db.Preload("Groups").First(&user, rec.User.ID).Error; err != nil {
		log.Error().Err(err).Uint64("user_id", rec.User.ID).Msg("failed to load user")
		return c.Status(fiber.StatusInternalServerError).SendString("failed to load user")
	}

	nav := navigation.NewContext("Who am I", "whoami", "whoami").
		AddBreadcrumb("Home", Path, false).
		AddBreadcrumb("Who am I", Path, true)

	attributes := make([]Attribute, 0, len(rec.Attributes))
	for _, name := range rec.Attributes.Names() {
		attributes = append(attributes, Attribute{Name: name, Values: rec.Attributes[name]})
	}

	groups := user.GroupNames()
	sort.Strings(groups)

	return c.Render(TemplateName, fiber.Map{
		"Navigation": nav,
		"User":       user,
		"FullName":   user.FullName(),
		"Groups":     groups,
		"NameID":     rec.NameID,
		"Attributes": attributes,
		"IsSP":       s.cfg.Role == config.RoleSP,
	}, handler.BaseLayout)
}
