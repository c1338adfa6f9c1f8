package login

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/asiradnan/saml/internal/auth"
	"github.com/asiradnan/saml/internal/config"
	"github.com/asiradnan/saml/internal/db/models"
	"github.com/asiradnan/saml/internal/web/handler"
	"github.com/asiradnan/saml/internal/web/handler/whoami"
	"github.com/asiradnan/saml/internal/web/session"
)

const (
	// Path is the path to the login page.
	Path = "/login"

	authTypeLocal = "local"
	authTypeLDAP  = "ldap"
)

// Service is the login handler service.
type Service struct {
	handler.Service
	cfg       *config.Config
	db        *gorm.DB
	localAuth *auth.LocalProvider
	ldapAuth  *auth.LDAPProvider
}

// Handler is the login handler.
var Handler = Service{}

// Init initializes the login handler.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB) error {
	if app == nil || cfg == nil || db == nil {
		return errors.New("app or db is nil")
	}

	s.db = db
	s.cfg = cfg
	s.localAuth = auth.NewLocalProvider(db)

	if cfg.Auth.LDAP.Enabled {
		ldapProvider, err := auth.NewLDAPProvider(&cfg.Auth.LDAP, auth.NewService(db))
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize ldap provider, ldap login disabled")
		} else {
			s.ldapAuth = ldapProvider
		}
	}

	// register routes
	app.Route(Path, func(router fiber.Router) {
		router.Get(handler.RootPath, s.Get)
		router.Post(handler.RootPath, s.Post)
	})

	return nil
}

// Get handles the login page rendering.
func (s *Service) Get(c *fiber.Ctx) error {
	return c.Render("login", fiber.Map{
		"local_db_enabled": s.cfg.Auth.LocalDB.Enabled,
		"ldap_enabled":     s.cfg.Auth.LDAP.Enabled && s.ldapAuth != nil,
		"oidc_enabled":     s.cfg.Auth.OIDC.Enabled,
		"next":             c.Query("next"),
	})
}

type loginForm struct {
	Username string `form:"username"`
	Password string `form:"password"`
	AuthType string `form:"auth_type"`
	Next     string `form:"next"`
}

// Post handles the login form submission.
func (s *Service) Post(c *fiber.Ctx) error {
	form := new(loginForm)

	if err := c.BodyParser(form); err != nil {
		return s.renderError(c, ErrInvalidFormData.Error())
	}

	authType, err := s.pickAuthType(form.AuthType)
	if err != nil {
		return s.renderError(c, err.Error())
	}

	user, err := s.authenticate(authType, form.Username, form.Password)
	if err != nil {
		log.Debug().Err(err).Str("username", form.Username).Str("auth_type", authType).Msg("login failed")

		switch {
		case errors.Is(err, ErrInvalidCredentials):
			return s.renderError(c, ErrInvalidCredentials.Error())
		case errors.Is(err, auth.ErrUserAccountDisabled):
			return s.renderError(c, auth.ErrUserAccountDisabled.Error())
		default:
			return s.renderError(c, ErrInternalServerError.Error())
		}
	}

	sessionID, err := session.GenerateSessionID()
	if err != nil {
		log.Error().Err(err).Msg("failed to generate session ID")
		return s.renderError(c, ErrInternalServerError.Error())
	}

	userSession := &session.Record{
		User: *user,
	}

	if err = userSession.Write(sessionID, s.cfg.Webserver.Session.ExpiryTime); err != nil {
		log.Error().Err(err).Msg("failed to write session")
		return s.renderError(c, ErrInternalServerError.Error())
	}

	// set login cookie
	cookieSettings := &fiber.Cookie{
		Name:     "session",
		Value:    sessionID,
		MaxAge:   int(s.cfg.Webserver.Session.ExpiryTime.Seconds()),
		Secure:   true,
		HTTPOnly: true,
		SameSite: "Lax", // TODO: make this configurable
	}

	if s.cfg.DevMode {
		cookieSettings.Secure = false
	}

	c.Cookie(cookieSettings)

	log.Info().Str("username", user.Username).Str("auth_type", authType).Msg("user logged in")

	return c.Redirect(nextPath(form.Next))
}

// pickAuthType selects the authentication method for the request. An empty
// requested type falls back to the first enabled method.
func (s *Service) pickAuthType(requested string) (string, error) {
	switch requested {
	case "":
		if s.cfg.Auth.LocalDB.Enabled {
			return authTypeLocal, nil
		}

		if s.cfg.Auth.LDAP.Enabled {
			return authTypeLDAP, nil
		}

		return "", ErrNoAuthMethod
	case authTypeLocal:
		if !s.cfg.Auth.LocalDB.Enabled {
			return "", ErrLocalAuthDisabled
		}

		return authTypeLocal, nil
	case authTypeLDAP:
		if !s.cfg.Auth.LDAP.Enabled || s.ldapAuth == nil {
			return "", ErrLDAPAuthDisabled
		}

		return authTypeLDAP, nil
	default:
		return "", ErrInvalidAuthMethod
	}
}

// authenticate runs the credentials against the selected method.
func (s *Service) authenticate(authType, username, password string) (*models.User, error) {
	switch authType {
	case authTypeLocal:
		user, err := s.localAuth.Authenticate(username, password)
		if err != nil {
			if errors.Is(err, auth.ErrUserAccountDisabled) {
				return nil, err
			}

			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}

		return user, nil
	case authTypeLDAP:
		if s.ldapAuth == nil {
			return nil, ErrLDAPAuthDisabled
		}

		user, _, err := s.ldapAuth.Authenticate(username, password)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}

		return user, nil
	default:
		return nil, ErrInvalidAuthMethod
	}
}

func (s *Service) renderError(c *fiber.Ctx, message string) error {
	return c.Render("login", fiber.Map{
		"local_db_enabled": s.cfg.Auth.LocalDB.Enabled,
		"ldap_enabled":     s.cfg.Auth.LDAP.Enabled && s.ldapAuth != nil,
		"oidc_enabled":     s.cfg.Auth.OIDC.Enabled,
		"error":            message,
	})
}

// nextPath sanitizes the post-login redirect target. Only local paths are
// allowed, anything else falls back to the whoami page.
func nextPath(next string) string {
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") {
		return next
	}

	return whoami.Path
}
