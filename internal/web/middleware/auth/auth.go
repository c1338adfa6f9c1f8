package auth

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/asiradnan/saml/internal/web/handler/login"
	"github.com/asiradnan/saml/internal/web/handler/whoami"
	"github.com/asiradnan/saml/internal/web/session"
)

// openPrefixes are paths served without a login session. The SAML endpoints
// run their own session handling inside the engine.
var openPrefixes = []string{
	"/static",
	"/saml",
	"/metrics",
	"/auth/oidc",
	"/logout",
	"/checkalive",
}

// Middleware is a Fiber middleware that checks for user authentication.
func Middleware(c *fiber.Ctx) error {
	var (
		isLoginPage   = IsLoginPage(c)
		sessDataValid bool
	)

	originalURL := strings.ToLower(c.OriginalURL())
	for _, prefix := range openPrefixes {
		if strings.HasPrefix(originalURL, prefix) {
			return c.Next()
		}
	}

	// get session cookie
	loginCookie := c.Cookies("session")

	// if no session cookie, redirect to login page
	if loginCookie == "" && !isLoginPage {
		return c.Redirect(loginRedirect(c))
	}

	// check session validity
	rec := new(session.Record)
	if err := rec.Read(loginCookie); err != nil {
		// If we're already on the login page, don't redirect (would cause loop)
		if isLoginPage {
			return c.Next()
		}

		return c.Redirect(loginRedirect(c))
	}

	// valid data in session
	if rec.User.ID > 0 {
		sessDataValid = true
		// Add the current user to locals for template access
		c.Locals("CurrentUser", rec.User)
	}

	if sessDataValid && isLoginPage {
		return c.Redirect(whoami.Path)
	}

	return c.Next()
}

// IsLoginPage checks if the current request is for the login page.
func IsLoginPage(c *fiber.Ctx) bool {
	originalURL := strings.ToLower(c.OriginalURL())
	return strings.HasPrefix(originalURL, login.Path)
}

// loginRedirect builds the login URL carrying the original target so the
// request resumes after authentication.
func loginRedirect(c *fiber.Ctx) string {
	target := c.OriginalURL()
	if target == "" || target == "/" {
		return login.Path
	}

	return login.Path + "?next=" + url.QueryEscape(target)
}
