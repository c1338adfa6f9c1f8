package samlengine

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crewjam/saml"
	"github.com/crewjam/saml/samlsp"
	"github.com/rs/zerolog/log"

	"github.com/asiradnan/saml/internal/auth"
	"github.com/asiradnan/saml/internal/db/models"
	"github.com/asiradnan/saml/internal/identity"
	"github.com/asiradnan/saml/internal/web/session"
)

// SPOptions configures the service provider side of the engine.
type SPOptions struct {
	// BaseURL is the externally visible base URL of this node. The ACS and
	// metadata endpoints hang off it.
	BaseURL *url.URL
	// EntityID overrides the derived entity ID when set.
	EntityID string
	// Key and Certificate sign authentication requests.
	Key         *rsa.PrivateKey
	Certificate *x509.Certificate
	// IDPMetadataURL is fetched at startup to learn the partner identity
	// provider. IDPMetadataXML takes precedence when both are set.
	IDPMetadataURL string
	IDPMetadataXML string
	// Service runs the provisioning and group sync for consumed assertions.
	Service *auth.Service
	// SessionExpiry bounds the lifetime of local sessions created from
	// assertions.
	SessionExpiry time.Duration
}

// SP is the service-provider face of the SAML engine. Consumed assertions
// flow through the resolve/reconcile pipeline exactly once per session.
type SP struct {
	mw *samlsp.Middleware
}

// NewSP creates the service provider engine. The partner identity
// provider's metadata is loaded before this returns, so a wrong metadata
// URL fails at startup rather than on first login.
func NewSP(ctx context.Context, opts SPOptions) (*SP, error) {
	if opts.BaseURL == nil || opts.Key == nil || opts.Certificate == nil || opts.Service == nil {
		return nil, fmt.Errorf("sp options incomplete")
	}

	if opts.SessionExpiry == 0 {
		opts.SessionExpiry = time.Hour
	}

	idpMetadata, err := loadIDPMetadata(ctx, opts)
	if err != nil {
		return nil, err
	}

	mw, err := samlsp.New(samlsp.Options{
		URL:         *opts.BaseURL,
		Key:         opts.Key,
		Certificate: opts.Certificate,
		EntityID:    opts.EntityID,
		IDPMetadata: idpMetadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize service provider: %w", err)
	}

	mw.Session = &spSessionProvider{
		service: opts.Service,
		correlator: session.NewCorrelator(
			opts.Service.Resolver(),
			opts.Service.Reconciler(),
		),
		expiry: opts.SessionExpiry,
	}

	return &SP{mw: mw}, nil
}

func loadIDPMetadata(ctx context.Context, opts SPOptions) (*saml.EntityDescriptor, error) {
	if opts.IDPMetadataXML != "" {
		metadata, err := samlsp.ParseMetadata([]byte(opts.IDPMetadataXML))
		if err != nil {
			return nil, fmt.Errorf("failed to parse identity provider metadata: %w", err)
		}

		return metadata, nil
	}

	u, err := url.Parse(opts.IDPMetadataURL)
	if err != nil {
		return nil, fmt.Errorf("invalid identity provider metadata URL: %w", err)
	}

	metadata, err := samlsp.FetchMetadata(ctx, http.DefaultClient, *u)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch identity provider metadata: %w", err)
	}

	return metadata, nil
}

// ServeHTTP serves the SAML service provider endpoints (ACS and metadata).
func (e *SP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.mw.ServeHTTP(w, r)
}

// StartAuthFlow redirects the browser to the identity provider. The "next"
// query parameter names the local path to resume after the assertion comes
// back; off-site targets are ignored.
func (e *SP) StartAuthFlow(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("next")
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		target = "/whoami"
	}

	if u, err := url.Parse(target); err == nil {
		r.URL = u
	}

	e.mw.HandleStartAuthFlow(w, r)
}

// Logout clears the local session. Single logout towards the identity
// provider is out of scope; the partner session stays alive.
func (e *SP) Logout(w http.ResponseWriter, r *http.Request) {
	if err := e.mw.Session.DeleteSession(w, r); err != nil {
		log.Error().Err(err).Msg("failed to delete session")
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// spSessionProvider turns consumed assertions into local sessions. It
// implements samlsp.SessionProvider on top of the shared session store and
// the resolve/reconcile pipeline.
type spSessionProvider struct {
	service    *auth.Service
	correlator *session.Correlator
	expiry     time.Duration
}

// CreateSession consumes a validated assertion: provision the user, run the
// attribute pipeline once, persist the session record, and hand the browser
// a session cookie.
func (p *spSessionProvider) CreateSession(w http.ResponseWriter, r *http.Request, assertion *saml.Assertion) error {
	bag := BagFromAssertion(assertion)
	nameID := NameIDFromAssertion(assertion)

	resolved := p.service.Resolver().Resolve(bag)

	username, err := resolved.Username(nameID)
	if err != nil {
		return err
	}

	user, err := p.service.FindOrCreate(nameID, models.AuthSourceSAML, username)
	if err != nil {
		return err
	}

	rec := &session.Record{SessionIndex: sessionIndex(assertion)}
	if err := p.correlator.Ingest(rec, user, bag, nameID); err != nil {
		return err
	}

	if err := p.service.SyncGroups(user, groupsFromBag(bag), models.GroupSourceSAML); err != nil {
		return err
	}

	sessionID, err := session.GenerateSessionID()
	if err != nil {
		return err
	}

	if err := rec.Write(sessionID, p.expiry); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(p.expiry.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	assertionsConsumed.Inc()
	log.Info().Str("username", user.Username).Str("name_id", nameID).Msg("consumed assertion")

	return nil
}

// DeleteSession drops the session record and expires the cookie.
func (p *spSessionProvider) DeleteSession(w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie("session")
	if err == nil && cookie.Value != "" {
		if err := session.Delete(cookie.Value); err != nil {
			log.Error().Err(err).Msg("failed to delete session record")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	return nil
}

// GetSession returns the session record for the request's cookie, or
// samlsp.ErrNoSession when the browser isn't logged in.
func (p *spSessionProvider) GetSession(r *http.Request) (samlsp.Session, error) {
	cookie, err := r.Cookie("session")
	if err != nil || cookie.Value == "" {
		return nil, samlsp.ErrNoSession
	}

	rec := new(session.Record)
	if err := rec.Read(cookie.Value); err != nil {
		return nil, samlsp.ErrNoSession
	}

	return rec, nil
}

func sessionIndex(assertion *saml.Assertion) string {
	for _, stmt := range assertion.AuthnStatements {
		if stmt.SessionIndex != "" {
			return stmt.SessionIndex
		}
	}

	return ""
}

// groupsFromBag gathers group names from every wire name groups travel
// under, preserving order and dropping duplicates.
func groupsFromBag(bag identity.Bag) []string {
	seen := make(map[string]bool)

	var names []string

	for _, key := range []string{"groups", "eduPersonAffiliation", "memberOf"} {
		for _, v := range bag[key] {
			if v == "" || seen[v] {
				continue
			}

			seen[v] = true

			names = append(names, v)
		}
	}

	return names
}

var _ samlsp.SessionProvider = (*spSessionProvider)(nil)
