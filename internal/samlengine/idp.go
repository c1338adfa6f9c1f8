package samlengine

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/crewjam/saml"
	"github.com/crewjam/saml/samlsp"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/asiradnan/saml/internal/attrmap"
	"github.com/asiradnan/saml/internal/db/models"
	"github.com/asiradnan/saml/internal/identity"
	"github.com/asiradnan/saml/internal/web/session"
)

// AttributeBuilder produces the assertion attribute bag for a user under a
// party's naming convention. Satisfied by identity.Builder; tests
// substitute counting stubs.
type AttributeBuilder interface {
	Build(user *models.User, requested []string, convention string) (identity.Bag, error)
}

// IdPOptions configures the identity provider side of the engine.
type IdPOptions struct {
	// BaseURL is the externally visible base URL of this node.
	BaseURL *url.URL
	// Key and Certificate sign issued assertions.
	Key         *rsa.PrivateKey
	Certificate *x509.Certificate
	// DB is the identity store; users are re-read at issuance time so
	// deactivation takes effect immediately.
	DB *gorm.DB
	// Builder produces the assertion attribute bag.
	Builder AttributeBuilder
	// LoginPath is where unauthenticated SSO requests are redirected.
	LoginPath string
	// SessionExpiry bounds the lifetime of issued SAML sessions.
	SessionExpiry time.Duration
}

// IdP is the identity-provider face of the SAML engine. It owns the relying
// party registry and bridges the web login session into assertion issuance.
type IdP struct {
	idp     *saml.IdentityProvider
	parties *PartyRegistry
}

// NewIdP creates the identity provider engine.
func NewIdP(opts IdPOptions) (*IdP, error) {
	if opts.BaseURL == nil || opts.Key == nil || opts.Certificate == nil || opts.DB == nil || opts.Builder == nil {
		return nil, fmt.Errorf("idp options incomplete")
	}

	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}

	if opts.SessionExpiry == 0 {
		opts.SessionExpiry = time.Hour
	}

	parties := NewPartyRegistry(opts.DB)

	metadataURL := *opts.BaseURL
	metadataURL.Path = "/saml/metadata"
	ssoURL := *opts.BaseURL
	ssoURL.Path = "/saml/sso"

	e := &IdP{parties: parties}

	e.idp = &saml.IdentityProvider{
		Key:                     opts.Key,
		Certificate:             opts.Certificate,
		MetadataURL:             metadataURL,
		SSOURL:                  ssoURL,
		ServiceProviderProvider: parties,
		SessionProvider: &idpSessionProvider{
			db:        opts.DB,
			builder:   opts.Builder,
			parties:   parties,
			loginPath: opts.LoginPath,
			expiry:    opts.SessionExpiry,
		},
	}

	return e, nil
}

// Parties returns the relying party registry.
func (e *IdP) Parties() *PartyRegistry {
	return e.parties
}

// ServeMetadata serves the identity provider's SAML metadata document.
func (e *IdP) ServeMetadata(w http.ResponseWriter, r *http.Request) {
	e.idp.ServeMetadata(w, r)
}

// ServeSSO handles single sign-on requests on both bindings.
func (e *IdP) ServeSSO(w http.ResponseWriter, r *http.Request) {
	e.idp.ServeSSO(w, r)
}

// idpSessionProvider bridges the fiber login session into the engine. It
// reads the same session cookie the web handlers write, gates issuance on
// the access predicate, and fills the SAML session with the attribute bag
// built for the requesting party.
type idpSessionProvider struct {
	db        *gorm.DB
	builder   AttributeBuilder
	parties   *PartyRegistry
	loginPath string
	expiry    time.Duration
}

// GetSession implements saml.SessionProvider. A nil return after writing
// the response means issuance stops here (redirect to login or access
// denied).
func (p *idpSessionProvider) GetSession(
	w http.ResponseWriter,
	r *http.Request,
	req *saml.IdpAuthnRequest,
) *saml.Session {
	rec, ok := p.readSession(r)
	if !ok {
		redirect := p.loginPath + "?next=" + url.QueryEscape(r.URL.String())
		http.Redirect(w, r, redirect, http.StatusFound)

		return nil
	}

	// Re-read the user so a deactivation since login takes effect now
	var user models.User
	if err := p.db.Preload("Groups").First(&user, rec.User.ID).Error; err != nil {
		log.Error().Err(err).Uint64("user_id", rec.User.ID).Msg("failed to load user for issuance")
		http.Error(w, "cannot establish identity", http.StatusForbidden)

		return nil
	}

	// Access predicate: a normal boolean outcome, not an error. The
	// builder is never invoked for users failing it.
	if !identity.HasAccess(&user) {
		accessDenied.Inc()
		log.Warn().Str("username", user.Username).Msg("assertion request denied by access predicate")
		http.Error(w, "access denied", http.StatusForbidden)

		return nil
	}

	entityID := partyEntityID(req)

	party, found := p.parties.Lookup(entityID)
	if !found {
		http.Error(w, "unknown relying party", http.StatusBadRequest)
		return nil
	}

	m, ok := p.parties.AttributeMap(party.Convention)
	if !ok {
		log.Error().Str("party", entityID).Str("convention", party.Convention).Msg("party has unusable naming convention")
		http.Error(w, "misconfigured relying party", http.StatusInternalServerError)

		return nil
	}

	bag, err := p.builder.Build(&user, party.RequestedFields(), party.Convention)
	if err != nil {
		log.Error().Err(err).Str("party", entityID).Msg("failed to build attribute bag")
		http.Error(w, "failed to build assertion", http.StatusInternalServerError)

		return nil
	}

	sessionID, err := session.GenerateSessionID()
	if err != nil {
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return nil
	}

	now := time.Now()
	assertionsIssued.WithLabelValues(entityID).Inc()

	return &saml.Session{
		ID:               sessionID,
		CreateTime:       now,
		ExpireTime:       now.Add(p.expiry),
		Index:            sessionID,
		NameID:           user.Username,
		UserName:         user.Username,
		UserEmail:        user.Email,
		UserGivenName:    user.FirstName,
		UserSurname:      user.LastName,
		UserCommonName:   user.FullName(),
		Groups:           user.GroupNames(),
		CustomAttributes: AttributesFromBag(bag, m.Identifier()),
	}
}

// readSession loads the web session record referenced by the request's
// session cookie.
func (p *idpSessionProvider) readSession(r *http.Request) (*session.Record, bool) {
	cookie, err := r.Cookie("session")
	if err != nil || cookie.Value == "" {
		return nil, false
	}

	rec := new(session.Record)
	if err := rec.Read(cookie.Value); err != nil {
		return nil, false
	}

	if rec.User.ID == 0 {
		return nil, false
	}

	return rec, true
}

// partyEntityID extracts the requesting party's entity ID from the authn
// request.
func partyEntityID(req *saml.IdpAuthnRequest) string {
	if req.ServiceProviderMetadata != nil && req.ServiceProviderMetadata.EntityID != "" {
		return req.ServiceProviderMetadata.EntityID
	}

	if req.Request.Issuer != nil {
		return req.Request.Issuer.Value
	}

	return ""
}

// partyEntry is a registered relying party with its parsed metadata.
type partyEntry struct {
	party    models.Party
	metadata *saml.EntityDescriptor
}

// PartyRegistry holds the relying parties registered with the identity
// provider. It is loaded from the database at startup and reloaded after
// admin changes; lookups are lock-protected so issuance and admin writes
// don't race.
type PartyRegistry struct {
	db   *gorm.DB
	maps *attrmap.Registry

	mu      sync.RWMutex
	entries map[string]partyEntry
}

// NewPartyRegistry creates an empty registry. Call Reload to populate it.
func NewPartyRegistry(db *gorm.DB) *PartyRegistry {
	return &PartyRegistry{
		db:      db,
		maps:    attrmap.Builtin(),
		entries: make(map[string]partyEntry),
	}
}

// Reload loads all active parties and their metadata from the database.
// Parties whose metadata cannot be fetched or parsed are skipped with a
// logged error so one broken registration doesn't take the node down.
func (reg *PartyRegistry) Reload(ctx context.Context) error {
	var parties []models.Party
	if err := reg.db.Where("active = ?", true).Find(&parties).Error; err != nil {
		return fmt.Errorf("failed to load relying parties: %w", err)
	}

	entries := make(map[string]partyEntry, len(parties))

	for _, party := range parties {
		metadata, err := reg.loadMetadata(ctx, &party)
		if err != nil {
			log.Error().Err(err).Str("party", party.EntityID).Msg("skipping relying party")
			continue
		}

		entries[party.EntityID] = partyEntry{party: party, metadata: metadata}
	}

	reg.mu.Lock()
	reg.entries = entries
	reg.mu.Unlock()

	log.Info().Int("parties", len(entries)).Msg("loaded relying party registry")

	return nil
}

// loadMetadata parses the registered metadata document, fetching it from
// the party's metadata URL when no document was registered directly.
func (reg *PartyRegistry) loadMetadata(ctx context.Context, party *models.Party) (*saml.EntityDescriptor, error) {
	if party.MetadataXML != "" {
		return samlsp.ParseMetadata([]byte(party.MetadataXML))
	}

	if party.MetadataURL == "" {
		return nil, fmt.Errorf("party %s has neither metadata document nor URL", party.EntityID)
	}

	u, err := url.Parse(party.MetadataURL)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata URL: %w", err)
	}

	return samlsp.FetchMetadata(ctx, http.DefaultClient, *u)
}

// Lookup returns the registered party for the given entity ID.
func (reg *PartyRegistry) Lookup(entityID string) (*models.Party, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	entry, ok := reg.entries[entityID]
	if !ok {
		return nil, false
	}

	party := entry.party

	return &party, true
}

// AttributeMap returns the attribute map for a party's naming convention.
func (reg *PartyRegistry) AttributeMap(convention string) (attrmap.Map, bool) {
	return reg.maps.Lookup(convention)
}

// GetServiceProvider implements saml.ServiceProviderProvider by resolving
// the party's registered metadata.
func (reg *PartyRegistry) GetServiceProvider(_ *http.Request, serviceProviderID string) (*saml.EntityDescriptor, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	entry, ok := reg.entries[serviceProviderID]
	if !ok {
		return nil, os.ErrNotExist
	}

	return entry.metadata, nil
}
