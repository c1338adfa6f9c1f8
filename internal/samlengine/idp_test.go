package samlengine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crewjam/saml"
	sessionsqlite "github.com/gofiber/storage/sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/asiradnan/saml/internal/attrmap"
	"github.com/asiradnan/saml/internal/db/models"
	"github.com/asiradnan/saml/internal/identity"
	"github.com/asiradnan/saml/internal/web/session"
)

const spMetadataXML = `<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://sp.example.org/metadata">
  <SPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <AssertionConsumerService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST" Location="https://sp.example.org/acs" index="1"/>
  </SPSSODescriptor>
</EntityDescriptor>`

// countingBuilder records how often Build runs and returns a fixed bag.
type countingBuilder struct {
	calls int
	bag   identity.Bag
}

func (b *countingBuilder) Build(_ *models.User, _ []string, _ string) (identity.Bag, error) {
	b.calls++
	return b.bag.Clone(), nil
}

func newIssuanceProvider(t *testing.T, builder AttributeBuilder) *idpSessionProvider {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Group{}, &models.UserGroup{}, &models.Party{}))

	session.Init(sessionsqlite.New(sessionsqlite.Config{
		Database: ":memory:",
		Table:    "sessions",
	}))

	return &idpSessionProvider{
		db:        db,
		builder:   builder,
		parties:   NewPartyRegistry(db),
		loginPath: "/login",
		expiry:    time.Hour,
	}
}

// loginSession stores a session record for the user and returns its cookie
// value.
func loginSession(t *testing.T, user *models.User) string {
	t.Helper()

	sid, err := session.GenerateSessionID()
	require.NoError(t, err)

	rec := &session.Record{User: *user}
	require.NoError(t, rec.Write(sid, time.Hour))

	return sid
}

func ssoRequest(sessionID string) (*httptest.ResponseRecorder, *http.Request) {
	r := httptest.NewRequest(http.MethodGet, "/saml/sso", nil)
	if sessionID != "" {
		r.AddCookie(&http.Cookie{Name: "session", Value: sessionID})
	}

	return httptest.NewRecorder(), r
}

func TestGetSessionDeniesInactiveUserBeforeBuild(t *testing.T) {
	cb := &countingBuilder{}
	p := newIssuanceProvider(t, cb)

	user := &models.User{Active: false, Username: "alice"}
	require.NoError(t, p.db.Create(user).Error)

	w, r := ssoRequest(loginSession(t, user))

	sess := p.GetSession(w, r, &saml.IdpAuthnRequest{})

	assert.Nil(t, sess)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, cb.calls, "builder must not run for a denied user")
}

func TestGetSessionBuildsBagForActiveUser(t *testing.T) {
	cb := &countingBuilder{bag: identity.Bag{"uid": {"alice"}}}
	p := newIssuanceProvider(t, cb)

	user := &models.User{Active: true, Username: "alice", Email: "alice@example.org"}
	require.NoError(t, p.db.Create(user).Error)

	party := &models.Party{
		EntityID:    "https://sp.example.org/metadata",
		Name:        "Example SP",
		MetadataXML: spMetadataXML,
		Convention:  attrmap.ConventionBasic,
		Active:      true,
	}
	require.NoError(t, p.db.Create(party).Error)
	require.NoError(t, p.parties.Reload(context.Background()))

	w, r := ssoRequest(loginSession(t, user))

	sess := p.GetSession(w, r, &saml.IdpAuthnRequest{
		ServiceProviderMetadata: &saml.EntityDescriptor{EntityID: party.EntityID},
	})

	require.NotNil(t, sess)
	assert.Equal(t, 1, cb.calls)
	assert.Equal(t, "alice", sess.NameID)
	require.Len(t, sess.CustomAttributes, 1)
	assert.Equal(t, "uid", sess.CustomAttributes[0].Name)
}

func TestGetSessionRedirectsAnonymousToLogin(t *testing.T) {
	cb := &countingBuilder{}
	p := newIssuanceProvider(t, cb)

	w, r := ssoRequest("")

	sess := p.GetSession(w, r, &saml.IdpAuthnRequest{})

	assert.Nil(t, sess)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/login?next=")
	assert.Equal(t, 0, cb.calls)
}
