package config

import (
	"time"

	"github.com/asiradnan/saml/internal/auth"
	"github.com/asiradnan/saml/internal/logger"
)

// Node roles. A node runs either the identity provider or the service
// provider side of the federation.
const (
	RoleIdP = "idp"
	RoleSP  = "sp"
)

// Session settings.
type Session struct {
	ExpiryTime time.Duration
}

// Config overall data structure.
type Config struct {
	DevMode   bool   // enable dev mode for development
	Role      string // federation role of this node: "idp" or "sp"
	DB        DB
	Log       logger.Log
	Title     string
	Webserver Webserver
	IdP       IdP
	SP        SP
	Auth      Auth
}

// Webserver implement webserver settings.
type Webserver struct {
	BrowseStatic        bool    // enable static file browsing (for development purposes only)
	CacheEnabled        bool    // true = enable cache, false = disable cache
	CleanPath           bool    // use clean path middleware to allow multi slash requests
	DisableRecover      bool    // disable recover middleware
	Domain              string  // domain name for the webserver
	Port                int     // listening port for the webserver
	ShutDownTime        int     // wait time for shutdown
	URL                 string  // base url for the webserver
	CookieEncryptionKey string  // encryption key for cookies
	Argon2Salt          string  // salt for argon2 hashing
	Session             Session // session settings
}

// IdP holds identity provider settings. Only read when Role is "idp".
type IdP struct {
	CertFile      string  // PEM certificate used to sign assertions
	KeyFile       string  // PEM private key used to sign assertions
	SessionExpiry int     // lifetime of issued SAML sessions in seconds
	Parties       []Party // relying parties registered at startup
}

// Party declares a relying party in the config file. Parties are upserted
// into the database at startup; the admin UI can add more at runtime.
type Party struct {
	EntityID            string
	Name                string
	MetadataURL         string
	MetadataFile        string // path to a metadata XML document, alternative to MetadataURL
	Convention          string // attribute naming convention: "basic" or "uri"
	RequestedAttributes string // comma separated local field names, empty means all
}

// SP holds service provider settings. Only read when Role is "sp".
type SP struct {
	EntityID        string // optional override, defaults to the metadata URL
	CertFile        string // PEM certificate used to sign authn requests
	KeyFile         string // PEM private key used to sign authn requests
	IDPMetadataURL  string // partner identity provider metadata URL
	IDPMetadataFile string // path to a metadata XML document, alternative to the URL
	SessionExpiry   int    // lifetime of local sessions in seconds
}

// LocalDBAuth holds local database authentication settings.
type LocalDBAuth struct {
	Enabled bool
}

// LDAPAuth holds LDAP authentication settings.
type LDAPAuth = auth.LDAPConfig

// OIDCAuth holds OpenID Connect authentication settings.
type OIDCAuth = auth.OIDCConfig

// Auth bundles the authentication source settings for the identity provider.
type Auth struct {
	LocalDB LocalDBAuth
	LDAP    LDAPAuth
	OIDC    OIDCAuth
}
