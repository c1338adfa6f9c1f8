package models

import (
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog/log"
)

// AuthSource represents the authentication source for a user account.
// It indicates how the user authenticates at the identity provider
// (local database, LDAP, or OIDC).
type AuthSource string

const (
	// AuthSourceLocal indicates the user authenticates with a local database password.
	AuthSourceLocal AuthSource = "local"
	// AuthSourceOIDC indicates the user authenticates via OpenID Connect (OIDC).
	AuthSourceOIDC AuthSource = "oidc"
	// AuthSourceLDAP indicates the user authenticates via LDAP or Active Directory.
	AuthSourceLDAP AuthSource = "ldap"
	// AuthSourceSAML indicates the user record was provisioned from SAML assertions
	// received at a service provider.
	AuthSourceSAML AuthSource = "saml"
)

// User represents a user account in the system.
// At the identity provider users authenticate via local database, LDAP, or
// OIDC; at a service provider the record mirrors the identity asserted by
// the federation partner. Assertion payloads are built from this record and
// incoming attributes are reconciled back into it.
type User struct {
	// ID is the unique identifier for the user.
	ID uint64 `gorm:"primaryKey"`
	// Active indicates whether the user account is active and can log in.
	Active bool
	// Username is the unique username for login.
	Username string `gorm:"unique;size:100;not null" form:"username"`
	// Email is the user's email address.
	Email string `gorm:"size:255" form:"email"`
	// Password is the Argon2id hashed password (only used for local authentication).
	Password string `gorm:"size:255" form:"password"`
	// FirstName is the user's first or given name.
	FirstName string `gorm:"size:100" form:"first_name"`
	// LastName is the user's last or family name.
	LastName string `gorm:"size:100" form:"last_name"`
	// Staff indicates the user has operator rights on this node.
	Staff bool
	// Admin indicates the user has full administrative rights.
	Admin bool
	// Department is an optional organizational profile field.
	Department string `gorm:"size:100" form:"department"`
	// Title is the user's optional job title.
	Title string `gorm:"size:100" form:"title"`
	// Phone is the user's optional telephone number.
	Phone string `gorm:"size:50" form:"phone"`
	// Organization is the user's optional organization name.
	Organization string `gorm:"size:100" form:"organization"`
	// Groups are the groups this user belongs to.
	Groups []Group `gorm:"many2many:user_groups;"`
	// AuthSource indicates how this user authenticates (local, oidc, ldap, or saml).
	AuthSource AuthSource `gorm:"type:varchar(20);not null;default:'local'"`
	// ExternalID is the external identifier for OIDC (sub claim), LDAP (DN),
	// or SAML (name identifier) users.
	ExternalID string `gorm:"size:255"`
	// LastLogin is the timestamp of the user's most recent login, if any.
	LastLogin *time.Time
	// CreatedAt is the timestamp when the user was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the user was last updated (managed by GORM).
	UpdatedAt time.Time
	// DeletedAt is the soft delete timestamp (nil if not deleted, managed by GORM).
	DeletedAt *time.Time
}

// FullName returns the user's first and last name joined with a single
// space. Empty name parts are omitted, so the result is "" when both are
// unset.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// GroupNames returns the names of the user's groups in declaration order.
func (u *User) GroupNames() []string {
	if len(u.Groups) == 0 {
		return nil
	}

	names := make([]string, 0, len(u.Groups))
	for _, g := range u.Groups {
		names = append(names, g.Name)
	}

	return names
}

// HashPassword hashes a plaintext password using the Argon2id algorithm.
// This function should be used when creating or updating local user passwords.
// It uses the default Argon2id parameters for secure password hashing.
func HashPassword(password string) string {
	hashedPassword, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		log.Fatal().Msgf("failed to hash password: %v", err)
	}

	return hashedPassword
}

// VerifyPassword verifies a plaintext password against the user's stored hashed password.
// It uses constant-time comparison to prevent timing attacks.
// Returns true if the password matches, false otherwise.
func (u *User) VerifyPassword(password string) bool {
	match, err := argon2id.ComparePasswordAndHash(password, u.Password)
	if err != nil {
		log.Error().Msgf("failed to verify password: %v", err)
		return false
	}

	return match
}
