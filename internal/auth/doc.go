// Package auth implements the authentication sources of the identity
// provider: local database passwords, LDAP directories, and OIDC providers.
// All sources deliver user attributes as an attribute bag, which is resolved
// and reconciled into the local user record through the same pipeline the
// SAML ingestion path uses.
package auth
