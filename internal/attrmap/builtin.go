package attrmap

// Convention names for the built-in attribute maps.
const (
	// ConventionBasic is the short LDAP-style attribute naming convention.
	ConventionBasic = "basic"
	// ConventionURI is the URI-style attribute naming convention.
	ConventionURI = "uri"
)

// SAML attrname-format identifiers for the built-in conventions.
const (
	FormatBasic = "urn:oasis:names:tc:SAML:2.0:attrname-format:basic"
	FormatURI   = "urn:oasis:names:tc:SAML:2.0:attrname-format:uri"
)

// Basic returns the attribute map for the basic naming convention.
// It accepts short LDAP-style names (uid, mail, cn, sn) as well as the
// WS-Fed claim URIs some identity providers emit, and translates local
// fields to short names on the way out.
func Basic() Map {
	fro := map[string]string{
		"uid":         "username",
		"mail":        "email",
		"cn":          "first_name",
		"sn":          "last_name",
		"givenName":   "first_name",
		"surname":     "last_name",
		"displayName": "full_name",

		"accountStatus": "account_status",
		"staffStatus":   "staff_status",
		"adminStatus":   "admin_status",

		"memberSince": "date_joined",
		"lastLogin":   "last_login",

		"eduPersonAffiliation": "groups",
		"memberOf":             "groups",

		"department":      "department",
		"title":           "title",
		"telephoneNumber": "phone",
		"organization":    "organization",

		// Claim URIs as emitted by WS-Fed style providers.
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress": "email",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/givenname":    "first_name",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/surname":      "last_name",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name":         "username",
	}

	to := map[string]string{
		"username":   "uid",
		"email":      "mail",
		"first_name": "cn",
		"last_name":  "sn",
		"full_name":  "displayName",

		"account_status": "accountStatus",
		"staff_status":   "staffStatus",
		"admin_status":   "adminStatus",

		"date_joined": "memberSince",
		"last_login":  "lastLogin",

		"groups": "eduPersonAffiliation",

		"department":   "department",
		"title":        "title",
		"phone":        "telephoneNumber",
		"organization": "organization",
	}

	return New(ConventionBasic, FormatBasic, fro, to)
}

// URI returns the attribute map for the uri naming convention.
// Wire names pass through unchanged; the convention exists so partners
// expecting attrname-format:uri get the matching identifier.
func URI() Map {
	names := []string{
		"uid", "mail", "cn", "sn",
		"is_active", "is_staff", "is_superuser",
	}

	fro := make(map[string]string, len(names))
	to := make(map[string]string, len(names))

	for _, n := range names {
		fro[n] = n
		to[n] = n
	}

	return New(ConventionURI, FormatURI, fro, to)
}

// Builtin returns a registry containing all built-in conventions.
func Builtin() *Registry {
	return NewRegistry(Basic(), URI())
}
