// Package samlengine wraps the external SAML engine (crewjam/saml) behind
// the attribute-bag boundary. The identity provider side bridges the local
// login session into assertion issuance; the service provider side converts
// validated assertions into attribute bags and feeds them to the ingestion
// pipeline. Protocol framing, signing, and binding mechanics stay inside the
// engine.
package samlengine
