// Package main provides the entry point for the samlfed node. It starts a
// web server using the Fiber framework that, depending on the configured
// role, issues SAML assertions to registered relying parties or consumes
// them from a partner identity provider, provisioning users through a
// shared resolve and reconcile pipeline backed by gorm.
package main
