package models

import (
	"strings"
	"time"
)

// Party represents a relying party (service provider) registered with the
// identity provider. The identity provider only issues assertions to
// registered parties, using the party's naming convention and requested
// attribute set to build the payload.
type Party struct {
	// ID is the unique identifier for the party.
	ID uint `gorm:"primaryKey"`
	// EntityID is the SAML entity identifier of the service provider.
	EntityID string `gorm:"unique;size:255;not null" form:"entity_id" validate:"required,url"`
	// Name is a human-readable display name for the party.
	Name string `gorm:"size:100;not null" form:"name" validate:"required,max=100"`
	// MetadataURL is where the party's SAML metadata can be fetched from.
	// Either MetadataURL or MetadataXML must be set.
	MetadataURL string `gorm:"size:255" form:"metadata_url" validate:"omitempty,url"`
	// MetadataXML is the party's SAML metadata document, if registered directly.
	MetadataXML string `gorm:"type:text" form:"metadata_xml"`
	// Convention is the attribute naming convention negotiated with this
	// party ("basic" or "uri").
	Convention string `gorm:"size:20;not null;default:'basic'" form:"convention" validate:"required,oneof=basic uri"`
	// RequestedAttributes is the comma-separated list of local field names
	// this party wants in assertions. Empty means all available fields.
	RequestedAttributes string `gorm:"size:512" form:"requested_attributes"`
	// Active indicates whether assertions may be issued to this party.
	Active bool
	// CreatedAt is the timestamp when the party was registered (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the party was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the Party model.
func (Party) TableName() string {
	return "parties"
}

// RequestedFields parses RequestedAttributes into a slice of local field
// names. Returns nil when the party did not restrict the attribute set.
func (p *Party) RequestedFields() []string {
	if strings.TrimSpace(p.RequestedAttributes) == "" {
		return nil
	}

	parts := strings.Split(p.RequestedAttributes, ",")
	fields := make([]string, 0, len(parts))

	for _, part := range parts {
		if f := strings.TrimSpace(part); f != "" {
			fields = append(fields, f)
		}
	}

	return fields
}
