package session

import (
	"github.com/rs/zerolog/log"

	"github.com/asiradnan/saml/internal/db/models"
	"github.com/asiradnan/saml/internal/identity"
)

// Reconciler applies a resolved identity to a user record. It is satisfied
// by reconcile.Reconciler; tests substitute counting stubs.
type Reconciler interface {
	Apply(user *models.User, resolved identity.Resolved) (bool, error)
}

// Correlator ties incoming attribute bags to the active session record.
// Ingestion runs at most once per session lifetime: the record's Processed
// flag short-circuits every later authentication event in the same session.
// A forced re-run requires a fresh record, which a new login creates.
type Correlator struct {
	resolver   *identity.Resolver
	reconciler Reconciler
}

// NewCorrelator creates a correlator using the given resolver and reconciler.
func NewCorrelator(resolver *identity.Resolver, reconciler Reconciler) *Correlator {
	return &Correlator{
		resolver:   resolver,
		reconciler: reconciler,
	}
}

// Ingest resolves the bag, reconciles the user, and stores the bag and name
// identifier on the record. No-op when the record is already processed.
//
// Processed is only set after the reconciler's write succeeded. On failure
// the record is left unmarked so the next request retries; the caller must
// not persist a half-ingested record as processed.
func (c *Correlator) Ingest(rec *Record, user *models.User, bag identity.Bag, nameID string) error {
	if rec.Processed {
		log.Debug().Str("username", user.Username).Msg("session attributes already processed")
		return nil
	}

	rec.Attributes = bag.Clone()
	rec.NameID = nameID

	resolved := c.resolver.Resolve(bag)

	if _, err := c.reconciler.Apply(user, resolved); err != nil {
		return err
	}

	rec.User = *user
	rec.Processed = true

	log.Info().
		Str("username", user.Username).
		Str("name_id", nameID).
		Int("attributes", len(bag)).
		Msg("stored assertion attributes in session")

	return nil
}
