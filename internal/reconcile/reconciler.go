// Package reconcile applies resolved identity attributes to local user
// records, computing a change-set and guaranteeing idempotent updates.
package reconcile

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/asiradnan/saml/internal/db/models"
	"github.com/asiradnan/saml/internal/identity"
)

// ErrPersist is returned when the reconciled user cannot be written to the
// identity store. The caller must leave the session unmarked so the next
// request can retry.
var ErrPersist = errors.New("failed to persist reconciled user")

// reconciliations counts reconciliation runs by outcome.
var reconciliations = promauto.NewCounterVec( //nolint:gochecknoglobals
	prometheus.CounterOpts{
		Name: "saml_reconciliations_total",
		Help: "Number of user reconciliation runs, differentiated by outcome.",
	},
	[]string{"outcome"},
)

// field describes one reconcilable user field: how to read it from the
// record and how to stage an update. Column names follow GORM's snake_case
// convention.
type field struct {
	name string
	get  func(*models.User) string
	set  func(*models.User, string)
}

// fields lists the user fields the reconciler manages. Username is
// deliberately absent: it identifies the record and is never rewritten from
// incoming attributes.
var fields = []field{ //nolint:gochecknoglobals
	{"first_name", func(u *models.User) string { return u.FirstName }, func(u *models.User, v string) { u.FirstName = v }},
	{"last_name", func(u *models.User) string { return u.LastName }, func(u *models.User, v string) { u.LastName = v }},
	{"email", func(u *models.User) string { return u.Email }, func(u *models.User, v string) { u.Email = v }},
	{"department", func(u *models.User) string { return u.Department }, func(u *models.User, v string) { u.Department = v }},
	{"title", func(u *models.User) string { return u.Title }, func(u *models.User, v string) { u.Title = v }},
	{"phone", func(u *models.User) string { return u.Phone }, func(u *models.User, v string) { u.Phone = v }},
	{"organization", func(u *models.User) string { return u.Organization }, func(u *models.User, v string) { u.Organization = v }},
}

// Reconciler applies resolved identities to user records in the identity
// store.
type Reconciler struct {
	db *gorm.DB
}

// New creates a reconciler backed by the given database.
func New(db *gorm.DB) *Reconciler {
	return &Reconciler{db: db}
}

// Apply compares each resolved field against the user's current value and
// persists all differing values in a single atomic update. It reports
// whether anything was modified; applying the same resolved identity twice
// yields a write the first time and a no-op the second.
//
// A field absent from the resolved identity is "no opinion": existing
// non-empty user data is never cleared by an omission.
func (r *Reconciler) Apply(user *models.User, resolved identity.Resolved) (bool, error) {
	changed := make(map[string]string)

	for _, f := range fields {
		value, ok := resolved.Get(f.name)
		if !ok || value == "" {
			continue
		}

		if f.get(user) == value {
			continue
		}

		changed[f.name] = value
	}

	if len(changed) == 0 {
		log.Debug().Str("username", user.Username).Msg("no reconciliation needed")
		reconciliations.WithLabelValues("noop").Inc()

		return false, nil
	}

	updates := make(map[string]interface{}, len(changed)+1)
	for name, value := range changed {
		updates[name] = value
	}
	updates["updated_at"] = time.Now()

	if err := r.db.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		reconciliations.WithLabelValues("error").Inc()
		return false, fmt.Errorf("%w: %v", ErrPersist, err)
	}

	// The in-memory record picks up the new values only once the row holds
	// them, so a failed write leaves it matching the store.
	for _, f := range fields {
		if value, ok := changed[f.name]; ok {
			f.set(user, value)
		}
	}

	log.Info().
		Str("username", user.Username).
		Int("fields", len(changed)).
		Msg("reconciled user from incoming attributes")
	reconciliations.WithLabelValues("modified").Inc()

	return true, nil
}
