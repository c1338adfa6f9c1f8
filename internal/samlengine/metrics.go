package samlengine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// assertionsIssued counts assertions issued by the identity provider,
	// labelled by relying party entity ID.
	assertionsIssued = promauto.NewCounterVec( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Name: "saml_assertions_issued_total",
			Help: "Number of SAML assertions issued, differentiated by relying party.",
		},
		[]string{"party"},
	)

	// assertionsConsumed counts assertions accepted by the service provider.
	assertionsConsumed = promauto.NewCounter( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Name: "saml_assertions_consumed_total",
			Help: "Number of SAML assertions consumed and ingested.",
		},
	)

	// accessDenied counts issuance attempts rejected by the access predicate.
	accessDenied = promauto.NewCounter( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Name: "saml_access_denied_total",
			Help: "Number of assertion requests denied by the access predicate.",
		},
	)
)
