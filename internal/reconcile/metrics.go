package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	passes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokengate_reconcile_passes_total",
		Help: "Completed reconciliation passes.",
	})
	rolesGranted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokengate_roles_granted_total",
		Help: "Roles granted by reconciliation.",
	})
	rolesRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokengate_roles_revoked_total",
		Help: "Roles revoked by reconciliation.",
	})
	memberErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokengate_member_errors_total",
		Help: "Members whose reconciliation aborted with an error.",
	})
)
