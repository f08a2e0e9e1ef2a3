package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	appendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modguard_audit_appends_total",
		Help: "Number of records appended to the audit chain.",
	})

	alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modguard_security_alerts_total",
		Help: "Security alerts raised by the append-time detectors.",
	}, []string{"alert_type"})

	chainVerifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "modguard_chain_verify_duration_seconds",
		Help:    "Wall time spent walking the audit chain during verification.",
		Buckets: prometheus.DefBuckets,
	})

	chainViolationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modguard_chain_violations_total",
		Help: "Integrity violations found by chain verification.",
	})

	archivedRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modguard_audit_archived_records_total",
		Help: "Audit records archived and removed by cleanup.",
	})
)
