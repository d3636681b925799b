package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "imghost"

var (
	FirewallDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "firewall",
		Name:      "decisions_total",
		Help:      "Firewall verdicts by result and deny reason category.",
	}, []string{"result", "reason"})

	StorageUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "uploads_total",
		Help:      "Upload attempts by backend provider and outcome.",
	}, []string{"provider", "result"})

	StorageFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "fallbacks_total",
		Help:      "Uploads that failed on the capacity-limited backend and fell back.",
	})

	FailOpen = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fail_open_total",
		Help:      "Gating checks that admitted traffic because the store was unreachable.",
	}, []string{"component"})
)

// Deny reason categories used as label values.
const (
	ReasonBlocked     = "blocked"
	ReasonBadBot      = "bad_bot"
	ReasonSuspicious  = "suspicious_pattern"
	ReasonRateLimited = "rate_limited"
	ReasonUploadLimit = "upload_rate_limited"
)
