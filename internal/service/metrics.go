package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recomputation outcomes.
const (
	outcomeOK       = "ok"
	outcomeOrphaned = "orphaned"
	outcomeError    = "error"
)

var (
	reviewMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookreview_reviews_mutations_total",
			Help: "Total number of successful review mutations",
		},
		[]string{"operation"},
	)

	ratingRecomputationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookreview_rating_recomputations_total",
			Help: "Total number of average rating recomputations by outcome",
		},
		[]string{"outcome"},
	)
)
