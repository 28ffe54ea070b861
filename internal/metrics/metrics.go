package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the arena core. Registered on the default registry and exposed
// via /metrics on the API server.
var (
	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_rooms_created_total",
		Help: "Number of arena rooms created.",
	})

	RoomsJoined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_rooms_joined_total",
		Help: "Number of successful room joins.",
	})

	MatchesFinished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_matches_finished_total",
		Help: "Number of matches that reached the finished state.",
	})

	AnswersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_answers_submitted_total",
		Help: "Answer submissions partitioned by local check result.",
	}, []string{"result"})

	CommitConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_commit_conflicts_total",
		Help: "Conditional commits abandoned because the question index moved.",
	})
)
