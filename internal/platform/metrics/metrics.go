package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	voteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "urna_vote_requests_total",
		Help: "Total de requisicoes de voto recebidas",
	}, []string{"status"})

	voteDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "urna_vote_decisions_total",
		Help: "Total de decisoes do pipeline de voto por desfecho",
	}, []string{"decision"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "urna_vote_tokens_total",
		Help: "Total de tokens de voto emitidos e validados por resultado",
	}, []string{"result"})

	suspiciousAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "urna_suspicious_attempts_total",
		Help: "Total de submissoes marcadas como suspeitas sem bloqueio",
	})

	attemptsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "urna_attempts_swept_total",
		Help: "Total de registros de tentativa expirados removidos pelo worker",
	})

	voteProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "urna_vote_processing_duration_seconds",
		Help:    "Tempo para decidir uma submissao de voto",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveVoteRequest(status string) {
	voteRequestsTotal.WithLabelValues(status).Inc()
}

func IncVoteDecision(decision string) {
	voteDecisionsTotal.WithLabelValues(decision).Inc()
}

func IncToken(result string) {
	tokensTotal.WithLabelValues(result).Inc()
}

func IncSuspiciousAttempt() {
	suspiciousAttemptsTotal.Inc()
}

func AddAttemptsSwept(n int64) {
	attemptsSweptTotal.Add(float64(n))
}

func ObserveProcessingDuration(seconds float64) {
	voteProcessingDuration.Observe(seconds)
}
