package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	orchestrationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_orchestration_total",
		Help: "Upload notifications handled by the job orchestrator, by outcome",
	}, []string{"outcome"})

	submitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_encode_submit_total",
		Help: "Encode job submissions to the transcoder, by result",
	}, []string{"result"})

	reconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_reconcile_total",
		Help: "Job status events handled by the completion reconciler, by outcome",
	}, []string{"outcome"})

	playbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_playback_decision_total",
		Help: "Playback decisions by viewer tier and decision kind",
	}, []string{"tier", "decision"})
)

// RecordOrchestration created / duplicate / unsupported / submit_failed / store_failed
func RecordOrchestration(outcome string) {
	orchestrationTotal.WithLabelValues(normalize(outcome, "created", "duplicate", "unsupported", "submit_failed", "store_failed", "claimed_elsewhere")).Inc()
}

// RecordSubmit ok / error
func RecordSubmit(ok bool) {
	if ok {
		submitTotal.WithLabelValues("ok").Inc()
		return
	}
	submitTotal.WithLabelValues("error").Inc()
}

// RecordReconcile 記錄 reconciler 對單一事件的處理結果
func RecordReconcile(outcome string) {
	reconcileTotal.WithLabelValues(normalize(outcome,
		"applied_completed", "applied_failed", "retried", "progress",
		"duplicate", "conflict", "not_found", "ignored",
	)).Inc()
}

// RecordPlayback tier: FREE/STANDARD/PREMIUM，decision: OK/DEGRADED/UNAVAILABLE
func RecordPlayback(tier, decision string) {
	playbackTotal.WithLabelValues(
		normalize(tier, "FREE", "STANDARD", "PREMIUM"),
		normalize(decision, "OK", "DEGRADED", "UNAVAILABLE"),
	).Inc()
}

func normalize(v string, allowed ...string) string {
	v = strings.TrimSpace(v)
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return a
		}
	}
	return "unknown"
}
