package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		scansSubmitted,
		scanSubmitErrors,
		scanJobsFinished,
		scanJobsExpired,
		opportunitiesRecorded,
		purchasesApproved,
	)
}

var (
	scansSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flipradar_scans_submitted_total",
			Help: "Scan jobs accepted by the queue, by category.",
		},
		[]string{"category"},
	)

	scanSubmitErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flipradar_scan_submit_errors_total",
			Help: "Scan submissions that failed after retries.",
		},
	)

	scanJobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flipradar_scan_jobs_finished_total",
			Help: "Scan jobs that reached a terminal state, by status.",
		},
		[]string{"status"},
	)

	scanJobsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flipradar_scan_jobs_expired_total",
			Help: "Running scan jobs failed by the timeout reaper.",
		},
	)

	opportunitiesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flipradar_opportunities_recorded_total",
			Help: "Opportunities stored, by category and decision.",
		},
		[]string{"category", "decision"},
	)

	purchasesApproved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flipradar_purchases_approved_total",
			Help: "Purchase approvals received.",
		},
	)
)

func ScanSubmitted(category string) { scansSubmitted.WithLabelValues(norm(category)).Inc() }

func ScanSubmitFailed() { scanSubmitErrors.Inc() }

func ScanJobFinished(status string) { scanJobsFinished.WithLabelValues(norm(status)).Inc() }

func ScanJobsExpired(n int) {
	if n > 0 {
		scanJobsExpired.Add(float64(n))
	}
}

func OpportunityRecorded(category, decision string) {
	opportunitiesRecorded.WithLabelValues(norm(category), norm(decision)).Inc()
}

func PurchaseApproved() { purchasesApproved.Inc() }
