package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(scansSubmitted.WithLabelValues("books"))
	ScanSubmitted(" Books ")
	if got := testutil.ToFloat64(scansSubmitted.WithLabelValues("books")); got != before+1 {
		t.Errorf("expected scans submitted to grow by 1, got %v -> %v", before, got)
	}

	before = testutil.ToFloat64(opportunitiesRecorded.WithLabelValues("unknown", "purchase"))
	OpportunityRecorded("", "PURCHASE")
	if got := testutil.ToFloat64(opportunitiesRecorded.WithLabelValues("unknown", "purchase")); got != before+1 {
		t.Errorf("expected empty category to be labelled unknown, got %v", got)
	}

	before = testutil.ToFloat64(scanJobsExpired)
	ScanJobsExpired(0)
	ScanJobsExpired(3)
	if got := testutil.ToFloat64(scanJobsExpired); got != before+3 {
		t.Errorf("expected expired +3, got %v -> %v", before, got)
	}

	SetSubscribers(4)
	if got := testutil.ToFloat64(wsSubscribers); got != 4 {
		t.Errorf("expected gauge 4, got %v", got)
	}

	ObserveHTTP("GET", "", 200, 3*time.Millisecond)
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "200")); got < 1 {
		t.Errorf("expected unmatched request counted, got %v", got)
	}
}

func TestHandlerExposesRegisteredCollectors(t *testing.T) {
	MustRegister()
	MustRegister() // second call is a no-op

	PurchaseApproved()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "flipradar_purchases_approved_total") {
		t.Error("expected purchases counter in exposition output")
	}
}
