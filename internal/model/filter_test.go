package model_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/raysh454/flipradar/internal/model"
)

func opp(id, category string, profit float64, at time.Time) model.Opportunity {
	return model.Opportunity{ID: id, Category: category, EstimatedProfit: profit, DiscoveredAt: at}
}

func ids(opps []model.Opportunity) []string {
	out := make([]string, len(opps))
	for i, o := range opps {
		out[i] = o.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApplyFilter_OrderAndTies(t *testing.T) {
	t.Parallel()

	later := t0.Add(time.Hour)
	in := []model.Opportunity{
		opp("c", "Books", 10, t0),
		opp("a", "Books", 50, t0),
		opp("b", "Books", 10, later),
		opp("d", "Books", 10, t0),
	}

	got, err := model.ApplyFilter(in, model.Filter{})
	if err != nil {
		t.Fatalf("ApplyFilter: %v", err)
	}
	want := []string{"a", "b", "c", "d"}
	if !equalIDs(ids(got), want) {
		t.Errorf("expected order %v, got %v", want, ids(got))
	}
	if in[0].ID != "c" {
		t.Error("ApplyFilter must not reorder its input")
	}
}

func TestApplyFilter_CategoryCaseInsensitive(t *testing.T) {
	t.Parallel()

	in := []model.Opportunity{
		opp("1", "Electronics", 5, t0),
		opp("2", "Books", 5, t0),
		opp("3", "electronics", 5, t0),
	}

	got, err := model.ApplyFilter(in, model.Filter{Category: "ELECTRONICS"})
	if err != nil {
		t.Fatalf("ApplyFilter: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 electronics results, got %v", ids(got))
	}

	all, err := model.ApplyFilter(in, model.Filter{Category: "All"})
	if err != nil {
		t.Fatalf("ApplyFilter: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected \"all\" to match every category, got %d", len(all))
	}
}

func TestApplyFilter_MinProfitInclusive(t *testing.T) {
	t.Parallel()

	in := []model.Opportunity{
		opp("low", "x", 9.99, t0),
		opp("edge", "x", 10, t0),
		opp("high", "x", 25, t0),
	}
	got, err := model.ApplyFilter(in, model.Filter{MinProfit: ptr(10)})
	if err != nil {
		t.Fatalf("ApplyFilter: %v", err)
	}
	if !equalIDs(ids(got), []string{"high", "edge"}) {
		t.Errorf("unexpected result %v", ids(got))
	}
}

func TestApplyFilter_Limit(t *testing.T) {
	t.Parallel()

	var in []model.Opportunity
	for i := 0; i < model.DefaultLimit+20; i++ {
		in = append(in, opp(fmt.Sprintf("o%03d", i), "x", float64(i), t0))
	}

	got, err := model.ApplyFilter(in, model.Filter{})
	if err != nil {
		t.Fatalf("ApplyFilter: %v", err)
	}
	if len(got) != model.DefaultLimit {
		t.Errorf("expected default limit %d, got %d", model.DefaultLimit, len(got))
	}

	got, err = model.ApplyFilter(in, model.Filter{Limit: 3})
	if err != nil {
		t.Fatalf("ApplyFilter: %v", err)
	}
	if len(got) != 3 || got[0].EstimatedProfit != float64(model.DefaultLimit+19) {
		t.Errorf("expected top 3 by profit, got %v", ids(got))
	}

	_, err = model.ApplyFilter(in, model.Filter{Limit: -1})
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for negative limit, got %v", err)
	}
}

func TestComputeStats(t *testing.T) {
	t.Parallel()

	in := []model.Opportunity{
		{ID: "a", EstimatedProfit: 100, ProfitMargin: 1.0},
		{ID: "b", EstimatedProfit: 50, ProfitMargin: 0.5},
		{ID: "c", EstimatedProfit: -10, ProfitMargin: -0.1},
	}
	st := model.ComputeStats(in, map[string]bool{"a": true, "c": true})

	if st.TotalOpportunities != 3 || st.TotalPurchases != 2 {
		t.Errorf("unexpected counts: %+v", st)
	}
	if !almostEqual(st.TotalProfit, 90) {
		t.Errorf("expected total profit 90, got %v", st.TotalProfit)
	}
	if !almostEqual(st.AvgMargin, 1.4/3) {
		t.Errorf("expected avg margin %v, got %v", 1.4/3, st.AvgMargin)
	}

	empty := model.ComputeStats(nil, nil)
	if empty != (model.Stats{}) {
		t.Errorf("expected zero stats for empty store, got %+v", empty)
	}
}

func TestComputeStats_InputOrderIrrelevant(t *testing.T) {
	t.Parallel()

	var in []model.Opportunity
	purchased := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("m%03d", i)
		in = append(in, model.Opportunity{ID: id, EstimatedProfit: 0.1 * float64(i), ProfitMargin: 1 / float64(i+3)})
		if i%4 == 0 {
			purchased[id] = true
		}
	}
	reversed := make([]model.Opportunity, len(in))
	for i, o := range in {
		reversed[len(in)-1-i] = o
	}

	if a, b := model.ComputeStats(in, purchased), model.ComputeStats(reversed, purchased); a != b {
		t.Errorf("stats depend on input order: %+v vs %+v", a, b)
	}
	if in[0].ID != "m000" {
		t.Error("ComputeStats must not reorder its input")
	}
}

func TestComputeDailyStats(t *testing.T) {
	t.Parallel()

	midnight := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	in := []model.Opportunity{
		{ID: "a", EstimatedProfit: 20, ProfitMargin: 1, DiscoveredAt: midnight},
		{ID: "b", EstimatedProfit: 40, ProfitMargin: 0.5, DiscoveredAt: midnight.Add(23 * time.Hour)},
		{ID: "c", EstimatedProfit: 70, ProfitMargin: 3, DiscoveredAt: midnight.Add(-time.Nanosecond)},
	}
	purchases := []model.Purchase{
		{OpportunityID: "c", ApprovedAt: midnight.Add(time.Hour)},
		{OpportunityID: "a", ApprovedAt: midnight.Add(24 * time.Hour)},
	}

	// A non-UTC instant still selects the UTC day.
	day := midnight.Add(10 * time.Hour).In(time.FixedZone("X", -11*3600))
	st := model.ComputeDailyStats(in, purchases, day)
	if st.Date != "2025-03-01" || st.OpportunitiesFound != 2 || st.PurchasesCompleted != 1 {
		t.Errorf("unexpected daily stats %+v", st)
	}
	if !almostEqual(st.TotalProfit, 70) || !almostEqual(st.AvgMargin, 0.75) {
		t.Errorf("unexpected daily totals %+v", st)
	}

	if empty := model.ComputeDailyStats(nil, nil, day); empty != (model.DailyStats{Date: "2025-03-01"}) {
		t.Errorf("expected empty day, got %+v", empty)
	}
}

func TestPerformanceFrom(t *testing.T) {
	t.Parallel()

	p := model.PerformanceFrom(model.Stats{TotalOpportunities: 8, TotalPurchases: 2, TotalProfit: 55})
	if p.TotalOpportunities != 8 || p.TotalPurchases != 2 || !almostEqual(p.TotalProfit, 55) {
		t.Errorf("unexpected performance %+v", p)
	}
	if !almostEqual(p.ConversionRate, 25) {
		t.Errorf("expected conversion rate 25%%, got %v", p.ConversionRate)
	}
	if model.PerformanceFrom(model.Stats{}).ConversionRate != 0 {
		t.Error("expected zero conversion rate for an empty store")
	}
}

func TestCategoryKey(t *testing.T) {
	t.Parallel()

	if model.CategoryKey(" Électronique ") != model.CategoryKey("ÉLECTRONIQUE") {
		t.Error("expected non-ASCII categories to fold to the same key")
	}
	f, _ := model.Filter{Category: "électronique"}.Normalize()
	if !f.Matches(model.Opportunity{Category: "ÉLECTRONIQUE"}) {
		t.Error("expected filter to match folded category")
	}
}

func TestEvent_Wire(t *testing.T) {
	t.Parallel()

	o := model.Opportunity{ID: "x"}
	msg, err := model.DiscoveredEvent(o, t0).Wire()
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	if msg.Type != model.WireNewOpportunity || msg.Data == nil || msg.Data.ID != "x" {
		t.Errorf("unexpected discovery frame: %+v", msg)
	}

	job := model.ScanJob{ID: "j1", Status: model.JobFailed}
	msg, err = model.ScanEvent(model.EventScanCompleted, job, t0).Wire()
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	if msg.Type != model.WireScanCompleted || msg.JobID != "j1" || msg.Status != model.JobFailed {
		t.Errorf("unexpected scan frame: %+v", msg)
	}

	if _, err := (model.Event{Type: "bogus"}).Wire(); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for unknown type, got %v", err)
	}
}

func TestNormalizeCategory(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{"": "all", " ALL ": "all", "Books": "Books"} {
		if got := model.NormalizeCategory(in); got != want {
			t.Errorf("NormalizeCategory(%q) = %q, want %q", in, got, want)
		}
	}
	if !model.JobCompleted.Terminal() || model.JobRunning.Terminal() {
		t.Error("unexpected Terminal results")
	}
}
