package model_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/raysh454/flipradar/internal/model"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr(f float64) *float64 { return &f }

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNewOpportunity_DerivedFields(t *testing.T) {
	t.Parallel()

	o, err := model.NewOpportunity(model.OpportunityInput{
		ProductTitle:      "Vintage Camera",
		SourceMarketplace: "Craigslist",
		Category:          "Photography",
		SourcePrice:       100,
		TargetPrice:       200,
		Fees:              ptr(20),
		AIDecision:        "purchase",
		AIConfidence:      0.9,
	}, 0.15, "opp-1", t0)
	if err != nil {
		t.Fatalf("NewOpportunity: %v", err)
	}

	if !almostEqual(o.EstimatedProfit, 80) {
		t.Errorf("expected profit 80, got %v", o.EstimatedProfit)
	}
	if !almostEqual(o.ProfitMargin, 0.8) {
		t.Errorf("expected margin 0.8, got %v", o.ProfitMargin)
	}
	if o.AIDecision != model.DecisionPurchase {
		t.Errorf("expected PURCHASE, got %s", o.AIDecision)
	}
	if !o.DiscoveredAt.Equal(t0) {
		t.Errorf("expected discovered_at %v, got %v", t0, o.DiscoveredAt)
	}
}

func TestNewOpportunity_DefaultFeeRate(t *testing.T) {
	t.Parallel()

	o, err := model.NewOpportunity(model.OpportunityInput{
		ProductTitle: "LEGO set",
		SourcePrice:  50,
		TargetPrice:  100,
	}, 0.15, "opp-2", t0)
	if err != nil {
		t.Fatalf("NewOpportunity: %v", err)
	}
	if !almostEqual(o.Fees, 15) {
		t.Errorf("expected fees 15, got %v", o.Fees)
	}
	if !almostEqual(o.EstimatedProfit, 35) {
		t.Errorf("expected profit 35, got %v", o.EstimatedProfit)
	}
	if o.AIDecision != model.DecisionAnalyzing {
		t.Errorf("expected default decision ANALYZING, got %s", o.AIDecision)
	}
	if o.Category != model.DefaultCategory {
		t.Errorf("expected default category, got %q", o.Category)
	}
}

func TestNewOpportunity_ZeroSourcePrice(t *testing.T) {
	t.Parallel()

	o, err := model.NewOpportunity(model.OpportunityInput{
		ProductTitle: "Free couch",
		SourcePrice:  0,
		TargetPrice:  40,
		Fees:         ptr(0),
	}, 0.15, "opp-3", t0)
	if err != nil {
		t.Fatalf("NewOpportunity: %v", err)
	}
	if o.ProfitMargin != 0 {
		t.Errorf("expected margin 0 for free item, got %v", o.ProfitMargin)
	}
	if !almostEqual(o.EstimatedProfit, 40) {
		t.Errorf("expected profit 40, got %v", o.EstimatedProfit)
	}
}

func TestNewOpportunity_Validation(t *testing.T) {
	t.Parallel()

	base := model.OpportunityInput{ProductTitle: "x", SourcePrice: 1, TargetPrice: 2}
	cases := []struct {
		name string
		mut  func(*model.OpportunityInput)
	}{
		{"missing title", func(in *model.OpportunityInput) { in.ProductTitle = "  " }},
		{"negative source", func(in *model.OpportunityInput) { in.SourcePrice = -1 }},
		{"negative target", func(in *model.OpportunityInput) { in.TargetPrice = -1 }},
		{"nan price", func(in *model.OpportunityInput) { in.SourcePrice = math.NaN() }},
		{"negative fees", func(in *model.OpportunityInput) { in.Fees = ptr(-3) }},
		{"confidence above one", func(in *model.OpportunityInput) { in.AIConfidence = 1.5 }},
		{"unknown decision", func(in *model.OpportunityInput) { in.AIDecision = "MAYBE" }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			in := base
			tc.mut(&in)
			_, err := model.NewOpportunity(in, 0.15, "id", t0)
			if !errors.Is(err, model.ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestOpportunity_Recompute(t *testing.T) {
	t.Parallel()

	o := model.Opportunity{SourcePrice: 10, TargetPrice: 30, Fees: 5}
	o.Recompute()
	if !almostEqual(o.EstimatedProfit, 15) || !almostEqual(o.ProfitMargin, 1.5) {
		t.Errorf("unexpected derived fields: profit=%v margin=%v", o.EstimatedProfit, o.ProfitMargin)
	}
}

func TestParseDecision(t *testing.T) {
	t.Parallel()

	got, err := model.ParseDecision(" negotiate ")
	if err != nil || got != model.DecisionNegotiate {
		t.Errorf("expected NEGOTIATE, got %q (%v)", got, err)
	}
	got, err = model.ParseDecision("")
	if err != nil || got != model.DecisionAnalyzing {
		t.Errorf("expected ANALYZING for empty, got %q (%v)", got, err)
	}
}
