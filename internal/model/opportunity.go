package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Decision is the recommendation attached to an opportunity.
type Decision string

const (
	DecisionPurchase     Decision = "PURCHASE"
	DecisionNegotiate    Decision = "NEGOTIATE"
	DecisionSkip         Decision = "SKIP"
	DecisionAuthenticate Decision = "AUTHENTICATE"
	DecisionAnalyzing    Decision = "ANALYZING"
)

// DefaultCategory is used for opportunities recorded without a category.
const DefaultCategory = "other"

// ParseDecision accepts a decision in any case. An empty string means the
// decision is still pending and maps to ANALYZING.
func ParseDecision(s string) (Decision, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DecisionAnalyzing, nil
	}
	switch d := Decision(s); d {
	case DecisionPurchase, DecisionNegotiate, DecisionSkip, DecisionAuthenticate, DecisionAnalyzing:
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown ai_decision %q", ErrInvalidArgument, s)
}

// Opportunity is a discovered item that can be bought on one marketplace and
// resold on another.
type Opportunity struct {
	ID                string    `json:"id"`
	ProductTitle      string    `json:"product_title"`
	SourceMarketplace string    `json:"source_marketplace"`
	TargetMarketplace string    `json:"target_marketplace,omitempty"`
	Category          string    `json:"category"`
	SourceURL         string    `json:"source_url,omitempty"`
	SourcePrice       float64   `json:"source_price"`
	TargetPrice       float64   `json:"target_price"`
	Fees              float64   `json:"fees"`
	EstimatedProfit   float64   `json:"estimated_profit"`
	ProfitMargin      float64   `json:"profit_margin"`
	AIDecision        Decision  `json:"ai_decision"`
	AIConfidence      float64   `json:"ai_confidence"`
	DiscoveredAt      time.Time `json:"discovered_at"`
}

// OpportunityInput is what a worker reports for a newly found item. Fees is
// optional; when nil the configured fee rate is applied to TargetPrice.
type OpportunityInput struct {
	ProductTitle      string   `json:"product_title"`
	SourceMarketplace string   `json:"source_marketplace"`
	TargetMarketplace string   `json:"target_marketplace,omitempty"`
	Category          string   `json:"category"`
	SourceURL         string   `json:"source_url,omitempty"`
	SourcePrice       float64  `json:"source_price"`
	TargetPrice       float64  `json:"target_price"`
	Fees              *float64 `json:"fees,omitempty"`
	AIDecision        string   `json:"ai_decision"`
	AIConfidence      float64  `json:"ai_confidence"`
}

// NewOpportunity validates in and builds a complete record with derived
// fields filled in. id and now are supplied by the caller so that stores and
// tests control identity and time.
func NewOpportunity(in OpportunityInput, feeRate float64, id string, now time.Time) (Opportunity, error) {
	if strings.TrimSpace(id) == "" {
		return Opportunity{}, fmt.Errorf("%w: id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(in.ProductTitle) == "" {
		return Opportunity{}, fmt.Errorf("%w: product_title is required", ErrInvalidArgument)
	}
	if err := checkAmount("source_price", in.SourcePrice); err != nil {
		return Opportunity{}, err
	}
	if err := checkAmount("target_price", in.TargetPrice); err != nil {
		return Opportunity{}, err
	}
	if math.IsNaN(in.AIConfidence) || in.AIConfidence < 0 || in.AIConfidence > 1 {
		return Opportunity{}, fmt.Errorf("%w: ai_confidence must be within [0,1]", ErrInvalidArgument)
	}
	decision, err := ParseDecision(in.AIDecision)
	if err != nil {
		return Opportunity{}, err
	}

	var fees float64
	if in.Fees != nil {
		fees = *in.Fees
	} else {
		if err := checkAmount("fee rate", feeRate); err != nil {
			return Opportunity{}, err
		}
		fees = in.TargetPrice * feeRate
	}
	if err := checkAmount("fees", fees); err != nil {
		return Opportunity{}, err
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = DefaultCategory
	}

	o := Opportunity{
		ID:                id,
		ProductTitle:      strings.TrimSpace(in.ProductTitle),
		SourceMarketplace: strings.TrimSpace(in.SourceMarketplace),
		TargetMarketplace: strings.TrimSpace(in.TargetMarketplace),
		Category:          category,
		SourceURL:         strings.TrimSpace(in.SourceURL),
		SourcePrice:       in.SourcePrice,
		TargetPrice:       in.TargetPrice,
		Fees:              fees,
		AIDecision:        decision,
		AIConfidence:      in.AIConfidence,
		DiscoveredAt:      now.UTC(),
	}
	o.Recompute()
	return o, nil
}

// Recompute refreshes EstimatedProfit and ProfitMargin from the prices and
// fees. It is the only place derived fields are calculated.
func (o *Opportunity) Recompute() {
	o.EstimatedProfit = o.TargetPrice - o.SourcePrice - o.Fees
	if o.SourcePrice == 0 {
		o.ProfitMargin = 0
		return
	}
	o.ProfitMargin = o.EstimatedProfit / o.SourcePrice
}

func checkAmount(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidArgument, name)
	}
	return nil
}
