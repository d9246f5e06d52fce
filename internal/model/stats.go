package model

import (
	"sort"
	"time"
)

// Purchase records that an operator approved buying an opportunity.
type Purchase struct {
	OpportunityID string    `json:"opportunity_id"`
	ApprovedAt    time.Time `json:"approved_at"`
}

// Stats is the dashboard summary.
type Stats struct {
	TotalOpportunities int     `json:"total_opportunities"`
	TotalPurchases     int     `json:"total_purchases"`
	TotalProfit        float64 `json:"total_profit"`
	AvgMargin          float64 `json:"avg_margin"`
}

// DailyStats covers one UTC calendar day.
type DailyStats struct {
	Date               string  `json:"date"`
	OpportunitiesFound int     `json:"opportunities_found"`
	PurchasesCompleted int     `json:"purchases_completed"`
	TotalProfit        float64 `json:"total_profit"`
	AvgMargin          float64 `json:"avg_margin"`
}

// Performance is the all-time funnel. ConversionRate is a percentage.
type Performance struct {
	TotalOpportunities int     `json:"total_opportunities"`
	TotalPurchases     int     `json:"total_purchases"`
	TotalProfit        float64 `json:"total_profit"`
	ConversionRate     float64 `json:"conversion_rate"`
}

// DateLayout is how DailyStats.Date is rendered.
const DateLayout = "2006-01-02"

// DayBounds returns the UTC day containing t as [start, end).
func DayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// byID returns opps sorted by id. Float sums are order dependent, so the
// aggregates below always add in the same order.
func byID(opps []Opportunity) []Opportunity {
	out := make([]Opportunity, len(opps))
	copy(out, opps)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ComputeStats aggregates opps. purchased holds the ids of approved
// opportunities; TotalProfit only counts those.
func ComputeStats(opps []Opportunity, purchased map[string]bool) Stats {
	var st Stats
	st.TotalOpportunities = len(opps)

	var marginSum float64
	for _, o := range byID(opps) {
		marginSum += o.ProfitMargin
		if purchased[o.ID] {
			st.TotalPurchases++
			st.TotalProfit += o.EstimatedProfit
		}
	}
	if len(opps) > 0 {
		st.AvgMargin = marginSum / float64(len(opps))
	}
	return st
}

// ComputeDailyStats aggregates the UTC day containing day. Opportunities are
// counted by discovery time and purchases by approval time; TotalProfit sums
// the estimated profit of the purchases approved that day.
func ComputeDailyStats(opps []Opportunity, purchases []Purchase, day time.Time) DailyStats {
	start, end := DayBounds(day)
	st := DailyStats{Date: start.Format(DateLayout)}
	in := func(t time.Time) bool { return !t.Before(start) && t.Before(end) }

	approvedToday := make(map[string]bool, len(purchases))
	for _, p := range purchases {
		if in(p.ApprovedAt) {
			approvedToday[p.OpportunityID] = true
		}
	}

	var marginSum float64
	for _, o := range byID(opps) {
		if in(o.DiscoveredAt) {
			st.OpportunitiesFound++
			marginSum += o.ProfitMargin
		}
		if approvedToday[o.ID] {
			st.PurchasesCompleted++
			st.TotalProfit += o.EstimatedProfit
		}
	}
	if st.OpportunitiesFound > 0 {
		st.AvgMargin = marginSum / float64(st.OpportunitiesFound)
	}
	return st
}

// PerformanceFrom derives the funnel from the summary stats.
func PerformanceFrom(st Stats) Performance {
	p := Performance{
		TotalOpportunities: st.TotalOpportunities,
		TotalPurchases:     st.TotalPurchases,
		TotalProfit:        st.TotalProfit,
	}
	if st.TotalOpportunities > 0 {
		p.ConversionRate = float64(st.TotalPurchases) / float64(st.TotalOpportunities) * 100
	}
	return p
}
