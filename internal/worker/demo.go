package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"

	"github.com/raysh454/flipradar/internal/model"
)

// catalog maps a category to the search terms a listing title is drawn from.
var catalog = map[string][]string{
	"books":               {"College Textbook", "Hardcover First Edition", "Rare Book", "Organic Chemistry 8th Edition"},
	"trading cards":       {"Pokemon Booster Box", "PSA 9 Charizard", "Magic the Gathering Lot", "Sealed Baseball Cards"},
	"video games":         {"Nintendo Switch OLED", "PS5 Game Bundle", "Retro Gameboy", "Sealed Xbox Game"},
	"musical instruments": {"Fender Stratocaster", "MIDI Controller", "Audio Interface", "Analog Synthesizer"},
	"lego":                {"LEGO Star Wars UCS", "LEGO Technic Set", "LEGO Creator Expert", "Retired LEGO Architecture"},
	"sporting goods":      {"Golf Club Set", "Road Bike", "Kayak", "Camping Gear Lot"},
	"baby equipment":      {"Jogging Stroller", "Convertible Car Seat", "Baby Monitor", "Baby Carrier"},
	"electronics":         {"MacBook Pro M2", "iPad Air", "Sony WH-1000XM5", "Apple Watch"},
	"photography":         {"Canon EOS Body", "Nikon Prime Lens", "Carbon Tripod", "DJI Drone"},
	"tools":               {"DeWalt Drill Kit", "Milwaukee Impact Driver", "Air Compressor", "Mechanic Tool Set"},
}

// Listing viability thresholds: a listing is worth buying when it clears
// both a margin on resale price and an absolute profit.
const (
	viableMargin = 0.20
	viableProfit = 10.0
)

// DemoScanner fabricates plausible listings without touching a marketplace.
// Output is a pure function of the job id and category, so a job rescanned
// after a restart yields the same listings.
type DemoScanner struct {
	Categories   []string
	Marketplaces []string
	FeeRate      float64
	// MaxListings bounds how many listings one job yields (at least 1).
	MaxListings int
}

func NewDemoScanner(categories, marketplaces []string, feeRate float64) *DemoScanner {
	return &DemoScanner{
		Categories:   categories,
		Marketplaces: marketplaces,
		FeeRate:      feeRate,
		MaxListings:  3,
	}
}

func (d *DemoScanner) Scan(ctx context.Context, job model.ScanJob) ([]model.OpportunityInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(d.Marketplaces) == 0 {
		return nil, fmt.Errorf("%w: no marketplaces configured", model.ErrInvalidArgument)
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(job.ID))
	_, _ = h.Write([]byte(job.Category))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	limit := d.MaxListings
	if limit < 1 {
		limit = 1
	}
	n := 1 + rng.Intn(limit)
	out := make([]model.OpportunityInput, 0, n)
	for i := 0; i < n; i++ {
		category := job.Category
		if category == model.AllCategories || category == "" {
			if len(d.Categories) == 0 {
				return nil, fmt.Errorf("%w: no categories configured", model.ErrInvalidArgument)
			}
			category = d.Categories[rng.Intn(len(d.Categories))]
		}
		out = append(out, d.listing(rng, category))
	}
	return out, nil
}

func (d *DemoScanner) listing(rng *rand.Rand, category string) model.OpportunityInput {
	terms, ok := catalog[strings.ToLower(category)]
	if !ok {
		terms = []string{category}
	}
	title := terms[rng.Intn(len(terms))]

	source := round2(20 + rng.Float64()*480)
	target := round2(source * (1.2 + rng.Float64()*1.8))
	fees := round2(target * d.FeeRate)
	confidence := round2(0.7 + rng.Float64()*0.28)

	src := d.Marketplaces[rng.Intn(len(d.Marketplaces))]
	dst := "eBay"
	if src == dst {
		dst = "Amazon"
	}

	return model.OpportunityInput{
		ProductTitle:      title,
		SourceMarketplace: src,
		TargetMarketplace: dst,
		Category:          category,
		SourceURL:         fmt.Sprintf("https://example.com/%s/%d", slug(src), rng.Int63()),
		SourcePrice:       source,
		TargetPrice:       target,
		Fees:              &fees,
		AIDecision:        string(decide(category, source, target, fees, confidence)),
		AIConfidence:      confidence,
	}
}

// decide applies the buy rules: collectibles go to authentication first,
// viable listings are bought outright when confidence is high and
// negotiated otherwise.
func decide(category string, source, target, fees, confidence float64) model.Decision {
	profit := target - source - fees
	margin := 0.0
	if target > 0 {
		margin = profit / target
	}
	switch {
	case margin < viableMargin || profit < viableProfit:
		return model.DecisionSkip
	case strings.EqualFold(category, "trading cards"):
		return model.DecisionAuthenticate
	case confidence >= 0.85:
		return model.DecisionPurchase
	default:
		return model.DecisionNegotiate
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "-")
}
