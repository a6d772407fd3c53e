package betting

import (
	"fmt"
	"math/rand/v2"
)

// Opportunity is one market the analyzer surfaced.
type Opportunity struct {
	Platform   string
	Market     string
	Selection  string
	Odds       int64 // hundredths; 215 means 2.15
	Confidence int64 // hundredths; 75 means 0.75
}

// Odds and confidence generation bounds.
const (
	minOdds       = 150 // 1.50
	maxOdds       = 350 // 3.50
	minConfidence = 60  // 0.60
	maxConfidence = 90  // 0.90
)

// Analyzer produces seeded market opportunities.
type Analyzer struct {
	rng *rand.Rand
}

// NewAnalyzer creates an analyzer; the same seed yields the same
// opportunity stream.
func NewAnalyzer(seed int64) *Analyzer {
	return &Analyzer{rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))}
}

// Opportunities generates n markets spread across the platforms.
func (a *Analyzer) Opportunities(n int, platforms []string) []Opportunity {
	if n <= 0 || len(platforms) == 0 {
		return nil
	}

	opps := make([]Opportunity, 0, n)
	for i := range n {
		platform := platforms[a.rng.IntN(len(platforms))]
		opps = append(opps, Opportunity{
			Platform:   platform,
			Market:     fmt.Sprintf("match-%04d", i),
			Selection:  pick(a.rng, "home", "draw", "away"),
			Odds:       minOdds + a.rng.Int64N(maxOdds-minOdds+1),
			Confidence: minConfidence + a.rng.Int64N(maxConfidence-minConfidence+1),
		})
	}
	return opps
}

func pick(rng *rand.Rand, options ...string) string {
	return options[rng.IntN(len(options))]
}
