package betting

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/droverhq/drover/internal/store"
)

// bookMarginPct shaves the implied probability the way a bookmaker's
// overround does, keeping the simulation honestly negative-EV.
const bookMarginPct = 5

// Sequencer hands out logical sequence numbers for ledger writes.
type Sequencer interface {
	Next() int64
}

// CycleConfig configures one simulation cycle.
type CycleConfig struct {
	Platforms     []string
	Opportunities int
	Bankroll      int64 // cents
	DaySeq        int64 // sequence horizon counting as "today" for the stake cap
}

// CycleSummary is the outcome of one cycle.
type CycleSummary struct {
	Placed   int   `json:"placed"`
	Won      int   `json:"won"`
	Lost     int   `json:"lost"`
	Skipped  int   `json:"skipped"`
	Staked   int64 `json:"staked_cents"`
	Payout   int64 `json:"payout_cents"`
	Net      int64 `json:"net_cents"`
	Bankroll int64 `json:"bankroll_after_cents"`
}

// Simulator runs betting cycles against the ledger.
type Simulator struct {
	store    *store.Store
	analyzer *Analyzer
	policy   Policy
	seq      Sequencer
	rng      *rand.Rand
	log      *slog.Logger
}

// NewSimulator creates a seeded simulator. The same seed against the
// same ledger state produces the same cycle.
func NewSimulator(st *store.Store, seed int64, policy Policy, seq Sequencer, log *slog.Logger) *Simulator {
	if log == nil {
		log = slog.Default()
	}
	return &Simulator{
		store:    st,
		analyzer: NewAnalyzer(seed),
		policy:   policy.normalized(),
		seq:      seq,
		rng:      rand.New(rand.NewPCG(uint64(seed)^0xda942042e4dd58b5, uint64(seed))),
		log:      log,
	}
}

// RunCycle analyzes opportunities, places the stakes the policy
// allows, settles them and returns the cycle summary.
func (s *Simulator) RunCycle(ctx context.Context, cfg CycleConfig) (CycleSummary, error) {
	if cfg.Bankroll <= 0 {
		return CycleSummary{}, fmt.Errorf("betting cycle: bankroll must be positive")
	}
	if len(cfg.Platforms) == 0 {
		return CycleSummary{}, fmt.Errorf("betting cycle: no platforms")
	}

	summary := CycleSummary{Bankroll: cfg.Bankroll}
	opps := s.analyzer.Opportunities(cfg.Opportunities, cfg.Platforms)

	stakedToday := make(map[string]int64, len(cfg.Platforms))
	for _, platform := range cfg.Platforms {
		prior, err := s.store.StakedToday(ctx, platform, cfg.DaySeq)
		if err != nil {
			return CycleSummary{}, err
		}
		stakedToday[platform] = prior
	}

	for _, opp := range opps {
		if !s.policy.accepts(opp) {
			summary.Skipped++
			continue
		}
		if s.policy.dayDone(stakedToday[opp.Platform], summary.Net) {
			summary.Skipped++
			continue
		}

		stake := s.policy.stake(summary.Bankroll)
		if stake <= 0 {
			summary.Skipped++
			continue
		}

		bet := store.Bet{
			ID:             uuid.NewString(),
			Platform:       opp.Platform,
			Market:         opp.Market,
			Selection:      opp.Selection,
			OddsHundredths: opp.Odds,
			StakeCents:     stake,
			Status:         store.BetPlaced,
			CreatedSeq:     s.seq.Next(),
		}
		if err := s.store.WriteBet(ctx, bet); err != nil {
			return CycleSummary{}, err
		}
		summary.Placed++
		summary.Staked += stake
		summary.Bankroll -= stake
		stakedToday[opp.Platform] += stake

		payout, won, err := s.settle(ctx, bet)
		if err != nil {
			return CycleSummary{}, err
		}
		if won {
			summary.Won++
			summary.Payout += payout
			summary.Bankroll += payout
		} else {
			summary.Lost++
		}
		summary.Net = summary.Payout - summary.Staked
	}

	s.log.Info("betting cycle complete",
		"placed", summary.Placed, "won", summary.Won, "lost", summary.Lost,
		"net_cents", summary.Net, "bankroll_cents", summary.Bankroll)
	return summary, nil
}

// settle resolves one bet. The win probability is the implied
// probability of the odds reduced by the book margin, in basis
// points: implied_bp = 1_000_000 / odds_hundredths.
func (s *Simulator) settle(ctx context.Context, bet store.Bet) (payout int64, won bool, err error) {
	impliedBP := 1_000_000 / bet.OddsHundredths
	winBP := impliedBP * (100 - bookMarginPct) / 100

	won = s.rng.Int64N(10_000) < winBP
	status := store.BetLost
	if won {
		status = store.BetWon
		payout = bet.StakeCents * bet.OddsHundredths / 100
	}

	settled, err := s.store.SettleBet(ctx, bet.ID, status, payout, s.seq.Next())
	if err != nil {
		return 0, false, err
	}
	if !settled {
		return 0, false, fmt.Errorf("settle bet %s: not in placed state", bet.ID)
	}
	return payout, won, nil
}
