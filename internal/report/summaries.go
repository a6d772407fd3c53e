package report

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/droverhq/drover/internal/ir"
	"github.com/droverhq/drover/internal/monitor"
	"github.com/droverhq/drover/internal/revenue"
	"github.com/droverhq/drover/internal/store"
)

// Health renders a monitor summary. Probe values are reported in
// hundredths so the document stays float-free.
func Health(summary monitor.Summary) ir.Object {
	probes := make(ir.Array, len(summary.Probes))
	for i, p := range summary.Probes {
		probes[i] = ir.Object{
			"probe":            ir.String(p.Probe),
			"value_hundredths": ir.Int(int64(math.Round(p.Value * 100))),
			"level":            ir.String(p.Level),
			"seq":              ir.Int(p.Seq),
		}
	}
	return ir.Object{
		"report":      ir.String("health"),
		"probes":      probes,
		"worst_level": ir.String(summary.WorstLevel),
		"alerts":      ir.Int(summary.Alerts),
	}
}

// Revenue renders a tracking report.
func Revenue(rep revenue.Report) ir.Object {
	platforms := make(ir.Array, len(rep.Platforms))
	for i, p := range rep.Platforms {
		platforms[i] = ir.Object{
			"platform":       ir.String(p.Platform),
			"category":       ir.String(p.Category),
			"target_cents":   ir.Int(p.TargetCents),
			"recorded_cents": ir.Int(p.RecordedCents),
			"percent":        ir.Int(p.Percent),
			"status":         ir.String(p.Status),
		}
	}
	return ir.Object{
		"report":               ir.String("revenue"),
		"platforms":            platforms,
		"total_target_cents":   ir.Int(rep.TotalTargetCents),
		"total_recorded_cents": ir.Int(rep.TotalRecordedCents),
		"overall_percent":      ir.Int(rep.OverallPercent),
	}
}

// Betting aggregates the bet ledger per platform from sinceSeq on.
func Betting(ctx context.Context, st *store.Store, sinceSeq int64) (ir.Object, error) {
	bets, err := st.ListBets(ctx, "", sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("betting report: %w", err)
	}

	type agg struct {
		placed, won, lost int64
		staked, payout    int64
	}
	byPlatform := map[string]*agg{}
	for _, b := range bets {
		a := byPlatform[b.Platform]
		if a == nil {
			a = &agg{}
			byPlatform[b.Platform] = a
		}
		a.placed++
		a.staked += b.StakeCents
		a.payout += b.PayoutCents
		switch b.Status {
		case store.BetWon:
			a.won++
		case store.BetLost:
			a.lost++
		}
	}

	names := make([]string, 0, len(byPlatform))
	for name := range byPlatform {
		names = append(names, name)
	}
	sort.Strings(names)

	platforms := make(ir.Array, 0, len(names))
	var total agg
	for _, name := range names {
		a := byPlatform[name]
		total.placed += a.placed
		total.won += a.won
		total.lost += a.lost
		total.staked += a.staked
		total.payout += a.payout
		platforms = append(platforms, ir.Object{
			"platform":     ir.String(name),
			"placed":       ir.Int(a.placed),
			"won":          ir.Int(a.won),
			"lost":         ir.Int(a.lost),
			"staked_cents": ir.Int(a.staked),
			"payout_cents": ir.Int(a.payout),
			"net_cents":    ir.Int(a.payout - a.staked),
		})
	}

	return ir.Object{
		"report":       ir.String("betting"),
		"platforms":    platforms,
		"placed":       ir.Int(total.placed),
		"won":          ir.Int(total.won),
		"lost":         ir.Int(total.lost),
		"staked_cents": ir.Int(total.staked),
		"payout_cents": ir.Int(total.payout),
		"net_cents":    ir.Int(total.payout - total.staked),
	}, nil
}
