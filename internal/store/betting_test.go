package store

import (
	"context"
	"testing"
)

func TestSettleBet_PlacedOnly(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	bet := Bet{
		ID:             "bet-1",
		Platform:       "alpha",
		Market:         "match-42",
		Selection:      "home",
		OddsHundredths: 215,
		StakeCents:     1000,
		Status:         BetPlaced,
		CreatedSeq:     1,
	}
	if err := s.WriteBet(ctx, bet); err != nil {
		t.Fatalf("WriteBet() failed: %v", err)
	}

	ok, err := s.SettleBet(ctx, "bet-1", BetWon, 2150, 2)
	if err != nil {
		t.Fatalf("SettleBet() failed: %v", err)
	}
	if !ok {
		t.Fatal("placed bet should settle")
	}

	// Settling again is a no-op
	ok, err = s.SettleBet(ctx, "bet-1", BetLost, 0, 3)
	if err != nil {
		t.Fatalf("second SettleBet() failed: %v", err)
	}
	if ok {
		t.Error("settled bet must not settle again")
	}

	bets, err := s.ListBets(ctx, "alpha", 0)
	if err != nil {
		t.Fatalf("ListBets() failed: %v", err)
	}
	if len(bets) != 1 {
		t.Fatalf("got %d bets, want 1", len(bets))
	}
	if bets[0].Status != BetWon || bets[0].PayoutCents != 2150 || bets[0].SettledSeq != 2 {
		t.Errorf("got %+v, want won with payout 2150 at seq 2", bets[0])
	}
}

func TestSettleBet_InvalidStatus(t *testing.T) {
	s := createTestStore(t)

	if _, err := s.SettleBet(context.Background(), "bet-1", "pending", 0, 1); err == nil {
		t.Error("expected error for invalid settle status, got nil")
	}
}

func TestStakedToday_SumsFromDaySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, bet := range []Bet{
		{ID: "b1", Platform: "alpha", Market: "m", Selection: "x", OddsHundredths: 150, StakeCents: 500, Status: BetPlaced, CreatedSeq: 1},
		{ID: "b2", Platform: "alpha", Market: "m", Selection: "y", OddsHundredths: 150, StakeCents: 700, Status: BetPlaced, CreatedSeq: 5},
		{ID: "b3", Platform: "beta", Market: "m", Selection: "z", OddsHundredths: 150, StakeCents: 900, Status: BetPlaced, CreatedSeq: 6},
	} {
		if err := s.WriteBet(ctx, bet); err != nil {
			t.Fatalf("WriteBet(%s) failed: %v", bet.ID, err)
		}
	}

	// Day boundary at seq 5 excludes b1 and other platforms
	total, err := s.StakedToday(ctx, "alpha", 5)
	if err != nil {
		t.Fatalf("StakedToday() failed: %v", err)
	}
	if total != 700 {
		t.Errorf("StakedToday() = %d, want 700", total)
	}
}

func TestUpsertPlatform_Updates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	p := Platform{Name: "alpha", Category: "betting", TargetCents: 100_00, Enabled: true}
	if err := s.UpsertPlatform(ctx, p); err != nil {
		t.Fatalf("UpsertPlatform() failed: %v", err)
	}

	p.TargetCents = 250_00
	p.Enabled = false
	if err := s.UpsertPlatform(ctx, p); err != nil {
		t.Fatalf("second UpsertPlatform() failed: %v", err)
	}

	got, err := s.ReadPlatform(ctx, "alpha")
	if err != nil {
		t.Fatalf("ReadPlatform() failed: %v", err)
	}
	if got.TargetCents != 250_00 || got.Enabled {
		t.Errorf("got %+v, want updated target and disabled", got)
	}

	platforms, err := s.ListPlatforms(ctx)
	if err != nil {
		t.Fatalf("ListPlatforms() failed: %v", err)
	}
	if len(platforms) != 1 {
		t.Errorf("got %d platforms, want 1 (upsert must not duplicate)", len(platforms))
	}
}
