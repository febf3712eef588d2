package history

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liamcoop/campaignrules/rules"
)

var base = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func snap(campaignID string, hour int, spend string) *rules.Snapshot {
	return &rules.Snapshot{
		AccountID:  "act_1",
		CampaignID: campaignID,
		Spend:      decimal.RequireFromString(spend),
		ROAS:       decimal.NewFromInt(2),
		CTR:        decimal.RequireFromString("0.01"),
		CapturedAt: base.Add(time.Duration(hour) * time.Hour),
	}
}

func TestMemoryRecorderSnapshotsNewestFirst(t *testing.T) {
	ctx := context.Background()
	rec := NewMemoryRecorder(0, 0)

	// recorded out of order on purpose
	for _, s := range []*rules.Snapshot{snap("c1", 2, "20"), snap("c1", 1, "10"), snap("c1", 3, "30"), snap("c2", 1, "99")} {
		if err := rec.RecordSnapshot(ctx, s); err != nil {
			t.Fatalf("RecordSnapshot failed: %v", err)
		}
	}

	got, err := rec.Snapshots(ctx, "act_1", "c1", 0)
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(got))
	}
	for i, want := range []string{"30", "20", "10"} {
		if !got[i].Spend.Equal(decimal.RequireFromString(want)) {
			t.Errorf("snapshot %d spend = %s, want %s", i, got[i].Spend, want)
		}
	}

	limited, _ := rec.Snapshots(ctx, "act_1", "c1", 2)
	if len(limited) != 2 || !limited[0].Spend.Equal(decimal.NewFromInt(30)) {
		t.Errorf("limited snapshots = %v", limited)
	}

	none, _ := rec.Snapshots(ctx, "act_2", "c1", 10)
	if len(none) != 0 {
		t.Errorf("other account leaked snapshots: %v", none)
	}
}

func TestMemoryRecorderCapacity(t *testing.T) {
	ctx := context.Background()
	rec := NewMemoryRecorder(2, 2)

	for h := 1; h <= 4; h++ {
		_ = rec.RecordSnapshot(ctx, snap("c1", h, "1"))
		_ = rec.RecordAction(ctx, &ActionEvent{AccountID: "act_1", RuleID: "r1", TriggeredAt: base.Add(time.Duration(h) * time.Hour)})
	}

	snaps, _ := rec.Snapshots(ctx, "act_1", "c1", 10)
	if len(snaps) != 2 || !snaps[1].CapturedAt.Equal(base.Add(3*time.Hour)) {
		t.Errorf("capacity not enforced on snapshots: %v", snaps)
	}

	actions, _ := rec.Actions(ctx, "act_1", 10)
	if len(actions) != 2 || actions[0].ID != 4 || actions[1].ID != 3 {
		t.Errorf("capacity not enforced on actions: %+v", actions)
	}
}

func TestMemoryRecorderPrune(t *testing.T) {
	ctx := context.Background()
	rec := NewMemoryRecorder(0, 0)

	for h := 1; h <= 5; h++ {
		_ = rec.RecordSnapshot(ctx, snap("c1", h, "1"))
	}
	_ = rec.RecordSnapshot(ctx, snap("c2", 1, "1"))

	pruned, err := rec.PruneSnapshots(ctx, base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("PruneSnapshots failed: %v", err)
	}
	if pruned != 3 {
		t.Errorf("pruned %d snapshots, want 3", pruned)
	}

	left, _ := rec.Snapshots(ctx, "act_1", "c1", 0)
	if len(left) != 3 {
		t.Errorf("%d snapshots left for c1, want 3", len(left))
	}
	gone, _ := rec.Snapshots(ctx, "act_1", "c2", 0)
	if len(gone) != 0 {
		t.Errorf("c2 should be empty, got %v", gone)
	}
}

func TestMemoryRecorderDeleteAccount(t *testing.T) {
	ctx := context.Background()
	rec := NewMemoryRecorder(0, 0)

	other := snap("c1", 1, "5")
	other.AccountID = "act_10"
	for _, s := range []*rules.Snapshot{snap("c1", 1, "1"), snap("c2", 1, "2"), other} {
		_ = rec.RecordSnapshot(ctx, s)
	}
	_ = rec.RecordAction(ctx, &ActionEvent{AccountID: "act_1", CampaignID: "c1"})
	_ = rec.RecordAction(ctx, &ActionEvent{AccountID: "act_10", CampaignID: "c1"})

	if err := rec.DeleteAccount(ctx, "act_1"); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}

	for _, campaignID := range []string{"c1", "c2"} {
		if got, _ := rec.Snapshots(ctx, "act_1", campaignID, 0); len(got) != 0 {
			t.Errorf("%s still has %d snapshots", campaignID, len(got))
		}
	}
	if got, _ := rec.Actions(ctx, "act_1", 0); len(got) != 0 {
		t.Errorf("act_1 still has %d actions", len(got))
	}

	// act_10 shares the act_1 prefix but is a different account
	if got, _ := rec.Snapshots(ctx, "act_10", "c1", 0); len(got) != 1 {
		t.Errorf("act_10 snapshots = %d, want 1", len(got))
	}
	if got, _ := rec.Actions(ctx, "act_10", 0); len(got) != 1 {
		t.Errorf("act_10 actions = %d, want 1", len(got))
	}
}

func TestNewActionEvent(t *testing.T) {
	s := snap("c1", 1, "600")
	res := &rules.EvaluationResult{
		RuleID:       "r1",
		Action:       rules.ActionPauseCampaigns,
		Expression:   "Spend > $500",
		Matched:      true,
		Notification: rules.Notification(rules.ActionPauseCampaigns, "Spend > $500"),
	}

	evt := NewActionEvent(s, res, base)
	if evt.AccountID != "act_1" || evt.CampaignID != "c1" || evt.RuleID != "r1" {
		t.Errorf("unexpected event: %+v", evt)
	}
	if evt.Message != `Action taken: Pausing campaigns because of rule: "Spend > $500"` {
		t.Errorf("Message = %q", evt.Message)
	}
}
