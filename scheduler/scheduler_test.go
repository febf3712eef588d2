package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/liamcoop/campaignrules/history"
	"github.com/liamcoop/campaignrules/rules"
)

func TestPruneNow(t *testing.T) {
	ctx := context.Background()
	rec := history.NewMemoryRecorder(0, 0)
	now := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	for _, day := range []int{1, 10, 25, 29} {
		s := &rules.Snapshot{
			AccountID:  "act_1",
			CampaignID: "120210",
			CapturedAt: time.Date(2025, 6, day, 0, 0, 0, 0, time.UTC),
		}
		if err := rec.RecordSnapshot(ctx, s); err != nil {
			t.Fatalf("RecordSnapshot failed: %v", err)
		}
	}

	sched := NewScheduler(ctx, rec, 7*24*time.Hour, nil)
	sched.now = func() time.Time { return now }

	n, err := sched.PruneNow()
	if err != nil {
		t.Fatalf("PruneNow failed: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}

	left, _ := rec.Snapshots(ctx, "act_1", "120210", 0)
	if len(left) != 2 {
		t.Fatalf("left %d snapshots, want 2", len(left))
	}
	if left[1].CapturedAt.Day() != 25 {
		t.Errorf("oldest kept snapshot = %s", left[1].CapturedAt)
	}
}

func TestRegisterAll(t *testing.T) {
	rec := history.NewMemoryRecorder(0, 0)
	stats := func() []any { return []any{"queued", 0} }

	tests := []struct {
		name      string
		retention time.Duration
		pruneSpec string
		statsSpec string
		wantJobs  int
		wantErr   bool
	}{
		{"both jobs", 24 * time.Hour, "0 0 3 * * *", "0 */5 * * * *", 2, false},
		{"retention only", 24 * time.Hour, "0 0 3 * * *", "", 1, false},
		{"nothing", 24 * time.Hour, "", "", 0, false},
		{"bad spec", 24 * time.Hour, "every night", "", 0, true},
		{"zero retention", 0, "0 0 3 * * *", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := NewScheduler(context.Background(), rec, tt.retention, stats)
			err := sched.RegisterAll(tt.pruneSpec, tt.statsSpec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RegisterAll error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := len(sched.Cron.Entries()); got != tt.wantJobs {
				t.Errorf("jobs = %d, want %d", got, tt.wantJobs)
			}
		})
	}
}

func TestStartStop(t *testing.T) {
	sched := NewScheduler(context.Background(), history.NewMemoryRecorder(0, 0), time.Hour, nil)
	if err := sched.RegisterAll("0 0 3 * * *", ""); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}
	sched.Start()
	sched.Stop()
}
