package history

import (
	"context"
	"time"

	"github.com/liamcoop/campaignrules/rules"
)

// ActionEvent is one notification produced by a matched rule.
type ActionEvent struct {
	ID          int64        `json:"id"`
	AccountID   string       `json:"accountId"`
	RuleID      string       `json:"ruleId"`
	CampaignID  string       `json:"campaignId"`
	Action      rules.Action `json:"action"`
	Expression  string       `json:"expression"`
	Message     string       `json:"message"`
	TriggeredAt time.Time    `json:"triggeredAt"`
}

// NewActionEvent builds the event for a matched evaluation result.
func NewActionEvent(s *rules.Snapshot, res *rules.EvaluationResult, at time.Time) *ActionEvent {
	return &ActionEvent{
		AccountID:   s.AccountID,
		RuleID:      res.RuleID,
		CampaignID:  s.CampaignID,
		Action:      res.Action,
		Expression:  res.Expression,
		Message:     res.Notification,
		TriggeredAt: at,
	}
}

// Recorder persists snapshots and triggered actions. List calls return the
// newest entries first.
type Recorder interface {
	RecordSnapshot(ctx context.Context, s *rules.Snapshot) error
	RecordAction(ctx context.Context, evt *ActionEvent) error
	Snapshots(ctx context.Context, accountID, campaignID string, limit int) ([]*rules.Snapshot, error)
	Actions(ctx context.Context, accountID string, limit int) ([]*ActionEvent, error)
	PruneSnapshots(ctx context.Context, before time.Time) (int64, error)
	// DeleteAccount drops every snapshot and action recorded for accountID.
	DeleteAccount(ctx context.Context, accountID string) error
	Close() error
}

// DefaultListLimit applies when a caller asks for zero or a negative number of entries.
const DefaultListLimit = 100

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
