package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/liamcoop/campaignrules/internal/logger"
	"github.com/liamcoop/campaignrules/rules"
)

const snapshotColumns = `account_id, campaign_id, name, objective, status, effective_status,
	configured_status, buying_type, spend, roas, ctr, captured_at`

// PostgresRecorder persists history to the campaign_snapshots and action_events tables.
type PostgresRecorder struct {
	db *sql.DB
}

// NewPostgresRecorder uses an already migrated database. The caller owns db.
func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) RecordSnapshot(ctx context.Context, s *rules.Snapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_snapshots (`+snapshotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, s.AccountID, s.CampaignID, s.Name, s.Objective, s.Status, s.EffectiveStatus,
		s.ConfiguredStatus, s.BuyingType, s.Spend, s.ROAS, s.CTR, s.CapturedAt)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) RecordAction(ctx context.Context, evt *ActionEvent) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO action_events (account_id, rule_id, campaign_id, action, expression, message, triggered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, evt.AccountID, evt.RuleID, evt.CampaignID, string(evt.Action), evt.Expression,
		evt.Message, evt.TriggeredAt).Scan(&evt.ID)
	if err != nil {
		return fmt.Errorf("failed to insert action event: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) Snapshots(ctx context.Context, accountID, campaignID string, limit int) ([]*rules.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM campaign_snapshots
		WHERE account_id = $1 AND campaign_id = $2
		ORDER BY captured_at DESC, id DESC
		LIMIT $3
	`, accountID, campaignID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*rules.Snapshot
	for rows.Next() {
		var s rules.Snapshot
		if err := rows.Scan(&s.AccountID, &s.CampaignID, &s.Name, &s.Objective, &s.Status,
			&s.EffectiveStatus, &s.ConfiguredStatus, &s.BuyingType, &s.Spend, &s.ROAS, &s.CTR,
			&s.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return out, nil
}

func (r *PostgresRecorder) Actions(ctx context.Context, accountID string, limit int) ([]*ActionEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, rule_id, campaign_id, action, expression, message, triggered_at
		FROM action_events
		WHERE account_id = $1
		ORDER BY triggered_at DESC, id DESC
		LIMIT $2
	`, accountID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list action events: %w", err)
	}
	defer rows.Close()

	var out []*ActionEvent
	for rows.Next() {
		var evt ActionEvent
		var action string
		if err := rows.Scan(&evt.ID, &evt.AccountID, &evt.RuleID, &evt.CampaignID, &action,
			&evt.Expression, &evt.Message, &evt.TriggeredAt); err != nil {
			return nil, fmt.Errorf("failed to scan action event: %w", err)
		}
		evt.Action = rules.Action(action)
		out = append(out, &evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating action events: %w", err)
	}
	return out, nil
}

func (r *PostgresRecorder) PruneSnapshots(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM campaign_snapshots WHERE captured_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// DeleteAccount is normally a no-op after the accounts row is gone, since both
// tables cascade on it.
func (r *PostgresRecorder) DeleteAccount(ctx context.Context, accountID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM campaign_snapshots WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM action_events WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("failed to delete action events: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) Close() error {
	logger.Info("Closing postgres recorder")
	return nil
}
