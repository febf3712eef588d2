package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liamcoop/campaignrules/rules"
)

// CampaignRecord is a campaign insight row as the ads sync job publishes it.
// Field names follow the upstream payload, so it carries both snake_case
// and upper-case keys.
type CampaignRecord struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Objective        string          `json:"objective"`
	Status           string          `json:"status"`
	EffectiveStatus  string          `json:"effective_status"`
	ConfiguredStatus string          `json:"configured_status"`
	BuyingType       string          `json:"buying_type"`
	SourceCampaignID string          `json:"source_campaign_id,omitempty"`
	AccountID        string          `json:"account_id"`
	StartTime        string          `json:"start_time,omitempty"`
	CreatedTime      string          `json:"created_time,omitempty"`
	UpdatedTime      string          `json:"updated_time,omitempty"`
	Spend            decimal.Decimal `json:"spend"`
	ROAS             decimal.Decimal `json:"ROAS"`
	CTR              decimal.Decimal `json:"CTR"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Snapshot converts the record. A missing timestamp is filled with now.
func (r *CampaignRecord) Snapshot(now time.Time) *rules.Snapshot {
	capturedAt := r.Timestamp
	if capturedAt.IsZero() {
		capturedAt = now
	}
	return &rules.Snapshot{
		CampaignID:       r.ID,
		AccountID:        r.AccountID,
		Name:             r.Name,
		Objective:        r.Objective,
		Status:           r.Status,
		EffectiveStatus:  r.EffectiveStatus,
		ConfiguredStatus: r.ConfiguredStatus,
		BuyingType:       r.BuyingType,
		Spend:            r.Spend,
		ROAS:             r.ROAS,
		CTR:              r.CTR,
		CapturedAt:       capturedAt.UTC(),
	}
}

// DecodeRecord parses and validates one record payload.
func DecodeRecord(data []byte, now time.Time) (*rules.Snapshot, error) {
	var rec CampaignRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode campaign record: %w", err)
	}
	if rec.AccountID == "" {
		return nil, fmt.Errorf("campaign record %q has no account_id", rec.ID)
	}

	s := rec.Snapshot(now)
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid campaign record %q: %w", rec.ID, err)
	}
	return s, nil
}
