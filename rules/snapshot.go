package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Metric is one of the snapshot fields a rule may reference by name.
type Metric int

const (
	MetricUnknown Metric = iota
	MetricSpend
	MetricROAS
	MetricCTR
	MetricCampaignID
)

var metricNames = map[string]Metric{
	"spend":      MetricSpend,
	"roas":       MetricROAS,
	"ctr":        MetricCTR,
	"campaignid": MetricCampaignID,
}

// LookupMetric resolves a rule identifier, ignoring case.
func LookupMetric(name string) (Metric, bool) {
	m, ok := metricNames[strings.ToLower(name)]
	return m, ok
}

func (m Metric) String() string {
	switch m {
	case MetricSpend:
		return "Spend"
	case MetricROAS:
		return "ROAS"
	case MetricCTR:
		return "CTR"
	case MetricCampaignID:
		return "CampaignID"
	default:
		return "unknown"
	}
}

// Kind reports the value kind the metric always carries.
func (m Metric) Kind() ValueKind {
	if m == MetricCampaignID {
		return KindText
	}
	return KindNumeric
}

// Snapshot is one observation of a campaign's metrics. Evaluation only reads it.
type Snapshot struct {
	CampaignID       string          `json:"campaignId"`
	AccountID        string          `json:"accountId"`
	Name             string          `json:"name,omitempty"`
	Objective        string          `json:"objective,omitempty"`
	Status           string          `json:"status,omitempty"`
	EffectiveStatus  string          `json:"effectiveStatus,omitempty"`
	ConfiguredStatus string          `json:"configuredStatus,omitempty"`
	BuyingType       string          `json:"buyingType,omitempty"`
	Spend            decimal.Decimal `json:"spend"`
	ROAS             decimal.Decimal `json:"roas"`
	CTR              decimal.Decimal `json:"ctr"`
	CapturedAt       time.Time       `json:"capturedAt"`
}

var (
	ErrNegativeSpend = errors.New("spend must not be negative")
	ErrCTRRange      = errors.New("ctr must be a fraction between 0 and 1")
)

// Validate checks the invariants ingestion relies on.
func (s *Snapshot) Validate() error {
	if s.CampaignID == "" {
		return errors.New("campaignId is required")
	}
	if s.CapturedAt.IsZero() {
		return errors.New("capturedAt is required")
	}
	if s.Spend.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativeSpend, s.Spend)
	}
	if s.CTR.IsNegative() || s.CTR.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: %s", ErrCTRRange, s.CTR)
	}
	return nil
}

// Value returns the typed value of m in the snapshot.
func (s *Snapshot) Value(m Metric) (Value, bool) {
	switch m {
	case MetricSpend:
		return Numeric(s.Spend), true
	case MetricROAS:
		return Numeric(s.ROAS), true
	case MetricCTR:
		return Numeric(s.CTR), true
	case MetricCampaignID:
		return Text(s.CampaignID), true
	default:
		return Value{}, false
	}
}
