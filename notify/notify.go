package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/liamcoop/campaignrules/history"
	"github.com/liamcoop/campaignrules/internal/logger"
	"github.com/liamcoop/campaignrules/internal/metrics"
)

// Notifier delivers the action notification of a fired rule.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, evt *history.ActionEvent) error
}

// LogNotifier writes every action to the process log.
type LogNotifier struct{}

func (LogNotifier) Name() string { return "log" }

func (LogNotifier) Notify(_ context.Context, evt *history.ActionEvent) error {
	logger.Info(evt.Message,
		"account_id", evt.AccountID,
		"campaign_id", evt.CampaignID,
		"rule_id", evt.RuleID,
		"action", string(evt.Action))
	return nil
}

// RecorderNotifier appends actions to the history log.
type RecorderNotifier struct {
	Recorder history.Recorder
}

func (RecorderNotifier) Name() string { return "history" }

func (n RecorderNotifier) Notify(ctx context.Context, evt *history.ActionEvent) error {
	return n.Recorder.RecordAction(ctx, evt)
}

// Multi delivers to every notifier in order. A failing notifier does not stop the others.
type Multi []Notifier

func (Multi) Name() string { return "multi" }

func (m Multi) Notify(ctx context.Context, evt *history.ActionEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, evt); err != nil {
			metrics.NotifyFailuresTotal.WithLabelValues(n.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
