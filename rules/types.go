package rules

import (
	"errors"
	"fmt"
	"time"
)

// Action is the label of what a rule does when it fires. The engine never
// interprets it; it only travels into the notification.
type Action string

const (
	ActionPauseCampaigns Action = "Pausing campaigns"
	ActionAdjustBudgets  Action = "Adjusting budgets"
	ActionLogEvents      Action = "Logging events"
)

// Actions lists the labels a rule may carry.
var Actions = []Action{ActionPauseCampaigns, ActionAdjustBudgets, ActionLogEvents}

var ErrUnknownAction = errors.New("unknown action")

// ParseAction accepts one of the fixed action labels.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Rule is a user-authored condition bound to an action.
type Rule struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"accountId"`
	CampaignID string    `json:"campaignId"`
	Name       string    `json:"name"`
	Action     Action    `json:"action"`
	Expression string    `json:"expression"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Notification is the message shown when the rule fires.
func (r *Rule) Notification() string {
	return Notification(r.Action, r.Expression)
}

// Notification formats the action message for a fired rule.
func Notification(action Action, expression string) string {
	return fmt.Sprintf("Action taken: %s because of rule: \"%s\"", action, expression)
}

// EvaluationResult contains the outcome of evaluating a rule
type EvaluationResult struct {
	RuleID       string       `json:"ruleId"`
	RuleName     string       `json:"ruleName,omitempty"`
	Action       Action       `json:"action"`
	Expression   string       `json:"expression"`
	Matched      bool         `json:"matched"`
	Notification string       `json:"notification,omitempty"`
	Diagnostics  []Diagnostic `json:"diagnostics,omitempty"`
}
