package main

import (
	"github.com/liamcoop/campaignrules/pipeline"
	"github.com/liamcoop/campaignrules/rules"
)

// API request and response models

// CreateAccountRequest is the body of POST /accounts
type CreateAccountRequest struct {
	ID   string `json:"id" example:"act_1234567890"`
	Name string `json:"name" example:"Acme Store"`
}

// RenameAccountRequest is the body of PUT /accounts/{accountId}
type RenameAccountRequest struct {
	Name string `json:"name" example:"Acme Store EU"`
}

// CreateRuleRequest is the body of POST /accounts/{accountId}/rules
type CreateRuleRequest struct {
	CampaignID string `json:"campaignId" example:"120210"`
	Name       string `json:"name" example:"Weak performer"`
	Action     string `json:"action" example:"Pausing campaigns"`
	Expression string `json:"expression" example:"(Spend > $500 AND CTR < 1%) OR ROAS < 2"`
	Active     *bool  `json:"active,omitempty" example:"true"`
}

// UpdateRuleRequest is the body of PUT /accounts/{accountId}/rules/{ruleId}.
// Omitted fields keep their stored value.
type UpdateRuleRequest struct {
	CampaignID *string `json:"campaignId,omitempty"`
	Name       *string `json:"name,omitempty"`
	Action     *string `json:"action,omitempty"`
	Expression *string `json:"expression,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

// RulesListResponse lists an account's rules
type RulesListResponse struct {
	Rules []*rules.Rule `json:"rules"`
}

// EvaluateRequest evaluates either one rule text or every active rule of an account.
type EvaluateRequest struct {
	AccountID string          `json:"accountId,omitempty" example:"act_1234567890"`
	Rule      string          `json:"rule,omitempty" example:"IF Spend > $500"`
	Snapshot  *rules.Snapshot `json:"snapshot"`
}

// EvaluateResponse carries one result per evaluated rule
type EvaluateResponse struct {
	Results        []*rules.EvaluationResult `json:"results"`
	EvaluationTime string                    `json:"evaluationTime" example:"42µs"`
}

// ValidateRuleRequest is the body of POST /rules/validate
type ValidateRuleRequest struct {
	Expression string `json:"expression" example:"Spend > $500 AND CTR < 1%"`
}

// ValidateRuleResponse reports the static check of a rule text
type ValidateRuleResponse struct {
	Valid       bool               `json:"valid"`
	Parsed      string             `json:"parsed" example:"(Spend > 500 AND CTR < 0.01)"`
	Diagnostics []rules.Diagnostic `json:"diagnostics"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"account not found"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status         string           `json:"status" example:"healthy"`
	Error          string           `json:"error,omitempty"`
	AccountsLoaded int              `json:"accountsLoaded"`
	Clients        int              `json:"websocketClients"`
	Pipeline       *pipeline.Stats  `json:"pipeline,omitempty"`
	Counters       map[string]int64 `json:"counters"`
}
