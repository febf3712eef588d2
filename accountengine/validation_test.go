package accountengine

import (
	"errors"
	"strings"
	"testing"

	"github.com/liamcoop/campaignrules/rules"
)

func TestValidateAccount(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		account string
		wantErr string
	}{
		{"valid act id", "act_1234567890", "Acme Store", ""},
		{"valid numeric id", "1234567890", "Acme Store", ""},
		{"valid dashed id", "acme-eu", "Acme EU", ""},
		{"empty id", "", "Acme", "cannot be empty"},
		{"leading underscore", "_act", "Acme", "must contain only"},
		{"space in id", "act 1", "Acme", "must contain only"},
		{"id too long", strings.Repeat("a", 101), "Acme", "exceeds maximum"},
		{"empty name", "act_1", "   ", "name cannot be empty"},
		{"name too long", "act_1", strings.Repeat("n", 201), "exceeds maximum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAccount(tt.id, tt.account)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected valid account, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got: %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateAccount_BoundaryLengths(t *testing.T) {
	if err := ValidateAccount(strings.Repeat("a", 100), strings.Repeat("n", 200)); err != nil {
		t.Errorf("Expected maximum lengths to be accepted, got: %v", err)
	}
	// name limit counts characters, not bytes
	if err := ValidateAccount("act_1", strings.Repeat("é", 200)); err != nil {
		t.Errorf("Expected 200 multi-byte characters to be accepted, got: %v", err)
	}
}

func TestValidateRule(t *testing.T) {
	valid := func() *rules.Rule {
		return &rules.Rule{
			CampaignID: "120210",
			Name:       "Weak performer",
			Action:     rules.ActionPauseCampaigns,
			Expression: "(Spend > $500 AND CTR < 1%) OR (ROAS < 2)",
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *rules.Rule)
		wantErr string
	}{
		{"valid", func(*rules.Rule) {}, ""},
		{"no campaign", func(r *rules.Rule) { r.CampaignID = "" }, ""},
		{"malformed expression is not rejected here", func(r *rules.Rule) { r.Expression = "Spend >> $500" }, ""},
		{"missing expression", func(r *rules.Rule) { r.Expression = "" }, "expression is required"},
		{"blank expression", func(r *rules.Rule) { r.Expression = " \t " }, "expression is required"},
		{"expression too long", func(r *rules.Rule) { r.Expression = strings.Repeat("x", 2001) }, "exceeds maximum"},
		{"missing action", func(r *rules.Rule) { r.Action = "" }, "action is required"},
		{"unknown action", func(r *rules.Rule) { r.Action = "Deleting campaigns" }, "unknown action"},
		{"name too long", func(r *rules.Rule) { r.Name = strings.Repeat("n", 201) }, "exceeds maximum"},
		{"bad campaign id", func(r *rules.Rule) { r.CampaignID = "12 34" }, "campaign id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			err := ValidateRule(r)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected valid rule, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got: %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}

	if err := ValidateRule(nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil rule, got: %v", err)
	}
}

func TestValidateRule_AllActions(t *testing.T) {
	for _, action := range rules.Actions {
		r := &rules.Rule{Action: action, Expression: "ROAS < 2"}
		if err := ValidateRule(r); err != nil {
			t.Errorf("Action %q rejected: %v", action, err)
		}
	}
}

func BenchmarkValidateRule(b *testing.B) {
	r := &rules.Rule{
		CampaignID: "120210",
		Action:     rules.ActionAdjustBudgets,
		Expression: "(Spend > $500 AND CTR < 1%) OR (ROAS < 2)",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ValidateRule(r)
	}
}
