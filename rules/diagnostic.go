package rules

import (
	"github.com/liamcoop/campaignrules/internal/logger"
	"github.com/liamcoop/campaignrules/internal/metrics"
)

// DiagnosticKind classifies why a rule fragment evaluated to false without comparing anything.
type DiagnosticKind string

const (
	DiagEmpty               DiagnosticKind = "empty_expression"
	DiagParseFailure        DiagnosticKind = "parse_failure"
	DiagUnknownIdentifier   DiagnosticKind = "unknown_identifier"
	DiagInvalidLiteral      DiagnosticKind = "invalid_literal"
	DiagUnsupportedOperator DiagnosticKind = "unsupported_operator"
	DiagTypeMismatch        DiagnosticKind = "type_mismatch"
)

// Diagnostic describes one invalid atomic condition.
type Diagnostic struct {
	Kind      DiagnosticKind `json:"kind"`
	Condition string         `json:"condition"`
	Message   string         `json:"message"`
}

func (d Diagnostic) String() string {
	return string(d.Kind) + ": " + d.Message + " (" + d.Condition + ")"
}

// emit writes d to the diagnostic channel: an unsampled log line and a counter.
func emit(d Diagnostic) {
	metrics.RuleDiagnosticsTotal.WithLabelValues(string(d.Kind)).Inc()
	logger.Diagnostic("rule condition rejected",
		"kind", string(d.Kind),
		"condition", d.Condition,
		"reason", d.Message,
	)
}
