package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Operator is a comparison operator accepted in an atomic condition.
type Operator string

const (
	OpLess         Operator = "<"
	OpGreater      Operator = ">"
	OpLessEqual    Operator = "<="
	OpGreaterEqual Operator = ">="
	OpEqual        Operator = "=="
)

func parseOperator(s string) (Operator, bool) {
	switch op := Operator(s); op {
	case OpLess, OpGreater, OpLessEqual, OpGreaterEqual, OpEqual:
		return op, true
	}
	return "", false
}

// identifier, operator, value. The value is a quoted string or a run of
// words free of quotes, parentheses and comparison characters.
var conditionPattern = regexp.MustCompile(
	`^([A-Za-z_]\w*)\s*([<>=!]{1,2})\s*("[^"]*"|'[^']*'|[^\s"'()<>=!]+(?:\s+[^\s"'()<>=!]+)*)$`,
)

// Condition is a parsed atomic comparison of one metric against one literal.
type Condition struct {
	Metric   Metric
	Operator Operator
	Value    Value
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Metric, c.Operator, c.Value)
}

// parseCondition turns trimmed text into a Condition. The second result is
// non-nil when the text cannot be evaluated; the condition then never holds.
func parseCondition(text string) (Condition, *Diagnostic) {
	reject := func(kind DiagnosticKind, format string, args ...any) (Condition, *Diagnostic) {
		return Condition{}, &Diagnostic{Kind: kind, Condition: text, Message: fmt.Sprintf(format, args...)}
	}

	if text == "" {
		return reject(DiagEmpty, "expression is empty")
	}

	match := conditionPattern.FindStringSubmatch(text)
	if match == nil {
		return reject(DiagParseFailure, "expected <metric> <operator> <value>")
	}
	name, rawOp, rawValue := match[1], match[2], match[3]

	op, ok := parseOperator(rawOp)
	if !ok {
		return reject(DiagParseFailure, "unknown operator %q", rawOp)
	}

	metric, ok := LookupMetric(name)
	if !ok {
		return reject(DiagUnknownIdentifier, "unknown metric %q", name)
	}

	value, err := Coerce(rawValue)
	if err != nil {
		return reject(DiagInvalidLiteral, "%v", err)
	}

	if metric.Kind() != value.Kind() {
		return reject(DiagTypeMismatch, "cannot compare %s %s with %s %s",
			metric.Kind(), metric, value.Kind(), value)
	}
	if value.Kind() == KindText && op != OpEqual {
		return reject(DiagUnsupportedOperator, "operator %s is not defined for strings", op)
	}

	return Condition{Metric: metric, Operator: op, Value: value}, nil
}

// Holds reports whether the snapshot satisfies the condition.
func (c Condition) Holds(s *Snapshot) bool {
	if s == nil {
		return false
	}
	got, ok := s.Value(c.Metric)
	if !ok {
		return false
	}
	return compare(got, c.Operator, c.Value)
}

func compare(left Value, op Operator, right Value) bool {
	if left.Kind() != right.Kind() {
		return false
	}

	if left.Kind() == KindText {
		return op == OpEqual && left.Literal() == right.Literal()
	}

	l, r := left.Number(), right.Number()
	switch op {
	case OpLess:
		return l.LessThan(r)
	case OpGreater:
		return l.GreaterThan(r)
	case OpLessEqual:
		return l.LessThanOrEqual(r)
	case OpGreaterEqual:
		return l.GreaterThanOrEqual(r)
	case OpEqual:
		return l.Equal(r)
	}
	return false
}

// EvaluateCondition evaluates a single atomic condition such as "Spend > $500".
// Anything that is not a valid comparison is reported on the diagnostic
// channel and evaluates to false.
func EvaluateCondition(text string, s *Snapshot) bool {
	return compileLeaf(strings.TrimSpace(text)).eval(&evalState{snapshot: s})
}
