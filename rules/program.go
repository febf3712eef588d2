package rules

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Program is a rule text compiled into an expression tree. It holds no
// per-evaluation state and may be evaluated from many goroutines at once.
type Program struct {
	text string
	root node
}

type evalState struct {
	snapshot *Snapshot
	trace    []Diagnostic
}

type node interface {
	eval(st *evalState) bool
	check(out []Diagnostic) []Diagnostic
	String() string
}

type orNode struct{ left, right node }

func (n *orNode) eval(st *evalState) bool { return n.left.eval(st) || n.right.eval(st) }

func (n *orNode) check(out []Diagnostic) []Diagnostic {
	return n.right.check(n.left.check(out))
}

func (n *orNode) String() string { return "(" + n.left.String() + " OR " + n.right.String() + ")" }

type andNode struct{ left, right node }

func (n *andNode) eval(st *evalState) bool { return n.left.eval(st) && n.right.eval(st) }

func (n *andNode) check(out []Diagnostic) []Diagnostic {
	return n.right.check(n.left.check(out))
}

func (n *andNode) String() string { return "(" + n.left.String() + " AND " + n.right.String() + ")" }

type leafNode struct{ cond Condition }

func (n *leafNode) eval(st *evalState) bool { return n.cond.Holds(st.snapshot) }

func (n *leafNode) check(out []Diagnostic) []Diagnostic { return out }

func (n *leafNode) String() string { return n.cond.String() }

// invalidNode never holds and reports its diagnostic every time it is reached.
type invalidNode struct{ diag Diagnostic }

func (n *invalidNode) eval(st *evalState) bool {
	emit(n.diag)
	st.trace = append(st.trace, n.diag)
	return false
}

func (n *invalidNode) check(out []Diagnostic) []Diagnostic { return append(out, n.diag) }

func (n *invalidNode) String() string { return "<invalid: " + n.diag.Condition + ">" }

// Compile builds the expression tree for a rule. It never fails: fragments
// that cannot be evaluated become leaves that are always false.
//
// Each level trims, drops an optional case-insensitive "IF " prefix, strips
// parentheses enclosing the whole expression, then splits on the first
// top-level OR, else the first top-level AND, else treats the text as an
// atomic condition.
func Compile(text string) *Program {
	return &Program{text: text, root: compileExpr(text)}
}

func compileExpr(expr string) node {
	expr = strings.TrimSpace(expr)
	if len(expr) >= 3 && strings.EqualFold(expr[:3], "IF ") {
		expr = strings.TrimSpace(expr[3:])
	}
	for enclosedByParens(expr) {
		expr = strings.TrimSpace(expr[1 : len(expr)-1])
	}

	if left, right, ok := splitTopLevel(expr, "OR"); ok {
		return &orNode{left: compileExpr(left), right: compileExpr(right)}
	}
	if left, right, ok := splitTopLevel(expr, "AND"); ok {
		return &andNode{left: compileExpr(left), right: compileExpr(right)}
	}
	return compileLeaf(expr)
}

func compileLeaf(expr string) node {
	cond, diag := parseCondition(expr)
	if diag != nil {
		return &invalidNode{diag: *diag}
	}
	return &leafNode{cond: cond}
}

// enclosedByParens reports whether the first and last characters are a
// matching pair: inside them the depth never drops below zero and ends at zero.
// "(A) OR (B)" is not enclosed.
func enclosedByParens(expr string) bool {
	if len(expr) < 2 || expr[0] != '(' || expr[len(expr)-1] != ')' {
		return false
	}
	depth := 0
	for i := 1; i < len(expr)-1; i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// splitTopLevel finds the first occurrence of op at parenthesis depth zero
// that stands alone as a word, case-insensitively.
func splitTopLevel(expr, op string) (left, right string, ok bool) {
	depth := 0
	n := len(op)
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			depth--
		default:
			if depth != 0 || i+n > len(expr) || !strings.EqualFold(expr[i:i+n], op) {
				continue
			}
			before, _ := utf8.DecodeLastRuneInString(expr[:i])
			after, _ := utf8.DecodeRuneInString(expr[i+n:])
			if (i == 0 || isSpace(before)) && (i+n == len(expr) || isSpace(after)) {
				return strings.TrimFunc(expr[:i], isSpace), strings.TrimFunc(expr[i+n:], isSpace), true
			}
		}
	}
	return "", "", false
}

// isSpace matches Unicode white space, including NBSP and the BOM.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

// Text returns the rule text the program was compiled from.
func (p *Program) Text() string { return p.text }

// String renders the tree with explicit grouping.
func (p *Program) String() string { return p.root.String() }

// Eval evaluates the program against one snapshot. A nil snapshot never matches.
func (p *Program) Eval(s *Snapshot) bool {
	matched, _ := p.Trace(s)
	return matched
}

// Trace evaluates like Eval and also returns the diagnostics of every invalid
// fragment that was reached. Short-circuited fragments are not reported.
func (p *Program) Trace(s *Snapshot) (bool, []Diagnostic) {
	if s == nil {
		return false, nil
	}
	st := &evalState{snapshot: s}
	matched := p.root.eval(st)
	return matched, st.trace
}

// Check lists every invalid fragment without evaluating anything.
func (p *Program) Check() []Diagnostic {
	return p.root.check(nil)
}

// Valid reports whether every fragment of the rule is a well-formed condition.
func (p *Program) Valid() bool {
	return len(p.Check()) == 0
}

// EvaluateRule parses the rule text and evaluates it against the snapshot.
// Malformed text never panics or errors; it evaluates to false and leaves a
// diagnostic.
func EvaluateRule(text string, s *Snapshot) bool {
	return Compile(text).Eval(s)
}
