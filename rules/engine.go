package rules

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/campaignrules/internal/metrics"
)

// ErrInvalidRule is returned for rules rejected before they reach the store.
var ErrInvalidRule = errors.New("invalid rule")

// Engine owns a rule store and the compiled programs for its rules.
// Programs are keyed by rule text, so rules sharing a text share a program.
type Engine struct {
	store       RuleStore
	cache       RulesCache
	programs    map[string]*Program
	strict      bool
	parallelism int
	mu          sync.RWMutex
}

// Option configures an Engine
type Option func(*Engine)

// WithStrictValidation rejects rules whose text contains invalid conditions.
// By default such rules are stored and simply never fire.
func WithStrictValidation() Option {
	return func(en *Engine) { en.strict = true }
}

// WithParallelism evaluates up to n rules at once in EvaluateAll.
func WithParallelism(n int) Option {
	return func(en *Engine) { en.parallelism = n }
}

// WithCache replaces the default in-memory rules cache.
func WithCache(c RulesCache) Option {
	return func(en *Engine) { en.cache = c }
}

// NewEngine creates an engine and compiles every active rule in store.
func NewEngine(store RuleStore, opts ...Option) (*Engine, error) {
	en := &Engine{
		store:       store,
		cache:       NewInMemoryRulesCache(DefaultCacheConfig()),
		programs:    make(map[string]*Program),
		parallelism: 1,
	}
	for _, opt := range opts {
		opt(en)
	}

	if err := en.CompileAllRules(); err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}

	return en, nil
}

// Program returns the compiled program for expression, compiling and caching
// it on first use. Only texts of stored rules belong in the cache.
func (en *Engine) Program(expression string) *Program {
	if prog, ok := en.lookup(expression); ok {
		return prog
	}

	prog := Compile(expression)

	en.mu.Lock()
	if existing, ok := en.programs[expression]; ok {
		prog = existing
	} else {
		en.programs[expression] = prog
	}
	size := len(en.programs)
	en.mu.Unlock()

	metrics.ProgramCacheSize.Set(float64(size))
	return prog
}

func (en *Engine) lookup(expression string) (*Program, bool) {
	en.mu.RLock()
	defer en.mu.RUnlock()
	prog, ok := en.programs[expression]
	return prog, ok
}

// compile returns the cached program for expression or a fresh, uncached one.
func (en *Engine) compile(expression string) *Program {
	if prog, ok := en.lookup(expression); ok {
		return prog
	}
	return Compile(expression)
}

// CompileRule compiles expression without caching it. In strict mode an
// expression with invalid conditions is an error.
func (en *Engine) CompileRule(expression string) (*Program, error) {
	prog := en.compile(expression)
	if en.strict {
		if diags := prog.Check(); len(diags) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRule, diags[0])
		}
	}
	return prog, nil
}

// ValidateRule checks the fields a rule needs before it can be stored.
func (en *Engine) ValidateRule(r *Rule) error {
	if strings.TrimSpace(r.Expression) == "" {
		return fmt.Errorf("%w: expression is required", ErrInvalidRule)
	}
	if _, err := ParseAction(string(r.Action)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	_, err := en.CompileRule(r.Expression)
	return err
}

// CompileAllRules compiles all active rules from the store and primes the cache.
func (en *Engine) CompileAllRules() error {
	rules, err := en.store.ListActive()
	if err != nil {
		return err
	}

	for _, rule := range rules {
		en.Program(rule.Expression)
	}
	en.cache.Set(rules)

	return nil
}

// AddRule validates, compiles and stores a new rule. An empty ID is replaced by a UUID.
func (en *Engine) AddRule(r *Rule) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	if err := en.ValidateRule(r); err != nil {
		return err
	}

	if err := en.store.Add(r); err != nil {
		return err
	}

	en.Program(r.Expression)
	en.cache.Invalidate()
	return nil
}

// UpdateRule validates the new definition before replacing the stored rule.
func (en *Engine) UpdateRule(r *Rule) error {
	if err := en.ValidateRule(r); err != nil {
		return err
	}

	if err := en.store.Update(r); err != nil {
		return err
	}

	en.Program(r.Expression)
	en.cache.Invalidate()
	return nil
}

// DeleteRule removes a rule from the store
func (en *Engine) DeleteRule(ruleID string) error {
	if err := en.store.Delete(ruleID); err != nil {
		return err
	}

	en.cache.Invalidate()
	return nil
}

// GetRule returns a stored rule
func (en *Engine) GetRule(ruleID string) (*Rule, error) {
	return en.store.Get(ruleID)
}

// ListRules returns every stored rule, active or not
func (en *Engine) ListRules() ([]*Rule, error) {
	return en.store.List()
}

// ActiveRules returns a private copy of the active rule set.
func (en *Engine) ActiveRules() ([]*Rule, error) {
	if rules := en.cache.Get(); rules != nil {
		return rules, nil
	}

	rules, err := en.store.ListActive()
	if err != nil {
		return nil, err
	}
	en.cache.Set(rules)
	en.prune(rules)

	return copyRules(rules), nil
}

// prune drops programs no active rule refers to.
func (en *Engine) prune(active []*Rule) {
	keep := make(map[string]struct{}, len(active))
	for _, r := range active {
		keep[r.Expression] = struct{}{}
	}

	en.mu.Lock()
	for text := range en.programs {
		if _, ok := keep[text]; !ok {
			delete(en.programs, text)
		}
	}
	size := len(en.programs)
	en.mu.Unlock()

	metrics.ProgramCacheSize.Set(float64(size))
}

// EvaluateText evaluates ad-hoc rule text against a snapshot. The text is
// compiled for this call only unless a stored rule already uses it.
func (en *Engine) EvaluateText(expression string, s *Snapshot) *EvaluationResult {
	matched, diags := en.compile(expression).Trace(s)
	countEvaluation(matched)

	res := &EvaluationResult{
		Expression:  expression,
		Matched:     matched,
		Diagnostics: diags,
	}
	return res
}

// Evaluate evaluates a single stored rule against the snapshot.
func (en *Engine) Evaluate(ruleID string, s *Snapshot) (*EvaluationResult, error) {
	rule, err := en.store.Get(ruleID)
	if err != nil {
		return nil, err
	}
	return en.evaluateRule(rule, s), nil
}

func (en *Engine) evaluateRule(rule *Rule, s *Snapshot) *EvaluationResult {
	matched, diags := en.Program(rule.Expression).Trace(s)
	countEvaluation(matched)

	res := &EvaluationResult{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Action:      rule.Action,
		Expression:  rule.Expression,
		Matched:     matched,
		Diagnostics: diags,
	}
	if matched {
		res.Notification = rule.Notification()
	}
	return res
}

// EvaluateAll evaluates every active rule against the snapshot. The rule set
// is copied first, so concurrent rule mutations do not affect a running sweep.
// Results keep the order of the active rule set.
func (en *Engine) EvaluateAll(s *Snapshot) ([]*EvaluationResult, error) {
	start := time.Now()
	defer func() { metrics.RuleSweepDuration.Observe(time.Since(start).Seconds()) }()

	rules, err := en.ActiveRules()
	if err != nil {
		return nil, err
	}

	results := make([]*EvaluationResult, len(rules))
	if en.parallelism <= 1 || len(rules) < 2 {
		for i, rule := range rules {
			results[i] = en.evaluateRule(rule, s)
		}
		return results, nil
	}

	var g errgroup.Group
	g.SetLimit(en.parallelism)
	for i, rule := range rules {
		g.Go(func() error {
			results[i] = en.evaluateRule(rule, s)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// Matched filters results down to the rules that fired.
func Matched(results []*EvaluationResult) []*EvaluationResult {
	var out []*EvaluationResult
	for _, r := range results {
		if r.Matched {
			out = append(out, r)
		}
	}
	return out
}

func countEvaluation(matched bool) {
	result := "unmatched"
	if matched {
		result = "matched"
	}
	metrics.RuleEvaluationsTotal.WithLabelValues(result).Inc()
}
