package rules

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const ruleColumns = `id, account_id, campaign_id, name, action, expression, active, created_at, updated_at`

// PostgresRuleStore implements RuleStore backed by PostgreSQL, scoped to one ad account
type PostgresRuleStore struct {
	db        *sql.DB
	accountID string
}

// NewPostgresRuleStore creates a PostgreSQL-backed RuleStore for an ad account
func NewPostgresRuleStore(db *sql.DB, accountID string) *PostgresRuleStore {
	return &PostgresRuleStore{
		db:        db,
		accountID: accountID,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var r Rule
	var action string
	if err := row.Scan(&r.ID, &r.AccountID, &r.CampaignID, &r.Name, &action,
		&r.Expression, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Action = Action(action)
	return &r, nil
}

// Add inserts a new rule into the database
func (s *PostgresRuleStore) Add(rule *Rule) error {
	now := time.Now()
	rule.AccountID = s.accountID
	rule.CreatedAt = now
	rule.UpdatedAt = now

	result, err := s.db.Exec(`
		INSERT INTO rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, rule.ID, s.accountID, rule.CampaignID, rule.Name, string(rule.Action),
		rule.Expression, rule.Active, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRuleExists, rule.ID)
	}

	return nil
}

// Get retrieves a rule by ID
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	rule, err := scanRule(s.db.QueryRow(`
		SELECT `+ruleColumns+`
		FROM rules
		WHERE id = $1 AND account_id = $2
	`, id, s.accountID))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

// List returns every rule of the account
func (s *PostgresRuleStore) List() ([]*Rule, error) {
	return s.query(`
		SELECT `+ruleColumns+`
		FROM rules
		WHERE account_id = $1
		ORDER BY created_at ASC, id ASC
	`)
}

// ListActive returns all active rules of the account
func (s *PostgresRuleStore) ListActive() ([]*Rule, error) {
	return s.query(`
		SELECT `+ruleColumns+`
		FROM rules
		WHERE account_id = $1 AND active = true
		ORDER BY created_at ASC, id ASC
	`)
}

func (s *PostgresRuleStore) query(q string) ([]*Rule, error) {
	rows, err := s.db.Query(q, s.accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// Update modifies an existing rule
func (s *PostgresRuleStore) Update(rule *Rule) error {
	rule.AccountID = s.accountID
	rule.UpdatedAt = time.Now()

	err := s.db.QueryRow(`
		UPDATE rules
		SET campaign_id = $1, name = $2, action = $3, expression = $4, active = $5, updated_at = $6
		WHERE id = $7 AND account_id = $8
		RETURNING created_at
	`, rule.CampaignID, rule.Name, string(rule.Action), rule.Expression, rule.Active,
		rule.UpdatedAt, rule.ID, s.accountID).Scan(&rule.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, rule.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	return nil
}

// Delete removes a rule from the database
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM rules
		WHERE id = $1 AND account_id = $2
	`, id, s.accountID)

	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	return nil
}
