package accountengine

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/liamcoop/campaignrules/internal/logger"
	"github.com/liamcoop/campaignrules/rules"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

// Account is an ad account. Rules, snapshots and actions are all scoped to one.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AccountEngine wraps a rules.Engine with account metadata
type AccountEngine struct {
	Account Account
	Engine  *rules.Engine
	store   rules.RuleStore
}

// Manager manages engines for all ad accounts. With a nil database the
// accounts and their rules live only in memory.
type Manager struct {
	engines map[string]*AccountEngine
	db      *sql.DB
	opts    []rules.Option
	mu      sync.RWMutex
}

// NewManager creates a new manager instance. opts are applied to every account engine.
func NewManager(db *sql.DB, opts ...rules.Option) *Manager {
	return &Manager{
		engines: make(map[string]*AccountEngine),
		db:      db,
		opts:    opts,
	}
}

func (m *Manager) newStore(accountID string) rules.RuleStore {
	if m.db == nil {
		return rules.NewInMemoryRuleStore()
	}
	return rules.NewPostgresRuleStore(m.db, accountID)
}

func (m *Manager) openEngine(acc Account, store rules.RuleStore) (*AccountEngine, error) {
	engine, err := rules.NewEngine(store, m.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return &AccountEngine{Account: acc, Engine: engine, store: store}, nil
}

// LoadAllAccounts loads all accounts from the database and initializes their engines
func (m *Manager) LoadAllAccounts() error {
	if m.db == nil {
		return nil
	}

	rows, err := m.db.Query(`
		SELECT id, name, created_at, updated_at
		FROM accounts
		ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to fetch accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var acc Account
		if err := rows.Scan(&acc.ID, &acc.Name, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating account rows: %w", err)
	}

	for _, acc := range accounts {
		ae, err := m.openEngine(acc, m.newStore(acc.ID))
		if err != nil {
			return fmt.Errorf("failed to initialize account %s: %w", acc.ID, err)
		}
		m.mu.Lock()
		m.engines[acc.ID] = ae
		m.mu.Unlock()
	}

	logger.Info("Accounts loaded", "count", len(accounts))
	return nil
}

// CreateAccount persists a new account and starts its engine
func (m *Manager) CreateAccount(id, name string) (*Account, error) {
	if err := ValidateAccount(id, name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.engines[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAccountExists, id)
	}

	now := time.Now().UTC()
	acc := Account{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}

	if m.db != nil {
		result, err := m.db.Exec(`
			INSERT INTO accounts (id, name, created_at, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING
		`, acc.ID, acc.Name, acc.CreatedAt, acc.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert account: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return nil, fmt.Errorf("%w: %s", ErrAccountExists, id)
		}
	}

	ae, err := m.openEngine(acc, m.newStore(acc.ID))
	if err != nil {
		return nil, err
	}
	m.engines[id] = ae

	out := ae.Account
	return &out, nil
}

// RenameAccount changes the display name of an account
func (m *Manager) RenameAccount(id, name string) (*Account, error) {
	if err := ValidateAccount(id, name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ae, exists := m.engines[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}

	updatedAt := time.Now().UTC()
	if m.db != nil {
		if _, err := m.db.Exec(`
			UPDATE accounts SET name = $1, updated_at = $2 WHERE id = $3
		`, name, updatedAt, id); err != nil {
			return nil, fmt.Errorf("failed to update account: %w", err)
		}
	}

	acc := ae.Account
	acc.Name = name
	acc.UpdatedAt = updatedAt
	m.engines[id] = &AccountEngine{Account: acc, Engine: ae.Engine, store: ae.store}

	return &acc, nil
}

// ReloadAccount rebuilds an account's engine from the store and swaps it in.
// Evaluations already running keep the engine they started with.
func (m *Manager) ReloadAccount(id string) error {
	m.mu.RLock()
	ae, exists := m.engines[id]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}

	fresh, err := m.openEngine(ae.Account, ae.store)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.engines[id] = fresh
	m.mu.Unlock()

	logger.Info("Account engine reloaded", "account_id", id)
	return nil
}

// GetEngine retrieves the engine for a specific account
func (m *Manager) GetEngine(accountID string) (*rules.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ae, exists := m.engines[accountID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}

	return ae.Engine, nil
}

// GetAccount returns the metadata of one account
func (m *Manager) GetAccount(accountID string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ae, exists := m.engines[accountID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}

	acc := ae.Account
	return &acc, nil
}

// ListAccounts returns all loaded accounts ordered by ID
func (m *Manager) ListAccounts() []Account {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make([]Account, 0, len(m.engines))
	for _, ae := range m.engines {
		accounts = append(accounts, ae.Account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts
}

// DeleteAccount removes an account with its rules and history
func (m *Manager) DeleteAccount(accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.engines[accountID]; !exists {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}

	if m.db != nil {
		if _, err := m.db.Exec(`DELETE FROM accounts WHERE id = $1`, accountID); err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
	}

	delete(m.engines, accountID)
	return nil
}
