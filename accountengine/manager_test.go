//go:build integration

package accountengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/campaignrules/rules"
)

// setupTestDB creates a PostgreSQL testcontainer and runs migrations
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	// Wait for database to be ready
	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	// Run migrations
	migrationSQL, err := os.ReadFile("../migrations/000001_initial_schema.up.sql")
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgres.Terminate(ctx)
	}

	return db, cleanup
}

func TestManager_LoadAllAccounts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for _, id := range []string{"act_a", "act_b"} {
		if _, err := db.Exec(`INSERT INTO accounts (id, name) VALUES ($1, $2)`, id, id+"-name"); err != nil {
			t.Fatalf("Failed to create account: %v", err)
		}
	}

	seeded := &rules.Rule{
		ID:         "rule-a",
		Action:     rules.ActionPauseCampaigns,
		Expression: "ROAS < 2",
		Active:     true,
	}
	if err := rules.NewPostgresRuleStore(db, "act_a").Add(seeded); err != nil {
		t.Fatalf("Failed to seed rule: %v", err)
	}

	manager := NewManager(db)
	if err := manager.LoadAllAccounts(); err != nil {
		t.Fatalf("Failed to load accounts: %v", err)
	}

	accounts := manager.ListAccounts()
	if len(accounts) != 2 {
		t.Fatalf("Expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].Name != "act_a-name" {
		t.Errorf("Expected name 'act_a-name', got %q", accounts[0].Name)
	}

	engineA, err := manager.GetEngine("act_a")
	if err != nil {
		t.Fatalf("Failed to get engine for account A: %v", err)
	}
	result, err := engineA.Evaluate("rule-a", snapshotFor("act_a"))
	if err != nil {
		t.Fatalf("Failed to evaluate seeded rule: %v", err)
	}
	if !result.Matched {
		t.Error("Expected seeded rule to match")
	}
}

func TestManager_CreateRenameDelete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	manager := NewManager(db)

	if _, err := manager.CreateAccount("act_1", "Acme"); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}

	var name string
	if err := db.QueryRow(`SELECT name FROM accounts WHERE id = $1`, "act_1").Scan(&name); err != nil {
		t.Fatalf("Account was not persisted: %v", err)
	}
	if name != "Acme" {
		t.Errorf("Expected persisted name 'Acme', got %q", name)
	}

	// a second manager over the same database sees the conflict
	other := NewManager(db)
	if _, err := other.CreateAccount("act_1", "Acme"); !errors.Is(err, ErrAccountExists) {
		t.Errorf("Expected ErrAccountExists, got: %v", err)
	}

	if _, err := manager.RenameAccount("act_1", "Acme Inc"); err != nil {
		t.Fatalf("Failed to rename account: %v", err)
	}
	if err := db.QueryRow(`SELECT name FROM accounts WHERE id = $1`, "act_1").Scan(&name); err != nil {
		t.Fatalf("Failed to read account: %v", err)
	}
	if name != "Acme Inc" {
		t.Errorf("Expected renamed account, got %q", name)
	}

	engine, _ := manager.GetEngine("act_1")
	if err := engine.AddRule(&rules.Rule{Action: rules.ActionLogEvents, Expression: "Spend > $500", Active: true}); err != nil {
		t.Fatalf("Failed to add rule: %v", err)
	}

	if err := manager.DeleteAccount("act_1"); err != nil {
		t.Fatalf("Failed to delete account: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM rules WHERE account_id = $1`, "act_1").Scan(&count); err != nil {
		t.Fatalf("Failed to count rules: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected rules to be deleted with the account, found %d", count)
	}
}

func TestManager_ReloadPicksUpExternalChanges(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	manager := NewManager(db)
	if _, err := manager.CreateAccount("act_1", "Acme"); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}

	// written by another process, behind the engine's cache
	external := &rules.Rule{ID: "external", Action: rules.ActionAdjustBudgets, Expression: "ROAS < 2", Active: true}
	if err := rules.NewPostgresRuleStore(db, "act_1").Add(external); err != nil {
		t.Fatalf("Failed to add external rule: %v", err)
	}

	engine, _ := manager.GetEngine("act_1")
	results, err := engine.EvaluateAll(snapshotFor("act_1"))
	if err != nil {
		t.Fatalf("Failed to evaluate: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("Expected cached empty rule set before reload, got %d results", len(results))
	}

	if err := manager.ReloadAccount("act_1"); err != nil {
		t.Fatalf("Failed to reload: %v", err)
	}

	engine, _ = manager.GetEngine("act_1")
	results, err = engine.EvaluateAll(snapshotFor("act_1"))
	if err != nil {
		t.Fatalf("Failed to evaluate after reload: %v", err)
	}
	if len(rules.Matched(results)) != 1 {
		t.Errorf("Expected external rule to match after reload, got %v", results)
	}
}
