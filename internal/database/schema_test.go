package database

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const migrationsDir = "../../migrations"

func readMigration(t *testing.T, name string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(migrationsDir, name))
	if err != nil {
		t.Fatalf("Failed to read migration %s: %v", name, err)
	}
	return string(content)
}

func TestMigrationFilesExist(t *testing.T) {
	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		t.Fatal("Migrations directory does not exist")
	}

	expectedMigrations := []string{
		"00001_create_deals_table.sql",
		"00002_create_cart_items_table.sql",
		"00003_create_orders_table.sql",
		"00004_create_order_items_table.sql",
		"00005_create_updated_at_trigger.sql",
	}

	for _, migration := range expectedMigrations {
		path := filepath.Join(migrationsDir, migration)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("Migration file %s does not exist", migration)
		}
	}
}

func TestMigrationFilesHaveUpAndDown(t *testing.T) {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("Failed to read migrations directory: %v", err)
	}

	sqlFileCount := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		sqlFileCount++
		contentStr := readMigration(t, file.Name())

		for _, directive := range []string{
			"-- +goose Up",
			"-- +goose Down",
			"-- +goose StatementBegin",
			"-- +goose StatementEnd",
		} {
			if !strings.Contains(contentStr, directive) {
				t.Errorf("Migration file %s missing '%s' directive", file.Name(), directive)
			}
		}
	}

	if sqlFileCount == 0 {
		t.Error("No SQL migration files found")
	}
}

func TestMigrationFilesCreateExpectedTables(t *testing.T) {
	expectedTables := map[string]string{
		"deals":       "00001_create_deals_table.sql",
		"cart_items":  "00002_create_cart_items_table.sql",
		"orders":      "00003_create_orders_table.sql",
		"order_items": "00004_create_order_items_table.sql",
	}

	for tableName, migrationFile := range expectedTables {
		contentStr := readMigration(t, migrationFile)

		if !strings.Contains(contentStr, "CREATE TABLE IF NOT EXISTS "+tableName) {
			t.Errorf("Migration file %s does not create table %s", migrationFile, tableName)
		}
		if !strings.Contains(contentStr, "DROP TABLE IF EXISTS "+tableName) {
			t.Errorf("Migration file %s does not drop table %s in down section", migrationFile, tableName)
		}
	}
}

func TestDealsTableHasRequiredColumns(t *testing.T) {
	contentStr := readMigration(t, "00001_create_deals_table.sql")

	requiredColumns := []string{
		"id VARCHAR(64) PRIMARY KEY",
		"title VARCHAR",
		"price DECIMAL",
		"quantity INTEGER NOT NULL CHECK (quantity >= 0)",
		"expires_at TIMESTAMPTZ NOT NULL",
		"retired_at TIMESTAMPTZ",
		"diet_tags JSONB",
	}

	for _, column := range requiredColumns {
		if !strings.Contains(contentStr, column) {
			t.Errorf("Deals table missing required column definition: %s", column)
		}
	}
}

func TestOrdersTableHasPickupCodeAndStatus(t *testing.T) {
	contentStr := readMigration(t, "00003_create_orders_table.sql")

	if !strings.Contains(contentStr, "pickup_code VARCHAR(5) NOT NULL UNIQUE") {
		t.Error("Orders table missing unique pickup_code")
	}
	for _, status := range []string{"pending", "collected", "cancelled"} {
		if !strings.Contains(contentStr, status) {
			t.Errorf("Orders table status constraint missing value: %s", status)
		}
	}
}

func TestCartItemsTableKeyedByCustomerAndDeal(t *testing.T) {
	contentStr := readMigration(t, "00002_create_cart_items_table.sql")

	if !strings.Contains(contentStr, "PRIMARY KEY (customer_id, deal_id)") {
		t.Error("Cart items table missing primary key on (customer_id, deal_id)")
	}
	if !strings.Contains(contentStr, "CHECK (quantity > 0)") {
		t.Error("Cart items table must reject empty lines")
	}
}
