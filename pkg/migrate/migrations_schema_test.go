package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMigrationDirIsValid(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations directory invalid: %v", err)
	}
}

func TestStagingMigrationCoversPipelineTables(t *testing.T) {
	content := readMigration(t, "20250301120000_create_staging_and_rules.sql")
	for _, table := range []string{
		"order_lines",
		"classification_rules",
		"substitution_rules",
		"overflow_rules",
		"policy_values",
	} {
		if !strings.Contains(content, "CREATE TABLE "+table) {
			t.Fatalf("expected staging migration to create %s", table)
		}
	}
	if !strings.Contains(content, "chk_substitution_position") {
		t.Fatalf("substitution position bound missing")
	}
}

func TestResultMigrationCoversOutputTables(t *testing.T) {
	content := readMigration(t, "20250301120100_create_results_and_preboxed.sql")
	for _, table := range []string{"center_results", "preboxed_shipments"} {
		if !strings.Contains(content, "CREATE TABLE "+table) {
			t.Fatalf("expected result migration to create %s", table)
		}
	}
}

func readMigration(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("migrations", name))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	return string(b)
}
