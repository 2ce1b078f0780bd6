package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/perfcycle/pms-backend/pkg/migrate"
)

func TestOutboxMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_audit_outbox.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no audit outbox migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TYPE outbox_status_enum AS ENUM ('pending', 'failed', 'sent', 'dead_letter')",
		"CREATE TABLE audit_outbox",
		"CREATE UNIQUE INDEX ux_audit_outbox_event_id ON audit_outbox (event_id)",
		"next_attempt_at TIMESTAMPTZ NOT NULL",
		"DROP TABLE audit_outbox",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestDeadLetterMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_audit_dead_letter.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no dead letter migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE audit_dead_letter",
		"error_message TEXT",
		"failed_at     TIMESTAMPTZ NOT NULL",
		"DROP TABLE audit_dead_letter",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}
