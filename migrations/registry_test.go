package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"testing/fstest"

	invites "github.com/goliatone/go-invites"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
}

func TestFilesystems_RecordsVersions(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	for _, entry := range filesystems {
		if !slices.Equal(entry.Versions, []string{"0001", "0002"}) {
			t.Fatalf("expected %s versions [0001 0002], got %v", entry.Dialect, entry.Versions)
		}
	}
}

func TestFilesystems_RejectsBrokenTrees(t *testing.T) {
	body := &fstest.MapFile{Data: []byte("SELECT 1;")}
	cases := map[string]fstest.MapFS{
		"missing down": {
			"data/sql/migrations/0001_schema.up.sql":          body,
			"data/sql/migrations/sqlite/0001_schema.up.sql":   body,
			"data/sql/migrations/sqlite/0001_schema.down.sql": body,
		},
		"dialect drift": {
			"data/sql/migrations/0001_schema.up.sql":          body,
			"data/sql/migrations/0001_schema.down.sql":        body,
			"data/sql/migrations/0002_grants.up.sql":          body,
			"data/sql/migrations/0002_grants.down.sql":        body,
			"data/sql/migrations/sqlite/0001_schema.up.sql":   body,
			"data/sql/migrations/sqlite/0001_schema.down.sql": body,
		},
		"empty sqlite": {
			"data/sql/migrations/0001_schema.up.sql":   body,
			"data/sql/migrations/0001_schema.down.sql": body,
			"data/sql/migrations/sqlite/README":        body,
		},
	}
	for name, tree := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Filesystems(tree); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}

func TestRegister_RejectsUnknownDialectAndNilFunc(t *testing.T) {
	noop := func(context.Context, string, string, fs.FS) error { return nil }
	if _, err := Register(context.Background(), noop, WithValidationTargets("mysql")); err == nil {
		t.Fatalf("expected unsupported dialect to fail")
	}
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected nil register function to fail")
	}
	reg, err := Register(context.Background(), noop, WithSourceLabel("invites-test"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.SourceLabel != "invites-test" || len(reg.Filesystems) != 2 {
		t.Fatalf("unexpected registration %#v", reg)
	}
}

func TestSchemaMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := invites.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/0001_invites_schema.up.sql",
		"data/sql/migrations/0001_invites_schema.down.sql",
		"data/sql/migrations/sqlite/0001_invites_schema.up.sql",
		"data/sql/migrations/sqlite/0001_invites_schema.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteSchemaMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-invites-schema?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := invites.GetMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()

	if err := execSQLMigration(ctx, db, sqliteMigrations, "0001_invites_schema.up.sql"); err != nil {
		t.Fatalf("apply schema migration up: %v", err)
	}

	for _, tableName := range []string{"invitation_tokens", "profiles", "owned_resources", "entitlement_grants"} {
		var count int
		if err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
			tableName,
		).Scan(&count); err != nil {
			t.Fatalf("query sqlite_master for %s: %v", tableName, err)
		}
		if count != 1 {
			t.Fatalf("expected table %s to exist after up migration", tableName)
		}
	}

	insertGrant := `
		INSERT INTO entitlement_grants
			(id, subject_identity, resource_ref, source, source_ref, granted_at, revoked_at, revocation_reason, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(ctx, insertGrant,
		"grant_1", "usr_1", "masterclass:1", "direct_purchase", "order_1", "2026-01-01 00:00:00+00:00", nil, "", "{}",
	); err != nil {
		t.Fatalf("insert grant: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertGrant,
		"grant_2", "usr_1", "masterclass:1", "direct_purchase", "order_1", "2026-01-02 00:00:00+00:00", nil, "", "{}",
	); err == nil {
		t.Fatalf("expected duplicate active grant to violate the unique index")
	}
	if _, err := db.ExecContext(ctx,
		`UPDATE entitlement_grants SET revoked_at = ?, revocation_reason = ? WHERE id = ?`,
		"2026-01-03 00:00:00+00:00", "refund", "grant_1",
	); err != nil {
		t.Fatalf("revoke grant: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertGrant,
		"grant_3", "usr_1", "masterclass:1", "direct_purchase", "order_1", "2026-01-04 00:00:00+00:00", nil, "", "{}",
	); err != nil {
		t.Fatalf("expected re-grant after revocation to succeed: %v", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO profiles (id, kind, status, display_name) VALUES (?, ?, ?, ?)`,
		"prof_1", "guest", "pending", "",
	); err != nil {
		t.Fatalf("insert profile: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO profiles (id, kind, status, display_name) VALUES (?, ?, ?, ?)`,
		"prof_2", "guest", "limbo", "",
	); err == nil {
		t.Fatalf("expected unknown profile status to be rejected")
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO owned_resources (resource_id, profile_id, kind) VALUES (?, ?, ?)`,
		"res_1", "prof_404", "wardrobe",
	); err == nil {
		t.Fatalf("expected resource without profile to be rejected")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "0002_claim_settlement.up.sql"); err != nil {
		t.Fatalf("apply claim settlement migration up: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO invitation_tokens (id, token, target_resource_id, status, issued_at, expires_at, consumed_by, consumed_at, claim_completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"tok_1", "raw-token", "prof_1", "consumed", "2026-01-01 00:00:00+00:00", "2026-01-08 00:00:00+00:00",
		"usr_1", "2026-01-02 00:00:00+00:00", "2026-01-02 00:00:01+00:00",
	); err != nil {
		t.Fatalf("insert settled token: %v", err)
	}
	if err := execSQLMigration(ctx, db, sqliteMigrations, "0002_claim_settlement.down.sql"); err != nil {
		t.Fatalf("apply claim settlement migration down: %v", err)
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "0001_invites_schema.down.sql"); err != nil {
		t.Fatalf("apply schema migration down: %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('invitation_tokens', 'profiles', 'owned_resources', 'entitlement_grants')`,
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master after down migration: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected schema tables to be dropped after down migration, got %d", count)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
