package migration

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestFileScanner_ScanMigrations(t *testing.T) {
	t.Run("orders migrations by numeric version", func(t *testing.T) {
		files := fstest.MapFS{
			"010_add_index.sql":   {Data: []byte("CREATE INDEX idx ON books(title);")},
			"002_add_books.sql":   {Data: []byte("-- Description: Books table\nCREATE TABLE books (id TEXT);")},
			"001_initial.sql":     {Data: []byte("CREATE TABLE users (id TEXT);")},
			"README.md":           {Data: []byte("ignored")},
			"nested/003_skip.sql": {Data: []byte("CREATE TABLE skipped (id TEXT);")},
		}

		migrations, err := NewFileScanner().ScanMigrations(files)
		if err != nil {
			t.Fatalf("ScanMigrations failed: %v", err)
		}
		if len(migrations) != 3 {
			t.Fatalf("expected 3 migrations, got %d", len(migrations))
		}
		got := []string{migrations[0].Version, migrations[1].Version, migrations[2].Version}
		want := []string{"001", "002", "010"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("unexpected order %v", got)
			}
		}
		if migrations[1].Description != "Books table" {
			t.Fatalf("expected description from comment, got %q", migrations[1].Description)
		}
		if migrations[0].Description != "initial" {
			t.Fatalf("expected description from filename, got %q", migrations[0].Description)
		}
		if migrations[0].Checksum == "" {
			t.Fatal("expected checksum to be populated")
		}
	})

	t.Run("rejects duplicate versions", func(t *testing.T) {
		files := fstest.MapFS{
			"001_a.sql":  {Data: []byte("CREATE TABLE a (id TEXT);")},
			"001_c.sql":  {Data: []byte("CREATE TABLE c (id TEXT);")},
		}
		_, err := NewFileScanner().ScanMigrations(files)
		if !errors.Is(err, ErrDuplicateVersion) {
			t.Fatalf("expected ErrDuplicateVersion, got %v", err)
		}
	})

	t.Run("rejects malformed file names", func(t *testing.T) {
		files := fstest.MapFS{"initial.sql": {Data: []byte("CREATE TABLE a (id TEXT);")}}
		_, err := NewFileScanner().ScanMigrations(files)
		if !errors.Is(err, ErrInvalidMigrationFile) {
			t.Fatalf("expected ErrInvalidMigrationFile, got %v", err)
		}
	})

	t.Run("rejects unbalanced SQL", func(t *testing.T) {
		cases := map[string]string{
			"open paren":  "CREATE TABLE a (id TEXT;",
			"close paren": "CREATE TABLE a id TEXT);",
			"string":      "INSERT INTO a VALUES ('x);",
			"only notes":  "-- nothing here",
		}
		for name, sql := range cases {
			t.Run(name, func(t *testing.T) {
				files := fstest.MapFS{"001_bad.sql": {Data: []byte(sql)}}
				_, err := NewFileScanner().ScanMigrations(files)
				if !errors.Is(err, ErrInvalidMigrationFile) {
					t.Fatalf("expected ErrInvalidMigrationFile, got %v", err)
				}
			})
		}
	})

	t.Run("ignores parentheses inside string literals", func(t *testing.T) {
		files := fstest.MapFS{"001_ok.sql": {Data: []byte("CREATE INDEX i ON loans(user_id) WHERE status = 'BORROWED (active)';")}}
		if _, err := NewFileScanner().ScanMigrations(files); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestSplitStatements(t *testing.T) {
	sql := `-- Description: two tables
CREATE TABLE a (id TEXT);

-- second one
CREATE TABLE b (id TEXT);
`
	statements := splitStatements(sql)
	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d: %v", len(statements), statements)
	}
	if statements[1] != "CREATE TABLE b (id TEXT)" {
		t.Fatalf("unexpected statement %q", statements[1])
	}
}
