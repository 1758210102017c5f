package codeql

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeMetadata(t *testing.T, dir, prefix string) {
	t.Helper()
	content := "sourceLocationPrefix: " + prefix + "\nprimaryLanguage: cpp\n"
	if err := os.WriteFile(filepath.Join(dir, "codeql-database.yml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSourceRootUnix(t *testing.T) {
	dir := t.TempDir()
	writeMetadata(t, dir, "/home/user/proj")

	meta, err := ReadMetadata(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := meta.SourceRoot(); got != "home/user/proj" {
		t.Fatalf("SourceRoot() = %q, want home/user/proj", got)
	}
}

func TestSourceRootWindows(t *testing.T) {
	dir := t.TempDir()
	writeMetadata(t, dir, `C:\src\proj`)

	meta, err := ReadMetadata(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := meta.SourceRoot(); got != "C_/src/proj" {
		t.Fatalf("SourceRoot() = %q, want C_/src/proj", got)
	}
}

func TestReadMetadataMissing(t *testing.T) {
	_, err := ReadMetadata(t.TempDir())
	if !errors.Is(err, ErrExportUnreadable) {
		t.Fatalf("got %v, want ErrExportUnreadable", err)
	}
}

func TestParseFindings(t *testing.T) {
	dir := t.TempDir()
	content := `"Potentially uninitialized local variable","Reading uninitialized memory.","warning","Variable may not be initialized.","/app/main.c","12","5","12","8"
"short","row"
"Rule","Desc","warning","msg","/app/a.c","x","1","2","3"
"Another rule","Desc","warning","msg","/app/b.c","3","1","3","4"
`
	if err := os.WriteFile(filepath.Join(dir, "issues.csv"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	findings, err := ParseFindings(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 2 {
		t.Fatalf("got %d findings, want 2 (malformed rows skipped)", len(findings))
	}

	first := findings[0]
	if first.RuleName != "Potentially uninitialized local variable" ||
		first.File != "/app/main.c" ||
		first.StartLine != 12 || first.StartOffset != 5 ||
		first.EndLine != 12 || first.EndOffset != 8 {
		t.Fatalf("unexpected finding: %+v", first)
	}
	if first.DatabasePath != dir {
		t.Fatalf("DatabasePath = %q, want %q", first.DatabasePath, dir)
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()

	dbDir := filepath.Join(root, "repo-a", "db-cpp")
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeMetadata(t, dbDir, "/proj")

	// A sibling without a descriptor is not a database.
	if err := os.MkdirAll(filepath.Join(root, "repo-b", "notes"), 0o755); err != nil {
		t.Fatal(err)
	}

	dbs, err := Discover(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(dbs) != 1 || dbs[0] != dbDir {
		t.Fatalf("Discover() = %v, want [%s]", dbs, dbDir)
	}
}
