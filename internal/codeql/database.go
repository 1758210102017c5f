package codeql

import (
	"os"
	"path/filepath"
)

// Database bundles the per-directory handles one finding's analysis needs:
// the relational resolver, the source archive and the normalized source root.
// All handles are read-only, so a single Database can be shared across
// workers.
type Database struct {
	Dir        string
	Resolver   *Resolver
	Archive    *Archive
	SourceRoot string
}

// OpenDatabase opens the export at dir: metadata descriptor plus src.zip.
func OpenDatabase(dir string) (*Database, error) {
	meta, err := ReadMetadata(dir)
	if err != nil {
		return nil, err
	}
	archive, err := OpenArchive(filepath.Join(dir, "src.zip"))
	if err != nil {
		return nil, err
	}
	return &Database{
		Dir:        dir,
		Resolver:   NewResolver(dir),
		Archive:    archive,
		SourceRoot: meta.SourceRoot(),
	}, nil
}

// Close releases the archive handle.
func (d *Database) Close() error { return d.Archive.Close() }

// Discover walks a databases root two levels deep (repository folder, then
// database folder) and returns every directory carrying a database
// descriptor, mirroring how the downloader lays exports out on disk.
func Discover(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, &ExportError{Path: root, Err: err}
	}

	var dbs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		repoDir := filepath.Join(root, entry.Name())
		subEntries, err := os.ReadDir(repoDir)
		if err != nil {
			continue
		}
		for _, sub := range subEntries {
			dbDir := filepath.Join(repoDir, sub.Name())
			if _, err := os.Stat(filepath.Join(dbDir, "codeql-database.yml")); err == nil {
				dbs = append(dbs, dbDir)
			}
		}
	}
	return dbs, nil
}
