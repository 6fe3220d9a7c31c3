package source

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Library stores named sources in a SQLite database so that programs can
// include shared code without a directory layout.
type Library struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Module is one stored source.
type Module struct {
	Name      string
	Source    string
	UpdatedAt time.Time
}

// OpenLibrary opens or creates the library database at path.
func OpenLibrary(path string) (*Library, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening library: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS modules (
		name TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Library{db: db, path: path}, nil
}

// Path returns the database file.
func (l *Library) Path() string { return l.path }

// Close closes the database connection.
func (l *Library) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// moduleName strips the source extension so "a" and "a.nth" name the same
// module.
func moduleName(name string) string {
	return strings.TrimSuffix(filepath.ToSlash(name), Ext)
}

// Put stores or replaces a module.
func (l *Library) Put(name, src string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(
		"INSERT OR REPLACE INTO modules (name, source, updated_at) VALUES (?, ?, ?)",
		moduleName(name), src, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving module: %w", err)
	}
	return nil
}

// Get returns a stored module.
func (l *Library) Get(name string) (*Module, error) {
	var (
		m       Module
		updated int64
	)
	err := l.db.QueryRow(
		"SELECT name, source, updated_at FROM modules WHERE name = ?", moduleName(name),
	).Scan(&m.Name, &m.Source, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(name)
		}
		return nil, fmt.Errorf("querying module: %w", err)
	}
	m.UpdatedAt = time.Unix(updated, 0)
	return &m, nil
}

// Include returns the source of a stored module.
func (l *Library) Include(name string) (string, error) {
	m, err := l.Get(name)
	if err != nil {
		return "", err
	}
	log.Debugf("include %s from library %s", m.Name, l.path)
	return m.Source, nil
}

// Delete removes a module. Deleting an unknown module is not an error.
func (l *Library) Delete(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.db.Exec("DELETE FROM modules WHERE name = ?", moduleName(name)); err != nil {
		return fmt.Errorf("deleting module: %w", err)
	}
	return nil
}

// Names lists stored modules in name order.
func (l *Library) Names() ([]string, error) {
	rows, err := l.db.Query("SELECT name FROM modules ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing modules: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning module: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Import stores every source file under fsys, named by its path without
// extension. It returns the number of modules stored.
func (l *Library) Import(fsys fs.FS) (int, error) {
	count := 0
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(p) != Ext {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		if err := l.Put(p, string(data)); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("importing modules: %w", err)
	}
	log.Infof("imported %d modules into %s", count, l.path)
	return count, nil
}
