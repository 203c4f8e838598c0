// Package metadata keeps the folder tree and file records of the
// reference server in SQL. Both PostgreSQL (lib/pq) and SQLite
// (modernc.org/sqlite) are supported; queries are written with ? and
// rebound for the postgres driver.
//
// Every row is keyed by its path: folders by their normalized path
// ("/docs/"), files by their file path ("/docs/guide.txt").
package metadata

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fruitsalade/explorer/internal/metrics"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/pathkey"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
	ErrRoot     = errors.New("cannot modify the root folder")
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// Entry is one row: a folder or a file.
type Entry struct {
	Path    string
	Parent  string
	Name    string
	IsDir   bool
	Type    string
	Size    int64
	ModTime time.Time
}

// Record converts a file row to its wire record, without content.
func (e Entry) Record() models.FileRecord {
	return models.FileRecord{
		Name:         e.Name,
		Type:         e.Type,
		Size:         models.DisplaySize(e.Size),
		LastModified: models.Today(e.ModTime),
	}
}

// Store is a SQL metadata store.
type Store struct {
	db       *sql.DB
	postgres bool
	logger   *zap.Logger
	now      func() time.Time
}

// Open connects to the database. driver is "sqlite" or "postgres".
func Open(driver, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{logger: logger, now: time.Now}
	switch driver {
	case "postgres":
		s.postgres = true
	case "sqlite":
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if s.postgres {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	} else {
		// One writer at a time avoids SQLITE_BUSY under concurrent requests.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s.db = db
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate applies the embedded schema and makes sure the root folder
// exists. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		s.logger.Info("Running migration", zap.String("file", f))
		content, err := migrations.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		for _, stmt := range strings.Split(string(content), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("exec migration %s: %w", f, err)
			}
		}
	}

	_, err = s.exec(ctx, s.db, "ensure_root",
		`INSERT INTO entries (path, parent, name, is_dir, type, size, mod_time)
		 VALUES (?, '', '', ?, '', 0, ?)
		 ON CONFLICT (path) DO NOTHING`,
		pathkey.Root, true, s.now().Unix())
	return err
}

// rebind rewrites ? placeholders to $N for postgres.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exec(ctx context.Context, q querier, name, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := q.ExecContext(ctx, s.rebind(query), args...)
	metrics.RecordDBQuery(name, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}

func (s *Store) query(ctx context.Context, q querier, name, query string, args ...any) ([]Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(name, time.Since(start)) }()

	rows, err := q.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e   Entry
			mod int64
		)
		if err := rows.Scan(&e.Path, &e.Parent, &e.Name, &e.IsDir, &e.Type, &e.Size, &mod); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", name, err)
		}
		e.ModTime = time.Unix(mod, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

const columns = `path, parent, name, is_dir, type, size, mod_time`

// Stat returns the row at path (a folder path or a file path).
func (s *Store) Stat(ctx context.Context, path string) (Entry, error) {
	rows, err := s.query(ctx, s.db, "stat",
		`SELECT `+columns+` FROM entries WHERE path = ?`, path)
	if err != nil {
		return Entry{}, err
	}
	if len(rows) == 0 {
		return Entry{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return rows[0], nil
}

// StatFile returns the file row at the given file path.
func (s *Store) StatFile(ctx context.Context, filePath string) (Entry, error) {
	e, err := s.Stat(ctx, filePath)
	if err == nil && e.IsDir {
		return Entry{}, fmt.Errorf("%s is a folder: %w", filePath, ErrNotFound)
	}
	return e, err
}

// List returns the entry of folder dir: its subfolder names and file
// records, sorted by name. Content is never included.
func (s *Store) List(ctx context.Context, dir string) (models.NamespaceEntry, error) {
	dir = pathkey.Normalize(dir)
	if _, err := s.dir(ctx, s.db, dir); err != nil {
		return models.NamespaceEntry{}, err
	}

	rows, err := s.query(ctx, s.db, "list",
		`SELECT `+columns+` FROM entries WHERE parent = ? ORDER BY name`, dir)
	if err != nil {
		return models.NamespaceEntry{}, err
	}

	entry := models.NamespaceEntry{Folders: []string{}, Files: []models.FileRecord{}}
	for _, r := range rows {
		if r.IsDir {
			entry.Folders = append(entry.Folders, r.Name)
		} else {
			entry.Files = append(entry.Files, r.Record())
		}
	}
	return entry, nil
}

func (s *Store) dir(ctx context.Context, q querier, dir string) (Entry, error) {
	rows, err := s.query(ctx, q, "stat_dir",
		`SELECT `+columns+` FROM entries WHERE path = ?`, dir)
	if err != nil {
		return Entry{}, err
	}
	if len(rows) == 0 || !rows[0].IsDir {
		return Entry{}, fmt.Errorf("folder %s: %w", dir, ErrNotFound)
	}
	return rows[0], nil
}

// conflict reports whether dir already holds a folder or a file called
// name.
func (s *Store) conflict(ctx context.Context, q querier, dir, name string) error {
	rows, err := s.query(ctx, q, "conflict",
		`SELECT `+columns+` FROM entries WHERE path = ? OR path = ?`,
		pathkey.Join(dir, name), pathkey.FilePath(dir, name))
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return fmt.Errorf("%s: %w", pathkey.FilePath(dir, name), ErrExists)
	}
	return nil
}

// CreateFolder adds folder name to dir. The parent must exist and must
// not already hold a folder or file of that name.
func (s *Store) CreateFolder(ctx context.Context, dir, name string) (Entry, error) {
	dir = pathkey.Normalize(dir)
	e := Entry{
		Path:    pathkey.Join(dir, name),
		Parent:  dir,
		Name:    name,
		IsDir:   true,
		ModTime: s.now().UTC(),
	}

	err := s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := s.dir(ctx, tx, dir); err != nil {
			return err
		}
		if err := s.conflict(ctx, tx, dir, name); err != nil {
			return err
		}
		_, err := s.exec(ctx, tx, "create_folder",
			`INSERT INTO entries (`+columns+`) VALUES (?, ?, ?, ?, '', 0, ?)`,
			e.Path, e.Parent, e.Name, true, e.ModTime.Unix())
		return err
	})
	return e, err
}

// PutFile inserts or updates the file record name in dir. It fails if
// dir is missing or a folder of that name exists. created reports
// whether the file is new.
func (s *Store) PutFile(ctx context.Context, dir, name string, size int64) (e Entry, created bool, err error) {
	dir = pathkey.Normalize(dir)
	e = Entry{
		Path:    pathkey.FilePath(dir, name),
		Parent:  dir,
		Name:    name,
		Type:    models.TypeFor(name),
		Size:    size,
		ModTime: s.now().UTC(),
	}

	err = s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := s.dir(ctx, tx, dir); err != nil {
			return err
		}
		existing, err := s.query(ctx, tx, "stat",
			`SELECT `+columns+` FROM entries WHERE path = ? OR path = ?`,
			pathkey.Join(dir, name), e.Path)
		if err != nil {
			return err
		}
		for _, x := range existing {
			if x.IsDir {
				return fmt.Errorf("%s is a folder: %w", e.Path, ErrExists)
			}
			e.Type = x.Type
		}
		created = len(existing) == 0

		_, err = s.exec(ctx, tx, "put_file",
			`INSERT INTO entries (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (path) DO UPDATE SET
				size = excluded.size,
				mod_time = excluded.mod_time`,
			e.Path, e.Parent, e.Name, false, e.Type, e.Size, e.ModTime.Unix())
		return err
	})
	return e, created, err
}

// Delete removes a file, or a folder with its whole subtree. It returns
// the removed file rows so their content can be deleted too.
func (s *Store) Delete(ctx context.Context, path string, isFolder bool) ([]Entry, error) {
	var removed []Entry
	err := s.tx(ctx, func(tx *sql.Tx) error {
		if !isFolder {
			rows, err := s.query(ctx, tx, "stat",
				`SELECT `+columns+` FROM entries WHERE path = ?`, path)
			if err != nil {
				return err
			}
			if len(rows) == 0 || rows[0].IsDir {
				return fmt.Errorf("file %s: %w", path, ErrNotFound)
			}
			removed = rows
			_, err = s.exec(ctx, tx, "delete_file", `DELETE FROM entries WHERE path = ?`, path)
			return err
		}

		dir := pathkey.Normalize(path)
		if dir == pathkey.Root {
			return ErrRoot
		}
		if _, err := s.dir(ctx, tx, dir); err != nil {
			return err
		}
		n := utf8.RuneCountInString(dir)
		rows, err := s.query(ctx, tx, "subtree",
			`SELECT `+columns+` FROM entries WHERE substr(path, 1, ?) = ? ORDER BY path`, n, dir)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if !r.IsDir {
				removed = append(removed, r)
			}
		}
		_, err = s.exec(ctx, tx, "delete_subtree",
			`DELETE FROM entries WHERE substr(path, 1, ?) = ?`, n, dir)
		return err
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Counts returns the number of folders (root included) and files.
func (s *Store) Counts(ctx context.Context) (folders, files int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("counts", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx, `SELECT is_dir, COUNT(*) FROM entries GROUP BY is_dir`)
	if err != nil {
		return 0, 0, fmt.Errorf("counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			isDir bool
			n     int64
		)
		if err := rows.Scan(&isDir, &n); err != nil {
			return 0, 0, fmt.Errorf("counts: scan: %w", err)
		}
		if isDir {
			folders = n
		} else {
			files = n
		}
	}
	return folders, files, rows.Err()
}

func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
