package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/mwantia/mirrorfs/data"
	"github.com/mwantia/mirrorfs/sandbox"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteSandbox is a sandbox filesystem persisted in a single SQLite
// database. Entries live in one table keyed by path; directory rows carry
// no content. Mutations made through this sandbox are echoed on the watch
// feed; changes made to the database out-of-band are not observed.
type SQLiteSandbox struct {
	mu   sync.RWMutex
	db   *sql.DB
	feed *sandbox.Feed
}

// NewSQLiteSandbox creates a SQLite-backed sandbox. The dbPath can be
// ":memory:" for an in-memory database or a file path.
func NewSQLiteSandbox(dbPath string) (*SQLiteSandbox, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	ss := &SQLiteSandbox{
		db:   db,
		feed: sandbox.NewFeed(),
	}

	if err := ss.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return ss, nil
}

func (ss *SQLiteSandbox) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS mirror_entries (
		path TEXT PRIMARY KEY,
		dir INTEGER NOT NULL DEFAULT 0,
		content BLOB,
		modify_time INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_mirror_entries_dir ON mirror_entries(dir);
	`

	_, err := ss.db.Exec(schema)
	return err
}

// Name returns the identifier name defined for this backend.
func (*SQLiteSandbox) Name() string {
	return "sqlite"
}

// Open is part of the lifecycle behaviour and gets called when opening this backend.
func (ss *SQLiteSandbox) Open(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close is part of the lifecycle behaviour and gets called when closing this backend.
func (ss *SQLiteSandbox) Close(ctx context.Context) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	ss.feed.Close()
	return ss.db.Close()
}

func (ss *SQLiteSandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	var dir bool
	var content []byte
	row := ss.db.QueryRowContext(ctx,
		"SELECT dir, content FROM mirror_entries WHERE path = ?", path)
	if err := row.Scan(&dir, &content); err != nil {
		if err == sql.ErrNoRows {
			return nil, data.ErrNotExist
		}
		return nil, err
	}

	if dir {
		return nil, data.ErrIsDirectory
	}

	return content, nil
}

func (ss *SQLiteSandbox) WriteFile(ctx context.Context, path string, content []byte) error {
	if path == "" {
		return data.ErrInvalidPath
	}

	ss.mu.Lock()

	var dir bool
	exists := true
	row := ss.db.QueryRowContext(ctx,
		"SELECT dir FROM mirror_entries WHERE path = ?", path)
	if err := row.Scan(&dir); err != nil {
		if err != sql.ErrNoRows {
			ss.mu.Unlock()
			return err
		}
		exists = false
	}

	if exists && dir {
		ss.mu.Unlock()
		return data.ErrIsDirectory
	}

	events, err := ss.ensureParentsUnsafe(ctx, path)
	if err != nil {
		ss.mu.Unlock()
		return err
	}

	now := time.Now().UnixNano()
	_, err = ss.db.ExecContext(ctx, `
		INSERT INTO mirror_entries (path, dir, content, modify_time)
		VALUES (?, 0, ?, ?)
		ON CONFLICT(path) DO UPDATE SET content = excluded.content, modify_time = excluded.modify_time`,
		path, content, now)
	if err != nil {
		ss.mu.Unlock()
		return err
	}

	kind := data.EventAddFile
	if exists {
		kind = data.EventChangeFile
	}
	events = append(events, data.WatchEvent{
		Kind:    kind,
		Path:    sandbox.AbsolutePath(path),
		Payload: content,
	})
	ss.mu.Unlock()

	for _, ev := range events {
		ss.feed.Publish(ev)
	}

	return nil
}

func (ss *SQLiteSandbox) MakeDirectory(ctx context.Context, path string) error {
	if path == "" {
		return data.ErrInvalidPath
	}

	ss.mu.Lock()

	var dir bool
	row := ss.db.QueryRowContext(ctx,
		"SELECT dir FROM mirror_entries WHERE path = ?", path)
	err := row.Scan(&dir)
	if err == nil {
		ss.mu.Unlock()
		if dir {
			return data.ErrExist
		}
		return data.ErrNotDirectory
	}
	if err != sql.ErrNoRows {
		ss.mu.Unlock()
		return err
	}

	events, err := ss.ensureParentsUnsafe(ctx, path)
	if err != nil {
		ss.mu.Unlock()
		return err
	}

	now := time.Now().UnixNano()
	if _, err := ss.db.ExecContext(ctx,
		"INSERT INTO mirror_entries (path, dir, modify_time) VALUES (?, 1, ?)",
		path, now); err != nil {
		ss.mu.Unlock()
		return err
	}

	events = append(events, data.WatchEvent{
		Kind: data.EventAddDir,
		Path: sandbox.AbsolutePath(path),
	})
	ss.mu.Unlock()

	for _, ev := range events {
		ss.feed.Publish(ev)
	}

	return nil
}

func (ss *SQLiteSandbox) Remove(ctx context.Context, path string) error {
	if path == "" {
		return data.ErrInvalidPath
	}

	ss.mu.Lock()

	var dir bool
	row := ss.db.QueryRowContext(ctx,
		"SELECT dir FROM mirror_entries WHERE path = ?", path)
	if err := row.Scan(&dir); err != nil {
		ss.mu.Unlock()
		if err == sql.ErrNoRows {
			return data.ErrNotExist
		}
		return err
	}

	kind := data.EventRemoveFile
	if dir {
		kind = data.EventRemoveDir

		if _, err := ss.db.ExecContext(ctx,
			"DELETE FROM mirror_entries WHERE path LIKE ? ESCAPE '\\'",
			escapeLike(path)+"/%"); err != nil {
			ss.mu.Unlock()
			return err
		}
	}

	if _, err := ss.db.ExecContext(ctx,
		"DELETE FROM mirror_entries WHERE path = ?", path); err != nil {
		ss.mu.Unlock()
		return err
	}
	ss.mu.Unlock()

	ss.feed.Publish(data.WatchEvent{Kind: kind, Path: sandbox.AbsolutePath(path)})

	return nil
}

// Watch streams change events, replaying current contents first.
func (ss *SQLiteSandbox) Watch(ctx context.Context) (<-chan data.WatchEvent, error) {
	return sandbox.WatchFeed(ctx, ss.feed, ss.snapshot)
}

func (ss *SQLiteSandbox) snapshot(ctx context.Context) ([]data.WatchEvent, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	rows, err := ss.db.QueryContext(ctx,
		"SELECT path, dir, content FROM mirror_entries ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []data.WatchEvent
	for rows.Next() {
		var path string
		var dir bool
		var content []byte
		if err := rows.Scan(&path, &dir, &content); err != nil {
			return nil, err
		}

		if dir {
			events = append(events, data.WatchEvent{
				Kind: data.EventAddDir,
				Path: sandbox.AbsolutePath(path),
			})
		} else {
			events = append(events, data.WatchEvent{
				Kind:    data.EventAddFile,
				Path:    sandbox.AbsolutePath(path),
				Payload: content,
			})
		}
	}

	return events, rows.Err()
}

// ensureParentsUnsafe inserts missing parent directory rows for path and
// returns the add events to publish. Must be called with lock held.
func (ss *SQLiteSandbox) ensureParentsUnsafe(ctx context.Context, path string) ([]data.WatchEvent, error) {
	var events []data.WatchEvent

	segments := strings.Split(path, "/")
	current := ""
	for _, segment := range segments[:len(segments)-1] {
		if current == "" {
			current = segment
		} else {
			current = current + "/" + segment
		}

		var dir bool
		row := ss.db.QueryRowContext(ctx,
			"SELECT dir FROM mirror_entries WHERE path = ?", current)
		err := row.Scan(&dir)
		if err == nil {
			if !dir {
				return nil, data.ErrNotDirectory
			}
			continue
		}
		if err != sql.ErrNoRows {
			return nil, err
		}

		now := time.Now().UnixNano()
		if _, err := ss.db.ExecContext(ctx,
			"INSERT INTO mirror_entries (path, dir, modify_time) VALUES (?, 1, ?)",
			current, now); err != nil {
			return nil, err
		}

		events = append(events, data.WatchEvent{
			Kind: data.EventAddDir,
			Path: sandbox.AbsolutePath(current),
		})
	}

	return events, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
