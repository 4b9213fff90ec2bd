// Package sqlstore is a storage.Store on SQLite or Postgres. The schema is
// managed with embedded goose migrations.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store persists state in a SQL database.
type Store struct {
	db     *sql.DB
	driver string
	log    *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Open connects to the database and applies pending migrations. For SQLite
// dsn is a file path.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn is required")
	}

	var dialect goose.Dialect
	switch driver {
	case DriverSQLite:
		dialect = goose.DialectSQLite3
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	case DriverPostgres:
		dialect = goose.DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}

	s := &Store{db: db, driver: driver, log: logger.WithGroup("sqlstore")}
	if err := s.migrate(ctx, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context, dialect goose.Dialect) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	provider, err := goose.NewProvider(dialect, s.db, fsys)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	for _, r := range results {
		s.log.Info("applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind converts "?" placeholders to the driver's syntax.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
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

const selectPosts = `
SELECT id, title, media_kind, media_ref, file_ref, file_name, file_size, link,
	category, required_channels, selected_channels, published, downloads,
	notify_on_publish, created_at
FROM posts ORDER BY created_at, id`

// Load reads every post and the user state.
func (s *Store) Load(ctx context.Context) (storage.Snapshot, error) {
	var snap storage.Snapshot

	rows, err := s.db.QueryContext(ctx, selectPosts)
	if err != nil {
		return snap, fmt.Errorf("load posts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return snap, fmt.Errorf("load posts: %w", err)
		}
		snap.Posts = append(snap.Posts, p)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("load posts: %w", err)
	}

	urows, err := s.db.QueryContext(ctx, `SELECT id, banned FROM users ORDER BY id`)
	if err != nil {
		return snap, fmt.Errorf("load users: %w", err)
	}
	defer urows.Close()
	for urows.Next() {
		var id int64
		var banned bool
		if err := urows.Scan(&id, &banned); err != nil {
			return snap, fmt.Errorf("load users: %w", err)
		}
		snap.Users.Known = append(snap.Users.Known, core.UserID(id))
		if banned {
			snap.Users.Banned = append(snap.Users.Banned, core.UserID(id))
		}
	}
	if err := urows.Err(); err != nil {
		return snap, fmt.Errorf("load users: %w", err)
	}

	arows, err := s.db.QueryContext(ctx, `SELECT id FROM admins ORDER BY id`)
	if err != nil {
		return snap, fmt.Errorf("load admins: %w", err)
	}
	defer arows.Close()
	for arows.Next() {
		var id int64
		if err := arows.Scan(&id); err != nil {
			return snap, fmt.Errorf("load admins: %w", err)
		}
		snap.Users.Admins = append(snap.Users.Admins, core.UserID(id))
	}
	return snap, arows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (*post.Post, error) {
	var (
		r                         storage.Record
		fileRef, fileName         sql.NullString
		fileSize                  sql.NullInt64
		required, selected, pubJS string
		createdAt                 int64
	)
	err := row.Scan(&r.ID, &r.Title, &r.MediaKind, &r.MediaRef, &fileRef, &fileName, &fileSize, &r.Link,
		&r.Category, &required, &selected, &pubJS, &r.Downloads, &r.NotifyOnPublish, &createdAt)
	if err != nil {
		return nil, err
	}
	if fileRef.Valid {
		r.File = &storage.FileRecord{Ref: fileRef.String, Name: fileName.String, Size: fileSize.Int64}
	}
	for _, f := range []struct {
		src string
		dst any
	}{{required, &r.RequiredChannels}, {selected, &r.SelectedChannels}, {pubJS, &r.Published}} {
		if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
			return nil, fmt.Errorf("post %s: %w", r.ID, err)
		}
	}
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	return r.Post(), nil
}

// SavePosts replaces the stored post set in one transaction.
func (s *Store) SavePosts(ctx context.Context, posts []*post.Post) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save posts: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM posts`); err != nil {
		return fmt.Errorf("save posts: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(`
INSERT INTO posts (
	id, title, media_kind, media_ref, file_ref, file_name, file_size, link,
	category, required_channels, selected_channels, published, downloads,
	notify_on_publish, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("save posts: %w", err)
	}
	defer stmt.Close()

	for _, p := range posts {
		r := storage.NewRecord(p)
		var fileRef, fileName sql.NullString
		var fileSize sql.NullInt64
		if r.File != nil {
			fileRef = sql.NullString{String: r.File.Ref, Valid: true}
			fileName = sql.NullString{String: r.File.Name, Valid: true}
			fileSize = sql.NullInt64{Int64: r.File.Size, Valid: true}
		}
		required, err := jsonText(r.RequiredChannels)
		if err != nil {
			return err
		}
		selected, err := jsonText(r.SelectedChannels)
		if err != nil {
			return err
		}
		published, err := jsonText(r.Published)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			r.ID, r.Title, r.MediaKind, r.MediaRef, fileRef, fileName, fileSize, r.Link,
			r.Category, required, selected, published, r.Downloads,
			r.NotifyOnPublish, r.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("save post %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save posts: %w", err)
	}
	return nil
}

// SaveUsers replaces the stored users and admins in one transaction.
func (s *Store) SaveUsers(ctx context.Context, users storage.UserState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	defer tx.Rollback()

	banned := make(map[core.UserID]bool, len(users.Banned))
	for _, id := range users.Banned {
		banned[id] = true
	}
	known := append([]core.UserID(nil), users.Known...)
	for _, id := range users.Banned {
		if !slices.Contains(users.Known, id) {
			known = append(known, id)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	for _, id := range known {
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO users (id, banned) VALUES (?, ?)`), int64(id), banned[id]); err != nil {
			return fmt.Errorf("save user %s: %w", id, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM admins`); err != nil {
		return fmt.Errorf("save admins: %w", err)
	}
	for _, id := range users.Admins {
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO admins (id) VALUES (?)`), int64(id)); err != nil {
			return fmt.Errorf("save admin %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}

func jsonText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	return string(b), nil
}
