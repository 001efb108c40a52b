package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/pagedrift/pagedrift/internal/logging"
	"github.com/pagedrift/pagedrift/internal/model"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteStore implements Store on a local SQLite archive of captured
// versions.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLiteStore opens (or creates) the archive at dbPath and applies the
// schema. Failing to open the store is fatal to the run, so errors here are
// returned rather than logged and swallowed.
func NewSQLiteStore(dbPath string, logger logging.Logger) (*SQLiteStore, error) {
	if logger == nil {
		return nil, errors.New("store: nil logger provided")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("version store opened", logging.Field{Key: "path", Value: dbPath})
	return &SQLiteStore{db: db, logger: logger}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous=NORMAL", // Balance between safety and performance
		"PRAGMA foreign_keys=ON",    // Enable foreign key constraints
		"PRAGMA busy_timeout=5000",  // Wait up to 5 seconds on locked database
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for components that share the database.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func pageFilter(q PageQuery) (where string, args []any) {
	clauses := []string{"1=1"}
	if q.URLPattern != "" {
		clauses = append(clauses, "url LIKE ?")
		args = append(args, strings.ReplaceAll(q.URLPattern, "*", "%"))
	}
	for _, tag := range q.Tags {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM json_each(pages.tags) WHERE json_each.value = ?)")
		args = append(args, tag)
	}
	return strings.Join(clauses, " AND "), args
}

func (s *SQLiteStore) ListPages(ctx context.Context, q PageQuery) ([]model.Page, error) {
	where, args := pageFilter(q)
	query := "SELECT id, url, title, status, tags, maintainers FROM pages WHERE " +
		where + " ORDER BY url ASC"
	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []model.Page
	for rows.Next() {
		var (
			page      model.Page
			tagsJSON  string
			maintJSON string
		)
		if err := rows.Scan(&page.ID, &page.URL, &page.Title, &page.Status, &tagsJSON, &maintJSON); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		var tagNames []string
		if err := json.Unmarshal([]byte(tagsJSON), &tagNames); err == nil {
			for _, name := range tagNames {
				page.Tags = append(page.Tags, model.Tag{Name: name})
			}
		}
		_ = json.Unmarshal([]byte(maintJSON), &page.Maintainers)
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

func (s *SQLiteStore) CountPages(ctx context.Context, q PageQuery) (int, error) {
	where, args := pageFilter(q)
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages WHERE "+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) GetPage(ctx context.Context, id string) (*model.Page, error) {
	var (
		page      model.Page
		tagsJSON  string
		maintJSON string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, url, title, status, tags, maintainers FROM pages WHERE id = ?", id).
		Scan(&page.ID, &page.URL, &page.Title, &page.Status, &tagsJSON, &maintJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	var tagNames []string
	if err := json.Unmarshal([]byte(tagsJSON), &tagNames); err == nil {
		for _, name := range tagNames {
			page.Tags = append(page.Tags, model.Tag{Name: name})
		}
	}
	_ = json.Unmarshal([]byte(maintJSON), &page.Maintainers)
	return &page, nil
}

func (s *SQLiteStore) ListVersions(ctx context.Context, q VersionQuery) ([]model.Version, error) {
	clauses := []string{"page_id = ?"}
	args := []any{q.PageID}
	if !q.After.IsZero() {
		clauses = append(clauses, "capture_time >= ?")
		args = append(args, formatTime(q.After))
	}
	if !q.Before.IsZero() {
		clauses = append(clauses, "capture_time < ?")
		args = append(args, formatTime(q.Before))
	}

	query := `SELECT id, page_id, capture_time, status, content_length, headers,
		body_hash, media_type, capture_url, body_url, redirects, title
		FROM versions WHERE ` + strings.Join(clauses, " AND ") +
		" ORDER BY capture_time DESC"
	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []model.Version
	for rows.Next() {
		var (
			v             model.Version
			captureTime   string
			status        sql.NullInt64
			headersJSON   string
			redirectsJSON string
		)
		if err := rows.Scan(&v.ID, &v.PageID, &captureTime, &status, &v.ContentLength,
			&headersJSON, &v.BodyHash, &v.MediaType, &v.CaptureURL, &v.BodyURL,
			&redirectsJSON, &v.Title); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, captureTime); err == nil {
			v.CaptureTime = t
		}
		if status.Valid {
			value := int(status.Int64)
			v.Status = &value
		}
		_ = json.Unmarshal([]byte(headersJSON), &v.Headers)
		_ = json.Unmarshal([]byte(redirectsJSON), &v.Redirects)
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// PutPage inserts or replaces a monitored page.
func (s *SQLiteStore) PutPage(ctx context.Context, page *model.Page) error {
	if page.ID == "" {
		page.ID = uuid.New().String()
	}
	tagNames := make([]string, 0, len(page.Tags))
	for _, tag := range page.Tags {
		tagNames = append(tagNames, tag.Name)
	}
	tagsJSON, _ := json.Marshal(tagNames)
	maintJSON, _ := json.Marshal(page.Maintainers)

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO pages (id, url, title, status, tags, maintainers)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		page.ID, page.URL, page.Title, page.Status, string(tagsJSON), string(maintJSON))
	if err != nil {
		return fmt.Errorf("put page: %w", err)
	}
	return nil
}

// PutVersion inserts or replaces a captured version.
func (s *SQLiteStore) PutVersion(ctx context.Context, v *model.Version) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	headersJSON, _ := json.Marshal(v.Headers)
	redirectsJSON, _ := json.Marshal(v.Redirects)

	var status any
	if v.Status != nil {
		status = *v.Status
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO versions (id, page_id, capture_time, status,
		 content_length, headers, body_hash, media_type, capture_url, body_url,
		 redirects, title)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.PageID, formatTime(v.CaptureTime), status, v.ContentLength,
		string(headersJSON), v.BodyHash, v.MediaType, v.CaptureURL, v.BodyURL,
		string(redirectsJSON), v.Title)
	if err != nil {
		return fmt.Errorf("put version: %w", err)
	}
	return nil
}

// timeLayout is RFC 3339 UTC with a fixed-width fractional second, so
// lexicographic and chronological ordering agree. RFC3339Nano would trim
// trailing zeros, and "…00Z" sorts after "…00.5Z" ('Z' > '.'), which would
// break the newest-first ORDER BY and the window bounds.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
