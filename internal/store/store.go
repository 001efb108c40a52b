// Package store is the version store boundary: pages and their captured
// versions, queried in pages (chunks) so callers can stream large histories
// and honor cancellation between chunks.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/pagedrift/pagedrift/internal/model"
)

var (
	ErrPageNotFound = errors.New("page not found")
)

// PageQuery filters the monitored page listing.
type PageQuery struct {
	// URLPattern filters page URLs; "*" matches any run of characters.
	URLPattern string

	// Tags requires every named tag to be present on the page.
	Tags []string

	Limit  int
	Offset int
}

// VersionQuery selects a chunk of a page's version history,
// capture-time descending. Zero times mean unbounded.
type VersionQuery struct {
	PageID string
	After  time.Time
	Before time.Time
	Limit  int
	Offset int
}

// Store is a paginated source of pages and versions. Implementations must
// return versions newest-first.
type Store interface {
	ListPages(ctx context.Context, q PageQuery) ([]model.Page, error)
	CountPages(ctx context.Context, q PageQuery) (int, error)

	// GetPage returns the page with the given ID, or ErrPageNotFound.
	GetPage(ctx context.Context, id string) (*model.Page, error)

	ListVersions(ctx context.Context, q VersionQuery) ([]model.Version, error)
	Close() error
}

// VersionCursor walks a page's version history newest-first, fetching one
// chunk at a time. The context is checked between chunks so a canceled run
// stops promptly instead of draining the whole history.
type VersionCursor struct {
	ctx       context.Context
	store     Store
	query     VersionQuery
	chunkSize int

	buffer []model.Version
	pos    int
	done   bool
}

// NewVersionCursor creates a cursor over the versions of pageID captured
// before the given time (zero = unbounded).
func NewVersionCursor(ctx context.Context, s Store, pageID string, before time.Time, chunkSize int) *VersionCursor {
	if chunkSize <= 0 {
		chunkSize = 20
	}
	return &VersionCursor{
		ctx:       ctx,
		store:     s,
		query:     VersionQuery{PageID: pageID, Before: before, Limit: chunkSize},
		chunkSize: chunkSize,
	}
}

// Next returns the next (older) version. ok is false when the history is
// exhausted or the context is canceled; err carries store or context errors.
func (c *VersionCursor) Next() (v *model.Version, ok bool, err error) {
	if c.pos >= len(c.buffer) {
		if c.done {
			return nil, false, nil
		}
		if err := c.ctx.Err(); err != nil {
			return nil, false, err
		}
		chunk, err := c.store.ListVersions(c.ctx, c.query)
		if err != nil {
			return nil, false, err
		}
		if len(chunk) < c.chunkSize {
			c.done = true
		}
		if len(chunk) == 0 {
			return nil, false, nil
		}
		c.query.Offset += len(chunk)
		c.buffer = chunk
		c.pos = 0
	}
	version := c.buffer[c.pos]
	c.pos++
	return &version, true, nil
}

// EachPage streams every matching page in chunks, invoking fn per page. It
// stops early when fn returns an error or the context is canceled.
func EachPage(ctx context.Context, s Store, q PageQuery, chunkSize int, fn func(model.Page) error) error {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	q.Limit = chunkSize
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := s.ListPages(ctx, q)
		if err != nil {
			return err
		}
		for _, page := range chunk {
			if err := fn(page); err != nil {
				return err
			}
		}
		if len(chunk) < chunkSize {
			return nil
		}
		q.Offset += len(chunk)
	}
}
