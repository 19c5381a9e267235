package records

import (
	"context"

	"github.com/pkg/errors"
)

// Pager walks a query page by page, following the store's cursor.
// It is not safe for concurrent use.
//
//	p := records.NewPager(store, q)
//	for p.Next(ctx) {
//		use(p.Records())
//	}
//	if err := p.Err(); err != nil { ... }
type Pager struct {
	store Store
	query Query

	cursor string
	seen   map[string]struct{}
	page   []Record
	pages  int
	done   bool
	err    error
}

func NewPager(store Store, q Query) *Pager {
	p := &Pager{store: store, query: q}
	p.Reset()
	return p
}

// Next fetches the next page. It returns false when the query is exhausted or a fetch failed.
func (p *Pager) Next(ctx context.Context) bool {
	if p.done || p.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		p.err = err
		return false
	}

	page, err := p.store.FetchPage(ctx, p.query, p.cursor)
	if err != nil {
		p.err = errors.Wrapf(err, "fetching %s page %d", p.query.Table, p.pages+1)
		p.page = nil
		return false
	}
	p.pages++
	p.page = page.Records

	if page.Cursor == "" {
		p.done = true
		return true
	}
	if _, ok := p.seen[page.Cursor]; ok {
		p.err = errors.Wrapf(ErrCursorLoop, "fetching %s page %d", p.query.Table, p.pages)
		p.page = nil
		return false
	}
	p.seen[page.Cursor] = struct{}{}
	p.cursor = page.Cursor
	return true
}

// Records returns the page fetched by the last successful call to Next.
func (p *Pager) Records() []Record {
	return p.page
}

func (p *Pager) Err() error {
	return p.err
}

// Pages is the number of pages fetched since the last Reset.
func (p *Pager) Pages() int {
	return p.pages
}

// Reset rewinds the pager to the first page.
func (p *Pager) Reset() {
	p.cursor = ""
	p.seen = make(map[string]struct{})
	p.page = nil
	p.pages = 0
	p.done = false
	p.err = nil
}

// Drain returns every record matching q in the order the store sent them.
// A failure on any page fails the whole drain and no records are returned.
func Drain(ctx context.Context, store Store, q Query) ([]Record, error) {
	var all []Record
	p := NewPager(store, q)
	for p.Next(ctx) {
		all = append(all, p.Records()...)
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	if all == nil {
		all = []Record{}
	}
	return all, nil
}
