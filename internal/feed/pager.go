package feed

import (
	"context"
	"sync"
)

// Page is one response from a cursor-paginated collection.
type Page[T any] struct {
	Items      []T
	NextCursor *string
}

// Fetcher loads the page after cursor. An empty cursor means the first page.
type Fetcher[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Stats is a point-in-time summary of a Pager.
type Stats struct {
	Count   int  `json:"count"`
	Loading bool `json:"loading"`
	HasMore bool `json:"hasMore"`
}

// Pager holds a growing sequence fetched page by page. Items are kept in
// server order and deduplicated by id on append; existing entries win.
type Pager[T any] struct {
	mu       sync.Mutex
	fetch    Fetcher[T]
	idOf     func(T) string
	active   func() bool
	items    []T
	cursor   *string
	hasMore  bool
	inflight int
	gen      uint64
}

// NewPager returns a Pager. active gates every fetch; when it reports false
// Refresh resets to empty and LoadMore does nothing.
func NewPager[T any](fetch Fetcher[T], idOf func(T) string, active func() bool) *Pager[T] {
	if active == nil {
		active = func() bool { return true }
	}
	return &Pager[T]{fetch: fetch, idOf: idOf, active: active, hasMore: true}
}

// Refresh replaces the held items with the first page.
func (p *Pager[T]) Refresh(ctx context.Context) error {
	if !p.active() {
		p.Reset()
		return nil
	}

	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.inflight++
	p.mu.Unlock()

	page, err := p.fetch(ctx, "")

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight--
	if err != nil {
		return err
	}
	if gen != p.gen {
		return nil
	}
	p.items = append([]T(nil), page.Items...)
	p.setCursor(page.NextCursor)
	return nil
}

// LoadMore appends the next page. It is a no-op while a fetch is running,
// after the last page, or when the pager is inactive.
func (p *Pager[T]) LoadMore(ctx context.Context) error {
	if !p.active() {
		return nil
	}

	p.mu.Lock()
	if p.inflight > 0 || !p.hasMore {
		p.mu.Unlock()
		return nil
	}
	p.inflight++
	gen := p.gen
	cursor := ""
	if p.cursor != nil {
		cursor = *p.cursor
	}
	p.mu.Unlock()

	page, err := p.fetch(ctx, cursor)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight--
	if err != nil {
		return err
	}
	if gen != p.gen {
		// A refresh started meanwhile; this page belongs to the old sequence.
		return nil
	}
	seen := make(map[string]struct{}, len(p.items))
	for _, it := range p.items {
		seen[p.idOf(it)] = struct{}{}
	}
	for _, it := range page.Items {
		id := p.idOf(it)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		p.items = append(p.items, it)
	}
	p.setCursor(page.NextCursor)
	return nil
}

// Reset empties the pager and marks it exhausted.
func (p *Pager[T]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.items = nil
	p.cursor = nil
	p.hasMore = false
}

func (p *Pager[T]) setCursor(next *string) {
	if next != nil && *next == "" {
		next = nil
	}
	p.cursor = next
	p.hasMore = next != nil
}

// Patch replaces the item with the given id by fn's result.
func (p *Pager[T]) Patch(id string, fn func(T) T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, it := range p.items {
		if p.idOf(it) == id {
			p.items[i] = fn(it)
			return true
		}
	}
	return false
}

// Remove drops every item with the given id, preserving survivor order.
func (p *Pager[T]) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.items[:0:0]
	for _, it := range p.items {
		if p.idOf(it) != id {
			out = append(out, it)
		}
	}
	removed := len(out) != len(p.items)
	p.items = out
	return removed
}

func (p *Pager[T]) Get(id string) (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, it := range p.items {
		if p.idOf(it) == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

func (p *Pager[T]) Items() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]T(nil), p.items...)
}

func (p *Pager[T]) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

func (p *Pager[T]) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight > 0
}

func (p *Pager[T]) Cursor() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor == nil {
		return ""
	}
	return *p.cursor
}

func (p *Pager[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Count: len(p.items), Loading: p.inflight > 0, HasMore: p.hasMore}
}
