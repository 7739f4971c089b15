// Package users covers user lookup: debounced search and profile loading.
package users

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"gymthreads/internal/client"
	"gymthreads/internal/models"
	"gymthreads/internal/task"
)

const (
	SearchDelay = 250 * time.Millisecond
	SearchLimit = 8
)

type API interface {
	Get(ctx context.Context, path string, out any) error
	Put(ctx context.Context, path string, body any, out any) error
}

type Session interface {
	LoggedIn() bool
}

type SearchOptions struct {
	Delay time.Duration
	// OnResult is called after every delivered search, including clears.
	OnResult func(query string, items []models.UserSearchItem, err error)
	Logger   *slog.Logger
}

// Searcher delivers results only for the latest query. Older queries are
// cancelled and their responses dropped.
type Searcher struct {
	api      API
	sess     Session
	opts     SearchOptions
	log      *slog.Logger
	debounce *task.Debouncer
	group    task.Group

	mu      sync.Mutex
	query   string
	items   []models.UserSearchItem
	err     error
	loading bool
}

func NewSearcher(api API, sess Session, opts SearchOptions) *Searcher {
	if opts.Delay <= 0 {
		opts.Delay = SearchDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Searcher{
		api:      api,
		sess:     sess,
		opts:     opts,
		log:      opts.Logger,
		debounce: task.NewDebouncer(opts.Delay),
	}
}

// Search schedules a lookup for q once input has been quiet for the delay.
// An empty query clears results immediately and drops any pending lookup.
func (s *Searcher) Search(ctx context.Context, q string) {
	q = strings.TrimSpace(q)
	if q == "" || !s.sess.LoggedIn() {
		// Replace the scheduled lookup so it never fires after the clear.
		s.debounce.Do(s.group.Cancel)
		s.group.Cancel()
		s.deliver(q, nil, nil)
		return
	}
	s.debounce.Do(func() {
		s.run(context.WithoutCancel(ctx), q)
	})
}

func (s *Searcher) run(ctx context.Context, q string) {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	task.Run(ctx, &s.group, func(ctx context.Context) ([]models.UserSearchItem, error) {
		return Lookup(ctx, s.api, q)
	}, func(items []models.UserSearchItem, err error) {
		if err != nil {
			s.log.Debug("user search failed", "q", q, "err", err)
		}
		s.deliver(q, items, err)
	})
}

func (s *Searcher) deliver(q string, items []models.UserSearchItem, err error) {
	s.mu.Lock()
	s.query = q
	s.items = items
	s.err = err
	s.loading = false
	s.mu.Unlock()
	if s.opts.OnResult != nil {
		s.opts.OnResult(q, items, err)
	}
}

func (s *Searcher) Results() (string, []models.UserSearchItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query, append([]models.UserSearchItem(nil), s.items...), s.err
}

func (s *Searcher) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Lookup runs one search without debouncing.
func Lookup(ctx context.Context, api API, q string) ([]models.UserSearchItem, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	v := url.Values{}
	v.Set("q", q)
	v.Set("limit", strconv.Itoa(SearchLimit))
	var resp struct {
		Items []models.UserSearchItem `json:"items"`
	}
	if err := api.Get(ctx, "/api/users/search?"+v.Encode(), &resp); err != nil {
		return nil, client.Describe(err, "Search failed")
	}
	if resp.Items == nil {
		resp.Items = []models.UserSearchItem{}
	}
	return resp.Items, nil
}
