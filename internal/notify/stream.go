// Package notify merges fetched notification pages and live push signals
// into one deduplicated list with an unread counter.
//
// Identity is the derived key (group key, else id). The unread counter is
// taken wholesale from the server on every fetch and adjusted locally by
// read and delete operations in between.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/samber/lo"

	"gymthreads/internal/client"
	"gymthreads/internal/models"
	"gymthreads/internal/session"
	"gymthreads/internal/task"
)

const PageSize = 10

// LiveEvent is the push event that signals new notifications.
const LiveEvent = "new-notification"

type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body any, out any) error
	Delete(ctx context.Context, path string, out any) error
}

type Session interface {
	LoggedIn() bool
}

type Options struct {
	// Coalesce, when positive, collapses bursts of live signals into one
	// page-1 refetch issued after the burst goes quiet.
	Coalesce time.Duration
	// OnChange is called after each applied fetch.
	OnChange func(items []models.Notification, unread int)
	Logger   *slog.Logger
	Now      func() time.Time
}

type Stream struct {
	api   API
	sess  Session
	opts  Options
	log   *slog.Logger
	burst *task.Debouncer

	mu       sync.Mutex
	items    []models.Notification
	aliases  map[string]string
	unread   int
	inflight int
}

func New(api API, sess Session, opts Options) *Stream {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Stream{
		api:     api,
		sess:    sess,
		opts:    opts,
		log:     opts.Logger,
		items:   []models.Notification{},
		aliases: map[string]string{},
	}
	if opts.Coalesce > 0 {
		s.burst = task.NewDebouncer(opts.Coalesce)
	}
	return s
}

func (s *Stream) Items() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

func (s *Stream) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Stream) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

type pageResponse struct {
	Items       []models.Notification `json:"items"`
	UnreadCount json.RawMessage       `json:"unreadCount"`
	Page        int                   `json:"page"`
	Limit       int                   `json:"limit"`
}

// Fetch loads one page. Page 1 replaces the list; later pages merge into it.
func (s *Stream) Fetch(ctx context.Context, page int) error {
	if !s.sess.LoggedIn() {
		return nil
	}
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(PageSize))
	var resp pageResponse
	err := s.api.Get(ctx, "/api/notifications/me?"+q.Encode(), &resp)

	s.mu.Lock()
	s.inflight--
	if err != nil {
		s.mu.Unlock()
		return client.Describe(err, "Failed to load notifications")
	}
	s.unread = parseCount(resp.UnreadCount)
	for _, n := range resp.Items {
		s.aliases[n.ID] = n.Key()
	}
	if page == 1 {
		s.items = lo.UniqBy(resp.Items, models.Notification.Key)
	} else {
		s.items = merge(s.items, resp.Items)
	}
	items, unread := slices.Clone(s.items), s.unread
	s.mu.Unlock()

	if s.opts.OnChange != nil {
		s.opts.OnChange(items, unread)
	}
	return nil
}

// merge folds incoming into held. A held key is replaced only when the
// incoming item is at least as recent. The result is newest first.
func merge(held, incoming []models.Notification) []models.Notification {
	out := slices.Clone(held)
	index := make(map[string]int, len(out))
	for i, n := range out {
		index[n.Key()] = i
	}
	for _, n := range incoming {
		k := n.Key()
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			out = append(out, n)
			continue
		}
		if !n.Time().Before(out[i].Time()) {
			out[i] = overlay(out[i], n)
		}
	}
	slices.SortStableFunc(out, func(a, b models.Notification) int {
		return b.Time().Compare(a.Time())
	})
	return out
}

// overlay lays next over prev, keeping prev's grouping fields when next
// omits them.
func overlay(prev, next models.Notification) models.Notification {
	if next.GroupKey == nil {
		next.GroupKey = prev.GroupKey
	}
	if next.GroupCount == nil {
		next.GroupCount = prev.GroupCount
	}
	return next
}

// parseCount reads the server's unread count; anything unusable is 0.
func parseCount(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return max(0, int(f))
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if f, err := strconv.ParseFloat(str, 64); err == nil {
			return max(0, int(f))
		}
	}
	return 0
}

// HandleSignal reacts to a live push. The signal carries no data; it only
// triggers a page-1 refetch, coalesced when Options.Coalesce is set.
func (s *Stream) HandleSignal(ctx context.Context) error {
	if s.burst == nil {
		return s.Fetch(ctx, 1)
	}
	s.burst.Do(func() {
		if err := s.Fetch(context.WithoutCancel(ctx), 1); err != nil {
			s.log.Warn("notification resync failed", "err", err)
		}
	})
	return nil
}

func (s *Stream) now() string {
	return s.opts.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// keyFor resolves a raw id to its derived key. Ids collapsed into a group
// during a fetch still resolve to the group. Callers hold s.mu.
func (s *Stream) keyFor(id string) string {
	if i := slices.IndexFunc(s.items, func(n models.Notification) bool { return n.ID == id }); i >= 0 {
		return s.items[i].Key()
	}
	if k, ok := s.aliases[id]; ok {
		return k
	}
	return id
}

func notificationPath(id string, rest ...string) string {
	p := "/api/notifications/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// MarkAsRead marks every held item sharing id's key as read, keeping any
// read time already set. A group counts as one unread unit. The counter
// drops by one unless every held item for the key was already read; a key
// not held at all (an unfetched page) still counts.
func (s *Stream) MarkAsRead(ctx context.Context, id string) error {
	if !s.sess.LoggedIn() {
		return nil
	}
	if id == "" {
		return session.ErrInvalidTarget
	}
	var resp struct {
		ReadAt *string `json:"readAt"`
	}
	if err := s.api.Post(ctx, notificationPath(id, "read"), nil, &resp); err != nil {
		return client.Describe(err, "Failed to mark notification as read")
	}
	readAt := s.now()
	if resp.ReadAt != nil && *resp.ReadAt != "" {
		readAt = *resp.ReadAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.keyFor(id)
	held, changed := false, false
	for i := range s.items {
		if s.items[i].Key() != key {
			continue
		}
		held = true
		if s.items[i].ReadAt == nil {
			at := readAt
			s.items[i].ReadAt = &at
			changed = true
		}
	}
	if changed || !held {
		s.unread = max(0, s.unread-1)
	}
	return nil
}

// MarkAllAsRead marks everything read and zeroes the counter.
func (s *Stream) MarkAllAsRead(ctx context.Context) error {
	if !s.sess.LoggedIn() {
		return nil
	}
	if err := s.api.Post(ctx, "/api/notifications/read-all", nil, nil); err != nil {
		return client.Describe(err, "Failed to mark all as read")
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ReadAt == nil {
			at := now
			s.items[i].ReadAt = &at
		}
	}
	s.unread = 0
	return nil
}

// Delete removes every held item sharing id's key. The counter drops only
// if the targeted item was held and unread.
func (s *Stream) Delete(ctx context.Context, id string) error {
	if !s.sess.LoggedIn() {
		return nil
	}
	if id == "" {
		return session.ErrInvalidTarget
	}
	s.mu.Lock()
	key := s.keyFor(id)
	target, held := lo.Find(s.items, func(n models.Notification) bool { return n.Key() == key })
	s.mu.Unlock()

	if err := s.api.Delete(ctx, notificationPath(id), nil); err != nil {
		return client.Describe(err, "Failed to delete notification")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = lo.Reject(s.items, func(n models.Notification, _ int) bool { return n.Key() == key })
	if held && target.Unread() {
		s.unread = max(0, s.unread-1)
	}
	return nil
}
