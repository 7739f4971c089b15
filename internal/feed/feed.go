// Package feed keeps a cursor-paginated list of threads in sync with the
// API. Every mutation is confirm-then-apply: the server call must succeed
// before local state changes, and counters are taken from the response
// wherever the server provides them.
package feed

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"gymthreads/internal/client"
	"gymthreads/internal/models"
	"gymthreads/internal/session"
	"gymthreads/internal/tags"
)

const (
	DefaultPageSize = 8
	// MaxUploadFiles caps the attachments sent with one post.
	MaxUploadFiles = 6
)

// API is the transport the feed needs. *client.Client satisfies it.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body any, out any) error
	Put(ctx context.Context, path string, body any, out any) error
	Delete(ctx context.Context, path string, out any) error
	Upload(ctx context.Context, path string, files []client.File, out any) error
}

// Session is the read-only view of the current session.
type Session interface {
	LoggedIn() bool
	UID() string
}

type Options struct {
	PageSize int
	// AuthorID restricts the feed to one author.
	AuthorID string
	Logger   *slog.Logger
}

type Feed struct {
	*Pager[models.Thread]

	api      API
	sess     Session
	opts     Options
	log      *slog.Logger
	inflight singleflight.Group
}

func New(api API, sess Session, opts Options) *Feed {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	f := &Feed{api: api, sess: sess, opts: opts, log: opts.Logger}
	f.Pager = NewPager[models.Thread](f.fetchPage, threadID, sess.LoggedIn)
	return f
}

// NewReposts returns a read-only pager over the threads uid has reposted.
func NewReposts(api API, sess Session, uid string, pageSize int) *Pager[models.Thread] {
	if pageSize <= 0 {
		pageSize = 10
	}
	fetch := func(ctx context.Context, cursor string) (Page[models.Thread], error) {
		q := url.Values{}
		q.Set("uid", uid)
		q.Set("limit", strconv.Itoa(pageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		return getThreadPage(ctx, api, sess, "/api/threads/reposts?"+q.Encode(), "Failed to load reposts")
	}
	active := func() bool { return sess.LoggedIn() && uid != "" }
	return NewPager[models.Thread](fetch, threadID, active)
}

func threadID(t models.Thread) string { return t.ID }

func (f *Feed) fetchPage(ctx context.Context, cursor string) (Page[models.Thread], error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(f.opts.PageSize))
	if f.opts.AuthorID != "" {
		q.Set("authorId", f.opts.AuthorID)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return getThreadPage(ctx, f.api, f.sess, "/api/threads?"+q.Encode(), "Failed to load threads")
}

func getThreadPage(ctx context.Context, api API, sess Session, path, fallback string) (Page[models.Thread], error) {
	var resp models.ThreadPage
	if err := api.Get(ctx, path, &resp); err != nil {
		return Page[models.Thread]{}, client.Describe(err, fallback)
	}
	uid := sess.UID()
	items := make([]models.Thread, 0, len(resp.Items))
	for _, t := range resp.Items {
		items = append(items, normalize(t, uid))
	}
	return Page[models.Thread]{Items: items, NextCursor: resp.NextCursor}, nil
}

// normalize fills the client-side fields of a thread fresh from the API.
func normalize(t models.Thread, uid string) models.Thread {
	if t.Tags == nil {
		t.Tags = tags.Extract(t.Text)
	}
	if t.Media == nil {
		t.Media = []models.Media{}
	}
	t.ReplyCount = t.Stats.Replies
	t.IsSelf = uid != "" && t.Author.UID == uid
	return t
}

func threadPath(id string, rest ...string) string {
	p := "/api/threads/" + url.PathEscape(id)
	if len(rest) > 0 {
		p += "/" + strings.Join(rest, "/")
	}
	return p
}

// guard runs fn once per key at a time; concurrent callers with the same
// key share the in-flight result.
func (f *Feed) guard(key string, fn func() error) error {
	_, err, shared := f.inflight.Do(key, func() (any, error) {
		return nil, fn()
	})
	if shared {
		f.log.Debug("coalesced duplicate mutation", "key", key)
	}
	return err
}

// ToggleLike flips the like on a thread. likedByMe and the like count are
// replaced by the server's answer.
func (f *Feed) ToggleLike(ctx context.Context, id string) error {
	if !f.sess.LoggedIn() {
		return nil
	}
	if id == "" {
		return session.ErrInvalidTarget
	}
	return f.guard("like:"+id, func() error {
		var resp struct {
			LikedByMe *bool `json:"likedByMe"`
			LikeCount *int  `json:"likeCount"`
		}
		if err := f.api.Post(ctx, threadPath(id, "like"), nil, &resp); err != nil {
			return client.Describe(err, "Failed to like thread")
		}
		f.Patch(id, func(t models.Thread) models.Thread {
			t.LikedByMe = resp.LikedByMe != nil && *resp.LikedByMe
			if resp.LikeCount != nil {
				t.Stats.Likes = max(0, *resp.LikeCount)
			}
			return t
		})
		return nil
	})
}

// Repost reposts a thread. Only the repost count changes locally.
func (f *Feed) Repost(ctx context.Context, id string) error {
	if !f.sess.LoggedIn() {
		return nil
	}
	if id == "" {
		return session.ErrInvalidTarget
	}
	return f.guard("repost:"+id, func() error {
		var resp struct {
			RepostCount *int `json:"repostCount"`
		}
		if err := f.api.Post(ctx, threadPath(id, "repost"), nil, &resp); err != nil {
			return client.Describe(err, "Failed to repost thread")
		}
		if resp.RepostCount != nil {
			f.Patch(id, func(t models.Thread) models.Thread {
				t.Stats.Reposts = max(0, *resp.RepostCount)
				return t
			})
		}
		return nil
	})
}

// Comment posts a comment or reply. On success the thread's reply counters
// grow by exactly one; the comment body itself is not inserted.
func (f *Feed) Comment(ctx context.Context, id, text, parentCommentID string) error {
	if !f.sess.LoggedIn() {
		return nil
	}
	if id == "" {
		return session.ErrInvalidTarget
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	key := "comment:" + id + ":" + parentCommentID + ":" + text
	return f.guard(key, func() error {
		body := map[string]any{"text": text}
		if parentCommentID != "" {
			body["parentCommentId"] = parentCommentID
		}
		if err := f.api.Post(ctx, threadPath(id, "comments"), body, nil); err != nil {
			return client.Describe(err, "Failed to comment")
		}
		f.Patch(id, func(t models.Thread) models.Thread {
			t.Stats.Replies++
			t.ReplyCount++
			return t
		})
		return nil
	})
}

// AdjustReplies applies a local delta to a thread's reply counters,
// flooring both at zero.
func (f *Feed) AdjustReplies(id string, delta int) {
	if delta == 0 {
		return
	}
	f.Patch(id, func(t models.Thread) models.Thread {
		t.Stats.Replies = max(0, t.Stats.Replies+delta)
		t.ReplyCount = max(0, t.ReplyCount+delta)
		return t
	})
}

// Edit replaces a thread's text. Without an item in the response the whole
// feed is refreshed instead of patching locally.
func (f *Feed) Edit(ctx context.Context, id, text string) error {
	if !f.sess.LoggedIn() {
		return nil
	}
	if id == "" {
		return session.ErrInvalidTarget
	}
	var resp struct {
		Item *models.Thread `json:"item"`
	}
	if err := f.api.Put(ctx, threadPath(id), map[string]any{"text": text}, &resp); err != nil {
		return client.Describe(err, "Failed to update thread")
	}
	if resp.Item == nil {
		return f.Refresh(ctx)
	}
	updated := normalize(*resp.Item, f.sess.UID())
	f.Patch(id, func(models.Thread) models.Thread { return updated })
	return nil
}

// Delete removes a thread once the server confirms.
func (f *Feed) Delete(ctx context.Context, id string) error {
	if !f.sess.LoggedIn() {
		return nil
	}
	if id == "" {
		return session.ErrInvalidTarget
	}
	if err := f.api.Delete(ctx, threadPath(id), nil); err != nil {
		return client.Describe(err, "Failed to delete thread")
	}
	f.Remove(id)
	return nil
}

// Create uploads any attachments, posts the thread and refreshes the feed.
// The new thread is never inserted locally.
func (f *Feed) Create(ctx context.Context, text string, files []client.File) error {
	if !f.sess.LoggedIn() {
		return nil
	}
	media := []models.Media{}
	if len(files) > 0 {
		if len(files) > MaxUploadFiles {
			files = files[:MaxUploadFiles]
		}
		var up struct {
			Items []*models.Media `json:"items"`
		}
		if err := f.api.Upload(ctx, "/api/uploads", files, &up); err != nil {
			return client.Describe(err, "Failed to upload media")
		}
		for _, m := range up.Items {
			if m != nil {
				media = append(media, *m)
			}
		}
	}

	body := map[string]any{"text": text, "media": media}
	if err := f.api.Post(ctx, "/api/threads", body, nil); err != nil {
		return client.Describe(err, "Failed to create thread")
	}
	f.log.Info("thread created", "media", len(media))
	return f.Refresh(ctx)
}
