package comments

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"gymthreads/internal/client"
	"gymthreads/internal/models"
	"gymthreads/internal/session"
)

var ErrEmptyText = errors.New("text is required")

// API is the transport the tree needs. *client.Client satisfies it.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body any, out any) error
	Patch(ctx context.Context, path string, body any, out any) error
	Delete(ctx context.Context, path string, out any) error
}

type Session interface {
	LoggedIn() bool
}

// Owner is the feed holding the thread the comments belong to. Creation
// goes through it so its reply counters stay in step.
type Owner interface {
	Comment(ctx context.Context, threadID, text, parentCommentID string) error
	AdjustReplies(threadID string, delta int)
}

// Tree is the comment forest of one thread.
type Tree struct {
	api      API
	sess     Session
	owner    Owner
	threadID string
	log      *slog.Logger

	mu      sync.Mutex
	items   []models.Comment
	loading bool
}

// New returns a Tree for threadID. owner may be nil when no feed is held;
// comments are then posted directly.
func New(api API, sess Session, owner Owner, threadID string, log *slog.Logger) *Tree {
	if log == nil {
		log = slog.Default()
	}
	return &Tree{api: api, sess: sess, owner: owner, threadID: threadID, log: log, items: []models.Comment{}}
}

func (t *Tree) ThreadID() string { return t.threadID }

func (t *Tree) Items() []models.Comment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.items
}

func (t *Tree) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading
}

func (t *Tree) path(rest ...string) string {
	p := "/api/threads/" + url.PathEscape(t.threadID) + "/comments"
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

// Load replaces the forest with the server's. Failures leave it untouched
// and are returned for inline display.
func (t *Tree) Load(ctx context.Context) error {
	if t.threadID == "" {
		return session.ErrInvalidTarget
	}
	t.mu.Lock()
	t.loading = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.loading = false
		t.mu.Unlock()
	}()

	var resp struct {
		Items []models.Comment `json:"items"`
	}
	if err := t.api.Get(ctx, t.path(), &resp); err != nil {
		return client.Describe(err, "Failed to load comments")
	}
	items := resp.Items
	if isFlat(items) {
		items = BuildForest(items)
	}
	items = normalize(items)

	t.mu.Lock()
	t.items = items
	t.mu.Unlock()
	return nil
}

// isFlat reports whether the server sent a parent-linked list rather than
// a nested tree.
func isFlat(items []models.Comment) bool {
	linked := false
	for _, c := range items {
		if len(c.Replies) > 0 {
			return false
		}
		if c.ParentCommentID != nil && *c.ParentCommentID != "" {
			linked = true
		}
	}
	return linked
}

// Create posts a comment, or a reply when parentID is set, then reloads
// the forest so the new node arrives with its server id and position.
func (t *Tree) Create(ctx context.Context, text, parentID string) error {
	if !t.sess.LoggedIn() {
		return session.ErrNoSession
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	if t.owner != nil {
		if err := t.owner.Comment(ctx, t.threadID, text, parentID); err != nil {
			return err
		}
	} else {
		body := map[string]any{"text": text}
		if parentID != "" {
			body["parentCommentId"] = parentID
		}
		if err := t.api.Post(ctx, t.path(), body, nil); err != nil {
			return client.Describe(err, "Failed to comment")
		}
	}
	return t.Load(ctx)
}

// Edit replaces a comment's text.
func (t *Tree) Edit(ctx context.Context, id, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	if !t.sess.LoggedIn() {
		return session.ErrNoSession
	}
	if id == "" {
		return session.ErrInvalidTarget
	}
	if err := t.api.Patch(ctx, t.path(id), map[string]any{"text": text}, nil); err != nil {
		return client.Describe(err, "Failed to update comment")
	}
	t.mu.Lock()
	t.items, _ = FindAndUpdate(t.items, id, func(c models.Comment) models.Comment {
		c.Text = text
		return c
	})
	t.mu.Unlock()
	return nil
}

// Delete removes a comment and its replies. The owning thread's reply
// counters drop by the number of nodes removed, which is also returned.
func (t *Tree) Delete(ctx context.Context, id string) (int, error) {
	if !t.sess.LoggedIn() {
		return 0, session.ErrNoSession
	}
	if id == "" {
		return 0, session.ErrInvalidTarget
	}
	if err := t.api.Delete(ctx, t.path(id), nil); err != nil {
		return 0, client.Describe(err, "Failed to delete comment")
	}
	t.mu.Lock()
	var removed int
	t.items, removed = FindAndRemove(t.items, id)
	t.mu.Unlock()

	if removed > 0 && t.owner != nil {
		t.owner.AdjustReplies(t.threadID, -removed)
	}
	t.log.Debug("comment deleted", "thread", t.threadID, "comment", id, "removed", removed)
	return removed, nil
}

// ToggleLike flips the like on a comment using the server's answer.
func (t *Tree) ToggleLike(ctx context.Context, id string) error {
	if !t.sess.LoggedIn() {
		return session.ErrNoSession
	}
	if id == "" {
		return session.ErrInvalidTarget
	}
	var resp struct {
		LikedByMe *bool `json:"likedByMe"`
		LikeCount *int  `json:"likeCount"`
	}
	if err := t.api.Post(ctx, t.path(id, "like"), nil, &resp); err != nil {
		return client.Describe(err, "Failed to like comment")
	}
	t.mu.Lock()
	t.items, _ = FindAndUpdate(t.items, id, func(c models.Comment) models.Comment {
		c.LikedByMe = resp.LikedByMe != nil && *resp.LikedByMe
		if resp.LikeCount != nil {
			c.LikeCount = max(0, *resp.LikeCount)
		}
		return c
	})
	t.mu.Unlock()
	return nil
}
