// Package follow tracks the follow relationship between the session user
// and one other user.
package follow

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"

	"gymthreads/internal/client"
	"gymthreads/internal/models"
	"gymthreads/internal/session"
)

var (
	ErrInvalidUser  = errors.New("invalid user")
	ErrFollowSelf   = errors.New("cannot follow yourself")
	ErrUnfollowSelf = errors.New("cannot unfollow yourself")
)

type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body any, out any) error
	Delete(ctx context.Context, path string, out any) error
}

type Session interface {
	LoggedIn() bool
	UID() string
}

type Tracker struct {
	api    API
	sess   Session
	target string
	log    *slog.Logger

	mu      sync.Mutex
	stats   models.FollowStats
	loading bool
	err     error
}

func New(api API, sess Session, targetUID string, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{api: api, sess: sess, target: targetUID, log: log}
}

func (t *Tracker) Target() string { return t.target }

// IsSelf reports whether the target is the session user.
func (t *Tracker) IsSelf() bool {
	uid := t.sess.UID()
	return uid != "" && uid == t.target
}

func (t *Tracker) Stats() models.FollowStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *Tracker) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading
}

// Err is the last Refresh failure, cleared by the next call.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Tracker) path() string {
	return "/api/follows/" + url.PathEscape(t.target)
}

// Refresh reloads the stats. Failures are kept in Err instead of being
// returned; without a session or target the stats are zeroed.
func (t *Tracker) Refresh(ctx context.Context) {
	if !t.sess.LoggedIn() || t.target == "" {
		t.mu.Lock()
		t.stats = models.FollowStats{}
		t.err = nil
		t.mu.Unlock()
		return
	}
	t.begin()

	var resp models.FollowStats
	err := t.api.Get(ctx, t.path(), &resp)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = false
	if err != nil {
		t.err = client.Describe(err, "Failed to load follow stats")
		t.log.Debug("follow stats failed", "uid", t.target, "err", t.err)
		return
	}
	t.stats = resp
}

func (t *Tracker) begin() {
	t.mu.Lock()
	t.loading = true
	t.err = nil
	t.mu.Unlock()
}

func (t *Tracker) check(self error) error {
	switch {
	case !t.sess.LoggedIn():
		return session.ErrNoSession
	case t.target == "":
		return ErrInvalidUser
	case t.IsSelf():
		return self
	}
	return nil
}

type countsResponse struct {
	FollowerCount  *int `json:"followerCount"`
	FollowingCount *int `json:"followingCount"`
}

// Follow follows the target. Counts come from the response; when the server
// omits the follower count it is bumped locally unless already following.
func (t *Tracker) Follow(ctx context.Context) error {
	if err := t.check(ErrFollowSelf); err != nil {
		return err
	}
	t.begin()
	var resp countsResponse
	err := t.api.Post(ctx, t.path(), nil, &resp)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = false
	if err != nil {
		return client.Describe(err, "Failed to follow")
	}
	prev := t.stats
	t.stats.IsFollowing = true
	switch {
	case resp.FollowerCount != nil:
		t.stats.FollowerCount = *resp.FollowerCount
	case !prev.IsFollowing:
		t.stats.FollowerCount = prev.FollowerCount + 1
	}
	if resp.FollowingCount != nil {
		t.stats.FollowingCount = *resp.FollowingCount
	}
	return nil
}

// Unfollow mirrors Follow; the local fallback decrement is floored at zero.
func (t *Tracker) Unfollow(ctx context.Context) error {
	if err := t.check(ErrUnfollowSelf); err != nil {
		return err
	}
	t.begin()
	var resp countsResponse
	err := t.api.Delete(ctx, t.path(), &resp)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = false
	if err != nil {
		return client.Describe(err, "Failed to unfollow")
	}
	prev := t.stats
	t.stats.IsFollowing = false
	switch {
	case resp.FollowerCount != nil:
		t.stats.FollowerCount = *resp.FollowerCount
	case prev.IsFollowing:
		t.stats.FollowerCount = max(0, prev.FollowerCount-1)
	}
	if resp.FollowingCount != nil {
		t.stats.FollowingCount = *resp.FollowingCount
	}
	return nil
}

func (t *Tracker) Toggle(ctx context.Context) error {
	if t.Stats().IsFollowing {
		return t.Unfollow(ctx)
	}
	return t.Follow(ctx)
}
