package feed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gymthreads/internal/client"
	"gymthreads/internal/models"
)

type fakeSession struct {
	token string
	uid   string
}

func (s fakeSession) Token() string  { return s.token }
func (s fakeSession) LoggedIn() bool { return s.token != "" }
func (s fakeSession) UID() string    { return s.uid }

type fakeAPI struct {
	*httptest.Server
	mu    sync.Mutex
	calls []string
}

func newFakeAPI(t *testing.T, h http.HandlerFunc) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)
		f.mu.Unlock()
		h(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestFeed(srv *fakeAPI, sess fakeSession) *Feed {
	return New(client.New(srv.URL, sess), sess, Options{PageSize: 3})
}

func thread(id string, likes int) map[string]any {
	return map[string]any{
		"id":        id,
		"author":    map[string]any{"uid": "u-" + id, "displayName": "Lifter " + id},
		"createdAt": "2026-01-01T00:00:00Z",
		"text":      "set " + id,
		"tags":      []string{},
		"stats":     map[string]any{"likes": likes, "replies": 2, "reposts": 0},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func ids(items []models.Thread) string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return strings.Join(out, ",")
}

func TestLoadMoreDedupsAndKeepsExisting(t *testing.T) {
	srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			writeJSON(w, map[string]any{
				"items":      []any{thread("A", 1), thread("B", 1), thread("C", 1)},
				"nextCursor": "c1",
			})
		case "c1":
			b := thread("B", 99)
			writeJSON(w, map[string]any{"items": []any{b, thread("D", 1)}, "nextCursor": nil})
		default:
			t.Fatalf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	})
	f := newTestFeed(srv, fakeSession{token: "tok"})
	ctx := context.Background()

	if err := f.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := f.LoadMore(ctx); err != nil {
		t.Fatalf("load more: %v", err)
	}
	if got := ids(f.Items()); got != "A,B,C,D" {
		t.Fatalf("items = %s, want A,B,C,D", got)
	}
	b, _ := f.Get("B")
	if b.Stats.Likes != 1 {
		t.Fatalf("B likes = %d, existing entry should win", b.Stats.Likes)
	}
	if f.HasMore() {
		t.Fatalf("hasMore should be false after null cursor")
	}
}

func TestLoadMoreAfterLastPageMakesNoCall(t *testing.T) {
	srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"items": []any{thread("A", 0)}, "nextCursor": nil})
	})
	f := newTestFeed(srv, fakeSession{token: "tok"})
	ctx := context.Background()
	if err := f.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	before := srv.count()
	if err := f.LoadMore(ctx); err != nil {
		t.Fatalf("load more: %v", err)
	}
	if srv.count() != before {
		t.Fatalf("LoadMore issued a request after the last page")
	}
	if f.HasMore() {
		t.Fatalf("hasMore = true")
	}
}

func TestNoSessionShortCircuits(t *testing.T) {
	srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
	})
	f := newTestFeed(srv, fakeSession{})
	ctx := context.Background()

	if err := f.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := f.LoadMore(ctx); err != nil {
		t.Fatalf("load more: %v", err)
	}
	if err := f.ToggleLike(ctx, "A"); err != nil {
		t.Fatalf("like: %v", err)
	}
	if f.HasMore() || len(f.Items()) != 0 {
		t.Fatalf("expected empty exhausted feed, got %+v", f.Stats())
	}
}

func TestToggleLikeTakesServerValues(t *testing.T) {
	var likeResp atomic.Value
	likeResp.Store(`{"likedByMe":true,"likeCount":6}`)
	srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/like") {
			_, _ = io.WriteString(w, likeResp.Load().(string))
			return
		}
		writeJSON(w, map[string]any{"items": []any{thread("A", 5)}, "nextCursor": nil})
	})
	f := newTestFeed(srv, fakeSession{token: "tok"})
	ctx := context.Background()
	if err := f.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if err := f.ToggleLike(ctx, "A"); err != nil {
		t.Fatalf("like: %v", err)
	}
	a, _ := f.Get("A")
	if a.Stats.Likes != 6 || !a.LikedByMe {
		t.Fatalf("after like = {%d,%v}, want {6,true}", a.Stats.Likes, a.LikedByMe)
	}

	likeResp.Store(`{"likedByMe":false,"likeCount":5}`)
	if err := f.ToggleLike(ctx, "A"); err != nil {
		t.Fatalf("unlike: %v", err)
	}
	a, _ = f.Get("A")
	if a.Stats.Likes != 5 || a.LikedByMe {
		t.Fatalf("after unlike = {%d,%v}, want {5,false}", a.Stats.Likes, a.LikedByMe)
	}
}

func TestConcurrentLikesCoalesce(t *testing.T) {
	var likes atomic.Int32
	release := make(chan struct{})
	srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/like") {
			likes.Add(1)
			<-release
			_, _ = io.WriteString(w, `{"likedByMe":true,"likeCount":1}`)
			return
		}
		writeJSON(w, map[string]any{"items": []any{thread("A", 0)}, "nextCursor": nil})
	})
	f := newTestFeed(srv, fakeSession{token: "tok"})
	ctx := context.Background()
	if err := f.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.ToggleLike(ctx, "A")
		}()
	}
	deadline := time.Now().Add(time.Second)
	for likes.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := likes.Load(); n != 1 {
		t.Fatalf("like requests = %d, want 1", n)
	}
}

func TestRepostReplacesOnlyCount(t *testing.T) {
	srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/repost") {
			_, _ = io.WriteString(w, `{"repostCount":7}`)
			return
		}
		writeJSON(w, map[string]any{"items": []any{thread("A", 3)}, "nextCursor": nil})
	})
	f := newTestFeed(srv, fakeSession{token: "tok"})
	ctx := context.Background()
	_ = f.Refresh(ctx)
	if err := f.Repost(ctx, "A"); err != nil {
		t.Fatalf("repost: %v", err)
	}
	a, _ := f.Get("A")
	if a.Stats.Reposts != 7 || a.Stats.Likes != 3 || a.Stats.Replies != 2 {
		t.Fatalf("stats = %+v", a.Stats)
	}
}

func TestCommentIncrementsByOneAndRequiresSuccess(t *testing.T) {
	fail := true
	srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/comments") {
			if fail {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":{"message":"too long"}}`)
				return
			}
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["text"] != "nice lift" || body["parentCommentId"] != "c1" {
				t.Fatalf("comment body = %v", body)
			}
			writeJSON(w, map[string]any{"id": "c9"})
			return
		}
		writeJSON(w, map[string]any{"items": []any{thread("A", 0)}, "nextCursor": nil})
	})
	f := newTestFeed(srv, fakeSession{token: "tok"})
	ctx := context.Background()
	_ = f.Refresh(ctx)

	err := f.Comment(ctx, "A", "  nice lift ", "c1")
	if err == nil || err.Error() != "too long" {
		t.Fatalf("err = %v, want too long", err)
	}
	a, _ := f.Get("A")
	if a.Stats.Replies != 2 || a.ReplyCount != 2 {
		t.Fatalf("failed comment changed counters: %+v", a)
	}

	fail = false
	if err := f.Comment(ctx, "A", "  nice lift ", "c1"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	a, _ = f.Get("A")
	if a.Stats.Replies != 3 || a.ReplyCount != 3 {
		t.Fatalf("replies = %d/%d, want 3/3", a.Stats.Replies, a.ReplyCount)
	}

	before := srv.count()
	if err := f.Comment(ctx, "A", "   ", ""); err != nil {
		t.Fatalf("blank comment: %v", err)
	}
	if srv.count() != before {
		t.Fatalf("blank comment hit the network")
	}
}

func TestAdjustRepliesFloorsAtZero(t *testing.T) {
	srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"items": []any{thread("A", 0)}, "nextCursor": nil})
	})
	f := newTestFeed(srv, fakeSession{token: "tok"})
	_ = f.Refresh(context.Background())
	f.AdjustReplies("A", -4)
	a, _ := f.Get("A")
	if a.Stats.Replies != 0 || a.ReplyCount != 0 {
		t.Fatalf("replies = %d/%d, want 0/0", a.Stats.Replies, a.ReplyCount)
	}
}

func TestEditWithoutItemRefreshes(t *testing.T) {
	var lists atomic.Int32
	srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut:
			_, _ = io.WriteString(w, `{}`)
		case r.Method == http.MethodGet:
			n := lists.Add(1)
			item := thread("A", 0)
			if n > 1 {
				item["text"] = "edited #pr"
				delete(item, "tags")
			}
			writeJSON(w, map[string]any{"items": []any{item}, "nextCursor": nil})
		}
	})
	f := newTestFeed(srv, fakeSession{token: "tok"})
	ctx := context.Background()
	_ = f.Refresh(ctx)
	if err := f.Edit(ctx, "A", "edited #pr"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if lists.Load() != 2 {
		t.Fatalf("expected a refresh after edit, list calls = %d", lists.Load())
	}
	a, _ := f.Get("A")
	if a.Text != "edited #pr" || len(a.Tags) != 1 || a.Tags[0] != "pr" {
		t.Fatalf("after edit = %+v", a)
	}
}

func TestEditWithItemPatchesInPlace(t *testing.T) {
	srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			item := thread("B", 4)
			item["text"] = "new text"
			writeJSON(w, map[string]any{"item": item})
			return
		}
		writeJSON(w, map[string]any{"items": []any{thread("A", 0), thread("B", 0), thread("C", 0)}, "nextCursor": nil})
	})
	f := newTestFeed(srv, fakeSession{token: "tok"})
	ctx := context.Background()
	_ = f.Refresh(ctx)
	if err := f.Edit(ctx, "B", "new text"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got := ids(f.Items()); got != "A,B,C" {
		t.Fatalf("order = %s", got)
	}
	b, _ := f.Get("B")
	if b.Text != "new text" || b.Stats.Likes != 4 {
		t.Fatalf("B = %+v", b)
	}
}

func TestDeleteRemovesAfterSuccess(t *testing.T) {
	fail := true
	srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			if fail {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, map[string]any{"items": []any{thread("A", 0), thread("B", 0), thread("C", 0)}, "nextCursor": nil})
	})
	f := newTestFeed(srv, fakeSession{token: "tok"})
	ctx := context.Background()
	_ = f.Refresh(ctx)

	err := f.Delete(ctx, "B")
	if err == nil || err.Error() != "Failed to delete thread" {
		t.Fatalf("err = %v", err)
	}
	if got := ids(f.Items()); got != "A,B,C" {
		t.Fatalf("failed delete changed items: %s", got)
	}
	fail = false
	if err := f.Delete(ctx, "B"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := ids(f.Items()); got != "A,C" {
		t.Fatalf("items = %s, want A,C", got)
	}
}

func TestCreateUploadsThenRefreshesWithTags(t *testing.T) {
	var posted []map[string]any
	srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/uploads":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("multipart: %v", err)
			}
			if n := len(r.MultipartForm.File["files"]); n != MaxUploadFiles {
				t.Fatalf("uploaded %d files, want %d", n, MaxUploadFiles)
			}
			writeJSON(w, map[string]any{"items": []any{nil, map[string]any{"type": "image", "url": "/m/1.jpg", "width": 640}}})
		case r.Method == http.MethodPost && r.URL.Path == "/api/threads":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			posted = append(posted, body)
			writeJSON(w, map[string]any{"id": "N"})
		case r.Method == http.MethodGet:
			items := []any{}
			for _, p := range posted {
				items = append(items, map[string]any{
					"id":        "N",
					"author":    map[string]any{"uid": "me", "displayName": "Me"},
					"createdAt": "2026-01-02T00:00:00Z",
					"text":      p["text"],
					"stats":     map[string]any{"likes": 0, "replies": 0, "reposts": 0},
				})
			}
			writeJSON(w, map[string]any{"items": items, "nextCursor": nil})
		}
	})
	f := newTestFeed(srv, fakeSession{token: "tok", uid: "me"})
	files := make([]client.File, 0, 8)
	for i := 0; i < 8; i++ {
		files = append(files, client.File{Name: "p.jpg", Data: strings.NewReader("x")})
	}
	if err := f.Create(context.Background(), "Leg day #squat", files); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(posted) != 1 {
		t.Fatalf("posted = %d", len(posted))
	}
	media, _ := posted[0]["media"].([]any)
	if len(media) != 1 {
		t.Fatalf("media = %v", posted[0]["media"])
	}
	items := f.Items()
	if len(items) != 1 || items[0].Text != "Leg day #squat" {
		t.Fatalf("items = %+v", items)
	}
	if len(items[0].Tags) != 1 || items[0].Tags[0] != "squat" {
		t.Fatalf("tags = %v, want [squat]", items[0].Tags)
	}
	if !items[0].IsSelf {
		t.Fatalf("own thread not marked as self")
	}
}

func TestRefreshFailureKeepsState(t *testing.T) {
	fail := false
	srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"message":"upstream down"}`)
			return
		}
		writeJSON(w, map[string]any{"items": []any{thread("A", 0)}, "nextCursor": "c1"})
	})
	f := newTestFeed(srv, fakeSession{token: "tok"})
	ctx := context.Background()
	_ = f.Refresh(ctx)

	fail = true
	err := f.Refresh(ctx)
	if err == nil || err.Error() != "upstream down" {
		t.Fatalf("err = %v", err)
	}
	if ids(f.Items()) != "A" || f.Cursor() != "c1" || !f.HasMore() || f.Loading() {
		t.Fatalf("state changed on failure: %+v cursor=%q", f.Stats(), f.Cursor())
	}
}

func TestStaleLoadMoreDroppedAfterRefresh(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "c1" {
			close(started)
			<-release
			writeJSON(w, map[string]any{"items": []any{thread("OLD", 0)}, "nextCursor": nil})
			return
		}
		writeJSON(w, map[string]any{"items": []any{thread("A", 0)}, "nextCursor": "c1"})
	})
	f := newTestFeed(srv, fakeSession{token: "tok"})
	ctx := context.Background()
	_ = f.Refresh(ctx)

	done := make(chan error)
	go func() { done <- f.LoadMore(ctx) }()
	<-started
	f.Pager.Reset()
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("load more: %v", err)
	}
	if len(f.Items()) != 0 {
		t.Fatalf("stale page applied: %s", ids(f.Items()))
	}
}

func TestRepostsPagerRequiresUID(t *testing.T) {
	srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/threads/reposts" || r.URL.Query().Get("uid") != "u7" {
			t.Fatalf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		writeJSON(w, map[string]any{"items": []any{thread("R", 0)}, "nextCursor": nil})
	})
	sess := fakeSession{token: "tok"}
	api := client.New(srv.URL, sess)
	ctx := context.Background()

	empty := NewReposts(api, sess, "", 0)
	if err := empty.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if srv.count() != 0 {
		t.Fatalf("reposts without uid hit the network")
	}

	p := NewReposts(api, sess, "u7", 0)
	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if ids(p.Items()) != "R" {
		t.Fatalf("items = %s", ids(p.Items()))
	}
}
