package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gymthreads/internal/app"
	"gymthreads/internal/cli/config"
	"gymthreads/internal/cli/output"
	"gymthreads/internal/client"
	"gymthreads/internal/comments"
	"gymthreads/internal/feed"
	"gymthreads/internal/models"
	"gymthreads/internal/notify"
	"gymthreads/internal/session"
	"gymthreads/internal/storage"
	"gymthreads/internal/tags"
	"gymthreads/internal/users"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return usage()
	}
	switch args[0] {
	case "connect":
		return cmdConnect(args[1:])
	case "disconnect":
		return cmdDisconnect()
	case "status":
		return cmdStatus()
	case "whoami":
		return cmdWhoAmI()
	case "feed":
		return cmdFeed(args[1:])
	case "reposts":
		return cmdReposts(args[1:])
	case "posts":
		return cmdPosts(args[1:])
	case "comments":
		return cmdComments(args[1:])
	case "follow":
		return cmdFollow(args[1:], true)
	case "unfollow":
		return cmdFollow(args[1:], false)
	case "follows":
		return cmdFollows(args[1:])
	case "notifications":
		return cmdNotifications(args[1:])
	case "watch":
		return cmdWatch(args[1:])
	case "search":
		return cmdSearch(args[1:])
	case "profile":
		return cmdProfile(args[1:])
	case "rename":
		return cmdRename(args[1:])
	case "tags":
		return cmdTags(args[1:])
	default:
		return usage()
	}
}

// withApp opens the app for one command. The context ends on SIGINT or
// SIGTERM.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a, err := app.Open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func cmdConnect(args []string) error {
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	token := fs.String("token", "", "Bearer token")
	inDir := fs.Bool("in-dir", false, "Write config to ./.gymthreads/config.json in current directory")
	positionals, err := parseInterspersedFlags(fs, args)
	if err != nil {
		return err
	}
	if len(positionals) != 1 {
		return errors.New("usage: gymthreads connect <url> --token <token> [--in-dir]")
	}
	rawURL := strings.TrimSpace(positionals[0])
	tok := strings.TrimSpace(*token)
	if tok == "" {
		return errors.New("missing --token")
	}
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if session.Expired(tok, time.Now()) {
		return errors.New("token has expired")
	}

	ctx := context.Background()
	var me models.User
	if err := client.New(rawURL, client.StaticToken(tok)).Get(ctx, "/api/auth/me", &me); err != nil {
		return fmt.Errorf("validate credentials: %w", err)
	}

	cfgPath := ""
	if *inDir {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		cfgPath = filepath.Join(cwd, ".gymthreads", "config.json")
	} else if cfgPath, err = config.Path(); err != nil {
		return err
	}
	cfg, err := config.LoadFromPath(cfgPath)
	if err != nil {
		return err
	}
	cfg.SetDefault(rawURL, me.UID)
	if err := config.SaveToPath(cfg, cfgPath); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Resolve(cfgPath).StoragePath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := session.New(store, nil).Set(ctx, tok, &me); err != nil {
		return err
	}
	fmt.Printf("connected to %s as %s\n", rawURL, displayUser(me))
	return nil
}

func displayUser(u models.User) string {
	if u.DisplayName != nil && strings.TrimSpace(*u.DisplayName) != "" {
		return *u.DisplayName
	}
	if u.Email != "" {
		return u.Email
	}
	return u.UID
}

func cmdDisconnect() error {
	return withApp(func(ctx context.Context, a *app.App) error {
		if _, ok := a.Config.Default(); !ok && !a.Session.LoggedIn() {
			fmt.Println("no active connection")
			return nil
		}
		if err := a.Session.Logout(ctx); err != nil {
			return err
		}
		a.Config.ClearDefault()
		if err := config.SaveToPath(a.Config, a.ConfigPath); err != nil {
			return err
		}
		fmt.Println("disconnected")
		return nil
	})
}

func cmdStatus() error {
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.RequireServer(); err != nil {
			return err
		}
		srv, _ := a.Config.Default()
		status := map[string]any{
			"server":       a.Settings.URL,
			"connected_at": srv.ConnectedAt,
			"storage":      a.Settings.StoragePath,
			"logged_in":    a.Session.LoggedIn(),
		}
		if err := a.Session.Verify(ctx, a.API); err != nil {
			status["error"] = err.Error()
		}
		status["verified"] = a.Session.LoggedIn() && status["error"] == nil
		if u := a.Session.User(); u != nil {
			status["user"] = u
		}
		return printJSON(status)
	})
}

func cmdWhoAmI() error {
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.RequireSession(); err != nil {
			return err
		}
		if err := a.Session.Verify(ctx, a.API); err != nil {
			return err
		}
		return printJSON(a.Session.User())
	})
}

type listFlags struct {
	format *string
	quiet  *bool
}

func addListFlags(fs *flag.FlagSet) listFlags {
	return listFlags{
		format: fs.String("format", "", "Output format: json|table|plain|md|yaml|quiet"),
		quiet:  fs.Bool("quiet", false, "IDs only"),
	}
}

func (l listFlags) print(key string, v any) error {
	payload, err := output.Payload(key, v)
	if err != nil {
		return err
	}
	return output.Print(payload, *l.format, *l.quiet)
}

// loadPages fills p with up to pages pages.
func loadPages[T any](ctx context.Context, p *feed.Pager[T], pages int) error {
	if err := p.Refresh(ctx); err != nil {
		return err
	}
	for i := 1; i < pages && p.HasMore(); i++ {
		if err := p.LoadMore(ctx); err != nil {
			return err
		}
	}
	return nil
}

func cmdFeed(args []string) error {
	fs := flag.NewFlagSet("feed", flag.ContinueOnError)
	limit := fs.Int("limit", feed.DefaultPageSize, "Page size")
	author := fs.String("author", "", "Only threads by this uid")
	pages := fs.Int("pages", 1, "Number of pages to load")
	lf := addListFlags(fs)
	if _, err := parseInterspersedFlags(fs, args); err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.RequireSession(); err != nil {
			return err
		}
		f := a.Feed(feed.Options{PageSize: *limit, AuthorID: strings.TrimSpace(*author)})
		if err := loadPages(ctx, f.Pager, *pages); err != nil {
			return err
		}
		return lf.print("threads", f.Items())
	})
}

func cmdReposts(args []string) error {
	fs := flag.NewFlagSet("reposts", flag.ContinueOnError)
	limit := fs.Int("limit", 10, "Page size")
	pages := fs.Int("pages", 1, "Number of pages to load")
	lf := addListFlags(fs)
	positionals, err := parseInterspersedFlags(fs, args)
	if err != nil {
		return err
	}
	if len(positionals) != 1 {
		return errors.New("usage: gymthreads reposts <uid> [--limit n] [--pages n]")
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.RequireSession(); err != nil {
			return err
		}
		p := a.Reposts(positionals[0], *limit)
		if err := loadPages(ctx, p, *pages); err != nil {
			return err
		}
		return lf.print("threads", p.Items())
	})
}

func cmdPosts(args []string) error {
	const u = "usage: gymthreads posts <add|edit|delete|like|repost>"
	if len(args) == 0 {
		return errors.New(u)
	}
	switch args[0] {
	case "add":
		return cmdPostsAdd(args[1:])
	case "edit":
		return cmdPostsEdit(args[1:])
	case "delete":
		return cmdPostsAct(args[1:], "delete", (*feed.Feed).Delete)
	case "like":
		return cmdPostsAct(args[1:], "like", (*feed.Feed).ToggleLike)
	case "repost":
		return cmdPostsAct(args[1:], "repost", (*feed.Feed).Repost)
	default:
		return errors.New(u)
	}
}

func cmdPostsAdd(args []string) error {
	fs := flag.NewFlagSet("posts add", flag.ContinueOnError)
	fromFile := fs.String("from-file", "", "Read text from file")
	var media multiStringFlag
	fs.Var(&media, "media", "Attach an image or video (repeatable)")
	positionals, err := parseInterspersedFlags(fs, args)
	if err != nil {
		return err
	}
	text, err := resolveBodyInput(positionals, *fromFile)
	if err != nil {
		return err
	}
	paths := parseCSVUnique(media.values)
	if len(paths) > feed.MaxUploadFiles {
		return fmt.Errorf("at most %d media files", feed.MaxUploadFiles)
	}
	files := make([]client.File, 0, len(paths))
	for _, p := range paths {
		fh, err := os.Open(p)
		if err != nil {
			return err
		}
		defer fh.Close()
		files = append(files, client.File{Name: filepath.Base(p), Data: fh})
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.RequireSession(); err != nil {
			return err
		}
		f := a.Feed(feed.Options{})
		if err := f.Create(ctx, text, files); err != nil {
			return err
		}
		items := f.Items()
		if len(items) == 0 {
			return printJSON(map[string]any{"status": "created"})
		}
		return printJSON(items[0])
	})
}

// actOn refreshes the first page so the mutation has local state to
// reconcile, then runs fn and prints the thread as the server left it.
func actOn(ctx context.Context, a *app.App, id string, fn func(*feed.Feed) error) error {
	f := a.Feed(feed.Options{})
	if err := f.Refresh(ctx); err != nil {
		return err
	}
	if err := fn(f); err != nil {
		return err
	}
	if t, ok := f.Get(id); ok {
		return printJSON(t)
	}
	return printJSON(map[string]any{"id": id, "status": "ok"})
}

func cmdPostsAct(args []string, name string, op func(*feed.Feed, context.Context, string) error) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: gymthreads posts %s <thread-id>", name)
	}
	id := strings.TrimSpace(args[0])
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.RequireSession(); err != nil {
			return err
		}
		return actOn(ctx, a, id, func(f *feed.Feed) error { return op(f, ctx, id) })
	})
}

func cmdPostsEdit(args []string) error {
	fs := flag.NewFlagSet("posts edit", flag.ContinueOnError)
	fromFile := fs.String("from-file", "", "Read text from file")
	positionals, err := parseInterspersedFlags(fs, args)
	if err != nil {
		return err
	}
	if len(positionals) < 1 {
		return errors.New("usage: gymthreads posts edit <thread-id> [text] [--from-file file]")
	}
	id := positionals[0]
	text, err := resolveBodyInput(positionals[1:], *fromFile)
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.RequireSession(); err != nil {
			return err
		}
		return actOn(ctx, a, id, func(f *feed.Feed) error { return f.Edit(ctx, id, text) })
	})
}

type commentRow struct {
	ID        string        `json:"id"`
	Depth     int           `json:"depth"`
	ParentID  *string       `json:"parentCommentId"`
	Author    models.Author `json:"author"`
	Text      string        `json:"text"`
	CreatedAt string        `json:"createdAt"`
	LikeCount int           `json:"likeCount"`
	LikedByMe bool          `json:"likedByMe"`
}

func flattenComments(list []models.Comment, depth, limit int, out []commentRow) []commentRow {
	for _, c := range list {
		out = append(out, commentRow{
			ID:        c.ID,
			Depth:     depth,
			ParentID:  c.ParentCommentID,
			Author:    c.Author,
			Text:      c.Text,
			CreatedAt: c.CreatedAt,
			LikeCount: c.LikeCount,
			LikedByMe: c.LikedByMe,
		})
		if limit <= 0 || depth+1 < limit {
			out = flattenComments(c.Replies, depth+1, limit, out)
		}
	}
	return out
}

func cmdComments(args []string) error {
	const u = "usage: gymthreads comments <list|add|reply|edit|delete|like> <thread-id> ..."
	if len(args) < 2 {
		return errors.New(u)
	}
	sub, threadID, rest := args[0], strings.TrimSpace(args[1]), args[2:]
	switch sub {
	case "list":
		return cmdCommentsList(threadID, rest)
	case "add", "reply", "edit":
		return cmdCommentsWrite(sub, threadID, rest)
	case "delete", "like":
		if len(rest) != 1 {
			return fmt.Errorf("usage: gymthreads comments %s <thread-id> <comment-id>", sub)
		}
		return withComments(threadID, func(ctx context.Context, tree *comments.Tree) error {
			if sub == "like" {
				if err := tree.ToggleLike(ctx, rest[0]); err != nil {
					return err
				}
				c, _ := comments.Find(tree.Items(), rest[0])
				return printJSON(map[string]any{"id": c.ID, "likeCount": c.LikeCount, "likedByMe": c.LikedByMe})
			}
			removed, err := tree.Delete(ctx, rest[0])
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"id": rest[0], "removed": removed})
		})
	default:
		return errors.New(u)
	}
}

// withComments loads the thread's comments with the feed as reply-count
// owner.
func withComments(threadID string, fn func(ctx context.Context, tree *comments.Tree) error) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.RequireSession(); err != nil {
			return err
		}
		tree := a.Comments(a.Feed(feed.Options{}), threadID)
		if err := tree.Load(ctx); err != nil {
			return err
		}
		return fn(ctx, tree)
	})
}

func cmdCommentsList(threadID string, args []string) error {
	fs := flag.NewFlagSet("comments list", flag.ContinueOnError)
	depth := fs.Int("depth", 0, "Maximum reply depth (0 = all)")
	raw := fs.Bool("raw", false, "Render as a markdown conversation")
	lf := addListFlags(fs)
	if _, err := parseInterspersedFlags(fs, args); err != nil {
		return err
	}
	return withComments(threadID, func(ctx context.Context, tree *comments.Tree) error {
		if *raw {
			fmt.Print(comments.Render(tree.Items(), *depth))
			return nil
		}
		return lf.print("comments", flattenComments(tree.Items(), 0, *depth, nil))
	})
}

func cmdCommentsWrite(sub, threadID string, args []string) error {
	fs := flag.NewFlagSet("comments "+sub, flag.ContinueOnError)
	fromFile := fs.String("from-file", "", "Read text from file")
	positionals, err := parseInterspersedFlags(fs, args)
	if err != nil {
		return err
	}
	commentID := ""
	if sub != "add" {
		if len(positionals) < 1 {
			return fmt.Errorf("usage: gymthreads comments %s <thread-id> <comment-id> [text]", sub)
		}
		commentID, positionals = positionals[0], positionals[1:]
	}
	text, err := resolveBodyInput(positionals, *fromFile)
	if err != nil {
		return err
	}
	return withComments(threadID, func(ctx context.Context, tree *comments.Tree) error {
		var err error
		if sub == "edit" {
			err = tree.Edit(ctx, commentID, text)
		} else {
			err = tree.Create(ctx, text, commentID)
		}
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"thread": threadID, "total": comments.Total(tree.Items())})
	})
}

func cmdFollow(args []string, follow bool) error {
	if len(args) != 1 {
		if follow {
			return errors.New("usage: gymthreads follow <uid>")
		}
		return errors.New("usage: gymthreads unfollow <uid>")
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.RequireSession(); err != nil {
			return err
		}
		if err := a.EnsureUser(ctx); err != nil {
			return err
		}
		tr := a.Follow(strings.TrimSpace(args[0]))
		tr.Refresh(ctx)
		var err error
		if follow {
			err = tr.Follow(ctx)
		} else {
			err = tr.Unfollow(ctx)
		}
		if err != nil {
			return err
		}
		return printJSON(tr.Stats())
	})
}

func cmdFollows(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: gymthreads follows <uid>")
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.RequireSession(); err != nil {
			return err
		}
		tr := a.Follow(strings.TrimSpace(args[0]))
		tr.Refresh(ctx)
		if err := tr.Err(); err != nil {
			return err
		}
		return printJSON(tr.Stats())
	})
}

func cmdNotifications(args []string) error {
	if len(args) == 0 {
		return cmdNotificationsList(nil)
	}
	switch args[0] {
	case "list":
		return cmdNotificationsList(args[1:])
	case "read":
		if len(args) != 2 {
			return errors.New("usage: gymthreads notifications read <notification-id>")
		}
		return cmdNotificationsMutate(func(ctx context.Context, s *notify.Stream) error { return s.MarkAsRead(ctx, args[1]) })
	case "read-all":
		return cmdNotificationsMutate(func(ctx context.Context, s *notify.Stream) error { return s.MarkAllAsRead(ctx) })
	case "delete":
		if len(args) != 2 {
			return errors.New("usage: gymthreads notifications delete <notification-id>")
		}
		return cmdNotificationsMutate(func(ctx context.Context, s *notify.Stream) error { return s.Delete(ctx, args[1]) })
	default:
		return cmdNotificationsList(args)
	}
}

func loadNotifications(ctx context.Context, s *notify.Stream, pages int) error {
	for page := 1; page <= max(pages, 1); page++ {
		if err := s.Fetch(ctx, page); err != nil {
			return err
		}
	}
	return nil
}

func cmdNotificationsList(args []string) error {
	fs := flag.NewFlagSet("notifications", flag.ContinueOnError)
	pages := fs.Int("page", 1, "Load pages 1..n")
	unreadOnly := fs.Bool("unread", false, "Only unread notifications")
	lf := addListFlags(fs)
	if _, err := parseInterspersedFlags(fs, args); err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.RequireSession(); err != nil {
			return err
		}
		s := a.Notifications(notify.Options{})
		if err := loadNotifications(ctx, s, *pages); err != nil {
			return err
		}
		items := s.Items()
		if *unreadOnly {
			items = filterUnread(items)
		}
		payload, err := output.Payload("notifications", items)
		if err != nil {
			return err
		}
		payload["unreadCount"] = s.UnreadCount()
		return output.Print(payload, *lf.format, *lf.quiet)
	})
}

func filterUnread(items []models.Notification) []models.Notification {
	out := items[:0:0]
	for _, n := range items {
		if n.Unread() {
			out = append(out, n)
		}
	}
	return out
}

func cmdNotificationsMutate(fn func(ctx context.Context, s *notify.Stream) error) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.RequireSession(); err != nil {
			return err
		}
		s := a.Notifications(notify.Options{})
		if err := s.Fetch(ctx, 1); err != nil {
			return err
		}
		if err := fn(ctx, s); err != nil {
			return err
		}
		return printJSON(map[string]any{"unreadCount": s.UnreadCount()})
	})
}

func cmdWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	intervalRaw := fs.String("interval", "", "Polling resync interval (default from config)")
	coalesceRaw := fs.String("coalesce", "0s", "Fold bursts of live signals within this window")
	noLive := fs.Bool("no-live", false, "Poll only; do not open the live channel")
	if err := fs.Parse(args); err != nil {
		return err
	}
	coalesce, err := time.ParseDuration(*coalesceRaw)
	if err != nil || coalesce < 0 {
		return errors.New("invalid --coalesce")
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		interval := a.Settings.Watch
		if strings.TrimSpace(*intervalRaw) != "" {
			interval, err = time.ParseDuration(*intervalRaw)
			if err != nil || interval <= 0 {
				return errors.New("invalid --interval")
			}
		}
		return a.Watch(ctx, app.WatchOptions{
			Interval: interval,
			Coalesce: coalesce,
			NoLive:   *noLive,
		}, func(n models.Notification) error {
			return printJSON(n)
		})
	})
}

func cmdSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	lf := addListFlags(fs)
	positionals, err := parseInterspersedFlags(fs, args)
	if err != nil {
		return err
	}
	q := strings.TrimSpace(strings.Join(positionals, " "))
	if q == "" {
		return errors.New("usage: gymthreads search <query>")
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.RequireSession(); err != nil {
			return err
		}
		items, err := users.Lookup(ctx, a.API, q)
		if err != nil {
			return err
		}
		return lf.print("users", items)
	})
}

func cmdProfile(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: gymthreads profile <uid>")
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.RequireServer(); err != nil {
			return err
		}
		p := a.Profiles()
		p.Load(ctx, strings.TrimSpace(args[0]))
		prof, err := p.Current()
		if err != nil {
			return err
		}
		return printJSON(prof)
	})
}

func cmdRename(args []string) error {
	name := strings.TrimSpace(strings.Join(args, " "))
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.RequireSession(); err != nil {
			return err
		}
		if err := users.UpdateDisplayName(ctx, a.API, a.Session, name); err != nil {
			return err
		}
		if err := a.Session.RefreshMe(ctx, a.API); err != nil {
			return err
		}
		return printJSON(a.Session.User())
	})
}

func cmdTags(args []string) error {
	fs := flag.NewFlagSet("tags", flag.ContinueOnError)
	fromFile := fs.String("from-file", "", "Read text from file")
	lf := addListFlags(fs)
	positionals, err := parseInterspersedFlags(fs, args)
	if err != nil {
		return err
	}
	if *fromFile == "" && len(positionals) > 1 {
		positionals = []string{strings.Join(positionals, " ")}
	}
	text, err := resolveBodyInput(positionals, *fromFile)
	if err != nil {
		return err
	}
	return lf.print("tags", tags.Extract(text))
}

func resolveBodyInput(args []string, fromFile string) (string, error) {
	if strings.TrimSpace(fromFile) != "" {
		if len(args) > 0 {
			return "", errors.New("provide either inline text or --from-file, not both")
		}
		b, err := os.ReadFile(fromFile)
		if err != nil {
			return "", err
		}
		body := strings.TrimSpace(string(b))
		if body == "" {
			return "", errors.New("text is empty")
		}
		return body, nil
	}
	if len(args) != 1 {
		return "", errors.New("missing text")
	}
	body := strings.TrimSpace(args[0])
	if body == "" {
		return "", errors.New("text is empty")
	}
	return body, nil
}

type multiStringFlag struct {
	values []string
}

func (m *multiStringFlag) String() string {
	return strings.Join(m.values, ",")
}

func (m *multiStringFlag) Set(value string) error {
	m.values = append(m.values, value)
	return nil
}

func parseCSVUnique(raw []string) []string {
	out := make([]string, 0)
	seen := map[string]struct{}{}
	for _, v := range raw {
		for _, p := range strings.Split(v, ",") {
			item := strings.TrimSpace(p)
			if item == "" {
				continue
			}
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseInterspersedFlags(fs *flag.FlagSet, args []string) ([]string, error) {
	positionals := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := strings.TrimSpace(args[i])
		if arg == "" {
			continue
		}
		if arg == "--" {
			positionals = append(positionals, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			positionals = append(positionals, arg)
			continue
		}

		trimmed := strings.TrimLeft(arg, "-")
		if trimmed == "" {
			positionals = append(positionals, arg)
			continue
		}
		name := trimmed
		value := ""
		hasValue := false
		if idx := strings.Index(trimmed, "="); idx >= 0 {
			name = trimmed[:idx]
			value = trimmed[idx+1:]
			hasValue = true
		}

		f := fs.Lookup(name)
		if f == nil {
			return nil, fmt.Errorf("flag provided but not defined: -%s", name)
		}
		isBool := false
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			isBool = true
		}

		if !hasValue {
			if isBool {
				value = "true"
			} else {
				if i+1 >= len(args) {
					return nil, fmt.Errorf("flag needs an argument: -%s", name)
				}
				i++
				value = args[i]
			}
		}

		if err := fs.Set(name, value); err != nil {
			return nil, err
		}
	}
	return positionals, nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func usage() error {
	return errors.New(`usage:
  gymthreads connect <url> --token <token> [--in-dir]
  gymthreads disconnect
  gymthreads status
  gymthreads whoami
  gymthreads feed [--limit n] [--author uid] [--pages n] [--format f] [--quiet]
  gymthreads reposts <uid> [--limit n] [--pages n]
  gymthreads posts add [text] [--from-file file] [--media path ...]
  gymthreads posts edit <thread-id> [text] [--from-file file]
  gymthreads posts delete <thread-id>
  gymthreads posts like <thread-id>
  gymthreads posts repost <thread-id>
  gymthreads comments list <thread-id> [--depth n] [--raw]
  gymthreads comments add <thread-id> [text]
  gymthreads comments reply <thread-id> <comment-id> [text]
  gymthreads comments edit <thread-id> <comment-id> [text]
  gymthreads comments delete <thread-id> <comment-id>
  gymthreads comments like <thread-id> <comment-id>
  gymthreads follow <uid>
  gymthreads unfollow <uid>
  gymthreads follows <uid>
  gymthreads notifications [list] [--page n] [--unread]
  gymthreads notifications read <notification-id>
  gymthreads notifications read-all
  gymthreads notifications delete <notification-id>
  gymthreads watch [--interval 30s] [--coalesce 0s] [--no-live]
  gymthreads search <query>
  gymthreads profile <uid>
  gymthreads rename <display name>
  gymthreads tags <text>`)
}
