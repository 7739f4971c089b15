package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"gymthreads/internal/app"
	"gymthreads/internal/comments"
	"gymthreads/internal/feed"
	"gymthreads/internal/notify"
)

const version = "0.1.0"

type feedArgs struct {
	Limit    *int    `json:"limit,omitempty" jsonschema:"page size, default 8"`
	AuthorID *string `json:"author_id,omitempty" jsonschema:"only threads by this uid"`
	Pages    *int    `json:"pages,omitempty" jsonschema:"number of pages to load, default 1"`
}

type postArgs struct {
	Text string `json:"text" jsonschema:"thread text; #hashtags become tags"`
}

type threadArgs struct {
	ThreadID string `json:"thread_id"`
}

type commentArgs struct {
	ThreadID        string  `json:"thread_id"`
	Text            string  `json:"text"`
	ParentCommentID *string `json:"parent_comment_id,omitempty" jsonschema:"reply to this comment"`
}

type readCommentsArgs struct {
	ThreadID string `json:"thread_id"`
	Depth    *int   `json:"depth,omitempty" jsonschema:"maximum reply depth, 0 for all"`
}

type notificationsArgs struct {
	Pages *int `json:"pages,omitempty" jsonschema:"load pages 1..n, default 1"`
}

type markReadArgs struct {
	NotificationID *string `json:"notification_id,omitempty"`
	All            *bool   `json:"all,omitempty" jsonschema:"mark everything read"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	a, err := app.Open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.RequireSession(); err != nil {
		return err
	}
	return newServer(a).Run(ctx, &mcp.StdioTransport{})
}

func newServer(a *app.App) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "gymthreads-mcp",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "threads_feed",
		Description: "List the latest gym threads, newest first",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args feedArgs) (*mcp.CallToolResult, any, error) {
		opts := feed.Options{}
		if args.Limit != nil {
			opts.PageSize = *args.Limit
		}
		if args.AuthorID != nil {
			opts.AuthorID = strings.TrimSpace(*args.AuthorID)
		}
		pages := 1
		if args.Pages != nil && *args.Pages > 1 {
			pages = *args.Pages
		}
		f := a.Feed(opts)
		if err := f.Refresh(ctx); err != nil {
			return nil, nil, err
		}
		for i := 1; i < pages && f.HasMore(); i++ {
			if err := f.LoadMore(ctx); err != nil {
				return nil, nil, err
			}
		}
		return jsonResult(map[string]any{
			"threads":    f.Items(),
			"nextCursor": f.Cursor(),
			"hasMore":    f.HasMore(),
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "threads_post",
		Description: "Publish a new thread",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args postArgs) (*mcp.CallToolResult, any, error) {
		text := strings.TrimSpace(args.Text)
		if text == "" {
			return nil, nil, errors.New("text is required")
		}
		f := a.Feed(feed.Options{})
		if err := f.Create(ctx, text, nil); err != nil {
			return nil, nil, err
		}
		return jsonResult(map[string]any{"threads": f.Items()})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "threads_like",
		Description: "Toggle your like on a thread",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args threadArgs) (*mcp.CallToolResult, any, error) {
		id := strings.TrimSpace(args.ThreadID)
		if id == "" {
			return nil, nil, errors.New("thread_id is required")
		}
		f := a.Feed(feed.Options{})
		if err := f.Refresh(ctx); err != nil {
			return nil, nil, err
		}
		if err := f.ToggleLike(ctx, id); err != nil {
			return nil, nil, err
		}
		if t, ok := f.Get(id); ok {
			return jsonResult(t)
		}
		return jsonResult(map[string]any{"id": id, "status": "ok"})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "threads_comment",
		Description: "Comment on a thread or reply to a comment",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args commentArgs) (*mcp.CallToolResult, any, error) {
		id := strings.TrimSpace(args.ThreadID)
		text := strings.TrimSpace(args.Text)
		if id == "" || text == "" {
			return nil, nil, errors.New("thread_id and text are required")
		}
		parent := ""
		if args.ParentCommentID != nil {
			parent = strings.TrimSpace(*args.ParentCommentID)
		}
		tree := a.Comments(a.Feed(feed.Options{}), id)
		if err := tree.Create(ctx, text, parent); err != nil {
			return nil, nil, err
		}
		return textResult(comments.Render(tree.Items(), 0)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "threads_read_comments",
		Description: "Read a thread's comments as markdown",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args readCommentsArgs) (*mcp.CallToolResult, any, error) {
		id := strings.TrimSpace(args.ThreadID)
		if id == "" {
			return nil, nil, errors.New("thread_id is required")
		}
		depth := 0
		if args.Depth != nil {
			if *args.Depth < 0 {
				return nil, nil, errors.New("invalid depth value")
			}
			depth = *args.Depth
		}
		tree := a.Comments(nil, id)
		if err := tree.Load(ctx); err != nil {
			return nil, nil, err
		}
		return textResult(comments.Render(tree.Items(), depth)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "threads_notifications",
		Description: "List your notifications with the unread count",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args notificationsArgs) (*mcp.CallToolResult, any, error) {
		s := a.Notifications(notify.Options{})
		pages := 1
		if args.Pages != nil && *args.Pages > 1 {
			pages = *args.Pages
		}
		for p := 1; p <= pages; p++ {
			if err := s.Fetch(ctx, p); err != nil {
				return nil, nil, err
			}
		}
		return jsonResult(map[string]any{
			"notifications": s.Items(),
			"unreadCount":   s.UnreadCount(),
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "threads_mark_read",
		Description: "Mark one notification, or all of them, as read",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args markReadArgs) (*mcp.CallToolResult, any, error) {
		s := a.Notifications(notify.Options{})
		if err := s.Fetch(ctx, 1); err != nil {
			return nil, nil, err
		}
		var err error
		switch {
		case args.All != nil && *args.All:
			err = s.MarkAllAsRead(ctx)
		case args.NotificationID != nil && strings.TrimSpace(*args.NotificationID) != "":
			err = s.MarkAsRead(ctx, strings.TrimSpace(*args.NotificationID))
		default:
			err = errors.New("notification_id or all is required")
		}
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(map[string]any{"unreadCount": s.UnreadCount()})
	})

	return server
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return textResult(string(b)), nil, nil
}
