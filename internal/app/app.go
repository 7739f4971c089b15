// Package app wires configuration, storage, the session and the API client
// into the components the binaries drive.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gymthreads/internal/cli/config"
	"gymthreads/internal/client"
	"gymthreads/internal/comments"
	"gymthreads/internal/feed"
	"gymthreads/internal/follow"
	"gymthreads/internal/live"
	"gymthreads/internal/logging"
	"gymthreads/internal/models"
	"gymthreads/internal/notify"
	"gymthreads/internal/session"
	"gymthreads/internal/storage"
	"gymthreads/internal/users"
)

var ErrNotConnected = errors.New("not connected. run: gymthreads connect <url> --token <token>")

type App struct {
	ConfigPath string
	Config     *config.Config
	Settings   config.Settings
	Log        *slog.Logger
	Store      *storage.Store
	Session    *session.Session
	API        *client.Client
}

// Open loads .env and the nearest config, opens the state database and
// hydrates the session. A GYMTHREADS_TOKEN override is kept in memory only.
func Open(ctx context.Context) (*App, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	path, err := config.Path()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	settings := cfg.Resolve(path)
	log := logging.Setup(os.Stderr, settings.LogLevel)

	store, err := storage.Open(settings.StoragePath)
	if err != nil {
		return nil, err
	}
	var sess *session.Session
	if settings.Token != "" {
		sess = session.New(nil, log)
		err = sess.Set(ctx, settings.Token, nil)
	} else {
		sess = session.New(store, log)
		err = sess.Hydrate(ctx)
	}
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load session: %w", err)
	}

	return &App{
		ConfigPath: path,
		Config:     cfg,
		Settings:   settings,
		Log:        log,
		Store:      store,
		Session:    sess,
		API:        client.New(settings.URL, sess, client.WithLogger(log)),
	}, nil
}

func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// RequireServer fails unless a server URL is configured.
func (a *App) RequireServer() error {
	if a.Settings.URL == "" {
		return ErrNotConnected
	}
	return nil
}

// RequireSession additionally needs a token.
func (a *App) RequireSession() error {
	if err := a.RequireServer(); err != nil {
		return err
	}
	if !a.Session.LoggedIn() {
		return ErrNotConnected
	}
	return nil
}

// EnsureUser loads the session user when only a token is known.
func (a *App) EnsureUser(ctx context.Context) error {
	if a.Session.User() != nil {
		return nil
	}
	return a.Session.RefreshMe(ctx, a.API)
}

func (a *App) Feed(opts feed.Options) *feed.Feed {
	if opts.Logger == nil {
		opts.Logger = a.Log
	}
	return feed.New(a.API, a.Session, opts)
}

func (a *App) Reposts(uid string, limit int) *feed.Pager[models.Thread] {
	return feed.NewReposts(a.API, a.Session, uid, limit)
}

func (a *App) Comments(owner comments.Owner, threadID string) *comments.Tree {
	return comments.New(a.API, a.Session, owner, threadID, a.Log)
}

func (a *App) Notifications(opts notify.Options) *notify.Stream {
	if opts.Logger == nil {
		opts.Logger = a.Log
	}
	return notify.New(a.API, a.Session, opts)
}

func (a *App) Follow(uid string) *follow.Tracker {
	return follow.New(a.API, a.Session, uid, a.Log)
}

func (a *App) Profiles() *users.Profiles {
	return users.NewProfiles(a.API)
}

func (a *App) Live() *live.Channel {
	return live.New(live.Options{
		URL:    a.Settings.URL,
		Tokens: a.Session,
		Jitter: 0.2,
		Logger: a.Log,
	})
}
