package users

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"gymthreads/internal/client"
	"gymthreads/internal/models"
	"gymthreads/internal/session"
	"gymthreads/internal/task"
)

var ErrNameRequired = errors.New("name is required")

// Profiles loads one profile at a time; a newer Load supersedes an older
// one and the older result is discarded.
type Profiles struct {
	api   API
	group task.Group

	mu      sync.Mutex
	uid     string
	profile *models.Profile
	err     error
	loading bool
}

func NewProfiles(api API) *Profiles {
	return &Profiles{api: api}
}

// Load fetches uid's profile. It reports false when a newer Load won.
func (p *Profiles) Load(ctx context.Context, uid string) bool {
	p.mu.Lock()
	p.loading = true
	p.mu.Unlock()

	return task.Run(ctx, &p.group, func(ctx context.Context) (*models.Profile, error) {
		prof, err := GetProfile(ctx, p.api, uid)
		if err != nil {
			return nil, err
		}
		return &prof, nil
	}, func(prof *models.Profile, err error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.uid = uid
		p.profile = prof
		p.err = err
		p.loading = false
	})
}

// Current returns the last delivered profile, or nil with the error that
// replaced it.
func (p *Profiles) Current() (*models.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profile, p.err
}

func (p *Profiles) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// UID is the uid of the last delivered profile.
func (p *Profiles) UID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uid
}

func GetProfile(ctx context.Context, api API, uid string) (models.Profile, error) {
	var prof models.Profile
	if uid == "" {
		return prof, session.ErrInvalidTarget
	}
	if err := api.Get(ctx, "/api/profiles/"+url.PathEscape(uid), &prof); err != nil {
		return models.Profile{}, client.Describe(err, "Failed to load profile")
	}
	return prof, nil
}

// UpdateDisplayName renames the session user.
func UpdateDisplayName(ctx context.Context, api API, sess Session, name string) error {
	if !sess.LoggedIn() {
		return session.ErrNoSession
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if err := api.Put(ctx, "/api/profiles/me", map[string]string{"displayName": name}, nil); err != nil {
		return client.Describe(err, "Update failed")
	}
	return nil
}
