package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/logging"
	"github.com/example/forwardly/internal/models"
	"github.com/example/forwardly/internal/utils"
)

const (
	providerCacheTTL = 60 * time.Second
	providerCacheMax = 10000
)

// UserFinder maps a verified phone number to a registered user.
type UserFinder interface {
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
}

type providerIdentity struct {
	Phone string `json:"phone"`
}

type cachedPrincipal struct {
	principal Principal
	expiresAt time.Time
}

// ProviderResolver validates provider tokens by calling the provider's
// userinfo endpoint with the token as bearer.
type ProviderResolver struct {
	url    string
	users  UserFinder
	client *http.Client
	log    logging.Logger
	now    func() time.Time

	group     singleflight.Group
	mu        sync.Mutex
	cache     map[string]cachedPrincipal
	lastSweep time.Time
}

func NewProviderResolver(url string, users UserFinder, log logging.Logger) *ProviderResolver {
	return &ProviderResolver{
		url:    url,
		users:  users,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		cache:  make(map[string]cachedPrincipal),
	}
}

func (r *ProviderResolver) Resolve(ctx context.Context, token string) (Principal, error) {
	key := utils.HashToken(token)
	if p, ok := r.cached(key); ok {
		return p, nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		if p, ok := r.cached(key); ok {
			return p, nil
		}
		// shared by coalesced callers; it outlives any one caller's cancellation
		p, err := r.validate(context.WithoutCancel(ctx), token)
		if err != nil {
			return Principal{}, err
		}
		r.store(key, p)
		return p, nil
	})
	if err != nil {
		return Principal{}, err
	}
	return v.(Principal), nil
}

func (r *ProviderResolver) cached(key string) (Principal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cache[key]
	if !ok {
		return Principal{}, false
	}
	if !r.now().Before(entry.expiresAt) {
		delete(r.cache, key)
		return Principal{}, false
	}
	return entry.principal, true
}

// store caches p, sweeping expired entries at most once per TTL. When the
// cache is still full an arbitrary entry makes room.
func (r *ProviderResolver) store(key string, p Principal) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) >= providerCacheTTL || len(r.cache) >= providerCacheMax {
		r.lastSweep = now
		for k, entry := range r.cache {
			if !now.Before(entry.expiresAt) {
				delete(r.cache, k)
			}
		}
	}
	if len(r.cache) >= providerCacheMax {
		for k := range r.cache {
			delete(r.cache, k)
			break
		}
	}
	r.cache[key] = cachedPrincipal{principal: p, expiresAt: now.Add(providerCacheTTL)}
}

func (r *ProviderResolver) validate(ctx context.Context, token string) (Principal, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return Principal{}, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return Principal{}, apperr.Upstream("auth provider", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Principal{}, apperr.Unauthenticated("provider rejected token")
	case resp.StatusCode >= 300:
		return Principal{}, apperr.Upstream("auth provider", fmt.Errorf("status %d", resp.StatusCode))
	}

	var identity providerIdentity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return Principal{}, apperr.Upstream("auth provider", err)
	}

	phone := utils.NormalizePhone(identity.Phone)
	if phone == "" {
		return Principal{}, apperr.Unauthenticated("provider returned no phone")
	}

	user, err := r.users.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			r.log.Info(ctx, "provider token for unregistered phone", "phone", phone)
			return Principal{}, apperr.Unauthenticated("user not registered")
		}
		return Principal{}, err
	}

	return Principal{
		UserID: user.ID,
		Phone:  user.Phone,
		Source: SourceProvider,
	}, nil
}
