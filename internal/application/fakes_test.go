package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"archie-core-session-layer/internal/domain"
)

// fakeSessionRepo is an in-memory SessionRepository. It enforces the global
// session_id uniqueness constraint the way the Mongo unique index does.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session // keyed by session_id (globally unique)
	failures int                        // next N calls fail
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (r *fakeSessionRepo) failNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = n
}

func (r *fakeSessionRepo) maybeFail() error {
	if r.failures > 0 {
		r.failures--
		return fmt.Errorf("simulated store failure: %w", domain.ErrStoreUnavailable)
	}
	return nil
}

func (r *fakeSessionRepo) Upsert(_ context.Context, session *domain.Session) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.maybeFail(); err != nil {
		return nil, err
	}

	now := time.Now()
	if existing, ok := r.sessions[session.ID]; ok {
		if existing.Shop != session.Shop {
			return nil, fmt.Errorf("duplicate session_id across shops: %w", domain.ErrStoreUnavailable)
		}
		existing.Token = session.Token
		existing.IPAddress = session.IPAddress
		existing.UserAgent = session.UserAgent
		existing.Active = true
		if now.After(existing.LastAccessedAt) {
			existing.LastAccessedAt = now
		}
		cp := *existing
		return &cp, nil
	}

	created := &domain.Session{
		ID:             session.ID,
		Shop:           session.Shop,
		Token:          session.Token,
		IPAddress:      session.IPAddress,
		UserAgent:      session.UserAgent,
		CreatedAt:      now,
		LastAccessedAt: now,
		Active:         true,
	}
	r.sessions[session.ID] = created
	cp := *created
	return &cp, nil
}

func (r *fakeSessionRepo) GetBySession(_ context.Context, shop, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.maybeFail(); err != nil {
		return nil, err
	}
	sess, ok := r.sessions[sessionID]
	if !ok || sess.Shop != shop {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (r *fakeSessionRepo) MostRecentActive(_ context.Context, shop string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.maybeFail(); err != nil {
		return nil, err
	}
	var best *domain.Session
	for _, sess := range r.sessions {
		if sess.Shop != shop || !sess.Active {
			continue
		}
		if best == nil || sess.LastAccessedAt.After(best.LastAccessedAt) {
			best = sess
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (r *fakeSessionRepo) ListActive(_ context.Context, shop string) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.maybeFail(); err != nil {
		return nil, err
	}
	var out []*domain.Session
	for _, sess := range r.sessions {
		if sess.Shop == shop && sess.Active {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) CountActive(ctx context.Context, shop string) (int, error) {
	list, err := r.ListActive(ctx, shop)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

func (r *fakeSessionRepo) SetActive(_ context.Context, shop, sessionID string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.maybeFail(); err != nil {
		return err
	}
	sess, ok := r.sessions[sessionID]
	if !ok || sess.Shop != shop {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	sess.Active = active
	return nil
}

func (r *fakeSessionRepo) Touch(_ context.Context, shop, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.maybeFail(); err != nil {
		return err
	}
	sess, ok := r.sessions[sessionID]
	if !ok || sess.Shop != shop {
		return nil
	}
	if now := time.Now(); now.After(sess.LastAccessedAt) {
		sess.LastAccessedAt = now
	}
	return nil
}

func (r *fakeSessionRepo) MarkInactiveBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.maybeFail(); err != nil {
		return 0, err
	}
	var n int64
	for _, sess := range r.sessions {
		if sess.Active && sess.LastAccessedAt.Before(cutoff) {
			sess.Active = false
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) DeleteCreatedBefore(_ context.Context, cutoff time.Time) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.maybeFail(); err != nil {
		return nil, err
	}
	var deleted []*domain.Session
	for id, sess := range r.sessions {
		if sess.CreatedAt.Before(cutoff) {
			cp := *sess
			deleted = append(deleted, &cp)
			delete(r.sessions, id)
		}
	}
	return deleted, nil
}

func (r *fakeSessionRepo) DeleteByShop(_ context.Context, shop string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sess := range r.sessions {
		if sess.Shop == shop {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *fakeSessionRepo) EnsureIndexes(context.Context) error { return nil }

// setLastAccessed rewinds a session's clock, for sweep tests.
func (r *fakeSessionRepo) setLastAccessed(sessionID string, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[sessionID]; ok {
		sess.LastAccessedAt = t
	}
}

// setCreatedAt rewinds a session's creation time, for sweep tests.
func (r *fakeSessionRepo) setCreatedAt(sessionID string, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[sessionID]; ok {
		sess.CreatedAt = t
	}
}

// fakeTokenCache is an in-memory TokenCache with switchable failure mode.
type fakeTokenCache struct {
	mu            sync.Mutex
	sessionTokens map[string]string // key shop+"\x00"+sessionID
	shopTokens    map[string]string
	unavailable   bool
}

func newFakeTokenCache() *fakeTokenCache {
	return &fakeTokenCache{
		sessionTokens: make(map[string]string),
		shopTokens:    make(map[string]string),
	}
}

func (c *fakeTokenCache) setUnavailable(down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unavailable = down
}

func (c *fakeTokenCache) key(shop, sessionID string) string {
	return shop + "\x00" + sessionID
}

func (c *fakeTokenCache) GetBySession(_ context.Context, shop, sessionID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unavailable {
		return "", domain.ErrCacheUnavailable
	}
	token, ok := c.sessionTokens[c.key(shop, sessionID)]
	if !ok {
		return "", domain.ErrCacheMiss
	}
	return token, nil
}

func (c *fakeTokenCache) GetByShop(_ context.Context, shop string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unavailable {
		return "", domain.ErrCacheUnavailable
	}
	token, ok := c.shopTokens[shop]
	if !ok {
		return "", domain.ErrCacheMiss
	}
	return token, nil
}

func (c *fakeTokenCache) Put(_ context.Context, shop, sessionID, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unavailable {
		return domain.ErrCacheUnavailable
	}
	c.sessionTokens[c.key(shop, sessionID)] = token
	c.shopTokens[shop] = token
	return nil
}

func (c *fakeTokenCache) DeleteSession(_ context.Context, shop, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unavailable {
		return domain.ErrCacheUnavailable
	}
	delete(c.sessionTokens, c.key(shop, sessionID))
	return nil
}

func (c *fakeTokenCache) DeleteShopKey(_ context.Context, shop string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unavailable {
		return domain.ErrCacheUnavailable
	}
	delete(c.shopTokens, shop)
	return nil
}

func (c *fakeTokenCache) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unavailable {
		return domain.ErrCacheUnavailable
	}
	return nil
}

// evictAll simulates TTL expiry of every entry.
func (c *fakeTokenCache) evictAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionTokens = make(map[string]string)
	c.shopTokens = make(map[string]string)
}

// evictSession simulates TTL expiry of one session-keyed entry.
func (c *fakeTokenCache) evictSession(shop, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessionTokens, c.key(shop, sessionID))
}

// hasSessionEntry reports whether the session-keyed entry is populated.
func (c *fakeTokenCache) hasSessionEntry(shop, sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessionTokens[c.key(shop, sessionID)]
	return ok
}

// fakeShopRepo is an in-memory ShopRepository.
type fakeShopRepo struct {
	mu    sync.Mutex
	shops map[string]*domain.Shop
}

func newFakeShopRepo() *fakeShopRepo {
	return &fakeShopRepo{shops: make(map[string]*domain.Shop)}
}

func (r *fakeShopRepo) SaveShop(_ context.Context, shop *domain.Shop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shops[shop.Domain]; !ok {
		r.shops[shop.Domain] = &domain.Shop{Domain: shop.Domain, CreatedAt: time.Now()}
	}
	r.shops[shop.Domain].UpdatedAt = time.Now()
	return nil
}

func (r *fakeShopRepo) GetShop(_ context.Context, shopDomain string) (*domain.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	shop, ok := r.shops[shopDomain]
	if !ok {
		return nil, nil
	}
	cp := *shop
	return &cp, nil
}

func (r *fakeShopRepo) DeleteShop(_ context.Context, shopDomain string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.shops, shopDomain)
	return nil
}
