package steward_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/steward"
	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/cache"
	"github.com/xraph/steward/principal"
	"github.com/xraph/steward/role"
	"github.com/xraph/steward/store/memory"
)

// hitRecorder counts cache hits reported to AfterResolve.
type hitRecorder struct {
	mu     sync.Mutex
	hits   int
	misses int
}

func (h *hitRecorder) Name() string { return "hits" }

func (h *hitRecorder) OnAfterResolve(_ context.Context, event any) error {
	ev, ok := event.(*steward.ResolveEvent)
	if !ok {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if ev.CacheHit {
		h.hits++
	} else {
		h.misses++
	}
	return nil
}

func (h *hitRecorder) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits, h.misses
}

type fixture struct {
	ctx   context.Context
	eng   *steward.Engine
	store *memory.Store
	hits  *hitRecorder
}

func newCachedFixture(t *testing.T, opts ...steward.Option) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   steward.WithTenant(context.Background(), "app1", "t1"),
		store: memory.New(),
		hits:  &hitRecorder{},
	}
	base := []steward.Option{
		steward.WithStore(f.store),
		steward.WithCache(cache.NewMemory()),
		steward.WithPlugin(f.hits),
	}
	eng, err := steward.NewEngine(append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	f.eng = eng
	return f
}

func (f *fixture) role(t *testing.T, slug string, precedence int, perms ...string) *role.Role {
	t.Helper()
	r := &role.Role{Slug: slug, Name: slug, Precedence: precedence, Permissions: perms}
	if err := f.eng.CreateRole(f.ctx, r); err != nil {
		t.Fatal(err)
	}
	return r
}

func (f *fixture) register(t *testing.T, principalID string) {
	t.Helper()
	if err := f.eng.RegisterPrincipal(f.ctx, &principal.Principal{ExternalID: principalID}); err != nil {
		t.Fatal(err)
	}
}

func TestCachedResolve_HitAfterMiss(t *testing.T) {
	f := newCachedFixture(t)
	f.register(t, "u1")
	r := f.role(t, "admin", 1, "manage_users")
	if _, err := f.eng.GrantRole(f.ctx, &steward.GrantRequest{PrincipalID: "u1", RoleID: r.ID}); err != nil {
		t.Fatal(err)
	}

	for range 3 {
		priv, err := f.eng.Resolve(f.ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if !priv.HasPermission("manage_users") {
			t.Fatal("missing permission")
		}
	}
	if hits, misses := f.hits.counts(); hits != 2 || misses != 1 {
		t.Fatalf("expected 2 hits and 1 miss, got %d/%d", hits, misses)
	}
}

func TestCachedResolve_GrantInvalidates(t *testing.T) {
	f := newCachedFixture(t)
	f.register(t, "u1")
	viewer := f.role(t, "viewer", 10, "view_dashboard")
	admin := f.role(t, "admin", 1, "manage_users")
	if _, err := f.eng.GrantRole(f.ctx, &steward.GrantRequest{PrincipalID: "u1", RoleID: viewer.ID}); err != nil {
		t.Fatal(err)
	}

	priv, err := f.eng.Resolve(f.ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if priv.HighestPrecedence != 10 {
		t.Fatalf("expected 10, got %d", priv.HighestPrecedence)
	}

	if _, err := f.eng.GrantRole(f.ctx, &steward.GrantRequest{PrincipalID: "u1", RoleID: admin.ID}); err != nil {
		t.Fatal(err)
	}
	priv, err = f.eng.Resolve(f.ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if priv.HighestPrecedence != 1 || !priv.HasPermission("manage_users") {
		t.Fatalf("stale snapshot served after grant: %+v", priv)
	}
}

func TestCachedResolve_RoleUpdateInvalidatesTenant(t *testing.T) {
	f := newCachedFixture(t)
	f.register(t, "u1")
	f.register(t, "u2")
	r := f.role(t, "editor", 5, "edit_posts")
	for _, pid := range []string{"u1", "u2"} {
		if _, err := f.eng.GrantRole(f.ctx, &steward.GrantRequest{PrincipalID: pid, RoleID: r.ID}); err != nil {
			t.Fatal(err)
		}
		if _, err := f.eng.Resolve(f.ctx, pid); err != nil {
			t.Fatal(err)
		}
	}

	r.Permissions = []string{"edit_posts", "publish_posts"}
	if err := f.eng.UpdateRole(f.ctx, r); err != nil {
		t.Fatal(err)
	}
	for _, pid := range []string{"u1", "u2"} {
		priv, err := f.eng.Resolve(f.ctx, pid)
		if err != nil {
			t.Fatal(err)
		}
		if !priv.HasPermission("publish_posts") {
			t.Fatalf("%s: role update not visible", pid)
		}
	}
}

// staleReadStore returns the first ListLiveAssignments result only after
// the test releases it, simulating a slow read racing a write.
type staleReadStore struct {
	*memory.Store
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (s *staleReadStore) ListLiveAssignments(ctx context.Context, tenantID, principalID string, at time.Time) ([]*assignment.Assignment, error) {
	out, err := s.Store.ListLiveAssignments(ctx, tenantID, principalID, at)
	if s.armed.CompareAndSwap(true, false) {
		close(s.entered)
		<-s.release
	}
	return out, err
}

func TestCachedResolve_StaleSnapshotNotCached(t *testing.T) {
	ctx := steward.WithTenant(context.Background(), "app1", "t1")
	s := &staleReadStore{Store: memory.New(), entered: make(chan struct{}), release: make(chan struct{})}
	eng, err := steward.NewEngine(steward.WithStore(s), steward.WithCache(cache.NewMemory()))
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.RegisterPrincipal(ctx, &principal.Principal{ExternalID: "u1"}); err != nil {
		t.Fatal(err)
	}
	r := &role.Role{Slug: "admin", Precedence: 1, Permissions: []string{"manage_users"}}
	if err := eng.CreateRole(ctx, r); err != nil {
		t.Fatal(err)
	}

	s.armed.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = eng.Resolve(ctx, "u1")
	}()

	<-s.entered
	if _, err := eng.GrantRole(ctx, &steward.GrantRequest{PrincipalID: "u1", RoleID: r.ID}); err != nil {
		t.Fatal(err)
	}
	close(s.release)
	<-done

	priv, err := eng.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !priv.HasPermission("manage_users") {
		t.Fatal("snapshot read before the grant was cached after its invalidation")
	}
}

// gatedStore holds every ListLiveAssignments call until release is closed
// or the call's context ends.
type gatedStore struct {
	*memory.Store
	calls   atomic.Int32
	entered chan struct{}
	once    sync.Once
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{Store: memory.New(), entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *gatedStore) ListLiveAssignments(ctx context.Context, tenantID, principalID string, at time.Time) ([]*assignment.Assignment, error) {
	s.calls.Add(1)
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.Store.ListLiveAssignments(ctx, tenantID, principalID, at)
}

// stampCounter reports every Stamp call, which marks a caller that missed
// the cache and is about to join a resolution.
type stampCounter struct {
	*cache.Memory
	stamped chan struct{}
}

func (c *stampCounter) Stamp(ctx context.Context, tenantID, principalID string) (steward.Stamp, error) {
	st, err := c.Memory.Stamp(ctx, tenantID, principalID)
	c.stamped <- struct{}{}
	return st, err
}

func newGatedEngine(t *testing.T, callers int) (*steward.Engine, *gatedStore, *stampCounter, context.Context) {
	t.Helper()
	ctx := steward.WithTenant(context.Background(), "app1", "t1")
	s := newGatedStore()
	c := &stampCounter{Memory: cache.NewMemory(), stamped: make(chan struct{}, callers+4)}
	eng, err := steward.NewEngine(steward.WithStore(s), steward.WithCache(c))
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.RegisterPrincipal(ctx, &principal.Principal{ExternalID: "u1"}); err != nil {
		t.Fatal(err)
	}
	r := &role.Role{Slug: "admin", Precedence: 1, Permissions: []string{"manage_users"}}
	if err := eng.CreateRole(ctx, r); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.GrantRole(ctx, &steward.GrantRequest{PrincipalID: "u1", RoleID: r.ID}); err != nil {
		t.Fatal(err)
	}
	return eng, s, c, ctx
}

func TestCachedResolve_CanceledCallerDoesNotFailOthers(t *testing.T) {
	eng, s, c, ctx := newGatedEngine(t, 2)

	ctxA, cancelA := context.WithCancel(ctx)
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := eng.Resolve(ctxA, "u1")
		errA <- err
	}()
	<-c.stamped
	<-s.entered

	type result struct {
		priv *steward.EffectivePrivileges
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		priv, err := eng.Resolve(ctx, "u1")
		resB <- result{priv, err}
	}()
	<-c.stamped

	cancelA()
	err := <-errA
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled caller: expected context.Canceled, got %v", err)
	}
	if errors.Is(err, steward.ErrCollaboratorUnavailable) {
		t.Fatal("cancellation reported as collaborator failure")
	}

	time.Sleep(50 * time.Millisecond)
	close(s.release)
	b := <-resB
	if b.err != nil {
		t.Fatalf("caller with a live context failed: %v", b.err)
	}
	if !b.priv.HasPermission("manage_users") {
		t.Fatalf("unexpected privileges: %+v", b.priv)
	}

	// The abandoned resolution still completes and populates the cache.
	if _, err := eng.Resolve(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if got := s.calls.Load(); got != 1 {
		t.Fatalf("expected one store read, got %d", got)
	}
}

func TestCachedResolve_ConcurrentMissesShareOneRead(t *testing.T) {
	const callers = 8
	eng, s, c, ctx := newGatedEngine(t, callers)

	results := make([]*steward.EffectivePrivileges, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = eng.Resolve(ctx, "u1")
		}()
	}
	for range callers {
		<-c.stamped
	}
	<-s.entered
	time.Sleep(50 * time.Millisecond)
	close(s.release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := s.calls.Load(); got != 1 {
		t.Fatalf("expected concurrent misses to share one read, got %d", got)
	}

	results[0].Permissions[0] = "mutated"
	for i := 1; i < callers; i++ {
		if results[i] == results[0] {
			t.Fatalf("caller %d shares a snapshot with caller 0", i)
		}
		if !results[i].HasPermission("manage_users") {
			t.Fatalf("caller %d sees another caller's mutation: %v", i, results[i].Permissions)
		}
	}
}

func TestCachedResolve_WindowBoundsTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	f := newCachedFixture(t, steward.WithClock(clock), steward.WithCache(cache.NewMemory(cache.WithClock(clock))))
	f.register(t, "u1")
	r := f.role(t, "oncall", 2, "page_team")

	until := now.Add(5 * time.Second)
	if _, err := f.eng.GrantRole(f.ctx, &steward.GrantRequest{PrincipalID: "u1", RoleID: r.ID, EffectiveUntil: &until}); err != nil {
		t.Fatal(err)
	}

	priv, err := f.eng.Resolve(f.ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !priv.HasPermission("page_team") {
		t.Fatal("expected live grant")
	}

	now = now.Add(6 * time.Second)
	priv, err = f.eng.Resolve(f.ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if priv.HasPermission("page_team") {
		t.Fatal("cached snapshot outlived the assignment window")
	}
}

func TestCachedResolve_ResolveAtBypassesCache(t *testing.T) {
	f := newCachedFixture(t)
	f.register(t, "u1")
	if _, err := f.eng.ResolveAt(f.ctx, "u1", time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.ResolveAt(f.ctx, "u1", time.Now()); err != nil {
		t.Fatal(err)
	}
	if hits, _ := f.hits.counts(); hits != 0 {
		t.Fatalf("ResolveAt should not hit the cache, got %d hits", hits)
	}
}

func TestCachedResolve_ErrorsNotCached(t *testing.T) {
	f := newCachedFixture(t)
	if _, err := f.eng.Resolve(f.ctx, "u1"); !errors.Is(err, steward.ErrUnknownPrincipal) {
		t.Fatalf("expected ErrUnknownPrincipal, got %v", err)
	}
	f.register(t, "u1")
	if _, err := f.eng.Resolve(f.ctx, "u1"); err != nil {
		t.Fatalf("registration should clear the failure: %v", err)
	}
}

type brokenCache struct {
	*cache.Memory
}

func (brokenCache) Invalidate(context.Context, string, string) error {
	return errors.New("cache offline")
}

func TestGrantRole_InvalidationFailure(t *testing.T) {
	ctx := steward.WithTenant(context.Background(), "app1", "t1")
	s := memory.New()
	off := false
	cfg := steward.DefaultConfig()
	cfg.RequireRegisteredPrincipals = &off
	eng, err := steward.NewEngine(steward.WithStore(s), steward.WithCache(brokenCache{cache.NewMemory()}), steward.WithConfig(cfg))
	if err != nil {
		t.Fatal(err)
	}
	r := &role.Role{Slug: "viewer", Precedence: 10}
	if err := eng.CreateRole(ctx, r); err != nil {
		t.Fatal(err)
	}

	a, err := eng.GrantRole(ctx, &steward.GrantRequest{PrincipalID: "u1", RoleID: r.ID})
	if !errors.Is(err, steward.ErrCacheInvalidation) {
		t.Fatalf("expected ErrCacheInvalidation, got %v", err)
	}
	if a == nil {
		t.Fatal("the persisted assignment should be returned")
	}
	if _, err := s.GetAssignment(ctx, a.ID); err != nil {
		t.Fatalf("assignment should be persisted: %v", err)
	}
}

// localFeed delivers invalidations synchronously to every subscriber.
type localFeed struct {
	mu   sync.Mutex
	subs []func(context.Context, steward.Invalidation)
}

func (l *localFeed) Publish(ctx context.Context, inv steward.Invalidation) error {
	l.mu.Lock()
	subs := append([]func(context.Context, steward.Invalidation){}, l.subs...)
	l.mu.Unlock()
	for _, fn := range subs {
		fn(ctx, inv)
	}
	return nil
}

func (l *localFeed) Subscribe(_ context.Context, fn func(context.Context, steward.Invalidation)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, fn)
	return nil
}

func TestFeed_PeersDropSnapshots(t *testing.T) {
	ctx := steward.WithTenant(context.Background(), "app1", "t1")
	s := memory.New()
	feed := &localFeed{}

	newPeer := func() *steward.Engine {
		eng, err := steward.NewEngine(steward.WithStore(s), steward.WithCache(cache.NewMemory()), steward.WithFeed(feed))
		if err != nil {
			t.Fatal(err)
		}
		if err := eng.Start(ctx); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = eng.Stop(context.Background()) })
		return eng
	}
	a, b := newPeer(), newPeer()

	if err := a.RegisterPrincipal(ctx, &principal.Principal{ExternalID: "u1"}); err != nil {
		t.Fatal(err)
	}
	r := &role.Role{Slug: "admin", Precedence: 1, Permissions: []string{"manage_users"}}
	if err := a.CreateRole(ctx, r); err != nil {
		t.Fatal(err)
	}

	priv, err := b.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !priv.IsEmpty() {
		t.Fatal("expected empty privileges before the grant")
	}

	if _, err := a.GrantRole(ctx, &steward.GrantRequest{PrincipalID: "u1", RoleID: r.ID}); err != nil {
		t.Fatal(err)
	}
	priv, err = b.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !priv.HasPermission("manage_users") {
		t.Fatal("peer kept a snapshot after a remote grant")
	}
}
