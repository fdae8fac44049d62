package tdx

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeAuth is a client-credentials token endpoint that counts grants.
type fakeAuth struct {
	grants    atomic.Int32
	expiresIn int
	delay     time.Duration
	fail      bool
}

func (f *fakeAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" ||
		r.PostForm.Get("client_id") != "id" ||
		r.PostForm.Get("client_secret") != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	n := f.grants.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	w.Header().Set("Content-Type", "application/json")
	if f.fail {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
		return
	}
	_, _ = fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":%d}`, n, f.expiresIn)
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, auth *fakeAuth, clock *fakeClock) *TokenCache {
	t.Helper()
	ts := httptest.NewServer(auth)
	t.Cleanup(ts.Close)
	return NewTokenCache("id", "secret", WithTokenURL(ts.URL), WithClock(clock.Now))
}

func TestTokenFirstCallRefreshesOnce(t *testing.T) {
	auth := &fakeAuth{expiresIn: 86400}
	clock := &fakeClock{t: time.Date(2024, 6, 17, 6, 0, 0, 0, time.UTC)}
	cache := newTestCache(t, auth, clock)

	require.True(t, cache.ExpiresAt().IsZero())

	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok)
	require.EqualValues(t, 1, auth.grants.Load())
	require.Equal(t, clock.Now().Add(24*time.Hour), cache.ExpiresAt())
}

func TestTokenValidTokenSkipsRefresh(t *testing.T) {
	auth := &fakeAuth{expiresIn: 3600}
	clock := &fakeClock{t: time.Date(2024, 6, 17, 6, 0, 0, 0, time.UTC)}
	cache := newTestCache(t, auth, clock)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok)
	require.EqualValues(t, 1, auth.grants.Load())
}

func TestTokenExpiredRefreshesOnce(t *testing.T) {
	auth := &fakeAuth{expiresIn: 3600}
	clock := &fakeClock{t: time.Date(2024, 6, 17, 6, 0, 0, 0, time.UTC)}
	cache := newTestCache(t, auth, clock)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	oldExpiry := cache.ExpiresAt()

	// Expiry is inclusive: now == expiresAt already counts as expired.
	clock.Advance(time.Hour)
	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-2", tok)
	require.EqualValues(t, 2, auth.grants.Load())
	require.True(t, cache.ExpiresAt().After(oldExpiry))

	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, auth.grants.Load())
}

func TestTokenConcurrentCallersShareRefresh(t *testing.T) {
	auth := &fakeAuth{expiresIn: 3600, delay: 50 * time.Millisecond}
	clock := &fakeClock{t: time.Date(2024, 6, 17, 6, 0, 0, 0, time.UTC)}
	cache := newTestCache(t, auth, clock)

	const callers = 16
	tokens := make([]string, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tokens[i], errs[i] = cache.Token(context.Background())
		}(i)
	}

	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "tok-1", tokens[i])
	}
	require.EqualValues(t, 1, auth.grants.Load())
}

func TestTokenRefreshFailurePropagates(t *testing.T) {
	auth := &fakeAuth{fail: true}
	clock := &fakeClock{t: time.Date(2024, 6, 17, 6, 0, 0, 0, time.UTC)}
	cache := newTestCache(t, auth, clock)

	_, err := cache.Token(context.Background())
	require.ErrorIs(t, err, ErrTokenRefresh)
	require.EqualValues(t, 1, auth.grants.Load())
	require.True(t, cache.ExpiresAt().IsZero())

	// No retry inside a call; the next call tries again.
	_, err = cache.Token(context.Background())
	require.Error(t, err)
	require.EqualValues(t, 2, auth.grants.Load())
}

func TestTokenWaiterSurvivesLeaderCancel(t *testing.T) {
	auth := &fakeAuth{expiresIn: 3600, delay: 200 * time.Millisecond}
	clock := &fakeClock{t: time.Date(2024, 6, 17, 6, 0, 0, 0, time.UTC)}
	cache := newTestCache(t, auth, clock)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := cache.Token(leaderCtx)
		leaderErr <- err
	}()

	// Wait until the leader's grant is in flight before joining it.
	require.Eventually(t, func() bool { return auth.grants.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		tok string
		err error
	}
	waiter := make(chan result, 1)
	go func() {
		tok, err := cache.Token(context.Background())
		waiter <- result{tok, err}
	}()

	time.Sleep(30 * time.Millisecond)
	cancelLeader()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	got := <-waiter
	require.NoError(t, got.err)
	require.Equal(t, "tok-1", got.tok)
	require.EqualValues(t, 1, auth.grants.Load())

	// The detached refresh still populated the cache.
	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok)
	require.EqualValues(t, 1, auth.grants.Load())
}

func TestTokenWithoutExpiryUsesDefaultLifetime(t *testing.T) {
	// expires_in 0 is treated as absent.
	auth := &fakeAuth{expiresIn: 0}
	clock := &fakeClock{t: time.Date(2024, 6, 17, 6, 0, 0, 0, time.UTC)}
	cache := newTestCache(t, auth, clock)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, clock.Now().Add(defaultTokenLifetime), cache.ExpiresAt())

	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, auth.grants.Load())

	clock.Advance(defaultTokenLifetime)
	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-2", tok)
}
