// README: Bearer-token cache for the TDX API; refreshes lazily, one refresh at a time.
package tdx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// AuthURL is the TDX OpenID Connect token endpoint.
const AuthURL = "https://tdx.transportdata.tw/auth/realms/TDXConnect/protocol/openid-connect/token"

// ErrTokenRefresh wraps every failed credential refresh.
var ErrTokenRefresh = errors.New("tdx token refresh failed")

const (
	// refreshTimeout bounds a shared refresh, which outlives any one caller.
	refreshTimeout = 30 * time.Second

	// defaultTokenLifetime applies when the grant carries no expiry.
	defaultTokenLifetime = 10 * time.Minute
)

// TokenCache holds the current bearer token and its expiry. It is safe for
// concurrent use: callers that find the token absent or expired share a
// single refresh and all receive its result.
type TokenCache struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
	now        func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// TokenOption customises a TokenCache.
type TokenOption func(*TokenCache)

// WithTokenURL overrides the auth endpoint.
func WithTokenURL(url string) TokenOption {
	return func(c *TokenCache) { c.cfg.TokenURL = url }
}

// WithClock overrides time.Now for expiry bookkeeping.
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCache) { c.now = now }
}

// WithHTTPClient sets the client used for refresh requests.
func WithHTTPClient(hc *http.Client) TokenOption {
	return func(c *TokenCache) { c.httpClient = hc }
}

// NewTokenCache returns an empty cache for the given client credentials.
func NewTokenCache(clientID, clientSecret string, opts ...TokenOption) *TokenCache {
	c := &TokenCache{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     AuthURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns a valid bearer token, refreshing it first when absent or expired.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.current(); ok {
		return tok, nil
	}

	// The refresh is shared, so it must not die with the caller that started
	// it; each caller still stops waiting when its own ctx is done.
	ch := c.group.DoChan("token", func() (any, error) {
		// Another caller may have refreshed while we waited on the group.
		if tok, ok := c.current(); ok {
			return tok, nil
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return c.refresh(rctx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// ExpiresAt reports the expiry of the held token; zero when none is held.
func (c *TokenCache) ExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiresAt
}

func (c *TokenCache) current() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" || !c.now().Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// refresh performs the client-credentials grant and stores the result.
func (c *TokenCache) refresh(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	issued := c.now()
	tok, err := c.cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenRefresh, err)
	}

	var expiresAt time.Time
	if secs, ok := expiresIn(tok); ok {
		expiresAt = issued.Add(time.Duration(secs) * time.Second)
	} else if !tok.Expiry.IsZero() {
		expiresAt = tok.Expiry
	} else {
		expiresAt = issued.Add(defaultTokenLifetime)
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.expiresAt = expiresAt
	c.mu.Unlock()

	return tok.AccessToken, nil
}

// expiresIn reads the raw expires_in field of the token response.
func expiresIn(tok *oauth2.Token) (int64, bool) {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v), v > 0
	case json.Number:
		n, err := v.Int64()
		return n, err == nil && n > 0
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil && n > 0
	default:
		return 0, false
	}
}
