//go:build integration
// +build integration

package test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/tokenflow"
	"github.com/MrEthical07/tokenflow/store"
)

func newIntegrationStore(t *testing.T) (*store.RedisStore, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := store.NewRedisStore(rdb, "it", time.Hour)

	return st, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

// rotatingAPI accepts only the newest access token; /refresh issues the next.
type rotatingAPI struct {
	generation atomic.Int64
	refreshes  atomic.Int64
	delay      time.Duration
}

func (a *rotatingAPI) token() string {
	return "gen-" + strconv.FormatInt(a.generation.Load(), 10)
}

func (a *rotatingAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/refresh":
		time.Sleep(a.delay)
		a.refreshes.Add(1)
		a.generation.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": a.token()})
	case "/data":
		if r.Header.Get("Authorization") != "Bearer "+a.token() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, "ok")
	default:
		http.NotFound(w, r)
	}
}

// newServerFlow wires a server variant authenticator whose refresh handler
// calls api's /refresh endpoint and persists the result in st.
func newServerFlow(t *testing.T, st store.TokenStore, api *rotatingAPI) (*tokenflow.Client, *tokenflow.Authenticator, string) {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	var client *tokenflow.Client
	cfg := tokenflow.DefaultConfig()
	cfg.AssignToken = tokenflow.BearerAssigner(st)
	cfg.RefreshTokenOnError = &tokenflow.RefreshTokenOnError{
		IsExpired: tokenflow.StatusPredicate(),
		Handler: func(ctx context.Context, _ error, _ *tokenflow.Method) error {
			m, err := tokenflow.NewRequest(http.MethodPost, srv.URL+"/refresh", nil, tokenflow.DefaultRefreshMeta)
			if err != nil {
				return err
			}
			resp, err := client.Send(ctx, m)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			var body struct {
				AccessToken string `json:"access_token"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return err
			}
			return st.Save(ctx, tokenflow.ScopeFromContext(ctx), store.Pair{AccessToken: body.AccessToken})
		},
	}

	auth, err := tokenflow.New().WithConfig(cfg).BuildServer()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(auth.Close)

	client = tokenflow.NewClient(auth.Attach(tokenflow.ClientConfig{}))
	return client, auth, srv.URL
}

func getData(ctx context.Context, client *tokenflow.Client, baseURL string) error {
	m, err := tokenflow.NewRequest(http.MethodGet, baseURL+"/data", nil, nil)
	if err != nil {
		return err
	}
	resp, err := client.Send(ctx, m)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
