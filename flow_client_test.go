package tokenflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/tokenflow/store"
)

func TestClientRefreshesBeforeSendOnce(t *testing.T) {
	const n = 8

	fresh := signedToken(t, time.Now().Add(time.Hour))
	api := newTokenAPI(t, fresh)
	st := store.NewMemoryStore()
	_ = st.Save(context.Background(), "", store.Pair{
		AccessToken:  signedToken(t, time.Now().Add(-time.Minute)),
		RefreshToken: "refresh-1",
	})

	var auth *Authenticator
	var refreshes atomic.Int32
	cfg := DefaultConfig()
	cfg.AssignToken = BearerAssigner(st)
	cfg.RefreshToken = &RefreshToken{
		IsExpired: StoreExpiry(st, 0),
		Handler: func(ctx context.Context, _ *Method) error {
			refreshes.Add(1)
			if !eventually(func() bool { return len(auth.WaitingList()) == n-1 }) {
				return errors.New("waiters never queued")
			}
			return st.Save(ctx, "", store.Pair{AccessToken: fresh, RefreshToken: "refresh-2"})
		},
	}

	auth, err := New().WithConfig(cfg).BuildClient()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	client := NewClient(auth.Attach(ClientConfig{}))

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		m := mustMethod(t, http.MethodGet, api.url("/data"), nil)
		g.Go(func() error {
			resp, err := client.Send(ctx, m)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("request %d: status %d", i, resp.StatusCode)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := refreshes.Load(); got != 1 {
		t.Fatalf("single-flight violated: %d refresh calls", got)
	}
	if got := api.unauthorized.Load(); got != 0 {
		t.Fatalf("eager refresh let %d stale requests through", got)
	}
	if got := api.hits.Load(); got != n {
		t.Fatalf("expected %d hits without replays, got %d", n, got)
	}
}

func TestClientRefreshFailureFailsOwnerBeforeSend(t *testing.T) {
	api := newTokenAPI(t, "fresh")
	boom := errors.New("refresh rejected")

	cfg := DefaultConfig()
	cfg.RefreshToken = &RefreshToken{
		IsExpired: func(context.Context, *Method) (bool, error) { return true, nil },
		Handler:   func(context.Context, *Method) error { return boom },
	}
	auth, err := New().WithConfig(cfg).BuildClient()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	client := NewClient(auth.Attach(ClientConfig{}))

	_, err = client.Send(context.Background(), mustMethod(t, http.MethodGet, api.url("/data"), nil))
	if !errors.Is(err, ErrRefreshFailed) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped refresh failure, got %v", err)
	}
	if api.hits.Load() != 0 {
		t.Fatal("request must not be sent after a failed refresh")
	}
	if got := auth.MetricsSnapshot().Counters[MetricRefreshFailure]; got != 1 {
		t.Fatalf("expected refresh failure metric 1, got %d", got)
	}
}

func TestClientRefreshSelfBypassesCoordinator(t *testing.T) {
	api := newTokenAPI(t, "fresh")

	var checks, assigns atomic.Int32
	cfg := DefaultConfig()
	cfg.AssignToken = func(context.Context, *Method) error {
		assigns.Add(1)
		return nil
	}
	cfg.RefreshToken = &RefreshToken{
		IsExpired: func(context.Context, *Method) (bool, error) {
			checks.Add(1)
			return true, nil
		},
		Handler: func(context.Context, *Method) error { return nil },
	}
	auth, err := New().WithConfig(cfg).BuildClient()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	client := NewClient(auth.Attach(ClientConfig{}))

	m := mustMethod(t, http.MethodPost, api.url("/public"), DefaultRefreshMeta)
	if role := auth.Role(m); role != RoleRefresh {
		t.Fatalf("expected refresh role, got %s", role)
	}
	resp, err := client.Send(context.Background(), m)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	resp.Body.Close()

	if checks.Load() != 0 {
		t.Fatal("refresh-self request must not be checked for expiry")
	}
	if assigns.Load() != 1 {
		t.Fatalf("refresh-self request still gets a token, got %d assigns", assigns.Load())
	}
}

func TestVisitorBypassesEverything(t *testing.T) {
	api := newTokenAPI(t, "fresh")

	var checks, handlers, assigns atomic.Int32
	cfg := DefaultConfig()
	cfg.VisitorMeta = Meta{"authRole": "visitor"}
	cfg.AssignToken = func(_ context.Context, m *Method) error {
		assigns.Add(1)
		m.SetHeader("Authorization", "Bearer fresh")
		return nil
	}
	cfg.RefreshToken = &RefreshToken{
		IsExpired: func(context.Context, *Method) (bool, error) {
			checks.Add(1)
			return true, nil
		},
		Handler: func(context.Context, *Method) error {
			handlers.Add(1)
			return nil
		},
	}

	auth, err := New().WithConfig(cfg).BuildClient()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var nextCalls atomic.Int32
	client := NewClient(auth.Attach(ClientConfig{
		BeforeRequest: func(context.Context, *Method) error {
			nextCalls.Add(1)
			return nil
		},
	}))

	resp, err := client.Send(context.Background(), mustMethod(t, http.MethodGet, api.url("/public"), Meta{"authRole": "visitor", "page": 1}))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if body := readAll(t, resp); body != "public" {
		t.Fatalf("unexpected body %q", body)
	}

	if checks.Load() != 0 || handlers.Load() != 0 || assigns.Load() != 0 {
		t.Fatalf("visitor touched auth: checks=%d handlers=%d assigns=%d", checks.Load(), handlers.Load(), assigns.Load())
	}
	if nextCalls.Load() != 1 {
		t.Fatalf("original before-request hook must still run, got %d", nextCalls.Load())
	}
	if api.lastAuthorization() != "" {
		t.Fatalf("visitor request carried Authorization %q", api.lastAuthorization())
	}
	if got := auth.MetricsSnapshot().Counters[MetricVisitorBypass]; got != 1 {
		t.Fatalf("expected visitor bypass metric 1, got %d", got)
	}
}

func TestLoginHandlerAssignsOnceThenProtectedIsNotLogin(t *testing.T) {
	builds := map[string]func(*Builder) (*Authenticator, error){
		"client": (*Builder).BuildClient,
		"server": (*Builder).BuildServer,
	}
	for name, build := range builds {
		t.Run(name, func(t *testing.T) {
			api := newTokenAPI(t, "fresh")
			st := store.NewMemoryStore()
			bearer := BearerAssigner(st)

			var loginCalls, assigns atomic.Int32
			cfg := DefaultConfig()
			cfg.AssignToken = func(ctx context.Context, m *Method) error {
				assigns.Add(1)
				return bearer(ctx, m)
			}
			cfg.Login = &Interceptor{
				Handler: func(ctx context.Context, resp *http.Response, _ *Method) error {
					loginCalls.Add(1)
					var body struct {
						AccessToken  string `json:"access_token"`
						RefreshToken string `json:"refresh_token"`
					}
					if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
						return err
					}
					return st.Save(ctx, "", store.Pair{AccessToken: body.AccessToken, RefreshToken: body.RefreshToken})
				},
			}

			auth, err := build(New().WithConfig(cfg))
			if err != nil {
				t.Fatalf("build: %v", err)
			}

			var seenByNext string
			client := NewClient(auth.Attach(ClientConfig{
				Responded: Responded{
					OnSuccess: func(_ context.Context, resp *http.Response, m *Method) (*http.Response, error) {
						if auth.Role(m) == RoleLogin {
							seenByNext = readAll(t, resp)
						}
						return resp, nil
					},
				},
			}))

			login := mustMethod(t, http.MethodPost, api.url("/login"), DefaultLoginMeta)
			if auth.Role(login) != RoleLogin {
				t.Fatalf("expected login role, got %s", auth.Role(login))
			}
			if _, err := client.Send(context.Background(), login); err != nil {
				t.Fatalf("login: %v", err)
			}
			if loginCalls.Load() != 1 {
				t.Fatalf("expected one login handler call, got %d", loginCalls.Load())
			}
			if assigns.Load() != 0 {
				t.Fatal("login requests must not get a token assigned")
			}
			if seenByNext == "" {
				t.Fatal("original success hook did not see the login body")
			}

			data := mustMethod(t, http.MethodGet, api.url("/data"), nil)
			if auth.Role(data) != RoleProtected {
				t.Fatalf("expected protected role, got %s", auth.Role(data))
			}
			resp, err := client.Send(context.Background(), data)
			if err != nil {
				t.Fatalf("protected request: %v", err)
			}
			if body := readAll(t, resp); body != "ok" {
				t.Fatalf("token from login not used, body %q", body)
			}
			if loginCalls.Load() != 1 {
				t.Fatalf("protected request treated as login: %d calls", loginCalls.Load())
			}
			if assigns.Load() != 1 {
				t.Fatalf("expected one assignment, got %d", assigns.Load())
			}
		})
	}
}

func TestLoginHandlerFailureSurfaces(t *testing.T) {
	api := newTokenAPI(t, "fresh")
	bad := errors.New("cannot store token")

	cfg := DefaultConfig()
	cfg.Login = &Interceptor{
		Handler: func(context.Context, *http.Response, *Method) error { return bad },
	}
	auth, err := New().WithConfig(cfg).BuildServer()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	client := NewClient(auth.Attach(ClientConfig{}))

	resp, err := client.Send(context.Background(), mustMethod(t, http.MethodPost, api.url("/login"), DefaultLoginMeta))
	if resp != nil {
		t.Fatal("failed login observation must not return the response")
	}
	if !errors.Is(err, ErrAssignToken) || !errors.Is(err, bad) {
		t.Fatalf("expected wrapped handler error, got %v", err)
	}
}

func TestLogoutErrorHandlerJoinsExchangeError(t *testing.T) {
	api := newTokenAPI(t, "fresh")
	bad := errors.New("cannot clear token")

	var observed atomic.Int32
	cfg := DefaultConfig()
	cfg.Logout = &Interceptor{
		ErrorHandler: func(_ context.Context, err error, _ *Method) error {
			observed.Add(1)
			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				return fmt.Errorf("unexpected cause %v", err)
			}
			return bad
		},
	}
	auth, err := New().WithConfig(cfg).BuildClient()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	client := NewClient(auth.Attach(ClientConfig{}))

	// No token is assigned, so /data answers 401.
	_, err = client.Send(context.Background(), mustMethod(t, http.MethodPost, api.url("/data"), DefaultLogoutMeta))
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected original 401 preserved, got %v", err)
	}
	if !errors.Is(err, bad) {
		t.Fatalf("expected logout handler error joined, got %v", err)
	}
	if observed.Load() != 1 {
		t.Fatalf("expected one observation, got %d", observed.Load())
	}
	if got := auth.MetricsSnapshot().Counters[MetricLogoutObserved]; got != 1 {
		t.Fatalf("expected logout metric 1, got %d", got)
	}
}

func TestAssignTokenFailureAbortsSend(t *testing.T) {
	api := newTokenAPI(t, "fresh")
	bad := errors.New("store offline")

	cfg := DefaultConfig()
	cfg.AssignToken = func(context.Context, *Method) error { return bad }
	auth, err := New().WithConfig(cfg).BuildServer()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	client := NewClient(auth.Attach(ClientConfig{}))

	_, err = client.Send(context.Background(), mustMethod(t, http.MethodGet, api.url("/data"), nil))
	if !errors.Is(err, ErrAssignToken) || !errors.Is(err, bad) {
		t.Fatalf("expected wrapped assign error, got %v", err)
	}
	if api.hits.Load() != 0 {
		t.Fatal("request sent despite assignment failure")
	}
	if got := auth.MetricsSnapshot().Counters[MetricAssignTokenFailure]; got != 1 {
		t.Fatalf("expected assign failure metric 1, got %d", got)
	}
}

func TestSharedCoordinatorSerializesAuthenticators(t *testing.T) {
	first, err := New().BuildServer()
	if err != nil {
		t.Fatalf("build first: %v", err)
	}
	second, err := New().WithCoordinator(first.Coordinator()).BuildServer()
	if err != nil {
		t.Fatalf("build second: %v", err)
	}

	gate := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := first.Coordinator().Run(context.Background(), "external", nil, func(context.Context) error {
			<-gate
			return nil
		})
		done <- err
	}()
	if !eventually(second.Refreshing) {
		t.Fatal("second authenticator does not see the shared refresh")
	}

	m, err := NewRequest(http.MethodGet, "http://example.invalid/data", nil, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	held := make(chan error, 1)
	go func() {
		held <- second.OnAuthRequired(nil)(context.Background(), m)
	}()
	if !eventually(func() bool { return len(second.WaitingList()) == 1 }) {
		t.Fatal("protected request not held behind shared refresh")
	}
	if len(first.WaitingList()) != 0 {
		t.Fatal("waiting list leaked across authenticators")
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := <-held; err != nil {
		t.Fatalf("held request: %v", err)
	}
}
