package tokenflow

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// tokenAPI is a fake remote that accepts exactly one bearer token on /data.
type tokenAPI struct {
	mu       sync.Mutex
	valid    string
	lastAuth string

	hits         atomic.Int32
	unauthorized atomic.Int32
	srv          *httptest.Server
}

func newTokenAPI(t *testing.T, valid string) *tokenAPI {
	t.Helper()
	api := &tokenAPI{valid: valid}

	mux := http.NewServeMux()
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		api.hits.Add(1)
		api.record(r)
		if r.Header.Get("Authorization") != "Bearer "+api.current() {
			api.unauthorized.Add(1)
			http.Error(w, "token expired", http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, "ok")
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		api.hits.Add(1)
		api.record(r)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token":  api.current(),
			"refresh_token": "refresh-1",
		})
	})
	mux.HandleFunc("/public", func(w http.ResponseWriter, r *http.Request) {
		api.hits.Add(1)
		api.record(r)
		_, _ = io.WriteString(w, "public")
	})

	api.srv = httptest.NewServer(mux)
	t.Cleanup(api.srv.Close)
	return api
}

func (a *tokenAPI) url(path string) string { return a.srv.URL + path }

func (a *tokenAPI) current() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.valid
}

func (a *tokenAPI) record(r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastAuth = r.Header.Get("Authorization")
}

func (a *tokenAPI) lastAuthorization() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastAuth
}

func mustMethod(t *testing.T, method, url string, meta Meta) *Method {
	t.Helper()
	m, err := NewRequest(method, url, nil, meta)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return m
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwtlib.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// eventually polls cond; safe to call from non-test goroutines.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}
