package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/tokenflow"
	"github.com/MrEthical07/tokenflow/metrics/export/prometheus"
	"github.com/MrEthical07/tokenflow/store"
)

// tokenAPI accepts exactly one access token at a time and rotates it on every
// refresh or expiry tick.
type tokenAPI struct {
	generation atomic.Int64
	refreshes  atomic.Int64
	rejected   atomic.Int64
	delay      time.Duration
}

func (a *tokenAPI) current() string {
	return "gen-" + strconv.FormatInt(a.generation.Load(), 10)
}

func (a *tokenAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/refresh":
		time.Sleep(a.delay)
		a.refreshes.Add(1)
		a.generation.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": a.current()})
	case "/data":
		if r.Header.Get("Authorization") != "Bearer "+a.current() {
			a.rejected.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, "ok")
	default:
		http.NotFound(w, r)
	}
}

func main() {
	var (
		requests    = flag.Int("requests", 20000, "protected requests to send")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		expireEvery = flag.Duration("expire-every", 50*time.Millisecond, "interval at which the API invalidates the current token")
		refreshLag  = flag.Duration("refresh-delay", 5*time.Millisecond, "latency added to the refresh endpoint")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "tf", "token key prefix")
		maxReplays  = flag.Int("max-replays", 1, "replays allowed per request")
		showMetrics = flag.Bool("metrics", false, "print the Prometheus exposition after the run")
		verbose     = flag.Bool("v", false, "log refresh lifecycle at debug level")
	)
	flag.Parse()

	if *requests <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "requests and concurrency must be > 0")
		os.Exit(2)
	}

	client, cleanup, err := openRedis(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	api := &tokenAPI{delay: *refreshLag}
	srv := httptest.NewServer(api)
	defer srv.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go expireLoop(ctx, api, *expireEvery)

	st := store.NewRedisStore(client, *prefix, 0)
	if err := st.Save(ctx, store.DefaultScope, store.Pair{AccessToken: api.current()}); err != nil {
		fmt.Fprintf(os.Stderr, "seed token: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var httpClient *tokenflow.Client
	cfg := tokenflow.DefaultConfig()
	cfg.Replay.MaxReplays = *maxReplays
	cfg.AssignToken = tokenflow.BearerAssigner(st)
	cfg.RefreshTokenOnError = &tokenflow.RefreshTokenOnError{
		IsExpired: tokenflow.StatusPredicate(http.StatusUnauthorized),
		Handler: func(ctx context.Context, _ error, _ *tokenflow.Method) error {
			return refreshToken(ctx, httpClient, srv.URL, st)
		},
	}

	auth, err := tokenflow.New().WithConfig(cfg).WithLogger(logger).BuildServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build authenticator: %v\n", err)
		os.Exit(1)
	}
	defer auth.Close()
	httpClient = tokenflow.NewClient(auth.Attach(tokenflow.ClientConfig{}))

	stats := run(ctx, httpClient, srv.URL, *requests, *concurrency)

	fmt.Println("---- results ----")
	fmt.Printf("requests=%d failures=%d total=%s throughput=%.0f req/s\n",
		stats.ops, stats.failures, stats.total.Round(time.Millisecond), stats.opsPerS)
	fmt.Printf("latency p50=%s p95=%s p99=%s\n", stats.p50, stats.p95, stats.p99)

	snap := auth.MetricsSnapshot()
	fmt.Printf("refresh endpoint calls=%d rejected=%d\n", api.refreshes.Load(), api.rejected.Load())
	fmt.Printf("refresh ok=%d failed=%d waiters=%d replays=%d exhausted=%d\n",
		snap.Counters[tokenflow.MetricRefreshSuccess],
		snap.Counters[tokenflow.MetricRefreshFailure],
		snap.Counters[tokenflow.MetricWaiterEnqueued],
		snap.Counters[tokenflow.MetricReplay],
		snap.Counters[tokenflow.MetricReplayExhausted],
	)

	if *showMetrics {
		fmt.Println("---- metrics ----")
		fmt.Print(prometheus.NewPrometheusExporter(auth).Render())
	}
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func expireLoop(ctx context.Context, api *tokenAPI, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			api.generation.Add(1)
		}
	}
}

// refreshToken exchanges through the refresh endpoint. The method carries the
// refresh role so it bypasses the coordinator it is called from.
func refreshToken(ctx context.Context, client *tokenflow.Client, baseURL string, st store.TokenStore) error {
	m, err := tokenflow.NewRequest(http.MethodPost, baseURL+"/refresh", nil, tokenflow.DefaultRefreshMeta)
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
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if body.AccessToken == "" {
		return errors.New("refresh response without access_token")
	}
	return st.Save(ctx, tokenflow.ScopeFromContext(ctx), store.Pair{AccessToken: body.AccessToken})
}

type runStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func run(ctx context.Context, client *tokenflow.Client, baseURL string, requests, concurrency int) runStats {
	var (
		cursor    atomic.Int64
		failures  atomic.Int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, requests)
	)

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for {
				if i := cursor.Add(1); i > int64(requests) {
					return nil
				}
				m, err := tokenflow.NewRequest(http.MethodGet, baseURL+"/data", nil, nil)
				if err != nil {
					return err
				}
				t0 := time.Now()
				resp, err := client.Send(gctx, m)
				d := time.Since(t0)
				if err != nil {
					failures.Add(1)
				} else {
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "worker error: %v\n", err)
	}
	return computeStats(time.Since(start), latencies, failures.Load())
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) runStats {
	if len(samples) == 0 {
		return runStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return runStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 0.50),
		p95:      percentile(samples, 0.95),
		p99:      percentile(samples, 0.99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}
