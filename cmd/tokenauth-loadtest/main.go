// Command tokenauth-loadtest measures access verification and refresh rotation
// throughput against a Redis revocation gateway.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/revocation"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type sessionState struct {
	access string
	cookie *http.Cookie
	mu     sync.Mutex
}

type loadOptions struct {
	sessions    int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
}

func main() {
	var opts loadOptions

	cmd := &cobra.Command{
		Use:          "tokenauth-loadtest",
		Short:        "Benchmark verification and rotation against Redis",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.sessions, "sessions", 10000, "number of sessions to seed")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 256, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 100000, "operations per phase (verify + rotate)")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "tokenauth-load", "revocation key prefix")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts loadOptions) error {
	if opts.sessions <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		return fmt.Errorf("sessions, concurrency, and ops must be > 0")
	}

	addr := opts.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := tokenauth.DefaultConfig()
	cfg.Environment = "test"
	cfg.Access.Secret = []byte(uuid.NewString())
	cfg.Refresh.Secret = []byte(uuid.NewString())
	cfg.Cookie.Secret = []byte(uuid.NewString())

	engine, err := tokenauth.New().
		WithConfig(cfg).
		WithRevocationGateway(revocation.NewRedis(client, opts.prefix, cfg.Refresh.TTL)).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	states := make([]sessionState, opts.sessions)
	fmt.Printf("seeding %d sessions...\n", opts.sessions)
	startSeed := time.Now()
	for i := range states {
		rec := httptest.NewRecorder()
		pair, err := engine.Issue(ctx, rec, tokenauth.Identity{ID: fmt.Sprintf("user-%d", i), Provider: "load"})
		if err != nil {
			return fmt.Errorf("issue failed: %w", err)
		}
		states[i].access = pair.AccessToken
		states[i].cookie = refreshCookie(rec, cfg.Cookie.Name)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runPhase(states, opts.ops, opts.concurrency, 7919, func(state *sessionState) error {
		_, err := engine.VerifyAccess(ctx, state.access)
		return err
	})
	rotateStats := runPhase(states, opts.ops, opts.concurrency, 6151, func(state *sessionState) error {
		state.mu.Lock()
		defer state.mu.Unlock()

		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.AddCookie(state.cookie)
		rec := httptest.NewRecorder()
		pair, _, err := engine.Rotate(rec, req)
		if err != nil {
			return err
		}
		state.access = pair.AccessToken
		state.cookie = refreshCookie(rec, cfg.Cookie.Name)
		return nil
	})

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("rotate", rotateStats)
	return nil
}

func refreshCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return &http.Cookie{Name: name}
}

func runPhase(states []sessionState, ops, concurrency int, seed int64, op func(*sessionState) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]
				t0 := time.Now()
				err := op(state)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
