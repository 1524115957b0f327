package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/ratelimit"
	"github.com/MrEthical07/goGate/session"
	"github.com/MrEthical07/goGate/token"
)

type principalState struct {
	id        string
	refresh   string
	sessionID string
	mu        sync.Mutex
}

func main() {
	var (
		principals  = flag.Int("principals", 10000, "number of principals to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "store key prefix")
		rlMax       = flag.Int("ratelimit-max", 100, "requests per client per window in the rate-limit phase")
		clients     = flag.Int("clients", 1000, "distinct client addresses in the rate-limit phase")
	)
	flag.Parse()

	if *principals <= 0 || *concurrency <= 0 || *ops <= 0 || *rlMax <= 0 || *clients <= 0 {
		fmt.Fprintln(os.Stderr, "principals, concurrency, ops, ratelimit-max and clients must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
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
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
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

	cfg := goGate.DefaultConfig()
	cfg.Token.AccessTokenSecret = strings.Repeat("a", 32)
	cfg.Token.RefreshTokenSecret = strings.Repeat("r", 32)
	cfg.Store.KeyPrefix = *prefix
	cfg.Store.OperationTimeout = 2 * time.Second
	cfg.Metrics.EnableLatencyHistograms = true

	plane, err := goGate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithRules(ratelimit.Rule{Name: "api", Pattern: "/api/**", Window: time.Minute, MaxRequests: *rlMax}).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build plane: %v\n", err)
		os.Exit(1)
	}
	defer plane.Close()

	states := make([]principalState, *principals)
	fmt.Printf("seeding %d principals...\n", *principals)
	startSeed := time.Now()
	for i := range states {
		id := "p-" + strconv.Itoa(i)
		pair, err := plane.GenerateTokenPair(ctx, id, token.Claims{Tier: "free"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed tokens: %v\n", err)
			os.Exit(1)
		}
		rec, err := plane.CreateSession(ctx, id, session.Context{IP: "10.0.0.1"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed session: %v\n", err)
			os.Exit(1)
		}
		states[i].id, states[i].refresh, states[i].sessionID = id, pair.RefreshToken, rec.ID
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	sessionStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand, _ int) error {
		st := &states[r.Intn(len(states))]
		_, err := plane.GetSession(ctx, st.sessionID)
		return err
	})

	refreshStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand, _ int) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		pair, err := plane.RefreshTokenPair(ctx, st.refresh, token.Claims{Tier: "free"})
		if err != nil {
			return err
		}
		st.refresh = pair.RefreshToken
		return nil
	})

	var limited atomic.Int64
	rateStats := runPhase(*ops, *concurrency, 104729, func(r *rand.Rand, _ int) error {
		res, _ := plane.CheckRateLimit(ctx, ratelimit.RequestContext{
			Method: "GET",
			Path:   "/api/items",
			IP:     "10.1." + strconv.Itoa(r.Intn(*clients)/256) + "." + strconv.Itoa(r.Intn(*clients)%256),
		})
		if res.Limited {
			limited.Add(1)
		}
		return nil
	})

	fmt.Println("---- results ----")
	printStats("session-get", sessionStats)
	printStats("refresh", refreshStats)
	printStats("ratelimit", rateStats)
	fmt.Printf("ratelimit: limited=%d\n", limited.Load())

	snap := plane.MetricsSnapshot()
	fmt.Printf("metrics: refreshed=%d refresh_rejected=%d store_unavailable=%d\n",
		snap.Counters[goGate.MetricTokenRefreshed],
		snap.Counters[goGate.MetricRefreshRejected],
		snap.Counters[goGate.MetricStoreUnavailable],
	)
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
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
				t0 := time.Now()
				err := op(r, i)
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
	switch {
	case len(samples) == 0:
		return 0
	case p <= 0:
		return samples[0]
	case p >= 100:
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
