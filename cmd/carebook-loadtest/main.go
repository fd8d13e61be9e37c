package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/carebook"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// codeSink keeps the latest code per address so the verify phase can answer.
type codeSink struct {
	codes sync.Map
}

func (s *codeSink) Send(_ context.Context, to, template string, data map[string]string) error {
	if template == carebook.TemplateOTP {
		s.codes.Store(to, data["code"])
	}
	return nil
}

func (s *codeSink) code(email string) string {
	v, _ := s.codes.Load(email)
	code, _ := v.(string)
	return code
}

func main() {
	var (
		accounts    = flag.Int("accounts", 2000, "number of distinct emails")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		validations = flag.Int("validations", 50000, "token validations in the last phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *validations <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and validations must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var client redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	cfg := carebook.DefaultConfig()
	cfg.Environment = carebook.EnvDevelopment
	cfg.RateLimit.MaxRequests = 0
	cfg.Audit.Enabled = false

	sink := &codeSink{}
	engine, err := carebook.New().WithConfig(cfg).WithRedis(client).WithEmailGateway(sink).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	emails := make([]string, *accounts)
	runID := time.Now().UnixNano()
	for i := range emails {
		emails[i] = fmt.Sprintf("load-%d-%d@example.com", runID, i)
	}
	tokens := make([]string, len(emails))

	request := runPhase(len(emails), *concurrency, func(i int) error {
		_, err := engine.RequestCode(ctx, emails[i])
		return err
	})
	verify := runPhase(len(emails), *concurrency, func(i int) error {
		res, err := engine.VerifyCode(ctx, emails[i], sink.code(emails[i]))
		if err != nil {
			return err
		}
		tokens[i] = res.Token
		return nil
	})
	validate := runPhase(*validations, *concurrency, func(i int) error {
		token := tokens[i%len(tokens)]
		if token == "" {
			return carebook.ErrTokenInvalid
		}
		_, err := engine.ValidateToken(ctx, token)
		return err
	})

	fmt.Println("---- results ----")
	printStats("request", request)
	printStats("verify", verify)
	printStats("validate", validate)
	printCounters(engine.MetricsSnapshot())
}

// runPhase calls op for indexes 0..ops-1 across workers and times each call.
func runPhase(ops, concurrency int, op func(i int) error) phaseStats {
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
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
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

func printCounters(s carebook.MetricsSnapshot) {
	parts := []string{
		fmt.Sprintf("provisioned=%d", s.Counters[carebook.MetricAccountProvisioned]),
		fmt.Sprintf("requested=%d", s.Counters[carebook.MetricCodeRequested]),
		fmt.Sprintf("verified=%d", s.Counters[carebook.MetricCodeVerifySuccess]),
		fmt.Sprintf("verify_failed=%d", s.Counters[carebook.MetricCodeVerifyFailure]),
	}
	fmt.Println("counters: " + strings.Join(parts, " "))
}
