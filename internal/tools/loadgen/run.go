package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

type Result struct {
	TotalRequests int64
	Failures      int64
	Status2xx     int64
	Status4xx     int64
	Status5xx     int64
}

type request struct {
	method string
	path   string
	body   string
}

// Run drives synthetic auth traffic against a running instance. The point is
// to light up the metrics, traces and audit logs, not to benchmark, so every
// request uses throwaway identities and most of them are expected rejections.
func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 15
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}

	build := builderForProfile(cfg.Profile)
	if build == nil {
		return Result{}, fmt.Errorf("unknown profile: %s", cfg.Profile)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	client := &http.Client{Timeout: 5 * time.Second}
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var total, failures, s2xx, s4xx, s5xx int64
	jobs := make(chan request, cfg.Concurrency*2)
	wg := sync.WaitGroup{}

	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				var body *bytes.Reader
				if job.body != "" {
					body = bytes.NewReader([]byte(job.body))
				} else {
					body = bytes.NewReader(nil)
				}
				req, err := http.NewRequestWithContext(ctx, job.method, cfg.BaseURL+job.path, body)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				if job.body != "" {
					req.Header.Set("Content-Type", "application/json")
				}
				resp, err := client.Do(req)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				_ = resp.Body.Close()
				atomic.AddInt64(&total, 1)
				switch {
				case resp.StatusCode >= 200 && resp.StatusCode < 300:
					atomic.AddInt64(&s2xx, 1)
				case resp.StatusCode >= 400 && resp.StatusCode < 500:
					atomic.AddInt64(&s4xx, 1)
				case resp.StatusCode >= 500:
					atomic.AddInt64(&s5xx, 1)
				}
			}
		}()
	}

	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()
	i := 0
	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return Result{TotalRequests: total, Failures: failures, Status2xx: s2xx, Status4xx: s4xx, Status5xx: s5xx}, nil
		case <-ticker.C:
			jobs <- build(rng, i)
			i++
		}
	}
}

// builderForProfile returns a function producing the i-th request of the
// profile. Emails are unique per request so failed logins never trip the
// lockout counter of a real account.
func builderForProfile(profile string) func(rng *rand.Rand, i int) request {
	login := func(rng *rand.Rand, i int) request {
		return request{
			method: http.MethodPost,
			path:   "/api/v1/auth/login",
			body:   fmt.Sprintf(`{"email":"ghost-%d-%d@loadgen.local","password":"wrong-password"}`, rng.Int63(), i),
		}
	}
	forgot := func(rng *rand.Rand, i int) request {
		return request{
			method: http.MethodPost,
			path:   "/api/v1/auth/forgot-password",
			body:   fmt.Sprintf(`{"email":"ghost-%d-%d@loadgen.local"}`, rng.Int63(), i),
		}
	}
	weakRegister := func(rng *rand.Rand, i int) request {
		return request{
			method: http.MethodPost,
			path:   "/api/v1/auth/register",
			body:   fmt.Sprintf(`{"email":"ghost-%d-%d@loadgen.local","password":"short"}`, rng.Int63(), i),
		}
	}
	live := func(rng *rand.Rand, i int) request {
		return request{method: http.MethodGet, path: "/health/live"}
	}

	switch strings.ToLower(profile) {
	case "", "mixed":
		seq := []func(*rand.Rand, int) request{live, login, forgot, weakRegister}
		return func(rng *rand.Rand, i int) request { return seq[i%len(seq)](rng, i) }
	case "auth":
		seq := []func(*rand.Rand, int) request{login, forgot}
		return func(rng *rand.Rand, i int) request { return seq[i%len(seq)](rng, i) }
	case "error-heavy":
		seq := []func(*rand.Rand, int) request{login, weakRegister, login}
		return func(rng *rand.Rand, i int) request { return seq[i%len(seq)](rng, i) }
	default:
		return nil
	}
}
