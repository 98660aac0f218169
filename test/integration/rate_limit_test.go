package integration

import (
	"net/http"
	"testing"
	"time"
)

func TestForgotPasswordRateLimitOverRedis(t *testing.T) {
	opts := defaultServerOptions()
	opts.forgotRPM = 3
	ts := newTestServer(t, opts)

	body := map[string]string{"email": "nobody@example.com"}
	for i := 0; i < 3; i++ {
		resp := ts.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", body)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("request %d: status=%d", i+1, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := ts.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("over-limit status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
	if code := errorCode(t, resp); code != "RATE_LIMITED" {
		t.Fatalf("error code = %q, want RATE_LIMITED", code)
	}

	// The fixed window lives in redis, so advancing the key TTL opens it.
	ts.redis.FastForward(2 * time.Minute)
	resp = ts.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("post-window status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	resp.Body.Close()
}

func TestForgotPasswordFailsClosedWhenRedisDown(t *testing.T) {
	opts := defaultServerOptions()
	opts.forgotRPM = 100
	ts := newTestServer(t, opts)

	ts.redis.Close()

	resp := ts.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "nobody@example.com"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("fail-closed status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}
	resp.Body.Close()
}

func TestGlobalLimiterFailsOpenWhenRedisDown(t *testing.T) {
	ts := newTestServer(t, defaultServerOptions())

	ts.redis.Close()

	resp := ts.do(t, http.MethodGet, "/health/live", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fail-open status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()
}
