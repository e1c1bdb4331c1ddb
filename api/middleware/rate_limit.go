package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storefront/api/responses"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// identify extracts the caller identity a counter is keyed on. An empty key skips the counter.
type identify func(*http.Request) (string, error)

type counter struct {
	dimension string
	limit     int64
	key       identify
}

// RateLimitPolicy is a named set of fixed-window counters sharing one window.
type RateLimitPolicy struct {
	name     string
	window   time.Duration
	counters []counter
}

// NewRateLimitPolicy counts per client IP and per shopper email. A zero limit disables
// that counter; a zero window disables the policy.
func NewRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) RateLimitPolicy {
	p := RateLimitPolicy{name: strings.ToLower(strings.TrimSpace(name)), window: window}
	if p.name == "" {
		p.name = "default"
	}
	if ipLimit > 0 {
		p.counters = append(p.counters, counter{dimension: "ip", limit: int64(ipLimit), key: ipKey})
	}
	if emailLimit > 0 {
		p.counters = append(p.counters, counter{dimension: "email", limit: int64(emailLimit), key: emailKey})
	}
	return p
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && len(p.counters) > 0
}

// RateLimit rejects a request once any counter in the policy passes its limit. The
// tightest remaining allowance is advertised in X-RateLimit-* headers.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			remaining, limit := int64(-1), int64(0)

			for _, c := range policy.counters {
				id, err := c.key(r)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				if id == "" {
					continue
				}
				scope := c.dimension + ":" + policy.name + ":" + id
				allowed, count, err := store.FixedWindowAllow(ctx, scope, c.limit, policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					reject(ctx, logg, w, policy, c, count)
					return
				}
				if left := c.limit - count; remaining < 0 || left < remaining {
					remaining, limit = left, c.limit
				}
			}

			if remaining >= 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func reject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy RateLimitPolicy, c counter, count int64) {
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"scope":          c.dimension,
			"policy":         policy.name,
			"attempts":       count,
			"limit":          c.limit,
			"window_seconds": int(policy.window.Seconds()),
		}), "rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(max(1, int(policy.window.Seconds()))))
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(c.limit, 10))
	w.Header().Set("X-RateLimit-Remaining", "0")
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

// ipKey trusts the first X-Forwarded-For hop set by the load balancer.
func ipKey(r *http.Request) (string, error) {
	if forwarded, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(forwarded) != "" {
		return strings.TrimSpace(forwarded), nil
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip, nil
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host, nil
	}
	return r.RemoteAddr, nil
}

// emailKey prefers the verified token email and falls back to the JSON body, which is
// restored for the handler. The address is hashed so raw emails never reach Redis.
func emailKey(r *http.Request) (string, error) {
	email := EmailFromContext(r.Context())
	if email == "" && r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return "", err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		var payload struct {
			Email string `json:"email"`
		}
		if json.Unmarshal(body, &payload) == nil {
			email = payload.Email
		}
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", nil
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:]), nil
}
