package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bodhi-industries/eventhub/internal/config"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateLimitTier selects the bucket a request is charged against.
type RateLimitTier string

const (
	TierPublic RateLimitTier = "public"
	// TierLogin covers credential submissions: login, register and password reset.
	TierLogin RateLimitTier = "login"
)

const (
	loginWindow  = 15 * time.Minute
	limiterTTL   = 15 * time.Minute
	sweepEvery   = 5 * time.Minute
	rateLimitMsg = "Too many requests. Please try again later.\n"
)

const rateLimitTierKey contextKey = "rateLimitTier"

// Probes and scrapes are never throttled.
var unlimitedPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

func WithRateLimitTier(ctx context.Context, tier RateLimitTier) context.Context {
	return context.WithValue(ctx, rateLimitTierKey, tier)
}

// WithRateLimitTierHandler charges requests reaching next against tier.
func WithRateLimitTierHandler(tier RateLimitTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithRateLimitTier(r.Context(), tier)))
		})
	}
}

func tierFromContext(ctx context.Context) RateLimitTier {
	if tier, ok := ctx.Value(rateLimitTierKey).(RateLimitTier); ok {
		return tier
	}
	return TierPublic
}

// tierPolicy is a token bucket: burst requests at once, then one every refill.
type tierPolicy struct {
	refill time.Duration
	burst  int
}

func policiesFor(cfg config.RateLimitConfig) map[RateLimitTier]tierPolicy {
	policies := make(map[RateLimitTier]tierPolicy, 2)
	if n := cfg.PublicPerMinute; n > 0 {
		policies[TierPublic] = tierPolicy{refill: time.Minute / time.Duration(n), burst: n}
	}
	if n := cfg.LoginPer15Minutes; n > 0 {
		policies[TierLogin] = tierPolicy{refill: loginWindow / time.Duration(n), burst: n}
	}
	return policies
}

// RateLimit throttles requests per client IP and tier. A tier configured with
// zero requests is not limited. Stale buckets are swept until ctx is done.
func RateLimit(ctx context.Context, cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	buckets := newBucketSet(policiesFor(cfg))
	go buckets.sweep(ctx, sweepEvery)
	proxies := parseTrustedProxies(cfg.TrustedProxyCIDRs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if unlimitedPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			tier := tierFromContext(r.Context())
			wait, ok := buckets.take(tier, clientKey(r, proxies), time.Now())
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(rateLimitMsg))
			zerolog.Ctx(r.Context()).Info().
				Str("tier", string(tier)).
				Dur("retry_after", wait).
				Msg("rate limited")
		})
	}
}

func retryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// bucketSet holds one limiter per tier and client.
type bucketSet struct {
	policies map[RateLimitTier]tierPolicy

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newBucketSet(policies map[RateLimitTier]tierPolicy) *bucketSet {
	return &bucketSet{policies: policies, buckets: make(map[string]*bucket)}
}

// take spends one token for client in tier. When the bucket is empty it
// reports how long until the next token.
func (s *bucketSet) take(tier RateLimitTier, client string, now time.Time) (time.Duration, bool) {
	policy, limited := s.policies[tier]
	if !limited {
		return 0, true
	}

	key := string(tier) + ":" + client
	s.mu.Lock()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(policy.refill), policy.burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now
	s.mu.Unlock()

	if b.limiter.AllowN(now, 1) {
		return 0, true
	}
	res := b.limiter.ReserveN(now, 1)
	wait := res.DelayFrom(now)
	res.CancelAt(now)
	return wait, false
}

func (s *bucketSet) sweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.evictIdle(now.Add(-limiterTTL))
		}
	}
}

// evictIdle drops buckets not used since cutoff.
func (s *bucketSet) evictIdle(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for key, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, key)
			evicted++
		}
	}
	return evicted
}

func parseTrustedProxies(cidrs []string) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		if p, err := netip.ParsePrefix(strings.TrimSpace(cidr)); err == nil {
			prefixes = append(prefixes, p.Masked())
		}
	}
	return prefixes
}

// clientKey identifies the caller. Forwarding headers are honored only when
// the direct peer is a trusted proxy, so clients cannot pick their own bucket.
func clientKey(r *http.Request, trusted []netip.Prefix) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if !fromTrustedProxy(peer, trusted) {
		return peer
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return peer
}

func fromTrustedProxy(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
