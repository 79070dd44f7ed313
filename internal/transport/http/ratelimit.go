package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/httprate"
	"golang.org/x/time/rate"
)

// LoginThrottle holds a token bucket per client address for the sign-in
// endpoint.
type LoginThrottle struct {
	ips             map[string]*rate.Limiter
	mu              sync.Mutex
	rps             rate.Limit
	burst           int
	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

// NewLoginThrottle creates a new throttle. Call Close to stop its cleanup
// loop.
func NewLoginThrottle(rps float64, burst int) *LoginThrottle {
	lt := &LoginThrottle{
		ips:             make(map[string]*rate.Limiter),
		rps:             rate.Limit(rps),
		burst:           burst,
		cleanupInterval: 10 * time.Minute,
		stop:            make(chan struct{}),
	}

	go lt.cleanup()

	return lt
}

// GetLimiter returns the limiter of a client address
func (lt *LoginThrottle) GetLimiter(key string) *rate.Limiter {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	limiter, exists := lt.ips[key]
	if !exists {
		limiter = rate.NewLimiter(lt.rps, lt.burst)
		lt.ips[key] = limiter
	}

	return limiter
}

// Close stops the cleanup loop.
func (lt *LoginThrottle) Close() {
	lt.stopOnce.Do(func() { close(lt.stop) })
}

// cleanup drops idle buckets. A bucket that has refilled completely carries
// no state worth keeping.
func (lt *LoginThrottle) cleanup() {
	ticker := time.NewTicker(lt.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-lt.stop:
			return
		case <-ticker.C:
			lt.mu.Lock()
			for key, limiter := range lt.ips {
				if limiter.Tokens() >= float64(lt.burst) {
					delete(lt.ips, key)
				}
			}
			lt.mu.Unlock()
		}
	}
}

// LoginThrottleMiddleware rejects sign-in bursts from one address. A nil
// throttle passes every request.
func LoginThrottleMiddleware(lt *LoginThrottle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if lt == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := httprate.KeyByIP(r)
			if err != nil {
				key = r.RemoteAddr
			}

			if !lt.GetLimiter(key).Allow() {
				w.Header().Set("Retry-After", "1")
				respondError(w, http.StatusTooManyRequests, "rate_limited")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the canonical client address after middleware.RealIP.
func clientIP(r *http.Request) string {
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
