package rpc

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// rateLimiter keeps one token bucket per client address.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(perSecond)
	}
	return &rateLimiter{
		clients: make(map[string]*rate.Limiter),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (r *rateLimiter) limiterFor(client string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	limiter, ok := r.clients[client]
	if !ok {
		limiter = rate.NewLimiter(r.limit, r.burst)
		r.clients[client] = limiter
	}
	return limiter
}

func (r *rateLimiter) middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		host, _, err := net.SplitHostPort(req.RemoteAddr)
		if err != nil {
			host = req.RemoteAddr
		}
		if !r.limiterFor(host).Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, req)
	})
}

// adminAuth guards the admin routes with HS256 bearer tokens. An empty
// secret disables the surface entirely rather than leaving it open.
func adminAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if secret == "" {
				writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "admin surface disabled"})
				return
			}
			header := req.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "bearer token required"})
				return
			}
			parsed, err := jwt.Parse(strings.TrimSpace(token), func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !parsed.Valid {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid bearer token"})
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
