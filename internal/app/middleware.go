package app

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"stride/api/internal/logging"
	"stride/api/internal/metrics"
	"stride/api/internal/util"
)

const (
	limiterTTL     = 10 * time.Minute
	limiterEntries = 10000
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// trustedProxies are the peers allowed to report the client address.
type trustedProxies []*net.IPNet

func (p trustedProxies) trusts(ip net.IP) bool {
	for _, network := range p {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP is the peer address, or the first X-Forwarded-For hop when the
// peer is a trusted proxy.
func (p trustedProxies) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil || !p.trusts(peer) {
		return host
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	return host
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

// withTracing is the outermost layer.
func withTracing(next http.Handler, service string) http.Handler {
	return otelhttp.NewHandler(next, service)
}

// withRequestContext assigns the request id, records the client ip and hands
// the logger to logging.FromContext.
func withRequestContext(next http.Handler, logger *logrus.Logger, proxies trustedProxies) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewSortableID(time.Now())
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := logging.WithLogger(r.Context(), logger)
		ctx = logging.WithRequestID(ctx, requestID)
		ctx = logging.WithClientIP(ctx, proxies.clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func withCORS(next http.Handler, corsOrigin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w.Header(), corsOrigin)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// routeTemplate keeps metric labels bounded: ids are reported as {id}.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// accessLog is a mux middleware so the matched route is known. It feeds the
// prometheus collectors and writes one log line per request.
func accessLog(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(writer, r)

			elapsed := time.Since(started)
			route := routeTemplate(r)
			trace.SpanFromContext(r.Context()).SetName(r.Method + " " + route)
			m.ObserveHTTP(r.Method, route, writer.status, elapsed)

			entry := logging.FromContext(r.Context()).WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"route":       route,
				"status":      writer.status,
				"duration_ms": elapsed.Milliseconds(),
				"client_ip":   logging.ClientIP(r.Context()),
			})
			if writer.status >= http.StatusInternalServerError {
				entry.Warn("request")
				return
			}
			entry.Info("request")
		})
	}
}

// ipLimiter is a token bucket per client ip. Idle buckets expire.
type ipLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *expirable.LRU[string, *rate.Limiter]
}

// newIPLimiter returns nil when rps is zero, which disables limiting.
func newIPLimiter(rps float64, burst int) *ipLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &ipLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: expirable.NewLRU[string, *rate.Limiter](limiterEntries, nil, limiterTTL),
	}
}

func (l *ipLimiter) allow(ip string) bool {
	if l == nil {
		return true
	}
	if ip == "" {
		ip = "unknown"
	}
	limiter, ok := l.buckets.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.buckets.Add(ip, limiter)
	}
	return limiter.Allow()
}

// middleware wraps the routes that share this limiter.
func (l *ipLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(logging.ClientIP(r.Context())) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please slow down.", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
