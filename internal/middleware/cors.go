package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CORSConfig configures cross-origin access to the list API.
type CORSConfig struct {
	// AllowOrigins lists the origins of the browser front-end. "*" allows any
	// origin. An empty list denies every cross-origin request.
	AllowOrigins []string

	AllowMethods  []string
	AllowHeaders  []string
	ExposeHeaders []string

	AllowCredentials bool

	// MaxAge is how long a browser may reuse a preflight answer. Zero leaves
	// the header out.
	MaxAge time.Duration
}

// DefaultCORSConfig allows any origin. The browser reads X-Request-ID to
// correlate errors with logs and may resume the view stream with
// Last-Event-ID.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Requested-With", requestIDHeader, "Last-Event-ID"},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        24 * time.Hour,
	}
}

// CORS is CORSWithConfig(DefaultCORSConfig()).
func CORS() gin.HandlerFunc {
	return CORSWithConfig(DefaultCORSConfig())
}

// corsPolicy is a CORSConfig with its header values joined once.
type corsPolicy struct {
	anyOrigin   bool
	origins     map[string]struct{}
	credentials bool
	methods     string
	headers     string
	expose      string
	maxAge      string
}

func newCORSPolicy(cfg CORSConfig) corsPolicy {
	p := corsPolicy{
		origins:     make(map[string]struct{}, len(cfg.AllowOrigins)),
		credentials: cfg.AllowCredentials,
		methods:     strings.Join(cfg.AllowMethods, ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			p.anyOrigin = true
			continue
		}
		p.origins[normalizeOrigin(o)] = struct{}{}
	}
	if secs := int(cfg.MaxAge / time.Second); secs > 0 {
		p.maxAge = strconv.Itoa(secs)
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when origin is not allowed. With credentials the origin is echoed since
// browsers reject "*" there.
func (p corsPolicy) allowOrigin(origin string) string {
	if p.anyOrigin {
		if p.credentials {
			return origin
		}
		return "*"
	}
	if _, ok := p.origins[normalizeOrigin(origin)]; ok {
		return origin
	}
	return ""
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(o), "/"))
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
}

// CORSWithConfig answers preflight requests itself and adds the CORS
// response headers to every request from an allowed origin. A preflight from
// an origin that is not allowed gets 403; other requests from it pass
// through without CORS headers, so the browser hides the response.
func CORSWithConfig(cfg CORSConfig) gin.HandlerFunc {
	p := newCORSPolicy(cfg)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Add("Vary", "Origin")
		preflight := isPreflight(c.Request)
		if preflight {
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
		}

		allowed := p.allowOrigin(origin)
		if allowed == "" {
			if preflight {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		h.Set("Access-Control-Allow-Origin", allowed)
		if p.credentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if !preflight {
			if p.expose != "" {
				h.Set("Access-Control-Expose-Headers", p.expose)
			}
			c.Next()
			return
		}

		h.Set("Access-Control-Allow-Methods", p.methods)
		h.Set("Access-Control-Allow-Headers", p.headers)
		if p.maxAge != "" {
			h.Set("Access-Control-Max-Age", p.maxAge)
		}
		c.AbortWithStatus(http.StatusNoContent)
	}
}
