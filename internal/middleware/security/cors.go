package security

import (
	"net/http"
	"slices"
	"strings"
)

// CORS answers cross-origin requests for the routes it wraps. Origin "*"
// allows any origin; otherwise it is a comma separated allow list.
type CORS struct {
	allowAny bool
	origins  []string
	methods  string
	headers  string
}

func NewCORS(origin string) *CORS {
	c := &CORS{
		methods: "GET, POST, OPTIONS",
		headers: "Content-Type, X-Request-ID",
	}
	for _, o := range strings.Split(origin, ",") {
		o = strings.TrimSpace(o)
		switch o {
		case "":
		case "*":
			c.allowAny = true
		default:
			c.origins = append(c.origins, o)
		}
	}
	return c
}

// Middleware sets the CORS response headers and ends preflight requests
// with 204.
func (c *CORS) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed := c.allowed(origin); allowed != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			if allowed != "*" {
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", c.methods)
			h.Set("Access-Control-Allow-Headers", c.headers)
			h.Set("Access-Control-Expose-Headers", "X-Request-ID")
			h.Set("Access-Control-Max-Age", "600")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *CORS) allowed(origin string) string {
	if c.allowAny {
		return "*"
	}
	if origin != "" && slices.Contains(c.origins, origin) {
		return origin
	}
	return ""
}
