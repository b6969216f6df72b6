package middleware

import (
	"net/http"
	"slices"
	"strings"

	"papichulo-api/apperror"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsAllowHeaders = "Origin, Content-Type, Authorization, " + AdminKeyHeader
)

// CORS admits browser requests from allowed origins. "*" allows every
// origin; requests from anything else fail with CORS_BLOCKED.
func CORS(allowed []string) gin.HandlerFunc {
	allow := OriginAllowed(allowed)
	allowAll := slices.Contains(allowed, "*")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if !allow(origin) {
			abortWithError(c, apperror.CORSBlocked(origin))
			return
		}

		h := c.Writer.Header()
		if allowAll {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// OriginAllowed reports whether an origin passes the allow list.
func OriginAllowed(allowed []string) func(origin string) bool {
	set := make(map[string]struct{}, len(allowed))
	all := false
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			all = true
		}
		set[o] = struct{}{}
	}
	return func(origin string) bool {
		if all {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

// WebSocketOrigin adapts the allow list for the websocket upgrader. Requests
// without an Origin header are not browser requests and pass.
func WebSocketOrigin(allowed []string) func(*http.Request) bool {
	allow := OriginAllowed(allowed)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allow(origin)
	}
}
