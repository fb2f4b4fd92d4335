package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Origins is a parsed CORS allow-list. Empty or "*" allows every origin.
type Origins map[string]bool

// ParseOrigins parses "*" or a comma-separated list (e.g. "http://localhost:3000,https://meet.example.com").
func ParseOrigins(s string) Origins {
	m := make(Origins)
	for _, o := range strings.Split(strings.TrimSpace(s), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			m[o] = true
		}
	}
	return m
}

// Allows reports whether origin may call the API. The websocket upgrader shares this check.
func (o Origins) Allows(origin string) bool {
	if len(o) == 0 || o["*"] {
		return true
	}
	return origin != "" && o[origin]
}

// CORS returns a middleware that sets CORS headers for cross-origin requests.
func CORS(origins Origins) gin.HandlerFunc {
	wildcard := len(origins) == 0 || origins["*"]
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowOrigin := ""
		if wildcard {
			allowOrigin = "*"
		} else if origins.Allows(origin) {
			allowOrigin = origin
			c.Header("Vary", "Origin")
		}
		if allowOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowOrigin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
