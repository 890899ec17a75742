package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zulandar/semaphore/internal/config"
)

const (
	requestIDHeader = "X-Request-ID"
	ctxRequestID    = "request_id"
	ctxRequester    = "requester"
)

// requestLogger tags every request with an ID and logs it on completion.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// requirePermission authorizes the caller by API key. Keys are read from
// "Authorization: Key <k>", "Authorization: Bearer <k>" or the api_key
// query parameter.
func requirePermission(auth config.AuthConfig) gin.HandlerFunc {
	required := config.PermissionRank(auth.RequiredPermission)
	return func(c *gin.Context) {
		if auth.Disabled {
			c.Set(ctxRequester, "anonymous")
			c.Next()
			return
		}

		presented := apiKey(c.Request)
		if presented == "" {
			abortAuth(c, http.StatusUnauthorized, "An API key is required.")
			return
		}
		key, ok := lookupKey(auth.Keys, presented)
		if !ok {
			abortAuth(c, http.StatusUnauthorized, "The API key is not recognized.")
			return
		}
		if config.PermissionRank(key.Permission) < required {
			abortAuth(c, http.StatusForbidden, "The API key lacks the "+auth.RequiredPermission+" permission.")
			return
		}

		name := key.Name
		if name == "" {
			name = "unnamed-key"
		}
		c.Set(ctxRequester, name)
		c.Next()
	}
}

func apiKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if ok && (strings.EqualFold(scheme, "Key") || strings.EqualFold(scheme, "Bearer")) {
			return strings.TrimSpace(value)
		}
		return ""
	}
	return r.URL.Query().Get("api_key")
}

func lookupKey(keys []config.KeyConfig, presented string) (config.KeyConfig, bool) {
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k.Key), []byte(presented)) == 1 {
			return k, true
		}
	}
	return config.KeyConfig{}, false
}

func abortAuth(c *gin.Context, status int, message string) {
	kind := "unauthorized"
	if status == http.StatusForbidden {
		kind = "forbidden"
	}
	c.AbortWithStatusJSON(status, failureResponse{Success: false, Kind: kind, Message: message})
}
