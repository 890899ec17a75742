package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/semaphore/internal/dispatch"
	"github.com/zulandar/semaphore/internal/metrics"
	"github.com/zulandar/semaphore/internal/registry"
	"github.com/zulandar/semaphore/internal/scale"
	"github.com/zulandar/semaphore/internal/signal"
)

// maxBodyBytes caps a scale-out request body.
const maxBodyBytes = 1 << 16

// registerRoutes sets up all routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/", handleIndex(opts.Encoder))
	router.GET("/healthz", handleHealthz())
	router.GET("/metrics", handleMetrics(opts.Collector, opts.Exporter))

	api := router.Group("/api", requirePermission(opts.Auth))
	api.POST("/scaleout", handleScaleout(opts.Scaler))
}

func handleIndex(enc *scale.Encoder) gin.HandlerFunc {
	return func(c *gin.Context) {
		data := gin.H{"mode": string(scale.ModeDirect), "defaultSize": 20, "defaultHours": 2.0}
		if enc != nil {
			data["mode"] = string(enc.Mode)
			data["defaultSize"] = enc.DefaultSize
			data["defaultHours"] = enc.DefaultHours
			data["defaultLevel"] = enc.DefaultLevel
			data["tiers"] = enc.TierNames()
		}
		c.HTML(http.StatusOK, "index.html", data)
	}
}

func handleHealthz() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleMetrics(collector registry.Collector, exporter *metrics.Exporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := collector.Collect(c.Request.Context())
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, registry.ErrRegistryUnavailable) {
				status = http.StatusServiceUnavailable
			}
			c.Error(err)
			c.String(status, "worker registry unavailable: %v\n", err)
			return
		}

		var buf bytes.Buffer
		if err := exporter.Write(&buf, records); err != nil {
			c.Error(err)
			c.String(http.StatusInternalServerError, "metrics export failed: %v\n", err)
			return
		}
		c.Data(http.StatusOK, metrics.ContentType, buf.Bytes())
	}
}

// scaleoutRequest is the JSON body of POST /api/scaleout. Which capacity
// field applies depends on the deployment's scale mode.
type scaleoutRequest struct {
	ScaleSize     *int     `json:"scale_size"`
	ScaleLevel    string   `json:"scale_level"`
	HoursToExpire *float64 `json:"hours_to_expire"`
}

type scaleoutResponse struct {
	Success         bool    `json:"success"`
	Message         string  `json:"message"`
	ScaleSize       int     `json:"scale_size"`
	ScaleLevel      string  `json:"scale_level,omitempty"`
	HoursToExpire   float64 `json:"hours_to_expire"`
	ExpireAt        string  `json:"expire_at"`
	RedisListLength int64   `json:"redis_list_length"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

func handleScaleout(scaler signal.Requester) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := decodeScaleout(c.Request)
		if err != nil {
			c.JSON(http.StatusBadRequest, failureResponse{Kind: "validation_error", Message: err.Error()})
			return
		}

		origin := signal.Origin{Source: "api", Requester: c.GetString(ctxRequester)}
		out, err := scaler.Request(c.Request.Context(), req, origin)
		if err != nil {
			var ve *scale.ValidationError
			if errors.As(err, &ve) {
				c.JSON(http.StatusBadRequest, failureResponse{Kind: "validation_error", Message: ve.Error()})
				return
			}
			c.Error(err)
			c.JSON(http.StatusInternalServerError, failureResponse{
				Kind:    string(dispatch.KindOf(err)),
				Message: dispatch.Message(err),
			})
			return
		}

		sig := out.Signal
		c.JSON(http.StatusOK, scaleoutResponse{
			Success:         true,
			Message:         successMessage(sig),
			ScaleSize:       sig.CapacityUnits,
			ScaleLevel:      sig.Level,
			HoursToExpire:   sig.Hours,
			ExpireAt:        sig.ExpiresAtString(),
			RedisListLength: out.Result.QueueDepth,
		})
	}
}

// decodeScaleout reads the request body. An empty body means all defaults.
func decodeScaleout(r *http.Request) (scale.Request, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return scale.Request{}, fmt.Errorf("could not read request body: %v", err)
	}
	if len(body) > maxBodyBytes {
		return scale.Request{}, fmt.Errorf("request body is too large")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return scale.Request{}, nil
	}

	var in scaleoutRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return scale.Request{}, fmt.Errorf("invalid JSON body: %v", err)
	}
	return scale.Request{Size: in.ScaleSize, Level: in.ScaleLevel, Hours: in.HoursToExpire}, nil
}

func successMessage(sig scale.Signal) string {
	if sig.Level != "" {
		return fmt.Sprintf("Scale-out request sent (level: %s, capacity: %d, expires: %s)", sig.Level, sig.CapacityUnits, sig.ExpiresAtString())
	}
	return fmt.Sprintf("Scale-out request sent (capacity: %d, expires: %s)", sig.CapacityUnits, sig.ExpiresAtString())
}
