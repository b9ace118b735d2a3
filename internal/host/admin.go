package host

import (
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/donuts/internal/observability"
	"github.com/danmuck/donuts/internal/protocol/schema"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminRouter builds the read-only admin HTTP surface. Call after bootstrap.
func (s *Service) AdminRouter() *gin.Engine {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(s.logger, "/health", "/ready", "/metrics"))
	r.Use(observability.RequestMetricsMiddleware(s.cfg.HostID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(s.cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": s.cfg.HostID,
		})
	})
	r.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !s.ready.Load() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"ready": s.ready.Load(), "service": s.cfg.HostID})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/commands", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"commands": s.dispatcher.Catalogue()})
	})
	r.GET("/commands/:name/schema", func(c *gin.Context) {
		cmd, ok := s.dispatcher.Lookup(c.Param("name"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "command not found."})
			return
		}
		if _, err := schema.Compile(cmd.Args); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, schema.JSONSchema(cmd.Args))
	})
	r.GET("/connections", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"connections":     s.server.Connections(),
			"active_contexts": s.server.ActiveContexts(),
		})
	})
	r.GET("/terminals", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"terminals": s.workspace.Terminals()})
	})
	r.GET("/messages", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
		c.JSON(http.StatusOK, gin.H{"messages": s.workspace.Messages(limit)})
	})
	return r
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
