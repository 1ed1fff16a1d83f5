package system

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chirino/unimsg/internal/aggregator"
	registryroute "github.com/chirino/unimsg/internal/registry/route"
)

var ready atomic.Bool

// MarkReady signals that the store is connected and routes are mounted.
func MarkReady() {
	ready.Store(true)
}

// MarkNotReady flips readiness off while the server drains.
func MarkNotReady() {
	ready.Store(false)
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:   "system",
		Order:  0,
		Type:   registryroute.RouteTypeManagement,
		Loader: MountRoutes,
	})
}

// MountRoutes mounts liveness, readiness and metrics endpoints. svc is unused.
func MountRoutes(r *gin.Engine, _ *aggregator.Service) error {
	// Liveness: process is up
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: store connected, routes mounted
	r.GET("/ready", func(c *gin.Context) {
		if ready.Load() {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
		} else {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		}
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return nil
}
