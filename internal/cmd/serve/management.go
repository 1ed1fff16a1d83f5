package serve

import (
	"fmt"

	"github.com/chirino/unimsg/internal/config"
	registryroute "github.com/chirino/unimsg/internal/registry/route"
	"github.com/chirino/unimsg/internal/telemetry"
	"github.com/gin-gonic/gin"
)

// newManagementRouter builds the bare engine served on the dedicated
// management port.
func newManagementRouter(cfg *config.Config) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(telemetry.AccessLogMiddleware())
	}
	if err := mountRoutes(router, registryroute.Management(), nil); err != nil {
		return nil, fmt.Errorf("failed to load management routes: %w", err)
	}
	return router, nil
}

// startManagementServer serves the management routes on their own port. The
// listener shares the main listener's certificate.
func startManagementServer(cfg *config.Config) (*RunningServers, error) {
	router, err := newManagementRouter(cfg)
	if err != nil {
		return nil, err
	}
	lc := cfg.ManagementListener
	if !lc.EnablePlainText && !lc.EnableTLS {
		lc.EnablePlainText = true
	}
	lc.TLSCertFile = cfg.Listener.TLSCertFile
	lc.TLSKeyFile = cfg.Listener.TLSKeyFile
	lc.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
	return StartSinglePortHTTP("management", lc, router)
}
