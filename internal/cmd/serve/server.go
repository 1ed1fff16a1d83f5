package serve

import (
	"context"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/chirino/unimsg/internal/aggregator"
	"github.com/chirino/unimsg/internal/config"
	routesystem "github.com/chirino/unimsg/internal/plugin/route/system"
	storemetrics "github.com/chirino/unimsg/internal/plugin/store/metrics"
	registrymigrate "github.com/chirino/unimsg/internal/registry/migrate"
	registryroute "github.com/chirino/unimsg/internal/registry/route"
	registrystore "github.com/chirino/unimsg/internal/registry/store"
	"github.com/chirino/unimsg/internal/telemetry"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config     *config.Config
	Store      registrystore.MessageStore
	Service    *aggregator.Service
	Router     *gin.Engine
	Running    *RunningServers
	Management *RunningServers
}

// Shutdown drains the listeners and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	routesystem.MarkNotReady()
	if s.Management != nil {
		_ = s.Management.Close(ctx)
	}
	err := s.Running.Close(ctx)
	if cerr := s.Store.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// StartServer runs migrations, connects the configured store and starts the
// HTTP listeners. Use Listener.Port=0 for a random port; the bound port is
// Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	ctx = config.WithContext(ctx, cfg)
	log.Info("Starting unimsg",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"mode", cfg.Mode,
	)

	metricsLabels, err := telemetry.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	telemetry.InitMetrics(metricsLabels)

	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)
	svc := aggregator.New(store)

	router, err := NewRouter(cfg, svc)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}

	srv := &Server{Config: cfg, Store: store, Service: svc, Router: router}
	if cfg.ManagementListenerEnabled {
		srv.Management, err = startManagementServer(cfg)
		if err != nil {
			_ = store.Close(ctx)
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
		log.Info("Management server listening", "port", srv.Management.Port)
	}

	srv.Running, err = StartSinglePortHTTP("main", cfg.Listener, router)
	if err != nil {
		if srv.Management != nil {
			_ = srv.Management.Close(ctx)
		}
		_ = store.Close(ctx)
		return nil, err
	}

	log.Info("Server listening",
		"port", srv.Running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
	)

	routesystem.MarkReady()
	return srv, nil
}

// NewRouter builds the main gin engine with middleware and every registered
// main route plugin. Management routes are mounted too unless they are served
// on a dedicated port.
func NewRouter(cfg *config.Config, svc *aggregator.Service) (*gin.Engine, error) {
	if cfg.Mode == config.ModeTesting {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(telemetry.AccessLogMiddleware())
	} else {
		router.Use(telemetry.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(telemetry.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	if err := mountRoutes(router, registryroute.Main(), svc); err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}
	if !cfg.ManagementListenerEnabled {
		if err := mountRoutes(router, registryroute.Management(), svc); err != nil {
			return nil, fmt.Errorf("failed to load management routes: %w", err)
		}
	}
	return router, nil
}

func mountRoutes(router *gin.Engine, plugins []registryroute.Plugin, svc *aggregator.Service) error {
	for _, p := range plugins {
		log.Debug("Mounting routes", "plugin", p.Name)
		if err := p.Loader(router, svc); err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
	}
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBodySize > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		}
		c.Next()
	}
}
