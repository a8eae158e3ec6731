package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/mosys_sync/app"
	"bitbucket.org/mmdatafocus/mosys_sync/appctx"
	"bitbucket.org/mmdatafocus/mosys_sync/config"
	"bitbucket.org/mmdatafocus/mosys_sync/scheduler"
	"bitbucket.org/mmdatafocus/mosys_sync/syncapi"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("SYNC_SERVICE_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	plants := config.ServicePlants()
	if len(plants) == 0 {
		logger.Fatal("SYNC_PLANTS is empty")
	}
	// Process-wide knobs come from the first plant; per-plant ones are loaded per run.
	base, err := config.LoadSyncSettings(plants[0])
	if err != nil {
		logger.WithError(err).Fatal("load sync settings")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handlers := &syncapi.Handlers{Plants: plants, Logger: logger}
	var ready atomic.Bool

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(appctx.Set(c.Request.Context(), appctx.ContextKeyCorrelationId, cid))
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	corsConfig := cors.DefaultConfig()
	if origins := config.CORSAllowedOrigins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	r.Use(cors.New(corsConfig))

	r.Use(func(c *gin.Context) {
		if !ready.Load() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "connecting"})
			return
		}
		c.Next()
	})
	r.Use(syncapi.TokenMiddleware(strings.TrimSpace(os.Getenv("SYNC_API_TOKEN"))))
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())
	handlers.Register(r)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	env, err := app.Connect(sigCtx, base, app.Options{
		Registry: registry,
		Migrate:  !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true"),
	})
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "connect"}).Error(err)
		_ = srv.Close()
		os.Exit(1)
	}
	defer env.Close()

	env.Runner.Gate = scheduler.NewGate(base.MinInterval, nil)
	handlers.Jobs = env
	handlers.Runner = env.Runner
	handlers.History = env.History
	handlers.Cache = env.Runner.Cache
	ready.Store(true)
	logger.WithFields(logrus.Fields{"port": port, "plants": plants}).Info("sync service ready")

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		cid, _ := appctx.GetString(c.Request.Context(), appctx.ContextKeyCorrelationId)
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        time.Since(start).String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
