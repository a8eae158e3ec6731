// Package syncapi is the HTTP surface of the sync service: manual triggers,
// the last result and the run history per family and plant.
package syncapi

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/mosys_sync/appctx"
	"bitbucket.org/mmdatafocus/mosys_sync/config"
	"bitbucket.org/mmdatafocus/mosys_sync/models"
	"bitbucket.org/mmdatafocus/mosys_sync/syncer"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// JobSource builds the job of a family for a plant.
type JobSource interface {
	Job(family, plant string) (syncer.Job, error)
}

// RunStarter is satisfied by *syncer.Runner.
type RunStarter interface {
	Run(ctx context.Context, job syncer.Job) (syncer.RunResult, error)
}

type HistoryReader interface {
	Latest(ctx context.Context, family, plant string) (*models.SyncRun, error)
	List(ctx context.Context, family, plant string, limit int) ([]models.SyncRun, error)
}

// Handlers serves the sync routes. Cache may be nil.
type Handlers struct {
	Jobs    JobSource
	Runner  RunStarter
	History HistoryReader
	Cache   syncer.ResultCache
	Plants  []string
	Logger  logrus.FieldLogger
}

// Register mounts the routes under /api/sync and the Pub/Sub push endpoint.
func (h *Handlers) Register(r gin.IRouter) {
	api := r.Group("/api/sync")
	api.POST("/:family", h.TriggerSyncHandler())
	api.GET("/:family/last", h.LastRunHandler())
	api.GET("/:family/runs", h.SyncHistoryHandler())
	r.POST("/pubsub/sync", h.PubSubPushHandler())
}

func (h *Handlers) logger() logrus.FieldLogger {
	if h.Logger != nil {
		return h.Logger
	}
	return config.GetLogger()
}

func (h *Handlers) resolvePlant(c *gin.Context) (string, bool) {
	plant := strings.ToLower(strings.TrimSpace(c.Query("plant")))
	if plant == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plant is required"})
		return "", false
	}
	if len(h.Plants) > 0 && !slices.Contains(h.Plants, plant) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown plant " + plant})
		return "", false
	}
	return plant, true
}

// trigger runs one sync and reports how it went as an HTTP status.
func (h *Handlers) trigger(ctx context.Context, family, plant string) (int, TriggerResponse) {
	job, err := h.Jobs.Job(family, plant)
	if err != nil {
		return http.StatusBadRequest, TriggerResponse{Status: StatusFailed, Message: err.Error()}
	}
	res, err := h.Runner.Run(ctx, job)
	out := NewTriggerResponse(res)
	switch {
	case errors.Is(err, syncer.ErrTooSoon):
		return http.StatusTooManyRequests, out
	case errors.Is(err, syncer.ErrLockHeld):
		return http.StatusConflict, out
	case err != nil:
		return http.StatusInternalServerError, out
	}
	return http.StatusOK, out
}

// TriggerSyncHandler runs the family's sync for ?plant= and answers with its result.
// The run is detached from the request so a dropped client does not abort it.
func (h *Handlers) TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		plant, ok := h.resolvePlant(c)
		if !ok {
			return
		}
		family := c.Param("family")
		ctx := context.WithoutCancel(c.Request.Context())
		status, out := h.trigger(ctx, family, plant)
		if status >= http.StatusInternalServerError {
			config.LogError(h.logger(), "syncapi", "TriggerSyncHandler", "run", gin.H{"family": family, "plant": plant}, errors.New(out.Message))
		}
		c.JSON(status, out)
	}
}

// LastRunHandler answers the most recent result, from the cache when present
// and from the run history otherwise.
func (h *Handlers) LastRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		plant, ok := h.resolvePlant(c)
		if !ok {
			return
		}
		family := c.Param("family")
		ctx := appctx.Set(c.Request.Context(), appctx.ContextKeyPlant, plant)

		if h.Cache != nil {
			res, err := h.Cache.Last(ctx, family, plant)
			if err != nil {
				h.logger().WithError(err).Warn("read cached result")
			} else if res != nil {
				c.JSON(http.StatusOK, res)
				return
			}
		}
		run, err := h.History.Latest(ctx, family, plant)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if run == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no runs yet"})
			return
		}
		c.JSON(http.StatusOK, resultFromRun(*run))
	}
}

func (h *Handlers) SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		plant, ok := h.resolvePlant(c)
		if !ok {
			return
		}
		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}
		ctx := appctx.Set(c.Request.Context(), appctx.ContextKeyPlant, plant)

		runs, err := h.History.List(ctx, c.Param("family"), plant, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

// TokenMiddleware requires the shared token in the "token" header or as a
// bearer token. An empty token disables the check.
func TokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := c.GetHeader("token")
		if got == "" {
			auth := strings.TrimSpace(c.GetHeader("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				got = strings.TrimSpace(auth[7:])
			}
		}
		if got != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
