package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"repair-tracker-backend/internal/mw"
	"repair-tracker-backend/internal/store"
	"repair-tracker-backend/internal/timer"
)

// RouterConfig tunes the middleware and auxiliary routes of the router.
type RouterConfig struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration
	CORSOrigins     []string

	// ImagesDir, when set, is served statically under ImagesURLPrefix.
	ImagesDir       string
	ImagesURLPrefix string

	// Requests is told about every request; Gatherer backs GET /metrics.
	Requests mw.RequestObserver
	Gatherer prometheus.Gatherer
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.Default()

	if cfg.Requests != nil {
		r.Use(mw.Metrics(cfg.Requests))
	}
	r.Use(mw.CORS(cfg.CORSOrigins))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	if cfg.ImagesDir != "" && cfg.ImagesURLPrefix != "" {
		r.Static(cfg.ImagesURLPrefix, cfg.ImagesDir)
	}

	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 10
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	caching := mw.Cache(cache.New(cfg.CacheTTL, 2*cfg.CacheTTL), cfg.CacheTTL)

	api := r.Group("/", rateLimiter)
	{
		machines := api.Group("/machines", caching)
		machines.POST("", h.CreateMachine)
		machines.GET("", h.ListMachines)
		machines.GET("/:id", h.GetMachine)
		machines.DELETE("/:id", h.DeleteMachine)
		machines.PUT("/:id/status", h.UpdateMachineStatus)
		machines.POST("/:id/photo", h.UploadPhoto)

		for _, a := range []timer.Action{timer.Start, timer.Pause, timer.Stop} {
			// The general phase keeps its unprefixed paths.
			handle := h.PhaseCommand(timer.General, a)
			machines.POST("/:id/"+string(a), handle)
			machines.PUT("/:id/"+string(a), handle)

			for _, p := range []timer.Phase{timer.Inspection, timer.Servicing} {
				handle := h.PhaseCommand(p, a)
				machines.POST("/:id/"+string(p)+"/"+string(a), handle)
				machines.PUT("/:id/"+string(p)+"/"+string(a), handle)
			}
		}

		machines.POST("/:id/issues", h.AddIssue)
		machines.DELETE("/:id/issues/:issueId", h.DeleteIssue)
		machines.PUT("/:id/issues/:issueId/note", h.UpdateIssueField(store.IssueNote))
		machines.PUT("/:id/issues/:issueId/severity", h.UpdateIssueField(store.IssueSeverity))
		machines.PUT("/:id/issues/:issueId/status", h.UpdateIssueField(store.IssueStatus))
		machines.PUT("/:id/issues/:issueId/tracking", h.UpdateIssueTracking)

		api.GET("/issues-file", caching, h.GetIssuesFile)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
