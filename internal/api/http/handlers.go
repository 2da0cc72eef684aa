package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mizuos/shell/internal/api/middleware"
	"github.com/mizuos/shell/internal/domain/fault"
	"github.com/mizuos/shell/internal/domain/loader"
	"github.com/mizuos/shell/internal/domain/registry"
	"github.com/mizuos/shell/internal/shell"
	"github.com/mizuos/shell/internal/shared/types"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	shell  *shell.Shell
	logger *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(sh *shell.Shell, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{shell: sh, logger: logger}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/boot", h.Boot)
	r.GET("/theme", h.GetTheme)
	r.POST("/theme", h.SetTheme)

	r.GET("/apps", h.ListApps)
	r.GET("/apps/:name", h.GetApp)
	r.POST("/apps/:name/load", h.LoadApp)
	r.POST("/apps/:name/activate", h.ActivateApp)
	r.POST("/apps/:name/deactivate", h.DeactivateApp)
	r.POST("/apps/:name/unload", h.UnloadApp)

	r.GET("/events", h.ListEvents)
	r.POST("/events/:event", h.EmitEvent)
}

// Health reports component statistics
func (h *Handlers) Health(c *gin.Context) {
	status := "healthy"
	if _, fatal := h.shell.Errors.FatalError(); fatal {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"boot":     h.shell.Sequence.Report(),
		"registry": h.shell.Registry.Stats(),
		"loader":   h.shell.Loader.Stats(),
		"bus":      h.shell.Bus.Stats(),
	})
}

// Boot returns the boot report and error history. A fatal boot error
// turns the response into a 503 so the front-end can show its overlay.
func (h *Handlers) Boot(c *gin.Context) {
	body := gin.H{
		"report":     h.shell.Sequence.Report(),
		"components": h.shell.Deps.Loaded(),
		"errors":     h.shell.Errors.History(),
	}

	if rec, fatal := h.shell.Errors.FatalError(); fatal {
		body["success"] = false
		body["error"] = rec
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	body["success"] = true
	c.JSON(http.StatusOK, body)
}

// GetTheme returns the active theme and stylesheets
func (h *Handlers) GetTheme(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"theme":  h.shell.Theme(),
		"styles": h.shell.Styles(),
	})
}

// SetTheme persists a new theme
func (h *Handlers) SetTheme(c *gin.Context) {
	var req struct {
		Theme string `json:"theme" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	if err := h.shell.SetTheme(c.Request.Context(), req.Theme); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "theme": req.Theme})
}

// appView is a registration joined with its live instance, if any
type appView struct {
	registry.Registration
	Instance *types.AppInfo `json:"instance,omitempty"`
}

func (h *Handlers) view(reg registry.Registration) appView {
	v := appView{Registration: reg}
	if info, ok := h.shell.Loader.Info(reg.Name); ok {
		v.Instance = &info
	}
	return v
}

// ListApps lists registered apps, optionally filtered by ?status=a,b
func (h *Handlers) ListApps(c *gin.Context) {
	var statuses []types.Status
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, types.Status(strings.TrimSpace(s)))
		}
	}

	regs := h.shell.Registry.List(statuses...)
	apps := make([]appView, len(regs))
	for i, reg := range regs {
		apps[i] = h.view(reg)
	}

	c.JSON(http.StatusOK, gin.H{
		"apps":   apps,
		"active": h.shell.Loader.ActiveApps(),
		"stats":  h.shell.Registry.Stats(),
	})
}

// GetApp returns one app
func (h *Handlers) GetApp(c *gin.Context) {
	name := c.Param("name")
	reg, ok := h.shell.Registry.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "app not registered"})
		return
	}
	c.JSON(http.StatusOK, h.view(reg))
}

// LoadApp loads an app without mounting it
func (h *Handlers) LoadApp(c *gin.Context) {
	h.lifecycle(c, func(ctx context.Context, name string) error {
		_, err := h.shell.Loader.LoadApp(ctx, name)
		return err
	})
}

// ActivateApp mounts and shows an app, or hides it if already visible
func (h *Handlers) ActivateApp(c *gin.Context) {
	h.lifecycle(c, h.shell.Loader.ActivateApp)
}

// DeactivateApp takes an app out of the foreground
func (h *Handlers) DeactivateApp(c *gin.Context) {
	h.lifecycle(c, h.shell.Loader.DeactivateApp)
}

// UnloadApp destroys an app instance
func (h *Handlers) UnloadApp(c *gin.Context) {
	h.lifecycle(c, h.shell.Loader.UnloadApp)
}

func (h *Handlers) lifecycle(c *gin.Context, op func(ctx context.Context, name string) error) {
	name := c.Param("name")
	if err := op(c.Request.Context(), name); err != nil {
		h.logger.Debug("Lifecycle request failed",
			zap.String("request_id", middleware.RequestID(c.Request.Context()).String()),
			zap.String("app", name),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	reg, _ := h.shell.Registry.Get(name)
	c.JSON(http.StatusOK, gin.H{"success": true, "app": h.view(reg)})
}

func statusFor(err error) int {
	var depErr *fault.DependencyError
	var cycleErr *fault.CircularDependencyError
	switch {
	case errors.Is(err, registry.ErrNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, loader.ErrNotLoaded), errors.Is(err, loader.ErrNotActive),
		errors.Is(err, registry.ErrInvalidTransition):
		return http.StatusConflict
	case errors.As(err, &depErr), errors.As(err, &cycleErr):
		return http.StatusFailedDependency
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ListEvents reports subscriber counts per event
func (h *Handlers) ListEvents(c *gin.Context) {
	stats := h.shell.Bus.Stats()
	c.JSON(http.StatusOK, gin.H{
		"events":      h.shell.Bus.Events(),
		"subscribers": stats.PerEvent,
		"stats":       stats,
	})
}

// EmitEvent publishes the request body's data on the bus
func (h *Handlers) EmitEvent(c *gin.Context) {
	event := c.Param("event")
	if event == "" || strings.ContainsAny(event, " *") {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid event name"})
		return
	}

	var req types.EmitRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
	}

	delivered := h.shell.Bus.Emit(event, req.Data)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"event":     event,
		"delivered": delivered,
	})
}
