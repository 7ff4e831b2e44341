// Package server is the control surface: a small settings page for the
// operator plus a JSON API for scripts. It only talks to the engine
// through the Controller interface and to the policy store.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reentry-engine-go/infrastructure/logger"
	"reentry-engine-go/internal/engine"
	"reentry-engine-go/internal/policy"
)

// Controller is the slice of the engine the control surface needs.
type Controller interface {
	Start() error
	Stop() error
	Running() bool
	TrackedCount() int
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	ListenAddr     string
	ProductionMode bool
}

// Server wraps the gin router and the http server around it.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	ctrl       Controller
	policies   *policy.Store
	log        *logger.Logger
}

// NewServer builds the router and registers all routes.
func NewServer(cfg ServerConfig, ctrl Controller, policies *policy.Store, log *logger.Logger) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.SetHTMLTemplate(template.Must(template.New("index").Parse(indexPage)))

	s := &Server{
		router:   router,
		ctrl:     ctrl,
		policies: policies,
		log:      log,
		httpServer: &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: router,
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// operator-facing form page
	s.router.GET("/", s.handleIndex)
	s.router.POST("/settings", s.handleFormSettings)
	s.router.POST("/start", s.handleFormStart)
	s.router.POST("/stop", s.handleFormStop)

	// JSON API
	s.router.GET("/health", s.handleHealth)
	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.POST("/start", s.handleStart)
		api.POST("/stop", s.handleStop)
		api.GET("/policy", s.handleGetPolicy)
		api.POST("/policy", s.handleSetPolicy)
		api.POST("/policy/:symbol", s.handleSetSymbolPolicy)
		api.DELETE("/policy/:symbol", s.handleClearSymbolPolicy)
	}
}

// Run starts serving and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Run() error {
	s.log.Info("control surface listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control surface: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

type statusResponse struct {
	Running       bool            `json:"running"`
	TrackedOrders int             `json:"trackedOrders"`
	Policy        policy.Settings `json:"policy"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		Running:       s.ctrl.Running(),
		TrackedOrders: s.ctrl.TrackedCount(),
		Policy:        s.policies.Current(),
	})
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.ctrl.Start(); err != nil {
		c.JSON(statusForStartStop(err), gin.H{"error": err.Error()})
		return
	}
	s.log.Info("engine started via control surface")
	c.JSON(http.StatusOK, gin.H{"running": true})
}

// statusForStartStop maps the engine's state errors to 409 and anything
// else, like a failed broker connect, to 500.
func statusForStartStop(err error) int {
	if errors.Is(err, engine.ErrAlreadyRunning) || errors.Is(err, engine.ErrNotRunning) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) handleStop(c *gin.Context) {
	if err := s.ctrl.Stop(); err != nil {
		c.JSON(statusForStartStop(err), gin.H{"error": err.Error()})
		return
	}
	s.log.Info("engine stopped via control surface")
	c.JSON(http.StatusOK, gin.H{"running": false})
}

func (s *Server) handleGetPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, s.policies.Current())
}

func (s *Server) handleSetPolicy(c *gin.Context) {
	var settings policy.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.policies.Set(settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.log.Info("policy updated",
		zap.String("mode", string(settings.Mode)),
		zap.Float64("adjust_pct", settings.AdjustPct),
		zap.Float64("pip_distance", settings.PipDistance))
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleSetSymbolPolicy(c *gin.Context) {
	symbol := c.Param("symbol")
	var settings policy.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.policies.SetSymbol(symbol, settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.log.Info("symbol policy updated", zap.String("symbol", symbol))
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleClearSymbolPolicy(c *gin.Context) {
	symbol := c.Param("symbol")
	s.policies.ClearSymbol(symbol)
	c.Status(http.StatusNoContent)
}

type indexView struct {
	Running  bool
	Tracked  int
	Settings policy.Settings
	Message  string
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index", indexView{
		Running:  s.ctrl.Running(),
		Tracked:  s.ctrl.TrackedCount(),
		Settings: s.policies.Current(),
		Message:  c.Query("msg"),
	})
}

func (s *Server) handleFormSettings(c *gin.Context) {
	settings, err := settingsFromForm(c)
	if err != nil {
		s.redirectMsg(c, err.Error())
		return
	}
	if err := s.policies.Set(settings); err != nil {
		s.redirectMsg(c, err.Error())
		return
	}
	s.log.Info("policy updated via form", zap.String("mode", string(settings.Mode)))
	s.redirectMsg(c, "settings saved")
}

// handleFormStart applies the form settings first, then starts. New
// settings only reach orders registered from here on.
func (s *Server) handleFormStart(c *gin.Context) {
	if c.PostForm("mode") != "" {
		settings, err := settingsFromForm(c)
		if err != nil {
			s.redirectMsg(c, err.Error())
			return
		}
		if err := s.policies.Set(settings); err != nil {
			s.redirectMsg(c, err.Error())
			return
		}
	}
	if err := s.ctrl.Start(); err != nil {
		s.redirectMsg(c, err.Error())
		return
	}
	s.redirectMsg(c, "engine started")
}

func (s *Server) handleFormStop(c *gin.Context) {
	if err := s.ctrl.Stop(); err != nil {
		s.redirectMsg(c, err.Error())
		return
	}
	s.redirectMsg(c, "engine stopped")
}

func settingsFromForm(c *gin.Context) (policy.Settings, error) {
	var out policy.Settings
	out.Mode = policy.Mode(c.PostForm("mode"))

	wait, err := strconv.ParseFloat(c.DefaultPostForm("adjustWaitSec", "0"), 64)
	if err != nil {
		return out, fmt.Errorf("adjustWaitSec: %w", err)
	}
	out.AdjustWaitSec = wait

	pct, err := strconv.ParseFloat(c.DefaultPostForm("adjustPct", "0"), 64)
	if err != nil {
		return out, fmt.Errorf("adjustPct: %w", err)
	}
	out.AdjustPct = pct

	pips, err := strconv.ParseFloat(c.DefaultPostForm("pipDistance", "0"), 64)
	if err != nil {
		return out, fmt.Errorf("pipDistance: %w", err)
	}
	out.PipDistance = pips

	out.EnableMarketTracking = c.PostForm("enableMarketTracking") == "on"
	return out, nil
}

func (s *Server) redirectMsg(c *gin.Context, msg string) {
	c.Redirect(http.StatusSeeOther, "/?msg="+url.QueryEscape(msg))
}
