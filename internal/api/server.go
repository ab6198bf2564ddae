package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/snp-search-service/internal/domain"
	"github.com/snp-search-service/internal/middleware"
	"github.com/snp-search-service/internal/service"
)

// Server represents the HTTP server
type Server struct {
	cfg      domain.ServerConfig
	service  *service.SnpService
	logger   *logrus.Logger
	router   *gin.Engine
	server   *http.Server
	upgrader websocket.Upgrader
}

// NewServer creates a new HTTP server instance
func NewServer(cfg domain.ServerConfig, svc *service.SnpService, logger *logrus.Logger) *Server {
	router := gin.New()

	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.AccessLogger(logger))
	router.Use(middleware.CORS())

	server := &Server{
		cfg:     cfg,
		service: svc,
		logger:  logger,
		router:  router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	server.setupRoutes()

	return server
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	timeout := middleware.RequestTimeout(s.cfg.RequestTimeout)

	s.router.GET("/health", timeout, s.handleHealth)

	v1 := s.router.Group("/api/v1")

	// long-lived; not subject to the request timeout
	v1.GET("/stream", s.handleStream)

	timed := v1.Group("", timeout)
	{
		timed.GET("/input-modes", s.handleListInputModes)
		timed.PUT("/input-modes/selected", s.handleSelectInputMode)

		timed.POST("/snps/search", s.handleSearch)
		timed.GET("/snps/page", s.handleCurrentPage)
		timed.GET("/status", s.handleStatus)

		timed.PUT("/downloads/id", s.handleSetDownloadID)
		timed.POST("/downloads/fetch", s.handleFetchDownload)
		timed.GET("/downloads/current", s.handleCurrentDownload)
	}
}

func (s *Server) respondError(c *gin.Context, status int, code, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	c.AbortWithStatusJSON(status, domain.NewServiceError(code, message, details, c.GetString(middleware.CorrelationIDKey)))
}

// handleHealth reports whether the search engine answers a ping
func (s *Server) handleHealth(c *gin.Context) {
	if !s.service.IsAvailable(c.Request.Context()) {
		s.respondError(c, http.StatusServiceUnavailable, domain.ErrEngineUnreachable, "Search engine unavailable", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleListInputModes(c *gin.Context) {
	modes := domain.InputModes()
	options := make([]domain.InputModeInfo, 0, len(modes))
	for _, mode := range modes {
		options = append(options, mode.Info())
	}

	c.JSON(http.StatusOK, gin.H{
		"options":  options,
		"selected": s.service.SelectedInputMode().Info(),
	})
}

type selectModeRequest struct {
	ID int `json:"id" binding:"required"`
}

func (s *Server) handleSelectInputMode(c *gin.Context) {
	var req selectModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid request body", err)
		return
	}

	mode, err := domain.ParseInputMode(req.ID)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrValidation, "Unknown input mode", err)
		return
	}

	s.service.SelectInputMode(mode)
	c.JSON(http.StatusOK, gin.H{"selected": mode.Info()})
}

type searchRequest struct {
	Source []string `json:"source"`
	Chrom  string   `json:"chrom"`
	Start  int64    `json:"start"`
	End    int64    `json:"end"`
	Page   int      `json:"page"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid request body", err)
		return
	}

	filter := domain.AnnotationQuery{
		Source: req.Source,
		Chrom:  req.Chrom,
		Start:  req.Start,
		End:    req.End,
	}
	if err := filter.Validate(); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrValidation, "Invalid search filter", err)
		return
	}

	outcome := s.service.Search(c.Request.Context(), filter, req.Page)
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleCurrentPage(c *gin.Context) {
	page := s.service.CurrentPage()
	if page == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"loading":       s.service.IsLoading(),
		"selected_mode": s.service.SelectedInputMode().Info(),
		"download_id":   s.service.DownloadID(),
		"last_outcome":  s.service.LastOutcome(),
	})
}

type downloadIDRequest struct {
	DownloadID string `json:"download_id"`
}

func (s *Server) handleSetDownloadID(c *gin.Context) {
	var req downloadIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid request body", err)
		return
	}

	s.service.SetDownloadID(req.DownloadID)
	c.JSON(http.StatusOK, gin.H{"download_id": req.DownloadID})
}

func (s *Server) handleFetchDownload(c *gin.Context) {
	if s.service.DownloadID() == "" {
		c.Status(http.StatusNoContent)
		return
	}

	if err := s.service.DownloadSnp(c.Request.Context()); err != nil {
		s.respondError(c, http.StatusBadGateway, domain.ErrDownloadFailure, "Failed to fetch download status", err)
		return
	}

	c.JSON(http.StatusAccepted, s.service.CurrentDownload())
}

func (s *Server) handleCurrentDownload(c *gin.Context) {
	download := s.service.CurrentDownload()
	if download == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, download)
}
