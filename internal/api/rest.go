package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

// ErrorDetail is the body of a failed REST call.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorDetail.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// RESTHandler serves the Service over JSON.
type RESTHandler struct {
	svc *Service
	log *slog.Logger
}

// NewRESTHandler creates a RESTHandler backed by svc.
func NewRESTHandler(svc *Service, log *slog.Logger) *RESTHandler {
	return &RESTHandler{svc: svc, log: log}
}

// RegisterRoutes registers all API routes on the given router.
func (h *RESTHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/strategies", h.strategies)
		v1.POST("/backtest", h.backtest)
		v1.POST("/grid", h.grid)
		v1.POST("/walkforward", h.walkForward)
		v1.POST("/batch", h.batch)
		v1.GET("/runs", h.runs)
		v1.GET("/runs/:id", h.run)
	}
}

// Handler returns an http.Handler with logging, recovery and CORS.
func (h *RESTHandler) Handler() http.Handler {
	router := gin.New()
	router.Use(h.requestLogger(), recovery(h.log))
	h.RegisterRoutes(router)

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)
}

func (h *RESTHandler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func recovery(log *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("handler panic", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"},
		})
	})
}

func (h *RESTHandler) fail(c *gin.Context, err error) {
	code, name := httpStatus(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(code, ErrorResponse{Error: ErrorDetail{Code: name, Message: err.Error()}})
}

func (h *RESTHandler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{Code: "INVALID_REQUEST", Message: err.Error()},
		})
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (h *RESTHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *RESTHandler) strategies(c *gin.Context) {
	c.JSON(http.StatusOK, StrategiesResponse{Strategies: h.svc.Strategies()})
}

func (h *RESTHandler) backtest(c *gin.Context) {
	var req BacktestRequest
	if !h.bind(c, &req) {
		return
	}
	resp, err := h.svc.Backtest(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RESTHandler) grid(c *gin.Context) {
	var req GridRequest
	if !h.bind(c, &req) {
		return
	}
	resp, err := h.svc.GridSearch(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RESTHandler) walkForward(c *gin.Context) {
	var req WalkForwardRequest
	if !h.bind(c, &req) {
		return
	}
	resp, err := h.svc.WalkForward(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RESTHandler) batch(c *gin.Context) {
	var req BatchRequest
	if !h.bind(c, &req) {
		return
	}
	resp, err := h.svc.Batch(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RESTHandler) runs(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.fail(c, ErrInvalidRequest)
			return
		}
		limit = n
	}
	runs, err := h.svc.Runs(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, RunsResponse{Runs: runs})
}

func (h *RESTHandler) run(c *gin.Context) {
	run, err := h.svc.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}
