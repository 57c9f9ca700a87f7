// Package server exposes the run trigger over HTTP and liveness over gRPC health.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/arrivals-intake/internal/common"
	"github.com/joseph-ayodele/arrivals-intake/internal/intake"
)

// Runner is the part of intake.Scheduler the HTTP surface drives.
type Runner interface {
	Start(ctx context.Context) (string, error)
	Status() intake.Status
}

// TriggerHandler serves the run trigger and status endpoints. Runs are
// started on baseCtx, never on the request context.
type TriggerHandler struct {
	runner  Runner
	baseCtx context.Context
	logger  *zap.Logger
}

func NewTriggerHandler(baseCtx context.Context, runner Runner, logger *zap.Logger) *TriggerHandler {
	return &TriggerHandler{runner: runner, baseCtx: baseCtx, logger: logger}
}

// Trigger starts a run in the background.
func (h *TriggerHandler) Trigger(c *gin.Context) {
	runID, err := h.runner.Start(h.baseCtx)
	if errors.Is(err, common.ErrRunActive) {
		st := h.runner.Status()
		h.logger.Info("trigger refused: run active", zap.String("run_id", st.RunID))
		c.JSON(http.StatusConflict, gin.H{"error": "run already active", "run_id": st.RunID})
		return
	}
	if err != nil {
		h.logger.Error("trigger failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	h.logger.Info("run triggered", zap.String("run_id", runID))
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

// Status reports the current run and the last cycle report.
func (h *TriggerHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.runner.Status())
}

// NewRouter wires the trigger routes onto a gin engine.
func NewRouter(h *TriggerHandler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(logger))
	router.Use(gin.Recovery())

	router.GET("/", h.Trigger)
	router.GET("/status", h.Status)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "arrivals-intake",
		})
	})
	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
