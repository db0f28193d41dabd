package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	runsRepo "github.com/ShadowAlejo/parqueadero/database/repository/runs"
	"github.com/ShadowAlejo/parqueadero/services/reconcile"
	"github.com/ShadowAlejo/parqueadero/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RunHandler serves run reports and manual ticks.
type RunHandler struct {
	Runner reconcile.Runner
	Runs   runsRepo.RunRepository
	Clock  func() time.Time
}

// NewRunHandler constructs a RunHandler on the wall clock.
func NewRunHandler(runner reconcile.Runner, runs runsRepo.RunRepository) *RunHandler {
	return &RunHandler{Runner: runner, Runs: runs, Clock: time.Now}
}

func parsePassParam(c *gin.Context) (reconcile.Pass, bool) {
	pass, err := reconcile.ParsePass(c.Param("pass"))
	if err != nil {
		utils.JSONError(c, getLogger(c), http.StatusBadRequest, "invalid pass", err.Error())
		return "", false
	}
	return pass, true
}

// LastRunHandler returns the latest report of a pass.
func (h *RunHandler) LastRunHandler(c *gin.Context) {
	pass, ok := parsePassParam(c)
	if !ok {
		return
	}
	report, err := h.Runs.Last(c.Request.Context(), string(pass))
	if errors.Is(err, runsRepo.ErrNoRuns) {
		utils.JSONError(c, getLogger(c), http.StatusNotFound, "no runs recorded", string(pass))
		return
	}
	if err != nil {
		utils.JSONError(c, getLogger(c), http.StatusInternalServerError, "failed to load run report", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": report})
}

// RunHistoryHandler returns up to ?limit recent reports of a pass, newest first.
func (h *RunHandler) RunHistoryHandler(c *gin.Context) {
	pass, ok := parsePassParam(c)
	if !ok {
		return
	}
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			utils.JSONError(c, getLogger(c), http.StatusBadRequest, "invalid limit", raw)
			return
		}
		limit = n
	}
	reports, err := h.Runs.Recent(c.Request.Context(), string(pass), limit)
	if err != nil {
		utils.JSONError(c, getLogger(c), http.StatusInternalServerError, "failed to load run history", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": reports})
}

// TriggerRunHandler runs a pass immediately. ?now=RFC3339 pins the tick time.
func (h *RunHandler) TriggerRunHandler(c *gin.Context) {
	logger := getLogger(c)
	pass, ok := parsePassParam(c)
	if !ok {
		return
	}
	now := h.Clock()
	if raw := c.Query("now"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.JSONError(c, logger, http.StatusBadRequest, "invalid now", err.Error())
			return
		}
		now = t
	}

	logger.Info("manual tick requested", zap.String("pass", string(pass)), zap.Time("now", now))
	report, err := h.Runner.Run(c.Request.Context(), reconcile.Tick{Pass: pass, Now: now})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "run": report})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": report})
}
