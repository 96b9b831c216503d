package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"tclab_control/internal/plot"
	"tclab_control/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK       = "ok"
	statusStarted  = "started"
	statusAborting = "aborting"

	errStartRun        = "failed to start run"
	errListRuns        = "failed to list runs"
	errLoadRun         = "failed to load run"
	errRenderPlot      = "failed to render plot"
	errRunNotFound     = "run not found"
	errInvalidBodyPref = "invalid body: "
	errInvalidLimit    = "invalid 'limit'; use a positive integer"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...any) {
	if err != nil {
		fields := append([]any{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// StartRunRequest is the body of POST /api/v1/runs.
type StartRunRequest struct {
	// Run length in seconds; floor(duration / sample period) samples are taken
	DurationSec float64 `json:"duration_s" binding:"required,gt=0" example:"600"`
	// Target temperature in Celsius
	SetpointC *float64 `json:"setpoint_c" binding:"required" example:"45"`
	// Proportional gain
	Kp *float64 `json:"kp" binding:"required" example:"5"`
	// Integral gain, per second
	Ki *float64 `json:"ki" binding:"required" example:"0.5"`
	// Heater bias in percent; the configured default when omitted
	Bias *float64 `json:"bias,omitempty" example:"0"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Start a run
// @Description  Launches a PI run in the background. Only one run can own the board.
// @Tags         runs
// @Accept       json
// @Produce      json
// @Param        body  body      StartRunRequest  true  "Run parameters"
// @Success      202   {object}  map[string]interface{}  "status, run"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/runs [post]
// @Security     BearerAuth
func (h *Handler) startRun(c *gin.Context) {
	var req StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	run, err := h.services.Control.StartRun(c.Request.Context(), service.RunParams{
		DurationSec: req.DurationSec,
		SetpointC:   *req.SetpointC,
		Kp:          *req.Kp,
		Ki:          *req.Ki,
		Bias:        req.Bias,
	})
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidParams):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, errStartRun, "run_start_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": statusStarted, "run": run})
}

// @Summary      List runs
// @Tags         runs
// @Produce      json
// @Param        limit  query     int  false  "Maximum number of runs, newest first"
// @Success      200    {object}  map[string]interface{}  "count, runs"
// @Failure      400    {object}  map[string]string
// @Failure      401    {object}  map[string]string
// @Failure      500    {object}  map[string]string
// @Router       /api/v1/runs [get]
// @Security     BearerAuth
func (h *Handler) listRuns(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidLimit})
			return
		}
		limit = v
	}
	runs, err := h.services.History.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errListRuns, "run_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(runs), "runs": runs})
}

// @Summary      Current run status
// @Description  Phase, last sample and record of the active run, or of the last run when idle
// @Tags         runs
// @Produce      json
// @Success      200  {object}  service.RunStatus
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/runs/current [get]
// @Security     BearerAuth
func (h *Handler) currentRun(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Control.Status())
}

// @Summary      Abort the active run
// @Tags         runs
// @Produce      json
// @Success      202  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/runs/current/abort [post]
// @Security     BearerAuth
func (h *Handler) abortRun(c *gin.Context) {
	if err := h.services.Control.Abort(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": statusAborting})
}

// @Summary      Get a run
// @Tags         runs
// @Produce      json
// @Param        id   path      string  true  "Run id"
// @Success      200  {object}  models.Run
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/runs/{id} [get]
// @Security     BearerAuth
func (h *Handler) getRun(c *gin.Context) {
	run, err := h.services.History.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.runLoadError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// @Summary      Samples of a run
// @Tags         runs
// @Produce      json
// @Param        id   path      string  true  "Run id"
// @Success      200  {object}  map[string]interface{}  "count, samples"
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/runs/{id}/samples [get]
// @Security     BearerAuth
func (h *Handler) getRunSamples(c *gin.Context) {
	samples, err := h.services.History.Samples(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.runLoadError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(samples), "samples": samples})
}

// @Summary      Plot of a run
// @Description  Temperature and setpoint on top, heater output below
// @Tags         runs
// @Produce      png
// @Param        id   path  string  true  "Run id"
// @Success      200  {file}  binary
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/runs/{id}/plot.png [get]
// @Security     BearerAuth
func (h *Handler) getRunPlot(c *gin.Context) {
	ctx := c.Request.Context()
	run, err := h.services.History.GetRun(ctx, c.Param("id"))
	if err != nil {
		h.runLoadError(c, err)
		return
	}
	samples, err := h.services.History.Samples(ctx, run.ID)
	if err != nil {
		h.runLoadError(c, err)
		return
	}
	// Render fully before writing so a failure can still become a JSON error.
	var buf bytes.Buffer
	if err := plot.Render(&buf, run, samples, plot.Options{}); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errRenderPlot, "run_plot_failed", err, "run_id", run.ID)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (h *Handler) runLoadError(c *gin.Context, err error) {
	if service.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": errRunNotFound})
		return
	}
	h.logAndJSONError(c, http.StatusInternalServerError, errLoadRun, "run_load_failed", err, "run_id", c.Param("id"))
}
