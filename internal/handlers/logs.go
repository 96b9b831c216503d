package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"tclab_control/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

var queryTimeLayouts = []string{time.RFC3339, layoutDateTime, layoutDate}

// badQueryError names the query parameter that failed to parse.
type badQueryError struct {
	param string
	value string
}

func (e *badQueryError) Error() string {
	return fmt.Sprintf("invalid '%s' time %q; use RFC3339, 'YYYY-MM-DD HH:MM:SS' or YYYY-MM-DD", e.param, e.value)
}

// parseQueryTime parses s in one of queryTimeLayouts, in UTC. A date-only
// upper bound covers the whole day.
func parseQueryTime(param, s string, upper bool) (time.Time, error) {
	for _, layout := range queryTimeLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if upper && layout == layoutDate {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t.UTC(), nil
	}
	return time.Time{}, &badQueryError{param: param, value: s}
}

// logFilterFromQuery reads from, to, type and run_id. The type is passed
// through as given; the service validates it.
func logFilterFromQuery(c *gin.Context) (service.LogFilter, error) {
	f := service.LogFilter{Type: c.Query("type"), RunID: c.Query("run_id")}
	var err error
	if s := c.Query("from"); s != "" {
		if f.From, err = parseQueryTime("from", s, false); err != nil {
			return service.LogFilter{}, err
		}
	}
	if s := c.Query("to"); s != "" {
		if f.To, err = parseQueryTime("to", s, true); err != nil {
			return service.LogFilter{}, err
		}
	}
	return f, nil
}

// listEvents runs f against the event log and writes the response.
func (h *Handler) listEvents(c *gin.Context, f service.LogFilter) {
	events, err := h.services.EventLog.List(c.Request.Context(), f)
	if errors.Is(err, service.ErrInvalidFilter) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load logs", "logs_list_failed", err,
			"from", f.From, "to", f.To, "type", f.Type, "run_id", f.RunID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// @Summary      List logs
// @Description  Run log entries, oldest first. A date-only 'to' covers the whole day.
// @Tags         logs
// @Produce      json
// @Param        from    query   string  false  "Start of range (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD')"  example(2026-08-01)
// @Param        to      query   string  false  "End of range, same formats"  example(2026-08-31)
// @Param        type    query   string  false  "Event type"  Enums(RUN_START,RUN_COMPLETE,RUN_ABORTED,PHASE,OVERRUN)
// @Param        run_id  query   string  false  "Only events of this run"
// @Success      200     {object}  map[string]interface{}  "count, events"
// @Failure      400     {object}  map[string]string
// @Failure      401     {object}  map[string]string
// @Failure      500     {object}  map[string]string
// @Router       /api/v1/logs [get]
// @Security     BearerAuth
func (h *Handler) getLogs(c *gin.Context) {
	f, err := logFilterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.listEvents(c, f)
}

// @Summary      Events of a run
// @Tags         runs
// @Produce      json
// @Param        id    path      string  true   "Run id"
// @Param        type  query     string  false  "Event type"  Enums(RUN_START,RUN_COMPLETE,RUN_ABORTED,PHASE,OVERRUN)
// @Success      200   {object}  map[string]interface{}  "count, events"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/runs/{id}/events [get]
// @Security     BearerAuth
func (h *Handler) getRunEvents(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.services.History.GetRun(c.Request.Context(), id); err != nil {
		h.runLoadError(c, err)
		return
	}
	h.listEvents(c, service.LogFilter{RunID: id, Type: c.Query("type")})
}
