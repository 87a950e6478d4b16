package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Super-Meta77/sefaria-backend/internal/http/response"
	"github.com/Super-Meta77/sefaria-backend/internal/services"
)

var errInvalidLimit = errors.New("limit must be a positive integer")

type ExtractionHandler struct {
	runs services.ExtractionRunService
}

func NewExtractionHandler(runs services.ExtractionRunService) *ExtractionHandler {
	return &ExtractionHandler{runs: runs}
}

type extractRequest struct {
	Tractate  string `json:"tractate"`
	StartPage string `json:"start_page"`
	Limit     int    `json:"limit"`
	Async     bool   `json:"async"`
}

type extractAllRequest struct {
	LimitPerTractate int  `json:"limit_per_tractate"`
	Async            bool `json:"async"`
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// POST /api/sugya/extract
func (h *ExtractionHandler) Extract(c *gin.Context) {
	var req extractRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	params := services.ExtractOneParams{Tractate: req.Tractate, StartPage: req.StartPage, Limit: req.Limit}
	if req.Async {
		run, err := h.runs.StartOne(c.Request.Context(), params)
		if err != nil {
			response.RespondAPIError(c, "start_extraction_failed", err)
			return
		}
		response.RespondAccepted(c, gin.H{"run": run})
		return
	}
	stats, err := h.runs.ExtractOne(c.Request.Context(), params)
	if err != nil {
		response.RespondAPIError(c, "extraction_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"success": true, "stats": stats})
}

// POST /api/sugya/extract-all
func (h *ExtractionHandler) ExtractAll(c *gin.Context) {
	var req extractAllRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	params := services.ExtractAllParams{LimitPerTractate: req.LimitPerTractate}
	if req.Async {
		run, err := h.runs.StartAll(c.Request.Context(), params)
		if err != nil {
			response.RespondAPIError(c, "start_extraction_failed", err)
			return
		}
		response.RespondAccepted(c, gin.H{"run": run})
		return
	}
	sum, err := h.runs.ExtractAll(c.Request.Context(), params)
	if err != nil {
		response.RespondAPIError(c, "extraction_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"success": true, "summary": sum})
}

// GET /api/sugya/runs/:id
func (h *ExtractionHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	run, err := h.runs.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, "load_run_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"run": run})
}

// GET /api/sugya/runs[?limit=n]
func (h *ExtractionHandler) ListRuns(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", errInvalidLimit)
			return
		}
		limit = n
	}
	out, err := h.runs.List(c.Request.Context(), limit)
	if err != nil {
		response.RespondAPIError(c, "list_runs_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"runs": out})
}
