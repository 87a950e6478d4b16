package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Super-Meta77/sefaria-backend/internal/http/response"
	"github.com/Super-Meta77/sefaria-backend/internal/services"
)

type SugyaHandler struct {
	reader services.SugyaReader
}

func NewSugyaHandler(reader services.SugyaReader) *SugyaHandler {
	return &SugyaHandler{reader: reader}
}

// GET /api/sugya
func (h *SugyaHandler) ListSugyot(c *gin.Context) {
	out, err := h.reader.List(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, "list_sugyot_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"sugyot": out})
}

// GET /api/sugya/:ref
func (h *SugyaHandler) GetStructure(c *gin.Context) {
	st, err := h.reader.Structure(c.Request.Context(), c.Param("ref"))
	if err != nil {
		response.RespondAPIError(c, "load_sugya_failed", err)
		return
	}
	response.RespondOK(c, st)
}

// GET /api/sugya/:ref/flow
func (h *SugyaHandler) GetFlow(c *gin.Context) {
	flow, err := h.reader.Flow(c.Request.Context(), c.Param("ref"))
	if err != nil {
		response.RespondAPIError(c, "load_flow_failed", err)
		return
	}
	response.RespondOK(c, flow)
}

// GET /api/sugya/:ref/texts[?limit=n]
func (h *SugyaHandler) GetTexts(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", errInvalidLimit)
			return
		}
		limit = n
	}
	texts, err := h.reader.Texts(c.Request.Context(), c.Param("ref"), limit)
	if err != nil {
		response.RespondAPIError(c, "load_texts_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"ref": c.Param("ref"), "texts": texts})
}
