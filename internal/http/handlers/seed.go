package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/Super-Meta77/sefaria-backend/internal/http/response"
	"github.com/Super-Meta77/sefaria-backend/internal/modules/sugya"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
)

type SeedHandler struct {
	log   *logger.Logger
	store sugya.HeaderStore
	seeds []sugya.SeedSugya
}

func NewSeedHandler(log *logger.Logger, store sugya.HeaderStore, seeds []sugya.SeedSugya) *SeedHandler {
	return &SeedHandler{log: log, store: store, seeds: seeds}
}

// POST /api/sugya/seed
func (h *SeedHandler) Seed(c *gin.Context) {
	res := sugya.Seed(c.Request.Context(), h.log, h.store, h.seeds)
	response.RespondOK(c, gin.H{"success": len(res.Failed) == 0, "result": res})
}
