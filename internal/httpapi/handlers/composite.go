package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/adforge/internal/common"
	"github.com/suPer8Hu/adforge/internal/jobs"
)

type finalizeReq struct {
	Type   string                     `json:"type"`
	Input  map[string]json.RawMessage `json:"input"`
	Output map[string]json.RawMessage `json:"output"`
}

func (h *Handler) FinalizeComposite(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	adID := strings.TrimSpace(c.Param("adId"))
	if adID == "" {
		common.Fail(c, http.StatusBadRequest, 10011, "adId required")
		return
	}

	var req finalizeReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
			return
		}
	}

	id, err := h.Jobs.Finalize(c.Request.Context(), uid, adID, strings.TrimSpace(req.Type), req.Input, req.Output)
	if errors.Is(err, jobs.ErrNotFound) {
		common.Fail(c, http.StatusNotFound, 40403, "nothing to finalize for this ad")
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Str("ad_id", adID).Msg("finalize composite")
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to save ad, try again")
		return
	}
	common.OK(c, gin.H{"id": id})
}
