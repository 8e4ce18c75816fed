package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/adforge/internal/assets"
	"github.com/suPer8Hu/adforge/internal/common"
	"github.com/suPer8Hu/adforge/internal/jobs"
)

// StartAsset validates the body for def and queues a generation job.
func (h *Handler) StartAsset(def assets.Definition) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := mustUser(c)
		if !ok {
			return
		}

		in := def.NewInput()
		if err := c.ShouldBindJSON(in); err != nil {
			common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
			return
		}
		if err := in.Validate(); err != nil {
			common.Fail(c, http.StatusBadRequest, 10010, err.Error())
			return
		}

		token, err := h.Jobs.Start(c.Request.Context(), uid, def.Name, in)
		if errors.Is(err, jobs.ErrRateLimited) {
			common.Fail(c, http.StatusTooManyRequests, 42900, "too many generation requests, slow down")
			return
		}
		if err != nil {
			h.Log.Error().Err(err).Str("asset", def.Name).Uint64("user_id", uid).Msg("start job")
			common.Fail(c, http.StatusInternalServerError, 50001, "failed to start job")
			return
		}
		common.Accepted(c, gin.H{"token": token})
	}
}

func (h *Handler) QueryAsset(def assets.Definition) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := mustUser(c)
		if !ok {
			return
		}

		res, err := h.Jobs.Query(c.Request.Context(), uid, def.Name, c.Param("token"))
		if errors.Is(err, jobs.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		if err != nil {
			h.Log.Error().Err(err).Str("asset", def.Name).Msg("query job")
			common.Fail(c, http.StatusInternalServerError, 50001, "failed to load job")
			return
		}
		common.OK(c, res)
	}
}

// EndAsset consumes a finished job: the payload on success, the stored error
// on failure, 202 while the worker is still running.
func (h *Handler) EndAsset(def assets.Definition) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := mustUser(c)
		if !ok {
			return
		}

		res, err := h.Jobs.End(c.Request.Context(), uid, def.Name, c.Param("token"))
		var jobErr *jobs.JobError
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		case errors.As(err, &jobErr):
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    50010,
				"message": "generation failed",
				"data":    gin.H{"error": jobErr.Message},
			})
			return
		case err != nil:
			h.Log.Error().Err(err).Str("asset", def.Name).Uint64("user_id", uid).Msg("end job")
			common.Fail(c, http.StatusInternalServerError, 50001, "failed to save results, try again")
			return
		}

		if res.Pending {
			common.Accepted(c, gin.H{"status": jobs.StatusProcessing, "progress": res.Progress})
			return
		}
		common.OK(c, gin.H{"response": res.Response})
	}
}
