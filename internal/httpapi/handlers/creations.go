package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/adforge/internal/common"
	"github.com/suPer8Hu/adforge/internal/creation"
)

func (h *Handler) ListCreations(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}

	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			common.Fail(c, http.StatusBadRequest, 10012, "invalid limit")
			return
		}
		limit = n
	}

	items, err := h.Creations.List(c.Request.Context(), uid, creation.ListOptions{
		Type:     c.Query("type"),
		Limit:    limit,
		BeforeID: c.Query("before"),
	})
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{"items": items})
}

func (h *Handler) GetCreation(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}

	item, err := h.Creations.Get(c.Request.Context(), uid, c.Param("id"))
	if errors.Is(err, creation.ErrNotFound) {
		common.Fail(c, http.StatusNotFound, 40404, "creation not found")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, item)
}

type ratingReq struct {
	Rating int `json:"rating" binding:"required"`
}

func (h *Handler) RateCreation(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}

	var req ratingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	err := h.Creations.Rate(c.Request.Context(), uid, c.Param("id"), req.Rating)
	switch {
	case errors.Is(err, creation.ErrInvalidRating):
		common.Fail(c, http.StatusBadRequest, 10013, err.Error())
		return
	case errors.Is(err, creation.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40404, "creation not found")
		return
	case err != nil:
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{"id": c.Param("id"), "rating": req.Rating})
}
