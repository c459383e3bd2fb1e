package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Duinho/SignalWatch/internal/newsfeed"
)

type NewsHandler struct {
	Fetcher      newsfeed.Fetcher
	PreviewLimit int
}

func (h *NewsHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/news/:code", h.preview)
}

func (h *NewsHandler) preview(c *gin.Context) {
	if h.Fetcher == nil {
		Error(c, http.StatusInternalServerError, "fetcher unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", h.PreviewLimit)
	result, err := h.Fetcher.Fetch(c.Request.Context(), c.Param("code"), limit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, result, map[string]any{"origin": result.Origin, "stale": result.Stale})
}
