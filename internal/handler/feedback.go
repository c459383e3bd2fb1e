package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Duinho/SignalWatch/internal/feedback"
	"github.com/Duinho/SignalWatch/internal/repository"
)

type FeedbackHandler struct {
	Service   *feedback.Service
	Consensus *feedback.Consensus
}

func (h *FeedbackHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/feedback")
	group.POST("/votes", h.submitVote)
	group.GET("/votes", h.listVotes)
	group.GET("/articles/summary", h.articleSummary)

	group.GET("/trust", h.listTrust)
	group.GET("/trust/:user", h.getTrust)
	group.PUT("/trust/:user", h.setTrust)
	group.DELETE("/trust/:user", h.clearTrust)

	group.GET("/tiers", h.listTiers)
	group.GET("/tiers/:user", h.getTier)
	group.PUT("/tiers/:user", h.setTier)
	group.POST("/tiers/auto-apply", h.autoApplyTiers)
	group.GET("/quality", h.testerQuality)

	group.GET("/rules", h.listRules)
	group.POST("/rules", h.applyRule)
	group.DELETE("/rules/:keyword", h.disableRule)
}

func (h *FeedbackHandler) submitVote(c *gin.Context) {
	var input feedback.VoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	vote, err := h.Service.SubmitVote(c.Request.Context(), input)
	if errors.Is(err, feedback.ErrInvalidVote) {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, vote, nil)
}

func (h *FeedbackHandler) listVotes(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListVotesParams{
		Limit:      limit,
		Offset:     offset,
		UserIDHash: strQueryPtr(c, "user"),
		StockCode:  strQueryPtr(c, "stock_code"),
		Label:      strQueryPtr(c, "label"),
	}
	if hours := intQuery(c, "hours", 0); hours > 0 {
		t := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
		params.Since = &t
	}
	items, err := h.Service.ListVotes(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *FeedbackHandler) articleSummary(c *gin.Context) {
	link := strings.TrimSpace(c.Query("link"))
	if link == "" {
		Error(c, http.StatusBadRequest, "link is required", nil)
		return
	}
	summary, err := h.Consensus.Article(c.Request.Context(), link)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, summary, nil)
}

// --- trust -------------------------------------------------------------------

func (h *FeedbackHandler) listTrust(c *gin.Context) {
	items, err := h.Service.ListTrustProfiles(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *FeedbackHandler) getTrust(c *gin.Context) {
	weight, source, err := h.Service.GetTrust(c.Request.Context(), c.Param("user"))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"user_id_hash": c.Param("user"), "weight": weight, "source": source}, nil)
}

func (h *FeedbackHandler) setTrust(c *gin.Context) {
	var body struct {
		Weight float64 `json:"weight"`
		Reason string  `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	err := h.Service.SetTrustOverride(c.Request.Context(), c.Param("user"), body.Weight, body.Reason)
	if errors.Is(err, feedback.ErrInvalidWeight) {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"user_id_hash": c.Param("user"), "weight": body.Weight}, nil)
}

func (h *FeedbackHandler) clearTrust(c *gin.Context) {
	err := h.Service.ClearTrustOverride(c.Request.Context(), c.Param("user"))
	if errors.Is(err, feedback.ErrInvalidWeight) {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"user_id_hash": c.Param("user")}, nil)
}

// --- tiers -------------------------------------------------------------------

func (h *FeedbackHandler) listTiers(c *gin.Context) {
	items, err := h.Service.ListTiers(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *FeedbackHandler) getTier(c *gin.Context) {
	tier, err := h.Service.GetTier(c.Request.Context(), c.Param("user"))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if tier == nil {
		Error(c, http.StatusNotFound, "tier not assigned", nil)
		return
	}
	Ok(c, tier, nil)
}

func (h *FeedbackHandler) setTier(c *gin.Context) {
	var body struct {
		Tier string `json:"tier"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	err := h.Service.SetTier(c.Request.Context(), c.Param("user"), body.Tier, "manual")
	if errors.Is(err, feedback.ErrInvalidTier) {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"user_id_hash": c.Param("user"), "tier": body.Tier}, nil)
}

func (h *FeedbackHandler) autoApplyTiers(c *gin.Context) {
	dryRun := boolQueryDefault(c, "dry_run", true)
	changes, err := h.Service.AutoApplyTiers(c.Request.Context(), dryRun)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, changes, map[string]any{"dry_run": dryRun, "count": len(changes)})
}

func (h *FeedbackHandler) testerQuality(c *gin.Context) {
	rows, err := h.Service.TesterQuality(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, rows, nil)
}

// --- keyword rules -----------------------------------------------------------

func (h *FeedbackHandler) listRules(c *gin.Context) {
	activeOnly := boolQueryDefault(c, "active", false)
	items, err := h.Service.ListKeywordRules(c.Request.Context(), activeOnly)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *FeedbackHandler) applyRule(c *gin.Context) {
	var body struct {
		Keyword  string `json:"keyword"`
		Polarity string `json:"polarity"`
		Weight   int    `json:"weight"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	err := h.Service.ApplyKeywordRule(c.Request.Context(), body.Keyword, body.Polarity, body.Weight)
	if errors.Is(err, feedback.ErrInvalidVote) {
		Error(c, http.StatusBadRequest, "invalid keyword rule", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"keyword": body.Keyword, "polarity": body.Polarity}, nil)
}

func (h *FeedbackHandler) disableRule(c *gin.Context) {
	err := h.Service.DisableKeywordRule(c.Request.Context(), c.Param("keyword"))
	if errors.Is(err, feedback.ErrInvalidVote) {
		Error(c, http.StatusBadRequest, "invalid keyword", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"keyword": c.Param("keyword"), "active": false}, nil)
}
