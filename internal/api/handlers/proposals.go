package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mosas2000/sprintfund/internal/models"
)

// ProposalsResponse wraps the proposal list with snapshot provenance.
type ProposalsResponse struct {
	Proposals   []models.ProposalMetric `json:"proposals"`
	Total       int                     `json:"total"`
	RefreshedAt time.Time               `json:"refreshed_at"`
}

// VotersResponse wraps the voter list with snapshot provenance.
type VotersResponse struct {
	Voters      []models.VoterMetric `json:"voters"`
	Total       int                  `json:"total"`
	RefreshedAt time.Time            `json:"refreshed_at"`
}

// GetProposals returns the enriched proposal set from the latest snapshot.
// Supports ?category=, ?executed=true|false and ?limit= filters.
func (h *Handler) GetProposals(c *gin.Context) {
	snapshot, ok := h.snapshotOr503(c)
	if !ok {
		return
	}

	proposals := snapshot.Proposals

	if category := c.Query("category"); category != "" {
		filtered := make([]models.ProposalMetric, 0, len(proposals))
		for _, p := range proposals {
			if string(p.Category) == category {
				filtered = append(filtered, p)
			}
		}
		proposals = filtered
	}

	if executed := c.Query("executed"); executed != "" {
		want, err := strconv.ParseBool(executed)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "executed must be true or false"})
			return
		}
		filtered := make([]models.ProposalMetric, 0, len(proposals))
		for _, p := range proposals {
			if p.Executed == want {
				filtered = append(filtered, p)
			}
		}
		proposals = filtered
	}

	total := len(proposals)
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		if limit < len(proposals) {
			proposals = proposals[:limit]
		}
	}

	c.JSON(http.StatusOK, ProposalsResponse{
		Proposals:   proposals,
		Total:       total,
		RefreshedAt: snapshot.RefreshedAt,
	})
}

// GetVoters returns per-voter participation summaries from the latest
// snapshot, sorted by address.
func (h *Handler) GetVoters(c *gin.Context) {
	snapshot, ok := h.snapshotOr503(c)
	if !ok {
		return
	}

	voters := snapshot.Voters
	total := len(voters)

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		if limit < len(voters) {
			voters = voters[:limit]
		}
	}

	c.JSON(http.StatusOK, VotersResponse{
		Voters:      voters,
		Total:       total,
		RefreshedAt: snapshot.RefreshedAt,
	})
}
