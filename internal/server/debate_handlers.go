package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/foremanhq/foreman/internal/common/errors"
	"github.com/foremanhq/foreman/internal/debate"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

// StartDebate launches a background debate session.
// POST /api/v1/debate/start
func (h *Handler) StartDebate(c *gin.Context) {
	var req DebateStartRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperrors.Validation(err.Error()))
			return
		}
	}

	session, err := h.core.Debate.Start(h.core.BaseCtx, req.Topics, req.Agents)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"status":     string(session.Status),
		"topics":     len(session.Topics),
		"agents":     len(session.Agents),
		"message":    "Debate started in background. Poll /debate/{id} for status.",
	})
}

// GetDebate returns session status with a per-topic progress summary.
// GET /api/v1/debate/:sessionId
func (h *Handler) GetDebate(c *gin.Context) {
	session, err := h.core.Debate.Get(c.Param("sessionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, debateSummary(session, true))
}

// DebateReport renders the full markdown report of a finished session.
// GET /api/v1/debate/:sessionId/report
func (h *Handler) DebateReport(c *gin.Context) {
	session, err := h.core.Debate.Get(c.Param("sessionId"))
	if err != nil {
		respondError(c, err)
		return
	}

	if session.Status != v1.DebateStatusCompleted && session.Status != v1.DebateStatusFailed {
		c.JSON(http.StatusOK, gin.H{
			"status":           string(session.Status),
			"message":          "Debate still in progress. Check back later.",
			"completed_topics": len(session.Results),
			"total_topics":     len(session.Topics),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"status":     string(session.Status),
		"report":     debate.Report(session),
	})
}

// DebateHistory lists all sessions plus the standing panel and agenda.
// GET /api/v1/debate/history
func (h *Handler) DebateHistory(c *gin.Context) {
	sessions := h.core.Debate.History()
	summaries := make([]gin.H, len(sessions))
	for i, s := range sessions {
		summaries[i] = debateSummary(s, false)
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions":         summaries,
		"available_agents": debate.StaffNames(debate.DefaultStaff),
		"default_topics":   debate.DefaultTopics,
	})
}

func debateSummary(s *v1.DebateSession, detail bool) gin.H {
	summary := gin.H{
		"id":               s.ID,
		"topics":           s.Topics,
		"agents":           s.Agents,
		"status":           string(s.Status),
		"started_at":       s.StartedAt,
		"completed_at":     s.CompletedAt,
		"topic_count":      len(s.Topics),
		"completed_topics": len(s.Results),
		"error":            s.Error,
	}
	if detail && len(s.Results) > 0 {
		progress := make([]gin.H, len(s.Results))
		for i, r := range s.Results {
			progress[i] = gin.H{
				"topic":        r.Topic,
				"analyses":     len(r.Analyses),
				"rebuttals":    len(r.Rebuttals),
				"votes":        len(r.Votes),
				"action_items": len(r.ActionItems),
			}
		}
		summary["completed_topics_detail"] = progress
	}
	return summary
}
