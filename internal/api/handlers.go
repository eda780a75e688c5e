package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simex888888-dotcom/prop-trading-app1/internal/ledger"
)

// challengeView is the JSON projection of a ledger.Challenge; it omits
// encrypted credential fields outright rather than relying on the caller
// to avoid serializing them.
type challengeView struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	PlanID            string `json:"plan_id"`
	Status            string `json:"status"`
	Phase             int    `json:"phase"`
	Mode              string `json:"mode"`
	InitialBalance    string `json:"initial_balance"`
	CurrentBalance    string `json:"current_balance"`
	PeakEquity        string `json:"peak_equity"`
	DailyPnL          string `json:"daily_pnl"`
	TotalPnL          string `json:"total_pnl"`
	TradingDaysCount  int    `json:"trading_days_count"`
	ScalingStepsCount int    `json:"scaling_steps_count"`
}

func newChallengeView(c *ledger.Challenge) challengeView {
	return challengeView{
		ID: c.ID, UserID: c.UserID, PlanID: c.PlanID,
		Status: string(c.Status), Phase: c.Phase, Mode: string(c.Mode),
		InitialBalance:    c.InitialBalance.String(),
		CurrentBalance:    c.CurrentBalance.String(),
		PeakEquity:        c.PeakEquity.String(),
		DailyPnL:          c.DailyPnL.String(),
		TotalPnL:          c.TotalPnL.String(),
		TradingDaysCount:  c.TradingDaysCount,
		ScalingStepsCount: c.ScalingStepsCount,
	}
}

func (s *Server) getChallenge(c *gin.Context) {
	id := c.Param("id")
	chal, err := s.store.GetChallenge(c.Request.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "challenge not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": newChallengeView(chal)})
}

type violationView struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Value       string `json:"value"`
	Limit       string `json:"limit"`
	OccurredAt  string `json:"occurred_at"`
}

func (s *Server) listViolations(c *gin.Context) {
	id := c.Param("id")
	violations, err := s.store.ListViolations(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
		return
	}

	out := make([]violationView, 0, len(violations))
	for _, v := range violations {
		out = append(out, violationView{
			ID:          v.ID,
			Type:        string(v.Type),
			Description: v.Description,
			Value:       v.Value.String(),
			Limit:       v.Limit.String(),
			OccurredAt:  v.OccurredAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": out})
}
