// Package api exposes the minimal HTTP surface this module implements
// directly: a health check, a read-only challenge projection, and a
// websocket push of notifications for one challenge. The full trader-
// facing surface (auth, purchase, trading, payouts, admin, leaderboard)
// belongs to a separate HTTP service and is represented here only as the
// ChallengeReader/NotificationSink interfaces that service would depend
// on, grounded on the teacher's internal/api/handler.go Server shape.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simex888888-dotcom/prop-trading-app1/internal/ledger"
	"github.com/simex888888-dotcom/prop-trading-app1/internal/notify"
)

// ChallengeReader is the read-only projection a trader-facing HTTP
// service needs from this module's ledger.
type ChallengeReader interface {
	GetChallenge(ctx context.Context, id string) (*ledger.Challenge, error)
}

// NotificationSink is the push-delivery contract a trader-facing HTTP
// service depends on to relay violation/promotion/scaling events.
type NotificationSink interface {
	Subscribe(buffer int) (<-chan notify.Notification, func())
}

// Server wires the minimal HTTP surface to the ledger Store and the
// notification Bus.
type Server struct {
	Router *gin.Engine
	store  *ledger.Store
	bus    *notify.Bus
	limits *rateLimiters
}

// NewServer builds the router and registers routes.
func NewServer(store *ledger.Store, bus *notify.Bus, cfg RateLimitConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		Router: r,
		store:  store,
		bus:    bus,
		limits: newRateLimiters(cfg),
	}

	r.GET("/health", s.health)

	challenges := r.Group("/challenges", s.rateLimit(classStandard))
	challenges.GET("/:id", s.getChallenge)
	challenges.GET("/:id/violations", s.listViolations)

	r.GET("/ws/:challenge_id", s.rateLimit(classStandard), s.websocket)

	return s
}

// Start begins serving on addr (e.g. ":8080").
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
