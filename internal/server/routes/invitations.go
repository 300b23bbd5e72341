package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lawdesk/internal/models"
	"lawdesk/internal/ratelimit"
)

type InvitationRoutes struct {
	server ServerInterface
}

func NewInvitationRoutes(server ServerInterface) *InvitationRoutes {
	return &InvitationRoutes{server: server}
}

func (ir *InvitationRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(ir.server)
	cfg := ir.server.GetConfig().Server
	limit := ir.server.GetRateLimiter().Middleware(ratelimit.ByClientIP("invitations"), cfg.RateLimit, cfg.RateWindow)

	r.GET("/invitations/:token", limit, ir.previewInvitationHandler)
	r.POST("/invitations/:token/accept", limit, middleware.AuthMiddleware(), ir.acceptTeamInvitationHandler)
	r.POST("/invitations/:token/decline", limit, middleware.AuthMiddleware(), ir.declineTeamInvitationHandler)
}

// outcomeStatus maps an invitation outcome onto the response status.
var outcomeStatus = map[models.InvitationOutcome]int{
	models.OutcomeAccepted:       http.StatusOK,
	models.OutcomeDeclined:       http.StatusOK,
	models.OutcomeNotFound:       http.StatusNotFound,
	models.OutcomeWrongRecipient: http.StatusForbidden,
	models.OutcomeExpired:        http.StatusGone,
	models.OutcomeNotPending:     http.StatusConflict,
}

var outcomeMessage = map[models.InvitationOutcome]string{
	models.OutcomeAccepted:       "Invitation accepted successfully",
	models.OutcomeDeclined:       "Invitation declined successfully",
	models.OutcomeNotFound:       "Invitation not found",
	models.OutcomeWrongRecipient: "This invitation is not for you",
	models.OutcomeExpired:        "Invitation has expired",
	models.OutcomeNotPending:     "Invitation has already been processed",
}

// previewInvitationHandler shows the recipient what they are invited to. It
// needs no session so the link works before signing in.
func (ir *InvitationRoutes) previewInvitationHandler(c *gin.Context) {
	invitation, err := ir.server.GetDB().Invitations.GetByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invitation not found"})
			return
		}
		respondError(c, ir.server.GetLogger(), err, "Failed to load invitation")
		return
	}

	c.JSON(http.StatusOK, gin.H{"invitation": invitation.Preview(time.Now())})
}

// acceptTeamInvitationHandler accepts a team invitation
func (ir *InvitationRoutes) acceptTeamInvitationHandler(c *gin.Context) {
	user := currentUser(c)

	outcome, err := ir.server.GetDB().Invitations.Accept(c.Request.Context(), c.Param("token"), user)
	if err != nil {
		respondError(c, ir.server.GetLogger(), err, "Failed to accept invitation")
		return
	}
	ir.respondOutcome(c, outcome)
}

// declineTeamInvitationHandler declines a team invitation
func (ir *InvitationRoutes) declineTeamInvitationHandler(c *gin.Context) {
	user := currentUser(c)

	outcome, err := ir.server.GetDB().Invitations.Decline(c.Request.Context(), c.Param("token"), user)
	if err != nil {
		respondError(c, ir.server.GetLogger(), err, "Failed to decline invitation")
		return
	}
	ir.respondOutcome(c, outcome)
}

func (ir *InvitationRoutes) respondOutcome(c *gin.Context, outcome models.InvitationOutcome) {
	status, ok := outcomeStatus[outcome]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := gin.H{"outcome": outcome}
	if status == http.StatusOK {
		body["message"] = outcomeMessage[outcome]
	} else {
		body["error"] = outcomeMessage[outcome]
	}
	c.JSON(status, body)
}
