package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lawdesk/internal/models"
	"lawdesk/internal/permission"
)

type TeamRoutes struct {
	server ServerInterface
}

func NewTeamRoutes(server ServerInterface) *TeamRoutes {
	return &TeamRoutes{server: server}
}

func (tr *TeamRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(tr.server)

	r.GET("/teams", middleware.AuthMiddleware(), tr.getUserTeamsHandler)
	r.POST("/teams", middleware.AuthMiddleware(), tr.createTeamHandler)

	team := r.Group("/teams/:slug", middleware.AuthMiddleware(), middleware.TeamMiddleware())
	{
		team.GET("", tr.getTeamHandler)
		team.GET("/members", permission.Guard(tr.getTeamMembersHandler, permission.ModuleTeam, permission.ActionView, denied))
		team.PUT("/members/:userID/role", permission.Guard(tr.updateMemberRoleHandler, permission.ModuleTeam, permission.ActionEdit, denied))
		team.POST("/members/:userID/suspend", permission.Guard(tr.suspendMemberHandler, permission.ModuleTeam, permission.ActionEdit, denied))
		team.DELETE("/members/:userID", tr.removeMemberHandler)
		team.POST("/invitations", permission.Guard(tr.inviteToTeamHandler, permission.ModuleTeam, permission.ActionCreate, denied))
		team.GET("/invitations", permission.Guard(tr.getTeamPendingInvitationsHandler, permission.ModuleTeam, permission.ActionView, denied))
		team.DELETE("/invitations/:invitationID", permission.Guard(tr.cancelInvitationHandler, permission.ModuleTeam, permission.ActionDelete, denied))
	}
}

func currentTeam(c *gin.Context) *models.Team {
	return c.MustGet(teamKey).(*models.Team)
}

// getUserTeamsHandler returns all teams for the authenticated user
func (tr *TeamRoutes) getUserTeamsHandler(c *gin.Context) {
	user := currentUser(c)

	teams, err := tr.server.GetDirectory().TeamsFor(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, tr.server.GetLogger(), err, "Failed to fetch teams")
		return
	}

	c.JSON(http.StatusOK, gin.H{"teams": teams})
}

// createTeamHandler creates a team owned by the authenticated user
func (tr *TeamRoutes) createTeamHandler(c *gin.Context) {
	user := currentUser(c)

	var req struct {
		Name        string `json:"name" binding:"required,min=1,max=100"`
		Description string `json:"description" binding:"max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	team := &models.Team{Name: req.Name, Description: req.Description, IsActive: true}
	if err := tr.server.GetDB().Teams.CreateWithOwner(c.Request.Context(), team, user.ID); err != nil {
		respondError(c, tr.server.GetLogger(), err, "Failed to create team")
		return
	}

	tr.server.GetLogger().InfoContext(c.Request.Context(), "team created", "team_id", team.ID, "slug", team.Slug, "owner_id", user.ID)
	c.JSON(http.StatusCreated, gin.H{"team": team})
}

// getTeamHandler returns the team with the caller's role and capabilities
func (tr *TeamRoutes) getTeamHandler(c *gin.Context) {
	gate := currentGate(c)
	c.JSON(http.StatusOK, gin.H{
		"team":         currentTeam(c),
		"role":         gate.Role(),
		"capabilities": gate.All(),
	})
}

// getTeamMembersHandler returns all members of a team
func (tr *TeamRoutes) getTeamMembersHandler(c *gin.Context) {
	members, err := tr.server.GetDB().Teams.Members(c.Request.Context(), currentTeam(c).ID)
	if err != nil {
		respondError(c, tr.server.GetLogger(), err, "Failed to fetch team members")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"members": members,
		"total":   len(members),
	})
}

func memberID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("userID"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return 0, false
	}
	return id, true
}

// ownerGuard rejects changes to an owner, or grants of the owner role, by
// anyone who is not an owner.
func (tr *TeamRoutes) ownerGuard(c *gin.Context, userID int, role permission.Role) bool {
	if currentGate(c).Role() == permission.RoleOwner {
		return true
	}
	target, err := tr.server.GetDirectory().RoleFor(c.Request.Context(), userID, currentTeam(c).ID)
	if errors.Is(err, permission.ErrNotMember) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found in team"})
		return false
	}
	if err != nil {
		respondError(c, tr.server.GetLogger(), err, "Failed to load member")
		return false
	}
	if target == permission.RoleOwner || role == permission.RoleOwner {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only team owners can manage owner roles"})
		return false
	}
	return true
}

// updateMemberRoleHandler updates a member's role
func (tr *TeamRoutes) updateMemberRoleHandler(c *gin.Context) {
	userID, ok := memberID(c)
	if !ok {
		return
	}

	var req struct {
		Role permission.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role. Must be owner, admin, editor, or viewer"})
		return
	}
	if !tr.ownerGuard(c, userID, req.Role) {
		return
	}

	err := tr.server.GetDB().Teams.UpdateMemberRole(c.Request.Context(), currentTeam(c).ID, userID, req.Role)
	if err != nil {
		respondError(c, tr.server.GetLogger(), err, "Failed to update member role")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member role updated successfully"})
}

// suspendMemberHandler revokes a member's access without deleting the
// membership
func (tr *TeamRoutes) suspendMemberHandler(c *gin.Context) {
	userID, ok := memberID(c)
	if !ok {
		return
	}
	if userID == currentUser(c).ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot suspend yourself"})
		return
	}
	if !tr.ownerGuard(c, userID, "") {
		return
	}

	if err := tr.server.GetDB().Memberships.Suspend(c.Request.Context(), userID, currentTeam(c).ID); err != nil {
		respondError(c, tr.server.GetLogger(), err, "Failed to suspend member")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member suspended successfully"})
}

// removeMemberHandler removes a member from the team. Members may always
// leave; removing someone else needs delete rights on the team module.
func (tr *TeamRoutes) removeMemberHandler(c *gin.Context) {
	userID, ok := memberID(c)
	if !ok {
		return
	}
	if userID != currentUser(c).ID {
		if !currentGate(c).Can(permission.ModuleTeam, permission.ActionDelete) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions to remove members"})
			return
		}
		if !tr.ownerGuard(c, userID, "") {
			return
		}
	}

	err := tr.server.GetDB().Teams.RemoveMember(c.Request.Context(), currentTeam(c).ID, userID)
	if err != nil {
		respondError(c, tr.server.GetLogger(), err, "Failed to remove member")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member removed successfully"})
}

// inviteToTeamHandler invites a user to a team by email
func (tr *TeamRoutes) inviteToTeamHandler(c *gin.Context) {
	user := currentUser(c)
	team := currentTeam(c)

	var req struct {
		Email string          `json:"email" binding:"required,email"`
		Role  permission.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	invitation, err := tr.server.GetDB().Invitations.Create(c.Request.Context(), team.ID, user.ID, req.Email, req.Role)
	if err != nil {
		respondError(c, tr.server.GetLogger(), err, "Failed to send invitation")
		return
	}

	tr.server.GetLogger().InfoContext(c.Request.Context(), "invitation created",
		"team_id", team.ID, "invitation_id", invitation.ID, "role", invitation.Role)
	c.JSON(http.StatusCreated, gin.H{
		"invitation": invitation,
		"link":       invitation.Link(tr.server.GetConfig().Server.FrontendURL),
	})
}

// getTeamPendingInvitationsHandler returns pending invitations for a team
func (tr *TeamRoutes) getTeamPendingInvitationsHandler(c *gin.Context) {
	invitations, err := tr.server.GetDB().Invitations.ListPending(c.Request.Context(), currentTeam(c).ID)
	if err != nil {
		respondError(c, tr.server.GetLogger(), err, "Failed to fetch pending invitations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invitations": invitations,
		"total":       len(invitations),
	})
}

// cancelInvitationHandler cancels a pending invitation
func (tr *TeamRoutes) cancelInvitationHandler(c *gin.Context) {
	invitationID, err := uuid.Parse(c.Param("invitationID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invitation ID"})
		return
	}

	cancelled, err := tr.server.GetDB().Invitations.Cancel(c.Request.Context(), currentTeam(c).ID, invitationID)
	if err != nil {
		respondError(c, tr.server.GetLogger(), err, "Failed to cancel invitation")
		return
	}
	if !cancelled {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invitation not found or already processed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Invitation cancelled successfully"})
}
