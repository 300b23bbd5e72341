// Package models holds the gorm models and managers behind teams and the
// Postgres document backend: users, teams, memberships, invitations and the
// documents table.
package models

import (
	"time"

	"github.com/google/uuid"

	"lawdesk/internal/permission"
)

// UserTeam is a team as seen from one of its members
type UserTeam struct {
	TeamID   uuid.UUID       `json:"team_id"`
	TeamName string          `json:"team_name"`
	TeamSlug string          `json:"team_slug"`
	Role     permission.Role `json:"role"`
	JoinedAt time.Time       `json:"joined_at"`
}

// TeamMember is a member view with user details and role
type TeamMember struct {
	ID        int              `json:"id"`
	Email     string           `json:"email"`
	Name      string           `json:"name"`
	AvatarURL string           `json:"avatar_url"`
	Role      permission.Role  `json:"role"`
	Status    MembershipStatus `json:"status"`
	JoinedAt  time.Time        `json:"joined_at"`
}

// InvitationPreview is what the recipient of an invitation link sees before
// accepting it
type InvitationPreview struct {
	ID          uuid.UUID        `json:"id"`
	TeamName    string           `json:"team_name"`
	TeamSlug    string           `json:"team_slug"`
	InviterName string           `json:"inviter_name"`
	Email       string           `json:"invitee_email"`
	Role        permission.Role  `json:"role"`
	Status      InvitationStatus `json:"status"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Expired     bool             `json:"expired"`
}

// Preview builds the recipient view of an invitation loaded by GetByToken.
func (ti *TeamInvitation) Preview(now time.Time) InvitationPreview {
	return InvitationPreview{
		ID:          ti.ID,
		TeamName:    ti.Team.Name,
		TeamSlug:    ti.Team.Slug,
		InviterName: ti.Inviter.Name,
		Email:       ti.InviteeEmail,
		Role:        ti.Role,
		Status:      ti.Status,
		ExpiresAt:   ti.ExpiresAt,
		Expired:     !now.Before(ti.ExpiresAt),
	}
}
