package models

import (
	"errors"

	"lawdesk/internal/permission"
)

// Custom types matching the CHECK constraints in the migrations
type MembershipStatus string
type InvitationStatus string

const (
	// Membership Status
	StatusActive    MembershipStatus = "active"
	StatusSuspended MembershipStatus = "suspended"

	// Invitation Status
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationDeclined  InvitationStatus = "declined"
	InvitationCancelled InvitationStatus = "cancelled"
)

// Roles a membership can hold. Owners are created with the team; invitations
// grant one of the others.
var InvitableRoles = []permission.Role{permission.RoleAdmin, permission.RoleEditor, permission.RoleViewer}

var (
	ErrNotFound       = errors.New("record not found")
	ErrLastOwner      = errors.New("team must have at least one owner")
	ErrAlreadyMember  = errors.New("user is already a member of this team")
	ErrAlreadyInvited = errors.New("invitation already sent to this email")
	ErrInvalidRole    = errors.New("invalid role")
)
