package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lawdesk/internal/permission"
)

// TeamMembership is the relationship between users and teams
type TeamMembership struct {
	ID        uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TeamID    uuid.UUID        `gorm:"type:uuid;not null" json:"team_id"`
	UserID    int              `gorm:"not null" json:"user_id"`
	Role      permission.Role  `gorm:"column:role;not null" json:"role"`
	Status    MembershipStatus `gorm:"column:status;default:'active'" json:"status"`
	InvitedBy *int             `gorm:"column:invited_by" json:"invited_by,omitempty"`
	InvitedAt *time.Time       `gorm:"column:invited_at" json:"invited_at,omitempty"`
	JoinedAt  time.Time        `gorm:"column:joined_at" json:"joined_at"`
	CreatedAt time.Time        `gorm:"column:created_at" json:"created_at"`
}

// TableName specifies the table name for the TeamMembership model
func (TeamMembership) TableName() string {
	return "team_memberships"
}

// BeforeCreate sets the joined_at timestamp if not set
func (tm *TeamMembership) BeforeCreate(tx *gorm.DB) error {
	if tm.JoinedAt.IsZero() {
		tm.JoinedAt = tx.NowFunc()
	}
	return nil
}

// IsActive checks if the membership is active
func (tm *TeamMembership) IsActive() bool {
	return tm.Status == StatusActive
}

// MembershipManager provides ORM methods for TeamMembership
type MembershipManager struct {
	db *gorm.DB
}

// NewMembershipManager creates a new MembershipManager instance
func NewMembershipManager(db *gorm.DB) *MembershipManager {
	return &MembershipManager{db: db}
}

// Get retrieves the membership of a user in a team
func (m *MembershipManager) Get(ctx context.Context, userID int, teamID uuid.UUID) (*TeamMembership, error) {
	return First[TeamMembership](m.db.WithContext(ctx), "user_id = ? AND team_id = ?", userID, teamID)
}

// RoleFor returns the user's role in the team. Missing or suspended
// memberships yield permission.ErrNotMember.
func (m *MembershipManager) RoleFor(ctx context.Context, userID int, teamID uuid.UUID) (permission.Role, error) {
	membership, err := m.Get(ctx, userID, teamID)
	if errors.Is(err, ErrNotFound) {
		return "", permission.ErrNotMember
	}
	if err != nil {
		return "", fmt.Errorf("load membership: %w", err)
	}
	if !membership.IsActive() {
		return "", permission.ErrNotMember
	}
	return membership.Role, nil
}

// Suspend suspends the membership without deleting it
func (m *MembershipManager) Suspend(ctx context.Context, userID int, teamID uuid.UUID) error {
	res := m.db.WithContext(ctx).Model(&TeamMembership{}).
		Where("user_id = ? AND team_id = ?", userID, teamID).
		Update("status", StatusSuspended)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
