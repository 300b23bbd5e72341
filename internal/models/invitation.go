package models

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lawdesk/internal/permission"
)

// InvitationTTL is how long an invitation stays acceptable.
const InvitationTTL = 7 * 24 * time.Hour

// TeamInvitation is an invitation to join a team, resolved by its token
type TeamInvitation struct {
	ID           uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TeamID       uuid.UUID        `gorm:"type:uuid;not null" json:"team_id"`
	InviterID    int              `gorm:"not null" json:"inviter_id"`
	InviteeEmail string           `gorm:"not null" json:"invitee_email"`
	InviteeID    *int             `gorm:"column:invitee_id" json:"invitee_id,omitempty"`
	Role         permission.Role  `gorm:"column:role;not null" json:"role"`
	Status       InvitationStatus `gorm:"column:status;default:'pending'" json:"status"`
	Token        string           `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt    time.Time        `gorm:"not null" json:"expires_at"`
	CreatedAt    time.Time        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time        `gorm:"column:updated_at" json:"updated_at"`

	// Associations
	Team    Team `gorm:"foreignKey:TeamID" json:"team,omitempty"`
	Inviter User `gorm:"foreignKey:InviterID" json:"inviter,omitempty"`
}

// TableName specifies the table name for the TeamInvitation model
func (TeamInvitation) TableName() string {
	return "team_invitations"
}

// BeforeCreate generates a unique token and sets expiry
func (ti *TeamInvitation) BeforeCreate(tx *gorm.DB) error {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return err
	}
	ti.Token = hex.EncodeToString(tokenBytes)

	if ti.ExpiresAt.IsZero() {
		ti.ExpiresAt = tx.NowFunc().Add(InvitationTTL)
	}
	return nil
}

// Link is the URL a recipient opens to review the invitation.
func (ti *TeamInvitation) Link(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/invitations/" + ti.Token
}

// InvitationOutcome is the result of an accept or decline attempt.
type InvitationOutcome string

const (
	OutcomeAccepted       InvitationOutcome = "accepted"
	OutcomeDeclined       InvitationOutcome = "declined"
	OutcomeExpired        InvitationOutcome = "expired"
	OutcomeNotPending     InvitationOutcome = "not_pending"
	OutcomeNotFound       InvitationOutcome = "not_found"
	OutcomeWrongRecipient InvitationOutcome = "wrong_recipient"
)

// Check decides whether email may act on the invitation at now. An empty
// outcome means it may.
func (ti *TeamInvitation) Check(now time.Time, email string) InvitationOutcome {
	switch {
	case ti.Status != InvitationPending:
		return OutcomeNotPending
	case !now.Before(ti.ExpiresAt):
		return OutcomeExpired
	case !strings.EqualFold(strings.TrimSpace(email), ti.InviteeEmail):
		return OutcomeWrongRecipient
	}
	return ""
}

// InvitationManager provides ORM methods for TeamInvitation
type InvitationManager struct {
	db  *gorm.DB
	now func() time.Time
}

// NewInvitationManager creates a new InvitationManager instance
func NewInvitationManager(db *gorm.DB) *InvitationManager {
	return &InvitationManager{db: db, now: time.Now}
}

// Create invites email to the team with role. Existing members and
// addresses with a pending invitation are rejected.
func (m *InvitationManager) Create(ctx context.Context, teamID uuid.UUID, inviterID int, email string, role permission.Role) (*TeamInvitation, error) {
	if !slices.Contains(InvitableRoles, role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	email = strings.ToLower(strings.TrimSpace(email))

	invitation := &TeamInvitation{
		TeamID:       teamID,
		InviterID:    inviterID,
		InviteeEmail: email,
		Role:         role,
		Status:       InvitationPending,
		ExpiresAt:    m.now().Add(InvitationTTL),
	}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if user, err := First[User](tx, "email = ?", email); err == nil {
			members, err := Count[TeamMembership](tx, "team_id = ? AND user_id = ? AND status = ?", teamID, user.ID, StatusActive)
			if err != nil {
				return err
			}
			if members > 0 {
				return ErrAlreadyMember
			}
		}
		pending, err := Count[TeamInvitation](tx, "team_id = ? AND invitee_email = ? AND status = ? AND expires_at > ?",
			teamID, email, InvitationPending, m.now())
		if err != nil {
			return err
		}
		if pending > 0 {
			return ErrAlreadyInvited
		}
		return tx.Create(invitation).Error
	})
	if err != nil {
		return nil, err
	}
	return invitation, nil
}

// GetByToken resolves an invitation with its team and inviter
func (m *InvitationManager) GetByToken(ctx context.Context, token string) (*TeamInvitation, error) {
	return First[TeamInvitation](m.db.WithContext(ctx).Preload("Team").Preload("Inviter"), "token = ?", token)
}

// ListPending returns the team's invitations that can still be accepted
func (m *InvitationManager) ListPending(ctx context.Context, teamID uuid.UUID) ([]TeamInvitation, error) {
	invitations := []TeamInvitation{}
	err := m.db.WithContext(ctx).
		Where("team_id = ? AND status = ? AND expires_at > ?", teamID, InvitationPending, m.now()).
		Preload("Inviter").
		Order("created_at DESC").
		Find(&invitations).Error
	return invitations, err
}

// Accept joins user to the invitation's team. Anything but OutcomeAccepted
// leaves the database untouched.
func (m *InvitationManager) Accept(ctx context.Context, token string, user *User) (InvitationOutcome, error) {
	var outcome InvitationOutcome
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invitation, err := First[TeamInvitation](tx.Clauses(clause.Locking{Strength: "UPDATE"}), "token = ?", token)
		if errors.Is(err, ErrNotFound) {
			outcome = OutcomeNotFound
			return nil
		}
		if err != nil {
			return err
		}
		now := m.now()
		if outcome = invitation.Check(now, user.Email); outcome != "" {
			return nil
		}

		err = tx.Model(invitation).Updates(map[string]interface{}{
			"status":     InvitationAccepted,
			"invitee_id": user.ID,
		}).Error
		if err != nil {
			return err
		}

		membership := &TeamMembership{
			TeamID:    invitation.TeamID,
			UserID:    user.ID,
			Role:      invitation.Role,
			Status:    StatusActive,
			InvitedBy: &invitation.InviterID,
			InvitedAt: &invitation.CreatedAt,
			JoinedAt:  now,
		}
		// A suspended or removed member comes back with the invited role.
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "team_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "status", "invited_by", "invited_at", "joined_at"}),
		}).Create(membership).Error
		if err != nil {
			return err
		}
		outcome = OutcomeAccepted
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("accept invitation: %w", err)
	}
	return outcome, nil
}

// Decline marks the invitation declined on behalf of its recipient.
func (m *InvitationManager) Decline(ctx context.Context, token string, user *User) (InvitationOutcome, error) {
	invitation, err := First[TeamInvitation](m.db.WithContext(ctx), "token = ?", token)
	if errors.Is(err, ErrNotFound) {
		return OutcomeNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("decline invitation: %w", err)
	}
	if outcome := invitation.Check(m.now(), user.Email); outcome != "" {
		return outcome, nil
	}
	res := m.db.WithContext(ctx).Model(invitation).
		Where("status = ?", InvitationPending).
		Updates(map[string]interface{}{"status": InvitationDeclined, "invitee_id": user.ID})
	if res.Error != nil {
		return "", fmt.Errorf("decline invitation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return OutcomeNotPending, nil
	}
	return OutcomeDeclined, nil
}

// Cancel withdraws a pending invitation of the team. It reports false when
// no pending invitation with that id exists.
func (m *InvitationManager) Cancel(ctx context.Context, teamID, id uuid.UUID) (bool, error) {
	res := m.db.WithContext(ctx).Model(&TeamInvitation{}).
		Where("id = ? AND team_id = ? AND status = ?", id, teamID, InvitationPending).
		Update("status", InvitationCancelled)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
