package models

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lawdesk/internal/permission"
)

// Team is a shared context. Its records live under the teams/{id} namespace.
type Team struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	Slug        string    `gorm:"column:slug;uniqueIndex;not null" json:"slug"`
	Description string    `gorm:"column:description" json:"description"`
	Settings    JSONB     `gorm:"column:settings;type:jsonb;default:'{}'" json:"settings"`
	IsActive    bool      `gorm:"column:is_active;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`

	// Associations
	Memberships []TeamMembership `gorm:"foreignKey:TeamID" json:"memberships,omitempty"`
}

// TableName specifies the table name for the Team model
func (Team) TableName() string {
	return "teams"
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// BeforeCreate derives a unique slug from the name when none is set
func (t *Team) BeforeCreate(tx *gorm.DB) error {
	if t.Slug != "" {
		return nil
	}
	base := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(t.Name), "-"), "-")
	if len(base) > 32 {
		base = strings.TrimRight(base[:32], "-")
	}
	for attempts := 0; attempts < 100; attempts++ {
		slug := generateSlug(6)
		if base != "" {
			slug = base + "-" + slug
		}
		var count int64
		if err := tx.Model(&Team{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			t.Slug = slug
			return nil
		}
	}
	return errors.New("could not generate unique slug")
}

// generateSlug generates a random alphanumeric string of given length
func generateSlug(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, length)
	rand.Read(b)
	for i := range b {
		b[i] = charset[b[i]%byte(len(charset))]
	}
	return string(b)
}

// TeamManager provides ORM methods for Team
type TeamManager struct {
	db *gorm.DB
}

// NewTeamManager creates a new TeamManager instance
func NewTeamManager(db *gorm.DB) *TeamManager {
	return &TeamManager{db: db}
}

// CreateWithOwner creates the team and the owner's membership atomically
func (m *TeamManager) CreateWithOwner(ctx context.Context, team *Team, ownerID int) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(team).Error; err != nil {
			return fmt.Errorf("create team: %w", err)
		}
		membership := &TeamMembership{
			TeamID: team.ID,
			UserID: ownerID,
			Role:   permission.RoleOwner,
			Status: StatusActive,
		}
		if err := tx.Create(membership).Error; err != nil {
			return fmt.Errorf("create owner membership: %w", err)
		}
		return nil
	})
}

// GetBySlug retrieves an active team by slug
func (m *TeamManager) GetBySlug(ctx context.Context, slug string) (*Team, error) {
	return First[Team](m.db.WithContext(ctx), "slug = ? AND is_active = ?", slug, true)
}

// ListForUser returns the active teams the user belongs to, with the user's
// role in each.
func (m *TeamManager) ListForUser(ctx context.Context, userID int) ([]UserTeam, error) {
	userTeams := []UserTeam{}
	query := `
		SELECT
			t.id as team_id,
			t.name as team_name,
			t.slug as team_slug,
			tm.role,
			tm.joined_at
		FROM team_memberships tm
		JOIN teams t ON tm.team_id = t.id
		WHERE tm.user_id = ?
		AND tm.status = ?
		AND t.is_active = true
		ORDER BY tm.joined_at ASC`

	err := m.db.WithContext(ctx).Raw(query, userID, StatusActive).Scan(&userTeams).Error
	return userTeams, err
}

// Members retrieves all active members with their roles
func (m *TeamManager) Members(ctx context.Context, teamID uuid.UUID) ([]TeamMember, error) {
	members := []TeamMember{}
	query := `
		SELECT u.id, u.email, u.name, u.avatar_url,
			   tm.role, tm.status, tm.joined_at
		FROM users u
		JOIN team_memberships tm ON u.id = tm.user_id
		WHERE tm.team_id = ? AND tm.status = ?
		ORDER BY tm.joined_at ASC
	`
	err := m.db.WithContext(ctx).Raw(query, teamID, StatusActive).Scan(&members).Error
	return members, err
}

// UpdateMemberRole changes a member's role. The last owner cannot be
// demoted.
func (m *TeamManager) UpdateMemberRole(ctx context.Context, teamID uuid.UUID, userID int, role permission.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		membership, err := First[TeamMembership](tx, "team_id = ? AND user_id = ?", teamID, userID)
		if err != nil {
			return err
		}
		if membership.Role == permission.RoleOwner && role != permission.RoleOwner {
			if err := validateOwnerRemoval(tx, teamID, userID); err != nil {
				return err
			}
		}
		membership.Role = role
		return tx.Save(membership).Error
	})
}

// RemoveMember deletes the membership. The last owner cannot leave.
func (m *TeamManager) RemoveMember(ctx context.Context, teamID uuid.UUID, userID int) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		membership, err := First[TeamMembership](tx, "team_id = ? AND user_id = ?", teamID, userID)
		if err != nil {
			return err
		}
		if membership.Role == permission.RoleOwner {
			if err := validateOwnerRemoval(tx, teamID, userID); err != nil {
				return err
			}
		}
		return tx.Delete(membership).Error
	})
}

// validateOwnerRemoval ensures the team keeps at least one other owner
func validateOwnerRemoval(tx *gorm.DB, teamID uuid.UUID, userID int) error {
	owners, err := Count[TeamMembership](tx, "team_id = ? AND role = ? AND status = ? AND user_id != ?",
		teamID, permission.RoleOwner, StatusActive, userID)
	if err != nil {
		return err
	}
	if owners == 0 {
		return ErrLastOwner
	}
	return nil
}
