package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// User is a signed-in account. Its integer ID is the actor id stamped on
// every record.
type User struct {
	ID         int       `gorm:"primaryKey;column:id" json:"id"`
	Provider   string    `gorm:"column:provider;not null" json:"provider"`
	ProviderID string    `gorm:"column:provider_id;not null" json:"provider_id"`
	Email      string    `gorm:"column:email;uniqueIndex;not null" json:"email"`
	Name       string    `gorm:"column:name;not null" json:"name"`
	AvatarURL  string    `gorm:"column:avatar_url" json:"avatar_url"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`

	// Associations
	Memberships []TeamMembership `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// UserManager provides ORM methods for User
type UserManager struct {
	db *gorm.DB
}

// NewUserManager creates a new UserManager instance
func NewUserManager(db *gorm.DB) *UserManager {
	return &UserManager{db: db}
}

// Upsert finds the user by provider identity, refreshing the profile fields,
// or creates it. It reports whether a row was created.
func (m *UserManager) Upsert(ctx context.Context, user *User) (bool, error) {
	var existing User
	err := m.db.WithContext(ctx).
		Where("provider = ? AND provider_id = ?", user.Provider, user.ProviderID).
		First(&existing).Error
	switch {
	case err == nil:
		existing.Email = user.Email
		existing.Name = user.Name
		existing.AvatarURL = user.AvatarURL
		if err := m.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return false, err
		}
		*user = existing
		return false, nil
	case err == gorm.ErrRecordNotFound:
		if err := m.db.WithContext(ctx).Create(user).Error; err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, err
	}
}

// Get retrieves a user by ID
func (m *UserManager) Get(ctx context.Context, id int) (*User, error) {
	return First[User](m.db.WithContext(ctx), id)
}

// GetByEmail retrieves a user by email
func (m *UserManager) GetByEmail(ctx context.Context, email string) (*User, error) {
	return First[User](m.db.WithContext(ctx), "email = ?", email)
}
