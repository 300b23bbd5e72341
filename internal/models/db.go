package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lawdesk/internal/permission"
)

// DB holds the database connection and all model managers
type DB struct {
	*gorm.DB
	Users       *UserManager
	Teams       *TeamManager
	Memberships *MembershipManager
	Invitations *InvitationManager
	Documents   *DocumentManager
}

// NewDB wraps an open *sql.DB (pgx stdlib) in gorm and builds the managers.
// Schema changes go through Migrate, not AutoMigrate.
func NewDB(sqlDB *sql.DB) (*DB, error) {
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return newDB(gormDB), nil
}

func newDB(gormDB *gorm.DB) *DB {
	return &DB{
		DB:          gormDB,
		Users:       NewUserManager(gormDB),
		Teams:       NewTeamManager(gormDB),
		Memberships: NewMembershipManager(gormDB),
		Invitations: NewInvitationManager(gormDB),
		Documents:   NewDocumentManager(gormDB),
	}
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// User, TeamBySlug, TeamsFor and RoleFor let the HTTP layer resolve the
// actor and its team without reaching into the managers.
func (db *DB) User(ctx context.Context, id int) (*User, error) {
	return db.Users.Get(ctx, id)
}

func (db *DB) TeamBySlug(ctx context.Context, slug string) (*Team, error) {
	return db.Teams.GetBySlug(ctx, slug)
}

func (db *DB) TeamsFor(ctx context.Context, userID int) ([]UserTeam, error) {
	return db.Teams.ListForUser(ctx, userID)
}

func (db *DB) RoleFor(ctx context.Context, userID int, teamID uuid.UUID) (permission.Role, error) {
	return db.Memberships.RoleFor(ctx, userID, teamID)
}

// First loads one row or returns ErrNotFound.
func First[T any](db *gorm.DB, conditions ...interface{}) (*T, error) {
	var obj T
	err := db.First(&obj, conditions...).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &obj, nil
}

// BulkCreate creates multiple records in batches
func BulkCreate[T any](db *gorm.DB, objects []T) error {
	if len(objects) == 0 {
		return nil
	}
	return db.CreateInBatches(objects, 100).Error
}

// Count returns the count of records matching conditions
func Count[T any](db *gorm.DB, conditions ...interface{}) (int64, error) {
	var count int64
	query := db.Model(new(T))
	if len(conditions) > 0 {
		query = query.Where(conditions[0], conditions[1:]...)
	}
	err := query.Count(&count).Error
	return count, err
}
