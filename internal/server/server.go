package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"lawdesk/internal/backup"
	"lawdesk/internal/config"
	"lawdesk/internal/database"
	"lawdesk/internal/docstore"
	"lawdesk/internal/models"
	"lawdesk/internal/permission"
	"lawdesk/internal/ratelimit"
	"lawdesk/internal/server/routes"
	"lawdesk/internal/storage"
	"lawdesk/internal/store"
)

type Server struct {
	config    *config.Config
	logger    *slog.Logger
	sqlDB     database.Service
	db        *models.DB
	store     *store.Store
	backup    *backup.Service
	s3Service *storage.S3Service
	limiter   *ratelimit.RateLimiter
	roles     permission.Table
}

type Options struct {
	// MemoryRecords keeps records in process memory instead of Postgres.
	// Accounts and teams still live in the database.
	MemoryRecords bool
	// Migrate applies pending migrations before serving.
	Migrate bool
}

func (s *Server) GetDB() *models.DB {
	return s.db
}

func (s *Server) GetDirectory() routes.Directory {
	return s.db
}

func (s *Server) GetStore() *store.Store {
	return s.store
}

func (s *Server) GetBackup() *backup.Service {
	return s.backup
}

func (s *Server) GetAttachments() routes.AttachmentStore {
	if s.s3Service == nil {
		return nil
	}
	return s.s3Service
}

func (s *Server) GetRateLimiter() *ratelimit.RateLimiter {
	return s.limiter
}

func (s *Server) GetRoles() permission.Table {
	return s.roles
}

func (s *Server) GetConfig() *config.Config {
	return s.config
}

func (s *Server) GetLogger() *slog.Logger {
	return s.logger
}

// New connects every backing service named in cfg. Object storage and Redis
// are optional.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Server, error) {
	roles, err := LoadRoles(cfg.RolesFile)
	if err != nil {
		return nil, err
	}

	sqlDB, err := database.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if opts.Migrate {
		if err := models.Migrate(sqlDB.DB()); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}
	db, err := models.NewDB(sqlDB.DB())
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	s := &Server{
		config: cfg,
		logger: logger,
		sqlDB:  sqlDB,
		db:     db,
		roles:  roles,
	}

	var backend docstore.Backend = db.Documents
	if opts.MemoryRecords {
		logger.Warn("records are kept in memory and are lost on exit")
		backend = docstore.NewMemory()
	}
	s.store = store.New(backend, store.WithLogger(logger))

	var snapshots backup.SnapshotStore
	if cfg.Storage.Enabled() {
		s.s3Service, err = storage.NewS3Service(ctx, cfg.Storage)
		if err != nil {
			s.Close()
			return nil, err
		}
		snapshots = s.s3Service
	} else {
		logger.Warn("object storage not configured, attachments and backup snapshots are disabled")
	}
	s.backup = backup.NewService(s.store, snapshots, backup.WithLogger(logger))

	if cfg.Redis.URL != "" {
		s.limiter, err = ratelimit.NewRateLimiter(ctx, cfg.Redis.URL)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

// LoadRoles reads the role table from path, or returns the built-in table
// when path is empty.
func LoadRoles(path string) (permission.Table, error) {
	roles, err := permission.LoadTableFile(path)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	return roles, nil
}

// NewServer declares the HTTP server around the router.
func (s *Server) NewServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

func (s *Server) Close() error {
	var errs []error
	if s.limiter != nil {
		errs = append(errs, s.limiter.Close())
	}
	if s.sqlDB != nil {
		errs = append(errs, s.sqlDB.Close())
	}
	return errors.Join(errs...)
}
