package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"lawdesk/internal/backup"
	"lawdesk/internal/config"
	"lawdesk/internal/database"
	"lawdesk/internal/models"
	"lawdesk/internal/permission"
	"lawdesk/internal/server"
	"lawdesk/internal/storage"
	"lawdesk/internal/store"
)

var logLevel string

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lawdesk",
		Short: "Back office for law firms: cases, calendar, finance and documents",
		Long: `lawdesk keeps a firm's cases, calendar, finance, documents and staff
directories, either privately per user or shared by a team with role-based
permissions.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newBackupCmd())
	rootCmd.AddCommand(newSummaryCmd())
	return rootCmd
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

// app is the set of services the maintenance commands share.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	sqlDB  database.Service
	db     *models.DB
	store  *store.Store
	backup *backup.Service
	roles  permission.Table
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	roles, err := server.LoadRoles(cfg.RolesFile)
	if err != nil {
		return nil, err
	}

	sqlDB, err := database.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	db, err := models.NewDB(sqlDB.DB())
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	st := store.New(db.Documents, store.WithLogger(logger))

	var snapshots backup.SnapshotStore
	if cfg.Storage.Enabled() {
		s3Service, err := storage.NewS3Service(ctx, cfg.Storage)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		snapshots = s3Service
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		sqlDB:  sqlDB,
		db:     db,
		store:  st,
		backup: backup.NewService(st, snapshots, backup.WithLogger(logger)),
		roles:  roles,
	}, nil
}

func (a *app) Close() error {
	return a.sqlDB.Close()
}

// contextFlags select the context a command acts in.
type contextFlags struct {
	userID int
	team   string
}

func (f *contextFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.userID, "user", 0, "id of the acting user")
	cmd.Flags().StringVar(&f.team, "team", "", "team slug; omit for the user's own context")
	_ = cmd.MarkFlagRequired("user")
}

// session signs the user in and switches to the team context when one was
// named. The returned gate answers what the user may do there.
func (f *contextFlags) session(ctx context.Context, a *app) (*store.Session, *permission.Gate, error) {
	if _, err := a.db.Users.Get(ctx, f.userID); err != nil {
		return nil, nil, fmt.Errorf("user %d: %w", f.userID, err)
	}

	session := a.store.NewSession()
	session.SignIn(f.userID)
	if f.team != "" {
		team, err := a.db.Teams.GetBySlug(ctx, f.team)
		if err != nil {
			return nil, nil, fmt.Errorf("team %q: %w", f.team, err)
		}
		session.SetActiveContext(team.ID)
	}

	gate, err := permission.ForScope(ctx, a.db, a.roles, session.Scope())
	if err != nil {
		return nil, nil, err
	}
	return session, gate, nil
}
