package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"lawdesk/internal/backup"
	"lawdesk/internal/permission"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or import a whole context as one JSON document",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.AddCommand(newBackupExportCmd())
	cmd.AddCommand(newBackupImportCmd())
	return cmd
}

func newBackupExportCmd() *cobra.Command {
	var (
		flags  contextFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every record of the context to a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			session, gate, err := flags.session(ctx, a)
			if err != nil {
				return err
			}

			res := gate.Run(ctx, permission.ModuleBackup, permission.ActionView, func(ctx context.Context) error {
				snap, err := a.backup.Export(ctx, session.Scope())
				if err != nil {
					return err
				}

				var w io.Writer = cmd.OutOrStdout()
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("create %s: %w", output, err)
					}
					defer f.Close()
					w = f
				}
				if err := backup.Encode(w, snap); err != nil {
					return err
				}
				a.logger.Info("backup exported", "scope", session.Scope().String(), "counts", snap.Counts())
				return nil
			}, observe(a, "export"))
			return res.Err
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func newBackupImportCmd() *cobra.Command {
	var (
		flags contextFlags
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the records of the context with a backup file",
		Long: `Replace the records of the context with the arrays of a backup file.
Collections missing from the file are left alone; an empty array clears its
collection. When object storage is configured the current state is uploaded
as a safety snapshot first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			snap, err := backup.Decode(f)
			if err != nil {
				return err
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			session, gate, err := flags.session(ctx, a)
			if err != nil {
				return err
			}

			res := gate.Run(ctx, permission.ModuleBackup, permission.ActionEdit, func(ctx context.Context) error {
				result, err := a.backup.Import(ctx, session.Scope(), snap, backup.ImportOptions{Confirm: yes})
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}, observe(a, "import"))
			return res.Err
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm that the context's records will be overwritten")
	return cmd
}

func observe(a *app, op string) permission.RunOption {
	return permission.Observe(func(s permission.State) {
		a.logger.Debug("backup state", "op", op, "state", s.String())
	})
}
