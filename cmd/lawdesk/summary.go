package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"lawdesk/internal/permission"
)

func newSummaryCmd() *cobra.Command {
	var flags contextFlags

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the financial summary and record counts of a context",
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

			out := map[string]any{
				"context": session.Scope().String(),
				"role":    gate.Role(),
				"stats":   session.GeneralStats(ctx),
			}
			if gate.HasPermission(permission.ModuleFinance) {
				out["finance"] = session.FinancialSummary(ctx)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	flags.register(cmd)
	return cmd
}
