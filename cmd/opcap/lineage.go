package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/output"
)

func lineageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Inspect recorded calculation runs",
	}

	var showJSON bool
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the full lineage record of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				run, err := a.engine.GetLineage(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if showJSON {
					data, err := json.MarshalIndent(run, "", "  ")
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return nil
				}
				cmd.OutOrStdout().Write(output.FormatRun(run)) //nolint:errcheck
				return nil
			})
		},
	}
	show.Flags().BoolVar(&showJSON, "json", false, "Print the raw record as JSON")

	var entity string
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				runs, err := a.store.List(cmd.Context(), entity)
				if err != nil {
					return err
				}
				cmd.OutOrStdout().Write(output.FormatRunList(runs)) //nolint:errcheck
				return nil
			})
		},
	}
	list.Flags().StringVarP(&entity, "entity", "e", "", "Only runs for this entity")

	cmd.AddCommand(show, list)
	return cmd
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <run-id>...",
		Short: "Recompute the hashes of recorded runs and report tampering",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				tampered := 0
				for _, id := range args {
					v, err := a.engine.VerifyIntegrity(cmd.Context(), id)
					var ierr *domain.IntegrityError
					if err != nil && !errors.As(err, &ierr) {
						return err
					}
					cmd.OutOrStdout().Write(output.FormatVerification(v)) //nolint:errcheck
					if !v.Valid {
						tampered++
					}
				}
				if tampered > 0 {
					return fmt.Errorf("%d of %d runs failed integrity verification", tampered, len(args))
				}
				return nil
			})
		},
	}
}
