package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rgehrsitz/opcap/internal/calculation"
	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/output"
)

func calculateCmd() *cobra.Command {
	var (
		entities  []string
		asOfStr   string
		method    string
		overrides map[string]string
		pinned    string
		actor     string
		format    string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Calculate operational risk capital for one or more entities",
		Example: "  opcap calculate --entity BANK-001 --as-of 2025-03-31\n" +
			"  opcap calculate --entity BANK-001 --method flat --format json\n" +
			"  opcap calculate --entity BANK-001 --set min_loss_data_years=3",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseAsOf(asOfStr)
			if err != nil {
				return err
			}
			formatter, err := output.NewFormatter(format, verbose)
			if err != nil {
				return err
			}

			reqs := make([]calculation.Request, len(entities))
			for i, entity := range entities {
				reqs[i] = calculation.Request{
					EntityID:         entity,
					AsOf:             asOf,
					Method:           domain.Method(strings.ToLower(method)),
					Overrides:        overrides,
					ParameterVersion: pinned,
					InitiatedBy:      actor,
				}
			}

			return withApp(cmd.Context(), func(a *app) error {
				results := a.engine.CalculateBatch(cmd.Context(), reqs)
				var failed []string
				for _, r := range results {
					if r.Err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.Request.EntityID, r.Err)
						failed = append(failed, r.Request.EntityID)
						continue
					}
					out, err := formatter.Format(r.Result)
					if err != nil {
						return err
					}
					cmd.OutOrStdout().Write(out) //nolint:errcheck
					if len(results) > 1 {
						fmt.Fprintln(cmd.OutOrStdout())
					}
				}
				if len(failed) > 0 {
					return fmt.Errorf("calculation failed for %s", strings.Join(failed, ", "))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&entities, "entity", "e", nil, "Entity id (repeat or comma-separate for a batch)")
	cmd.Flags().StringVar(&asOfStr, "as-of", "", "As-of date YYYY-MM-DD (default today)")
	cmd.Flags().StringVarP(&method, "method", "m", string(domain.MethodPrimary), "Method (primary, flat, segmented)")
	cmd.Flags().StringToStringVar(&overrides, "set", nil, "Parameter override name=value for this run only")
	cmd.Flags().StringVar(&pinned, "version", "", "Use this frozen parameter version instead of the active one")
	cmd.Flags().StringVar(&actor, "by", defaultActor(), "Who initiated the calculation")
	cmd.Flags().StringVarP(&format, "format", "f", "console", "Output format (console, json, csv, html)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show every intermediate value")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}
