package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rgehrsitz/opcap/internal/output"
	"github.com/rgehrsitz/opcap/internal/store"
)

func ingestCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Load indicator periods, loss records, segment income and consolidation mappings from YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := store.LoadDataset(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.store.Ingest(cmd.Context(), ds, actor); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ingested %d indicator periods, %d loss records, %d segment income rows",
					len(ds.IndicatorPeriods), len(ds.LossRecords), len(ds.SegmentIncome))
				if n := len(ds.ConsolidationMappings); n > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), ", %d consolidation mappings", n)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "by", defaultActor(), "Who is loading the data")
	return cmd
}

func lossCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loss",
		Short: "Inspect and exclude loss records",
	}

	var actor, ref, reason string
	exclude := &cobra.Command{
		Use:   "exclude <event-id>",
		Short: "Exclude a loss record from the loss component",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				rec, err := a.store.ExcludeLoss(cmd.Context(), args[0], ref, reason, actor)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s excluded by %s as %s (ref %s)\n",
					args[0], actor, rec.EventID, rec.ExclusionApprovalRef)
				return nil
			})
		},
	}
	exclude.Flags().StringVar(&actor, "by", defaultActor(), "Who records the exclusion")
	exclude.Flags().StringVar(&ref, "ref", "", "Approval reference authorising the exclusion")
	exclude.Flags().StringVar(&reason, "reason", "", "Why the loss is excluded")
	_ = exclude.MarkFlagRequired("ref")

	history := &cobra.Command{
		Use:   "history <event-id>",
		Short: "Show every recorded version of a loss",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				events, err := a.store.LossEvents(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, e := range events {
					rec, err := a.store.GetLoss(cmd.Context(), e.EventID)
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%s  %-9s %-20s by %-12s net %s",
						e.RecordedAt.Format("2006-01-02 15:04:05"), e.Action, e.EventID, e.Actor,
						output.FormatAmount(rec.NetAmount()))
					if e.ApprovalRef != "" {
						fmt.Fprintf(w, "  ref %s", e.ApprovalRef)
					}
					if e.Reason != "" {
						fmt.Fprintf(w, "  (%s)", e.Reason)
					}
					fmt.Fprintln(w)
				}
				return nil
			})
		},
	}

	var entity, asOfStr string
	var window int
	list := &cobra.Command{
		Use:   "list",
		Short: "List loss record versions accounted within the window",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseAsOf(asOfStr)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				recs, err := a.store.FetchLossRecords(cmd.Context(), entity, asOf, window)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, r := range recs {
					flag := ""
					switch {
					case r.Excluded:
						flag = "excluded"
					case r.SupersedesEventID != "":
						flag = "supersedes " + r.SupersedesEventID
					}
					fmt.Fprintf(w, "%-20s %s %16s  %s\n",
						r.EventID, r.AccountingDate.Format(dateLayout), output.FormatAmount(r.NetAmount()), flag)
				}
				return nil
			})
		},
	}
	list.Flags().StringVarP(&entity, "entity", "e", "", "Entity id")
	list.Flags().StringVar(&asOfStr, "as-of", "", "As-of date YYYY-MM-DD (default today)")
	list.Flags().IntVar(&window, "window", 10, "Window in years")
	_ = list.MarkFlagRequired("entity")

	cmd.AddCommand(exclude, history, list)
	return cmd
}
