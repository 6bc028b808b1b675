package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rgehrsitz/opcap/internal/domain"
)

func overrideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Govern supervisor overrides of the final capital figure",
		Long: `A supervisor override replaces, or scales by a percentage, the capital
figure of one entity and method over an effective period. A proposer raises
it and a different approver accepts it under an approval reference. Runs
record the override they applied next to the calculated figure.`,
	}
	cmd.AddCommand(
		overrideProposeCmd(),
		overrideDecisionCmd("reject", "Reject a proposed override", func(ctx context.Context, a *app, id, actor, comment string) (*domain.SupervisorOverride, error) {
			return a.supervisor.Reject(ctx, id, actor, comment)
		}),
		overrideDecisionCmd("revoke", "Revoke an approved override", func(ctx context.Context, a *app, id, actor, comment string) (*domain.SupervisorOverride, error) {
			return a.supervisor.Revoke(ctx, id, actor, comment)
		}),
		overrideApproveCmd(),
		overrideListCmd(),
	)
	return cmd
}

func overrideProposeCmd() *cobra.Command {
	var (
		id, entity, method, value, pct, reason, justification, from, to, actor string
	)
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose an override",
		Example: "  opcap override propose --entity BANK-001 --value 5000 --reason conservative_adjustment \\\n" +
			"    --justification \"loss data under remediation\" --from 2025-01-01",
		RunE: func(cmd *cobra.Command, args []string) error {
			o := domain.SupervisorOverride{
				ID:            id,
				EntityID:      entity,
				Method:        domain.Method(strings.ToLower(method)),
				Reason:        domain.OverrideReason(reason),
				Justification: justification,
			}
			var err error
			if o.CapitalValue, err = optionalDecimal("value", value); err != nil {
				return err
			}
			if o.AdjustmentPct, err = optionalDecimal("pct", pct); err != nil {
				return err
			}
			if o.EffectiveFrom, err = parseAsOf(from); err != nil {
				return err
			}
			if to != "" {
				t, err := parseAsOf(to)
				if err != nil {
					return err
				}
				o.EffectiveTo = &t
			}
			return withApp(cmd.Context(), func(a *app) error {
				proposed, err := a.supervisor.Propose(cmd.Context(), o, actor)
				if err != nil {
					return err
				}
				printOverride(cmd.OutOrStdout(), proposed)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Override id (default generated)")
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "Entity id")
	cmd.Flags().StringVarP(&method, "method", "m", string(domain.MethodPrimary), "Method (primary, flat, segmented)")
	cmd.Flags().StringVar(&value, "value", "", "Replacement capital figure")
	cmd.Flags().StringVar(&pct, "pct", "", "Adjustment in percent of the calculated figure, e.g. 10 or -5")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason ("+reasonList()+")")
	cmd.Flags().StringVar(&justification, "justification", "", "Free-text justification")
	cmd.Flags().StringVar(&from, "from", "", "Effective from YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&to, "to", "", "Effective until YYYY-MM-DD, exclusive (default open-ended)")
	cmd.Flags().StringVar(&actor, "by", defaultActor(), "Proposer")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("reason")
	_ = cmd.MarkFlagRequired("justification")
	return cmd
}

func overrideApproveCmd() *cobra.Command {
	var actor, ref, comment string
	cmd := &cobra.Command{
		Use:   "approve <override-id>",
		Short: "Approve a proposed override under an approval reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				o, err := a.supervisor.Approve(cmd.Context(), args[0], actor, ref, comment)
				if err != nil {
					return err
				}
				printOverride(cmd.OutOrStdout(), o)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "by", defaultActor(), "Approver")
	cmd.Flags().StringVar(&ref, "ref", "", "Approval reference, e.g. a committee minute")
	cmd.Flags().StringVar(&comment, "comment", "", "Comment recorded with the decision")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}

func overrideDecisionCmd(use, short string, fn func(context.Context, *app, string, string, string) (*domain.SupervisorOverride, error)) *cobra.Command {
	var actor, reason string
	cmd := &cobra.Command{
		Use:   use + " <override-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				o, err := fn(cmd.Context(), a, args[0], actor, reason)
				if err != nil {
					return err
				}
				printOverride(cmd.OutOrStdout(), o)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "by", defaultActor(), "Actor")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the decision")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func overrideListCmd() *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List supervisor overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				overrides := a.supervisor.List(entity)
				if len(overrides) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no supervisor overrides")
					return nil
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%-38s %-12s %-9s %-9s %-14s %-10s %s\n", "ID", "ENTITY", "METHOD", "STATUS", "TERMS", "FROM", "APPROVAL")
				for i := range overrides {
					o := &overrides[i]
					fmt.Fprintf(w, "%-38s %-12s %-9s %-9s %-14s %-10s %s\n",
						o.ID, o.EntityID, o.Method, o.Status, terms(o), o.EffectiveFrom.Format(dateLayout), o.ApprovalRef)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "Only this entity")
	return cmd
}

func printOverride(w io.Writer, o *domain.SupervisorOverride) {
	fmt.Fprintf(w, "%s: %s (%s %s, %s)\n", o.ID, o.Status, o.EntityID, o.Method, terms(o))
	if o.ApprovalRef != "" {
		fmt.Fprintf(w, "  approved by %s under %s\n", o.ApprovedBy, o.ApprovalRef)
	}
}

func terms(o *domain.SupervisorOverride) string {
	if o.CapitalValue != nil {
		return "= " + o.CapitalValue.StringFixed(2)
	}
	if o.AdjustmentPct != nil {
		sign := ""
		if o.AdjustmentPct.IsPositive() {
			sign = "+"
		}
		return sign + o.AdjustmentPct.String() + "%"
	}
	return "-"
}

func optionalDecimal(flag, s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: %w", flag, s, err)
	}
	return &d, nil
}

func reasonList() string {
	names := make([]string, len(domain.OverrideReasons))
	for i, r := range domain.OverrideReasons {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
