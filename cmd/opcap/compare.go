package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rgehrsitz/opcap/internal/compare"
	"github.com/rgehrsitz/opcap/internal/domain"
)

func compareCmd() *cobra.Command {
	var (
		entity    string
		asOfStr   string
		base      string
		with      string
		overrides map[string]string
		actor     string
		format    string
	)

	cmd := &cobra.Command{
		Use:     "compare",
		Short:   "Compare capital across the primary and legacy methods",
		Example: "  opcap compare --entity BANK-001 --as-of 2025-03-31 --format csv",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseAsOf(asOfStr)
			if err != nil {
				return err
			}
			opts := compare.CompareOptions{
				EntityID:    entity,
				AsOf:        asOf,
				BaseMethod:  domain.Method(base),
				Overrides:   overrides,
				InitiatedBy: actor,
			}
			if with != "" {
				for _, m := range strings.Split(with, ",") {
					opts.Methods = append(opts.Methods, domain.Method(strings.TrimSpace(m)))
				}
			}

			return withApp(cmd.Context(), func(a *app) error {
				set, err := compare.NewCompareEngine(a.engine).Compare(cmd.Context(), opts)
				if err != nil {
					return err
				}

				var out string
				switch format {
				case "table":
					out = (&compare.TableFormatter{}).Format(set)
				case "compact":
					out = (&compare.TableFormatter{}).FormatCompact(set) + "\n"
				case "csv":
					out, err = (&compare.CSVFormatter{}).Format(set)
				case "json":
					out, err = (&compare.JSONFormatter{Pretty: true}).Format(set)
				default:
					return fmt.Errorf("unsupported format: %s", format)
				}
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&entity, "entity", "e", "", "Entity id")
	cmd.Flags().StringVar(&asOfStr, "as-of", "", "As-of date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&base, "base", string(domain.MethodPrimary), "Method the others are compared against")
	cmd.Flags().StringVar(&with, "with", "", "Comma-separated methods to compare (default all others)")
	cmd.Flags().StringToStringVar(&overrides, "set", nil, "Parameter override for the base method")
	cmd.Flags().StringVar(&actor, "by", defaultActor(), "Who initiated the comparison")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, compact, csv, json)")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}
