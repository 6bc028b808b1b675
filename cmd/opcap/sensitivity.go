package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rgehrsitz/opcap/internal/calculation"
	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/output"
)

func sensitivityCmd() *cobra.Command {
	var (
		entity    string
		asOfStr   string
		method    string
		overrides map[string]string
		sweeps    []string
		actor     string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "sensitivity",
		Short: "Sweep a parameter and report how capital responds",
		Long: `Runs the calculation once with the resolved parameters and once per
swept value, each as a recorded run. One --sweep gives a sweep with
elasticities; two give a matrix over every pair of values. A sweep is
name=min:max:steps.`,
		Example: "  opcap sensitivity --entity BANK-001 --sweep loss_component_multiplier=10:20:5\n" +
			"  opcap sensitivity --entity BANK-001 --method flat --sweep flat_coefficient=0.1:0.2:3 --sweep flat_lookback_periods=1:3:3",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseAsOf(asOfStr)
			if err != nil {
				return err
			}
			var params []calculation.SensitivityParameter
			for _, s := range sweeps {
				p, err := parseSweep(s)
				if err != nil {
					return err
				}
				params = append(params, p)
			}
			if len(params) < 1 || len(params) > 2 {
				return fmt.Errorf("give one or two --sweep flags, got %d", len(params))
			}
			req := calculation.Request{
				EntityID:    entity,
				AsOf:        asOf,
				Method:      domain.Method(strings.ToLower(method)),
				Overrides:   overrides,
				InitiatedBy: actor,
			}

			return withApp(cmd.Context(), func(a *app) error {
				sa := calculation.NewSensitivityAnalyzer(a.engine)
				var result any
				if len(params) == 1 {
					res, err := sa.Analyze(cmd.Context(), req, params[0])
					if err != nil {
						return err
					}
					if format == "table" {
						printSweep(cmd.OutOrStdout(), res)
						return nil
					}
					result = res
				} else {
					res, err := sa.AnalyzeMatrix(cmd.Context(), req, params[0], params[1])
					if err != nil {
						return err
					}
					if format == "table" {
						printMatrix(cmd.OutOrStdout(), res)
						return nil
					}
					result = res
				}
				if format != "json" {
					return fmt.Errorf("unsupported format: %s", format)
				}
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&entity, "entity", "e", "", "Entity id")
	cmd.Flags().StringVar(&asOfStr, "as-of", "", "As-of date YYYY-MM-DD (default today)")
	cmd.Flags().StringVarP(&method, "method", "m", string(domain.MethodPrimary), "Method (primary, flat, segmented)")
	cmd.Flags().StringToStringVar(&overrides, "set", nil, "Parameter override held fixed across the sweep")
	cmd.Flags().StringArrayVar(&sweeps, "sweep", nil, "Parameter sweep name=min:max:steps (repeat once for a matrix)")
	cmd.Flags().StringVar(&actor, "by", defaultActor(), "Who initiated the sweep")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("sweep")
	return cmd
}

// parseSweep reads name=min:max:steps
func parseSweep(s string) (calculation.SensitivityParameter, error) {
	var p calculation.SensitivityParameter
	name, spec, ok := strings.Cut(s, "=")
	parts := strings.Split(spec, ":")
	if !ok || name == "" || len(parts) != 3 {
		return p, fmt.Errorf("invalid sweep %q, want name=min:max:steps", s)
	}
	p.Name = strings.TrimSpace(name)
	var err error
	if p.Min, err = decimal.NewFromString(parts[0]); err != nil {
		return p, fmt.Errorf("invalid sweep minimum %q: %w", parts[0], err)
	}
	if p.Max, err = decimal.NewFromString(parts[1]); err != nil {
		return p, fmt.Errorf("invalid sweep maximum %q: %w", parts[1], err)
	}
	if p.Steps, err = strconv.Atoi(parts[2]); err != nil {
		return p, fmt.Errorf("invalid sweep steps %q", parts[2])
	}
	return p, nil
}

func printSweep(w io.Writer, res *calculation.SensitivityAnalysis) {
	fmt.Fprintf(w, "Sweep of %s (resolved value %s)\n", res.Parameter.Name, res.BaseValue)
	fmt.Fprintf(w, "Base capital %s, run %s\n\n", output.FormatAmount(res.BaseCapital), res.BaseRunID)
	fmt.Fprintf(w, "%12s %16s %14s %10s %11s  %s\n", "VALUE", "CAPITAL", "CHANGE", "CHANGE %", "ELASTICITY", "RUN")
	for _, p := range res.Points {
		if p.Rejected != "" {
			fmt.Fprintf(w, "%12s  rejected: %s\n", p.Value, p.Rejected)
			continue
		}
		fmt.Fprintf(w, "%12s %16s %14s %10s %11s  %s\n", p.Value, output.FormatAmount(p.Capital),
			output.FormatAmount(p.Change), p.ChangePct.StringFixed(2), p.Elasticity.StringFixed(4), p.RunID)
	}
	fmt.Fprintf(w, "\nMax elasticity %s: %s sensitivity\n", res.MaxElasticity.StringFixed(4), res.Assessment)
}

func printMatrix(w io.Writer, m *calculation.SensitivityMatrix) {
	fmt.Fprintf(w, "Capital by %s (rows) and %s (columns), base %s\n\n",
		m.First.Name, m.Second.Name, output.FormatAmount(m.BaseCapital))
	fmt.Fprintf(w, "%12s", "")
	for _, y := range m.SecondValues {
		fmt.Fprintf(w, " %16s", y)
	}
	fmt.Fprintln(w)
	for i, x := range m.FirstValues {
		fmt.Fprintf(w, "%12s", x)
		for _, c := range m.Capital[i] {
			cell := "rejected"
			if c != nil {
				cell = output.FormatAmount(*c)
			}
			fmt.Fprintf(w, " %16s", cell)
		}
		fmt.Fprintln(w)
	}
	if m.Min != nil {
		fmt.Fprintf(w, "\nRange %s to %s\n", output.FormatAmount(*m.Min), output.FormatAmount(*m.Max))
	}
}
