package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/params"
)

func paramsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Govern parameter set versions",
		Long: `Parameter sets move through draft, under_review, approved and active.
Each step is signed off by a different actor: the maker proposes, a checker
reviews and an approver approves and activates.`,
	}
	cmd.AddCommand(
		paramsValidateCmd(),
		paramsProposeCmd(),
		paramsSubmitCmd(),
		paramsReviewCmd(),
		paramsApproveCmd(),
		paramsRejectCmd(),
		paramsActivateCmd(),
		paramsScheduleCmd(),
		paramsListCmd(),
		paramsShowCmd(),
		paramsDiffCmd(),
		paramsRunSchedulerCmd(),
	)
	return cmd
}

func paramsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|model>",
		Short: "Check a parameter set file without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := params.LoadSetFile(resolveSetPath(args[0]))
			if err != nil {
				return err
			}
			violations := params.Validate(set)
			if len(violations) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): valid\n", set.VersionID, set.ModelName)
				return nil
			}
			printViolations(cmd.OutOrStdout(), violations)
			return fmt.Errorf("%s has %d violation(s)", args[0], len(violations))
		},
	}
}

// resolveSetPath lets a bare model name stand for its file in the
// configured parameter directory
func resolveSetPath(arg string) string {
	if filepath.Ext(arg) != "" || strings.ContainsRune(arg, filepath.Separator) {
		return arg
	}
	return filepath.Join(cfg.Params.Dir, arg+".yaml")
}

func printViolations(w io.Writer, violations []domain.Violation) {
	for _, v := range violations {
		fmt.Fprintf(w, "  - %s\n", v)
	}
}

func paramsProposeCmd() *cobra.Command {
	var maker, parent string
	cmd := &cobra.Command{
		Use:   "propose <file|model>",
		Short: "Store a parameter set file as a new draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := params.LoadSetFile(resolveSetPath(args[0]))
			if err != nil {
				return err
			}
			if parent != "" {
				set.ParentVersionID = parent
			}
			return withApp(cmd.Context(), func(a *app) error {
				draft, err := a.registry.Propose(cmd.Context(), *set, maker)
				if err != nil {
					return err
				}
				if violations := a.engine.ValidateParameters(draft.ModelName, draft); len(violations) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "warning: %s will not pass approval:\n", draft.VersionID)
					printViolations(cmd.OutOrStdout(), violations)
				}
				printStatus(cmd.OutOrStdout(), draft)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&maker, "by", defaultActor(), "Maker proposing the set")
	cmd.Flags().StringVar(&parent, "parent", "", "Version this set revises")
	return cmd
}

func printStatus(w io.Writer, set *domain.ParameterSet) {
	fmt.Fprintf(w, "%s (%s): %s\n", set.VersionID, set.ModelName, set.Status)
}

// transitionCmd builds the simple one-argument lifecycle commands
func transitionCmd(use, short string, withComment bool,
	fn func(ctx context.Context, a *app, id, actor, comment string) (*domain.ParameterSet, error)) *cobra.Command {
	var actor, comment string
	cmd := &cobra.Command{
		Use:   use + " <version-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				set, err := fn(cmd.Context(), a, args[0], actor, comment)
				if err != nil {
					var verr *domain.ValidationError
					if errors.As(err, &verr) {
						printViolations(cmd.ErrOrStderr(), verr.Violations)
					}
					return err
				}
				printStatus(cmd.OutOrStdout(), set)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "by", defaultActor(), "Actor signing off")
	if withComment {
		cmd.Flags().StringVar(&comment, "comment", "", "Comment recorded in the approver chain")
	}
	return cmd
}

func paramsSubmitCmd() *cobra.Command {
	return transitionCmd("submit", "Submit a draft for review", false,
		func(ctx context.Context, a *app, id, actor, _ string) (*domain.ParameterSet, error) {
			return a.registry.Submit(ctx, id, actor)
		})
}

func paramsReviewCmd() *cobra.Command {
	return transitionCmd("review", "Record the checker's review", true,
		func(ctx context.Context, a *app, id, actor, comment string) (*domain.ParameterSet, error) {
			return a.registry.Review(ctx, id, actor, comment)
		})
}

func paramsApproveCmd() *cobra.Command {
	return transitionCmd("approve", "Approve a reviewed set and freeze it", true,
		func(ctx context.Context, a *app, id, actor, comment string) (*domain.ParameterSet, error) {
			return a.registry.Approve(ctx, id, actor, comment)
		})
}

func paramsActivateCmd() *cobra.Command {
	return transitionCmd("activate", "Activate an approved set now", false,
		func(ctx context.Context, a *app, id, actor, _ string) (*domain.ParameterSet, error) {
			return a.registry.Activate(ctx, id, actor)
		})
}

func paramsRejectCmd() *cobra.Command {
	var actor, role, reason string
	cmd := &cobra.Command{
		Use:   "reject <version-id>",
		Short: "Reject a draft or a set under review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				set, err := a.registry.Reject(cmd.Context(), args[0], actor, domain.Role(role), reason)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), set)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "by", defaultActor(), "Actor rejecting the set")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleChecker), "Role of the actor (checker, approver)")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the set is rejected")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func paramsScheduleCmd() *cobra.Command {
	var actor, at string
	cmd := &cobra.Command{
		Use:   "schedule <version-id>",
		Short: "Schedule an approved set for activation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseInstant(at)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				set, err := a.registry.ScheduleActivation(cmd.Context(), args[0], when, actor)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): activates at %s\n",
					set.VersionID, set.ModelName, set.ScheduledActivation.Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "by", defaultActor(), "Approver scheduling the activation")
	cmd.Flags().StringVar(&at, "at", "", "Activation time, RFC 3339 or YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func paramsListCmd() *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List parameter set versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				sets := a.registry.List(domain.Model(model))
				if len(sets) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no parameter sets")
					return nil
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%-24s %-10s %-13s %-10s %s\n", "VERSION", "MODEL", "STATUS", "EFFECTIVE", "CREATED BY")
				for _, s := range sets {
					fmt.Fprintf(w, "%-24s %-10s %-13s %-10s %s\n",
						s.VersionID, s.ModelName, s.Status, s.EffectiveDate.Format(dateLayout), s.CreatedBy)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Only this model (primary, flat, segmented)")
	return cmd
}

func paramsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <version-id>",
		Short: "Print a parameter set version as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				set, err := a.registry.GetVersion(args[0])
				if err != nil {
					return err
				}
				data, err := params.MarshalSet(set)
				if err != nil {
					return err
				}
				cmd.OutOrStdout().Write(data) //nolint:errcheck
				return nil
			})
		},
	}
}

func paramsDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <from-version> <to-version>",
		Short: "Show the parameters that differ between two versions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				from, err := a.registry.GetVersion(args[0])
				if err != nil {
					return err
				}
				to, err := a.registry.GetVersion(args[1])
				if err != nil {
					return err
				}
				changes := params.Diff(from, to)
				w := cmd.OutOrStdout()
				if len(changes) == 0 {
					fmt.Fprintln(w, "no differences")
					return nil
				}
				for _, c := range changes {
					fmt.Fprintf(w, "%-32s %s -> %s\n", c.Name, orDash(c.Before), orDash(c.After))
				}
				return nil
			})
		},
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func paramsRunSchedulerCmd() *cobra.Command {
	var (
		once        bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "run-scheduler",
		Short: "Activate scheduled parameter sets as they come due",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, func(a *app) error {
				sched := params.NewScheduler(ctx, a.registry, a.logger)
				if once {
					ids, err := sched.RunNow()
					for _, id := range ids {
						fmt.Fprintf(cmd.OutOrStdout(), "activated %s\n", id)
					}
					return err
				}

				if err := sched.Register(cfg.Scheduler.Spec); err != nil {
					return err
				}
				if metricsAddr != "" {
					srv := &http.Server{
						Addr:              metricsAddr,
						Handler:           promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{}),
						ReadHeaderTimeout: 5 * time.Second,
					}
					go func() {
						if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
							a.logger.Error("metrics server failed", zap.Error(err))
						}
					}()
					defer srv.Close() //nolint:errcheck
					a.logger.Info("serving metrics", zap.String("addr", metricsAddr))
				}

				sched.Start()
				<-ctx.Done()
				sched.Stop()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single activation pass and exit")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}
