package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentflow/internal/storage"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
		Long:  `List, show and delete the runs recorded in the history database (storage.path).`,
	}

	var (
		limit    int
		flowType string
		since    time.Duration
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := storage.RunQuery{Flow: flowType, Limit: limit}
			if since > 0 {
				t := time.Now().Add(-since)
				q.Since = &t
			}
			return a.withStore(cmd, func(ctx context.Context, s *storage.Storage) error {
				runs, err := s.ListRuns(ctx, q)
				if err != nil {
					return err
				}
				return printRuns(cmd.OutOrStdout(), runs)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	list.Flags().StringVar(&flowType, "flow", "", "only runs of this flow type")
	list.Flags().DurationVar(&since, "since", 0, "only runs started within this duration")

	var format string
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run (id or unique id prefix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, s *storage.Storage) error {
				rec, err := s.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				switch format {
				case "yaml":
					report, err := rec.Report()
					if err != nil {
						return err
					}
					enc := yaml.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent(2)
					if err := enc.Encode(report); err != nil {
						return fmt.Errorf("encode run: %w", err)
					}
					return enc.Close()
				case "text":
					return printRun(cmd.OutOrStdout(), rec)
				default:
					return fmt.Errorf("unknown format %q (want text or yaml)", format)
				}
			})
		},
	}
	show.Flags().StringVar(&format, "format", "text", "output format (text or yaml)")

	del := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, s *storage.Storage) error {
				if err := s.DeleteRun(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func (a *app) withStore(cmd *cobra.Command, fn func(ctx context.Context, s *storage.Storage) error) error {
	defer a.close()
	if a.cfg.Storage.Path == "" {
		return errors.New("storage.path is not configured")
	}
	ctx := runContext(cmd)
	s, err := storage.Open(ctx, storage.Config{Path: a.cfg.Storage.Path, BusyTimeout: a.cfg.Storage.BusyTimeout})
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer s.Close()
	return fn(ctx, s)
}

func printRuns(w io.Writer, runs []storage.RunRecord) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No runs recorded."))
		return nil
	}

	fmt.Fprintln(w, headerStyle.Render("Recent runs"))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tFLOW\tDURATION\tCALLS\tINPUT\tSTATUS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			shortID(r.RunID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Flow,
			(time.Duration(r.DurationMS) * time.Millisecond).String(),
			r.ModelCalls,
			oneLine(r.Input, 40),
			statusStyle(r.Status()).Render(r.Status()),
		)
	}
	return tw.Flush()
}

func printRun(w io.Writer, r *storage.RunRecord) error {
	fmt.Fprintln(w, headerStyle.Render("Run "+r.RunID))
	fmt.Fprintf(w, "Flow:     %s\n", r.Flow)
	fmt.Fprintf(w, "Status:   %s\n", statusStyle(r.Status()).Render(r.Status()))
	fmt.Fprintf(w, "Started:  %s\n", r.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Duration: %s\n", time.Duration(r.DurationMS)*time.Millisecond)
	fmt.Fprintf(w, "Calls:    %d\n", r.ModelCalls)
	if r.Replans > 0 {
		fmt.Fprintf(w, "Replans:  %d\n", r.Replans)
	}
	fmt.Fprintf(w, "\n%s\n%s\n", labelStyle.Render("Input"), r.Input)

	if r.PlanYAML != "" {
		report, err := r.Report()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%s\n", report.Plan.Format())
	}

	if len(r.Steps) > 0 {
		fmt.Fprintf(w, "\n%s\n", labelStyle.Render("Executed steps"))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tSTEP\tEXECUTOR\tAGENT STEPS\tFINISH\tSTATUS")
		for _, s := range r.Steps {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
				s.StepIndex, oneLine(s.Description, 48), s.Executor, s.AgentSteps, s.FinishReason,
				statusStyle(s.Status).Render(s.Status))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if r.Output != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", labelStyle.Render("Output"), r.Output)
	}
	if r.Notice != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", labelStyle.Render("Notice"), r.Notice)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", labelStyle.Render("Error"), r.Error)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
