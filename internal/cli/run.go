package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentflow"
	"github.com/hupe1980/agentflow/flow"
	"github.com/hupe1980/agentflow/internal/storage"
)

type runOptions struct {
	flowType  string
	planOut   string
	timeout   time.Duration
	noHistory bool
}

func newRunCmd(a *app) *cobra.Command {
	var o runOptions

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run a flow on a prompt",
		Long: `Run the configured flow on a prompt and print the result.

The prompt is taken from the arguments or, when none are given, from stdin.

Examples:
  agentflow run "Summarize README.md into notes.md"
  agentflow run --flow planning --plan-out plan.yaml "Build a CLI todo app"
  echo "List the workspace files" | agentflow run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			return a.run(cmd, args, o)
		},
	}

	cmd.Flags().StringVar(&o.flowType, "flow", "", "override flow.type (direct or planning)")
	cmd.Flags().StringVar(&o.planOut, "plan-out", "", "write the final plan as YAML to this file")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 0, "override flow.timeout")
	cmd.Flags().BoolVar(&o.noHistory, "no-history", false, "do not record this run in the history database")
	return cmd
}

func (a *app) run(cmd *cobra.Command, args []string, o runOptions) error {
	prompt, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	cfg := *a.cfg
	if o.flowType != "" {
		t, err := flow.ParseType(o.flowType)
		if err != nil {
			return err
		}
		cfg.Flow.Type = string(t)
	}
	if o.timeout > 0 {
		cfg.Flow.Timeout = o.timeout
	}

	ctx, stop := signal.NotifyContext(runContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorder flow.Recorder
	if cfg.Storage.Enabled && !o.noHistory {
		store, err := storage.Open(ctx, storage.Config{Path: cfg.Storage.Path, BusyTimeout: cfg.Storage.BusyTimeout})
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		recorder = store
	}

	af, err := agentflow.New(&cfg, func(opts *agentflow.Options) {
		opts.Model = a.model
		opts.Recorder = recorder
		opts.Logger = a.logger
	})
	if err != nil {
		return err
	}

	report, runErr := af.Run(ctx, prompt)
	if report != nil {
		if text := report.Text(); text != "" {
			fmt.Fprintln(cmd.OutOrStdout(), text)
		}
		if o.planOut != "" {
			if err := writePlan(o.planOut, report); err != nil {
				return errors.Join(runErr, err)
			}
		}
	}
	return runErr
}

func readPrompt(in io.Reader, args []string) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" && in != nil {
		b, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		prompt = strings.TrimSpace(string(b))
	}
	if prompt == "" {
		return "", errors.New("prompt is required (pass it as an argument or on stdin)")
	}
	return prompt, nil
}

func writePlan(path string, r *flow.Report) error {
	if r.Plan == nil {
		return fmt.Errorf("run %s has no plan to export (flow %s)", r.RunID, r.Flow)
	}
	b, err := yaml.Marshal(r.Plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	return nil
}

// runContext is used by subcommands that only touch local resources.
func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
