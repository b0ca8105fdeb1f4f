package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentflow"
	"github.com/hupe1980/agentflow/flow"
	"github.com/hupe1980/agentflow/plan"
	"github.com/hupe1980/agentflow/tool"
)

func newToolsCmd(a *app) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools of every configured agent",
		Long: `List the tools each configured agent can call.

Examples:
  agentflow tools            # List tools per agent
  agentflow tools --verbose  # Include parameters`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()
			w := cmd.OutOrStdout()

			for _, name := range a.cfg.AgentNames() {
				profile := a.cfg.Agents[name]
				tools, err := agentflow.ToolsFor(a.cfg, profile)
				if err != nil {
					return fmt.Errorf("agent %s: %w", name, err)
				}
				title := "Agent " + name
				if profile.Description != "" {
					title += ": " + profile.Description
				}
				fmt.Fprintln(w, headerStyle.Render(title))
				printTools(w, tools, verbose)
				fmt.Fprintln(w)
			}

			if a.cfg.Flow.Type == string(flow.TypePlanning) {
				fmt.Fprintln(w, headerStyle.Render("Planner"))
				printTools(w, []tool.Tool{plan.NewTool(nil)}, verbose)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show tool parameters")
	return cmd
}

func printTools(w io.Writer, tools []tool.Tool, verbose bool) {
	for _, t := range tools {
		fmt.Fprintf(w, "  %s\n", toolStyle.Render(t.Name()))
		fmt.Fprintf(w, "    %s\n", mutedStyle.Render(firstLine(t.Description())))
		if !verbose {
			continue
		}
		for _, p := range parameters(t) {
			fmt.Fprintf(w, "      %s\n", p)
		}
	}
}

// parameters renders the top level schema properties as "name (type)",
// marking required ones.
func parameters(t tool.Tool) []string {
	schema := t.Parameters()
	props, _ := schema["properties"].(map[string]any)
	required := map[string]bool{}
	switch r := schema["required"].(type) {
	case []string:
		for _, n := range r {
			required[n] = true
		}
	case []any:
		for _, n := range r {
			if s, ok := n.(string); ok {
				required[s] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for n := range props {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, n := range names {
		typ := "any"
		if p, ok := props[n].(map[string]any); ok {
			if s, ok := p["type"].(string); ok {
				typ = s
			}
		}
		line := fmt.Sprintf("%s (%s)", n, typ)
		if required[n] {
			line += " required"
		}
		out = append(out, line)
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
