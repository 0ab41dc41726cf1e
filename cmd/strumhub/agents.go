package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/strumhub/strumhub/agent-plane/internal/agents"
	"github.com/strumhub/strumhub/agent-plane/internal/config"
	"github.com/strumhub/strumhub/agent-plane/internal/validation"
	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

func newAgentsCmd() *cobra.Command {
	var (
		role   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List and validate the agent catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := agents.Builtin()
			if err != nil {
				return err
			}
			if dir := config.Load().AgentsDir; dir != "" {
				extra, err := agents.LoadDir(dir)
				if err != nil {
					return err
				}
				defs = append(defs, extra...)
			}

			var problems []string
			shown := defs[:0]
			for _, d := range defs {
				if err := validation.ValidateSpecification(&d.AgentSpecification); err != nil {
					problems = append(problems, err.Error())
				}
				if role == "" || d.Targets(models.ParseRole(role)) {
					shown = append(shown, d)
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(shown); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tVERSION\tROLES\tCONTEXT\tANALYTICS")
				for _, d := range shown {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\n",
						d.ID, d.Version, joinRoles(d.TargetUsers), joinKeys(d.RequiredContext), d.EnableAnalytics)
				}
				tw.Flush()
			}

			if len(problems) > 0 {
				fmt.Fprintln(os.Stderr, strings.Join(problems, "\n"))
				return fmt.Errorf("%d invalid agent definition(s)", len(problems))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "Only show agents this role may run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print full definitions as JSON")
	return cmd
}

func joinRoles(rs []models.Role) string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return strings.Join(out, ",")
}

func joinKeys(ks []models.ContextKey) string {
	if len(ks) == 0 {
		return "-"
	}
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = string(k)
	}
	return strings.Join(out, ",")
}
