package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanpawarit/chative-supervisor/agent/agents/specialist"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
	promptx "github.com/tanpawarit/chative-supervisor/agent/prompt"
	toolx "github.com/tanpawarit/chative-supervisor/agent/tool"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Print the worker roster and the tools each worker may call",
	RunE: func(cmd *cobra.Command, args []string) error {
		rosterFile, _ := cmd.Flags().GetString("workers")
		prompts := promptx.LoadPromptSet()

		known := map[contractx.ToolID]bool{}
		for _, id := range toolx.BuiltinToolIDs() {
			known[id] = true
		}
		r := specialist.DefaultRoster(prompts, nil)
		if strings.TrimSpace(rosterFile) != "" {
			var err error
			if r, err = specialist.LoadRoster(rosterFile, prompts); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		for _, w := range r.Workers {
			tools := make([]string, 0, len(w.Tools))
			for _, t := range w.Tools {
				name := string(t)
				if !known[t] {
					name += " (unknown)"
				}
				tools = append(tools, name)
			}
			fmt.Fprintf(out, "%s\ttools=[%s]\n", w.ID, strings.Join(tools, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rosterCmd)
}
