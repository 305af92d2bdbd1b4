package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// commandsCmd prints the full command inventory, one line per leaf, for
// shell completion and tooling.
var commandsCmd = &cobra.Command{
	Use:     "commands",
	Short:   "List every command",
	GroupID: "maint",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		walkCommands(rootCmd, nil, func(path []string, c *cobra.Command) {
			fmt.Printf("%-40s %s\n", strings.Join(path, " "), c.Short)
		})
		return nil
	},
}

// helpAllCmd prints recursive help for the whole tree.
var helpAllCmd = &cobra.Command{
	Use:     "help-all",
	Short:   "Show help for every command",
	GroupID: "maint",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var out []string
		walkCommands(rootCmd, nil, func(path []string, c *cobra.Command) {
			out = append(out, strings.Join(path, " "))
		})
		for _, name := range out {
			fmt.Printf("── %s ──\n", name)
			c, _, err := rootCmd.Find(strings.Fields(name)[1:])
			if err != nil {
				continue
			}
			_ = c.Help()
			fmt.Println()
		}
		return nil
	},
}

// walkCommands visits every runnable command depth-first.
func walkCommands(c *cobra.Command, path []string, fn func(path []string, c *cobra.Command)) {
	path = append(path, c.Name())
	if c.Runnable() || c.HasSubCommands() {
		fn(path, c)
	}
	for _, sub := range c.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		walkCommands(sub, path, fn)
	}
}
