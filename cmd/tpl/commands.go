package tpl

import "github.com/spf13/cobra"

// Actions defines template operations.
type Actions interface {
	List(cmd *cobra.Command, args []string) error
}

// Command builds the "template" parent command.
func Command(h Actions) *cobra.Command {
	tplCmd := &cobra.Command{
		Use:     "template",
		Aliases: []string{"tpl"},
		Short:   "Manage disk templates",
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List templates",
		RunE:    h.List,
	}

	tplCmd.AddCommand(listCmd)
	return tplCmd
}
