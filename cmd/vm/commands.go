package vm

import "github.com/spf13/cobra"

// Actions defines VM lifecycle operations.
type Actions interface {
	Create(cmd *cobra.Command, args []string) error
	List(cmd *cobra.Command, args []string) error
	Inspect(cmd *cobra.Command, args []string) error
	RM(cmd *cobra.Command, args []string) error
	Snapshot(cmd *cobra.Command, args []string) error
}

// Command builds the "vm" parent command with all subcommands.
func Command(h Actions) *cobra.Command {
	vmCmd := &cobra.Command{
		Use:   "vm",
		Short: "Manage virtual machines",
	}

	createCmd := &cobra.Command{
		Use:   "create [flags] TEMPLATE",
		Short: "Create and boot a VM from a template",
		Args:  cobra.ExactArgs(1),
		RunE:  h.Create,
	}
	createCmd.Flags().String("name", "", "VM name (generated when empty)")
	createCmd.Flags().Int("cpu", 0, "vCPUs (default from config)")
	createCmd.Flags().String("memory", "", "memory size, e.g. 512M or 2G (default from config)")
	createCmd.Flags().String("key-file", "", "SSH public key file injected into the VM")

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List VMs",
		RunE:    h.List,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect VM",
		Short: "Show detailed VM info (JSON)",
		Args:  cobra.ExactArgs(1),
		RunE:  h.Inspect,
	}

	rmCmd := &cobra.Command{
		Use:   "rm [flags] VM [VM...]",
		Short: "Delete VM(s) and release their resources",
		Args:  cobra.MinimumNArgs(1),
		RunE:  h.RM,
	}
	rmCmd.Flags().Bool("yes", false, "skip interactive confirmation")

	snapshotCmd := &cobra.Command{
		Use:   "snapshot VM TEMPLATE",
		Short: "Clone a running VM's disk into a new template",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE:  h.Snapshot,
	}

	vmCmd.AddCommand(
		createCmd,
		listCmd,
		inspectCmd,
		rmCmd,
		snapshotCmd,
	)
	return vmCmd
}
