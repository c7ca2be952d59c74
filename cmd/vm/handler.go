package vm

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"
	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	cmdcore "github.com/projecteru2/burrow/cmd/core"
	"github.com/projecteru2/burrow/config"
	"github.com/projecteru2/burrow/orchestrator"
)

type Handler struct {
	cmdcore.BaseHandler
}

// NewHandler builds the vm command handler.
func NewHandler(confProvider func() *config.Config) Handler {
	return Handler{BaseHandler: cmdcore.BaseHandler{ConfProvider: confProvider}}
}

func (h Handler) Create(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	orch, err := cmdcore.InitOrchestrator(ctx, conf)
	if err != nil {
		return err
	}

	sizing, err := cmdcore.SizingFromFlags(cmd)
	if err != nil {
		return err
	}

	var publicKey string
	if keyFile, _ := cmd.Flags().GetString("key-file"); keyFile != "" {
		raw, readErr := os.ReadFile(keyFile) //nolint:gosec // path from CLI flag
		if readErr != nil {
			return fmt.Errorf("read key file: %w", readErr)
		}
		publicKey = string(raw)
	}

	name, _ := cmd.Flags().GetString("name")
	view, err := orch.CreateVM(ctx, orchestrator.CreateRequest{
		Template:  args[0],
		Name:      name,
		PublicKey: publicKey,
		Sizing:    sizing,
	})
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	logger := log.WithFunc("cmd.vm.create")
	logger.Infof(ctx, "VM created: %s (name: %s)", view.ID, view.Name)
	logger.Infof(ctx, "reach it with: ssh -p %d root@<host>", view.Port)
	return nil
}

func (h Handler) List(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	orch, err := cmdcore.InitOrchestrator(ctx, conf)
	if err != nil {
		return err
	}

	views := orch.ListVMs()
	if len(views) == 0 {
		fmt.Println("No VMs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tTEMPLATE\tSTATE\tIP\tPORT\tCPU\tMEMORY\tCREATED")
	for _, view := range views {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			view.ID,
			view.Name,
			view.Template,
			view.State,
			view.IP,
			view.Port,
			view.Sizing.VCPUs,
			units.BytesSize(float64(view.Sizing.MemoryMB)*units.MiB),
			view.CreatedAt.Local().Format(time.DateTime),
		)
	}
	w.Flush() //nolint:errcheck,gosec
	return nil
}

func (h Handler) Inspect(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	orch, err := cmdcore.InitOrchestrator(ctx, conf)
	if err != nil {
		return err
	}

	view, err := orch.GetVM(args[0])
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

// RM deletes VMs best-effort: a failure on one VM does not stop the rest,
// and all failures are reported together.
func (h Handler) RM(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	orch, err := cmdcore.InitOrchestrator(ctx, conf)
	if err != nil {
		return err
	}
	logger := log.WithFunc("cmd.vm.rm")

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		if !cmdcore.Confirm(fmt.Sprintf("delete %d VM(s)", len(args))) {
			logger.Info(ctx, "aborted")
			return nil
		}
	}

	var errs []error
	for _, ref := range args {
		view, getErr := orch.GetVM(ref)
		if getErr != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ref, getErr))
			continue
		}
		if delErr := orch.DeleteVM(ctx, view.ID); delErr != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ref, delErr))
			continue
		}
		logger.Infof(ctx, "deleted VM: %s (%s)", view.ID, view.Name)
	}
	if len(errs) > 0 {
		return fmt.Errorf("rm: %w", errors.Join(errs...))
	}
	return nil
}

func (h Handler) Snapshot(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	orch, err := cmdcore.InitOrchestrator(ctx, conf)
	if err != nil {
		return err
	}

	view, err := orch.GetVM(args[0])
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	info, err := orch.SnapshotVM(ctx, view.ID, args[1])
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	log.WithFunc("cmd.vm.snapshot").Infof(ctx, "template %s created from VM %s (%s)",
		info.Name, view.ID, cmdcore.FormatSize(info.Size))
	return nil
}
