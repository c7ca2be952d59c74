package others

import (
	"fmt"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	cmdcore "github.com/projecteru2/burrow/cmd/core"
	"github.com/projecteru2/burrow/config"
	"github.com/projecteru2/burrow/version"
)

type Handler struct {
	cmdcore.BaseHandler
}

// NewHandler builds the system command handler.
func NewHandler(confProvider func() *config.Config) Handler {
	return Handler{BaseHandler: cmdcore.BaseHandler{ConfProvider: confProvider}}
}

// Serve restores state and then blocks: the TCP forwarding listeners live
// inside this process, so it must stay up as long as VMs are reachable.
func (h Handler) Serve(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	orch, err := cmdcore.InitOrchestrator(ctx, conf)
	if err != nil {
		return err
	}
	actions, err := orch.ReconcileHost(ctx)
	if err != nil {
		return err
	}

	logger := log.WithFunc("cmd.serve")
	logger.Infof(ctx, "recovery done, %d reconciliation action(s)", len(actions))
	logger.Infof(ctx, "serving VM forwarding, send SIGTERM to stop")
	<-ctx.Done()
	logger.Info(ctx, "shutting down")
	return nil
}

func (h Handler) Reconcile(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	orch, err := cmdcore.InitOrchestrator(ctx, conf)
	if err != nil {
		return err
	}
	actions, err := orch.ReconcileHost(ctx)
	if err != nil {
		return err
	}

	logger := log.WithFunc("cmd.reconcile")
	for _, action := range actions {
		if action.Err != nil {
			logger.Warnf(ctx, "%s %s: %v", action.Module, action.ID, action.Err)
			continue
		}
		logger.Infof(ctx, "removed orphaned %s: %s", action.Module, action.ID)
	}
	logger.Infof(ctx, "reconciliation completed, %d action(s)", len(actions))
	return nil
}

func (h Handler) Version(_ *cobra.Command, _ []string) error {
	fmt.Print(version.String())
	return nil
}
