package tpl

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	cmdcore "github.com/projecteru2/burrow/cmd/core"
	"github.com/projecteru2/burrow/config"
	"github.com/projecteru2/burrow/template"
)

type Handler struct {
	cmdcore.BaseHandler
}

// NewHandler builds the template command handler.
func NewHandler(confProvider func() *config.Config) Handler {
	return Handler{BaseHandler: cmdcore.BaseHandler{ConfProvider: confProvider}}
}

func (h Handler) List(cmd *cobra.Command, _ []string) error {
	_, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}

	lib := template.New(conf)
	infos, err := lib.List()
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	if len(infos) == 0 {
		fmt.Println("No templates found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSIZE\tPROTECTED\tMODIFIED")
	for _, info := range infos {
		protected := ""
		if lib.IsProtected(info.Name) {
			protected = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			info.Name,
			cmdcore.FormatSize(info.Size),
			protected,
			info.ModifiedAt.Local().Format(time.DateTime),
		)
	}
	w.Flush() //nolint:errcheck,gosec
	return nil
}
