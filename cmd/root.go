package cmd

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdothers "github.com/projecteru2/burrow/cmd/others"
	cmdtpl "github.com/projecteru2/burrow/cmd/tpl"
	cmdvm "github.com/projecteru2/burrow/cmd/vm"
	"github.com/projecteru2/burrow/config"
)

var (
	cfgFile string
	conf    *config.Config
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "burrow",
		Short: "Burrow - single-host microVM control plane",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(commandContext(cmd))
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.PersistentFlags().String("root-dir", "", "root data directory")
	cmd.PersistentFlags().String("run-dir", "", "runtime directory")
	cmd.PersistentFlags().String("log-dir", "", "log directory")

	_ = viper.BindPFlag("root_dir", cmd.PersistentFlags().Lookup("root-dir"))
	_ = viper.BindPFlag("run_dir", cmd.PersistentFlags().Lookup("run-dir"))
	_ = viper.BindPFlag("log_dir", cmd.PersistentFlags().Lookup("log-dir"))

	viper.SetEnvPrefix("BURROW")
	viper.AutomaticEnv()

	confProvider := func() *config.Config { return conf }

	cmd.AddCommand(cmdvm.Command(cmdvm.NewHandler(confProvider)))
	cmd.AddCommand(cmdtpl.Command(cmdtpl.NewHandler(confProvider)))
	for _, c := range cmdothers.Commands(cmdothers.NewHandler(confProvider)) {
		cmd.AddCommand(c)
	}

	return cmd
}()

func initConfig(ctx context.Context) error {
	conf = config.DefaultConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	_ = viper.ReadInConfig() // optional; missing file is OK

	if err := viper.Unmarshal(conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if conf.HaltTimeoutSeconds <= 0 {
		conf.HaltTimeoutSeconds = 10 //nolint:mnd
	}
	if conf.PortCount <= 0 {
		return fmt.Errorf("port_count must be positive")
	}

	return log.SetupLog(ctx, &conf.Log, "")
}

// Execute is the main entry point called from main.go.
func Execute() error {
	ctx, cancel := newCommandContext()
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}
