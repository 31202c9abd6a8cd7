package cli

import (
	"io"

	"github.com/ahmadzakiakmal/iota-tx-service/config"
	cmtflags "github.com/cometbft/cometbft/libs/cli/flags"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type RootOptions struct {
	ConfigFile string
	LogLevel   string
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		cmd.PrintErrln("Error:", err)
		return 1
	}
	return 0
}

func NewRootCmd() *cobra.Command {
	opts := &RootOptions{}
	cmd := &cobra.Command{
		Use:           "txservice",
		Short:         "IOTA transaction record service",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "Path to a TOML/YAML/JSON config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level override (e.g. info, *:debug)")

	cmd.AddCommand(
		newServeCmd(opts),
		newDigestCmd(),
		newBenchCmd(),
	)
	return cmd
}

// loadConfig resolves flags, environment and file into a validated config.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	v := viper.New()
	if opts.LogLevel != "" {
		v.Set("log.level", opts.LogLevel)
	}
	return config.Load(v, opts.ConfigFile)
}

func newLogger(w io.Writer, level string) (cmtlog.Logger, error) {
	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(w))
	return cmtflags.ParseLogLevel(level, logger, config.DefaultLogLevel)
}
