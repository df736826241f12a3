package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cms-dispatch/internal/config"
	"cms-dispatch/internal/logger"
)

type rootOptions struct {
	configPath string
	verbose    bool
	log        *zap.Logger
}

// NewRootCommand builds the cmsctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "cmsctl",
		Short:         "Operate the CMS stored-procedure dispatch layer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts.log = logger.NewStderr()
			if !opts.verbose {
				opts.log = opts.log.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file (default: machine-wide path or $"+config.EnvConfigPath+")")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log dispatch details to stderr")

	root.AddCommand(
		newPingCommand(opts),
		newResolveCommand(opts),
		newCallCommand(opts),
		newConfigCommand(opts),
		newServiceCommand(),
	)
	return root
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if p := strings.TrimSpace(o.configPath); p != "" {
		cfg, err = config.LoadFile(p)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return cfg, errors.New("config not found; run `cmsctl config init` first")
		}
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (o *rootOptions) logger() *zap.Logger {
	if o.log == nil {
		return zap.NewNop()
	}
	return o.log
}
