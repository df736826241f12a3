package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"cms-dispatch/internal/config"
	"cms-dispatch/internal/secrets"
)

func newConfigCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the dispatch config file",
	}
	cmd.AddCommand(newConfigInitCommand(root), newConfigShowCommand(root), newConfigPathCommand(root), newSetSecretCommand(root))
	return cmd
}

func (o *rootOptions) configFile() (string, error) {
	if p := strings.TrimSpace(o.configPath); p != "" {
		return p, nil
	}
	return config.Path()
}

func newConfigInitCommand(root *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := root.configFile()
			if err != nil {
				return err
			}
			if _, err := os.Stat(p); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", p)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.SaveFile(p, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", p)
			fmt.Fprintln(cmd.OutOrStdout(), "set DB_PASSWORD and JWT_SECRET (or SERVICE_TOKEN) in the environment or a .env file")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigShowCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cfg.ServiceToken != "" {
				cfg.ServiceToken = "***"
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newConfigPathCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := root.configFile()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func newSetSecretCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "set-secret <key>",
		Short:     "Store a credential read from stdin",
		Long:      "Store a credential read from stdin. Keys: " + strings.Join(secrets.Keys(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: secrets.Keys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !secrets.KnownKey(key) {
				return fmt.Errorf("unknown secret %q; expected one of %s", key, strings.Join(secrets.Keys(), ", "))
			}
			p, err := root.configFile()
			if err != nil {
				return err
			}
			b, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 64<<10))
			if err != nil {
				return err
			}
			value := strings.TrimRight(string(b), "\r\n")
			if value == "" {
				return errors.New("empty value on stdin")
			}
			if err := secrets.NewStore(secrets.DirFor(p)).Set(key, []byte(value)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", key)
			return nil
		},
	}
}
