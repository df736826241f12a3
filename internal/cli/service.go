package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"cms-dispatch/internal/platform/autostart"
)

func newServiceCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the Windows service for the dispatch daemon",
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for a state change")

	var exe string
	install := &cobra.Command{
		Use:   "install",
		Short: "Register the daemon as an auto-start service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := exe
			if p == "" {
				self, err := os.Executable()
				if err != nil {
					return err
				}
				p = filepath.Join(filepath.Dir(self), daemonBinary())
			}
			created, err := autostart.Install(autostart.ServiceName, p)
			if err != nil {
				return err
			}
			verb := "updated"
			if created {
				verb = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service %s %s for %s\n", autostart.ServiceName, verb, p)
			return nil
		},
	}
	install.Flags().StringVar(&exe, "exe", "", "Path to the daemon executable (default: next to cmsctl)")

	start := &cobra.Command{
		Use:   "start",
		Short: "Start the service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return autostart.Start(autostart.ServiceName, timeout)
		},
	}

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop the service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return autostart.Stop(autostart.ServiceName, timeout)
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Print the service state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := autostart.Status(autostart.ServiceName)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", autostart.ServiceName, st)
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove",
		Short: "Stop and unregister the service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return autostart.Remove(autostart.ServiceName, timeout)
		},
	}

	cmd.AddCommand(install, start, stop, status, remove)
	return cmd
}

func daemonBinary() string {
	if filepath.Ext(os.Args[0]) == ".exe" {
		return autostart.ServiceName + ".exe"
	}
	return autostart.ServiceName
}
