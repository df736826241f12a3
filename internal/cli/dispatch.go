package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"cms-dispatch/internal/config"
	"cms-dispatch/internal/db"
	"cms-dispatch/internal/dispatch"
)

type callOptions struct {
	rptCd   string
	jobGb   string
	empNo   string
	params  []string
	ip      string
	agent   string
	timeout time.Duration
	file    bool
}

func (c *callOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.rptCd, "rpt", "", "Operation code (rptCd)")
	cmd.Flags().StringVar(&c.jobGb, "job", "GET", "Job kind (jobGb)")
	cmd.Flags().StringVar(&c.empNo, "emp", "", "Caller employee number")
	cmd.Flags().StringArrayVarP(&c.params, "param", "p", nil, "Positional parameter, repeatable")
	cmd.Flags().StringVar(&c.ip, "ip", "127.0.0.1", "Client IP reported to the resolver")
	cmd.Flags().StringVar(&c.agent, "agent", "cmsctl", "User agent reported to the resolver")
	cmd.Flags().DurationVar(&c.timeout, "timeout", 30*time.Second, "Overall timeout")
	_ = cmd.MarkFlagRequired("rpt")
}

func (c *callOptions) request() dispatch.Request {
	params := c.params
	if params == nil {
		params = []string{}
	}
	return dispatch.Request{
		RptCd:  c.rptCd,
		JobGb:  c.jobGb,
		EmpNo:  c.empNo,
		Params: params,
		Client: dispatch.Client{IP: c.ip, UserAgent: c.agent},
	}
}

func newPingCommand(root *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check the database and the resolver procedures",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := db.TestConnection(ctx, cfg); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			conn, opt, err := openDispatch(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := db.EnsureProcedures(ctx, conn, opt.Dialect, opt.PlainResolver, opt.FileResolver); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s %s:%d/%s, resolvers %s, %s\n",
				cfg.DB.Driver, cfg.DB.Host, cfg.DB.Port, cfg.DB.Database, opt.PlainResolver, opt.FileResolver)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Connection timeout")
	return cmd
}

func newResolveCommand(root *rootOptions) *cobra.Command {
	opts := &callOptions{}
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve an operation code and print the call it would make",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			conn, opt, err := openDispatch(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			var meta dispatch.ProcedureMetadata
			if opts.file {
				req := opts.request()
				meta, _, err = dispatch.NewFile(conn, opt, root.logger()).Prepare(ctx, dispatch.FileRequest{
					RptCd:  req.RptCd,
					JobGb:  req.JobGb,
					EmpNo:  req.EmpNo,
					Params: dispatch.TextParams(req.Params),
					Client: req.Client,
				})
			} else {
				meta, _, err = dispatch.New(conn, opt, root.logger()).Prepare(ctx, opts.request())
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), meta)
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.file, "file", false, "Resolve through the file-track resolver")
	return cmd
}

func newCallCommand(root *rootOptions) *cobra.Command {
	opts := &callOptions{}
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Run a plain dispatch and print the rows as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			conn, opt, err := openDispatch(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			d := dispatch.New(conn, opt, root.logger())
			rows, err := d.Dispatch(ctx, opts.request())
			if err != nil {
				return fmt.Errorf("%s: %w", dispatch.Code(err), err)
			}
			return writeJSON(cmd.OutOrStdout(), rows)
		},
	}
	opts.bind(cmd)
	return cmd
}

func openDispatch(cfg config.Config) (*sqlx.DB, dispatch.Options, error) {
	opt, err := dispatch.OptionsFromConfig(cfg)
	if err != nil {
		return nil, dispatch.Options{}, err
	}
	dbOpt := db.DefaultOptions()
	dbOpt.MaxOpenConns = 2
	dbOpt.MaxIdleConns = 1
	conn, err := db.Open(cfg, dbOpt)
	if err != nil {
		return nil, dispatch.Options{}, err
	}
	return conn, opt, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
