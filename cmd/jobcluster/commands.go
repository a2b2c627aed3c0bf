package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/jobcluster/internal/archive"
	"github.com/mattjoyce/jobcluster/internal/config"
	"github.com/mattjoyce/jobcluster/internal/doctor"
	"github.com/mattjoyce/jobcluster/internal/entrypoint"
	"github.com/mattjoyce/jobcluster/internal/inspect"
	"github.com/mattjoyce/jobcluster/internal/jobgraph"
	"github.com/mattjoyce/jobcluster/internal/log"
	"github.com/mattjoyce/jobcluster/internal/storage"
)

// loadConfig resolves --config (or discovers a config file) and loads it.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			return nil, "", err
		}
		path = discovered
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Run the dispatcher
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured job",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return &exitError{code: entrypoint.ExitBootstrapFailure, err: err}
			}
			if mode, _ := cmd.Flags().GetString("execution-mode"); mode != "" {
				cfg.Execution.Mode = mode
			}

			log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
			log.WithComponent("main").Info("jobcluster starting",
				"version", version, "config", path, "mode", cfg.Execution.Mode)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if code := entrypoint.New(cfg).Run(ctx); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().String("execution-mode", "", "override execution.mode (NORMAL or DETACHED)")
	return cmd
}

// Check config, mode and job graph without running anything
func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the bootstrap checks without starting the job",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return &exitError{code: entrypoint.ExitBootstrapFailure, err: err}
			}

			result := doctor.New(cfg, jobgraph.FileSource{}).Validate(cmd.Context())

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				report, err := doctor.FormatJSON(result)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, report)
			} else {
				fmt.Fprint(out, doctor.FormatHuman(result))
			}

			if !result.Valid {
				return &exitError{code: entrypoint.ExitBootstrapFailure}
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print the report as JSON")
	return cmd
}

// List archived jobs
func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List archived jobs from the state database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			db, err := storage.OpenSQLite(ctx, cfg.State.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			jobs, err := archive.New(db).List(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB ID\tNAME\tSTATE\tFINISHED")
			for _, j := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j.JobID, j.JobName, j.State, j.FinishedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

// Report on one archived job
func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <job-id>",
		Short: "Show the archived execution graph of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			db, err := storage.OpenSQLite(ctx, cfg.State.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			store := archive.New(db)
			var report string
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				report, err = inspect.BuildJSONReport(ctx, store, args[0])
			} else {
				report, err = inspect.BuildReport(ctx, store, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), strings.TrimRight(report, "\n")+"\n")
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print the report as JSON")
	return cmd
}

// Print version information
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "jobcluster %s", version)
			if commit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s)", commit)
			}
			if buildDate != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " built %s", buildDate)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		},
	}
}
