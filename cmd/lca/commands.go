package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mijafro/fork-lca-algebraic/adapters/modelfile"
	"github.com/mijafro/fork-lca-algebraic/adapters/store"
	"github.com/mijafro/fork-lca-algebraic/app"
	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/run"
	"github.com/mijafro/fork-lca-algebraic/domain/table"
	"github.com/mijafro/fork-lca-algebraic/internal"
	"github.com/mijafro/fork-lca-algebraic/internal/config"
)

func newAnalyzeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Compute first-order and total Sobol indices",
		Long: `Sample the analyzed parameters with a scrambled Sobol sequence, evaluate
every method on the shared sample and print S1/ST per parameter with
output statistics.

Example: lca analyze -m bike.yaml --n 4096 --seed 7 -f md,xlsx -o results`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, nil, func(ctx context.Context, s *session) ([]*table.Table, error) {
				report, err := s.service.Analyze(ctx, s.req)
				if err != nil {
					return nil, err
				}
				for _, r := range report.Results {
					if r.Err != nil {
						s.logger.Warn("%s: %v", r.Method, r.Err)
					}
				}
				return report.Tables(), nil
			})
		},
	}
}

func newSimplifyCmd(opts *globalOptions) *cobra.Command {
	var keepFraction, threshold float64
	var validationN int

	cmd := &cobra.Command{
		Use:   "simplify",
		Short: "Fix non-influential parameters and report the reduced expressions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tune := func(cfg *config.Config) error {
				if cmd.Flags().Changed("keep-fraction") {
					cfg.Analysis.KeepFraction = keepFraction
				}
				if cmd.Flags().Changed("threshold") {
					cfg.Analysis.IndexThreshold = threshold
				}
				if cmd.Flags().Changed("validation-n") {
					cfg.Analysis.ValidationN = validationN
				}
				return cfg.Validate()
			}
			return opts.run(cmd, tune, func(ctx context.Context, s *session) ([]*table.Table, error) {
				report, err := s.service.Simplify(ctx, s.req)
				if err != nil {
					return nil, err
				}
				return report.Tables(), nil
			})
		},
	}

	cmd.Flags().Float64Var(&keepFraction, "keep-fraction", 0, "Keep this fraction of parameters, ranked by ST")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Keep parameters with ST at or above this value")
	cmd.Flags().IntVar(&validationN, "validation-n", 0, "Rows used to compare the reduced and full models (0 skips)")
	return cmd
}

func newOATCmd(opts *globalOptions) *cobra.Command {
	var points int

	cmd := &cobra.Command{
		Use:   "oat",
		Short: "Vary each parameter alone and report the relative change of every method",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, nil, func(ctx context.Context, s *session) ([]*table.Table, error) {
				report, err := s.service.OAT(ctx, s.req, points)
				if err != nil {
					return nil, err
				}
				return report.Tables(), nil
			})
		},
	}

	cmd.Flags().IntVar(&points, "points", 5, "Steps per continuous parameter")
	return cmd
}

func newEvalCmd(opts *globalOptions) *cobra.Command {
	var rowsPath string

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate every method at the defaults or at the rows of a CSV file",
		Long: `Evaluate the impact expressions. Without --rows, every parameter takes its
default. The CSV header names parameters; an optional "label" column names
the rows, and choice parameters accept the choice name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, nil, func(ctx context.Context, s *session) ([]*table.Table, error) {
				var rows *table.Table
				if rowsPath != "" {
					var err error
					if rows, err = modelfile.LoadRows(rowsPath, s.model.Registry); err != nil {
						return nil, err
					}
				}
				out, err := s.service.Evaluate(ctx, s.req, rows)
				if err != nil {
					return nil, err
				}
				return []*table.Table{out}, nil
			})
		},
	}

	cmd.Flags().StringVar(&rowsPath, "rows", "", "CSV file of parameter assignments")
	return cmd
}

func newRenderCmd(opts *globalOptions) *cobra.Command {
	var fix []string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the impact expression of every method",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			s, err := opts.open(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.close()

			exprs, methods, err := s.service.Render(s.req, fix...)
			if err != nil {
				return err
			}
			for _, m := range methods {
				fmt.Fprintf(os.Stdout, "%s = %s\n", m, exprs[m])
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&fix, "fix", nil, "Parameters replaced by their default")
	return cmd
}

func newRunsCmd(opts *globalOptions) *cobra.Command {
	var limit int
	var fingerprint string

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored runs, or show the indices of one run",
		Long: `List the runs recorded in the results database, newest first. With a run
ID, print the stored indices and summaries of that run.

Example: RESULTS_DSN=runs.db lca runs --limit 10`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			if !cfg.Persistence() {
				return fmt.Errorf("no results database: set RESULTS_DSN or --db")
			}
			out, err := sinks(opts.formats, cfg.Export.Dir)
			if err != nil {
				return err
			}
			logger := internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
			repo, err := store.Open(cmd.Context(), cfg.Results.Driver, cfg.Results.DSN, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			var tables []*table.Table
			ctx := cmd.Context()
			switch {
			case len(args) == 1:
				tables, err = showRun(ctx, repo, args[0])
			case fingerprint != "":
				var runs []*run.RunManifest
				if runs, err = repo.FindByFingerprint(ctx, core.Hash(fingerprint)); err == nil {
					tables = []*table.Table{runsTable(runs)}
				}
			default:
				var runs []*run.RunManifest
				if runs, err = repo.ListRuns(ctx, limit); err == nil {
					tables = []*table.Table{runsTable(runs)}
				}
			}
			if err != nil {
				return err
			}
			for _, sink := range out {
				if err := sink.Write(ctx, tables...); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs listed (0 for all)")
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "Only runs with this fingerprint")
	return cmd
}

func runsTable(runs []*run.RunManifest) *table.Table {
	t := table.New("Runs", "run", "n", "seed", "workers", "methods", "params")
	for _, m := range runs {
		_ = t.AddRow(m.RunID.String(), float64(m.N), float64(m.Seed), float64(m.Workers),
			float64(len(m.Methods)), float64(len(m.Params)))
		t.Note("%s: %s %s on %s at %s, fingerprint %s", m.RunID, m.Kind, m.CodeVersion, m.Root,
			m.CreatedAt.Format("2006-01-02 15:04:05"), m.Fingerprint.Fingerprint.Short())
	}
	return t
}

func showRun(ctx context.Context, repo *store.RunRepository, id string) ([]*table.Table, error) {
	runID, err := core.ParseRunID(id)
	if err != nil {
		return nil, err
	}
	m, err := repo.GetManifest(ctx, runID)
	if err != nil {
		return nil, err
	}
	indices, err := repo.GetIndices(ctx, runID)
	if err != nil {
		return nil, err
	}
	summaries, err := repo.GetSummaries(ctx, runID)
	if err != nil {
		return nil, err
	}
	return app.StoredTables(m, indices, summaries), nil
}
