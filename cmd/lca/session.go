package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mijafro/fork-lca-algebraic/adapters/export"
	"github.com/mijafro/fork-lca-algebraic/adapters/modelfile"
	"github.com/mijafro/fork-lca-algebraic/adapters/store"
	"github.com/mijafro/fork-lca-algebraic/app"
	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/table"
	"github.com/mijafro/fork-lca-algebraic/internal"
	"github.com/mijafro/fork-lca-algebraic/internal/config"
	"github.com/mijafro/fork-lca-algebraic/ports"
)

// globalOptions are the persistent flags. A flag only overrides the
// environment configuration when it was set on the command line.
type globalOptions struct {
	model    string
	methods  string
	params   []string
	n        int
	seed     uint64
	workers  int
	chunk    int
	formats  []string
	out      string
	dsn      string
	logLevel string
}

func (o *globalOptions) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.model, "model", "m", "", "Model file (YAML)")
	f.StringVar(&o.methods, "methods", "", "Comma-separated impact methods (default: all of the model)")
	f.StringSliceVar(&o.params, "params", nil, "Parameters to analyze (default: every variable parameter used)")
	f.IntVar(&o.n, "n", 0, "Sobol base sample size")
	f.Uint64Var(&o.seed, "seed", 0, "Sequence seed")
	f.IntVar(&o.workers, "workers", 0, "Evaluation workers")
	f.IntVar(&o.chunk, "chunk", 0, "Rows per evaluation chunk")
	f.StringSliceVarP(&o.formats, "format", "f", []string{"md"}, "Output formats: "+strings.Join(export.Formats, ", "))
	f.StringVarP(&o.out, "out", "o", "", "Output directory for file formats")
	f.StringVar(&o.dsn, "db", "", "Results database DSN (enables run history)")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: ERROR, WARN, INFO, DEBUG or TRACE")
}

// config loads the environment configuration and applies the flags that
// were set.
func (o *globalOptions) config(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("n") {
		cfg.Analysis.N = o.n
	}
	if flags.Changed("seed") {
		cfg.Analysis.Seed = o.seed
	}
	if flags.Changed("workers") {
		cfg.Workers.Count = o.workers
	}
	if flags.Changed("chunk") {
		cfg.Workers.ChunkSize = o.chunk
	}
	if flags.Changed("out") {
		cfg.Export.Dir = o.out
	}
	if flags.Changed("db") {
		cfg.Results.DSN = o.dsn
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = strings.ToUpper(o.logLevel)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *globalOptions) request(m *modelfile.Model) (app.Request, error) {
	req := app.Request{Methods: m.Methods, Params: o.params}
	if o.methods != "" {
		methods, err := core.ParseMethodKeys(o.methods)
		if err != nil {
			return req, err
		}
		req.Methods = methods
	}
	return req, nil
}

// session is everything a subcommand needs, opened from the flags.
type session struct {
	cfg     *config.Config
	model   *modelfile.Model
	service *app.AnalysisService
	repo    *store.RunRepository
	logger  *internal.Logger
	req     app.Request
}

func (o *globalOptions) open(cmd *cobra.Command, cfg *config.Config) (*session, error) {
	if o.model == "" {
		return nil, fmt.Errorf("--model is required")
	}
	logger := internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))

	m, err := modelfile.Load(o.model)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded %s: %d parameters, root %s", o.model, m.Registry.Len(), m.RootName())

	s := &session{cfg: cfg, model: m, logger: logger}
	var repo ports.RunRepository
	if cfg.Persistence() {
		s.repo, err = store.Open(cmd.Context(), cfg.Results.Driver, cfg.Results.DSN, logger)
		if err != nil {
			return nil, err
		}
		repo = s.repo
	}
	s.service = app.NewAnalysisService(cfg, m.Graph, m.Registry, m.Root, repo, logger)
	if s.req, err = o.request(m); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			s.logger.Warn("closing results database: %v", err)
		}
	}
	_ = s.logger.Sync()
}

// sinks builds one sink per requested format. Markdown goes to stdout.
func sinks(formats []string, dir string) ([]ports.TableSink, error) {
	out := make([]ports.TableSink, 0, len(formats))
	for _, f := range formats {
		sink, err := export.NewSink(f, dir, os.Stdout)
		if err != nil {
			return nil, err
		}
		out = append(out, sink)
	}
	return out, nil
}

// run opens a session, calls fn and exports the tables it returns.
// tune, when set, applies subcommand flags before the service is built.
func (o *globalOptions) run(cmd *cobra.Command, tune func(*config.Config) error,
	fn func(ctx context.Context, s *session) ([]*table.Table, error)) error {

	cfg, err := o.config(cmd)
	if err != nil {
		return err
	}
	if tune != nil {
		if err := tune(cfg); err != nil {
			return err
		}
	}
	out, err := sinks(o.formats, cfg.Export.Dir)
	if err != nil {
		return err
	}
	s, err := o.open(cmd, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	tables, err := fn(cmd.Context(), s)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		return nil
	}
	return s.service.Export(cmd.Context(), out, tables...)
}
