package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"specproof/internal/api"
	"specproof/internal/config"
	"specproof/internal/counterexample"
	"specproof/internal/dsl"
	"specproof/internal/metrics"
	"specproof/internal/pg"
	"specproof/internal/runs"
	"specproof/internal/verify"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	if err := newApp().Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "specproof",
		Usage: "Consistency, completeness and counterexample checks for system specifications",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "specproof.json", Usage: "path to config JSON"},
			&cli.StringFlag{Name: "log-level", Usage: "debug | info | warn | error"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			verifyCommand(),
			lintCommand(),
			suspiciousCommand(),
			counterexampleCommand(),
			diffCommand(),
		},
	}
}

// loadConfig: файл и ENV из config.Load, затем явно заданные флаги.
func loadConfig(c *cli.Command) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("timeout") {
		cfg.SolverTimeout = c.Duration("timeout")
		cfg.FinderTimeout = c.Duration("timeout")
	}
	if c.IsSet("port") {
		cfg.Port = c.String("port")
	}
	if c.IsSet("spec-dir") {
		cfg.SpecDir = c.String("spec-dir")
	}
	if c.IsSet("db") {
		cfg.DBURL = c.String("db")
	}
	if c.IsSet("auto-migrate") {
		cfg.AutoMigrate = c.Bool("auto-migrate")
	}
	return cfg, nil
}

func timeoutFlag() cli.Flag {
	return &cli.DurationFlag{Name: "timeout", Usage: "solver timeout per check (e.g. 5s)"}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}
}

// loadArgSpec читает спецификацию из файла, заданного n-м аргументом.
func loadArgSpec(c *cli.Command, n int) (*dsl.Specification, error) {
	path := c.Args().Get(n)
	if path == "" {
		return nil, cli.Exit("specification file is required", 2)
	}
	return dsl.LoadSpec(path)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run HTTP server over a directory of specifications",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Usage: "HTTP port"},
			&cli.StringFlag{Name: "spec-dir", Usage: "directory with *.yaml specifications"},
			&cli.StringFlag{Name: "db", Usage: "Postgres URL (empty = in-memory run history)"},
			&cli.BoolFlag{Name: "auto-migrate", Usage: "create run history tables on start"},
			timeoutFlag(),
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	specs, err := dsl.LoadAllSpecs(cfg.SpecDir)
	if err != nil {
		return fmt.Errorf("load specifications: %w", err)
	}
	log.Printf("loaded specifications: %d (%s)", len(specs), cfg.SpecDir)
	for _, it := range api.SchemaLint(specs, false) {
		logger.Warn("lint", "spec", it.Spec, "code", it.Code, "issue", it.Issue.String())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var store runs.Store = runs.NewMemoryStore()
	if cfg.DBURL != "" {
		rs, err := pg.Connect(ctx, cfg.DBURL, cfg.AutoMigrate)
		if err != nil {
			return fmt.Errorf("run history: %w", err)
		}
		defer rs.Close()
		store = rs
		log.Printf("run history: postgres")
	}

	v := verify.New(verify.WithTimeout(cfg.SolverTimeout), verify.WithLogger(logger), verify.WithMetrics(m))
	f := counterexample.New(counterexample.WithTimeout(cfg.FinderTimeout), counterexample.WithLogger(logger), counterexample.WithMetrics(m))
	svc := api.NewService(api.NewRegistry(cfg.SpecDir, specs), v, f, store, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return api.RunServer(ctx, ":"+cfg.Port, api.NewRouter(svc, reg))
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Check consistency of invariants and completeness of services",
		ArgsUsage: "<spec.yaml>",
		Flags:     []cli.Flag{timeoutFlag(), jsonFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			spec, err := loadArgSpec(c, 0)
			if err != nil {
				return err
			}
			res := verify.New(verify.WithTimeout(cfg.SolverTimeout), verify.WithLogger(cfg.Logger())).Verify(ctx, spec)
			if c.Bool("json") {
				if err := printJSON(res); err != nil {
					return err
				}
			} else {
				printResult(spec, res)
			}
			if !res.IsConsistent || !res.IsComplete {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func lintCommand() *cli.Command {
	return &cli.Command{
		Name:      "lint",
		Usage:     "Report references to unknown entities/fields and facet mismatches",
		ArgsUsage: "<spec.yaml>",
		Flags:     []cli.Flag{jsonFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			spec, err := loadArgSpec(c, 0)
			if err != nil {
				return err
			}
			issues := dsl.Lint(spec)
			if c.Bool("json") {
				if issues == nil {
					issues = []dsl.Issue{}
				}
				return printJSON(issues)
			}
			printIssues(issues)
			return nil
		},
	}
}

func suspiciousCommand() *cli.Command {
	return &cli.Command{
		Name:      "suspicious",
		Usage:     "Probe entities for edge-case states allowed by the invariants",
		ArgsUsage: "<spec.yaml>",
		Flags:     []cli.Flag{timeoutFlag(), jsonFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			spec, err := loadArgSpec(c, 0)
			if err != nil {
				return err
			}
			f := counterexample.New(counterexample.WithTimeout(cfg.FinderTimeout), counterexample.WithLogger(cfg.Logger()))
			states, ferr := f.FindSuspiciousStates(ctx, spec)
			if c.Bool("json") {
				if err := printJSON(states); err != nil {
					return err
				}
			} else {
				printStates(states)
			}
			return ferr
		},
	}
}

func counterexampleCommand() *cli.Command {
	return &cli.Command{
		Name:      "counterexample",
		Usage:     "Search for a state that violates one invariant",
		ArgsUsage: "<spec.yaml>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "entity", Required: true},
			&cli.StringFlag{Name: "invariant", Required: true, Usage: `e.g. "balance >= 0"`},
			timeoutFlag(),
			jsonFlag(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			spec, err := loadArgSpec(c, 0)
			if err != nil {
				return err
			}
			f := counterexample.New(counterexample.WithTimeout(cfg.FinderTimeout), counterexample.WithLogger(cfg.Logger()))
			st, err := f.FindCounterexampleForInvariant(ctx, spec, c.String("entity"), c.String("invariant"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(st)
			}
			if st == nil {
				fmt.Println("no counterexample: invariant cannot be violated under the other invariants")
				return nil
			}
			printStates([]counterexample.SuspiciousState{*st})
			return nil
		},
	}
}

func diffCommand() *cli.Command {
	return &cli.Command{
		Name:      "diff",
		Usage:     "Show structural changes between two versions of a specification",
		ArgsUsage: "<old.yaml> <new.yaml>",
		Flags:     []cli.Flag{jsonFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			prev, err := loadArgSpec(c, 0)
			if err != nil {
				return err
			}
			next, err := loadArgSpec(c, 1)
			if err != nil {
				return err
			}
			d := dsl.Diff(prev, next)
			if c.Bool("json") {
				return printJSON(d)
			}
			printDiff(d)
			return nil
		},
	}
}
