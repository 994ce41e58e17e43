package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"quantlab/internal/api"
	"quantlab/internal/app"
	"quantlab/internal/gather"
	"quantlab/internal/report"
	"quantlab/internal/store"
	"quantlab/internal/strategy"
)

var windowFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "start",
		Usage: "first date, YYYY-MM-DD (default: data.start_date)",
	},
	&cli.StringFlag{
		Name:  "end",
		Usage: "last date, YYYY-MM-DD (default: data.end_date or today)",
	},
	&cli.BoolFlag{
		Name:  "save",
		Usage: "store the result in the run database",
	},
}

var searchFlags = append([]cli.Flag{
	&cli.StringFlag{
		Name:     "symbol",
		Aliases:  []string{"s"},
		Usage:    "the symbol to optimise on",
		Required: true,
	},
	&cli.StringFlag{
		Name:  "strategy",
		Usage: "strategy name (default: strategy.name)",
	},
	&cli.StringSliceFlag{
		Name:  "param-space",
		Usage: "name=v1,v2,... (repeatable, default: optimizer.param_space)",
	},
	&cli.StringFlag{
		Name:  "metric",
		Usage: "target metric: sharpe_ratio, total_return or max_drawdown",
	},
	&cli.IntFlag{
		Name:  "top",
		Value: 10,
		Usage: "rows to print",
	},
	&cli.StringFlag{
		Name:  "csv",
		Usage: "write the full result to this CSV file",
	},
}, windowFlags...)

var strategiesCommand = &cli.Command{
	Name:   "strategies",
	Usage:  "list registered strategies and their default parameters",
	Action: listStrategies,
}

var importCommand = &cli.Command{
	Name:      "import",
	Usage:     "load daily bars for a symbol from a CSV file",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "symbol",
			Aliases:  []string{"s"},
			Usage:    "the symbol the file holds",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "file",
			Usage: "CSV with date, open, high, low, close and optional volume columns",
		},
	},
	Action: importBars,
}

var fetchCommand = &cli.Command{
	Name:  "fetch",
	Usage: "fetch missing daily bars from the remote provider",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:     "symbols",
			Usage:    "symbols to update, comma separated or repeated",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "end",
			Usage: "last date to fetch, YYYY-MM-DD (default: today)",
		},
	},
	Action: fetchBars,
}

var backtestCommand = &cli.Command{
	Name:  "backtest",
	Usage: "run one strategy over one symbol",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:     "symbol",
			Aliases:  []string{"s"},
			Usage:    "the symbol to test",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "strategy",
			Usage: "strategy name (default: strategy.name)",
		},
		&cli.StringSliceFlag{
			Name:  "param",
			Usage: "strategy parameter as key=value (repeatable)",
		},
		&cli.IntFlag{
			Name:  "trades",
			Value: 20,
			Usage: "number of most recent trades to print, 0 for all",
		},
		&cli.StringFlag{
			Name:  "trades-csv",
			Usage: "write all trades to this CSV file",
		},
		&cli.StringFlag{
			Name:  "equity-csv",
			Usage: "write the daily equity trace to this CSV file",
		},
	}, windowFlags...),
	Action: runBacktest,
}

var gridCommand = &cli.Command{
	Name:   "grid",
	Usage:  "rank every parameter combination of a strategy",
	Flags:  searchFlags,
	Action: runGrid,
}

var walkForwardCommand = &cli.Command{
	Name:  "walkforward",
	Usage: "optimise on rolling train windows and score on the following test windows",
	Flags: append([]cli.Flag{
		&cli.IntFlag{
			Name:  "splits",
			Usage: "number of folds (default: optimizer.n_splits)",
		},
		&cli.Float64Flag{
			Name:  "train-ratio",
			Usage: "share of each fold used for training (default: optimizer.train_ratio)",
		},
	}, searchFlags...),
	Action: runWalkForward,
}

var batchCommand = &cli.Command{
	Name:  "batch",
	Usage: "run every strategy over every symbol and rank the results",
	Flags: append([]cli.Flag{
		&cli.StringSliceFlag{
			Name:  "symbols",
			Usage: "symbols, comma separated or repeated (default: batch.symbols)",
		},
		&cli.StringSliceFlag{
			Name:  "strategies",
			Usage: "strategy names with default parameters (default: batch.strategies)",
		},
		&cli.StringFlag{
			Name:  "sort-by",
			Usage: "ranking metric (default: batch.sort_by)",
		},
		&cli.StringFlag{
			Name:  "csv",
			Usage: "write the table to this CSV file",
		},
	}, windowFlags...),
	Action: runBatch,
}

var runsCommand = &cli.Command{
	Name:      "runs",
	Usage:     "inspect saved runs",
	ArgsUsage: "<command> <args>",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "list the most recent runs",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "limit",
					Value: 20,
					Usage: "maximum runs to list",
				},
			},
			Action: listRuns,
		},
		{
			Name:      "show",
			Usage:     "show one run with its trades",
			ArgsUsage: "<id>",
			Action:    showRun,
		},
	},
}

// ---------------------------------------------------------------------------
// Actions
// ---------------------------------------------------------------------------

func withApp(c *cli.Context, fn func(*app.App) error) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func listStrategies(c *cli.Context) error {
	return withApp(c, func(a *app.App) error {
		infos := a.Service.Strategies()
		if asJSON {
			return jsonOutput(infos)
		}
		for _, info := range infos {
			fmt.Printf("%-16s %s\n", info.Name, strategy.Config{Name: info.Name, Params: info.Defaults})
		}
		return nil
	})
}

func importBars(c *cli.Context) error {
	path := c.String("file")
	if path == "" {
		path = c.Args().First()
	}
	if path == "" {
		return cli.ShowSubcommandHelp(c)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	symbol := c.String("symbol")
	bars, err := gather.ReadCSV(f, symbol)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return withApp(c, func(a *app.App) error {
		n, err := a.Loader.Import(c.Context, symbol, bars)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d bars for %s\n", n, symbol)
		return nil
	})
}

func fetchBars(c *cli.Context) error {
	end := time.Now()
	if s := c.String("end"); s != "" {
		var err error
		if end, err = time.Parse(time.DateOnly, s); err != nil {
			return fmt.Errorf("parsing --end: %w", err)
		}
	}
	return withApp(c, func(a *app.App) error {
		var failed int
		for _, symbol := range splitList(c.StringSlice("symbols")) {
			n, err := a.Loader.Update(c.Context, symbol, end)
			if errors.Is(err, gather.ErrNoProvider) {
				return fmt.Errorf("%w: set alpaca credentials and data.fetch", err)
			}
			if err != nil {
				if c.Context.Err() != nil {
					return c.Context.Err()
				}
				fmt.Fprintf(os.Stderr, "%s: %v\n", symbol, err)
				failed++
				continue
			}
			fmt.Printf("%s: %d new bars\n", symbol, n)
		}
		if failed > 0 {
			return fmt.Errorf("%d symbols failed", failed)
		}
		return nil
	})
}

func runBacktest(c *cli.Context) error {
	params, err := parseParams(c.StringSlice("param"))
	if err != nil {
		return err
	}
	req := api.BacktestRequest{
		Symbol:   c.String("symbol"),
		Strategy: strategy.Config{Name: c.String("strategy"), Params: params},
		Start:    c.String("start"),
		End:      c.String("end"),
		Save:     c.Bool("save"),
	}
	if req.Strategy.Name == "" && params != nil {
		return errors.New("--param needs --strategy")
	}

	return withApp(c, func(a *app.App) error {
		resp, err := a.Service.Backtest(c.Context, req)
		if err != nil {
			return err
		}
		if err := writeCSV(c.String("trades-csv"), func(w io.Writer) error {
			return report.WriteTradesCSV(w, resp.Trades)
		}); err != nil {
			return err
		}
		if err := writeCSV(c.String("equity-csv"), func(w io.Writer) error {
			return report.WriteEquityCSV(w, resp.Equity)
		}); err != nil {
			return err
		}
		if asJSON {
			return jsonOutput(resp)
		}
		fmt.Println(report.SummaryTable(resp.Summary))
		if len(resp.Trades) > 0 {
			fmt.Println(report.TradesTable(resp.Trades, c.Int("trades")))
		}
		printRunID(resp.RunID)
		return nil
	})
}

func gridRequest(c *cli.Context) (api.GridRequest, error) {
	space, err := parseParamSpace(c.StringSlice("param-space"))
	if err != nil {
		return api.GridRequest{}, err
	}
	return api.GridRequest{
		Symbol:       c.String("symbol"),
		Strategy:     c.String("strategy"),
		ParamSpace:   space,
		Start:        c.String("start"),
		End:          c.String("end"),
		TargetMetric: c.String("metric"),
		Save:         c.Bool("save"),
	}, nil
}

func runGrid(c *cli.Context) error {
	req, err := gridRequest(c)
	if err != nil {
		return err
	}
	return withApp(c, func(a *app.App) error {
		resp, err := a.Service.GridSearch(c.Context, req)
		if err != nil {
			return err
		}
		if err := writeCSV(c.String("csv"), func(w io.Writer) error {
			return report.WriteGridCSV(w, resp.GridSearchResult)
		}); err != nil {
			return err
		}
		if asJSON {
			return jsonOutput(resp)
		}
		fmt.Println(report.GridTable(resp.GridSearchResult, c.Int("top")))
		printRunID(resp.RunID)
		return nil
	})
}

func runWalkForward(c *cli.Context) error {
	req, err := gridRequest(c)
	if err != nil {
		return err
	}
	wf := api.WalkForwardRequest{
		GridRequest: req,
		NSplits:     c.Int("splits"),
		TrainRatio:  c.Float64("train-ratio"),
	}
	return withApp(c, func(a *app.App) error {
		resp, err := a.Service.WalkForward(c.Context, wf)
		if err != nil {
			return err
		}
		if err := writeCSV(c.String("csv"), func(w io.Writer) error {
			return report.WriteFoldsCSV(w, resp.WalkForwardSummary)
		}); err != nil {
			return err
		}
		if asJSON {
			return jsonOutput(resp)
		}
		fmt.Println(report.FoldsTable(resp.WalkForwardSummary))
		printRunID(resp.RunID)
		return nil
	})
}

func runBatch(c *cli.Context) error {
	req := api.BatchRequest{
		Symbols:    splitList(c.StringSlice("symbols")),
		Strategies: strategyConfigs(c.StringSlice("strategies")),
		Start:      c.String("start"),
		End:        c.String("end"),
		SortBy:     c.String("sort-by"),
		Save:       c.Bool("save"),
	}
	return withApp(c, func(a *app.App) error {
		resp, err := a.Service.Batch(c.Context, req)
		if err != nil {
			return err
		}
		if err := writeCSV(c.String("csv"), func(w io.Writer) error {
			return report.WriteBatchCSV(w, resp.Table)
		}); err != nil {
			return err
		}
		if asJSON {
			return jsonOutput(resp)
		}
		fmt.Println(report.BatchTable(resp.Table))
		printRunID(resp.RunID)
		return nil
	})
}

func listRuns(c *cli.Context) error {
	return withApp(c, func(a *app.App) error {
		runs, err := a.Service.Runs(c.Context, c.Int("limit"))
		if err != nil {
			return err
		}
		return printRuns(runs)
	})
}

func showRun(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return cli.ShowSubcommandHelp(c)
	}
	return withApp(c, func(a *app.App) error {
		run, err := a.Service.Run(c.Context, id)
		if err != nil {
			return err
		}
		return printRun(run)
	})
}

// ---------------------------------------------------------------------------
// Output helpers
// ---------------------------------------------------------------------------

func printRuns(runs []store.Run) error {
	if asJSON {
		return jsonOutput(runs)
	}
	fmt.Println(report.RunsTable(runs))
	return nil
}

func printRun(run *store.Run) error {
	if asJSON {
		return jsonOutput(run)
	}
	fmt.Println(report.RunsTable([]store.Run{*run}))
	if len(run.Trades) > 0 {
		fmt.Println(report.TradesTable(run.Trades, 0))
	}
	return nil
}

func printRunID(id string) {
	if id != "" {
		fmt.Printf("saved run %s\n", id)
	}
}

// writeCSV creates path and hands it to write. An empty path is a no-op.
func writeCSV(path string, write func(io.Writer) error) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
