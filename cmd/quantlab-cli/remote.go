package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"quantlab/internal/report"
	"quantlab/internal/strategy"
	"quantlab/pkg/quantlab"
)

const defaultTimeout = 5 * time.Minute

var (
	remoteAddr    string
	remoteTimeout time.Duration
)

var remoteCommand = &cli.Command{
	Name:      "remote",
	Usage:     "call a running quantlab-server over gRPC",
	ArgsUsage: "<command> <args>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Value:       "localhost:9090",
			Usage:       "the gRPC address of quantlab-server",
			Destination: &remoteAddr,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Value:       defaultTimeout,
			Usage:       "request timeout",
			Destination: &remoteTimeout,
		},
	},
	Subcommands: []*cli.Command{
		{
			Name:   "strategies",
			Usage:  "list the server's strategies",
			Action: remoteStrategies,
		},
		{
			Name:  "backtest",
			Usage: "run a backtest on the server",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:     "symbol",
					Aliases:  []string{"s"},
					Usage:    "the symbol to test",
					Required: true,
				},
				&cli.StringFlag{
					Name:  "strategy",
					Usage: "strategy name (default: server's strategy.name)",
				},
				&cli.StringSliceFlag{
					Name:  "param",
					Usage: "strategy parameter as key=value (repeatable)",
				},
			}, windowFlags...),
			Action: remoteBacktest,
		},
		{
			Name:  "runs",
			Usage: "list the server's saved runs",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "limit",
					Value: 20,
					Usage: "maximum runs to list",
				},
			},
			Action: remoteRuns,
		},
		{
			Name:      "run",
			Usage:     "show one saved run",
			ArgsUsage: "<id>",
			Action:    remoteRun,
		},
	},
}

func withClient(c *cli.Context, fn func(context.Context, *quantlab.Client) error) error {
	client, err := quantlab.Dial(remoteAddr)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(c.Context, remoteTimeout)
	defer cancel()
	return fn(ctx, client)
}

func remoteStrategies(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, client *quantlab.Client) error {
		infos, err := client.Strategies(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return jsonOutput(infos)
		}
		for _, info := range infos {
			fmt.Printf("%-16s %s\n", info.Name, strategy.Config{Name: info.Name, Params: info.Defaults})
		}
		return nil
	})
}

func remoteBacktest(c *cli.Context) error {
	params, err := parseParams(c.StringSlice("param"))
	if err != nil {
		return err
	}
	req := quantlab.BacktestRequest{
		Symbol:   c.String("symbol"),
		Strategy: strategy.Config{Name: c.String("strategy"), Params: params},
		Start:    c.String("start"),
		End:      c.String("end"),
		Save:     c.Bool("save"),
	}
	return withClient(c, func(ctx context.Context, client *quantlab.Client) error {
		resp, err := client.Backtest(ctx, req)
		if err != nil {
			return err
		}
		if asJSON {
			return jsonOutput(resp)
		}
		fmt.Println(report.SummaryTable(resp.Summary))
		printRunID(resp.RunID)
		return nil
	})
}

func remoteRuns(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, client *quantlab.Client) error {
		runs, err := client.Runs(ctx, c.Int("limit"))
		if err != nil {
			return err
		}
		return printRuns(runs)
	})
}

func remoteRun(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return cli.ShowSubcommandHelp(c)
	}
	return withClient(c, func(ctx context.Context, client *quantlab.Client) error {
		run, err := client.Run(ctx, id)
		if err != nil {
			return err
		}
		return printRun(run)
	})
}
