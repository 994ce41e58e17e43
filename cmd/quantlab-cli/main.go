package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"quantlab/internal/app"
	"quantlab/internal/config"
	"quantlab/internal/util"
)

const version = "0.1.0"

var (
	configPath string
	logLevel   string
	asJSON     bool
)

func jsonOutput(in any) error {
	j, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(j))
	return nil
}

// loadConfig reads --config. A missing default file falls back to built-in
// defaults plus environment overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) && !c.IsSet("config") {
		return config.Parse(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func openApp(c *cli.Context) (*app.App, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	logger := util.NewLoggerTo(os.Stderr, logLevel, "text")
	util.SetDefault(logger)
	return app.Open(c.Context, cfg, logger)
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "print the CLI version",
	Action: func(_ *cli.Context) error {
		fmt.Printf("quantlab-cli %s\n", version)
		return nil
	},
}

func main() {
	defaultConfig := "configs/quantlab.yaml"
	if p := os.Getenv("QUANTLAB_CONFIG"); p != "" {
		defaultConfig = p
	}

	cliApp := cli.NewApp()
	cliApp.Name = "quantlab-cli"
	cliApp.Version = version
	cliApp.EnableBashCompletion = true
	cliApp.Usage = "run backtests, parameter searches and batch comparisons on daily bars"
	cliApp.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       defaultConfig,
			Usage:       "path to the quantlab config file",
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Value:       "warn",
			Usage:       "debug, info, warn or error",
			Destination: &logLevel,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print results as JSON instead of tables",
			Destination: &asJSON,
		},
	}
	cliApp.Commands = []*cli.Command{
		versionCommand,
		strategiesCommand,
		importCommand,
		fetchCommand,
		backtestCommand,
		gridCommand,
		walkForwardCommand,
		batchCommand,
		runsCommand,
		remoteCommand,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
