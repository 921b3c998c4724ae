// Package main is the mudra command: the gesture service, offline
// classification of recorded frames and the backend benchmark.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/bench"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/logging"
)

const (
	// Global flags.
	flagConfig   = "config"
	flagLogLevel = "log-level"
	flagDebug    = "debug"
	flagModule   = "module"
	flagWasm     = "wasm"
	flagDB       = "db"

	// serve flags.
	flagAddr    = "addr"
	flagReplay  = "replay"
	flagLoop    = "loop"
	flagCamera  = "camera"
	flagPlugins = "plugins"
	flagStatic  = "static"
	flagNoTray  = "no-tray"
	flagEnable  = "enable"

	// classify flags.
	flagBatch = "batch"

	// bench flags.
	flagIterations = "iterations"
	flagChart      = "chart"
	flagSave       = "save"
)

func main() {
	var (
		cfg    *config.Config
		logger *zap.SugaredLogger
	)

	app := &cli.App{
		Name:  "mudra",
		Usage: "real-time hand gesture classification",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "log level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "development logging with caller information",
			},
			&cli.StringFlag{
				Name:  flagModule,
				Usage: "compiled module: native, wasm or none",
			},
			&cli.StringFlag{
				Name:  flagWasm,
				Usage: "load the compiled module from `FILE` (implies --module wasm)",
			},
			&cli.StringFlag{
				Name:  flagDB,
				Usage: "SQLite database `FILE`",
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			cfg, err = config.LoadOrDefault(c.String(flagConfig))
			if err != nil {
				return err
			}
			applyGlobalFlags(c, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err = logging.New("mudra", cfg.LogLevel, cfg.DevLog)
			return err
		},
		After: func(c *cli.Context) error {
			if logger != nil {
				logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the recognition pipeline with the HTTP API and tray",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagAddr, Usage: "listen `ADDRESS`"},
					&cli.StringFlag{Name: flagReplay, Usage: "read frames from a JSON-lines `FILE` instead of the camera"},
					&cli.BoolFlag{Name: flagLoop, Usage: "restart the replay file at its end"},
					&cli.IntFlag{Name: flagCamera, Value: -1, Usage: "camera `INDEX`"},
					&cli.StringFlag{Name: flagPlugins, Usage: "gesture hook `DIR`"},
					&cli.StringFlag{Name: flagStatic, Usage: "serve the dashboard from `DIR`"},
					&cli.BoolFlag{Name: flagNoTray, Usage: "run without the system tray"},
					&cli.BoolFlag{Name: flagEnable, Usage: "start with detection enabled"},
				},
				Action: func(c *cli.Context) error {
					applyServeFlags(c, cfg)
					return serve(c.Context, cfg, logger, serveOptions{
						tray:   !c.Bool(flagNoTray),
						enable: c.Bool(flagEnable),
					})
				},
			},
			{
				Name:      "classify",
				Usage:     "classify recorded frames and print one result per frame",
				ArgsUsage: "<frames.jsonl>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: flagBatch, Usage: "send all frames to the compiled module in one call"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("classify takes exactly one frames file", 2)
					}
					return classify(c.Context, cfg, logger, c.Args().First(), c.Bool(flagBatch), c.App.Writer)
				},
			},
			{
				Name:  "bench",
				Usage: "compare the compiled and interpreted backends",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    flagIterations,
						Aliases: []string{"n"},
						Value:   bench.DefaultIterations,
						Usage:   "calls per backend",
					},
					&cli.StringFlag{Name: flagChart, Usage: "write an HTML latency chart to `FILE`"},
					&cli.BoolFlag{Name: flagSave, Usage: "store the run in the database"},
				},
				Action: func(c *cli.Context) error {
					return benchmark(c.Context, cfg, logger, benchOptions{
						iterations: c.Int(flagIterations),
						chart:      c.String(flagChart),
						save:       c.Bool(flagSave),
					}, c.App.Writer)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mudra:", err)
		os.Exit(1)
	}
}

func applyGlobalFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet(flagLogLevel) {
		cfg.LogLevel = c.String(flagLogLevel)
	}
	if c.Bool(flagDebug) {
		cfg.LogLevel = "debug"
		cfg.DevLog = true
	}
	if c.IsSet(flagModule) {
		cfg.Module = c.String(flagModule)
	}
	if c.IsSet(flagWasm) {
		cfg.Module = config.ModuleWasm
		cfg.WasmPath = c.String(flagWasm)
	}
	if c.IsSet(flagDB) {
		cfg.DBPath = c.String(flagDB)
	}
}

func applyServeFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet(flagAddr) {
		cfg.Addr = c.String(flagAddr)
	}
	if c.IsSet(flagReplay) {
		cfg.ReplayPath = c.String(flagReplay)
	}
	if c.IsSet(flagLoop) {
		cfg.ReplayLoop = c.Bool(flagLoop)
	}
	if c.IsSet(flagCamera) {
		cfg.CameraID = c.Int(flagCamera)
	}
	if c.IsSet(flagPlugins) {
		cfg.PluginDir = c.String(flagPlugins)
	}
	if c.IsSet(flagStatic) {
		cfg.StaticDir = c.String(flagStatic)
	}
}
