package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/simp-lee/bk/internal/config"
	"github.com/simp-lee/bk/internal/logutils"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date

	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	ctx := context.Background()

	var logCloser func()
	flags := &Flags{}

	app := &cli.Command{
		Name:      "bk",
		Usage:     "Read EPUB books in the terminal",
		UsageText: "bk [options] [path]",
		Description: `bk opens an EPUB and pages through it as reflowed text.

Without a path, the last book read is reopened at the saved position.
Press F1 in the reader for the key bindings.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "meta",
				Aliases:     []string{"m"},
				Usage:       "print metadata and exit",
				Destination: &flags.Meta,
			},
			&cli.BoolFlag{
				Name:        "toc",
				Aliases:     []string{"t"},
				Usage:       "start with the table of contents open",
				Destination: &flags.TOC,
			},
			&cli.IntFlag{
				Name:        "width",
				Aliases:     []string{"w"},
				Usage:       "maximum line width in columns",
				Sources:     cli.EnvVars("BK_WIDTH"),
				Destination: &flags.Width,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("BK_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file",
				Sources:     cli.EnvVars("BK_LOG_FILE"),
				Value:       config.DefaultLogFile(),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("BK_CONFIG"),
				Value:       config.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("BK_DATA_DIR"),
				Value:       config.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logger, closer, err := logutils.New(flags.LogLevel, flags.LogFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			if c.IsSet("width") {
				cfg.Width = flags.Width
			}
			if flags.TOC {
				cfg.TOCOnStart = true
			}
			if err := cfg.ValidateDeep(flags.ConfigPath); err != nil {
				return ctx, fmt.Errorf("invalid config: %w", err)
			}
			flags.Config = cfg

			log.Debug().
				Str("config", flags.ConfigPath).
				Str("data_dir", cfg.DataDir).
				Int("width", cfg.Width).
				Msg("config loaded")
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() > 1 {
				return fmt.Errorf("expected one path, got %d. Run 'bk --help' for usage", c.Args().Len())
			}
			return run(ctx, flags, c.Args().First())
		},
	}

	exitCode := 0
	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		exitCode = 1
	}

	os.Exit(exitCode)
}
