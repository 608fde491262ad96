package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/steve/internal/logger"
)

func main() {
	var closeLog func() error

	app := &cli.Command{
		Name:  "steve",
		Usage: "Batched text and chat completion",
		Flags: append(configFlags(), loggingFlags()...),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := LoadConfig(configFile)
			if err != nil {
				return ctx, err
			}
			loadedConfig = cfg
			applyLoggingConfig(cmd, cfg)

			log, closeFn, err := logger.Setup(loggingOptions())
			if err != nil {
				return ctx, err
			}
			closeLog = closeFn
			return logger.WithContext(ctx, log), nil
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			if closeLog != nil {
				return closeLog()
			}
			return nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			completeCmd(),
			chatCmd(),
			talkCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
