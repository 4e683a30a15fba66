package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mtprompt/internal/logger"
	"github.com/samcharles93/mtprompt/internal/observe"
)

func initCmd() *cli.Command {
	var outPath string

	return &cli.Command{
		Name:  "init",
		Usage: "Build a prompt table from a config and save it as an adapter",
		Flags: append(append(commonTableFlags(), commonHostFlags()...),
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "adapter output directory (default $" + envAdaptersDir + "/<config name> or ./out/<config name>)",
				Destination: &outPath,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			applyTableConfig(c, LoadConfig())

			cfg, err := loadPromptConfig(promptConfigPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			table, err := buildTable(ctx, cfg, seed, observe.DefaultMetrics())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: build table: %v", err), 1)
			}

			out, defaulted, err := resolveAdapterOut(promptConfigPath, outPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: resolve output: %v", err), 1)
			}
			if err := table.SavePretrained(out); err != nil {
				return cli.Exit(fmt.Sprintf("error: save adapter: %v", err), 1)
			}
			log.Info("adapter written",
				"dir", out,
				"default_dir", defaulted,
				"init_mode", cfg.InitMode().String(),
				"tasks", cfg.NumTasks(),
			)
			return nil
		},
	}
}
