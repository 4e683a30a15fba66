package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mtprompt/internal/logger"
	"github.com/samcharles93/mtprompt/internal/observe"
	"github.com/samcharles93/mtprompt/pkg/mpt"
)

type composeOutput struct {
	Adapter string    `json:"adapter"`
	TaskIDs []int     `json:"task_ids"`
	Shape   []int     `json:"shape"`
	Data    []float32 `json:"data,omitempty"`
}

func composeCmd() *cli.Command {
	var (
		tasks      string
		positions  string
		shapeOnly  bool
		prettyJSON bool
	)

	return &cli.Command{
		Name:  "compose",
		Usage: "Compose task-conditioned prompts from a saved adapter",
		Flags: append(commonAdapterFlags(),
			&cli.StringFlag{
				Name:        "tasks",
				Aliases:     []string{"t"},
				Usage:       "comma separated task id per batch row, e.g. 0,2,1",
				Destination: &tasks,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "positions",
				Usage:       "semicolon separated rows of prompt positions, e.g. \"0,1;1,0\" (default 0..T-1 per row)",
				Destination: &positions,
			},
			&cli.BoolFlag{Name: "shape-only", Usage: "omit the prompt values", Destination: &shapeOnly},
			&cli.BoolFlag{Name: "pretty", Usage: "indent JSON output", Destination: &prettyJSON},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			applyTableConfig(c, LoadConfig())

			taskIDs, err := parseIntList(tasks)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: --tasks: %v", err), 1)
			}
			dir, err := resolveAdapterPath(adapterPath, adaptersPath, os.Stdin, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			table, err := mpt.OpenPretrained(dir, mpt.TableOptions{Logger: log})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open adapter: %v", err), 1)
			}

			indices := table.Positions(len(taskIDs))
			if strings.TrimSpace(positions) != "" {
				if indices, err = parseIndices(positions); err != nil {
					return cli.Exit(fmt.Sprintf("error: --positions: %v", err), 1)
				}
			}

			metrics := observe.DefaultMetrics()
			start := time.Now()
			out, err := table.Compose(indices, taskIDs)
			if err != nil {
				status := observe.StatusError
				if errors.Is(err, mpt.ErrInvalidInput) || errors.Is(err, mpt.ErrIndexOutOfRange) {
					status = observe.StatusInvalid
				}
				metrics.RecordCompose(ctx, time.Since(start), 0, status)
				return cli.Exit(fmt.Sprintf("error: compose: %v", err), 1)
			}
			metrics.RecordCompose(ctx, time.Since(start), out.Shape[0]*out.Shape[1], observe.StatusOK)
			log.Debug("composed prompts", "batch", len(taskIDs), "elapsed", time.Since(start))

			res := composeOutput{Adapter: dir, TaskIDs: taskIDs, Shape: out.Shape}
			if !shapeOnly {
				res.Data = out.Data
			}
			var data []byte
			if prettyJSON {
				data, err = json.MarshalIndent(res, "", "  ")
			} else {
				data, err = json.Marshal(res)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: encode output: %v", err), 1)
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

// parseIntList parses "0, 2,1" into []int{0, 2, 1}. An empty string is an
// empty list.
func parseIntList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", strings.TrimSpace(p))
		}
		out = append(out, v)
	}
	return out, nil
}

// parseIndices parses semicolon separated rows of comma separated ints.
func parseIndices(s string) ([][]int, error) {
	rows := strings.Split(strings.TrimSpace(s), ";")
	out := make([][]int, 0, len(rows))
	for i, r := range rows {
		row, err := parseIntList(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, row)
	}
	return out, nil
}
