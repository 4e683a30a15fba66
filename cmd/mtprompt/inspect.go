package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mtprompt/internal/safetensors"
	"github.com/samcharles93/mtprompt/pkg/mpt"
)

func inspectCmd() *cli.Command {
	var (
		filePath     string
		showMeta     bool
		tensorLimit  int
		tensorFilter string
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a safetensors checkpoint or a saved adapter directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "path to .safetensors file or adapter directory",
				Destination: &filePath,
				Required:    true,
			},
			&cli.BoolFlag{Name: "metadata", Usage: "print header metadata", Value: true, Destination: &showMeta},
			&cli.IntFlag{Name: "tensors-limit", Usage: "limit tensor listing (0 = no limit)", Value: 50, Destination: &tensorLimit},
			&cli.StringFlag{Name: "tensor-filter", Usage: "substring filter for tensor listing", Destination: &tensorFilter},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			_ = ctx

			stat, err := os.Stat(filePath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: stat %q: %v", filePath, err), 1)
			}
			path := filePath
			if stat.IsDir() {
				printAdapterConfig(filepath.Join(filePath, mpt.AdapterConfigName))
				path = filepath.Join(filePath, mpt.StateFileName)
				if stat, err = os.Stat(path); err != nil {
					return cli.Exit(fmt.Sprintf("error: stat %q: %v", path, err), 1)
				}
			}

			f, err := safetensors.Open(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open safetensors: %v", err), 1)
			}
			defer func() { _ = f.Close() }()

			fmt.Printf("Safetensors Inspect: %s\n", path)
			fmt.Printf("File: %s (%s)\n", filepath.Base(path), formatBytes(uint64(stat.Size())))
			fmt.Printf("Tensors: %d\n", len(f.Tensors))

			if showMeta {
				printMetadata(f.Metadata)
			}
			printTensors(f, tensorFilter, tensorLimit)
			printPromptLayout(f)
			return nil
		},
	}
}

func printAdapterConfig(path string) {
	section("Adapter Config")
	o, err := mpt.LoadOptionsFile(path)
	if err != nil {
		fmt.Printf("(adapter config error: %v)\n", err)
		return
	}
	cfg, err := o.Config()
	if err != nil {
		fmt.Printf("(adapter config invalid: %v)\n", err)
		return
	}
	fmt.Println(cfg.String())
}

func printMetadata(meta map[string]string) {
	section("Metadata")
	if len(meta) == 0 {
		fmt.Println("(none)")
		return
	}
	for _, k := range slices.Sorted(maps.Keys(meta)) {
		row(k, meta[k])
	}
}

func printTensors(f *safetensors.File, filter string, limit int) {
	section("Tensors")
	printed := 0
	for _, name := range f.Names() {
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}
		info, _ := f.Tensor(name)
		fmt.Printf("%s  dtype=%s shape=%s size=%s\n", name, info.DType, formatShape(info.Shape), formatBytes(uint64(info.End-info.Start)))
		printed++
		if limit > 0 && printed >= limit {
			fmt.Printf("... (limit %d reached)\n", limit)
			return
		}
	}
	if printed == 0 {
		fmt.Println("(no tensors match)")
	}
}

// printPromptLayout reports T, R, D and the task count when the file
// carries the prompt table keys.
func printPromptLayout(f *safetensors.File) {
	base, okBase := f.Tensor(mpt.KeyPromptEmbeddings)
	cols, okCols := f.Tensor(mpt.KeyTaskCols)
	if !okBase && !okCols {
		return
	}
	section("Prompt Table")
	if okBase && len(base.Shape) == 2 {
		row("virtual tokens", fmt.Sprint(base.Shape[0]))
		row("token dim", fmt.Sprint(base.Shape[1]))
	}
	if okCols && len(cols.Shape) == 3 {
		row("tasks", fmt.Sprint(cols.Shape[0]))
		row("ranks", fmt.Sprint(cols.Shape[2]))
	}
}

func section(title string) {
	line := strings.Repeat("-", len(title)+8)
	fmt.Printf("\n%s\n--- %s ---\n%s\n", line, title, line)
}

func row(label, value string) {
	if value == "" {
		return
	}
	fmt.Printf("%-16s %s\n", label+":", value)
}

func formatShape(shape []int) string {
	if len(shape) == 0 {
		return "[]"
	}
	parts := make([]string, len(shape))
	for i, v := range shape {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
		tb = 1024 * gb
	)
	switch {
	case b >= tb:
		return fmt.Sprintf("%.2f TiB", float64(b)/float64(tb))
	case b >= gb:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
