package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/samcharles93/mtprompt/pkg/mpt"
)

const envAdaptersDir = "MTPROMPT_ADAPTERS_DIR"

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = isTTY

// resolveAdapterOut picks the directory init writes to. Without --out the
// adapter is named after its config file and placed under
// $MTPROMPT_ADAPTERS_DIR, or ./out.
func resolveAdapterOut(configFile, outFlag string) (string, bool, error) {
	outFlag = strings.TrimSpace(outFlag)
	if outFlag != "" {
		outPath := filepath.Clean(outFlag)
		if err := os.MkdirAll(outPath, 0o755); err != nil {
			return "", false, err
		}
		return outPath, false, nil
	}

	base := strings.TrimSuffix(filepath.Base(filepath.Clean(configFile)), filepath.Ext(configFile))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", true, fmt.Errorf("invalid config path: %q", configFile)
	}

	outDir := strings.TrimSpace(os.Getenv(envAdaptersDir))
	if outDir == "" {
		outDir = filepath.Join(".", "out")
	}

	outPath := filepath.Join(outDir, base)
	if err := os.MkdirAll(outPath, 0o755); err != nil {
		return "", true, err
	}
	return outPath, true, nil
}

func resolveAdapterPath(adapterFlag string, adaptersDir string, stdin io.Reader, stderr io.Writer) (string, error) {
	adapterFlag = strings.TrimSpace(adapterFlag)
	if adapterFlag != "" {
		return filepath.Clean(adapterFlag), nil
	}

	dir := strings.TrimSpace(adaptersDir)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(envAdaptersDir))
	}
	if dir == "" {
		return "", fmt.Errorf("--adapter or --adapters-path is required unless %s is set", envAdaptersDir)
	}

	adapters, err := discoverAdapters(dir)
	if err != nil {
		return "", err
	}
	switch len(adapters) {
	case 0:
		return "", fmt.Errorf("no adapters found in %s", dir)
	case 1:
		_, _ = fmt.Fprintf(stderr, "using adapter %s\n", adapters[0])
		return adapters[0], nil
	default:
		if !stdinIsTTY() {
			return "", fmt.Errorf(
				"multiple adapters found in %s but stdin is not interactive; set --adapter",
				dir,
			)
		}
		return selectAdapterInteractively(dir, adapters, stdin, stderr)
	}
}

// discoverAdapters lists the subdirectories of dir that hold an
// adapter_config.json.
func discoverAdapters(dir string) ([]string, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("adapters directory is empty")
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("adapters path is not a directory: %s", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	adapters := make([]string, 0, len(ents))
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if _, err := os.Stat(filepath.Join(path, mpt.AdapterConfigName)); err != nil {
			continue
		}
		adapters = append(adapters, path)
	}
	sort.Strings(adapters)
	return adapters, nil
}

func selectAdapterInteractively(dir string, adapters []string, stdin io.Reader, stderr io.Writer) (string, error) {
	if len(adapters) == 0 {
		return "", fmt.Errorf("no adapters available in %s", dir)
	}

	_, _ = fmt.Fprintf(stderr, "select an adapter from %s\n", dir)
	for i, a := range adapters {
		_, _ = fmt.Fprintf(stderr, "%d. %s\n", i+1, displayName(dir, a))
	}

	reader := bufio.NewReader(stdin)
	for {
		_, _ = fmt.Fprintf(stderr, "enter selection [1-%d]: ", len(adapters))
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if errors.Is(err, io.EOF) {
				return "", errors.New("no selection provided on stdin; set --adapter")
			}
			continue
		}

		idx, convErr := strconv.Atoi(line)
		if convErr != nil || idx < 1 || idx > len(adapters) {
			_, _ = fmt.Fprintf(stderr, "invalid selection %q\n", line)
			if errors.Is(err, io.EOF) {
				return "", errors.New("invalid selection provided on stdin; set --adapter")
			}
			continue
		}
		return adapters[idx-1], nil
	}
}

func displayName(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return filepath.Base(path)
	}
	return rel
}

func isTTY() bool {
	st, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}
