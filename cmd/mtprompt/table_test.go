package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/samcharles93/mtprompt/internal/observe"
	"github.com/samcharles93/mtprompt/pkg/mpt"
)

func writePromptConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompt.yaml")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildTableRecordsMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	cfg, err := loadPromptConfig(writePromptConfig(t, "num_virtual_tokens: 3\ntoken_dim: 4\nnum_ranks: 2\nnum_tasks: 2\n"))
	if err != nil {
		t.Fatalf("loadPromptConfig: %v", err)
	}
	table, err := buildTable(context.Background(), cfg, 42, m)
	if err != nil {
		t.Fatalf("buildTable: %v", err)
	}
	if !table.TaskCols().HasShape(2, 3, 2) {
		t.Fatalf("task cols shape = %v", table.TaskCols().Shape)
	}

	// Same seed, same parameters.
	again, err := buildTable(context.Background(), cfg, 42, m)
	if err != nil {
		t.Fatalf("buildTable: %v", err)
	}
	if !again.BaseVectors().Equal(table.BaseVectors()) {
		t.Fatal("seeded builds differ")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var builds int64
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if metric.Name != "mtprompt.table.builds" {
				continue
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("table builds data = %T", metric.Data)
			}
			for _, dp := range sum.DataPoints {
				builds += dp.Value
			}
		}
	}
	if builds != 2 {
		t.Fatalf("table builds = %d, want 2", builds)
	}
}

func TestLoadPromptConfigErrors(t *testing.T) {
	t.Parallel()
	if _, err := loadPromptConfig(" "); err == nil {
		t.Fatal("expected error without --config")
	}
	path := writePromptConfig(t, "num_virtual_tokens: 3\ntoken_dim: 4\nnum_tasks: 0\ninit_mode: AVERAGE_SOURCE_TASKS\n")
	if _, err := loadPromptConfig(path); !errors.Is(err, mpt.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestBuildTableTextNeedsEmbeddings(t *testing.T) {
	t.Parallel()
	cfg, err := mpt.NewConfig(
		mpt.PromptTuningConfig{NumVirtualTokens: 2, TokenDim: 4, NumTransformerSubmodules: 1},
		mpt.TextInit{Text: "classify"}, 1, 1)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if _, err := buildTable(context.Background(), cfg, 1, m); err == nil {
		t.Fatal("expected error without --embeddings")
	}
}
