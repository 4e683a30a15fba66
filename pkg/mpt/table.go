package mpt

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/mtprompt/internal/logger"
	"github.com/samcharles93/mtprompt/internal/tensor"
)

// TableOptions carries the collaborators of a PromptTable. The zero value
// reads checkpoints from disk, seeds from the clock and discards logs.
type TableOptions struct {
	Loader StateLoader
	Rand   *rand.Rand
	Logger logger.Logger
}

func (o TableOptions) loader() StateLoader {
	if o.Loader != nil {
		return o.Loader
	}
	return FileLoader
}

func (o TableOptions) rand() *rand.Rand {
	if o.Rand != nil {
		return o.Rand
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func (o TableOptions) logger() logger.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logger.Nop()
}

// PromptTable holds the shared prompt and the per-task factor bank.
//
// Parameters are never resized after construction. The table does no
// locking: Compose only reads, so callers must serialise writes to the
// parameter tensors against lookups.
type PromptTable struct {
	cfg       Config
	embedding *PromptEmbedding
	taskCols  *tensor.Tensor // [tasks, T, R]
	taskRows  *tensor.Tensor // [tasks, R, D]
	log       logger.Logger
}

// NewPromptTable validates cfg, allocates the table and applies its init
// policy. Source checkpoints are validated in full before any parameter is
// overwritten.
func NewPromptTable(cfg Config, host Host, opts TableOptions) (*PromptTable, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := opts.logger().With("init_mode", cfg.InitMode().String())
	t, err := allocate(cfg, host, opts.rand(), log)
	if err != nil {
		return nil, err
	}

	switch v := cfg.Init().(type) {
	case RandomInit, TextInit:
	case AverageSourceTasks:
		src, err := loadSource(opts.loader(), v.SourceStatePath, true)
		if err != nil {
			return nil, err
		}
		if err := t.applyAverage(src); err != nil {
			return nil, err
		}
	case ExactSourceTask:
		src, err := loadSource(opts.loader(), v.SourceStatePath, true)
		if err != nil {
			return nil, err
		}
		if err := t.applyExact(src, v.TaskIndex); err != nil {
			return nil, err
		}
	case OnlySourceShared:
		src, err := loadSource(opts.loader(), v.SourceStatePath, false)
		if err != nil {
			return nil, err
		}
		shared := State{KeyPromptEmbeddings: src[KeyPromptEmbeddings]}
		if err := t.LoadState(shared, LoadSubset); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unsupported init %T", ErrInvalidConfig, v)
	}

	log.Info("prompt table ready",
		"tokens", cfg.TotalVirtualTokens(),
		"dim", cfg.TokenDim(),
		"ranks", cfg.NumRanks(),
		"tasks", cfg.NumTasks(),
	)
	return t, nil
}

// OpenPromptTable restores a table saved with SaveState. Every key must be
// present with the shape cfg implies; the init policy of cfg is not
// applied.
func OpenPromptTable(cfg Config, statePath string, opts TableOptions) (*PromptTable, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := opts.logger().With("state", statePath)
	// Restored parameters overwrite everything, so the base never needs the
	// host even when cfg says TEXT.
	t := newTable(cfg, &PromptEmbedding{Weight: tensor.New(cfg.TotalVirtualTokens(), cfg.TokenDim())}, log)
	state, err := opts.loader().LoadState(statePath)
	if err != nil {
		return nil, err
	}
	if err := t.LoadState(state, LoadExact); err != nil {
		return nil, err
	}
	log.Info("prompt table restored", "tasks", cfg.NumTasks())
	return t, nil
}

func allocate(cfg Config, host Host, rng *rand.Rand, log logger.Logger) (*PromptTable, error) {
	emb, err := newPromptEmbedding(cfg, host, rng)
	if err != nil {
		return nil, err
	}
	t := newTable(cfg, emb, log)
	tensor.FillNormal(t.taskCols, 0, initStd, rng)
	tensor.FillNormal(t.taskRows, 0, initStd, rng)
	return t, nil
}

func newTable(cfg Config, emb *PromptEmbedding, log logger.Logger) *PromptTable {
	total, dim := cfg.TotalVirtualTokens(), cfg.TokenDim()
	return &PromptTable{
		cfg:       cfg,
		embedding: emb,
		taskCols:  tensor.New(cfg.NumTasks(), total, cfg.NumRanks()),
		taskRows:  tensor.New(cfg.NumTasks(), cfg.NumRanks(), dim),
		log:       log,
	}
}

// loadSource reads a source checkpoint and checks it carries the keys the
// init mode needs. Keys beyond those are ignored.
func loadSource(loader StateLoader, path string, factors bool) (State, error) {
	src, err := loader.LoadState(path)
	if err != nil {
		return nil, fmt.Errorf("load source state %s: %w", path, err)
	}
	need := []string{KeyPromptEmbeddings}
	if factors {
		need = append(need, KeyTaskCols, KeyTaskRows)
	}
	for _, key := range need {
		if src[key] == nil {
			return nil, fmt.Errorf("%w: source state %s has no %s", ErrCheckpoint, path, key)
		}
	}
	return src, nil
}

func (t *PromptTable) applyAverage(src State) error {
	cols, err := tensor.MeanAxis0(src[KeyTaskCols])
	if err != nil {
		return fmt.Errorf("%w: average %s: %v", ErrCheckpoint, KeyTaskCols, err)
	}
	rows, err := tensor.MeanAxis0(src[KeyTaskRows])
	if err != nil {
		return fmt.Errorf("%w: average %s: %v", ErrCheckpoint, KeyTaskRows, err)
	}
	return t.LoadState(State{
		KeyPromptEmbeddings: src[KeyPromptEmbeddings],
		KeyTaskCols:         cols,
		KeyTaskRows:         rows,
	}, LoadExact)
}

func (t *PromptTable) applyExact(src State, index int) error {
	cols, err := tensor.Select(src[KeyTaskCols], index)
	if err != nil {
		return fmt.Errorf("select source task: %w", err)
	}
	rows, err := tensor.Select(src[KeyTaskRows], index)
	if err != nil {
		return fmt.Errorf("select source task: %w", err)
	}
	return t.LoadState(State{
		KeyPromptEmbeddings: src[KeyPromptEmbeddings],
		KeyTaskCols:         cols,
		KeyTaskRows:         rows,
	}, LoadExact)
}

// LoadState copies s into the table's parameters. The whole state is
// checked first; on error nothing has been written. In LoadSubset mode
// keys the table does not own are logged and skipped.
func (t *PromptTable) LoadState(s State, mode LoadMode) error {
	targets := t.params()
	unexpected, err := validateState(s, targets, mode)
	if err != nil {
		return err
	}
	for _, name := range targets.Names() {
		src, ok := s[name]
		if !ok {
			continue
		}
		if err := targets[name].CopyFrom(src); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCheckpoint, name, err)
		}
	}
	if len(unexpected) > 0 {
		t.log.Warn("ignoring unexpected state keys", "keys", unexpected)
	}
	t.log.Debug("state loaded", "mode", mode.String(), "keys", len(s)-len(unexpected))
	return nil
}

// params maps checkpoint keys to the live parameter tensors.
func (t *PromptTable) params() State {
	return State{
		KeyPromptEmbeddings: t.embedding.Weight,
		KeyTaskCols:         t.taskCols,
		KeyTaskRows:         t.taskRows,
	}
}

// State returns a copy of the parameters keyed like a source checkpoint.
func (t *PromptTable) State() State {
	out := make(State, 3)
	for name, p := range t.params() {
		out[name] = p.Clone()
	}
	return out
}

// SaveState writes the parameters to a safetensors file. The metadata
// records the adapter type, init mode and a fresh run id.
func (t *PromptTable) SaveState(path string) error {
	meta := map[string]string{
		metaFormat:   stateFormat,
		metaPeftType: string(t.cfg.PeftType()),
		metaInitMode: t.cfg.InitMode().String(),
		metaRunID:    uuid.NewString(),
	}
	if err := SaveStateFile(path, t.params(), meta); err != nil {
		return err
	}
	t.log.Info("prompt table saved", "path", path, "run_id", meta[metaRunID])
	return nil
}

func (t *PromptTable) Config() Config { return t.cfg }

// BaseVectors is the live [T, D] shared prompt.
func (t *PromptTable) BaseVectors() *tensor.Tensor { return t.embedding.Weight }

// TaskCols is the live [tasks, T, R] factor bank.
func (t *PromptTable) TaskCols() *tensor.Tensor { return t.taskCols }

// TaskRows is the live [tasks, R, D] factor bank.
func (t *PromptTable) TaskRows() *tensor.Tensor { return t.taskRows }
