package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samcharles93/mtprompt/internal/logger"
	"github.com/samcharles93/mtprompt/internal/observe"
	"github.com/samcharles93/mtprompt/internal/webui"
	"github.com/samcharles93/mtprompt/pkg/mpt"
)

// Request limits applied when Options leaves them zero.
const (
	DefaultMaxBatch     = 64
	DefaultMaxBodyBytes = 1 << 20
)

type Options struct {
	Store   *CompositionStore
	Metrics *observe.Metrics
	// MaxBatch caps the rows of one compose request.
	MaxBatch int
	// MaxBodyBytes caps the compose request body.
	MaxBodyBytes int64
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	Logger         logger.Logger
}

// Server exposes one prompt table over HTTP. Handlers only read the table,
// so they may run concurrently.
type Server struct {
	table          *mpt.PromptTable
	store          *CompositionStore
	metrics        *observe.Metrics
	metricsHandler http.Handler
	log            logger.Logger
	ui             http.Handler
	maxBatch       int
	maxBodyBytes   int64
	clock          func() time.Time
}

func NewServer(table *mpt.PromptTable, opts Options) *Server {
	s := &Server{
		table:          table,
		store:          opts.Store,
		metrics:        opts.Metrics,
		metricsHandler: opts.MetricsHandler,
		log:            opts.Logger,
		ui:             http.FileServer(webui.StaticFS()),
		maxBatch:       opts.MaxBatch,
		maxBodyBytes:   opts.MaxBodyBytes,
		clock:          time.Now,
	}
	if s.maxBatch <= 0 {
		s.maxBatch = DefaultMaxBatch
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = DefaultMaxBodyBytes
	}
	if s.store == nil {
		s.store = NewCompositionStore(DefaultStoreCapacity)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/table", s.handleTable)
	e.POST("/v1/compose", s.handleCompose)
	e.GET("/v1/compose/:id", s.handleGetComposition)
	e.DELETE("/v1/compose/:id", s.handleDeleteComposition)
	if s.metricsHandler != nil {
		e.GET("/metrics", s.handleMetrics)
	}
	e.GET("/", s.handleUI)
}

func (s *Server) handleUI(c *echo.Context) error {
	s.ui.ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(c *echo.Context) error {
	s.metricsHandler.ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleTable(c *echo.Context) error {
	cfg := s.table.Config()
	return c.JSON(http.StatusOK, TableInfo{
		Object:             "prompt.table",
		PeftType:           string(cfg.PeftType()),
		InitMode:           cfg.InitMode().String(),
		NumVirtualTokens:   cfg.NumVirtualTokens(),
		TotalVirtualTokens: cfg.TotalVirtualTokens(),
		TokenDim:           cfg.TokenDim(),
		NumRanks:           cfg.NumRanks(),
		NumTasks:           cfg.NumTasks(),
		Shapes: map[string][]int{
			mpt.KeyPromptEmbeddings: s.table.BaseVectors().Shape,
			mpt.KeyTaskCols:         s.table.TaskCols().Shape,
			mpt.KeyTaskRows:         s.table.TaskRows().Shape,
		},
	})
}

func (s *Server) handleCompose(c *echo.Context) error {
	ctx, span := observe.StartSpan(c.Request().Context(), "mpt.compose",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	start := time.Now()

	fail := func(err error) error {
		status, errType := classify(err)
		label := observe.StatusInvalid
		if status >= http.StatusInternalServerError {
			label = observe.StatusError
			s.log.Error("compose failed", "error", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, errType)
		s.metrics.RecordCompose(ctx, time.Since(start), 0, label)
		return writeError(c, status, errType, err.Error(), "", "")
	}

	body := http.MaxBytesReader(c.Response(), c.Request().Body, s.maxBodyBytes)
	req, err := decodeJSON[ComposeRequest](body)
	if err != nil {
		return fail(err)
	}
	if n := max(len(req.TaskIDs), len(req.Indices)); n > s.maxBatch {
		span.SetStatus(codes.Error, "batch_too_large")
		s.metrics.RecordCompose(ctx, time.Since(start), 0, observe.StatusInvalid)
		return writeBadRequest(c, fmt.Sprintf("batch of %d exceeds the limit of %d", n, s.maxBatch))
	}
	indices := req.Indices
	if indices == nil && req.TaskIDs != nil {
		indices = s.table.Positions(len(req.TaskIDs))
	}
	span.SetAttributes(attribute.Int("mtprompt.batch", len(req.TaskIDs)))

	out, err := s.table.Compose(indices, req.TaskIDs)
	if err != nil {
		return fail(err)
	}
	comp := Composition{
		ID:        newCompositionID(),
		Object:    "prompt.composition",
		CreatedAt: s.clock().Unix(),
		TaskIDs:   req.TaskIDs,
		Shape:     out.Shape,
		Data:      out.Data,
	}
	s.store.Put(comp)
	s.metrics.RecordCompose(ctx, time.Since(start), out.Shape[0]*out.Shape[1], observe.StatusOK)
	if id := observe.TraceID(ctx); id != "" {
		c.Response().Header().Set("X-Trace-Id", id)
	}
	s.log.Debug("composed", "id", comp.ID, "batch", out.Shape[0])
	return c.JSON(http.StatusOK, comp)
}

func (s *Server) handleGetComposition(c *echo.Context) error {
	comp, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "composition not found")
	}
	return c.JSON(http.StatusOK, comp)
}

func (s *Server) handleDeleteComposition(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "composition not found")
	}
	return c.JSON(http.StatusOK, DeleteResult{ID: id, Object: "prompt.composition.deleted", Deleted: true})
}
