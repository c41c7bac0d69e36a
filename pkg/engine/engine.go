// Package engine is the service facade: it wires the repositories, the
// ingestion pipeline, the resolver and the cluster cache behind the
// operations the HTTP API and the CLI expose.
package engine

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/clover/internal/repositories/batch"
	"github.com/Ramsey-B/clover/internal/repositories/cacheentry"
	"github.com/Ramsey-B/clover/internal/repositories/record"
	"github.com/Ramsey-B/clover/pkg/clustercache"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/decoder"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/ingest"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/resolver"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type Config struct {
	ChunkSize        int
	PrefetchChunks   int
	ResolverPageSize int
	// RebuildOnIngest rebuilds clusters right after a successful ingestion
	RebuildOnIngest bool
	// AsyncRebuild hands the rebuild to the events consumer instead
	AsyncRebuild        bool
	DefaultPageSize     int
	MaxPageSize         int
	BackfillConcurrency int
}

// Events is the lifecycle events sink; *events.Emitter implements it.
type Events interface {
	EmitBatchReady(ctx context.Context, batch *models.Batch) error
	EmitBatchDeleted(ctx context.Context, batchID string) error
}

// Projection is an external copy of the clusters that must forget deleted
// batches; *graph.Projector implements it.
type Projection interface {
	RemoveBatch(ctx context.Context, batchID string) error
}

type Option func(*Engine)

// WithLocker replaces the in-process rebuild lock, e.g. with a Redis lock
// shared by every replica.
func WithLocker(locker clustercache.Locker) Option {
	return func(e *Engine) { e.locker = locker }
}

func WithEvents(events Events) Option {
	return func(e *Engine) { e.events = events }
}

// WithListeners registers rebuild listeners on the cluster cache.
func WithListeners(listeners ...clustercache.Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, listeners...) }
}

func WithProjection(p Projection) Option {
	return func(e *Engine) { e.projection = p }
}

type Engine struct {
	db         database.DB
	batches    *batch.Repository
	records    *record.Repository
	entries    *cacheentry.Repository
	resolver   *resolver.Resolver
	pipeline   *ingest.Pipeline
	cache      *clustercache.Cache
	locker     clustercache.Locker
	listeners  []clustercache.Listener
	events     Events
	projection Projection
	cfg        Config
	logger     ectologger.Logger
}

func New(db database.DB, cfg Config, logger ectologger.Logger, opts ...Option) *Engine {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = clustercache.DefaultPageSize
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = max(cfg.DefaultPageSize, 500)
	}
	if cfg.BackfillConcurrency <= 0 {
		cfg.BackfillConcurrency = 1
	}

	e := &Engine{
		db:      db,
		batches: batch.NewRepository(db, logger),
		records: record.NewRepository(db, logger),
		entries: cacheentry.NewRepository(db, logger),
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.resolver = resolver.NewResolver(e.batches, e.records, cfg.ResolverPageSize, logger)
	e.pipeline = ingest.NewPipeline(db, e.batches, e.records, cfg.ChunkSize, cfg.PrefetchChunks, logger)
	e.cache = clustercache.NewCache(db, e.batches, e.entries, e.records, e.resolver, e.locker, logger, e.listeners...)
	return e
}

// Cache exposes the cluster cache, e.g. to the events consumer.
func (e *Engine) Cache() *clustercache.Cache {
	return e.cache
}

// IngestRequest describes one upload.
type IngestRequest struct {
	// BatchID is generated when empty
	BatchID  string
	Filename string
	Reader   io.Reader
	// Format is detected from Filename when empty
	Format decoder.Format
	Sheet  string
	Comma  rune
	// NumbersAsText turns off numeric canonicalization of cells
	NumbersAsText bool
	HeaderMode    ingest.HeaderMode
	ColumnNames   map[int]string
	EmailColumn   string
	PhoneColumn   string
	ChunkSize     int
}

// IngestBatch creates a batch, reads the upload into it and, when
// configured, rebuilds its clusters. A failed rebuild is logged and leaves
// the batch ready without clusters; it does not fail the ingestion.
func (e *Engine) IngestBatch(ctx context.Context, req IngestRequest) (*models.IngestResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.IngestBatch")
	defer span.End()

	if req.BatchID == "" {
		req.BatchID = uuid.New().String()
	}
	if req.Format == "" {
		req.Format = decoder.DetectFormat(req.Filename)
	}
	ctx = withOperation(ctx, "ingest", req.BatchID)

	created, err := e.batches.Create(ctx, &models.Batch{
		BatchID:     req.BatchID,
		Filename:    req.Filename,
		EmailColumn: req.EmailColumn,
		PhoneColumn: req.PhoneColumn,
	})
	if err != nil {
		return nil, err
	}

	result, err := e.pipeline.Ingest(ctx, created.BatchID, req.Reader, ingest.Options{
		ChunkSize:     req.ChunkSize,
		Format:        req.Format,
		Sheet:         req.Sheet,
		Comma:         req.Comma,
		NumbersAsText: req.NumbersAsText,
		HeaderMode:    req.HeaderMode,
		ColumnNames:   req.ColumnNames,
		EmailColumn:   req.EmailColumn,
		PhoneColumn:   req.PhoneColumn,
	})
	if err != nil {
		return result, err
	}

	if !e.cfg.RebuildOnIngest {
		return result, nil
	}

	log := e.log(ctx)
	if e.cfg.AsyncRebuild && e.events != nil {
		ready, err := e.batches.Get(ctx, created.BatchID)
		if err == nil {
			err = e.events.EmitBatchReady(ctx, ready)
		}
		if err == nil {
			return result, nil
		}
		log.WithError(err).Warn("Failed to hand off rebuild, rebuilding inline")
	}

	rebuilt, err := e.cache.Rebuild(ctx, created.BatchID)
	if err != nil {
		log.WithError(err).Error("Cluster rebuild after ingestion failed")
		return result, nil
	}
	result.Clusters = rebuilt
	return result, nil
}

// RebuildClusters recomputes and swaps in a batch's clusters
func (e *Engine) RebuildClusters(ctx context.Context, batchID string) (*models.RebuildResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.RebuildClusters")
	defer span.End()
	ctx = withOperation(ctx, "rebuild", batchID)

	return e.cache.Rebuild(ctx, batchID)
}

// GetClusters pages through the cached clusters of a batch
func (e *Engine) GetClusters(ctx context.Context, batchID string, kind models.KindFilter, page, pageSize int) (*models.ClusterPage, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.GetClusters")
	defer span.End()

	kind, err := checkKind(kind)
	if err != nil {
		return nil, err
	}
	page, pageSize = e.paging(page, pageSize)
	return e.cache.Query(ctx, batchID, kind, page, pageSize)
}

// checkKind canonicalizes a filter that did not come through ParseKindFilter.
func checkKind(kind models.KindFilter) (models.KindFilter, error) {
	parsed, err := models.ParseKindFilter(string(kind))
	if err != nil {
		return "", httperror.WrapError(http.StatusBadRequest, err)
	}
	return parsed, nil
}

// ResolveClusters computes clusters straight from the records, bypassing
// the cache. Members are not loaded.
func (e *Engine) ResolveClusters(ctx context.Context, batchID string, kind models.KindFilter, page, pageSize int) (*models.ClusterPage, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.ResolveClusters")
	defer span.End()

	kind, err := checkKind(kind)
	if err != nil {
		return nil, err
	}
	page, pageSize = e.paging(page, pageSize)
	clusters, err := e.resolver.Resolve(ctx, batchID)
	if err != nil {
		return nil, err
	}

	items, total := resolver.Paginate(clusters, kind, page, pageSize)
	result := &models.ClusterPage{
		BatchID:     batchID,
		Kind:        kind,
		TotalGroups: int64(total),
		Page:        page,
		PageSize:    pageSize,
		Groups:      make([]models.ClusterGroup, 0, len(items)),
	}
	for _, c := range items {
		result.Groups = append(result.Groups, models.ClusterGroup{
			Key:         c.Key,
			Kind:        c.Kind,
			Identifiers: c.Identifiers,
			MemberCount: c.MemberCount(),
		})
	}
	return result, nil
}

// DeleteBatch removes a batch with its records and cached clusters in one
// transaction.
func (e *Engine) DeleteBatch(ctx context.Context, batchID string) error {
	ctx, span := tracing.StartSpan(ctx, "Engine.DeleteBatch")
	defer span.End()
	ctx = withOperation(ctx, "delete", batchID)

	var records, entries int64
	err := database.WithTx(ctx, e.db, nil, func(ctx context.Context) error {
		if err := e.batches.Lock(ctx, batchID); err != nil {
			return err
		}
		var err error
		if entries, err = e.entries.DeleteByBatch(ctx, batchID); err != nil {
			return err
		}
		if records, err = e.records.DeleteByBatch(ctx, batchID); err != nil {
			return err
		}
		return e.batches.Delete(ctx, batchID)
	})
	if err != nil {
		return err
	}

	log := e.log(ctx)
	log.WithFields(map[string]any{
		"records":       records,
		"cache_entries": entries,
	}).Info("Deleted batch")

	if e.projection != nil {
		if err := e.projection.RemoveBatch(ctx, batchID); err != nil {
			log.WithError(err).Warn("Failed to remove batch projection")
		}
	}
	if e.events != nil {
		if err := e.events.EmitBatchDeleted(ctx, batchID); err != nil {
			log.WithError(err).Warn("Failed to emit batch deletion")
		}
	}
	return nil
}

func (e *Engine) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.GetBatch")
	defer span.End()

	return e.batches.Get(ctx, batchID)
}

// ListBatches returns batches newest first
func (e *Engine) ListBatches(ctx context.Context, filter models.BatchFilter) (*models.BatchPage, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.ListBatches")
	defer span.End()

	filter.Page, filter.PageSize = e.paging(filter.Page, filter.PageSize)
	return e.batches.List(ctx, filter)
}

// Preview returns a page of a batch's records in id order
func (e *Engine) Preview(ctx context.Context, batchID string, page, pageSize int) (*models.RecordPage, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.Preview")
	defer span.End()

	if _, err := e.batches.Get(ctx, batchID); err != nil {
		return nil, err
	}
	page, pageSize = e.paging(page, pageSize)
	return e.records.Preview(ctx, batchID, page, pageSize)
}

// SearchByIdentifier finds the records of a batch carrying an email or phone
func (e *Engine) SearchByIdentifier(ctx context.Context, batchID, value string) ([]models.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.SearchByIdentifier")
	defer span.End()

	if _, err := e.batches.Get(ctx, batchID); err != nil {
		return nil, err
	}
	return e.records.SearchByIdentifier(ctx, batchID, value)
}

// Stats counts a batch's cached clusters per kind
func (e *Engine) Stats(ctx context.Context, batchID string) (*models.ClusterStats, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.Stats")
	defer span.End()

	return e.cache.Stats(ctx, batchID)
}

// BackfillResult lists what a backfill did with each ready batch.
type BackfillResult struct {
	Rebuilt  []string          `json:"rebuilt"`
	Skipped  []string          `json:"skipped"`
	Failed   map[string]string `json:"failed"`
	Duration time.Duration     `json:"duration"`
}

// Backfill rebuilds the clusters of every ready batch. Batches that are
// already rebuilding or vanish meanwhile are skipped; other failures are
// collected and do not stop the run.
func (e *Engine) Backfill(ctx context.Context) (*BackfillResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.Backfill")
	defer span.End()
	ctx = withOperation(ctx, "backfill", "")

	start := time.Now()
	ids, err := e.batches.ListIDsByState(ctx, models.BatchStateReady)
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{Rebuilt: []string{}, Skipped: []string{}, Failed: map[string]string{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.BackfillConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := e.cache.Rebuild(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Rebuilt = append(result.Rebuilt, id)
			case apperrors.IsRebuildInProgress(err), apperrors.IsBatchNotFound(err):
				result.Skipped = append(result.Skipped, id)
			default:
				result.Failed[id] = err.Error()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)

	e.log(ctx).WithFields(map[string]any{
		"batches":     len(ids),
		"rebuilt":     len(result.Rebuilt),
		"skipped":     len(result.Skipped),
		"failed":      len(result.Failed),
		"duration_ms": result.Duration.Milliseconds(),
	}).Info("Backfilled cluster cache")

	return result, nil
}

func withOperation(ctx context.Context, operation, batchID string) context.Context {
	ctx = appctx.SetOperation(ctx, operation)
	if batchID != "" {
		ctx = appctx.SetBatchID(ctx, batchID)
	}
	return ctx
}

// log carries the request and operation fields of ctx.
func (e *Engine) log(ctx context.Context) ectologger.Logger {
	return e.logger.WithContext(ctx).WithFields(appctx.Fields(ctx))
}

func (e *Engine) paging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = e.cfg.DefaultPageSize
	}
	return page, min(pageSize, e.cfg.MaxPageSize)
}
