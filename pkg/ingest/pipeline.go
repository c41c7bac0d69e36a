// Package ingest reads uploaded tables into a batch: it decodes rows in
// chunks, drops exact duplicates and persists each chunk in its own
// transaction.
package ingest

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/decoder"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/headers"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	DefaultChunkSize      = 5000
	DefaultPrefetchChunks = 2
)

// HeaderMode says how the first row of a table is treated.
type HeaderMode string

const (
	// HeaderAuto uses the first row as the header unless it looks like data.
	HeaderAuto    HeaderMode = "auto"
	HeaderPresent HeaderMode = "present"
	HeaderAbsent  HeaderMode = "absent"
)

// BatchStore records batch progress and the final state.
type BatchStore interface {
	UpdateProgress(ctx context.Context, batchID string, progress models.BatchProgress) error
	MarkReady(ctx context.Context, batchID string, progress models.BatchProgress) error
	MarkFailed(ctx context.Context, batchID string, progress models.BatchProgress, message string) error
}

// RecordStore writes one chunk of admitted records.
type RecordStore interface {
	InsertChunk(ctx context.Context, records []models.Record) (int64, error)
}

type Options struct {
	// ChunkSize is the number of rows read per persisted chunk
	ChunkSize int
	// PrefetchChunks is how many decoded chunks may wait for persistence
	PrefetchChunks int
	Format         decoder.Format
	Sheet          string
	Comma          rune
	// NumbersAsText keeps numeric cells as strings, so 1 and 1.0 fingerprint
	// differently. Numbers are canonicalized by default.
	NumbersAsText bool
	HeaderMode    HeaderMode
	// ColumnNames renames columns by index after header detection
	ColumnNames map[int]string
	// EmailColumn and PhoneColumn override column role detection
	EmailColumn string
	PhoneColumn string
}

type Pipeline struct {
	db             database.DB
	batches        BatchStore
	records        RecordStore
	chunkSize      int
	prefetchChunks int
	logger         ectologger.Logger
}

func NewPipeline(db database.DB, batches BatchStore, records RecordStore, chunkSize, prefetchChunks int, logger ectologger.Logger) *Pipeline {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if prefetchChunks <= 0 {
		prefetchChunks = DefaultPrefetchChunks
	}
	return &Pipeline{
		db:             db,
		batches:        batches,
		records:        records,
		chunkSize:      chunkSize,
		prefetchChunks: prefetchChunks,
		logger:         logger,
	}
}

// chunk is a run of decoded rows on its way to the store. Read counts every
// non-blank row, Failed the rows that were read but could not be used.
type chunk struct {
	records  []models.Record
	read     int64
	failed   int64
	encoding string
}

// Ingest reads r into batchID, which must exist in the ingesting state. The
// batch ends ready, or failed with every chunk committed before the failure
// kept.
func (p *Pipeline) Ingest(ctx context.Context, batchID string, r io.Reader, opts Options) (*models.IngestResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Pipeline.Ingest")
	defer span.End()

	start := time.Now()
	opts = p.withDefaults(opts)
	log := p.logger.WithContext(ctx).WithField("batch_id", batchID)

	result := &models.IngestResult{BatchID: batchID, State: models.BatchStateIngesting}
	var progress models.BatchProgress

	src, err := decoder.Open(r, decoder.Options{
		Format:       opts.Format,
		Sheet:        opts.Sheet,
		Comma:        opts.Comma,
		InferNumbers: !opts.NumbersAsText,
	})
	if err != nil {
		return p.fail(ctx, result, progress, start, asDecodeError(opts.Format, err))
	}
	defer src.Close()

	tbl, err := readHeader(src, opts)
	if errors.Is(err, io.EOF) {
		progress.Encoding = src.Encoding()
		log.Info("Empty input, nothing to ingest")
		return p.finish(ctx, result, progress, start)
	}
	if err != nil {
		return p.fail(ctx, result, progress, start, asDecodeError(opts.Format, err))
	}

	result.Columns = tbl.columns
	result.Header = tbl.analysis
	progress.EmailColumn = tbl.emailColumn()
	progress.PhoneColumn = tbl.phoneColumn()

	log.WithFields(map[string]any{
		"columns":      len(tbl.columns),
		"header_case":  tbl.analysis.Case,
		"email_column": progress.EmailColumn,
		"phone_column": progress.PhoneColumn,
	}).Debug("Resolved table layout")

	chunks := make(chan chunk, opts.PrefetchChunks)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(chunks)
		return p.produce(gctx, src, tbl, opts, chunks)
	})

	g.Go(func() error {
		seen := NewSeenSet(opts.ChunkSize)
		var nextID int64
		for c := range chunks {
			admitted := c.records[:0]
			var duplicates int64
			for _, rec := range c.records {
				if !seen.Admit(rec.Fingerprint) {
					duplicates++
					continue
				}
				nextID++
				rec.ID = nextID
				rec.BatchID = batchID
				admitted = append(admitted, rec)
			}

			next := progress
			next.TotalRecords += c.read
			next.FailedCount += c.failed
			next.DuplicateCount += duplicates
			next.RecordCount += int64(len(admitted))
			next.Encoding = c.encoding

			if err := p.persist(gctx, batchID, admitted, next); err != nil {
				return err
			}
			progress = next
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return p.fail(ctx, result, progress, start, err)
	}
	if progress.Encoding == "" {
		// header-only input never produced a chunk
		progress.Encoding = src.Encoding()
	}
	return p.finish(ctx, result, progress, start)
}

func (p *Pipeline) withDefaults(opts Options) Options {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = p.chunkSize
	}
	if opts.PrefetchChunks <= 0 {
		opts.PrefetchChunks = p.prefetchChunks
	}
	if opts.HeaderMode == "" {
		opts.HeaderMode = HeaderAuto
	}
	if opts.Format == "" {
		opts.Format = decoder.FormatCSV
	}
	return opts
}

// produce decodes rows into chunks of opts.ChunkSize rows.
func (p *Pipeline) produce(ctx context.Context, src decoder.Source, tbl *table, opts Options, out chan<- chunk) error {
	var cur chunk
	emit := func() error {
		cur.encoding = src.Encoding()
		select {
		case out <- cur:
		case <-ctx.Done():
			return ctx.Err()
		}
		cur = chunk{}
		return nil
	}

	add := func(cells []any) {
		rec, ok, blank := tbl.record(cells)
		if blank {
			return
		}
		cur.read++
		if !ok {
			cur.failed++
			return
		}
		cur.records = append(cur.records, rec)
	}

	if tbl.firstRow != nil {
		add(tbl.firstRow)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cells, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var rowErr *decoder.RowError
		if errors.As(err, &rowErr) {
			cur.read++
			cur.failed++
			p.logger.WithContext(ctx).WithError(rowErr).WithField("line", rowErr.Line).Debug("Skipping malformed row")
			continue
		}
		if err != nil {
			return asDecodeError(opts.Format, err)
		}

		add(cells)
		if cur.read >= int64(opts.ChunkSize) {
			if err := emit(); err != nil {
				return err
			}
		}
	}

	if cur.read > 0 {
		return emit()
	}
	return nil
}

// persist writes one chunk together with the batch counters it produces. The
// batch row is written first so deletes, which lock it first too, never
// deadlock against an ingestion.
func (p *Pipeline) persist(ctx context.Context, batchID string, records []models.Record, progress models.BatchProgress) error {
	ctx, span := tracing.StartSpan(ctx, "Pipeline.persist")
	defer span.End()

	start := time.Now()
	defer func() { metrics.ChunkPersistDuration.Observe(time.Since(start).Seconds()) }()

	return database.WithTx(ctx, p.db, nil, func(ctx context.Context) error {
		if err := p.batches.UpdateProgress(ctx, batchID, progress); err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		n, err := p.records.InsertChunk(ctx, records)
		if err != nil {
			return err
		}
		if n != int64(len(records)) {
			return apperrors.NewStorageError("insert records", errors.New("chunk was only partially written"))
		}
		return nil
	})
}

func (p *Pipeline) finish(ctx context.Context, result *models.IngestResult, progress models.BatchProgress, start time.Time) (*models.IngestResult, error) {
	if err := p.batches.MarkReady(ctx, result.BatchID, progress); err != nil {
		return p.fail(ctx, result, progress, start, err)
	}

	fillResult(result, progress, models.BatchStateReady)
	metrics.RecordIngestion(string(models.BatchStateReady), progress.RecordCount, progress.DuplicateCount, progress.FailedCount, time.Since(start).Seconds())

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":    result.BatchID,
		"total":       result.Total,
		"inserted":    result.Inserted,
		"duplicates":  result.Duplicates,
		"failed":      result.Failed,
		"encoding":    result.Encoding,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Ingested batch")

	return result, nil
}

// fail marks the batch failed with the counters of the committed chunks. It
// runs even when ctx was canceled.
func (p *Pipeline) fail(ctx context.Context, result *models.IngestResult, progress models.BatchProgress, start time.Time, cause error) (*models.IngestResult, error) {
	log := p.logger.WithContext(ctx).WithError(cause).WithField("batch_id", result.BatchID)
	log.Error("Ingestion failed")

	if err := p.batches.MarkFailed(context.WithoutCancel(ctx), result.BatchID, progress, cause.Error()); err != nil {
		log.WithField("mark_error", err.Error()).Error("Failed to mark batch as failed")
	}

	fillResult(result, progress, models.BatchStateFailed)
	metrics.RecordIngestion(string(models.BatchStateFailed), progress.RecordCount, progress.DuplicateCount, progress.FailedCount, time.Since(start).Seconds())

	return result, cause
}

func fillResult(result *models.IngestResult, progress models.BatchProgress, state models.BatchState) {
	result.Total = progress.TotalRecords
	result.Inserted = progress.RecordCount
	result.Duplicates = progress.DuplicateCount
	result.Failed = progress.FailedCount
	result.Encoding = progress.Encoding
	result.State = state
}

func asDecodeError(format decoder.Format, err error) error {
	if apperrors.IsDecodeError(err) || apperrors.IsStorageError(err) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.NewDecodeError(string(format), err)
}

// table is the resolved layout of an input.
type table struct {
	columns  []string
	analysis headers.Analysis
	emailIdx int
	phoneIdx int
	// firstRow is set when the header row turned out to be data
	firstRow []any
}

func readHeader(src decoder.Source, opts Options) (*table, error) {
	cells, err := src.Next()
	if err != nil {
		return nil, err
	}

	raw := make([]string, len(cells))
	for i, c := range cells {
		raw[i], _ = normalizers.Stringify(c)
	}

	tbl := &table{analysis: headers.DetectCase(raw), emailIdx: -1, phoneIdx: -1}
	headerIsData := false
	switch opts.HeaderMode {
	case HeaderAbsent:
		headerIsData = true
	case HeaderPresent:
	default:
		switch tbl.analysis.Case {
		case headers.CaseSuspicious:
			headerIsData = true
		case headers.CaseMissing:
			headerIsData = len(tbl.analysis.UnnamedIndices) == len(raw) || headers.LooksLikeData(raw)
		}
	}

	if headerIsData {
		tbl.columns = headers.Synthetic(len(raw))
		tbl.firstRow = cells
	} else {
		tbl.columns = headers.Normalize(raw)
	}
	if len(opts.ColumnNames) > 0 {
		tbl.columns = headers.Apply(tbl.columns, opts.ColumnNames)
	}

	email, phone := headers.Roles(tbl.columns, opts.EmailColumn, opts.PhoneColumn)
	for i, c := range tbl.columns {
		if c == email {
			tbl.emailIdx = i
		}
		if c == phone {
			tbl.phoneIdx = i
		}
	}
	return tbl, nil
}

func (t *table) emailColumn() string {
	if t.emailIdx < 0 {
		return ""
	}
	return t.columns[t.emailIdx]
}

func (t *table) phoneColumn() string {
	if t.phoneIdx < 0 {
		return ""
	}
	return t.columns[t.phoneIdx]
}

// record maps a row of cells onto the columns. Short rows are padded with
// nulls; rows with more non-empty cells than columns are rejected. Blank rows
// are reported separately and never counted.
func (t *table) record(cells []any) (rec models.Record, ok bool, blank bool) {
	fields := make(models.Fields, len(t.columns))
	for i, name := range t.columns {
		var v any
		if i < len(cells) {
			v = cells[i]
		}
		fields[i] = models.Field{Name: name, Value: v}
	}

	overflow := false
	for _, extra := range cellsPast(cells, len(t.columns)) {
		if extra != nil {
			overflow = true
			break
		}
	}
	if !overflow && fields.IsEmpty() {
		return rec, false, true
	}
	if overflow {
		return rec, false, false
	}

	rec.Fields = fields
	if t.emailIdx >= 0 {
		if e, found := normalizers.Email(fields[t.emailIdx].Value); found {
			rec.Email = &e
		}
	}
	if t.phoneIdx >= 0 {
		if ph, found := normalizers.Phone(fields[t.phoneIdx].Value); found {
			rec.Phone = &ph
		}
	}
	rec.Fingerprint = fingerprint.GeneratePairs(t.columns, fields.Values())
	return rec, true, false
}

func cellsPast(cells []any, n int) []any {
	if len(cells) <= n {
		return nil
	}
	return cells[n:]
}
