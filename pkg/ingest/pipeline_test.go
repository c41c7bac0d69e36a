package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/repositories/batch"
	"github.com/Ramsey-B/clover/internal/repositories/record"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/database/dbtest"
	"github.com/Ramsey-B/clover/pkg/decoder"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/headers"
	"github.com/Ramsey-B/clover/pkg/ingest"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fixture struct {
	db      database.DB
	batches *batch.Repository
	records *record.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	return &fixture{
		db:      db,
		batches: batch.NewRepository(db, dbtest.Logger()),
		records: record.NewRepository(db, dbtest.Logger()),
	}
}

func (f *fixture) pipeline(records ingest.RecordStore) *ingest.Pipeline {
	if records == nil {
		records = f.records
	}
	return ingest.NewPipeline(f.db, f.batches, records, 0, 0, dbtest.Logger())
}

func (f *fixture) ingest(t *testing.T, batchID, input string, opts ingest.Options) (*models.IngestResult, error) {
	t.Helper()
	_, err := f.batches.Create(context.Background(), &models.Batch{BatchID: batchID, Filename: batchID + ".csv"})
	require.NoError(t, err)
	return f.pipeline(nil).Ingest(context.Background(), batchID, strings.NewReader(input), opts)
}

func (f *fixture) stored(t *testing.T, batchID string) []models.Record {
	t.Helper()
	page, err := f.records.Preview(context.Background(), batchID, 1, 500)
	require.NoError(t, err)
	return page.Items
}

// failingRecords fails the nth InsertChunk call.
type failingRecords struct {
	inner  ingest.RecordStore
	failOn int
	calls  int
}

func (f *failingRecords) InsertChunk(ctx context.Context, records []models.Record) (int64, error) {
	f.calls++
	if f.calls == f.failOn {
		return 0, apperrors.NewStorageError("insert records", errors.New("disk full"))
	}
	return f.inner.InsertChunk(ctx, records)
}

func TestIngest_DedupsAndStores(t *testing.T) {
	f := newFixture(t)
	input := "Name,Email,Phone\n" +
		"Ann,ANN@x.com ,(555) 123-4567\n" +
		"Bob,bob@x.com,\n" +
		"Ann,ANN@x.com ,(555) 123-4567\n" +
		"Cy,,555.000.1111\n"

	result, err := f.ingest(t, "b1", input, ingest.Options{})
	require.NoError(t, err)

	assert.Equal(t, int64(4), result.Total)
	assert.Equal(t, int64(3), result.Inserted)
	assert.Equal(t, int64(1), result.Duplicates)
	assert.Equal(t, int64(0), result.Failed)
	assert.Equal(t, decoder.EncodingUTF8, result.Encoding)
	assert.Equal(t, []string{"name", "email", "phone"}, result.Columns)
	assert.Equal(t, headers.CaseValid, result.Header.Case)
	assert.Equal(t, models.BatchStateReady, result.State)

	records := f.stored(t, "b1")
	require.Len(t, records, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{records[0].ID, records[1].ID, records[2].ID})
	assert.Equal(t, "ann@x.com", *records[0].Email)
	assert.Equal(t, "5551234567", *records[0].Phone)
	assert.Nil(t, records[1].Phone)
	assert.Nil(t, records[2].Email)
	assert.Equal(t, []string{"name", "email", "phone"}, records[0].Fields.Names())

	b, err := f.batches.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStateReady, b.State)
	assert.Equal(t, int64(4), b.TotalRecords)
	assert.Equal(t, int64(3), b.RecordCount)
	assert.Equal(t, int64(1), b.DuplicateCount)
	assert.Equal(t, "email", b.EmailColumn)
	assert.Equal(t, "phone", b.PhoneColumn)
}

func TestIngest_DuplicatesAcrossChunks(t *testing.T) {
	f := newFixture(t)
	var sb strings.Builder
	sb.WriteString("email\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&sb, "user%d@x.com\n", i%10)
	}

	result, err := f.ingest(t, "b1", sb.String(), ingest.Options{ChunkSize: 3, PrefetchChunks: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(25), result.Total)
	assert.Equal(t, int64(10), result.Inserted)
	assert.Equal(t, int64(15), result.Duplicates)

	records := f.stored(t, "b1")
	require.Len(t, records, 10)
	for i, rec := range records {
		assert.Equal(t, int64(i+1), rec.ID)
		assert.Equal(t, fmt.Sprintf("user%d@x.com", i), *rec.Email)
	}
}

func TestIngest_AllIdentical(t *testing.T) {
	f := newFixture(t)
	input := "email,phone\n" + strings.Repeat("a@x.com,555\n", 7)

	result, err := f.ingest(t, "b1", input, ingest.Options{ChunkSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.Total)
	assert.Equal(t, int64(1), result.Inserted)
	assert.Equal(t, result.Total-1, result.Duplicates)
}

func TestIngest_EmptyStream(t *testing.T) {
	f := newFixture(t)

	result, err := f.ingest(t, "b1", "", ingest.Options{})
	require.NoError(t, err)
	assert.Equal(t, models.BatchStateReady, result.State)
	assert.Zero(t, result.Total)
	assert.Zero(t, result.Inserted)

	b, err := f.batches.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStateReady, b.State)
	assert.Zero(t, b.RecordCount)
}

func TestIngest_HeaderOnly(t *testing.T) {
	f := newFixture(t)

	result, err := f.ingest(t, "b1", "email,phone\n", ingest.Options{})
	require.NoError(t, err)
	assert.Equal(t, models.BatchStateReady, result.State)
	assert.Zero(t, result.Total)
	assert.Equal(t, []string{"email", "phone"}, result.Columns)
}

func TestIngest_MalformedAndOverflowRowsFail(t *testing.T) {
	f := newFixture(t)
	input := "email,phone\n" +
		"a@x.com,1\n" +
		"bad\"quote,2\n" +
		"b@x.com,3,extra\n" +
		"c@x.com,4,\n" +
		",\n"

	result, err := f.ingest(t, "b1", input, ingest.Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Total, "blank rows are not counted")
	assert.Equal(t, int64(2), result.Failed)
	assert.Equal(t, int64(2), result.Inserted)
}

func TestIngest_Windows1252(t *testing.T) {
	f := newFixture(t)

	result, err := f.ingest(t, "b1", "name,email\nCaf\xe9,a@x.com\n", ingest.Options{})
	require.NoError(t, err)
	assert.Equal(t, decoder.EncodingWindows1252, result.Encoding)

	records := f.stored(t, "b1")
	require.Len(t, records, 1)
	name, _ := records[0].Fields.Get("name")
	assert.Equal(t, "Café", name)

	b, err := f.batches.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, decoder.EncodingWindows1252, b.Encoding)
}

func TestIngest_SuspiciousHeaderIsData(t *testing.T) {
	f := newFixture(t)
	input := "a@x.com,5551234\nb@x.com,5551234\n"

	result, err := f.ingest(t, "b1", input, ingest.Options{EmailColumn: "column_1", PhoneColumn: "column_2"})
	require.NoError(t, err)
	assert.Equal(t, headers.CaseMissing, result.Header.Case)
	assert.Equal(t, []string{"column_1", "column_2"}, result.Columns)
	assert.Equal(t, int64(2), result.Total)

	records := f.stored(t, "b1")
	require.Len(t, records, 2)
	assert.Equal(t, "a@x.com", *records[0].Email)
	assert.Equal(t, "5551234", *records[1].Phone)
}

func TestIngest_HeaderModes(t *testing.T) {
	f := newFixture(t)

	result, err := f.ingest(t, "absent", "x,y\n1,2\n", ingest.Options{HeaderMode: ingest.HeaderAbsent})
	require.NoError(t, err)
	assert.Equal(t, []string{"column_1", "column_2"}, result.Columns)
	assert.Equal(t, int64(2), result.Total)

	result, err = f.ingest(t, "present", "a@x.com,5551234\n", ingest.Options{HeaderMode: ingest.HeaderPresent})
	require.NoError(t, err)
	assert.Zero(t, result.Total)

	result, err = f.ingest(t, "renamed", "c1,c2\nx@y.com,1\n", ingest.Options{ColumnNames: map[int]string{0: "Work Email"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"work_email", "c2"}, result.Columns)
	records := f.stored(t, "renamed")
	require.Len(t, records, 1)
	assert.Equal(t, "x@y.com", *records[0].Email)
}

func TestIngest_NumberInference(t *testing.T) {
	f := newFixture(t)

	input := "id,email\n1,a@x.com\n1.0,a@x.com\n007,a@x.com\n"

	result, err := f.ingest(t, "b1", input, ingest.Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Total)
	assert.Equal(t, int64(1), result.Duplicates, "1 and 1.0 are the same row, 007 is not")

	result, err = f.ingest(t, "b2", input, ingest.Options{NumbersAsText: true})
	require.NoError(t, err)
	assert.Zero(t, result.Duplicates)
}

func TestIngest_StorageFailureKeepsCommittedChunks(t *testing.T) {
	f := newFixture(t)
	_, err := f.batches.Create(context.Background(), &models.Batch{BatchID: "b1"})
	require.NoError(t, err)

	records := &failingRecords{inner: f.records, failOn: 2}
	p := ingest.NewPipeline(f.db, f.batches, records, 2, 1, dbtest.Logger())
	input := "email\na@x.com\nb@x.com\nc@x.com\nd@x.com\ne@x.com\n"

	result, err := p.Ingest(context.Background(), "b1", strings.NewReader(input), ingest.Options{})
	require.Error(t, err)
	assert.True(t, apperrors.IsStorageError(err))
	assert.Equal(t, models.BatchStateFailed, result.State)
	assert.Equal(t, int64(2), result.Inserted)

	assert.Len(t, f.stored(t, "b1"), 2)

	b, err := f.batches.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStateFailed, b.State)
	assert.Equal(t, int64(2), b.RecordCount)
	assert.Contains(t, b.ErrorMessage, "disk full")
}

func TestIngest_DecodeErrorFailsBatch(t *testing.T) {
	f := newFixture(t)

	result, err := f.ingest(t, "b1", "definitely not a zip file", ingest.Options{Format: decoder.FormatXLSX})
	require.Error(t, err)
	assert.True(t, apperrors.IsDecodeError(err))
	assert.Equal(t, models.BatchStateFailed, result.State)

	b, err := f.batches.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStateFailed, b.State)
}

func TestIngest_CanceledContext(t *testing.T) {
	f := newFixture(t)
	_, err := f.batches.Create(context.Background(), &models.Batch{BatchID: "b1"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.pipeline(nil).Ingest(ctx, "b1", strings.NewReader("email\na@x.com\n"), ingest.Options{})
	require.Error(t, err)

	b, err := f.batches.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStateFailed, b.State)
}

func TestIngest_SameFileTwiceIsIdempotentPerBatch(t *testing.T) {
	f := newFixture(t)
	input := "email,phone\na@x.com,1\na@x.com,1\nb@x.com,2\n"

	first, err := f.ingest(t, "b1", input, ingest.Options{})
	require.NoError(t, err)
	second, err := f.ingest(t, "b2", input, ingest.Options{})
	require.NoError(t, err)

	assert.Equal(t, first.Inserted, second.Inserted)
	assert.Equal(t, first.Duplicates, second.Duplicates)

	a, b := f.stored(t, "b1"), f.stored(t, "b2")
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Fingerprint, b[i].Fingerprint)
		assert.Equal(t, a[i].ID, b[i].ID)
	}
}
