package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stride/api/internal/logging"
)

type fakeSink struct {
	entries []Entry
	err     error
	ctxErr  error
	delay   time.Duration
}

func (f *fakeSink) InsertAuditEntry(ctx context.Context, entry Entry) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeSink) ListAuditEntries(ctx context.Context, filter Filter) ([]Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Entry
	for _, e := range f.entries {
		if !filter.From.IsZero() && e.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !e.CreatedAt.Before(filter.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func newCounter() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: "test_audit_failures_total"})
}

func TestRecordFillsMetadataFromContext(t *testing.T) {
	sink := &fakeSink{}
	rec := NewRecorder(sink, nil, newCounter(), time.Second)

	ctx := logging.WithRequestID(context.Background(), "req-9")
	ctx = logging.WithClientIP(ctx, "203.0.113.7")
	rec.Record(ctx, Entry{ActorID: "admin-1", Action: UserDeactivated, Entity: EntityUser, EntityID: "U1"})

	require.Len(t, sink.entries, 1)
	got := sink.entries[0]
	assert.Len(t, got.ID, 26)
	assert.Equal(t, "req-9", got.RequestID)
	assert.Equal(t, "203.0.113.7", got.IP)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, UserDeactivated, got.Action)
}

func TestRecordIgnoresClientCancellation(t *testing.T) {
	sink := &fakeSink{}
	rec := NewRecorder(sink, nil, newCounter(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Record(ctx, Entry{ActorID: "a", Action: UserCreated, Entity: EntityUser, EntityID: "u"})

	require.Len(t, sink.entries, 1)
	assert.NoError(t, sink.ctxErr)
}

func TestRecordFailureIsLoggedAndCounted(t *testing.T) {
	logger, hook := test.NewNullLogger()
	failures := newCounter()
	sink := &fakeSink{err: errors.New("connection reset")}
	rec := NewRecorder(sink, logger, failures, time.Second)

	rec.Record(context.Background(), Entry{ActorID: "a", Action: TeamDeleted, Entity: EntityTeam, EntityID: "t1"})

	assert.Equal(t, 1.0, testutil.ToFloat64(failures))
	require.Len(t, hook.Entries, 1)
	last := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, last.Level)
	assert.Equal(t, TeamDeleted, last.Data["action"])
	assert.Equal(t, "t1", last.Data["entity_id"])
}

func TestRecordIsBoundedByTimeout(t *testing.T) {
	failures := newCounter()
	logger, _ := test.NewNullLogger()
	sink := &fakeSink{delay: time.Second}
	rec := NewRecorder(sink, logger, failures, 20*time.Millisecond)

	start := time.Now()
	rec.Record(context.Background(), Entry{ActorID: "a", Action: UserCreated, Entity: EntityUser, EntityID: "u"})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(failures))
}

func TestWriteCSV(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := WriteCSV(&buf, []Entry{{
		ID: "01H", ActorID: "admin", Action: PTOApproved, Entity: EntityPTORequest,
		EntityID: "pto-1", Detail: "approved, with note", CreatedAt: at,
	}})
	require.NoError(t, err)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "2026-03-02T09:30:00Z", rows[1][1])
	assert.Equal(t, "approved, with note", rows[1][6])
}

func TestWriteCSVNeutralisesFormulas(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []Entry{
		{ID: "1", ActorID: "admin", Detail: `=HYPERLINK("http://evil","x")`},
		{ID: "2", ActorID: "admin", Detail: "+1"},
		{ID: "3", ActorID: "admin", Detail: "-2"},
		{ID: "4", ActorID: "@sum", Detail: "EMPLOYEE -> LEAD"},
	})
	require.NoError(t, err)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, `'=HYPERLINK("http://evil","x")`, rows[1][6])
	assert.Equal(t, "'+1", rows[2][6])
	assert.Equal(t, "'-2", rows[3][6])
	assert.Equal(t, "'@sum", rows[4][2])
	assert.Equal(t, "EMPLOYEE -> LEAD", rows[4][6])
}

type fakeObjects struct {
	buckets map[string]bool
	puts    map[string]string
	putErr  error
}

func (f *fakeObjects) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeObjects) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjects) PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, _ := io.ReadAll(reader)
	f.puts[bucket+"/"+object] = string(data)
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func TestArchiveDayUploadsOneDay(t *testing.T) {
	day := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	sink := &fakeSink{entries: []Entry{
		{ID: "1", Action: UserCreated, CreatedAt: day.Add(-16 * time.Hour)},
		{ID: "2", Action: UserUpdated, CreatedAt: day},
		{ID: "3", Action: UserDeleted, CreatedAt: day.Add(9 * time.Hour)},
	}}
	objects := &fakeObjects{buckets: map[string]bool{}, puts: map[string]string{}}

	key, count, err := NewArchiver(sink, objects, "stride-audit").ArchiveDay(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, "audit/2026/03/02.csv", key)
	assert.Equal(t, 1, count)
	assert.True(t, objects.buckets["stride-audit"])

	body := objects.puts["stride-audit/audit/2026/03/02.csv"]
	assert.True(t, strings.Contains(body, "USER_UPDATED"))
	assert.False(t, strings.Contains(body, "USER_CREATED"))
}

func TestArchiveDayReportsUploadFailure(t *testing.T) {
	objects := &fakeObjects{buckets: map[string]bool{"b": true}, puts: map[string]string{}, putErr: errors.New("denied")}
	_, _, err := NewArchiver(&fakeSink{}, objects, "b").ArchiveDay(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload audit archive")
}
